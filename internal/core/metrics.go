package core

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/JonMunkholm/tradejournal/internal/telemetry"
)

const meterScope = "github.com/JonMunkholm/tradejournal/core"

// importMetrics records run outcomes. Instruments come from the global meter
// provider, which is a no-op unless telemetry.Init enabled it.
type importMetrics struct {
	rows     metric.Int64Counter
	runs     metric.Int64Counter
	assets   metric.Int64Counter
	duration metric.Float64Histogram
}

func newImportMetrics() *importMetrics {
	m := telemetry.Meter(meterScope)
	rows, _ := m.Int64Counter("journal.import.rows",
		metric.WithDescription("Rows processed by entity and outcome"),
	)
	runs, _ := m.Int64Counter("journal.import.runs",
		metric.WithDescription("Import runs by final status"),
	)
	assets, _ := m.Int64Counter("journal.import.assets",
		metric.WithDescription("Attachments by migration outcome"),
	)
	duration, _ := m.Float64Histogram("journal.import.duration",
		metric.WithDescription("Import run duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	return &importMetrics{rows: rows, runs: runs, assets: assets, duration: duration}
}

// record adds one finished run.
func (m *importMetrics) record(ctx context.Context, res *ImportResult) {
	if m == nil || res == nil {
		return
	}
	for entity, c := range res.Entities {
		e := attribute.String("entity", string(entity))
		m.add(ctx, m.rows, c.Imported, e, attribute.String("outcome", "imported"))
		m.add(ctx, m.rows, c.Skipped, e, attribute.String("outcome", "skipped"))
		m.add(ctx, m.rows, c.Merged, e, attribute.String("outcome", "merged"))
		m.add(ctx, m.rows, c.Failed, e, attribute.String("outcome", "failed"))
	}
	m.add(ctx, m.assets, res.Assets.Migrated, attribute.String("outcome", "migrated"))
	m.add(ctx, m.assets, res.Assets.Fallback, attribute.String("outcome", "fallback"))
	m.add(ctx, m.assets, res.Assets.Missing, attribute.String("outcome", "missing"))

	status := attribute.String("status", string(res.Status))
	m.runs.Add(ctx, 1, metric.WithAttributes(status))
	m.duration.Record(ctx, float64(res.Duration)/float64(time.Millisecond), metric.WithAttributes(status))
}

// failed counts a run that ended with a fatal error.
func (m *importMetrics) failed(ctx context.Context, kind ImportErrorKind) {
	if m == nil {
		return
	}
	m.runs.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", "error"),
		attribute.String("kind", string(kind)),
	))
}

func (m *importMetrics) add(ctx context.Context, c metric.Int64Counter, n int, attrs ...attribute.KeyValue) {
	if n == 0 {
		return
	}
	c.Add(ctx, int64(n), metric.WithAttributes(attrs...))
}
