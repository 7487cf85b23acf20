// Package telemetry provides OpenTelemetry metrics for the importer.
//
// Telemetry is disabled by default (zero runtime overhead when off).
//
// # Configuration
//
//	OTEL_ENABLED=true                 enable metrics (default: off)
//	OTEL_STDOUT=true                  write metrics to stderr (dev mode)
//	OTEL_EXPORTER_OTLP_ENDPOINT=...   OTLP/HTTP collector (e.g. localhost:4318)
//	OTEL_SERVICE_NAME=tradejournal    override service name
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/resource"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const instrumentationScope = "github.com/JonMunkholm/tradejournal"

// Config selects the exporters. The zero value installs a no-op provider.
type Config struct {
	Enabled     bool
	Stdout      bool
	Endpoint    string
	Interval    time.Duration
	ServiceName string
	Version     string

	// Writer receives stdout metrics; defaults to os.Stderr.
	Writer io.Writer

	// Reader is an extra reader, used by tests to collect metrics in memory.
	Reader sdkmetric.Reader
}

var (
	mu          sync.Mutex
	shutdownFns []func(context.Context) error
)

// Init configures the global meter provider. When cfg.Enabled is false this
// installs a no-op provider and returns immediately.
func Init(ctx context.Context, cfg Config) error {
	if !cfg.Enabled {
		otel.SetMeterProvider(metricnoop.NewMeterProvider())
		return nil
	}

	if cfg.ServiceName == "" {
		cfg.ServiceName = "tradejournal"
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.Version),
		),
		resource.WithHost(),
		resource.WithProcess(),
	)
	if err != nil {
		return fmt.Errorf("telemetry: resource: %w", err)
	}

	mp, err := buildMetricProvider(ctx, res, cfg)
	if err != nil {
		return fmt.Errorf("telemetry: metric provider: %w", err)
	}
	otel.SetMeterProvider(mp)

	mu.Lock()
	shutdownFns = append(shutdownFns, mp.Shutdown)
	mu.Unlock()
	return nil
}

func buildMetricProvider(ctx context.Context, res *resource.Resource, cfg Config) (*sdkmetric.MeterProvider, error) {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}

	if cfg.Reader != nil {
		opts = append(opts, sdkmetric.WithReader(cfg.Reader))
	}

	if cfg.Endpoint != "" {
		exp, err := otlpmetrichttp.New(ctx,
			otlpmetrichttp.WithEndpoint(cfg.Endpoint),
			otlpmetrichttp.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("otlp metric exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(interval)),
		))
	}

	// Default to stdout when enabled but no exporter is configured.
	if cfg.Stdout || (cfg.Endpoint == "" && cfg.Reader == nil) {
		w := cfg.Writer
		if w == nil {
			w = os.Stderr
		}
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(interval)),
		))
	}

	return sdkmetric.NewMeterProvider(opts...), nil
}

// Meter returns a meter with the given instrumentation name (or the global scope).
func Meter(name string) metric.Meter {
	if name == "" {
		name = instrumentationScope
	}
	return otel.Meter(name)
}

// Shutdown flushes all metrics and shuts down the providers installed by Init.
func Shutdown(ctx context.Context) error {
	mu.Lock()
	fns := shutdownFns
	shutdownFns = nil
	mu.Unlock()

	var errs []error
	for _, fn := range fns {
		errs = append(errs, fn(ctx))
	}
	return errors.Join(errs...)
}
