package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestInit_DisabledIsNoop(t *testing.T) {
	require.NoError(t, Init(context.Background(), Config{}))

	c, err := Meter("").Int64Counter("noop.counter")
	require.NoError(t, err)
	c.Add(context.Background(), 1)

	assert.NoError(t, Shutdown(context.Background()))
}

func TestInit_ManualReaderCollects(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	ctx := context.Background()
	require.NoError(t, Init(ctx, Config{Enabled: true, Reader: reader, ServiceName: "test"}))
	t.Cleanup(func() { _ = Shutdown(context.Background()) })

	c, err := Meter("telemetry_test").Int64Counter("rows")
	require.NoError(t, err)
	c.Add(ctx, 3)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)
	require.Len(t, rm.ScopeMetrics[0].Metrics, 1)

	sum, ok := rm.ScopeMetrics[0].Metrics[0].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(3), sum.DataPoints[0].Value)
}

func TestInit_StdoutWriter(t *testing.T) {
	var buf bytes.Buffer
	ctx := context.Background()
	require.NoError(t, Init(ctx, Config{Enabled: true, Stdout: true, Writer: &buf}))

	c, err := Meter("telemetry_test").Int64Counter("stdout.rows")
	require.NoError(t, err)
	c.Add(ctx, 1)

	// Shutdown flushes the periodic reader.
	require.NoError(t, Shutdown(ctx))
	assert.Contains(t, buf.String(), "stdout.rows")
}
