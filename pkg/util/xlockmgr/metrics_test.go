package xlockmgr

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNewMetrics(t *testing.T) {
	t.Run("nil provider returns nil", func(t *testing.T) {
		m, err := NewMetrics(nil, nil)
		assert.NoError(t, err)
		assert.Nil(t, m)

		// nil 接收者上的记录是空操作
		m.RecordRequest(context.Background(), Exclusive, outcomeGranted)
		m.RecordRelease(context.Background(), Exclusive, releaseReasonReleased, time.Second)
		m.RecordWait(context.Background(), Exclusive, time.Second)
		m.RecordQuery(context.Background(), time.Second)
		assert.NoError(t, m.unregister())
	})

	t.Run("noop provider", func(t *testing.T) {
		m, err := NewMetrics(noop.NewMeterProvider(), func() (int64, int64) { return 0, 0 })
		require.NoError(t, err)
		require.NotNil(t, m)
		assert.NoError(t, m.unregister())
	})
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := map[string]metricdata.Aggregation{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			out[md.Name] = md.Data
		}
	}
	return out
}

func sumWhere(t *testing.T, agg metricdata.Aggregation, key, value string) int64 {
	t.Helper()
	sum, ok := agg.(metricdata.Sum[int64])
	require.True(t, ok, "expected Sum[int64], got %T", agg)
	var total int64
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			total += dp.Value
		}
	}
	return total
}

func gaugeValue(t *testing.T, agg metricdata.Aggregation) int64 {
	t.Helper()
	g, ok := agg.(metricdata.Gauge[int64])
	require.True(t, ok, "expected Gauge[int64], got %T", agg)
	require.Len(t, g.DataPoints, 1)
	return g.DataPoints[0].Value
}

func TestManager_Metrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m := newForTest(t, WithMeterProvider(mp))

	h, err := m.Acquire(context.Background(), "R")
	require.NoError(t, err)
	q, err := m.Submit("R", AsShared())
	require.NoError(t, err)
	_, err = m.TryAcquire("R")
	require.ErrorIs(t, err, ErrUnavailable)
	_, err = m.Submit("-bad")
	require.ErrorIs(t, err, ErrNotSupported)

	data := collect(t, reader)
	req := data[metricNameRequestTotal]
	assert.Equal(t, int64(1), sumWhere(t, req, attrOutcome, outcomeGranted))
	assert.Equal(t, int64(1), sumWhere(t, req, attrOutcome, outcomeQueued))
	assert.Equal(t, int64(1), sumWhere(t, req, attrOutcome, outcomeUnavailable))
	assert.Equal(t, int64(1), sumWhere(t, req, attrOutcome, outcomeRejected))
	assert.Equal(t, int64(1), gaugeValue(t, data[metricNameHeld]))
	assert.Equal(t, int64(1), gaugeValue(t, data[metricNamePending]))
	assert.Contains(t, data, metricNameWaitDuration)

	s, err := m.Submit("R", Steal())
	require.NoError(t, err)
	require.NoError(t, h.Release())
	require.NoError(t, s.Release())
	require.NoError(t, q.Release())
	_, err = m.Query(context.Background())
	require.NoError(t, err)

	data = collect(t, reader)
	rel := data[metricNameReleaseTotal]
	assert.Equal(t, int64(1), sumWhere(t, rel, attrReason, releaseReasonEvicted))
	assert.Equal(t, int64(2), sumWhere(t, rel, attrReason, releaseReasonReleased))
	assert.Equal(t, int64(1), sumWhere(t, data[metricNameRequestTotal], attrOutcome, outcomeStolen))
	assert.Equal(t, int64(0), gaugeValue(t, data[metricNameHeld]))
	assert.Equal(t, int64(0), gaugeValue(t, data[metricNamePending]))
	assert.Contains(t, data, metricNameQueryDuration)
	assert.Contains(t, data, metricNameHoldDuration)
}

func TestManager_Tracing(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	m := newForTest(t, WithTracerProvider(tp))

	require.NoError(t, m.Request(context.Background(), "R", func(context.Context, *Lock) error { return nil }))
	h, err := m.Acquire(context.Background(), "R")
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = m.Acquire(ctx, "R")
	require.Error(t, err)
	require.NoError(t, h.Release())
	_, err = m.Query(context.Background())
	require.NoError(t, err)

	spans := exporter.GetSpans()
	require.Len(t, spans, 4)
	assert.Equal(t, spanNameRequest, spans[0].Name)
	assert.Equal(t, codes.Ok, spans[0].Status.Code)
	assert.Equal(t, spanNameAcquire, spans[1].Name)
	assert.Equal(t, spanNameAcquire, spans[2].Name)
	assert.Equal(t, codes.Error, spans[2].Status.Code)
	assert.Equal(t, ErrClassTimeout, spans[2].Status.Description)
	assert.Equal(t, spanNameQuery, spans[3].Name)
}
