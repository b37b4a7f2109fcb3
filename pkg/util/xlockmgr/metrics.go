package xlockmgr

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// 指标名沿用包名前缀，与 Meter scope 一致
const (
	metricNameRequestTotal  = "xlockmgr.request.total"
	metricNameReleaseTotal  = "xlockmgr.release.total"
	metricNameWaitDuration  = "xlockmgr.wait.duration"
	metricNameHoldDuration  = "xlockmgr.hold.duration"
	metricNameQueryDuration = "xlockmgr.query.duration"
	metricNameHeld          = "xlockmgr.held"
	metricNamePending       = "xlockmgr.pending"
)

// 请求结果
const (
	outcomeGranted     = "granted"
	outcomeQueued      = "queued"
	outcomeStolen      = "stolen"
	outcomeUnavailable = "unavailable"
	outcomeRejected    = "rejected"
)

// 释放原因
const (
	releaseReasonReleased  = "released"
	releaseReasonEvicted   = "evicted"
	releaseReasonAbandoned = "abandoned"
)

var durationBuckets = []float64{0.00001, 0.0001, 0.001, 0.01, 0.1, 0.5, 1, 5, 30}

// Metrics 调度器指标。名称不作为标签，避免高基数。
type Metrics struct {
	requestTotal  metric.Int64Counter
	releaseTotal  metric.Int64Counter
	waitDuration  metric.Float64Histogram
	holdDuration  metric.Float64Histogram
	queryDuration metric.Float64Histogram
	registration  metric.Registration
}

// NewMetrics 创建指标收集器，mp 为 nil 时返回 nil（不采集）。
// gauges 提供当前持有者与等待者总数，供 observable gauge 回调读取。
func NewMetrics(mp metric.MeterProvider, gauges func() (held, pending int64)) (*Metrics, error) {
	if mp == nil {
		return nil, nil
	}
	meter := mp.Meter("xlockmgr", metric.WithInstrumentationVersion(instrumentationVersion))

	m := &Metrics{}
	var err error
	if m.requestTotal, err = meter.Int64Counter(metricNameRequestTotal,
		metric.WithDescription("锁请求次数"), metric.WithUnit("{request}")); err != nil {
		return nil, err
	}
	if m.releaseTotal, err = meter.Int64Counter(metricNameReleaseTotal,
		metric.WithDescription("锁释放次数"), metric.WithUnit("{release}")); err != nil {
		return nil, err
	}
	if m.waitDuration, err = meter.Float64Histogram(metricNameWaitDuration,
		metric.WithDescription("提交到授予的等待耗时"), metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...)); err != nil {
		return nil, err
	}
	if m.holdDuration, err = meter.Float64Histogram(metricNameHoldDuration,
		metric.WithDescription("提交到释放的总耗时"), metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...)); err != nil {
		return nil, err
	}
	if m.queryDuration, err = meter.Float64Histogram(metricNameQueryDuration,
		metric.WithDescription("快照耗时"), metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...)); err != nil {
		return nil, err
	}

	if gauges == nil {
		return m, nil
	}
	held, err := meter.Int64ObservableGauge(metricNameHeld,
		metric.WithDescription("当前持有者数"), metric.WithUnit("{ticket}"))
	if err != nil {
		return nil, err
	}
	pending, err := meter.Int64ObservableGauge(metricNamePending,
		metric.WithDescription("当前等待者数"), metric.WithUnit("{ticket}"))
	if err != nil {
		return nil, err
	}
	m.registration, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		h, p := gauges()
		o.ObserveInt64(held, h)
		o.ObserveInt64(pending, p)
		return nil
	}, held, pending)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// RecordRequest 记录一次 Submit 的结果
func (m *Metrics) RecordRequest(ctx context.Context, mode Mode, outcome string) {
	if m == nil {
		return
	}
	m.requestTotal.Add(context.WithoutCancel(ctx), 1, metric.WithAttributes(
		attribute.String(attrMode, mode.String()),
		attribute.String(attrOutcome, outcome),
	))
}

// RecordRelease 记录释放，lifetime 为提交到释放的耗时
func (m *Metrics) RecordRelease(ctx context.Context, mode Mode, reason string, lifetime time.Duration) {
	if m == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	attrs := metric.WithAttributes(
		attribute.String(attrMode, mode.String()),
		attribute.String(attrReason, reason),
	)
	m.releaseTotal.Add(ctx, 1, attrs)
	m.holdDuration.Record(ctx, lifetime.Seconds(), attrs)
}

// RecordWait 记录 Acquire 从提交到授予的耗时
func (m *Metrics) RecordWait(ctx context.Context, mode Mode, d time.Duration) {
	if m == nil {
		return
	}
	m.waitDuration.Record(context.WithoutCancel(ctx), d.Seconds(),
		metric.WithAttributes(attribute.String(attrMode, mode.String())))
}

// RecordQuery 记录快照耗时
func (m *Metrics) RecordQuery(ctx context.Context, d time.Duration) {
	if m == nil {
		return
	}
	m.queryDuration.Record(context.WithoutCancel(ctx), d.Seconds())
}

func (m *Metrics) unregister() error {
	if m == nil || m.registration == nil {
		return nil
	}
	return m.registration.Unregister()
}
