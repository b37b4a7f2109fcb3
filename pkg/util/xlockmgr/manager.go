package xlockmgr

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/omeyang/xlocks/pkg/observability/xlog"
)

// Manager 进程内具名锁调度器。所有方法并发安全。
//
// 同一名称上的请求按到达顺序授予，Shared 不会越过更早排队的 Exclusive。
// 调度操作（Submit、Release、Steal、Snapshot）只持有分片锁，不等待调用方的工作。
type Manager struct {
	shards []shard
	mask   uint64
	opts   options

	logger  xlog.Logger
	metrics *Metrics
	tracer  trace.Tracer

	seq       atomic.Uint64
	nameCount atomic.Int64
	held      atomic.Int64
	pending   atomic.Int64

	closed atomic.Bool
	done   chan struct{}
}

// New 创建 Manager，配置无效时返回错误
func New(opts ...Option) (*Manager, error) {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if err := o.validate(); err != nil {
		return nil, err
	}

	m := &Manager{
		shards: newShards(o.shardCount),
		// 已验证 shardCount ∈ [1, 65536]
		mask:   uint64(o.shardCount - 1),
		opts:   o,
		logger: o.logger.With(xlog.Component("xlockmgr")),
		tracer: getTracer(o.tracerProvider),
		done:   make(chan struct{}),
	}
	metrics, err := NewMetrics(o.meterProvider, m.gauges)
	if err != nil {
		return nil, err
	}
	m.metrics = metrics
	return m, nil
}

// Submit 提交一次锁请求，返回排队中或已授予的票据。
//
// 参数校验失败返回 [ErrNotSupported] 系列错误，不触及调度状态；
// IfAvailable 无法立即授予返回 [ErrUnavailable]；Manager 关闭后返回 [ErrClosed]。
// 默认模式为 Exclusive。
func (m *Manager) Submit(name string, opts ...RequestOption) (*Ticket, error) {
	req := newRequest(opts)
	if err := req.validate(name); err != nil {
		m.metrics.RecordRequest(context.Background(), req.mode, outcomeRejected)
		return nil, err
	}
	if m.closed.Load() {
		return nil, ErrClosed
	}

	s := m.shardFor(name)
	t := &Ticket{
		mgr:         m,
		shard:       s,
		id:          m.opts.idGenerator(),
		name:        name,
		mode:        req.mode,
		ifAvailable: req.ifAvailable,
		steal:       req.steal,
		clientID:    req.clientID,
		seq:         m.seq.Add(1),
		submittedAt: time.Now(),
		granted:     make(chan struct{}),
		evicted:     make(chan struct{}),
		state:       StatePending,
	}

	var tr transition
	if err := m.admit(s, t, &tr); err != nil {
		outcome := outcomeRejected
		if errors.Is(err, ErrUnavailable) {
			outcome = outcomeUnavailable
		}
		m.metrics.RecordRequest(context.Background(), req.mode, outcome)
		m.logger.Debug(context.Background(), "lock request rejected",
			AttrName(name), AttrMode(req.mode), xlog.Err(err))
		return nil, err
	}

	outcome := outcomeQueued
	switch {
	case t.steal:
		outcome = outcomeStolen
	case slices.Contains(tr.granted, t):
		outcome = outcomeGranted
	}
	m.metrics.RecordRequest(context.Background(), req.mode, outcome)
	m.report(context.Background(), name, &tr)
	return t, nil
}

func (m *Manager) admit(s *shard, t *Ticket, tr *transition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// 与 Close 竞争时以分片锁内的判断为准
	if m.closed.Load() {
		return ErrClosed
	}
	r, err := m.getOrCreate(s, t.name)
	if err != nil {
		return err
	}
	m.mutate(s, r, func() { err = r.admit(t, tr) })
	return err
}

// mutate 需持有 s.mu。执行 fn 后维护计数、校验不变量并回收空记录。
func (m *Manager) mutate(s *shard, r *lockRecord, fn func()) {
	heldBefore, pendingBefore := len(r.holders), len(r.queue)
	fn()
	m.held.Add(int64(len(r.holders) - heldBefore))
	m.pending.Add(int64(len(r.queue) - pendingBefore))

	if err := r.check(); err != nil {
		m.fail(err)
	}
	m.collect(s, r)
}

// fail 不变量被破坏后继续运行可能授予冲突的锁
func (m *Manager) fail(err error) {
	m.logger.Stack(context.Background(), "lock table corrupted", xlog.Err(err))
	panic(err)
}

// releaseKind Release 的实际效果
type releaseKind uint8

const (
	releaseHeld releaseKind = iota
	releaseAbandon
	releaseIgnored
)

func (m *Manager) release(t *Ticket) error {
	var tr transition
	kind, err := m.releaseLocked(t, &tr)
	if err != nil {
		return err
	}

	ctx := context.Background()
	switch kind {
	case releaseAbandon:
		m.logger.Debug(ctx, "pending lock abandoned", AttrName(t.name), AttrTicketID(t.id))
	case releaseIgnored:
		m.logger.Debug(ctx, "release of evicted lock ignored", AttrName(t.name), AttrTicketID(t.id))
	default:
		m.metrics.RecordRelease(ctx, t.mode, releaseReasonReleased, time.Since(t.submittedAt))
		m.logger.Debug(ctx, "lock released", AttrName(t.name), AttrMode(t.mode), AttrTicketID(t.id))
		m.report(ctx, t.name, &tr)
	}
	return nil
}

func (m *Manager) releaseLocked(t *Ticket, tr *transition) (releaseKind, error) {
	s := t.shard
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.released {
		return releaseIgnored, ErrNotHeld
	}
	t.released = true
	switch t.state {
	case StatePending:
		t.abandoned = true
		return releaseAbandon, nil
	case StateGranted:
		r := t.rec
		m.mutate(s, r, func() { r.release(t, tr) })
		return releaseHeld, nil
	default:
		// 被驱逐，或放弃后已在授予点释放
		return releaseIgnored, nil
	}
}

// report 在锁外输出状态变更的日志与指标
func (m *Manager) report(ctx context.Context, name string, tr *transition) {
	for _, g := range tr.granted {
		m.logger.Debug(ctx, "lock granted", AttrName(name), AttrMode(g.mode), AttrTicketID(g.id),
			AttrClientID(g.clientID))
	}
	if len(tr.evicted) > 0 {
		m.logger.Info(ctx, "lock stolen, holders evicted", AttrName(name), xlog.Count(int64(len(tr.evicted))))
		for _, e := range tr.evicted {
			m.metrics.RecordRelease(ctx, e.mode, releaseReasonEvicted, time.Since(e.submittedAt))
		}
	}
	for _, d := range tr.dropped {
		m.logger.Warn(ctx, "abandoned lock released at grant", AttrName(name), AttrMode(d.mode),
			AttrTicketID(d.id), slog.Duration("queued", time.Since(d.submittedAt)))
		m.metrics.RecordRelease(ctx, d.mode, releaseReasonAbandoned, time.Since(d.submittedAt))
	}
}

// Len 当前存在持有者或等待者的名称数
func (m *Manager) Len() int {
	return int(max(m.nameCount.Load(), 0))
}

// HasPending 是否存在任何持有者或等待者
func (m *Manager) HasPending() bool {
	return m.Len() > 0
}

// Names 当前活跃名称，按字典序排列，仅用于调试
func (m *Manager) Names() []string {
	names := make([]string, 0, m.Len())
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.Lock()
		for name := range s.records {
			names = append(names, name)
		}
		s.mu.Unlock()
	}
	slices.Sort(names)
	return names
}

// Close 拒绝新的请求并唤醒阻塞在 Acquire 上的调用方。
// 已持有的锁不受影响，仍可 Release；排队中的票据照常被授予。
// 重复调用返回 [ErrClosed]。
func (m *Manager) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	close(m.done)
	return m.metrics.unregister()
}

// gauges 供 observable gauge 回调读取
func (m *Manager) gauges() (held, pending int64) {
	return m.held.Load(), m.pending.Load()
}
