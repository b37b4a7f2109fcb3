package xlockmgr

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Acquire 提交请求并等待授予。
//
// ctx 取消或 Manager 关闭时返回 ctx.Err() 或 [ErrClosed]，未授予的票据被放弃：
// 它仍占据原队列位置，轮到时立即释放。两者同时发生时返回哪一个不确定。
// ctx 不得为 nil。
func (m *Manager) Acquire(ctx context.Context, name string, opts ...RequestOption) (*Ticket, error) {
	if ctx == nil {
		panic("xlockmgr: nil Context")
	}
	ctx, span := startSpan(ctx, m.tracer, spanNameAcquire, trace.WithAttributes(attribute.String(attrName, name)))
	defer span.End()

	t, err := m.acquire(ctx, name, opts)
	if err != nil {
		setSpanError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.String(attrMode, t.mode.String()), attribute.String(attrTicketID, t.id))
	setSpanOK(span)
	return t, nil
}

func (m *Manager) acquire(ctx context.Context, name string, opts []RequestOption) (*Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	t, err := m.Submit(name, opts...)
	if err != nil {
		return nil, err
	}
	select {
	case <-t.granted:
	default:
		select {
		case <-t.granted:
		case <-ctx.Done():
			m.abandon(t)
			return nil, ctx.Err()
		case <-m.done:
			m.abandon(t)
			return nil, ErrClosed
		}
	}
	m.metrics.RecordWait(ctx, t.mode, time.Since(start))
	return t, nil
}

// abandon 等待被中断。票据可能恰好已被授予，此时 Release 即真正释放。
func (m *Manager) abandon(t *Ticket) {
	_ = t.Release()
}

// TryAcquire 非阻塞获取，等价于带 [IfAvailable] 的 Submit。
// 无法立即授予时返回 (nil, [ErrUnavailable])。
func (m *Manager) TryAcquire(name string, opts ...RequestOption) (*Ticket, error) {
	return m.Submit(name, append(opts, IfAvailable())...)
}

// Request 获取锁后执行 fn，fn 结束（返回或 panic）时释放锁，返回 fn 的错误。
//
// 默认 Exclusive。IfAvailable 无法授予时不调用 fn，返回 [ErrUnavailable]。
// 锁被 Steal 时 fn 不会被打断，可通过 l.Stolen() 感知。
func (m *Manager) Request(ctx context.Context, name string, fn func(ctx context.Context, l *Lock) error, opts ...RequestOption) error {
	if ctx == nil {
		panic("xlockmgr: nil Context")
	}
	ctx, span := startSpan(ctx, m.tracer, spanNameRequest, trace.WithAttributes(attribute.String(attrName, name)))
	defer span.End()

	t, err := m.acquire(ctx, name, opts)
	if err != nil {
		setSpanError(span, err)
		return err
	}
	defer func() {
		_ = t.Release()
	}()
	span.SetAttributes(attribute.String(attrMode, t.mode.String()), attribute.String(attrTicketID, t.id))

	if err := fn(ctx, &Lock{t: t}); err != nil {
		setSpanError(span, err)
		return err
	}
	span.SetAttributes(attribute.Bool(attrStolen, t.IsEvicted()))
	setSpanOK(span)
	return nil
}

// Query 返回当前快照，ctx 已取消时返回 ctx.Err()
func (m *Manager) Query(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	_, span := startSpan(ctx, m.tracer, spanNameQuery)
	defer span.End()

	start := time.Now()
	snap := m.Snapshot()
	m.metrics.RecordQuery(ctx, time.Since(start))
	span.SetAttributes(
		attribute.Int(attrHeld, len(snap.Held)),
		attribute.Int(attrPending, len(snap.Pending)),
	)
	setSpanOK(span)
	return snap, nil
}
