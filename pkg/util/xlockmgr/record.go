package xlockmgr

import (
	"fmt"
	"slices"
)

// lockRecord 单个名称的调度状态，所有方法在所属 shard.mu 下调用。
//
// holders 要么为空，要么恰好一个 Exclusive，要么全部是 Shared。
// queue 严格按到达顺序排列，只有 Steal 会越过它。
type lockRecord struct {
	name    string
	holders []*Ticket
	queue   []*Ticket
}

// transition 一次状态变更的副作用，在释放 shard 锁后用于日志与指标
type transition struct {
	granted []*Ticket
	evicted []*Ticket
	dropped []*Ticket // 放弃后在授予点直接释放
}

func (r *lockRecord) empty() bool {
	return len(r.holders) == 0 && len(r.queue) == 0
}

func (r *lockRecord) heldExclusive() bool {
	return len(r.holders) > 0 && r.holders[0].mode == Exclusive
}

// compatible 按当前持有者判断 mode 能否授予，不考虑队列
func (r *lockRecord) compatible(mode Mode) bool {
	if mode == Exclusive {
		return len(r.holders) == 0
	}
	return !r.heldExclusive()
}

// overtakes 立即授予 mode 是否会越过更早排队且冲突的请求
func (r *lockRecord) overtakes(mode Mode) bool {
	if mode == Exclusive {
		return len(r.queue) > 0
	}
	return slices.ContainsFunc(r.queue, func(q *Ticket) bool { return q.mode == Exclusive })
}

// admit 处理新票据。IfAvailable 不可授予时返回 ErrUnavailable，票据不入队。
func (r *lockRecord) admit(t *Ticket, tr *transition) error {
	t.rec = r
	switch {
	case t.steal:
		r.stealFor(t, tr)
		return nil
	case t.ifAvailable:
		if !r.compatible(t.mode) || r.overtakes(t.mode) {
			t.state = StateRejected
			t.rec = nil
			return ErrUnavailable
		}
		r.grant(t, tr)
		return nil
	default:
		r.queue = append(r.queue, t)
		r.pump(tr)
		return nil
	}
}

// stealFor 驱逐全部持有者，stealer 成为唯一持有者，队列保持不变
func (r *lockRecord) stealFor(t *Ticket, tr *transition) {
	for _, h := range r.holders {
		h.state = StateReleased
		h.rec = nil
		close(h.evicted)
		tr.evicted = append(tr.evicted, h)
	}
	clear(r.holders)
	r.holders = r.holders[:0]
	r.grant(t, tr)
}

// pump 从队头开始授予：独占只在无持有者时授予，共享连续批量授予，
// 遇到不兼容的队头即停止。
func (r *lockRecord) pump(tr *transition) {
	for len(r.queue) > 0 {
		head := r.queue[0]
		if !r.compatible(head.mode) {
			return
		}
		r.queue[0] = nil
		r.queue = r.queue[1:]
		r.grant(head, tr)
		if head.mode == Exclusive && head.state == StateGranted {
			return
		}
	}
}

func (r *lockRecord) grant(t *Ticket, tr *transition) {
	close(t.granted)
	if t.abandoned {
		t.state = StateReleased
		t.rec = nil
		tr.dropped = append(tr.dropped, t)
		return
	}
	t.state = StateGranted
	r.holders = append(r.holders, t)
	tr.granted = append(tr.granted, t)
}

// release 移除持有者并推进队列
func (r *lockRecord) release(t *Ticket, tr *transition) {
	i := slices.Index(r.holders, t)
	if i < 0 {
		return
	}
	r.holders = slices.Delete(r.holders, i, i+1)
	t.state = StateReleased
	t.rec = nil
	r.pump(tr)
}

// check 校验不变量，返回第一个违例
func (r *lockRecord) check() error {
	for _, h := range r.holders {
		if h.state != StateGranted {
			return fmt.Errorf("%w: %q holder %s in state %s", ErrInvariantViolation, r.name, h.id, h.state)
		}
		if h.mode == Exclusive && len(r.holders) > 1 {
			return fmt.Errorf("%w: %q exclusive holder alongside %d others",
				ErrInvariantViolation, r.name, len(r.holders)-1)
		}
	}
	for _, q := range r.queue {
		if q.state != StatePending {
			return fmt.Errorf("%w: %q queued ticket %s in state %s", ErrInvariantViolation, r.name, q.id, q.state)
		}
	}
	if len(r.holders) == 0 && len(r.queue) > 0 {
		return fmt.Errorf("%w: %q has %d queued tickets and no holder", ErrInvariantViolation, r.name, len(r.queue))
	}
	return nil
}
