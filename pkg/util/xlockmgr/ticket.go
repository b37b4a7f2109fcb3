package xlockmgr

import "time"

// Ticket 表示一次锁请求，由 [Manager.Submit] 创建，调用方无法自行构造。
//
// Granted() 在授予时关闭。持有者通过 Release 交还锁；Release 只生效一次，
// 之后返回 [ErrNotHeld]。对仍在排队的票据调用 Release 视为放弃：票据留在队列中，
// 轮到它时在授予的同一临界区内被释放，不会短暂持有。
type Ticket struct {
	mgr         *Manager
	shard       *shard
	id          string
	name        string
	mode        Mode
	ifAvailable bool
	steal       bool
	clientID    string
	seq         uint64
	submittedAt time.Time

	granted chan struct{}
	evicted chan struct{}

	// 以下字段受 shard.mu 保护
	rec       *lockRecord
	state     State
	abandoned bool
	released  bool
}

// ID 票据唯一标识
func (t *Ticket) ID() string { return t.id }

// Name 锁名称
func (t *Ticket) Name() string { return t.name }

// Mode 请求的模式
func (t *Ticket) Mode() Mode { return t.mode }

// ClientID 请求方标识，未设置时为空
func (t *Ticket) ClientID() string { return t.clientID }

// State 当前状态
func (t *Ticket) State() State {
	t.shard.mu.Lock()
	defer t.shard.mu.Unlock()
	return t.state
}

// Granted 授予时关闭
func (t *Ticket) Granted() <-chan struct{} { return t.granted }

// Evicted 被 Steal 驱逐时关闭。驱逐不产生错误，持有者可据此提前结束工作。
func (t *Ticket) Evicted() <-chan struct{} { return t.evicted }

// IsEvicted 是否已被驱逐
func (t *Ticket) IsEvicted() bool {
	select {
	case <-t.evicted:
		return true
	default:
		return false
	}
}

// Release 交还锁。
//
//   - 持有中：释放并唤醒后续请求，返回 nil
//   - 已被驱逐：空操作，返回 nil
//   - 排队中：标记放弃，返回 nil
//   - 再次调用：返回 [ErrNotHeld]
func (t *Ticket) Release() error {
	return t.mgr.release(t)
}

// Lock 是 [Manager.Request] 回调中可见的只读视图
type Lock struct {
	t *Ticket
}

func (l *Lock) Name() string     { return l.t.name }
func (l *Lock) Mode() Mode       { return l.t.mode }
func (l *Lock) TicketID() string { return l.t.id }

// Stolen 锁被其他请求 Steal 时关闭
func (l *Lock) Stolen() <-chan struct{} { return l.t.evicted }
