package xlockmgr

import (
	"cmp"
	"slices"
)

// LockInfo 快照中的一条记录
type LockInfo struct {
	Name     string `json:"name"`
	Mode     Mode   `json:"mode"`
	ClientID string `json:"clientId,omitempty"`
	TicketID string `json:"ticketId"`

	seq uint64
}

// Snapshot 某一时刻所有名称的持有者与等待者，创建后不再变化。
// Held 与 Pending 均按请求到达顺序排列。
type Snapshot struct {
	Held    []LockInfo `json:"held"`
	Pending []LockInfo `json:"pending"`
}

// EntryState 快照条目的状态
type EntryState string

const (
	EntryHeld    EntryState = "held"
	EntryPending EntryState = "pending"
)

// Entry 扁平化的快照条目
type Entry struct {
	Name  string     `json:"name"`
	Mode  Mode       `json:"mode"`
	State EntryState `json:"state"`
}

// Entries 先列出持有者再列出等待者
func (s Snapshot) Entries() []Entry {
	out := make([]Entry, 0, len(s.Held)+len(s.Pending))
	for _, h := range s.Held {
		out = append(out, Entry{Name: h.Name, Mode: h.Mode, State: EntryHeld})
	}
	for _, p := range s.Pending {
		out = append(out, Entry{Name: p.Name, Mode: p.Mode, State: EntryPending})
	}
	return out
}

// HeldBy 返回指定名称的持有者
func (s Snapshot) HeldBy(name string) []LockInfo {
	return filterName(s.Held, name)
}

// PendingFor 返回指定名称的等待者
func (s Snapshot) PendingFor(name string) []LockInfo {
	return filterName(s.Pending, name)
}

func filterName(in []LockInfo, name string) []LockInfo {
	var out []LockInfo
	for _, li := range in {
		if li.Name == name {
			out = append(out, li)
		}
	}
	return out
}

// Snapshot 返回调度状态的一致快照。
// 期间按下标顺序持有全部分片锁，耗时与记录数成正比，不等待持有者的工作。
func (m *Manager) Snapshot() Snapshot {
	snap := Snapshot{Held: []LockInfo{}, Pending: []LockInfo{}}

	unlock := m.lockAll()
	for i := range m.shards {
		for _, r := range m.shards[i].records {
			for _, h := range r.holders {
				snap.Held = append(snap.Held, infoOf(h))
			}
			for _, q := range r.queue {
				snap.Pending = append(snap.Pending, infoOf(q))
			}
		}
	}
	unlock()

	bySeq := func(a, b LockInfo) int { return cmp.Compare(a.seq, b.seq) }
	slices.SortFunc(snap.Held, bySeq)
	slices.SortFunc(snap.Pending, bySeq)
	return snap
}

func infoOf(t *Ticket) LockInfo {
	return LockInfo{
		Name:     t.name,
		Mode:     t.mode,
		ClientID: t.clientID,
		TicketID: t.id,
		seq:      t.seq,
	}
}
