package xlockmgr

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

// shard 名称表的一个分片，mu 同时保护其中所有记录与票据的可变字段
type shard struct {
	mu      sync.Mutex
	records map[string]*lockRecord
}

func newShards(n int) []shard {
	shards := make([]shard, n)
	for i := range shards {
		shards[i].records = make(map[string]*lockRecord)
	}
	return shards
}

func (m *Manager) shardFor(name string) *shard {
	return &m.shards[xxhash.Sum64String(name)&m.mask]
}

// getOrCreate 需持有 s.mu。新建记录时占用一个名称配额。
func (m *Manager) getOrCreate(s *shard, name string) (*lockRecord, error) {
	if r, ok := s.records[name]; ok {
		return r, nil
	}
	if m.opts.maxNames > 0 {
		// CAS 保证跨分片并发时不突破上限
		for {
			cur := m.nameCount.Load()
			if cur >= int64(m.opts.maxNames) {
				return nil, ErrMaxNamesExceeded
			}
			if m.nameCount.CompareAndSwap(cur, cur+1) {
				break
			}
		}
	} else {
		m.nameCount.Add(1)
	}
	r := &lockRecord{name: name}
	s.records[name] = r
	return r, nil
}

// collect 需持有 s.mu。持有者与队列都为空的记录从表中移除。
func (m *Manager) collect(s *shard, r *lockRecord) {
	if !r.empty() {
		return
	}
	if cur, ok := s.records[r.name]; ok && cur == r {
		delete(s.records, r.name)
		m.nameCount.Add(-1)
	}
}

// lockAll 按分片下标顺序加锁，返回的函数按逆序解锁。
// 单个操作只持有一个分片锁，固定顺序保证不会与之死锁。
func (m *Manager) lockAll() (unlock func()) {
	for i := range m.shards {
		m.shards[i].mu.Lock()
	}
	return func() {
		for i := len(m.shards) - 1; i >= 0; i-- {
			m.shards[i].mu.Unlock()
		}
	}
}
