package xlockmgr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"

	"github.com/omeyang/xlocks/pkg/observability/xlog"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newForTest(t testing.TB, opts ...Option) *Manager {
	t.Helper()
	logger, _, err := xlog.New().SetOutput(io.Discard).SetLevel(xlog.LevelDebug).Build()
	require.NoError(t, err)
	m, err := New(append([]Option{WithLogger(logger)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func granted(tk *Ticket) bool {
	select {
	case <-tk.Granted():
		return true
	default:
		return false
	}
}

func TestSubmit_ExclusiveMutualExclusion(t *testing.T) {
	m := newForTest(t)

	t1, err := m.Submit("R")
	require.NoError(t, err)
	assert.True(t, granted(t1))
	assert.Equal(t, Exclusive, t1.Mode())
	assert.NotEmpty(t, t1.ID())

	t2, err := m.Submit("R")
	require.NoError(t, err)
	assert.False(t, granted(t2))
	assert.Equal(t, StatePending, t2.State())

	require.NoError(t, t1.Release())
	assert.True(t, granted(t2))
	assert.Equal(t, StateGranted, t2.State())
	assert.Equal(t, StateReleased, t1.State())

	require.NoError(t, t2.Release())
}

func TestSubmit_SharedConcurrency(t *testing.T) {
	m := newForTest(t)

	t1, err := m.Submit("R", AsShared())
	require.NoError(t, err)
	t2, err := m.Submit("R", WithMode(Shared))
	require.NoError(t, err)

	assert.True(t, granted(t1))
	assert.True(t, granted(t2))
	assert.Len(t, m.Snapshot().HeldBy("R"), 2)

	require.NoError(t, t1.Release())
	require.NoError(t, t2.Release())
}

func TestSubmit_FIFOFairness(t *testing.T) {
	m := newForTest(t)

	t1, err := m.Submit("R")
	require.NoError(t, err)
	t2, err := m.Submit("R", AsShared())
	require.NoError(t, err)
	t3, err := m.Submit("R", AsShared())
	require.NoError(t, err)

	assert.False(t, granted(t2))
	assert.False(t, granted(t3))

	require.NoError(t, t1.Release())
	assert.True(t, granted(t2))
	assert.True(t, granted(t3))

	require.NoError(t, t2.Release())
	require.NoError(t, t3.Release())
}

func TestSubmit_SharedDoesNotOvertakeQueuedExclusive(t *testing.T) {
	m := newForTest(t)

	s1, err := m.Submit("R", AsShared())
	require.NoError(t, err)
	e, err := m.Submit("R")
	require.NoError(t, err)
	s2, err := m.Submit("R", AsShared())
	require.NoError(t, err)

	assert.False(t, granted(e))
	assert.False(t, granted(s2), "shared must wait behind the queued exclusive")

	require.NoError(t, s1.Release())
	assert.True(t, granted(e))
	assert.False(t, granted(s2))

	require.NoError(t, e.Release())
	assert.True(t, granted(s2))
	require.NoError(t, s2.Release())
}

func TestSubmit_IfAvailable(t *testing.T) {
	m := newForTest(t)

	h, err := m.Submit("R")
	require.NoError(t, err)

	before := m.Snapshot()
	tk, err := m.Submit("R", IfAvailable())
	assert.Nil(t, tk)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.True(t, IsUnavailable(err))
	assert.Equal(t, before, m.Snapshot(), "rejected ifAvailable must leave no trace")

	tk, err = m.TryAcquire("other")
	require.NoError(t, err)
	assert.True(t, granted(tk))

	require.NoError(t, h.Release())
	require.NoError(t, tk.Release())
}

func TestSubmit_IfAvailableRespectsQueue(t *testing.T) {
	m := newForTest(t)

	s1, err := m.Submit("R", AsShared())
	require.NoError(t, err)
	e, err := m.Submit("R")
	require.NoError(t, err)

	_, err = m.TryAcquire("R", AsShared())
	assert.ErrorIs(t, err, ErrUnavailable)

	require.NoError(t, s1.Release())
	require.NoError(t, e.Release())
}

func TestSubmit_Steal(t *testing.T) {
	m := newForTest(t)

	h1, err := m.Submit("R", WithClientID("h1"))
	require.NoError(t, err)
	q, err := m.Submit("R", WithClientID("q"))
	require.NoError(t, err)

	s, err := m.Submit("R", Steal(), WithClientID("s"))
	require.NoError(t, err)
	assert.True(t, granted(s))

	select {
	case <-h1.Evicted():
	default:
		t.Fatal("evicted holder must be signalled")
	}
	assert.Equal(t, StateReleased, h1.State())

	snap := m.Snapshot()
	require.Len(t, snap.Held, 1)
	assert.Equal(t, "s", snap.Held[0].ClientID)
	require.Len(t, snap.Pending, 1)
	assert.Equal(t, "q", snap.Pending[0].ClientID)

	// 被驱逐者的 Release 不影响新持有者
	require.NoError(t, h1.Release())
	assert.ErrorIs(t, h1.Release(), ErrNotHeld)
	assert.Equal(t, StateGranted, s.State())
	assert.False(t, granted(q))

	require.NoError(t, s.Release())
	assert.True(t, granted(q))
	require.NoError(t, q.Release())
	assert.Zero(t, m.Len())
}

func TestSubmit_StealOnEmptyName(t *testing.T) {
	m := newForTest(t)

	s, err := m.Submit("R", Steal())
	require.NoError(t, err)
	assert.True(t, granted(s))
	require.NoError(t, s.Release())
}

func TestSubmit_Validation(t *testing.T) {
	m := newForTest(t)

	tests := []struct {
		name  string
		lock  string
		opts  []RequestOption
		match error
	}{
		{"reserved prefix", "-internal", nil, ErrInvalidName},
		{"empty name", "", nil, ErrInvalidName},
		{"ifAvailable and steal", "R", []RequestOption{IfAvailable(), Steal()}, ErrNotSupported},
		{"steal shared", "R", []RequestOption{Steal(), AsShared()}, ErrNotSupported},
		{"unknown mode", "R", []RequestOption{WithMode(Mode(9))}, ErrInvalidMode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tk, err := m.Submit(tt.lock, tt.opts...)
			assert.Nil(t, tk)
			require.ErrorIs(t, err, tt.match)
			assert.True(t, IsNotSupported(err))
			assert.Zero(t, m.Len())
		})
	}
}

func TestRelease_OneShot(t *testing.T) {
	m := newForTest(t)

	tk, err := m.Submit("R")
	require.NoError(t, err)

	assert.NoError(t, tk.Release())
	assert.ErrorIs(t, tk.Release(), ErrNotHeld)
	assert.ErrorIs(t, tk.Release(), ErrNotHeld)
}

func TestRelease_GarbageCollectsName(t *testing.T) {
	m := newForTest(t)

	tk, err := m.Submit("R", AsShared())
	require.NoError(t, err)
	assert.Equal(t, []string{"R"}, m.Names())
	assert.True(t, m.HasPending())

	require.NoError(t, tk.Release())
	assert.Zero(t, m.Len())
	assert.False(t, m.HasPending())
	assert.Empty(t, m.Names())
	assert.Empty(t, m.Snapshot().Entries())
}

func TestRelease_PendingIsAbandoned(t *testing.T) {
	m := newForTest(t)

	h, err := m.Submit("R")
	require.NoError(t, err)
	p, err := m.Submit("R")
	require.NoError(t, err)

	require.NoError(t, p.Release())
	assert.ErrorIs(t, p.Release(), ErrNotHeld)
	assert.Len(t, m.Snapshot().Pending, 1, "abandoned ticket keeps its queue position")

	require.NoError(t, h.Release())
	assert.Equal(t, StateReleased, p.State())
	assert.True(t, granted(p))
	assert.Zero(t, m.Len())
}

func TestMutate_InvariantViolationPanics(t *testing.T) {
	m := newForTest(t)

	s := m.shardFor("R")
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := m.getOrCreate(s, "R")
	require.NoError(t, err)

	var got any
	func() {
		defer func() { got = recover() }()
		m.mutate(s, r, func() {
			var tr transition
			r.grant(newTestTicket("e1", Exclusive), &tr)
			r.grant(newTestTicket("e2", Exclusive), &tr)
		})
	}()
	err, ok := got.(error)
	require.True(t, ok, "panic value should be an error, got %v", got)
	assert.ErrorIs(t, err, ErrInvariantViolation)
}

func TestClose(t *testing.T) {
	m := newForTest(t)

	h, err := m.Submit("R")
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := m.Acquire(context.Background(), "R")
		errCh <- err
	}()
	require.Eventually(t, func() bool { return len(m.Snapshot().Pending) == 1 }, time.Second, time.Millisecond)

	require.NoError(t, m.Close())
	assert.ErrorIs(t, <-errCh, ErrClosed)
	assert.ErrorIs(t, m.Close(), ErrClosed)

	_, err = m.Submit("R")
	assert.ErrorIs(t, err, ErrClosed)
	_, err = m.TryAcquire("other")
	assert.ErrorIs(t, err, ErrClosed)

	// 已持有的锁仍可释放，被放弃的等待者随之回收
	assert.NoError(t, h.Release())
	assert.Zero(t, m.Len())
}

func TestMaxNames(t *testing.T) {
	m := newForTest(t, WithMaxNames(2))

	a, err := m.Submit("a")
	require.NoError(t, err)
	b, err := m.Submit("b")
	require.NoError(t, err)

	_, err = m.Submit("c")
	assert.ErrorIs(t, err, ErrMaxNamesExceeded)

	// 已存在的名称不占用新配额
	waiting, err := m.Submit("a")
	require.NoError(t, err)

	require.NoError(t, b.Release())
	c, err := m.Submit("c")
	require.NoError(t, err)

	require.NoError(t, a.Release())
	require.NoError(t, waiting.Release())
	require.NoError(t, c.Release())
	assert.Zero(t, m.Len())
}

func TestNew_ShardCount(t *testing.T) {
	m, err := New(WithShardCount(64), WithLogger(xlog.Default()))
	require.NoError(t, err)
	assert.Len(t, m.shards, 64)
	require.NoError(t, m.Close())

	for _, n := range []int{0, -1, 3, maxShardCount * 2} {
		_, err := New(WithShardCount(n))
		assert.ErrorIs(t, err, ErrInvalidShardCount, "shard count %d", n)
	}
}

func TestWithIDGenerator(t *testing.T) {
	var n atomic.Int64
	m := newForTest(t, WithIDGenerator(func() string {
		return "t-" + strconv.FormatInt(n.Add(1), 10)
	}))

	tk, err := m.Submit("R")
	require.NoError(t, err)
	assert.Equal(t, "t-1", tk.ID())
	assert.Equal(t, "t-1", m.Snapshot().Held[0].TicketID)
	require.NoError(t, tk.Release())
}

// 8 个 goroutine 各自在独占锁内对共享计数器做非原子的读-改-写
func TestEndToEnd_ExclusiveCounter(t *testing.T) {
	m := newForTest(t)

	const workers = 8
	counter := 0
	var g errgroup.Group
	for i := range workers {
		g.Go(func() error {
			return m.Request(context.Background(), "R", func(ctx context.Context, l *Lock) error {
				v := counter
				time.Sleep(time.Millisecond)
				counter = v + 1
				return nil
			}, WithClientID("worker-"+strconv.Itoa(i)))
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, workers, counter)
	assert.Zero(t, m.Len())
}

func TestConcurrent_ModesNeverConflict(t *testing.T) {
	m := newForTest(t, WithShardCount(4))

	names := []string{"a", "b", "c"}
	type state struct {
		exclusive atomic.Int32
		shared    atomic.Int32
	}
	states := map[string]*state{}
	for _, n := range names {
		states[n] = &state{}
	}
	var violations atomic.Int32

	var wg sync.WaitGroup
	for i := range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rng := rand.New(rand.NewPCG(uint64(i), 7))
			for range 100 {
				name := names[rng.IntN(len(names))]
				st := states[name]
				mode := Exclusive
				if rng.IntN(3) > 0 {
					mode = Shared
				}
				err := m.Request(context.Background(), name, func(context.Context, *Lock) error {
					if mode == Exclusive {
						if st.exclusive.Add(1) != 1 || st.shared.Load() != 0 {
							violations.Add(1)
						}
						st.exclusive.Add(-1)
					} else {
						st.shared.Add(1)
						if st.exclusive.Load() != 0 {
							violations.Add(1)
						}
						st.shared.Add(-1)
					}
					return nil
				}, WithMode(mode))
				if err != nil {
					violations.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, violations.Load())
	assert.Zero(t, m.Len())
	held, pending := m.gauges()
	assert.Zero(t, held)
	assert.Zero(t, pending)
}

func TestConcurrent_StealAndRelease(t *testing.T) {
	m := newForTest(t)

	var g errgroup.Group
	for i := range 16 {
		g.Go(func() error {
			for range 50 {
				opts := []RequestOption{}
				if i%4 == 0 {
					opts = append(opts, Steal())
				}
				tk, err := m.Acquire(context.Background(), "R", opts...)
				if err != nil {
					return err
				}
				if err := tk.Release(); err != nil {
					return err
				}
				if err := tk.Release(); !errors.Is(err, ErrNotHeld) {
					return fmt.Errorf("second release: %v", err)
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Zero(t, m.Len())
}
