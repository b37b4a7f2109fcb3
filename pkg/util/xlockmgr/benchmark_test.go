package xlockmgr

import (
	"context"
	"strconv"
	"testing"
)

func BenchmarkSubmitRelease(b *testing.B) {
	m := newForTest(b)

	for b.Loop() {
		tk, err := m.Submit("key")
		if err != nil {
			b.Fatal(err)
		}
		_ = tk.Release()
	}
}

func BenchmarkSharedParallel(b *testing.B) {
	m := newForTest(b)

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			tk, err := m.Acquire(context.Background(), "key", AsShared())
			if err != nil {
				b.Fatal(err)
			}
			_ = tk.Release()
		}
	})
}

func BenchmarkExclusiveParallelDistinctNames(b *testing.B) {
	m := newForTest(b)
	names := make([]string, 1024)
	for i := range names {
		names[i] = "key:" + strconv.Itoa(i)
	}

	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			tk, err := m.Acquire(context.Background(), names[i%len(names)])
			if err != nil {
				b.Fatal(err)
			}
			_ = tk.Release()
			i++
		}
	})
}

func BenchmarkSnapshot(b *testing.B) {
	m := newForTest(b)
	for i := range 256 {
		if _, err := m.Submit("key:"+strconv.Itoa(i), AsShared()); err != nil {
			b.Fatal(err)
		}
	}

	for b.Loop() {
		_ = m.Snapshot()
	}
}
