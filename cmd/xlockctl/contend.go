package main

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/omeyang/xlocks/pkg/observability/xlog"
	"github.com/omeyang/xlocks/pkg/util/xlockmgr"
)

func createContendCommand() *cli.Command {
	return &cli.Command{
		Name:  "contend",
		Usage: "多个 worker 争用同一名称，校验计数器等于 workers×iterations",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "workers", Aliases: []string{"w"}, Value: 8, Usage: "并发 worker 数"},
			&cli.IntFlag{Name: "iterations", Aliases: []string{"n"}, Value: 1, Usage: "每个 worker 的加锁次数"},
			&cli.StringFlag{Name: "name", Value: "R", Usage: "锁名称"},
			&cli.StringFlag{Name: "mode", Value: "exclusive", Usage: "锁模式 (exclusive/shared)"},
		},
		OnUsageError: onUsageError,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			mode, err := xlockmgr.ParseMode(cmd.String("mode"))
			if err != nil {
				return usageErrorf("%v", err)
			}
			workers, iterations := cmd.Int("workers"), cmd.Int("iterations")
			if workers <= 0 || iterations <= 0 {
				return usageErrorf("workers and iterations must be positive")
			}
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = e.cleanup() }()

			res, err := contend(ctx, e, cmd.String("name"), mode, workers, iterations)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.Root().Writer, "counter=%d expected=%d max_concurrent=%d\n",
				res.counter, res.expected, res.maxConcurrent)
			if res.counter != res.expected {
				fmt.Fprintln(cmd.Root().ErrWriter, "counter mismatch: lost updates detected")
				return &exitError{code: 1}
			}
			return nil
		},
	}
}

type contendResult struct {
	counter       int
	expected      int
	maxConcurrent int32
}

// contend 每次持锁时做一次非原子的读-让出-写。排他模式下丢失更新即说明互斥被破坏；
// 共享模式改用原子加，只统计最大并发持有数。
func contend(ctx context.Context, e *env, name string, mode xlockmgr.Mode, workers, iterations int) (contendResult, error) {
	mgr, err := xlockmgr.New(e.managerOptions()...)
	if err != nil {
		return contendResult{}, err
	}
	defer func() { _ = mgr.Close() }()

	var (
		counter    int
		shared     atomic.Int64
		inside     atomic.Int32
		maxInside  atomic.Int32
		clientBase = fmt.Sprintf("contend-%s", mode)
	)
	g, gctx := errgroup.WithContext(ctx)
	for w := range workers {
		clientID := fmt.Sprintf("%s-%d", clientBase, w)
		g.Go(func() error {
			for range iterations {
				err := mgr.Request(gctx, name, func(context.Context, *xlockmgr.Lock) error {
					n := inside.Add(1)
					for {
						cur := maxInside.Load()
						if n <= cur || maxInside.CompareAndSwap(cur, n) {
							break
						}
					}
					if mode == xlockmgr.Exclusive {
						v := counter
						runtime.Gosched()
						counter = v + 1
					} else {
						shared.Add(1)
					}
					inside.Add(-1)
					return nil
				}, xlockmgr.WithMode(mode), xlockmgr.WithClientID(clientID))
				if err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return contendResult{}, err
	}
	if mode == xlockmgr.Shared {
		counter = int(shared.Load())
	}
	e.logger.Info(ctx, "contend finished",
		xlockmgr.AttrName(name), xlockmgr.AttrMode(mode), xlog.Count(int64(counter)))
	return contendResult{counter: counter, expected: workers * iterations, maxConcurrent: maxInside.Load()}, nil
}
