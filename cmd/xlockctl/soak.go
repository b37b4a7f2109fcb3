package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync/atomic"
	"time"

	"github.com/urfave/cli/v3"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/omeyang/xlocks/pkg/config/xconf"
	"github.com/omeyang/xlocks/pkg/lifecycle/xrun"
	"github.com/omeyang/xlocks/pkg/observability/xlog"
	"github.com/omeyang/xlocks/pkg/util/xlockmgr"
)

// errSnapshotInvariant soak 周期检查发现快照不一致
var errSnapshotInvariant = errors.New("xlockctl: snapshot invariant violated")

func createSoakCommand() *cli.Command {
	return &cli.Command{
		Name:  "soak",
		Usage: "在多个名称上持续施加随机负载，周期性校验快照，结束时输出指标汇总",
		Flags: []cli.Flag{
			&cli.DurationFlag{Name: "duration", Aliases: []string{"d"}, Value: 10 * time.Second, Usage: "运行时长"},
			&cli.IntFlag{Name: "workers", Aliases: []string{"w"}, Usage: "并发 worker 数（覆盖配置）"},
			&cli.IntFlag{Name: "names", Usage: "名称数量（覆盖配置）"},
		},
		OnUsageError: onUsageError,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = e.cleanup() }()

			if cmd.IsSet("workers") {
				e.settings.Soak.Workers = cmd.Int("workers")
			}
			if cmd.IsSet("names") {
				e.settings.Soak.Names = cmd.Int("names")
			}
			if e.settings.Soak.Workers <= 0 || e.settings.Soak.Names <= 0 {
				return usageErrorf("workers and names must be positive")
			}
			if cmd.Duration("duration") <= 0 {
				return usageErrorf("duration must be positive")
			}
			return soak(ctx, e, cmd.Duration("duration"), cmd.Root().Writer)
		},
	}
}

type soakStats struct {
	granted     atomic.Int64
	stolen      atomic.Int64
	unavailable atomic.Int64
	evicted     atomic.Int64
	checks      atomic.Int64
}

func soak(ctx context.Context, e *env, duration time.Duration, w io.Writer) error {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = mp.Shutdown(context.Background()) }()

	mgr, err := xlockmgr.New(e.managerOptions(xlockmgr.WithMeterProvider(mp))...)
	if err != nil {
		return err
	}
	defer func() { _ = mgr.Close() }()

	st := &soakStats{}
	s := e.settings.Soak
	services := make([]func(context.Context) error, 0, s.Workers+2)
	for i := range s.Workers {
		services = append(services, soakWorker(mgr, s, i, st))
	}
	interval := s.StatsInterval
	if interval <= 0 {
		interval = time.Second
	}
	services = append(services, xrun.Ticker(interval, false, func(ctx context.Context) error {
		return checkSnapshot(ctx, mgr, e.logger, st)
	}))
	if e.cfg != nil {
		services = append(services, func(ctx context.Context) error {
			return xconf.Watch(ctx, e.cfg, 0, e.reloadLogLevel(ctx))
		})
	}

	runCtx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()
	err = xrun.RunWithOptions(runCtx, []xrun.Option{xrun.WithName("soak"), xrun.WithLogger(e.logger)}, services...)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, xrun.ErrSignal) {
		err = nil
	}
	if err != nil {
		return err
	}
	// 所有 worker 退出后不应残留任何名称
	if err := checkSnapshot(ctx, mgr, e.logger, st); err != nil {
		return err
	}
	if n := mgr.Len(); n != 0 {
		return fmt.Errorf("%w: %d names left after all workers exited", errSnapshotInvariant, n)
	}

	fmt.Fprintf(w, "granted=%d stolen=%d unavailable=%d evicted=%d checks=%d\n",
		st.granted.Load(), st.stolen.Load(), st.unavailable.Load(), st.evicted.Load(), st.checks.Load())
	return printMetricTotals(context.Background(), reader, w)
}

func soakWorker(mgr *xlockmgr.Manager, s SoakSettings, id int, st *soakStats) func(context.Context) error {
	return func(ctx context.Context) error {
		rng := rand.New(rand.NewPCG(uint64(id), uint64(time.Now().UnixNano())))
		clientID := fmt.Sprintf("soak-%d", id)
		for ctx.Err() == nil {
			name := fmt.Sprintf("soak-%d", rng.IntN(s.Names))
			opts := []xlockmgr.RequestOption{xlockmgr.WithClientID(clientID)}
			p := rng.Float64()
			if p >= s.StealRatio && rng.Float64() < s.SharedRatio {
				opts = append(opts, xlockmgr.AsShared())
			}

			var (
				t   *xlockmgr.Ticket
				err error
			)
			switch {
			case p < s.StealRatio:
				t, err = mgr.Submit(name, append(opts, xlockmgr.Steal())...)
				if err == nil {
					st.stolen.Add(1)
				}
			case p < s.StealRatio+s.IfAvailableRatio:
				t, err = mgr.TryAcquire(name, opts...)
			default:
				t, err = mgr.Acquire(ctx, name, opts...)
			}
			switch {
			case errors.Is(err, xlockmgr.ErrUnavailable), errors.Is(err, xlockmgr.ErrMaxNamesExceeded):
				st.unavailable.Add(1)
				continue
			case err != nil:
				if ctx.Err() != nil {
					return nil
				}
				return err
			}

			st.granted.Add(1)
			hold(ctx, rng, t, s.HoldMax)
			if t.IsEvicted() {
				st.evicted.Add(1)
			}
			if err := t.Release(); err != nil {
				return fmt.Errorf("release %s: %w", t.ID(), err)
			}
		}
		return nil
	}
}

// hold 持有一段随机时长，被驱逐或 ctx 结束时提前返回
func hold(ctx context.Context, rng *rand.Rand, t *xlockmgr.Ticket, limit time.Duration) {
	if limit <= 0 {
		return
	}
	timer := time.NewTimer(time.Duration(rng.Int64N(int64(limit))))
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-t.Evicted():
	case <-ctx.Done():
	}
}

// checkSnapshot 每个名称：持有排他锁时只有一个持有者；有等待者时必有持有者。
func checkSnapshot(ctx context.Context, mgr *xlockmgr.Manager, logger xlog.Logger, st *soakStats) error {
	snap, err := mgr.Query(ctx)
	if err != nil {
		return err
	}
	st.checks.Add(1)

	held := make(map[string][]xlockmgr.LockInfo)
	for _, h := range snap.Held {
		held[h.Name] = append(held[h.Name], h)
	}
	for name, hs := range held {
		if len(hs) > 1 && slices.ContainsFunc(hs, func(h xlockmgr.LockInfo) bool { return h.Mode == xlockmgr.Exclusive }) {
			return fmt.Errorf("%w: %q has %d holders including an exclusive one", errSnapshotInvariant, name, len(hs))
		}
	}
	for _, p := range snap.Pending {
		if len(held[p.Name]) == 0 {
			return fmt.Errorf("%w: %q has waiters but no holder", errSnapshotInvariant, p.Name)
		}
	}

	logger.Info(ctx, "soak stats",
		slog.Int("held", len(snap.Held)),
		slog.Int("pending", len(snap.Pending)),
		slog.Int("names", mgr.Len()),
		slog.Int64("granted", st.granted.Load()),
		slog.Int64("stolen", st.stolen.Load()),
		slog.Int64("unavailable", st.unavailable.Load()),
	)
	return nil
}

// reloadLogLevel 配置文件变更后只应用 log.level
func (e *env) reloadLogLevel(ctx context.Context) xconf.OnChange {
	return func(cfg xconf.Config, err error) {
		if err != nil {
			e.logger.Warn(ctx, "config reload failed", xlog.Err(err))
			return
		}
		raw := cfg.Client().String("log.level")
		level, err := xlog.ParseLevel(raw)
		if err != nil {
			e.logger.Warn(ctx, "ignoring invalid log level", slog.String("level", raw), xlog.Err(err))
			return
		}
		if level != e.logger.GetLevel() {
			e.logger.SetLevel(level)
			e.logger.Info(ctx, "log level reloaded", slog.String("level", level.String()))
		}
	}
}

// printMetricTotals 汇总 ManualReader 中的计数器与直方图，按名称排序输出
func printMetricTotals(ctx context.Context, reader *sdkmetric.ManualReader, w io.Writer) error {
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		return err
	}
	var lines []string
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				var total int64
				for _, dp := range data.DataPoints {
					total += dp.Value
				}
				lines = append(lines, fmt.Sprintf("%s total=%d", m.Name, total))
			case metricdata.Gauge[int64]:
				var total int64
				for _, dp := range data.DataPoints {
					total += dp.Value
				}
				lines = append(lines, fmt.Sprintf("%s value=%d", m.Name, total))
			case metricdata.Histogram[float64]:
				var (
					count uint64
					sum   float64
				)
				for _, dp := range data.DataPoints {
					count += dp.Count
					sum += dp.Sum
				}
				lines = append(lines, fmt.Sprintf("%s count=%d sum=%.6f", m.Name, count, sum))
			}
		}
	}
	slices.Sort(lines)
	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	return nil
}
