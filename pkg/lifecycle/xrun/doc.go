// Package xrun 基于 errgroup + context 的进程生命周期管理。
//
// [Group] 运行多个后台任务，任一任务出错或 [Group.Cancel] 时全部取消。
// [Run] / [RunWithOptions] 额外监听退出信号，收到信号时返回 *[SignalError]，
// 可用 errors.Is(err, ErrSignal) 判断。
//
// [Ticker] 把周期任务包装成可交给 Group 的函数：
//
//	err := xrun.Run(ctx,
//	    runWorkers,
//	    xrun.Ticker(time.Second, false, printStats),
//	)
//	if errors.Is(err, xrun.ErrSignal) {
//	    // 正常退出
//	}
package xrun
