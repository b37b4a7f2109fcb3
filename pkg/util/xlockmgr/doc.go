// Package xlockmgr 提供进程内的具名锁调度，支持共享/独占两种模式。
//
// 调用方按名称请求锁，在持有期间完成工作，结束后释放。同一名称上：
//
//   - 至多一个 Exclusive 持有者，且不与 Shared 并存
//   - 多个 Shared 可同时持有
//   - 请求按到达顺序授予，Shared 不会越过更早排队的 Exclusive
//
// # 请求策略
//
//	选项           行为
//	──────────────────────────────────────────────────────────
//	默认           排队等待，按 FIFO 授予
//	IfAvailable    只在可立即授予且不越过更早冲突请求时授予，否则 ErrUnavailable
//	Steal          驱逐全部持有者并立即授予（仅 Exclusive）
//
// 名称以 '-' 开头、IfAvailable 与 Steal 同时设置、Steal 搭配 Shared
// 都会在调度前返回 [ErrNotSupported]。
//
// # 使用
//
//	m, _ := xlockmgr.New()
//	defer m.Close()
//
//	err := m.Request(ctx, "inventory", func(ctx context.Context, l *xlockmgr.Lock) error {
//		return update(ctx)
//	})
//
// 更底层的 [Manager.Submit] 返回 [Ticket]：Granted() 在授予时关闭，
// Release 只生效一次。[Manager.Acquire] 在 Submit 之上增加 ctx 等待；
// 取消时票据被放弃而不是移出队列，轮到它时立即释放。
//
// # 驱逐
//
// 被 Steal 驱逐的持有者不会收到错误，Evicted()/Stolen() 通道关闭，
// 之后的 Release 为空操作。持有者的工作不会被中断。
//
// # 快照
//
// [Manager.Snapshot] 在持有全部分片锁的一瞬间复制状态，结果不再变化。
// 持有者与等待者都为空的名称会从表中移除，不出现在快照里。
//
// # 可观测性
//
// WithLogger 接入 xlog；WithMeterProvider 启用 xlockmgr.* 指标；
// Acquire、Request、Query 创建 OpenTelemetry span。
package xlockmgr
