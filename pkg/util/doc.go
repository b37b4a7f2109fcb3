// Package util 通用工具相关的子包。
//
// 子包列表：
//   - xlockmgr: 进程内具名锁调度器，支持共享/排他模式、FIFO 授予、IfAvailable 与 Steal
package util
