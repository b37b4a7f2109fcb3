// Package xlog 基于 log/slog 的结构化日志。
//
// # 创建 Logger
//
//	logger, cleanup, err := xlog.New().
//		SetLevelString("debug").
//		SetFormat("json").
//		SetRotation(xlog.Rotation{Filename: "/var/log/xlockctl.log", MaxSizeMB: 100}).
//		Build()
//	defer cleanup()
//
// Builder 采用 first-error-wins，Build 返回第一个配置错误。
//
// # Context
//
// 所有方法首参数为 ctx。默认启用的 [EnrichHandler] 从 ctx 中的 OpenTelemetry
// span 注入 trace_id 与 span_id。
//
// # 级别
//
// [Level] 实现 TextMarshaler/TextUnmarshaler，可直接出现在配置结构体中。
// Build 返回的 [LoggerWithLevel] 支持运行时 SetLevel，派生 logger 共享级别。
//
// # 全局 Logger
//
// [Default]、[SetDefault] 与包级 [Debug]/[Info]/[Warn]/[Error]/[Stack]
// 面向命令行工具，服务代码应显式注入 [Logger]。
package xlog
