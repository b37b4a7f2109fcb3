// Package observability 可观测性相关的子包。
//
// 子包列表：
//   - xlog: 结构化日志，基于 log/slog，支持动态级别、文件轮转与 trace_id/span_id 注入
package observability
