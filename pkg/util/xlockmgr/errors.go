package xlockmgr

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotSupported 表示请求参数组合不被支持，在进入调度前返回。
	//   - 名称以 '-' 开头（保留前缀）
	//   - IfAvailable 与 Steal 同时设置
	//   - Steal 搭配非 Exclusive 模式
	ErrNotSupported = errors.New("xlockmgr: not supported")

	// ErrInvalidName 名称为空或使用保留前缀，满足 errors.Is(err, ErrNotSupported)。
	ErrInvalidName = fmt.Errorf("%w: invalid name", ErrNotSupported)

	// ErrInvalidMode 未知的锁模式，满足 errors.Is(err, ErrNotSupported)。
	ErrInvalidMode = fmt.Errorf("%w: invalid mode", ErrNotSupported)

	// ErrUnavailable IfAvailable 请求无法立即授予。
	ErrUnavailable = errors.New("xlockmgr: lock unavailable")

	// ErrInvariantViolation 调度状态被破坏（两个独占持有者、模式混合等）。
	// 属于程序错误，发生时记录堆栈并 panic。
	ErrInvariantViolation = errors.New("xlockmgr: invariant violation")

	// ErrNotHeld Release 第二次及后续调用时返回。
	ErrNotHeld = errors.New("xlockmgr: lock not held")

	// ErrClosed Manager 已关闭。
	ErrClosed = errors.New("xlockmgr: closed")

	// ErrMaxNamesExceeded 活跃名称数达到 WithMaxNames 上限。
	ErrMaxNamesExceeded = errors.New("xlockmgr: max names exceeded")

	// ErrInvalidShardCount 分片数不是 2 的幂或超出上限。
	ErrInvalidShardCount = errors.New("xlockmgr: invalid shard count")
)

// IsNotSupported 判断是否为参数校验错误
func IsNotSupported(err error) bool {
	return errors.Is(err, ErrNotSupported)
}

// IsUnavailable 判断是否为 IfAvailable 未能立即获取
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// 错误分类，用于指标标签
const (
	ErrClassNotSupported = "not_supported"
	ErrClassUnavailable  = "unavailable"
	ErrClassClosed       = "closed"
	ErrClassMaxNames     = "max_names"
	ErrClassNotHeld      = "not_held"
	ErrClassTimeout      = "timeout"
	ErrClassCanceled     = "canceled"
	ErrClassInternal     = "internal"
)

// ClassifyError 将错误映射为低基数字符串，nil 返回空串
func ClassifyError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotSupported):
		return ErrClassNotSupported
	case errors.Is(err, ErrUnavailable):
		return ErrClassUnavailable
	case errors.Is(err, ErrClosed):
		return ErrClassClosed
	case errors.Is(err, ErrMaxNamesExceeded):
		return ErrClassMaxNames
	case errors.Is(err, ErrNotHeld):
		return ErrClassNotHeld
	case errors.Is(err, context.DeadlineExceeded):
		return ErrClassTimeout
	case errors.Is(err, context.Canceled):
		return ErrClassCanceled
	default:
		return ErrClassInternal
	}
}
