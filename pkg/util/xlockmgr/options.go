package xlockmgr

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/omeyang/xlocks/pkg/observability/xlog"
)

const (
	defaultShardCount = 32
	maxShardCount     = 1 << 16 // 65536

	// reservedPrefix 以此开头的名称保留给实现使用
	reservedPrefix = "-"
)

// Option Manager 配置选项
type Option func(*options)

type options struct {
	shardCount     int
	maxNames       int
	logger         xlog.Logger
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
	idGenerator    func() string
}

func defaultOptions() options {
	return options{
		shardCount:  defaultShardCount,
		idGenerator: uuid.NewString,
	}
}

// WithShardCount 设置名称表分片数，必须为 2 的幂且不超过 65536，默认 32。
func WithShardCount(n int) Option {
	return func(o *options) {
		o.shardCount = n
	}
}

// WithMaxNames 限制同时存在的名称数（持有者或等待者非空的名称）。
// 超限时 Submit 返回 [ErrMaxNamesExceeded]。n <= 0 表示不限制。
func WithMaxNames(n int) Option {
	if n < 0 {
		n = 0
	}
	return func(o *options) {
		o.maxNames = n
	}
}

// WithLogger 设置日志器，默认使用 xlog.Default()。
func WithLogger(l xlog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMeterProvider 启用 OpenTelemetry 指标，未设置时不采集。
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		o.meterProvider = mp
	}
}

// WithTracerProvider 设置 TracerProvider，未设置时使用 otel 全局 provider。
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tracerProvider = tp
	}
}

// WithIDGenerator 替换票据 ID 生成函数，默认 uuid.NewString。
func WithIDGenerator(fn func() string) Option {
	return func(o *options) {
		if fn != nil {
			o.idGenerator = fn
		}
	}
}

func (o *options) validate() error {
	sc := o.shardCount
	if sc <= 0 || sc > maxShardCount || sc&(sc-1) != 0 {
		return fmt.Errorf("%w: must be a positive power of 2 (max %d), got %d",
			ErrInvalidShardCount, maxShardCount, sc)
	}
	if o.logger == nil {
		o.logger = xlog.Default()
	}
	return nil
}

// =============================================================================
// 请求选项
// =============================================================================

// RequestOption 单次锁请求的选项
type RequestOption func(*request)

type request struct {
	mode        Mode
	ifAvailable bool
	steal       bool
	clientID    string
}

func newRequest(opts []RequestOption) request {
	r := request{mode: Exclusive}
	for _, opt := range opts {
		if opt != nil {
			opt(&r)
		}
	}
	return r
}

// WithMode 指定锁模式，默认 Exclusive。
func WithMode(m Mode) RequestOption {
	return func(r *request) {
		r.mode = m
	}
}

// AsShared 等价于 WithMode(Shared)。
func AsShared() RequestOption {
	return WithMode(Shared)
}

// IfAvailable 只在可以立即授予时获取，否则返回 [ErrUnavailable]，不排队。
func IfAvailable() RequestOption {
	return func(r *request) {
		r.ifAvailable = true
	}
}

// Steal 驱逐当前全部持有者并立即授予，只能用于 Exclusive。
// 被驱逐的票据 Evicted() 关闭，随后的 Release 为空操作。
func Steal() RequestOption {
	return func(r *request) {
		r.steal = true
	}
}

// WithClientID 标记请求方，出现在快照与日志中。
func WithClientID(id string) RequestOption {
	return func(r *request) {
		r.clientID = id
	}
}

// validate 只检查参数本身，不读取调度状态
func (r *request) validate(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty", ErrInvalidName)
	case strings.HasPrefix(name, reservedPrefix):
		return fmt.Errorf("%w: %q begins with %q", ErrInvalidName, name, reservedPrefix)
	case !r.mode.IsValid():
		return fmt.Errorf("%w: %d", ErrInvalidMode, uint8(r.mode))
	case r.ifAvailable && r.steal:
		return fmt.Errorf("%w: ifAvailable and steal cannot both be set", ErrNotSupported)
	case r.steal && r.mode != Exclusive:
		return fmt.Errorf("%w: steal requires exclusive mode", ErrNotSupported)
	}
	return nil
}
