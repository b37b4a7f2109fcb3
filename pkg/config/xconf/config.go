package xconf

import "github.com/knadh/koanf/v2"

// Format 配置文件格式
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// Config 配置实例。基础读取直接使用 Client() 返回的 koanf。
type Config interface {
	// Client 返回当前 koanf 实例，Reload 后旧实例不再更新
	Client() *koanf.Koanf

	// Unmarshal 将 path 下的配置解到 target，path 为空表示整个配置。
	// target 中已有的字段值在配置缺省时保留，可用作默认值。
	Unmarshal(path string, target any) error

	// Reload 重新读取文件，解析失败时保留旧配置
	Reload() error

	// Path 文件路径，NewFromBytes 创建的实例为空
	Path() string

	Format() Format
}
