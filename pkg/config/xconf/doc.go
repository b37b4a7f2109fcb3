// Package xconf 基于 koanf 的配置加载。
//
// 支持 YAML（.yaml/.yml）与 JSON（.json）。[New] 从文件加载，[NewFromBytes]
// 从内存加载，[Load] 加载并整体反序列化到结构体。结构体标签为 koanf。
//
// 不负责必选字段校验与默认值：调用方先填好默认值再 Unmarshal，缺省字段保持原值。
//
// # 热重载
//
// [Watch] 基于 fsnotify 监视配置所在目录，变更经防抖后调用 Reload 与回调。
// Watch 阻塞到 ctx 结束，可直接作为 xrun 服务运行：
//
//	g.Go(func(ctx context.Context) error {
//		return xconf.Watch(ctx, cfg, 0, func(c xconf.Config, err error) { ... })
//	})
//
// Reload 解析失败时保留旧配置。
package xconf
