package xconf

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce 连续变更合并为一次重载的窗口
const DefaultDebounce = 100 * time.Millisecond

// OnChange 重载后的回调，err 非 nil 表示重载失败（旧配置仍然有效）
type OnChange func(cfg Config, err error)

// Watch 监视配置文件并在变更时 Reload，阻塞直到 ctx 结束，返回 nil。
//
// 监视的是文件所在目录：编辑器先写临时文件再 rename 的保存方式不会丢事件。
// debounce <= 0 时使用 [DefaultDebounce]。回调在 Watch 所在 goroutine 中串行执行。
func Watch(ctx context.Context, cfg Config, debounce time.Duration, fn OnChange) error {
	if cfg.Path() == "" {
		return ErrNotReloadable
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("xconf: create watcher: %w", err)
	}
	dir := filepath.Dir(cfg.Path())
	if err := w.Add(dir); err != nil {
		return errors.Join(fmt.Errorf("xconf: watch %s: %w", dir, err), w.Close())
	}

	filename := filepath.Base(cfg.Path())
	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return w.Close()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != filename {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				timer.Reset(debounce)
			}
		case werr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			if fn != nil {
				fn(cfg, fmt.Errorf("xconf: watch: %w", werr))
			}
		case <-timer.C:
			rerr := cfg.Reload()
			if fn != nil {
				fn(cfg, rerr)
			}
		}
	}
}
