package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch 监视配置文件变化，去抖后回调重新加载的配置
// 只热更新积分策略和信号阈值这类运行期可调项；密钥和监听地址改动需要重启。
func Watch(ctx context.Context, path string, onReload func(*Config)) error {
	if path == "" {
		return fmt.Errorf("path 不能为空")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("创建文件监控器失败: %w", err)
	}

	// 监听目录而不是文件本身：编辑器多以 rename+create 方式保存
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return fmt.Errorf("添加监控目录失败: %w", err)
	}

	go func() {
		defer watcher.Close()

		var debounce *time.Timer
		target := filepath.Clean(path)

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(500*time.Millisecond, func() {
					cfg, err := Load(path)
					if err != nil {
						slog.Error("配置热加载失败，保持旧配置", "error", err)
						return
					}
					slog.Info("配置热加载成功", "path", path)
					onReload(cfg)
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("配置监控错误", "error", err)
			}
		}
	}()

	slog.Info("配置热加载已启用", "path", path)
	return nil
}
