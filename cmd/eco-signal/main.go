package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yuqie6/eco-signal/internal/bootstrap"
	"github.com/yuqie6/eco-signal/internal/httpapi"
	"github.com/yuqie6/eco-signal/internal/pkg/buildinfo"
	"github.com/yuqie6/eco-signal/internal/pkg/config"
)

func main() {
	cfgFlag := flag.String("config", "", "配置文件路径（留空则使用可执行文件旁的 config/config.yaml）")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfgPath := *cfgFlag
	if cfgPath == "" {
		if p, err := config.DefaultConfigPath(); err == nil {
			cfgPath = p
		}
	}

	// 首次启动写出配置骨架，密钥留给运维填
	if cfgPath != "" {
		if _, err := os.Stat(cfgPath); errors.Is(err, os.ErrNotExist) {
			if werr := config.WriteSkeleton(cfgPath); werr == nil {
				slog.Info("已写出配置骨架", "path", cfgPath)
			}
		}
	}

	core, err := bootstrap.NewCore(ctx, cfgPath)
	if err != nil {
		slog.Error("启动失败", "error", err)
		os.Exit(1)
	}
	defer core.Close()

	slog.Info("Eco Signal 启动中...",
		"name", core.Cfg.App.Name,
		"version", buildinfo.Version,
		"commit", buildinfo.Commit,
	)

	// 启动时把存量页面标记为已处理，新部署不给历史版面发分
	if err := core.Services.Poller.Bootstrap(ctx); err != nil {
		slog.Error("存量页面标记失败，历史页面可能在下一轮被计分", "error", err)
	}

	if !core.Cfg.Server.OnDemand {
		core.EnableConfigReload(ctx, cfgPath)
		startLoops(ctx, core)
	} else {
		slog.Info("按需模式：不启动后台循环，由请求与 cron 驱动轮询")
	}

	srv, err := httpapi.Start(ctx, core, httpapi.Options{ListenAddr: core.Cfg.Server.ListenAddr})
	if err != nil {
		slog.Error("启动 HTTP 服务失败", "error", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	slog.Info("收到系统退出信号，正在关闭...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	_ = srv.Shutdown(shutdownCtx)
	shutdownCancel()

	slog.Info("Eco Signal 已退出")
}

// startLoops 常驻模式的两条后台循环：
// 轮询循环按配置间隔拉 Notion；刷新循环每秒重算信号灯，保证奖励
// 过期引起的掉档能及时广播，而不是等到下一个轮询 tick。
func startLoops(ctx context.Context, core *bootstrap.Core) {
	pollInterval := time.Duration(core.Cfg.Poll.CheckIntervalSec) * time.Second

	go func() {
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := core.Services.Poller.RunOnce(ctx); err != nil {
					slog.Error("轮询失败，下一轮重试", "error", err)
				}
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				core.Services.Poller.Recompute()
			}
		}
	}()

	slog.Info("后台循环已启动", "poll_interval", pollInterval)
}
