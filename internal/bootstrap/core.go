package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/yuqie6/eco-signal/internal/eventbus"
	"github.com/yuqie6/eco-signal/internal/notion"
	"github.com/yuqie6/eco-signal/internal/pkg/config"
	"github.com/yuqie6/eco-signal/internal/repository"
	"github.com/yuqie6/eco-signal/internal/service"
	"github.com/yuqie6/eco-signal/internal/vision"
)

// Core 持有全部核心依赖
type Core struct {
	Cfg *config.Config
	DB  *repository.Database
	Hub *eventbus.Hub

	Repos struct {
		User     *repository.UserRepository
		Activity *repository.ActivityRepository
		Badge    *repository.BadgeRepository
		Page     *repository.PageRepository
	}

	Services struct {
		Badges *service.BadgeService
		Signal *service.SignalState
		Poller *service.Poller
	}

	Clients struct {
		Notion  *notion.Client
		Labeler vision.Labeler
	}
}

// NewCore 构建核心依赖（不启动后台循环）
func NewCore(ctx context.Context, cfgPath string) (*Core, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	config.SetupLogger(cfg.App.LogLevel)

	db, err := repository.NewDatabase(cfg.Storage.DBPath)
	if err != nil {
		return nil, err
	}

	c := &Core{Cfg: cfg, DB: db, Hub: eventbus.NewHub()}

	// Repos
	c.Repos.User = repository.NewUserRepository(db.DB)
	c.Repos.Activity = repository.NewActivityRepository(db.DB)
	c.Repos.Badge = repository.NewBadgeRepository(db.DB)
	c.Repos.Page = repository.NewPageRepository(db.DB)

	// Clients
	c.Clients.Notion = notion.NewClient(&notion.ClientConfig{
		APIKey:     cfg.Notion.APIKey,
		DatabaseID: cfg.Notion.DatabaseID,
		BaseURL:    cfg.Notion.BaseURL,
	})

	labeler, err := vision.NewGoogleLabeler(ctx, &vision.Config{
		CredentialsFile: cfg.Vision.CredentialsFile,
		MaxLabels:       cfg.Vision.MaxLabels,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("初始化 Vision 客户端失败: %w", err)
	}
	c.Clients.Labeler = labeler

	// Services
	c.Services.Badges = service.NewBadgeService(c.Repos.Badge, c.Repos.Activity)
	c.Services.Signal = service.NewSignalState(cfg.Signal)
	c.Services.Poller = service.NewPoller(
		c.Clients.Notion,
		c.Clients.Labeler,
		c.Repos.User,
		c.Repos.Activity,
		c.Repos.Page,
		c.Services.Badges,
		c.Services.Signal,
		c.Hub,
		service.NewPointPolicy(cfg.Signal.PointPolicy),
		service.PollerConfig{
			PageSize:           cfg.Notion.PageSize,
			PendingTimeoutSec:  cfg.Poll.PendingTimeoutSec,
			BootstrapPageLimit: cfg.Poll.BootstrapPageLimit,
		},
	)

	slog.Info("✅ 核心依赖初始化完成", "mode", modeName(cfg.Server.OnDemand))
	return c, nil
}

func modeName(onDemand bool) string {
	if onDemand {
		return "on_demand"
	}
	return "always_on"
}

// EnableConfigReload 开启配置热加载，只热更新策略与阈值
func (c *Core) EnableConfigReload(ctx context.Context, cfgPath string) {
	if cfgPath == "" {
		return
	}
	err := config.Watch(ctx, cfgPath, func(newCfg *config.Config) {
		c.Services.Signal.SetThresholds(newCfg.Signal)
		c.Services.Poller.SetPolicy(service.NewPointPolicy(newCfg.Signal.PointPolicy))
	})
	if err != nil {
		slog.Warn("配置热加载不可用", "error", err)
	}
}

// RankingLocation 月度排行所用时区
func (c *Core) RankingLocation() *time.Location {
	loc, err := time.LoadLocation(c.Cfg.Signal.RankingTimezone)
	if err != nil {
		slog.Warn("加载排行时区失败，回退到本地时区", "tz", c.Cfg.Signal.RankingTimezone, "error", err)
		return time.Local
	}
	return loc
}

// Close 关闭核心依赖资源
func (c *Core) Close() error {
	if c == nil {
		return nil
	}
	if c.Clients.Labeler != nil {
		_ = c.Clients.Labeler.Close()
	}
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}
