package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/yuqie6/eco-signal/internal/eventbus"
	"github.com/yuqie6/eco-signal/internal/notion"
)

// PollerConfig 轮询配置
type PollerConfig struct {
	PageSize           int // 每次向 Notion 拉取的最新页面数
	PendingTimeoutSec  int // 等待照片的超时秒数，超过则永久放弃
	BootstrapPageLimit int // 启动时标记存量页面的上限
}

// Poller 轮询调度器
// 每个 tick：先清扫等待队列，再拉取最新页面，未见过的页面按前置条件
// 分流（立即分析 / 入等待队列 / 永久跳过），最后重算信号灯。
// 任何一步失败只记日志不中断，下个 tick 无条件重来，没有退避。
type Poller struct {
	source     PageSource
	labeler    Labeler
	users      UserRepository
	activities ActivityRepository
	pages      PageRepository
	badges     *BadgeService
	signal     *SignalState
	hub        *eventbus.Hub
	now        Clock

	pageSize       int
	pendingTimeout time.Duration
	bootstrapLimit int

	mu        sync.RWMutex
	policy    *PointPolicy
	lastLevel string
}

// NewPoller 创建轮询调度器
func NewPoller(
	source PageSource,
	labeler Labeler,
	users UserRepository,
	activities ActivityRepository,
	pages PageRepository,
	badges *BadgeService,
	signal *SignalState,
	hub *eventbus.Hub,
	policy *PointPolicy,
	cfg PollerConfig,
) *Poller {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 20
	}
	if cfg.PendingTimeoutSec <= 0 {
		cfg.PendingTimeoutSec = 300
	}
	if cfg.BootstrapPageLimit <= 0 {
		cfg.BootstrapPageLimit = 100
	}

	return &Poller{
		source:         source,
		labeler:        labeler,
		users:          users,
		activities:     activities,
		pages:          pages,
		badges:         badges,
		signal:         signal,
		hub:            hub,
		policy:         policy,
		now:            time.Now,
		pageSize:       cfg.PageSize,
		pendingTimeout: time.Duration(cfg.PendingTimeoutSec) * time.Second,
		bootstrapLimit: cfg.BootstrapPageLimit,
	}
}

// SetClock 替换时间源（测试用）
func (p *Poller) SetClock(clock Clock) {
	if clock != nil {
		p.now = clock
	}
}

// SetPolicy 热替换积分策略
func (p *Poller) SetPolicy(policy *PointPolicy) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.policy = policy
}

func (p *Poller) currentPolicy() *PointPolicy {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.policy
}

// Bootstrap 启动时把存量页面直接记为已处理（不计分）
// 没有这一步，新部署会把整个历史版面都发一遍分。
func (p *Poller) Bootstrap(ctx context.Context) error {
	pages, err := p.source.QueryRecent(ctx, p.bootstrapLimit)
	if err != nil {
		return fmt.Errorf("拉取存量页面失败: %w", err)
	}

	processed, err := p.pages.ProcessedIDSet(ctx)
	if err != nil {
		return fmt.Errorf("加载已处理集合失败: %w", err)
	}

	marked := 0
	for _, page := range pages {
		if _, ok := processed[page.ID]; ok {
			continue
		}
		if err := p.pages.MarkProcessed(ctx, page.ID); err != nil {
			slog.Error("标记存量页面失败", "page_id", page.ID, "error", err)
			continue
		}
		marked++
	}

	slog.Info("✅ 存量页面已标记为已处理（跳过分析）", "count", marked)
	return nil
}

// RunOnce 执行一轮完整的轮询与重算，返回本轮终态处理的页面数
// 常驻模式由 ticker 驱动，按需模式由请求同步驱动，两边走同一条路。
func (p *Poller) RunOnce(ctx context.Context) (int, error) {
	processed := p.sweepPending(ctx)

	n, err := p.pollNew(ctx)
	processed += n

	// 不管拉取成败，信号灯都按当前时间重算一次
	p.recomputeAndAnnounce()

	if err != nil {
		return processed, err
	}

	slog.Debug("轮询完成", "processed", processed)
	return processed, nil
}

// pollNew 拉取最新页面并分流未见过的
func (p *Poller) pollNew(ctx context.Context) (int, error) {
	processedSet, err := p.pages.ProcessedIDSet(ctx)
	if err != nil {
		return 0, err
	}
	pendingSet, err := p.pages.PendingIDSet(ctx)
	if err != nil {
		return 0, err
	}

	pages, err := p.source.QueryRecent(ctx, p.pageSize)
	if err != nil {
		return 0, fmt.Errorf("查询 Notion 失败: %w", err)
	}

	count := 0
	for i := range pages {
		page := &pages[i]

		// 去重只信已处理/等待两个集合
		if _, ok := processedSet[page.ID]; ok {
			continue
		}
		if _, ok := pendingSet[page.ID]; ok {
			continue
		}

		if p.dispatch(ctx, page) {
			count++
		}
	}

	return count, nil
}

// dispatch 对一个新页面分流，返回是否进入了终态
func (p *Poller) dispatch(ctx context.Context, page *notion.Page) bool {
	switch {
	case page.HasPhoto() && page.HasCreator():
		slog.Info("✨ 发现新活动页面，开始分析", "page_id", page.ID)
		p.analyze(ctx, page)
		p.markProcessed(ctx, page.ID)
		return true

	case !page.HasPhoto():
		// 前置条件未满足：照片可能稍后才传完，先入等待队列
		if err := p.pages.AddPending(ctx, page.ID); err != nil {
			slog.Error("页面入等待队列失败", "page_id", page.ID, "error", err)
			return false
		}
		slog.Info("页面暂缺照片，进入等待队列", "page_id", page.ID)
		return false

	default:
		// 有照片但拿不到创建者：created_by 不会再变，直接永久跳过
		slog.Info("页面无有效创建者，标记跳过", "page_id", page.ID)
		p.markProcessed(ctx, page.ID)
		return true
	}
}

// sweepPending 清扫等待队列，返回进入终态的页面数
func (p *Poller) sweepPending(ctx context.Context) int {
	pending, err := p.pages.ListPending(ctx)
	if err != nil {
		slog.Error("加载等待队列失败", "error", err)
		return 0
	}

	now := p.now()
	count := 0
	for _, entry := range pending {
		page, err := p.source.FetchPage(ctx, entry.PageID)
		if err != nil {
			// 拉取失败留给下一轮，队列天然兜底
			slog.Error("复查等待页面失败", "page_id", entry.PageID, "error", err)
			continue
		}

		switch {
		case page.HasPhoto() && page.HasCreator():
			slog.Info("等待页面照片就位，开始分析", "page_id", entry.PageID, "retries", entry.RetryCount)
			p.analyze(ctx, page)
			p.finishPending(ctx, entry.PageID)
			count++

		case page.HasPhoto():
			// 照片到了但创建者无效：和 dispatch 同一条规则，立即永久跳过，
			// 不用陪着等超时
			slog.Info("等待页面无有效创建者，标记跳过", "page_id", entry.PageID)
			p.finishPending(ctx, entry.PageID)
			count++

		case now.Sub(entry.AddedAt) > p.pendingTimeout:
			// 超时永久放弃，之后绝不再碰这个页面
			slog.Warn("等待页面超时，永久跳过", "page_id", entry.PageID, "waited", now.Sub(entry.AddedAt))
			p.finishPending(ctx, entry.PageID)
			count++

		default:
			if err := p.pages.BumpRetry(ctx, entry.PageID); err != nil {
				slog.Error("更新重试计数失败", "page_id", entry.PageID, "error", err)
			}
		}
	}

	return count
}

// finishPending 等待页面进入终态：先记已处理，再出队
// 顺序不能反，先出队再标记的窗口里页面会短暂回到“未见过”。
func (p *Poller) finishPending(ctx context.Context, pageID string) {
	p.markProcessed(ctx, pageID)
	if err := p.pages.DeletePending(ctx, pageID); err != nil {
		slog.Error("移除等待页面失败", "page_id", pageID, "error", err)
	}
}

func (p *Poller) markProcessed(ctx context.Context, pageID string) {
	if err := p.pages.MarkProcessed(ctx, pageID); err != nil {
		slog.Error("标记已处理失败", "page_id", pageID, "error", err)
	}
}

// analyze 标签识别 → 策略匹配 → 记分发徽章
// 零命中也算“处理过”，失败只记日志，都不影响页面进入终态。
func (p *Poller) analyze(ctx context.Context, page *notion.Page) {
	labels, err := p.labeler.DetectLabels(ctx, page.PhotoURL)
	if err != nil {
		slog.Error("🚫 图片分析失败", "page_id", page.ID, "error", err)
		return
	}

	activity, points, ok := p.currentPolicy().Match(labels)
	if !ok {
		slog.Info("标签无策略命中，不计分", "page_id", page.ID, "labels", len(labels))
		return
	}

	userID, err := p.users.GetOrCreate(ctx, page.CreatorName)
	if err != nil {
		slog.Error("获取用户失败", "user", page.CreatorName, "error", err)
		return
	}

	if err := p.activities.Create(ctx, userID, activity, points); err != nil {
		slog.Error("写入活动记录失败", "user", page.CreatorName, "error", err)
		return
	}

	p.signal.Add(activity, points, p.now())
	slog.Info("🎯 活动计分", "user", page.CreatorName, "activity", activity, "points", points)

	p.hub.Publish(eventbus.Event{
		Type: "activity_recorded",
		Data: map[string]any{"user": page.CreatorName, "activity": activity, "points": points},
	})

	badges, err := p.badges.Evaluate(ctx, userID)
	if err != nil {
		slog.Error("徽章评估失败", "user", page.CreatorName, "error", err)
		return
	}
	if len(badges) > 0 {
		p.hub.Publish(eventbus.Event{
			Type: "badge_awarded",
			Data: map[string]any{"user": page.CreatorName, "badges": badges},
		})
	}
}

// Recompute 按当前时间重算信号灯，供常驻模式的秒级刷新循环调用
// 奖励是纯时间衰减，没有新页面也可能掉档，只靠轮询 tick 会漏播变化。
func (p *Poller) Recompute() {
	p.recomputeAndAnnounce()
}

// recomputeAndAnnounce 重算信号灯，档位变化时广播
func (p *Poller) recomputeAndAnnounce() {
	snap := p.signal.Recompute(p.now())

	p.mu.Lock()
	changed := snap.SignalLevel != p.lastLevel
	p.lastLevel = snap.SignalLevel
	p.mu.Unlock()

	if changed {
		p.hub.Publish(eventbus.Event{
			Type: "signal_changed",
			Data: map[string]any{"signal_level": snap.SignalLevel, "current_points": snap.CurrentPoints},
		})
	}
}
