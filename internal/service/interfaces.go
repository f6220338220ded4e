package service

import (
	"context"
	"time"

	"github.com/yuqie6/eco-signal/internal/notion"
	"github.com/yuqie6/eco-signal/internal/repository"
	"github.com/yuqie6/eco-signal/internal/schema"
)

// 仓储/外部依赖的最小接口集合（ISP）

type UserRepository interface {
	GetOrCreate(ctx context.Context, name string) (int64, error)
}

type ActivityRepository interface {
	Create(ctx context.Context, userID int64, activityType string, points int) error
	CountByUser(ctx context.Context, userID int64) (int64, error)
	CountByUserAndType(ctx context.Context, userID int64, activityType string) (int64, error)
}

type BadgeRepository interface {
	ListAll(ctx context.Context) ([]schema.Badge, error)
	AwardedIDs(ctx context.Context, userID int64) (map[int64]struct{}, error)
	CreateAward(ctx context.Context, userID, badgeID int64) (bool, error)
}

type PageRepository interface {
	AddPending(ctx context.Context, pageID string) error
	ListPending(ctx context.Context) ([]schema.PendingPage, error)
	DeletePending(ctx context.Context, pageID string) error
	BumpRetry(ctx context.Context, pageID string) error
	MarkProcessed(ctx context.Context, pageID string) error
	ProcessedIDSet(ctx context.Context) (map[string]struct{}, error)
	PendingIDSet(ctx context.Context) (map[string]struct{}, error)
}

// PageSource 外部记录源（Notion）
type PageSource interface {
	QueryRecent(ctx context.Context, limit int) ([]notion.Page, error)
	FetchPage(ctx context.Context, pageID string) (*notion.Page, error)
}

// Labeler 图片标签识别（Google Vision）
type Labeler interface {
	DetectLabels(ctx context.Context, imageURL string) ([]string, error)
}

// Clock 时间源，测试里可替换
type Clock func() time.Time

var _ ActivityRepository = (*repository.ActivityRepository)(nil)
var _ UserRepository = (*repository.UserRepository)(nil)
var _ BadgeRepository = (*repository.BadgeRepository)(nil)
var _ PageRepository = (*repository.PageRepository)(nil)
