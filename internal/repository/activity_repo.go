package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/yuqie6/eco-signal/internal/schema"
	"gorm.io/gorm"
)

// ActivityRepository 活动记录仓储
type ActivityRepository struct {
	db *gorm.DB
}

// NewActivityRepository 创建活动记录仓储
func NewActivityRepository(db *gorm.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// Create 追加一条活动记录
// 类别不在这里校验，策略匹配在上游完成。
// 时间戳统一按 UTC 落库：SQLite 把时间存成带偏移的文本做字典序比较，
// 混了偏移的行月度窗口就切不准。
func (r *ActivityRepository) Create(ctx context.Context, userID int64, activityType string, points int) error {
	activity := schema.Activity{
		UserID:       userID,
		ActivityType: activityType,
		Points:       points,
		CreatedAt:    time.Now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&activity).Error; err != nil {
		return fmt.Errorf("写入活动记录失败: %w", err)
	}
	return nil
}

// RankingEntry 月度排行条目
type RankingEntry struct {
	UserName    string `json:"user_name"`
	TotalPoints int    `json:"total_points"`
	Rank        int    `json:"rank"`
}

// MonthlyRanking 当月积分排行
// 统计窗口按 loc 时区的自然月起点切，名次按扫描位置 1..N 赋值，
// 同分顺序由 SQL 排序的稳定任意序决定。
func (r *ActivityRepository) MonthlyRanking(ctx context.Context, limit int, loc *time.Location) ([]RankingEntry, error) {
	now := time.Now().In(loc)
	// 月初在排行时区切，比较值转回 UTC 和落库偏移保持一致
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc).UTC()

	var entries []RankingEntry
	err := r.db.WithContext(ctx).
		Table("activities").
		Select("users.user_name, SUM(activities.points) as total_points").
		Joins("JOIN users ON users.id = activities.user_id").
		Where("activities.created_at >= ?", monthStart).
		Group("users.user_name").
		Order("total_points DESC").
		Limit(limit).
		Scan(&entries).Error

	if err != nil {
		return nil, fmt.Errorf("查询月度排行失败: %w", err)
	}

	for i := range entries {
		entries[i].Rank = i + 1
	}

	return entries, nil
}

// HistoryEntry 用户活动历史条目
type HistoryEntry struct {
	ActivityType string    `json:"activity_type"`
	Points       int       `json:"points"`
	Timestamp    time.Time `json:"timestamp"`
}

// HistoryByUser 查询用户最近的活动历史，新的在前
func (r *ActivityRepository) HistoryByUser(ctx context.Context, userID int64, limit int) ([]HistoryEntry, error) {
	var entries []HistoryEntry
	err := r.db.WithContext(ctx).
		Model(&schema.Activity{}).
		Select("activity_type, points, created_at as timestamp").
		Where("user_id = ?", userID).
		Order("id DESC").
		Limit(limit).
		Scan(&entries).Error

	if err != nil {
		return nil, fmt.Errorf("查询用户活动历史失败: %w", err)
	}

	return entries, nil
}

// RecentEntry 全站最近活动条目
type RecentEntry struct {
	UserName     string    `json:"user_name"`
	ActivityType string    `json:"activity_type"`
	Points       int       `json:"points"`
	Timestamp    time.Time `json:"timestamp"`
}

// Recent 查询全站最近活动，新的在前
func (r *ActivityRepository) Recent(ctx context.Context, limit int) ([]RecentEntry, error) {
	var entries []RecentEntry
	err := r.db.WithContext(ctx).
		Table("activities").
		Select("users.user_name, activities.activity_type, activities.points, activities.created_at as timestamp").
		Joins("JOIN users ON users.id = activities.user_id").
		Order("activities.id DESC").
		Limit(limit).
		Scan(&entries).Error

	if err != nil {
		return nil, fmt.Errorf("查询最近活动失败: %w", err)
	}

	return entries, nil
}

// CountByUser 统计用户全部活动次数
func (r *ActivityRepository) CountByUser(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&schema.Activity{}).
		Where("user_id = ?", userID).
		Count(&count).Error

	if err != nil {
		return 0, fmt.Errorf("统计活动次数失败: %w", err)
	}
	return count, nil
}

// CountByUserAndType 统计用户指定类别的活动次数
func (r *ActivityRepository) CountByUserAndType(ctx context.Context, userID int64, activityType string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&schema.Activity{}).
		Where("user_id = ? AND activity_type = ?", userID, activityType).
		Count(&count).Error

	if err != nil {
		return 0, fmt.Errorf("统计活动次数失败: %w", err)
	}
	return count, nil
}
