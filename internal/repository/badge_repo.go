package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/yuqie6/eco-signal/internal/schema"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BadgeRepository 徽章仓储
type BadgeRepository struct {
	db *gorm.DB
}

// NewBadgeRepository 创建徽章仓储
func NewBadgeRepository(db *gorm.DB) *BadgeRepository {
	return &BadgeRepository{db: db}
}

// ListAll 返回全部徽章定义
func (r *BadgeRepository) ListAll(ctx context.Context) ([]schema.Badge, error) {
	var badges []schema.Badge
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&badges).Error; err != nil {
		return nil, fmt.Errorf("查询徽章定义失败: %w", err)
	}
	return badges, nil
}

// AwardedIDs 返回用户已获得的徽章 ID 集合
func (r *BadgeRepository) AwardedIDs(ctx context.Context, userID int64) (map[int64]struct{}, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&schema.BadgeAward{}).
		Where("user_id = ?", userID).
		Pluck("badge_id", &ids).Error

	if err != nil {
		return nil, fmt.Errorf("查询已获徽章失败: %w", err)
	}

	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

// CreateAward 发放徽章
// (user_id, badge_id) 唯一索引冲突时直接忽略，重复评估天然幂等。
// 返回是否真的新发了一枚。
func (r *BadgeRepository) CreateAward(ctx context.Context, userID, badgeID int64) (bool, error) {
	award := schema.BadgeAward{
		UserID:     userID,
		BadgeID:    badgeID,
		AchievedAt: time.Now(),
	}
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "badge_id"}},
		DoNothing: true,
	}).Create(&award)

	if result.Error != nil {
		return false, fmt.Errorf("发放徽章失败: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// AwardRecord 用户徽章记录
type AwardRecord struct {
	BadgeName   string    `json:"badge_name"`
	Description string    `json:"description"`
	AchievedAt  time.Time `json:"achieved_at"`
}

// AwardsByUser 查询用户获得的全部徽章，新的在前
func (r *BadgeRepository) AwardsByUser(ctx context.Context, userID int64) ([]AwardRecord, error) {
	var records []AwardRecord
	err := r.db.WithContext(ctx).
		Table("badge_awards").
		Select("badges.badge_name, badges.description, badge_awards.achieved_at").
		Joins("JOIN badges ON badges.id = badge_awards.badge_id").
		Where("badge_awards.user_id = ?", userID).
		Order("badge_awards.achieved_at DESC").
		Scan(&records).Error

	if err != nil {
		return nil, fmt.Errorf("查询用户徽章失败: %w", err)
	}

	return records, nil
}
