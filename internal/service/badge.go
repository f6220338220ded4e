package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// BadgeService 徽章评估
type BadgeService struct {
	badges     BadgeRepository
	activities ActivityRepository
}

// NewBadgeService 创建徽章评估服务
func NewBadgeService(badges BadgeRepository, activities ActivityRepository) *BadgeService {
	return &BadgeService{badges: badges, activities: activities}
}

// Evaluate 评估并发放用户达成的徽章，返回本次新发放的徽章名
// 每次记录活动后调用。幂等：已发放的徽章由 (user,badge) 唯一约束兜底，
// 重复评估最多是白做一次计数。
func (s *BadgeService) Evaluate(ctx context.Context, userID int64) ([]string, error) {
	all, err := s.badges.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("加载徽章定义失败: %w", err)
	}

	earned, err := s.badges.AwardedIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("加载已获徽章失败: %w", err)
	}

	var awarded []string
	for _, badge := range all {
		if _, ok := earned[badge.ID]; ok {
			continue
		}

		count, err := s.countFor(ctx, userID, badge.ConditionType)
		if err != nil {
			slog.Error("徽章条件计数失败", "badge", badge.BadgeName, "error", err)
			continue
		}

		if count < int64(badge.ConditionValue) {
			continue
		}

		created, err := s.badges.CreateAward(ctx, userID, badge.ID)
		if err != nil {
			slog.Error("发放徽章失败", "badge", badge.BadgeName, "error", err)
			continue
		}
		if created {
			slog.Info("🎉 徽章达成", "user_id", userID, "badge", badge.BadgeName)
			awarded = append(awarded, badge.BadgeName)
		}
	}

	return awarded, nil
}

// countFor 按条件类型统计匹配的活动次数
func (s *BadgeService) countFor(ctx context.Context, userID int64, conditionType string) (int64, error) {
	if conditionType == "count_all" {
		return s.activities.CountByUser(ctx, userID)
	}
	if activityType, ok := strings.CutPrefix(conditionType, "count_"); ok {
		return s.activities.CountByUserAndType(ctx, userID, activityType)
	}
	return 0, fmt.Errorf("未知的徽章条件类型: %s", conditionType)
}
