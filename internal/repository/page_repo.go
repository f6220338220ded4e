package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/yuqie6/eco-signal/internal/schema"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PageRepository Notion 页面状态仓储（等待队列 + 已处理集合）
// 不变量：一个页面 ID 要么未见过，要么在等待队列，要么已处理，三者互斥。
type PageRepository struct {
	db *gorm.DB
}

// NewPageRepository 创建页面状态仓储
func NewPageRepository(db *gorm.DB) *PageRepository {
	return &PageRepository{db: db}
}

// AddPending 把页面放入等待队列
func (r *PageRepository) AddPending(ctx context.Context, pageID string) error {
	pending := schema.PendingPage{PageID: pageID, AddedAt: time.Now()}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "page_id"}},
		DoNothing: true,
	}).Create(&pending).Error

	if err != nil {
		return fmt.Errorf("写入等待队列失败: %w", err)
	}
	return nil
}

// ListPending 按入队顺序返回等待队列
func (r *PageRepository) ListPending(ctx context.Context) ([]schema.PendingPage, error) {
	var pages []schema.PendingPage
	if err := r.db.WithContext(ctx).Order("added_at ASC").Find(&pages).Error; err != nil {
		return nil, fmt.Errorf("查询等待队列失败: %w", err)
	}
	return pages, nil
}

// DeletePending 从等待队列移除
func (r *PageRepository) DeletePending(ctx context.Context, pageID string) error {
	err := r.db.WithContext(ctx).
		Where("page_id = ?", pageID).
		Delete(&schema.PendingPage{}).Error

	if err != nil {
		return fmt.Errorf("移除等待页面失败: %w", err)
	}
	return nil
}

// BumpRetry 等待页面重试计数 +1
func (r *PageRepository) BumpRetry(ctx context.Context, pageID string) error {
	err := r.db.WithContext(ctx).
		Model(&schema.PendingPage{}).
		Where("page_id = ?", pageID).
		UpdateColumn("retry_count", gorm.Expr("retry_count + 1")).Error

	if err != nil {
		return fmt.Errorf("更新重试计数失败: %w", err)
	}
	return nil
}

// MarkProcessed 把页面记为终态已处理（成功或放弃都算）
func (r *PageRepository) MarkProcessed(ctx context.Context, pageID string) error {
	processed := schema.ProcessedPage{PageID: pageID, ProcessedAt: time.Now()}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "page_id"}},
		DoNothing: true,
	}).Create(&processed).Error

	if err != nil {
		return fmt.Errorf("写入已处理集合失败: %w", err)
	}
	return nil
}

// ProcessedIDSet 返回已处理页面 ID 集合
// 去重判断只信这张表，不信“没报错”。
func (r *PageRepository) ProcessedIDSet(ctx context.Context) (map[string]struct{}, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&schema.ProcessedPage{}).
		Pluck("page_id", &ids).Error

	if err != nil {
		return nil, fmt.Errorf("查询已处理集合失败: %w", err)
	}

	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

// PendingIDSet 返回等待中页面 ID 集合
func (r *PageRepository) PendingIDSet(ctx context.Context) (map[string]struct{}, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&schema.PendingPage{}).
		Pluck("page_id", &ids).Error

	if err != nil {
		return nil, fmt.Errorf("查询等待集合失败: %w", err)
	}

	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}
