package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/yuqie6/eco-signal/internal/schema"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserRepository 用户仓储
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository 创建用户仓储
func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetOrCreate 按名称取用户 ID，不存在则创建
// 依赖 user_name 唯一索引保证原子性：先 ON CONFLICT DO NOTHING 插入，
// 再回读，避免“查了再插”在并发下产生重复行。
func (r *UserRepository) GetOrCreate(ctx context.Context, name string) (int64, error) {
	if name == "" {
		return 0, fmt.Errorf("用户名不能为空")
	}

	user := schema.User{UserName: name, FirstSeen: time.Now()}
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_name"}},
		DoNothing: true,
	}).Create(&user)
	if result.Error != nil {
		return 0, fmt.Errorf("创建用户失败: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		slog.Info("注册新用户", "user", name, "id", user.ID)
		return user.ID, nil
	}

	// 冲突路径：行已存在，回读稳定 ID
	var existing schema.User
	if err := r.db.WithContext(ctx).Where("user_name = ?", name).First(&existing).Error; err != nil {
		return 0, fmt.Errorf("查询用户失败: %w", err)
	}
	return existing.ID, nil
}

// GetByName 按名称查询用户
func (r *UserRepository) GetByName(ctx context.Context, name string) (*schema.User, error) {
	var user schema.User
	if err := r.db.WithContext(ctx).Where("user_name = ?", name).First(&user).Error; err != nil {
		return nil, fmt.Errorf("查询用户失败: %w", err)
	}
	return &user, nil
}

// AllNames 返回全部用户名，按名称排序
func (r *UserRepository) AllNames(ctx context.Context) ([]string, error) {
	var names []string
	err := r.db.WithContext(ctx).
		Model(&schema.User{}).
		Order("user_name ASC").
		Pluck("user_name", &names).Error

	if err != nil {
		return nil, fmt.Errorf("查询用户列表失败: %w", err)
	}

	return names, nil
}
