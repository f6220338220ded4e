package repository

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite" // 纯 Go SQLite 驱动
	"github.com/yuqie6/eco-signal/internal/schema"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Database 数据库管理器
type Database struct {
	DB *gorm.DB
}

// NewDatabase 创建数据库连接并完成迁移与徽章种子
func NewDatabase(dbPath string) (*Database, error) {
	// 确保目录存在
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	// 配置 SQLite WAL 模式
	if err := configureDB(db); err != nil {
		return nil, fmt.Errorf("配置数据库失败: %w", err)
	}

	if err := autoMigrate(db); err != nil {
		return nil, fmt.Errorf("迁移数据库失败: %w", err)
	}

	if err := seedBadges(db); err != nil {
		return nil, fmt.Errorf("写入徽章种子失败: %w", err)
	}

	slog.Info("数据库初始化成功", "path", dbPath)

	return &Database{DB: db}, nil
}

// configureDB 配置 SQLite 性能参数
func configureDB(db *gorm.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",   // 启用 WAL 模式，支持并发读写
		"PRAGMA synchronous=NORMAL", // 平衡性能与安全
		"PRAGMA temp_store=MEMORY",  // 临时表使用内存
	}

	for _, pragma := range pragmas {
		if err := db.Exec(pragma).Error; err != nil {
			return fmt.Errorf("执行 %s 失败: %w", pragma, err)
		}
	}

	return nil
}

// autoMigrate 自动迁移表结构
func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&schema.User{},
		&schema.Activity{},
		&schema.Badge{},
		&schema.BadgeAward{},
		&schema.PendingPage{},
		&schema.ProcessedPage{},
	)
}

// seedBadges 写入初始徽章定义（幂等，badge_name 唯一冲突直接忽略）
func seedBadges(db *gorm.DB) error {
	badges := []schema.Badge{
		{BadgeName: "첫걸음", Description: "첫 환경보호 활동 인증", ConditionType: "count_all", ConditionValue: 1},
		{BadgeName: "텀블러 홀릭", Description: "텀블러 사용 3회 달성", ConditionType: "count_tumbler", ConditionValue: 3},
		{BadgeName: "계단의 지배자", Description: "계단 이용 3회 달성", ConditionType: "count_stairs", ConditionValue: 3},
	}

	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "badge_name"}},
		DoNothing: true,
	}).Create(&badges).Error
}

// Close 关闭数据库连接
func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
