package schema

import (
	"time"
)

// Activity 一次得分活动记录
// 只追加，不修改、不删除。
type Activity struct {
	ID           int64     `gorm:"primaryKey;autoIncrement"`
	UserID       int64     `gorm:"index;not null"`
	ActivityType string    `gorm:"size:50;not null"` // 积分策略里的类别: tumbler, stairs...
	Points       int       `gorm:"not null"`
	CreatedAt    time.Time `gorm:"index"` // 仓储层统一按 UTC 写入
}

// TableName 指定表名
func (Activity) TableName() string {
	return "activities"
}
