package schema

import (
	"time"
)

// User 活动参与用户
// 首次出现在 Notion 记录里时惰性创建，user_name 唯一。
type User struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	UserName  string    `gorm:"size:100;uniqueIndex;not null"` // Notion 创建者名称
	FirstSeen time.Time `gorm:"not null"`                      // 首次出现时间
}

// TableName 指定表名
func (User) TableName() string {
	return "users"
}
