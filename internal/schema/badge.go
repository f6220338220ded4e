package schema

import (
	"time"
)

// Badge 徽章定义（静态参考数据，启动时种子写入）
type Badge struct {
	ID             int64  `gorm:"primaryKey;autoIncrement"`
	BadgeName      string `gorm:"size:100;uniqueIndex;not null"`
	Description    string `gorm:"size:255;not null"`
	ConditionType  string `gorm:"size:50;not null"` // count_all 或 count_<类别>
	ConditionValue int    `gorm:"not null"`         // 达成所需次数
}

// TableName 指定表名
func (Badge) TableName() string {
	return "badges"
}

// BadgeAward 用户获得的徽章
// (user_id, badge_id) 唯一，同一徽章每人最多发一次。
type BadgeAward struct {
	ID         int64     `gorm:"primaryKey;autoIncrement"`
	UserID     int64     `gorm:"uniqueIndex:idx_user_badge;not null"`
	BadgeID    int64     `gorm:"uniqueIndex:idx_user_badge;not null"`
	AchievedAt time.Time `gorm:"not null"`
}

// TableName 指定表名
func (BadgeAward) TableName() string {
	return "badge_awards"
}
