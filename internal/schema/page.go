package schema

import (
	"time"
)

// PendingPage 等待前置条件（照片附件）的 Notion 页面
// 成功分析或超时放弃后从本表删除。
type PendingPage struct {
	PageID     string    `gorm:"primaryKey;size:64"`
	AddedAt    time.Time `gorm:"not null"` // 进入等待队列的时间
	RetryCount int       `gorm:"default:0"`
}

// TableName 指定表名
func (PendingPage) TableName() string {
	return "pending_pages"
}

// ProcessedPage 已终态处理的 Notion 页面 ID 集合
// 只追加。每次轮询决策前都要先查这张表，防止重复计分。
type ProcessedPage struct {
	PageID      string    `gorm:"primaryKey;size:64"`
	ProcessedAt time.Time `gorm:"not null"`
}

// TableName 指定表名
func (ProcessedPage) TableName() string {
	return "processed_pages"
}
