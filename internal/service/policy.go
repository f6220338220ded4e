package service

import (
	"github.com/yuqie6/eco-signal/internal/pkg/config"
)

// PointPolicy 积分策略：检测标签 → 活动类别与分值
// 条目有序。匹配规则沿用线上行为：遍历策略，分值“严格大于”当前最优才替换，
// 因此同分类别按声明顺序裁决，先声明者胜。这个顺序依赖是有意保留的，
// 改动会悄悄改变发放的类别。
type PointPolicy struct {
	entries []config.PolicyEntry
}

// NewPointPolicy 从配置构建策略
func NewPointPolicy(entries []config.PolicyEntry) *PointPolicy {
	copied := make([]config.PolicyEntry, len(entries))
	copy(copied, entries)
	return &PointPolicy{entries: copied}
}

// Match 在标签集合里找得分最高的策略类别
// 返回类别、分值；没有任何命中时 ok 为 false。
func (p *PointPolicy) Match(labels []string) (activity string, points int, ok bool) {
	labelSet := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		labelSet[l] = struct{}{}
	}

	for _, entry := range p.entries {
		if _, hit := labelSet[entry.Label]; hit && entry.Points > points {
			activity = entry.Label
			points = entry.Points
			ok = true
		}
	}

	return activity, points, ok
}

// Entries 返回策略条目副本
func (p *PointPolicy) Entries() []config.PolicyEntry {
	copied := make([]config.PolicyEntry, len(p.entries))
	copy(copied, p.entries)
	return copied
}
