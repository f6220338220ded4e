package service

import (
	"sync"
	"time"

	"github.com/yuqie6/eco-signal/internal/pkg/config"
)

// 信号灯档位
const (
	LevelGreen  = "green"
	LevelYellow = "yellow"
	LevelOrange = "orange" // 地板档，分数再低也不会更低
)

// lastActivityNone 没有存活奖励时展示的占位（业务侧前端约定的韩文“无”）
const lastActivityNone = "없음"

// bonusEntry 时间窗内的一条积分奖励
type bonusEntry struct {
	Activity  string
	Points    int
	ExpiresAt time.Time
}

// ActiveBonus 对外暴露的存活奖励
type ActiveBonus struct {
	Activity string `json:"activity"`
	Points   int    `json:"points"`
	EndTime  int64  `json:"end_time"` // 到期时间，unix 秒
}

// Snapshot 聚合结果快照
type Snapshot struct {
	SignalLevel      string        `json:"signal_level"`
	CurrentPoints    int           `json:"current_points"`
	LastActivity     string        `json:"last_activity"`
	ActiveActivities []ActiveBonus `json:"active_activities"`
}

// SignalState 奖励衰减聚合器
// 进程内唯一的可变共享状态，全部读改写走同一把锁。
// Recompute 是 (now, entries) 的纯函数，定时 tick 和请求时惰性求值
// 在同一时刻必然得到同一答案，两种部署形态共用这一份实现。
type SignalState struct {
	mu              sync.Mutex
	basePoints      int
	greenThreshold  int
	yellowThreshold int
	bonusDuration   time.Duration
	entries         []bonusEntry // 按加入顺序追加，最后一个就是最新
}

// NewSignalState 创建聚合器
func NewSignalState(cfg config.SignalConfig) *SignalState {
	return &SignalState{
		basePoints:      cfg.BasePoints,
		greenThreshold:  cfg.GreenThreshold,
		yellowThreshold: cfg.YellowThreshold,
		bonusDuration:   time.Duration(cfg.BonusDurationSec) * time.Second,
	}
}

// Add 记入一条奖励，从 now 起存活 bonusDuration
func (s *SignalState) Add(activity string, points int, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, bonusEntry{
		Activity:  activity,
		Points:    points,
		ExpiresAt: now.Add(s.bonusDuration),
	})
}

// Recompute 以 now 为基准重算快照，并清掉已过期条目
func (s *SignalState) Recompute(now time.Time) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	// 过期条目丢弃，到期瞬间(expiry == now)仍算存活，与线上行为一致
	alive := s.entries[:0]
	for _, e := range s.entries {
		if !e.ExpiresAt.Before(now) {
			alive = append(alive, e)
		}
	}
	s.entries = alive

	total := s.basePoints
	active := make([]ActiveBonus, 0, len(s.entries))
	for _, e := range s.entries {
		total += e.Points
		active = append(active, ActiveBonus{
			Activity: e.Activity,
			Points:   e.Points,
			EndTime:  e.ExpiresAt.Unix(),
		})
	}

	last := lastActivityNone
	if len(s.entries) > 0 {
		last = s.entries[len(s.entries)-1].Activity
	}

	level := LevelOrange
	switch {
	case total >= s.greenThreshold:
		level = LevelGreen
	case total >= s.yellowThreshold:
		level = LevelYellow
	}

	return Snapshot{
		SignalLevel:      level,
		CurrentPoints:    total,
		LastActivity:     last,
		ActiveActivities: active,
	}
}

// Read 以当前时间重算并返回快照
func (s *SignalState) Read() Snapshot {
	return s.Recompute(time.Now())
}

// SetThresholds 热更新阈值与奖励窗口（配置热加载用）
// 已存活条目保留各自原有的到期时间。
func (s *SignalState) SetThresholds(cfg config.SignalConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.basePoints = cfg.BasePoints
	s.greenThreshold = cfg.GreenThreshold
	s.yellowThreshold = cfg.YellowThreshold
	s.bonusDuration = time.Duration(cfg.BonusDurationSec) * time.Second
}
