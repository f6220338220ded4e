package eventbus

import (
	"context"
	"sync"
	"time"
)

// Event 推送给前端的领域事件
// Type 取值：activity_recorded / badge_awarded / signal_changed
type Event struct {
	Type      string         `json:"type"`
	Timestamp int64          `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// Hub 进程内事件总线
// 发布端是轮询链路（计分、发徽章、信号灯变档），订阅端是 SSE 端点。
// 发布永不阻塞：订阅者缓冲满了就丢事件，前端刷新 /status 即可追平，
// 绝不能让一个挂死的浏览器连接拖住计分链路。
type Hub struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

// NewHub 创建事件总线
func NewHub() *Hub {
	return &Hub{subs: make(map[chan Event]struct{})}
}

// Publish 广播事件给所有订阅者，Timestamp 为零时补当前时间
func (h *Hub) Publish(evt Event) {
	if h == nil {
		return
	}
	if evt.Timestamp == 0 {
		evt.Timestamp = time.Now().UnixMilli()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subs {
		select {
		case ch <- evt:
		default:
			// 缓冲已满：丢弃，事件只是通知，状态以 /status 为准
		}
	}
}

// Subscribe 订阅事件，ctx 取消后自动退订并关闭通道
// 每个 SSE 连接一个订阅，buffer 决定该连接能积压多少事件。
func (h *Hub) Subscribe(ctx context.Context, buffer int) <-chan Event {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
		close(ch)
	}()

	return ch
}
