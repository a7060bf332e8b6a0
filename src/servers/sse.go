package servers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/dylive-go/dylive-go/src/instance"
	"github.com/dylive-go/dylive-go/src/monitor"
	"github.com/dylive-go/dylive-go/src/pkg/events"
	"github.com/dylive-go/dylive-go/src/pkg/roomlogger"
	"github.com/dylive-go/dylive-go/src/rooms"
	"github.com/dylive-go/dylive-go/src/types"
)

// SSEEventType SSE 事件类型
type SSEEventType string

const (
	// SSEEventChat 弹幕
	SSEEventChat SSEEventType = "chat"
	// SSEEventGift 去重后的礼物
	SSEEventGift SSEEventType = "gift"
	// SSEEventSession 开播/下播
	SSEEventSession SSEEventType = "session"
	// SSEEventRoomState 连接状态机迁移
	SSEEventRoomState SSEEventType = "room_state"
	// SSEEventRoomStatus 周期性房间状态广播
	SSEEventRoomStatus SSEEventType = "room_status"
	// SSEEventLog 日志更新
	SSEEventLog SSEEventType = "log"
)

// SSEMessage SSE 消息结构
type SSEMessage struct {
	Type   SSEEventType `json:"type"`
	LiveID string       `json:"live_id"`
	Data   interface{}  `json:"data"`
}

// SSEHub 管理所有 SSE 连接
type SSEHub struct {
	mu      sync.RWMutex
	clients map[chan SSEMessage]struct{}
	closeCh chan struct{}
	closed  bool
}

var (
	sseHub     *SSEHub
	sseHubOnce sync.Once
)

// GetSSEHub 获取全局 SSE Hub 单例
func GetSSEHub() *SSEHub {
	sseHubOnce.Do(func() {
		sseHub = &SSEHub{
			clients: make(map[chan SSEMessage]struct{}),
			closeCh: make(chan struct{}),
		}
	})
	return sseHub
}

// AddClient 添加一个 SSE 客户端
func (h *SSEHub) AddClient(ch chan SSEMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[ch] = struct{}{}
}

// RemoveClient 移除一个 SSE 客户端
func (h *SSEHub) RemoveClient(ch chan SSEMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[ch]; ok {
		delete(h.clients, ch)
		close(ch)
	}
}

// Broadcast 向所有客户端广播消息
func (h *SSEHub) Broadcast(msg SSEMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.clients {
		select {
		case ch <- msg:
		default:
			// 客户端消费不过来时丢弃这条消息，避免阻塞广播
		}
	}
}

// ClientCount 获取当前连接的客户端数量
func (h *SSEHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close 关闭所有 SSE 连接，触发所有 sseHandler 退出
func (h *SSEHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	close(h.closeCh)
	for ch := range h.clients {
		close(ch)
		delete(h.clients, ch)
	}
}

// Done 返回关闭信号 channel
func (h *SSEHub) Done() <-chan struct{} {
	return h.closeCh
}

// sseHandler 处理 SSE 连接请求
func sseHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	clientCh := make(chan SSEMessage, 100)
	hub := GetSSEHub()
	hub.AddClient(clientCh)

	fmt.Fprintf(w, "event: connected\ndata: {\"message\":\"SSE connected\",\"clients\":%d}\n\n", hub.ClientCount())
	flusher.Flush()

	heartbeatTicker := time.NewTicker(30 * time.Second)
	defer heartbeatTicker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			hub.RemoveClient(clientCh)
			return

		case <-hub.Done():
			return

		case <-heartbeatTicker.C:
			fmt.Fprintf(w, ":heartbeat\n\n")
			flusher.Flush()

		case msg, ok := <-clientCh:
			if !ok {
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Type, data)
			flusher.Flush()
		}
	}
}

// RegisterSSEEventListeners 把监控事件接到 SSE 广播上
func RegisterSSEEventListeners(inst *instance.Instance) {
	if inst == nil || inst.EventDispatcher == nil {
		return
	}
	hub := GetSSEHub()
	dispatcher := inst.EventDispatcher.(events.Dispatcher)

	dispatcher.AddEventListener(monitor.EventChat, events.NewEventListener(func(event *events.Event) {
		chat, ok := event.Object.(*monitor.ChatEvent)
		if !ok {
			return
		}
		hub.Broadcast(SSEMessage{Type: SSEEventChat, LiveID: chat.LiveID, Data: chat})
	}))

	dispatcher.AddEventListener(monitor.EventGift, events.NewEventListener(func(event *events.Event) {
		gift, ok := event.Object.(*monitor.GiftEvent)
		if !ok {
			return
		}
		hub.Broadcast(SSEMessage{Type: SSEEventGift, LiveID: gift.LiveID, Data: gift})
	}))

	sessionListener := events.NewEventListener(func(event *events.Event) {
		live, ok := event.Object.(*monitor.LiveEvent)
		if !ok {
			return
		}
		hub.Broadcast(SSEMessage{Type: SSEEventSession, LiveID: live.LiveID, Data: map[string]interface{}{
			"event_type": string(event.Type),
			"session":    live,
			"timestamp":  time.Now().Unix(),
		}})
	})
	dispatcher.AddEventListener(monitor.EventLiveStart, sessionListener)
	dispatcher.AddEventListener(monitor.EventLiveEnd, sessionListener)

	dispatcher.AddEventListener(monitor.EventStateChanged, events.NewEventListener(func(event *events.Event) {
		state, ok := event.Object.(*monitor.StateEvent)
		if !ok {
			return
		}
		hub.Broadcast(SSEMessage{Type: SSEEventRoomState, LiveID: state.LiveID, Data: state})
	}))

	// 周期性房间状态与日志走回调，避免 servers 与 rooms/roomlogger 循环依赖
	rooms.SetBroadcastRoomStatusFunc(func(liveID types.LiveID, status *rooms.RoomStatus) {
		hub.Broadcast(SSEMessage{Type: SSEEventRoomStatus, LiveID: string(liveID), Data: status})
	})
	roomlogger.SetLogCallback(func(liveID string, logLine string) {
		hub.Broadcast(SSEMessage{Type: SSEEventLog, LiveID: liveID, Data: logLine})
	})
}
