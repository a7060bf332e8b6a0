package monitor

import (
	"time"

	"github.com/dylive-go/dylive-go/src/dedup"
	"github.com/dylive-go/dylive-go/src/pkg/events"
)

const (
	// EventLiveStart 检测到开播
	EventLiveStart events.EventType = "LiveStart"
	// EventLiveEnd 确认下播
	EventLiveEnd events.EventType = "LiveEnd"
	// EventChat 收到弹幕
	EventChat events.EventType = "ChatMessage"
	// EventGift 收到去重后的礼物
	EventGift events.EventType = "GiftMessage"
	// EventStateChanged 连接状态机迁移
	EventStateChanged events.EventType = "RoomStateChanged"
)

// LiveEvent 开播和下播事件的载荷
type LiveEvent struct {
	LiveID     string    `json:"live_id"`
	RoomID     string    `json:"room_id"`
	AnchorName string    `json:"anchor_name"`
	SessionID  int64     `json:"session_id"`
	Time       time.Time `json:"time"`
}

// ChatEvent 弹幕事件的载荷
type ChatEvent struct {
	LiveID   string    `json:"live_id"`
	UserID   uint64    `json:"user_id"`
	UserName string    `json:"user_name"`
	Content  string    `json:"content"`
	Time     time.Time `json:"time"`
}

// GiftEvent 礼物事件的载荷
type GiftEvent struct {
	LiveID string `json:"live_id"`
	*dedup.GiftEvent
}

// StateEvent 状态迁移事件的载荷
type StateEvent struct {
	LiveID  string `json:"live_id"`
	State   string `json:"state"`
	Status  string `json:"status"`
	Retries int    `json:"retries"`
}
