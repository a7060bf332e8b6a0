package storage

import "time"

// LiveRoom 被监控的直播间
type LiveRoom struct {
	ID             int64     `json:"id"`
	LiveID         string    `json:"live_id"`
	RoomID         string    `json:"room_id"`
	AnchorName     string    `json:"anchor_name"`
	AnchorID       string    `json:"anchor_id"`
	MonitorType    string    `json:"monitor_type"`
	Status         string    `json:"status"`
	AutoReconnect  bool      `json:"auto_reconnect"`
	ReconnectCount int       `json:"reconnect_count"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	LastStartTime  time.Time `json:"last_start_time"`
	LastEndTime    time.Time `json:"last_end_time"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// LiveSession 一场直播，从检测到开播到确认下播
type LiveSession struct {
	ID           int64     `json:"id"`
	LiveID       string    `json:"live_id"`
	RoomID       string    `json:"room_id"`
	AnchorName   string    `json:"anchor_name"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	EndReason    string    `json:"end_reason"`
	ChatCount    int64     `json:"chat_count"`
	GiftCount    int64     `json:"gift_count"`
	GiftValue    int64     `json:"gift_value"`
	PeakViewers  int64     `json:"peak_viewers"`
	NewFollowers int64     `json:"new_followers"`
	LikeCount    int64     `json:"like_count"`
	MemberCount  int64     `json:"member_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// ChatRecord 弹幕记录
type ChatRecord struct {
	ID        int64     `json:"id"`
	LiveID    string    `json:"live_id"`
	SessionID int64     `json:"session_id"`
	MsgID     uint64    `json:"msg_id"`
	UserID    uint64    `json:"user_id"`
	UserName  string    `json:"user_name"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// GiftRecord 去重后的礼物记录，计数与价值均为增量
type GiftRecord struct {
	ID           int64     `json:"id"`
	LiveID       string    `json:"live_id"`
	SessionID    int64     `json:"session_id"`
	TraceID      string    `json:"trace_id"`
	GroupID      uint64    `json:"group_id"`
	GiftID       uint64    `json:"gift_id"`
	GiftName     string    `json:"gift_name"`
	DiamondCount int64     `json:"diamond_count"`
	DeltaCount   int64     `json:"delta_count"`
	DeltaValue   int64     `json:"delta_value"`
	ComboCount   int64     `json:"combo_count"`
	UserID       uint64    `json:"user_id"`
	UserName     string    `json:"user_name"`
	CreatedAt    time.Time `json:"created_at"`
}

// StatsSnapshot 周期性的直播间人气快照
type StatsSnapshot struct {
	ID             int64     `json:"id"`
	LiveID         string    `json:"live_id"`
	SessionID      int64     `json:"session_id"`
	CurrentViewers int64     `json:"current_viewers"`
	TotalViewers   int64     `json:"total_viewers"`
	ChatCount      int64     `json:"chat_count"`
	GiftValue      int64     `json:"gift_value"`
	CreatedAt      time.Time `json:"created_at"`
}

// UserContribution 观众在某直播间的累计贡献
type UserContribution struct {
	ID        int64     `json:"id"`
	LiveID    string    `json:"live_id"`
	UserID    uint64    `json:"user_id"`
	UserName  string    `json:"user_name"`
	GiftValue int64     `json:"gift_value"`
	GiftCount int64     `json:"gift_count"`
	ChatCount int64     `json:"chat_count"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SystemEvent 监控器自身的运行事件（连接、重连、降级轮询等）
type SystemEvent struct {
	ID        int64     `json:"id"`
	LiveID    string    `json:"live_id"`
	EventType string    `json:"event_type"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"created_at"`
}
