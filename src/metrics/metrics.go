package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FramesTotal 收到的 PushFrame 帧数
	FramesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dylive_frames_total",
		Help: "Total number of websocket push frames received.",
	})

	// FrameDecodeErrors 外层帧解码失败数
	FrameDecodeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dylive_frame_decode_errors_total",
		Help: "Total number of push frames that failed to decode.",
	})

	// MessagesTotal 按 method 统计的消息数
	MessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dylive_messages_total",
		Help: "Total number of routed messages by method.",
	}, []string{"method"})

	// MessageDecodeErrors 单条消息解码失败数
	MessageDecodeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dylive_message_decode_errors_total",
		Help: "Total number of messages that failed to decode, by method.",
	}, []string{"method"})

	// UnknownMethods 未注册 method 的消息数
	UnknownMethods = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dylive_unknown_methods_total",
		Help: "Total number of messages with an unregistered method.",
	})

	// DuplicateGifts 被 trace_id 去重丢弃的礼物数
	DuplicateGifts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dylive_duplicate_gifts_total",
		Help: "Total number of gift messages dropped as duplicates.",
	})

	// Reconnects 重连次数
	Reconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dylive_reconnects_total",
		Help: "Total number of websocket reconnect attempts, by live id.",
	}, []string{"live_id"})

	// ConnectedRooms 当前处于已连接状态的直播间数
	ConnectedRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dylive_connected_rooms",
		Help: "Number of rooms with an established websocket connection.",
	})

	// HeartbeatsSent 发送的心跳帧数
	HeartbeatsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dylive_heartbeats_sent_total",
		Help: "Total number of heartbeat frames sent.",
	})

	// AcksSent 发送的 ack 帧数
	AcksSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dylive_acks_sent_total",
		Help: "Total number of ack frames sent.",
	})
)
