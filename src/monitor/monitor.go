// Package monitor 实现单个直播间的监控器：探测开播状态、维护推送
// 通道连接、心跳与确认、消息路由，并按监控模式处理断线和下播。
package monitor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	uuid "github.com/satori/go.uuid"
	"github.com/sirupsen/logrus"

	"github.com/dylive-go/dylive-go/src/configs"
	"github.com/dylive-go/dylive-go/src/consts"
	"github.com/dylive-go/dylive-go/src/dedup"
	"github.com/dylive-go/dylive-go/src/douyin"
	"github.com/dylive-go/dylive-go/src/metrics"
	"github.com/dylive-go/dylive-go/src/pkg/dysentry"
	"github.com/dylive-go/dylive-go/src/pkg/events"
	"github.com/dylive-go/dylive-go/src/pkg/roomlogger"
	"github.com/dylive-go/dylive-go/src/protocol"
	"github.com/dylive-go/dylive-go/src/sessions"
	"github.com/dylive-go/dylive-go/src/storage"
)

const (
	begin uint32 = iota
	pending
	running
	stopped
)

// errStreamEnded 读循环因主播下播而退出
var errStreamEnded = errors.New("stream ended")

// RoomProber 开播状态探测能力，由 douyin.Resolver 提供
type RoomProber interface {
	RoomStatus(liveID string) (*douyin.RoomInfo, error)
	TTWid() (string, error)
}

// Monitor 单个直播间的监控器
type Monitor interface {
	Start() error
	Close()
	LiveID() string
	State() State
	Retries() int
	Tracker() *sessions.Tracker
	Logger() *roomlogger.RoomLogger
}

// Deps 监控器的外部依赖，测试时可整体替换
type Deps struct {
	Config     *configs.Config
	Prober     RoomProber
	Signer     douyin.Signer
	Dialer     Dialer
	Store      storage.Store
	Dispatcher events.Dispatcher
}

func NewMonitor(ctx context.Context, room *storage.LiveRoom, deps Deps) Monitor {
	runCtx, cancel := context.WithCancel(ctx)
	m := &monitor{
		liveID:        room.LiveID,
		monitorType:   room.MonitorType,
		autoReconnect: room.AutoReconnect,
		deps:          deps,
		tracker:       sessions.NewTracker(room.LiveID, deps.Store),
		deduper:       dedup.NewDeduper(),
		stop:          make(chan struct{}),
		runCtx:        runCtx,
		runCancel:     cancel,
		userUniqueID:  douyin.GenerateUserUniqueID(),
	}
	m.logger = roomlogger.New(roomlogger.DefaultBufferSize, logrus.Fields{
		"live_id": room.LiveID,
	}, room.LiveID)
	m.router = m.buildRouter()
	return m
}

type monitor struct {
	liveID        string
	monitorType   string
	autoReconnect bool
	deps          Deps

	tracker      *sessions.Tracker
	deduper      *dedup.Deduper
	router       *protocol.Router
	logger       *roomlogger.RoomLogger
	userUniqueID string

	state     uint32
	connState uint32
	retries   int32
	// streamEnded 读循环收到 control status=3 后置位
	streamEnded atomic.Bool
	// failed 重试耗尽置错后置位，收尾时保留 error 状态
	failed atomic.Bool

	stop      chan struct{}
	runCtx    context.Context
	runCancel context.CancelFunc

	connMu  sync.Mutex
	conn    Conn
	writeMu sync.Mutex
}

func (m *monitor) LiveID() string             { return m.liveID }
func (m *monitor) State() State               { return State(atomic.LoadUint32(&m.connState)) }
func (m *monitor) Retries() int               { return int(atomic.LoadInt32(&m.retries)) }
func (m *monitor) Tracker() *sessions.Tracker { return m.tracker }
func (m *monitor) Logger() *roomlogger.RoomLogger {
	return m.logger
}

func (m *monitor) Start() error {
	if !atomic.CompareAndSwapUint32(&m.state, begin, pending) {
		return nil
	}
	defer atomic.CompareAndSwapUint32(&m.state, pending, running)

	m.logger.WithField("monitor_type", m.monitorType).Info("room monitor started")
	dysentry.Go(func() { m.run() })
	return nil
}

func (m *monitor) Close() {
	if !atomic.CompareAndSwapUint32(&m.state, running, stopped) {
		// Start 尚未完成时也允许关闭
		if !atomic.CompareAndSwapUint32(&m.state, pending, stopped) {
			return
		}
	}
	m.runCancel()
	close(m.stop)
	m.closeConn()
}

func (m *monitor) closeConn() {
	m.connMu.Lock()
	defer m.connMu.Unlock()
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
}

func (m *monitor) stopping() bool {
	select {
	case <-m.stop:
		return true
	default:
		return m.runCtx.Err() != nil
	}
}

// sleep 可被 Close 打断的等待，返回 false 表示监控器已停止
func (m *monitor) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-m.stop:
		return false
	case <-m.runCtx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (m *monitor) setState(s State, status string) {
	old := State(atomic.SwapUint32(&m.connState, uint32(s)))
	if status != "" {
		if err := m.deps.Store.UpdateRoomStatus(m.runCtx, m.liveID, status); err != nil && m.runCtx.Err() == nil {
			m.logger.WithError(err).Warn("failed to persist room status")
		}
	}
	if old == s {
		return
	}
	m.deps.Dispatcher.DispatchEvent(events.NewEvent(EventStateChanged, &StateEvent{
		LiveID:  m.liveID,
		State:   s.String(),
		Status:  status,
		Retries: m.Retries(),
	}))
}

func (m *monitor) run() {
	defer m.cleanup()
	for {
		if m.stopping() {
			return
		}

		info, err := m.deps.Prober.RoomStatus(m.liveID)
		if err != nil {
			m.logger.WithError(err).Error("failed to probe room status")
			// 已在轮询中的探测失败不计入重连次数，保持轮询
			if m.State() == StatePolling {
				if !m.sleep(m.deps.Config.Monitor.PollInterval) {
					return
				}
				continue
			}
			if !m.backoff(err) {
				return
			}
			continue
		}

		if err := m.deps.Store.UpdateRoomInfo(m.runCtx, m.liveID, info.RoomID, info.AnchorName, info.AnchorID); err != nil && m.runCtx.Err() == nil {
			m.logger.WithError(err).Warn("failed to persist room info")
		}
		m.tracker.SetRoomInfo(info.RoomID, info.AnchorName)

		if !info.IsLive {
			m.setState(StatePolling, consts.RoomStatusOffline)
			m.logger.Debug("anchor offline, polling")
			if !m.sleep(m.deps.Config.Monitor.PollInterval) {
				return
			}
			continue
		}

		// 轮询探测到开播，重连计数归零
		if m.State() == StatePolling {
			atomic.StoreInt32(&m.retries, 0)
		}

		err = m.runConnection(info)
		switch {
		case errors.Is(err, errStreamEnded):
			m.onStreamEnded(info)
			if m.monitorType == consts.MonitorTypeManual {
				return
			}
			// 24 小时模式降级为轮询等待下一场
			m.setState(StatePolling, consts.RoomStatusWaiting)
			if !m.sleep(m.deps.Config.Monitor.PollInterval) {
				return
			}
		case err != nil:
			if m.stopping() {
				return
			}
			m.logger.WithError(err).Warn("connection lost")
			if !m.autoReconnect {
				m.logger.Info("auto reconnect disabled, stopping")
				return
			}
			if !m.backoff(err) {
				return
			}
		default:
			// 连接正常退出，说明监控器正在关闭
			return
		}
	}
}

// backoff 重连退避，返回 false 表示监控器应当退出。
// 计数达到上限后不再发起新的重连：自动重连的房间降级为轮询，
// 等探测到开播再清零计数，非自动重连的房间置为错误状态并停止。
func (m *monitor) backoff(cause error) bool {
	retries := atomic.AddInt32(&m.retries, 1)
	metrics.Reconnects.WithLabelValues(m.liveID).Inc()
	if err := m.deps.Store.IncrementReconnectCount(m.runCtx, m.liveID); err != nil && m.runCtx.Err() == nil {
		m.logger.WithError(err).Debug("failed to persist reconnect count")
	}
	m.setState(StateReconnecting, "")

	if int(retries) < m.deps.Config.Monitor.MaxRetries {
		m.logger.WithFields(logrus.Fields{
			"attempt": retries,
			"max":     m.deps.Config.Monitor.MaxRetries,
			"delay":   m.deps.Config.Monitor.ReconnectDelay.String(),
		}).Info("reconnecting")
		return m.sleep(m.deps.Config.Monitor.ReconnectDelay)
	}

	errMsg := ""
	if cause != nil {
		errMsg = cause.Error()
	}
	if err := m.deps.Store.UpdateRoomError(m.runCtx, m.liveID, errMsg); err != nil && m.runCtx.Err() == nil {
		m.logger.WithError(err).Warn("failed to persist room error")
	}
	m.systemEvent("retries_exhausted", errMsg)

	if !m.autoReconnect {
		m.logger.WithField("retries", retries).Error("retries exhausted")
		m.failed.Store(true)
		m.setState(StateDisconnected, consts.RoomStatusError)
		return false
	}

	m.logger.WithField("retries", retries).Warn("retries exhausted, falling back to polling")
	m.setState(StatePolling, consts.RoomStatusWaiting)
	return m.sleep(m.deps.Config.Monitor.PollInterval)
}

// runConnection 维持一条推送通道连接直到出错、下播或关闭
func (m *monitor) runConnection(info *douyin.RoomInfo) error {
	m.setState(StateConnecting, "")
	m.streamEnded.Store(false)

	ttwid, err := m.deps.Prober.TTWid()
	if err != nil {
		return err
	}
	wssURL, err := douyin.SignedWSURL(m.deps.Signer, info.RoomID, m.userUniqueID, "", "")
	if err != nil {
		return err
	}

	conn, err := m.deps.Dialer.Dial(m.runCtx, wssURL, ttwid, m.deps.Config.Douyin.UserAgent)
	if err != nil {
		return err
	}
	m.connMu.Lock()
	m.conn = conn
	m.connMu.Unlock()
	defer m.closeConn()

	connID := uuid.Must(uuid.NewV4()).String()
	connLog := m.logger.WithFields(logrus.Fields{
		"conn_id": connID,
		"room_id": info.RoomID,
	})
	connLog.Info("websocket connected")

	atomic.StoreInt32(&m.retries, 0)
	if err := m.deps.Store.UpdateRoomError(m.runCtx, m.liveID, ""); err != nil && m.runCtx.Err() == nil {
		connLog.WithError(err).Debug("failed to clear room error")
	}
	m.setState(StateConnected, consts.RoomStatusMonitoring)
	metrics.ConnectedRooms.Inc()
	defer metrics.ConnectedRooms.Dec()
	m.systemEvent("connected", connID)

	wasActive := m.tracker.Active()
	if err := m.tracker.OpenSession(m.runCtx, time.Now()); err != nil && m.runCtx.Err() == nil {
		connLog.WithError(err).Warn("failed to open live session")
	}
	if !wasActive && m.tracker.Active() {
		m.deps.Dispatcher.DispatchEvent(events.NewEvent(EventLiveStart, &LiveEvent{
			LiveID:     m.liveID,
			RoomID:     info.RoomID,
			AnchorName: info.AnchorName,
			SessionID:  m.tracker.SessionID(),
			Time:       time.Now(),
		}))
	}

	// 心跳独立 goroutine，写操作经 writeFrame 串行化
	hbCtx, hbCancel := context.WithCancel(m.runCtx)
	defer hbCancel()
	dysentry.GoWithContext(hbCtx, func(ctx context.Context) {
		m.heartbeatLoop(ctx, conn)
	})

	return m.readLoop(conn, connLog)
}

func (m *monitor) heartbeatLoop(ctx context.Context, conn Conn) {
	ticker := time.NewTicker(m.deps.Config.Monitor.HeartbeatInterval)
	defer ticker.Stop()
	hb := protocol.NewHeartbeatFrame().Marshal()
	lastSweep := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.writeFrame(conn, hb); err != nil {
				return
			}
			metrics.HeartbeatsSent.Inc()
			if now := time.Now(); now.Sub(lastSweep) > time.Minute {
				m.deduper.Sweep(now)
				lastSweep = now
			}
		}
	}
}

// writeFrame 串行化对连接的写操作，心跳和 ack 来自不同 goroutine
func (m *monitor) writeFrame(conn Conn, data []byte) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return conn.WriteMessage(websocket.BinaryMessage, data)
}

func (m *monitor) readLoop(conn Conn, connLog *logrus.Entry) error {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if m.streamEnded.Load() {
				return errStreamEnded
			}
			if m.stopping() {
				return nil
			}
			return err
		}

		metrics.FramesTotal.Inc()
		frame, err := protocol.DecodePushFrame(raw)
		if err != nil {
			metrics.FrameDecodeErrors.Inc()
			connLog.WithError(err).Debug("dropping undecodable frame")
			continue
		}
		if frame.PayloadType != protocol.PayloadTypeMsg {
			continue
		}
		resp, err := protocol.DecodeResponse(frame)
		if err != nil {
			metrics.FrameDecodeErrors.Inc()
			connLog.WithError(err).Debug("dropping undecodable response")
			continue
		}

		if resp.NeedAck {
			ack := protocol.NewAckFrame(frame.LogID, resp.InternalExt).Marshal()
			if err := m.writeFrame(conn, ack); err != nil {
				connLog.WithError(err).Warn("failed to send ack")
			} else {
				metrics.AcksSent.Inc()
			}
		}

		if err := m.router.RouteAll(resp.Messages); err != nil {
			var drift *protocol.ProtocolDriftError
			if errors.As(err, &drift) {
				connLog.WithFields(logrus.Fields{
					"method":      drift.Method,
					"consecutive": drift.Consecutive,
				}).Error("protocol drift suspected")
				m.systemEvent("protocol_drift", drift.Method)
			}
		}

		if m.streamEnded.Load() {
			return errStreamEnded
		}
	}
}

// onStreamEnded 下播收尾：关会话、发事件
func (m *monitor) onStreamEnded(info *douyin.RoomInfo) {
	sessionID := m.tracker.SessionID()
	if err := m.tracker.CloseSession(m.runCtx, time.Now(), consts.SessionEndStream); err != nil && m.runCtx.Err() == nil {
		m.logger.WithError(err).Warn("failed to close live session")
	}
	m.systemEvent("stream_ended", "")
	m.deps.Dispatcher.DispatchEvent(events.NewEvent(EventLiveEnd, &LiveEvent{
		LiveID:     m.liveID,
		RoomID:     info.RoomID,
		AnchorName: info.AnchorName,
		SessionID:  sessionID,
		Time:       time.Now(),
	}))
	m.logger.Info("stream ended")
}

// cleanup run 循环退出后的收尾
// Close 触发的退出要把残留会话标记为手动结束
func (m *monitor) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if m.tracker.Active() {
		if err := m.tracker.CloseSession(ctx, time.Now(), consts.SessionEndManual); err != nil {
			m.logger.WithError(err).Warn("failed to close live session on shutdown")
		}
	}
	// 重试耗尽置错的房间保留 error 状态，其余标记为 stopped
	status := consts.RoomStatusStopped
	if m.failed.Load() {
		status = consts.RoomStatusError
	} else if err := m.deps.Store.UpdateRoomStatus(ctx, m.liveID, consts.RoomStatusStopped); err != nil {
		m.logger.WithError(err).Warn("failed to persist room status on shutdown")
	}
	atomic.StoreUint32(&m.connState, uint32(StateStopped))
	atomic.StoreUint32(&m.state, stopped)
	// 终态事件通知管理器把本监控器摘除
	m.deps.Dispatcher.DispatchEvent(events.NewEvent(EventStateChanged, &StateEvent{
		LiveID:  m.liveID,
		State:   StateStopped.String(),
		Status:  status,
		Retries: m.Retries(),
	}))
	m.logger.Info("room monitor stopped")
}

func (m *monitor) systemEvent(eventType, detail string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := m.deps.Store.InsertSystemEvent(ctx, &storage.SystemEvent{
		LiveID:    m.liveID,
		EventType: eventType,
		Detail:    detail,
	}); err != nil {
		m.logger.WithError(err).Debug("failed to record system event")
	}
}

// buildRouter 把各类消息接到会话跟踪器和事件总线上
func (m *monitor) buildRouter() *protocol.Router {
	return &protocol.Router{
		Logger: m.logger.Entry,
		OnChat: func(msg *protocol.ChatMessage) {
			m.tracker.OnChat(m.runCtx, msg)
			event := &ChatEvent{LiveID: m.liveID, Content: msg.Content, Time: time.Now()}
			if msg.User != nil {
				event.UserID = msg.User.ID
				event.UserName = msg.User.Nickname
			}
			m.deps.Dispatcher.DispatchEvent(events.NewEvent(EventChat, event))
		},
		OnGift: func(msg *protocol.GiftMessage) {
			event := m.deduper.Process(msg, time.Now())
			if event == nil {
				return
			}
			m.tracker.OnGift(m.runCtx, event)
			m.deps.Dispatcher.DispatchEvent(events.NewEvent(EventGift, &GiftEvent{
				LiveID:    m.liveID,
				GiftEvent: event,
			}))
		},
		OnControl: func(msg *protocol.ControlMessage) {
			if msg.Status != protocol.ControlStatusStreamEnded {
				return
			}
			m.streamEnded.Store(true)
			// 关闭连接让读循环尽快退出
			m.closeConn()
		},
		OnMember:      m.tracker.OnMember,
		OnLike:        m.tracker.OnLike,
		OnSocial:      m.tracker.OnSocial,
		OnRoomUserSeq: m.tracker.OnRoomUserSeq,
		OnFansclub:    m.tracker.OnFansclub,
		OnEmojiChat: func(msg *protocol.EmojiChatMessage) {
			m.tracker.OnEmojiChat(m.runCtx, msg)
		},
	}
}
