// Package rooms 管理多个直播间监控器的生命周期。
package rooms

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dylive-go/dylive-go/src/consts"
	"github.com/dylive-go/dylive-go/src/instance"
	"github.com/dylive-go/dylive-go/src/interfaces"
	applog "github.com/dylive-go/dylive-go/src/log"
	"github.com/dylive-go/dylive-go/src/monitor"
	"github.com/dylive-go/dylive-go/src/pkg/dysentry"
	"github.com/dylive-go/dylive-go/src/pkg/events"
	"github.com/dylive-go/dylive-go/src/storage"
	"github.com/dylive-go/dylive-go/src/types"
)

var (
	ErrRoomExist        = errors.New("room already monitored")
	ErrRoomNotMonitored = errors.New("room not monitored")
)

// BroadcastRoomStatusFunc 用于向外广播房间状态的回调，由 servers 包设置
type BroadcastRoomStatusFunc func(liveID types.LiveID, status *RoomStatus)

var broadcastRoomStatusFunc BroadcastRoomStatusFunc

// SetBroadcastRoomStatusFunc 设置房间状态广播函数
func SetBroadcastRoomStatusFunc(fn BroadcastRoomStatusFunc) {
	broadcastRoomStatusFunc = fn
}

// RoomStatus 直播间的存储信息加运行时状态
type RoomStatus struct {
	*storage.LiveRoom
	ConnState      string `json:"conn_state"`
	Retries        int    `json:"retries"`
	SessionID      int64  `json:"session_id,omitempty"`
	CurrentViewers int64  `json:"current_viewers,omitempty"`
	ChatCount      int64  `json:"chat_count,omitempty"`
	GiftValue      int64  `json:"gift_value,omitempty"`
}

type Manager interface {
	interfaces.Module
	AddRoom(ctx context.Context, room *storage.LiveRoom) error
	RemoveRoom(ctx context.Context, liveID types.LiveID) error
	StartRoom(ctx context.Context, liveID types.LiveID) error
	StopRoom(ctx context.Context, liveID types.LiveID) error
	RestartRoom(ctx context.Context, liveID types.LiveID) error
	GetMonitor(liveID types.LiveID) (monitor.Monitor, error)
	HasMonitor(liveID types.LiveID) bool
	GetRoomStatus(ctx context.Context, liveID types.LiveID) (*RoomStatus, error)
	GetAllRoomsStatus(ctx context.Context) ([]*RoomStatus, error)
}

// for test
var newMonitor = monitor.NewMonitor

func NewManager(ctx context.Context, deps monitor.Deps) Manager {
	rm := &manager{
		deps:         deps,
		monitors:     make(map[types.LiveID]monitor.Monitor),
		statusStopCh: make(chan struct{}),
	}
	instance.GetInstance(ctx).RoomManager = rm
	return rm
}

type manager struct {
	deps monitor.Deps

	lock     sync.RWMutex
	monitors map[types.LiveID]monitor.Monitor

	statusTicker *time.Ticker
	statusStopCh chan struct{}
	statusWg     sync.WaitGroup
}

func (m *manager) Start(ctx context.Context) error {
	inst := instance.GetInstance(ctx)
	inst.WaitGroup.Add(1)

	// 回收上次异常退出遗留的监控中状态
	if fixed, err := m.deps.Store.ReconcileStaleStatuses(ctx); err != nil {
		applog.GetLogger().WithError(err).Warn("failed to reconcile stale room statuses")
	} else if fixed > 0 {
		applog.WithFields(map[string]interface{}{"rooms": fixed}).Info("reconciled stale room statuses")
	}

	m.registryListener(ctx, inst.EventDispatcher.(events.Dispatcher))
	m.startStatusBroadcaster(ctx)
	return nil
}

func (m *manager) Close(ctx context.Context) {
	if m.statusTicker != nil {
		m.statusTicker.Stop()
	}
	if m.statusStopCh != nil {
		close(m.statusStopCh)
		m.statusWg.Wait()
	}

	m.lock.Lock()
	defer m.lock.Unlock()
	for id, mon := range m.monitors {
		mon.Close()
		delete(m.monitors, id)
	}
	instance.GetInstance(ctx).WaitGroup.Done()
}

// registryListener 监控器自行退出（重试耗尽、手动模式下播、关闭了
// 自动重连）后，把它从管理表里摘掉，留给定时任务或手动操作重新拉起。
// 只在表里登记的监控器确实已停止时才摘除，避免误删刚换上的新监控器
func (m *manager) registryListener(ctx context.Context, ed events.Dispatcher) {
	ed.AddEventListener(monitor.EventStateChanged, events.NewEventListener(func(event *events.Event) {
		state := event.Object.(*monitor.StateEvent)
		if state.State != monitor.StateStopped.String() {
			return
		}
		liveID := types.LiveID(state.LiveID)
		m.lock.Lock()
		if mon, ok := m.monitors[liveID]; ok && mon.State() == monitor.StateStopped {
			delete(m.monitors, liveID)
		}
		m.lock.Unlock()
	}))
}

// AddRoom 登记直播间并立即开始监控
func (m *manager) AddRoom(ctx context.Context, room *storage.LiveRoom) error {
	if room.MonitorType == "" {
		room.MonitorType = consts.MonitorType24h
	}
	if err := m.deps.Store.UpsertLiveRoom(ctx, room); err != nil {
		return err
	}
	return m.StartRoom(ctx, types.LiveID(room.LiveID))
}

// RemoveRoom 停止监控并删除直播间的全部数据
func (m *manager) RemoveRoom(ctx context.Context, liveID types.LiveID) error {
	m.lock.Lock()
	if mon, ok := m.monitors[liveID]; ok {
		mon.Close()
		delete(m.monitors, liveID)
	}
	m.lock.Unlock()
	return m.deps.Store.DeleteLiveRoom(ctx, string(liveID))
}

// StartRoom 为已登记的直播间启动监控器
func (m *manager) StartRoom(ctx context.Context, liveID types.LiveID) error {
	room, err := m.deps.Store.GetLiveRoom(ctx, string(liveID))
	if err != nil {
		return err
	}

	m.lock.Lock()
	defer m.lock.Unlock()
	if old, ok := m.monitors[liveID]; ok {
		// 已停止但尚未被事件摘除的监控器可以直接替换
		if old.State() != monitor.StateStopped {
			return ErrRoomExist
		}
		old.Close()
	}
	mon := newMonitor(ctx, room, m.deps)
	m.monitors[liveID] = mon
	return mon.Start()
}

// StopRoom 停止监控，数据保留
func (m *manager) StopRoom(ctx context.Context, liveID types.LiveID) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	mon, ok := m.monitors[liveID]
	if !ok {
		return ErrRoomNotMonitored
	}
	mon.Close()
	delete(m.monitors, liveID)
	return nil
}

func (m *manager) RestartRoom(ctx context.Context, liveID types.LiveID) error {
	if err := m.StopRoom(ctx, liveID); err != nil && !errors.Is(err, ErrRoomNotMonitored) {
		return err
	}
	return m.StartRoom(ctx, liveID)
}

func (m *manager) GetMonitor(liveID types.LiveID) (monitor.Monitor, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	mon, ok := m.monitors[liveID]
	if !ok {
		return nil, ErrRoomNotMonitored
	}
	return mon, nil
}

func (m *manager) HasMonitor(liveID types.LiveID) bool {
	m.lock.RLock()
	defer m.lock.RUnlock()
	_, ok := m.monitors[liveID]
	return ok
}

func (m *manager) GetRoomStatus(ctx context.Context, liveID types.LiveID) (*RoomStatus, error) {
	room, err := m.deps.Store.GetLiveRoom(ctx, string(liveID))
	if err != nil {
		return nil, err
	}
	return m.buildStatus(room), nil
}

func (m *manager) GetAllRoomsStatus(ctx context.Context) ([]*RoomStatus, error) {
	rooms, err := m.deps.Store.GetAllLiveRooms(ctx)
	if err != nil {
		return nil, err
	}
	statuses := make([]*RoomStatus, 0, len(rooms))
	for _, room := range rooms {
		statuses = append(statuses, m.buildStatus(room))
	}
	return statuses, nil
}

func (m *manager) buildStatus(room *storage.LiveRoom) *RoomStatus {
	status := &RoomStatus{
		LiveRoom:  room,
		ConnState: monitor.StateDisconnected.String(),
	}
	m.lock.RLock()
	mon, ok := m.monitors[types.LiveID(room.LiveID)]
	m.lock.RUnlock()
	if !ok {
		return status
	}
	status.ConnState = mon.State().String()
	status.Retries = mon.Retries()
	if snap := mon.Tracker().Snapshot(); snap.SessionID != 0 {
		status.SessionID = snap.SessionID
		status.CurrentViewers = snap.CurrentViewers
		status.ChatCount = snap.ChatCount
		status.GiftValue = snap.GiftValue
	}
	return status
}

// startStatusBroadcaster 周期性向外广播所有房间状态（SSE 用）
func (m *manager) startStatusBroadcaster(ctx context.Context) {
	m.statusTicker = time.NewTicker(5 * time.Second)
	m.statusWg.Add(1)
	dysentry.Go(func() {
		defer m.statusWg.Done()
		for {
			select {
			case <-m.statusStopCh:
				return
			case <-m.statusTicker.C:
				m.broadcastAllRoomStatus(ctx)
			}
		}
	})
}

func (m *manager) broadcastAllRoomStatus(ctx context.Context) {
	if broadcastRoomStatusFunc == nil {
		return
	}
	statuses, err := m.GetAllRoomsStatus(ctx)
	if err != nil {
		return
	}
	for _, status := range statuses {
		broadcastRoomStatusFunc(types.LiveID(status.LiveID), status)
	}
}
