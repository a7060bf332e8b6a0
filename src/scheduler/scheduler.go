// Package scheduler 承担周期性任务：拉起出错的直播间、落地人气快照、
// 清理过期明细，以及启动时自动恢复 24 小时模式的房间。
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/dylive-go/dylive-go/src/configs"
	"github.com/dylive-go/dylive-go/src/consts"
	"github.com/dylive-go/dylive-go/src/instance"
	"github.com/dylive-go/dylive-go/src/interfaces"
	applog "github.com/dylive-go/dylive-go/src/log"
	"github.com/dylive-go/dylive-go/src/pkg/dysentry"
	"github.com/dylive-go/dylive-go/src/rooms"
	"github.com/dylive-go/dylive-go/src/storage"
	"github.com/dylive-go/dylive-go/src/types"
)

type Scheduler interface {
	interfaces.Module
}

func NewScheduler(ctx context.Context, manager rooms.Manager, store storage.Store) Scheduler {
	s := &scheduler{
		manager: manager,
		store:   store,
		stop:    make(chan struct{}),
	}
	if inst := instance.GetInstance(ctx); inst != nil {
		inst.Scheduler = s
	}
	return s
}

type scheduler struct {
	manager rooms.Manager
	store   storage.Store

	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

func (s *scheduler) Start(ctx context.Context) error {
	cfg := configs.GetCurrentConfig()

	if cfg.Scheduler.AutoStartRooms {
		dysentry.GoWithContext(ctx, s.autoStartRooms)
	}

	s.runEvery(ctx, cfg.Scheduler.RestartFailedInterval, s.restartFailedRooms)
	s.runEvery(ctx, cfg.Scheduler.StatsSnapshotInterval, s.snapshotStats)
	s.runEvery(ctx, cfg.Scheduler.CleanupInterval, s.cleanupOldData)
	return nil
}

func (s *scheduler) Close(ctx context.Context) {
	s.once.Do(func() { close(s.stop) })
	s.wg.Wait()
}

func (s *scheduler) runEvery(ctx context.Context, interval time.Duration, job func(ctx context.Context)) {
	if interval <= 0 {
		return
	}
	s.wg.Add(1)
	dysentry.GoWithContext(ctx, func(ctx context.Context) {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				job(ctx)
			}
		}
	})
}

// autoStartRooms 启动时恢复库里登记的 24 小时模式房间
func (s *scheduler) autoStartRooms(ctx context.Context) {
	roomList, err := s.store.GetAllLiveRooms(ctx)
	if err != nil {
		applog.GetLogger().WithError(err).Error("failed to load rooms for auto start")
		return
	}
	started := 0
	for _, room := range roomList {
		if room.MonitorType != consts.MonitorType24h {
			continue
		}
		if s.manager.HasMonitor(types.LiveID(room.LiveID)) {
			continue
		}
		if err := s.manager.StartRoom(ctx, types.LiveID(room.LiveID)); err != nil {
			applog.WithFields(map[string]interface{}{
				"live_id": room.LiveID,
				"error":   err,
			}).Error("failed to auto start room")
			continue
		}
		started++
	}
	if started > 0 {
		applog.WithFields(map[string]interface{}{"rooms": started}).Info("auto started rooms")
	}
}

// restartFailedRooms 重新拉起停在 error 状态的房间。
// 只处理 24 小时模式且开了自动重连的房间，手动模式的失败由人工介入
func (s *scheduler) restartFailedRooms(ctx context.Context) {
	roomList, err := s.store.GetAllLiveRooms(ctx)
	if err != nil {
		return
	}
	for _, room := range roomList {
		if room.Status != consts.RoomStatusError {
			continue
		}
		if room.MonitorType != consts.MonitorType24h || !room.AutoReconnect {
			continue
		}
		if s.manager.HasMonitor(types.LiveID(room.LiveID)) {
			continue
		}
		applog.WithFields(map[string]interface{}{"live_id": room.LiveID}).Info("restarting failed room")
		if err := s.manager.StartRoom(ctx, types.LiveID(room.LiveID)); err != nil {
			applog.WithFields(map[string]interface{}{
				"live_id": room.LiveID,
				"error":   err,
			}).Warn("failed to restart room")
		}
	}
}

// snapshotStats 给每个有进行中会话的房间落一条人气快照，并回写会话聚合
func (s *scheduler) snapshotStats(ctx context.Context) {
	statuses, err := s.manager.GetAllRoomsStatus(ctx)
	if err != nil {
		return
	}
	for _, status := range statuses {
		mon, err := s.manager.GetMonitor(types.LiveID(status.LiveID))
		if err != nil {
			continue
		}
		tracker := mon.Tracker()
		if tracker == nil || !tracker.Active() {
			continue
		}
		if err := s.store.InsertStats(ctx, tracker.Snapshot()); err != nil {
			applog.WithFields(map[string]interface{}{
				"live_id": status.LiveID,
				"error":   err,
			}).Warn("failed to insert stats snapshot")
		}
		if err := tracker.Flush(ctx); err != nil {
			applog.WithFields(map[string]interface{}{
				"live_id": status.LiveID,
				"error":   err,
			}).Warn("failed to flush session stats")
		}
	}
}

func (s *scheduler) cleanupOldData(ctx context.Context) {
	cfg := configs.GetCurrentConfig()
	removed, err := s.store.CleanupOldData(ctx, cfg.Scheduler.RetentionDays)
	if err != nil {
		applog.GetLogger().WithError(err).Error("failed to cleanup old data")
		return
	}
	if removed > 0 {
		applog.WithFields(map[string]interface{}{
			"rows":           removed,
			"retention_days": cfg.Scheduler.RetentionDays,
		}).Info("cleaned up old data")
	}
}
