// Package sessions 把一个直播间的消息流聚合成"一场直播"，
// 维护会话内的弹幕、礼物、人气等累计指标并定期回写存储。
package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/dylive-go/dylive-go/src/dedup"
	applog "github.com/dylive-go/dylive-go/src/log"
	"github.com/dylive-go/dylive-go/src/protocol"
	"github.com/dylive-go/dylive-go/src/storage"
)

// 关注动作的 action 取值
const socialActionFollow = 1

// Tracker 单个直播间的会话跟踪器
// 所有 On* 回调由监控器的读循环串行调用，Snapshot 和 Flush 可能来自其他 goroutine
type Tracker struct {
	liveID string
	store  storage.Store

	mu         sync.Mutex
	sessionID  int64
	roomID     string
	anchorName string

	chatCount      int64
	giftCount      int64
	giftValue      int64
	currentViewers int64
	peakViewers    int64
	totalViewers   int64
	newFollowers   int64
	likeCount      int64
	memberCount    int64
}

func NewTracker(liveID string, store storage.Store) *Tracker {
	return &Tracker{liveID: liveID, store: store}
}

// SetRoomInfo 回填解析结果，供会话开场时落库
func (t *Tracker) SetRoomInfo(roomID, anchorName string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.roomID = roomID
	t.anchorName = anchorName
}

// Active 当前是否有进行中的会话
func (t *Tracker) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessionID != 0
}

// SessionID 当前会话 ID，没有会话时为 0
func (t *Tracker) SessionID() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessionID
}

// OpenSession 开始一场直播
// 存储层会复用未关闭的会话，重连不会产生新的一场
func (t *Tracker) OpenSession(ctx context.Context, startTime time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sessionID != 0 {
		return nil
	}

	id, err := t.store.StartSession(ctx, t.liveID, t.roomID, t.anchorName, startTime)
	if err != nil {
		return err
	}

	// 复用旧会话时把已落库的聚合读回来，避免 Flush 时清零
	if open, err := t.store.GetOpenSession(ctx, t.liveID); err == nil && open.ID == id {
		t.chatCount = open.ChatCount
		t.giftCount = open.GiftCount
		t.giftValue = open.GiftValue
		t.peakViewers = open.PeakViewers
		t.newFollowers = open.NewFollowers
		t.likeCount = open.LikeCount
		t.memberCount = open.MemberCount
	}

	t.sessionID = id
	applog.WithFields(map[string]interface{}{
		"live_id":    t.liveID,
		"session_id": id,
	}).Info("live session opened")
	return nil
}

// CloseSession 结束当前会话并回写最终聚合
func (t *Tracker) CloseSession(ctx context.Context, endTime time.Time, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sessionID == 0 {
		return nil
	}

	if err := t.flushLocked(ctx); err != nil {
		applog.WithFields(map[string]interface{}{
			"live_id": t.liveID,
			"error":   err,
		}).Warn("failed to flush session stats before close")
	}
	err := t.store.EndSession(ctx, t.sessionID, endTime, reason)
	applog.WithFields(map[string]interface{}{
		"live_id":    t.liveID,
		"session_id": t.sessionID,
		"reason":     reason,
		"chats":      t.chatCount,
		"gift_value": t.giftValue,
	}).Info("live session closed")

	t.sessionID = 0
	t.chatCount, t.giftCount, t.giftValue = 0, 0, 0
	t.currentViewers, t.peakViewers, t.totalViewers = 0, 0, 0
	t.newFollowers, t.likeCount, t.memberCount = 0, 0, 0
	return err
}

// OnChat 弹幕入库并累计
func (t *Tracker) OnChat(ctx context.Context, msg *protocol.ChatMessage) {
	t.mu.Lock()
	t.chatCount++
	sessionID := t.sessionID
	t.mu.Unlock()

	record := &storage.ChatRecord{LiveID: t.liveID, SessionID: sessionID, Content: msg.Content}
	if msg.Common != nil {
		record.MsgID = msg.Common.MsgID
	}
	if msg.User != nil {
		record.UserID = msg.User.ID
		record.UserName = msg.User.Nickname
	}
	if err := t.store.InsertChat(ctx, record); err != nil {
		applog.WithFields(map[string]interface{}{"live_id": t.liveID, "error": err}).Warn("insert chat failed")
	}
	if record.UserID != 0 {
		t.addContribution(ctx, record.UserID, record.UserName, 0, 0, 1)
	}
}

// OnGift 去重后的礼物事件入库并累计
func (t *Tracker) OnGift(ctx context.Context, event *dedup.GiftEvent) {
	t.mu.Lock()
	t.giftCount += event.DeltaCount
	t.giftValue += event.DeltaValue
	sessionID := t.sessionID
	t.mu.Unlock()

	record := &storage.GiftRecord{
		LiveID:       t.liveID,
		SessionID:    sessionID,
		TraceID:      event.TraceID,
		GroupID:      event.GroupID,
		GiftID:       event.GiftID,
		GiftName:     event.GiftName,
		DiamondCount: int64(event.DiamondCount),
		DeltaCount:   event.DeltaCount,
		DeltaValue:   event.DeltaValue,
		ComboCount:   int64(event.ComboCount),
		UserID:       event.UserID,
		UserName:     event.UserName,
	}
	if err := t.store.InsertGift(ctx, record); err != nil {
		applog.WithFields(map[string]interface{}{"live_id": t.liveID, "error": err}).Warn("insert gift failed")
	}
	if event.UserID != 0 {
		t.addContribution(ctx, event.UserID, event.UserName, event.DeltaValue, event.DeltaCount, 0)
	}
}

// OnRoomUserSeq 人气更新，total 是当前在线，峰值只增不减
func (t *Tracker) OnRoomUserSeq(msg *protocol.RoomUserSeqMessage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.currentViewers = int64(msg.Total)
	if t.currentViewers > t.peakViewers {
		t.peakViewers = t.currentViewers
	}
	if pv := protocol.ParseCompactNumber(msg.TotalPVForAnchor); pv > 0 {
		t.totalViewers = pv
	} else if msg.TotalUser > 0 {
		t.totalViewers = int64(msg.TotalUser)
	}
}

// OnLike 点赞消息带全场累计值
func (t *Tracker) OnLike(msg *protocol.LikeMessage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if total := int64(msg.Total); total > t.likeCount {
		t.likeCount = total
	} else {
		t.likeCount += int64(msg.Count)
	}
}

// OnSocial 只统计关注动作
func (t *Tracker) OnSocial(msg *protocol.SocialMessage) {
	if msg.Action != socialActionFollow {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.newFollowers++
}

// OnMember 进场消息
func (t *Tracker) OnMember(msg *protocol.MemberMessage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.memberCount++
	if count := int64(msg.MemberCount); count > t.currentViewers {
		t.currentViewers = count
		if count > t.peakViewers {
			t.peakViewers = count
		}
	}
}

// OnFansclub 粉丝团消息只记数，不单独落库
func (t *Tracker) OnFansclub(msg *protocol.FansclubMessage) {
	if msg.User == nil || msg.User.ID == 0 {
		return
	}
	t.addContribution(context.Background(), msg.User.ID, msg.User.Nickname, 0, 0, 0)
}

// OnEmojiChat 表情弹幕按普通弹幕计
func (t *Tracker) OnEmojiChat(ctx context.Context, msg *protocol.EmojiChatMessage) {
	t.OnChat(ctx, &protocol.ChatMessage{
		Common:  msg.Common,
		User:    msg.User,
		Content: msg.DefaultContent,
	})
}

// Snapshot 当前会话的聚合快照
func (t *Tracker) Snapshot() *storage.StatsSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return &storage.StatsSnapshot{
		LiveID:         t.liveID,
		SessionID:      t.sessionID,
		CurrentViewers: t.currentViewers,
		TotalViewers:   t.totalViewers,
		ChatCount:      t.chatCount,
		GiftValue:      t.giftValue,
	}
}

// Flush 把聚合回写到会话行
func (t *Tracker) Flush(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.flushLocked(ctx)
}

func (t *Tracker) flushLocked(ctx context.Context) error {
	if t.sessionID == 0 {
		return nil
	}
	return t.store.UpdateSessionStats(ctx, &storage.LiveSession{
		ID:           t.sessionID,
		ChatCount:    t.chatCount,
		GiftCount:    t.giftCount,
		GiftValue:    t.giftValue,
		PeakViewers:  t.peakViewers,
		NewFollowers: t.newFollowers,
		LikeCount:    t.likeCount,
		MemberCount:  t.memberCount,
	})
}

func (t *Tracker) addContribution(ctx context.Context, userID uint64, userName string, giftValue, giftCount, chatCount int64) {
	err := t.store.UpsertContribution(ctx, &storage.UserContribution{
		LiveID:    t.liveID,
		UserID:    userID,
		UserName:  userName,
		GiftValue: giftValue,
		GiftCount: giftCount,
		ChatCount: chatCount,
	})
	if err != nil {
		applog.WithFields(map[string]interface{}{"live_id": t.liveID, "error": err}).Warn("upsert contribution failed")
	}
}
