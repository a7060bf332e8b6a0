package sessions

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dylive-go/dylive-go/src/dedup"
	"github.com/dylive-go/dylive-go/src/protocol"
	"github.com/dylive-go/dylive-go/src/storage"
)

func newTracker(t *testing.T) (*Tracker, storage.Store) {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.UpsertLiveRoom(context.Background(), &storage.LiveRoom{
		LiveID: "168465302284", MonitorType: "24h",
	}))
	tracker := NewTracker("168465302284", store)
	tracker.SetRoomInfo("7418394362793331496", "主播甲")
	return tracker, store
}

func TestSessionOpenCloseLifecycle(t *testing.T) {
	tracker, store := newTracker(t)
	ctx := context.Background()
	start := time.Now()

	require.NoError(t, tracker.OpenSession(ctx, start))
	require.True(t, tracker.Active())
	id := tracker.SessionID()

	// 重复开场复用同一会话
	require.NoError(t, tracker.OpenSession(ctx, start.Add(time.Minute)))
	assert.Equal(t, id, tracker.SessionID())

	tracker.OnChat(ctx, &protocol.ChatMessage{
		Common:  &protocol.Common{MsgID: 1},
		User:    &protocol.User{ID: 100, Nickname: "观众甲"},
		Content: "主播好",
	})
	tracker.OnGift(ctx, &dedup.GiftEvent{
		TraceID: "t1", GiftID: 685, GiftName: "玫瑰",
		DeltaCount: 3, DeltaValue: 3, UserID: 100, UserName: "观众甲",
	})
	tracker.OnRoomUserSeq(&protocol.RoomUserSeqMessage{Total: 1200, TotalPVForAnchor: "1.5万"})
	tracker.OnRoomUserSeq(&protocol.RoomUserSeqMessage{Total: 800})

	require.NoError(t, tracker.CloseSession(ctx, start.Add(time.Hour), "stream_ended"))
	assert.False(t, tracker.Active())

	sessions, err := store.GetSessionsByLiveID(ctx, "168465302284", 1)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	got := sessions[0]
	assert.Equal(t, int64(1), got.ChatCount)
	assert.Equal(t, int64(3), got.GiftCount)
	assert.Equal(t, int64(3), got.GiftValue)
	assert.Equal(t, int64(1200), got.PeakViewers) // 峰值只增不减
	assert.Equal(t, "stream_ended", got.EndReason)
	assert.Equal(t, "主播甲", got.AnchorName)
}

func TestReopenRestoresAggregates(t *testing.T) {
	tracker, store := newTracker(t)
	ctx := context.Background()

	require.NoError(t, tracker.OpenSession(ctx, time.Now()))
	tracker.OnChat(ctx, &protocol.ChatMessage{User: &protocol.User{ID: 1, Nickname: "a"}, Content: "x"})
	require.NoError(t, tracker.Flush(ctx))

	// 模拟重连后用新 tracker 接管同一会话
	fresh := NewTracker("168465302284", store)
	require.NoError(t, fresh.OpenSession(ctx, time.Now()))
	fresh.OnChat(ctx, &protocol.ChatMessage{User: &protocol.User{ID: 2, Nickname: "b"}, Content: "y"})
	require.NoError(t, fresh.Flush(ctx))

	open, err := store.GetOpenSession(ctx, "168465302284")
	require.NoError(t, err)
	assert.Equal(t, int64(2), open.ChatCount)
}

func TestFollowerAndMemberCounting(t *testing.T) {
	tracker, _ := newTracker(t)
	ctx := context.Background()
	require.NoError(t, tracker.OpenSession(ctx, time.Now()))

	tracker.OnSocial(&protocol.SocialMessage{Action: 1})
	tracker.OnSocial(&protocol.SocialMessage{Action: 3}) // 分享不计入关注
	tracker.OnSocial(&protocol.SocialMessage{Action: 1})
	tracker.OnMember(&protocol.MemberMessage{MemberCount: 500})
	tracker.OnLike(&protocol.LikeMessage{Count: 10, Total: 3000})
	tracker.OnLike(&protocol.LikeMessage{Count: 10}) // 没有累计值时做增量

	require.NoError(t, tracker.Flush(ctx))
	snap := tracker.Snapshot()
	assert.Equal(t, int64(500), snap.CurrentViewers)

	require.NoError(t, tracker.CloseSession(ctx, time.Now(), "manual"))
}

func TestEmojiChatCountsAsChat(t *testing.T) {
	tracker, store := newTracker(t)
	ctx := context.Background()
	require.NoError(t, tracker.OpenSession(ctx, time.Now()))

	tracker.OnEmojiChat(ctx, &protocol.EmojiChatMessage{
		User:           &protocol.User{ID: 9, Nickname: "表情人"},
		DefaultContent: "[比心]",
	})

	chats, err := store.GetRecentChats(ctx, "168465302284", 10)
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, "[比心]", chats[0].Content)
}

func TestLeaderboardFromTrackerEvents(t *testing.T) {
	tracker, store := newTracker(t)
	ctx := context.Background()
	require.NoError(t, tracker.OpenSession(ctx, time.Now()))

	tracker.OnGift(ctx, &dedup.GiftEvent{TraceID: "t1", DeltaCount: 1, DeltaValue: 100, UserID: 55, UserName: "大哥"})
	tracker.OnGift(ctx, &dedup.GiftEvent{TraceID: "t2", DeltaCount: 2, DeltaValue: 2, UserID: 77, UserName: "路人"})
	tracker.OnChat(ctx, &protocol.ChatMessage{User: &protocol.User{ID: 77, Nickname: "路人"}, Content: "666"})

	board, err := store.GetLeaderboard(ctx, "168465302284", 10)
	require.NoError(t, err)
	require.Len(t, board, 2)
	assert.Equal(t, uint64(55), board[0].UserID)
	assert.Equal(t, int64(100), board[0].GiftValue)
	assert.Equal(t, int64(1), board[1].ChatCount)
}

func TestCloseWithoutOpenIsNoop(t *testing.T) {
	tracker, _ := newTracker(t)
	assert.NoError(t, tracker.CloseSession(context.Background(), time.Now(), "manual"))
}
