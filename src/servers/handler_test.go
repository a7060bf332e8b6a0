package servers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dylive-go/dylive-go/src/configs"
	"github.com/dylive-go/dylive-go/src/consts"
	"github.com/dylive-go/dylive-go/src/instance"
	"github.com/dylive-go/dylive-go/src/monitor"
	"github.com/dylive-go/dylive-go/src/pkg/events"
	"github.com/dylive-go/dylive-go/src/pkg/roomlogger"
	"github.com/dylive-go/dylive-go/src/rooms"
	"github.com/dylive-go/dylive-go/src/sessions"
	"github.com/dylive-go/dylive-go/src/storage"
	"github.com/dylive-go/dylive-go/src/types"
)

type fakeMonitor struct {
	liveID string
	logger *roomlogger.RoomLogger
}

func (f *fakeMonitor) Start() error                   { return nil }
func (f *fakeMonitor) Close()                         {}
func (f *fakeMonitor) LiveID() string                 { return f.liveID }
func (f *fakeMonitor) State() monitor.State           { return monitor.StateConnected }
func (f *fakeMonitor) Retries() int                   { return 0 }
func (f *fakeMonitor) Tracker() *sessions.Tracker     { return nil }
func (f *fakeMonitor) Logger() *roomlogger.RoomLogger { return f.logger }

// fakeManager 用存储做后端，只记录动作调用
type fakeManager struct {
	store storage.Store

	mu       sync.Mutex
	actions  []string
	monitors map[string]monitor.Monitor
}

func (f *fakeManager) Start(ctx context.Context) error { return nil }
func (f *fakeManager) Close(ctx context.Context)       {}

func (f *fakeManager) AddRoom(ctx context.Context, room *storage.LiveRoom) error {
	if room.MonitorType == "" {
		room.MonitorType = consts.MonitorType24h
	}
	if err := f.store.UpsertLiveRoom(ctx, room); err != nil {
		return err
	}
	f.record("add:" + room.LiveID)
	return nil
}

func (f *fakeManager) RemoveRoom(ctx context.Context, liveID types.LiveID) error {
	f.record("remove:" + string(liveID))
	return f.store.DeleteLiveRoom(ctx, string(liveID))
}

func (f *fakeManager) StartRoom(ctx context.Context, liveID types.LiveID) error {
	if _, err := f.store.GetLiveRoom(ctx, string(liveID)); err != nil {
		return err
	}
	f.record("start:" + string(liveID))
	return nil
}

func (f *fakeManager) StopRoom(ctx context.Context, liveID types.LiveID) error {
	f.mu.Lock()
	_, monitored := f.monitors[string(liveID)]
	f.mu.Unlock()
	if !monitored {
		return rooms.ErrRoomNotMonitored
	}
	f.record("stop:" + string(liveID))
	return nil
}

func (f *fakeManager) RestartRoom(ctx context.Context, liveID types.LiveID) error {
	f.record("restart:" + string(liveID))
	return nil
}

func (f *fakeManager) GetMonitor(liveID types.LiveID) (monitor.Monitor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if mon, ok := f.monitors[string(liveID)]; ok {
		return mon, nil
	}
	return nil, rooms.ErrRoomNotMonitored
}

func (f *fakeManager) HasMonitor(liveID types.LiveID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.monitors[string(liveID)]
	return ok
}

func (f *fakeManager) GetRoomStatus(ctx context.Context, liveID types.LiveID) (*rooms.RoomStatus, error) {
	room, err := f.store.GetLiveRoom(ctx, string(liveID))
	if err != nil {
		return nil, err
	}
	return &rooms.RoomStatus{LiveRoom: room, ConnState: monitor.StateDisconnected.String()}, nil
}

func (f *fakeManager) GetAllRoomsStatus(ctx context.Context) ([]*rooms.RoomStatus, error) {
	roomList, err := f.store.GetAllLiveRooms(ctx)
	if err != nil {
		return nil, err
	}
	statuses := make([]*rooms.RoomStatus, 0, len(roomList))
	for _, room := range roomList {
		statuses = append(statuses, &rooms.RoomStatus{LiveRoom: room})
	}
	return statuses, nil
}

func (f *fakeManager) record(action string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, action)
}

func (f *fakeManager) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.actions...)
}

func newTestServer(t *testing.T) (http.Handler, *fakeManager, storage.Store) {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	configs.SetCurrentConfig(configs.NewConfig())

	manager := &fakeManager{store: store, monitors: make(map[string]monitor.Monitor)}
	inst := &instance.Instance{Store: store, RoomManager: manager}
	inst.EventDispatcher = events.NewDispatcher(context.Background())

	router := mux.NewRouter()
	initMux(router)
	return withInstance(inst, router), manager, store
}

func doRequest(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestGetAppInfo(t *testing.T) {
	handler, _, _ := newTestServer(t)

	rec := doRequest(t, handler, "GET", "/api/info", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var info consts.Info
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, consts.AppName, info.AppName)
}

func TestAddRoomValidation(t *testing.T) {
	handler, manager, _ := newTestServer(t)

	t.Run("live_id 非数字", func(t *testing.T) {
		rec := doRequest(t, handler, "POST", "/api/rooms", `{"live_id":"abc"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("monitor_type 非法", func(t *testing.T) {
		rec := doRequest(t, handler, "POST", "/api/rooms", `{"live_id":"168465302284","monitor_type":"hourly"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	assert.Empty(t, manager.recorded())
}

func TestAddAndGetRoom(t *testing.T) {
	handler, manager, _ := newTestServer(t)

	rec := doRequest(t, handler, "POST", "/api/rooms", `{"live_id":"168465302284","monitor_type":"manual"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"add:168465302284"}, manager.recorded())

	var status rooms.RoomStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "168465302284", status.LiveID)
	assert.Equal(t, consts.MonitorTypeManual, status.MonitorType)

	rec = doRequest(t, handler, "GET", "/api/rooms", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var statuses []*rooms.RoomStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &statuses))
	require.Len(t, statuses, 1)

	rec = doRequest(t, handler, "GET", "/api/rooms/168465302284", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, handler, "GET", "/api/rooms/999", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRoomActions(t *testing.T) {
	handler, manager, store := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertLiveRoom(ctx, &storage.LiveRoom{
		LiveID: "168465302284", MonitorType: consts.MonitorType24h,
	}))

	rec := doRequest(t, handler, "GET", "/api/rooms/168465302284/start", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	// 未在监控中的房间无法停止
	rec = doRequest(t, handler, "GET", "/api/rooms/168465302284/stop", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	manager.monitors["168465302284"] = &fakeMonitor{liveID: "168465302284"}
	rec = doRequest(t, handler, "GET", "/api/rooms/168465302284/stop", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	// 未登记的房间返回 404
	rec = doRequest(t, handler, "GET", "/api/rooms/999/start", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	assert.Equal(t, []string{"start:168465302284", "stop:168465302284"}, manager.recorded())
}

func TestRemoveRoom(t *testing.T) {
	handler, _, store := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertLiveRoom(ctx, &storage.LiveRoom{
		LiveID: "168465302284", MonitorType: consts.MonitorType24h,
	}))

	rec := doRequest(t, handler, "DELETE", "/api/rooms/168465302284", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, handler, "GET", "/api/rooms/168465302284", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, handler, "DELETE", "/api/rooms/168465302284", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRoomDataQueries(t *testing.T) {
	handler, _, store := newTestServer(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, store.InsertChat(ctx, &storage.ChatRecord{
			LiveID: "r1", UserID: 7, UserName: "观众甲", Content: "弹幕",
		}))
	}
	require.NoError(t, store.InsertGift(ctx, &storage.GiftRecord{
		LiveID: "r1", GiftName: "小心心", DeltaCount: 1, DeltaValue: 1, UserID: 7,
	}))
	require.NoError(t, store.UpsertContribution(ctx, &storage.UserContribution{
		LiveID: "r1", UserID: 7, UserName: "观众甲", GiftValue: 10, GiftCount: 1,
	}))

	rec := doRequest(t, handler, "GET", "/api/rooms/r1/chats?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var chats []*storage.ChatRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &chats))
	assert.Len(t, chats, 2)

	rec = doRequest(t, handler, "GET", "/api/rooms/r1/gifts", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var gifts []*storage.GiftRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &gifts))
	require.Len(t, gifts, 1)
	assert.Equal(t, "小心心", gifts[0].GiftName)

	rec = doRequest(t, handler, "GET", "/api/rooms/r1/leaderboard", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var board []*storage.UserContribution
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &board))
	require.Len(t, board, 1)
	assert.Equal(t, int64(10), board[0].GiftValue)

	rec = doRequest(t, handler, "GET", "/api/rooms/r1/sessions", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, handler, "GET", "/api/rooms/r1/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRoomLogs(t *testing.T) {
	handler, manager, _ := newTestServer(t)

	logger := roomlogger.New(4096, map[string]interface{}{"live_id": "r1"}, "r1")
	logger.Info("connected to room")
	manager.monitors["r1"] = &fakeMonitor{liveID: "r1", logger: logger}

	rec := doRequest(t, handler, "GET", "/api/rooms/r1/logs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "connected to room")

	rec = doRequest(t, handler, "GET", "/api/rooms/r2/logs", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPutProxyConfig(t *testing.T) {
	handler, _, _ := newTestServer(t)

	rec := doRequest(t, handler, "PUT", "/api/config/proxy", `{"enable":true,"url":"socks5://127.0.0.1:1080"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	cfg := configs.GetCurrentConfig()
	assert.True(t, cfg.Proxy.Enable)
	assert.Equal(t, "socks5://127.0.0.1:1080", cfg.Proxy.URL)

	// 更新后新发起的建连立即走新代理
	u, err := configs.ProxyFunc(nil)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "socks5://127.0.0.1:1080", u.String())

	rec = doRequest(t, handler, "PUT", "/api/config/proxy", `{"enable":true,"url":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, handler, "PUT", "/api/config/proxy", `{"enable":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, configs.GetCurrentConfig().Proxy.Enable)
}

func TestPutDouyinConfig(t *testing.T) {
	handler, _, _ := newTestServer(t)

	rec := doRequest(t, handler, "PUT", "/api/config/douyin", `{"ttwid":"1%7CfPx","user_agent":"Mozilla/5.0"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	cfg := configs.GetCurrentConfig()
	assert.Equal(t, "1%7CfPx", cfg.Douyin.TTWid)
	assert.Equal(t, "Mozilla/5.0", cfg.Douyin.UserAgent)
}
