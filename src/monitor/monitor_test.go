package monitor

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dylive-go/dylive-go/src/configs"
	"github.com/dylive-go/dylive-go/src/consts"
	"github.com/dylive-go/dylive-go/src/douyin"
	"github.com/dylive-go/dylive-go/src/pkg/events"
	"github.com/dylive-go/dylive-go/src/protocol"
	"github.com/dylive-go/dylive-go/src/storage"
)

// fakeProber 按脚本回放探测结果
type fakeProber struct {
	mu      sync.Mutex
	results []probeResult
	idx     int
}

type probeResult struct {
	info *douyin.RoomInfo
	err  error
}

func (p *fakeProber) RoomStatus(liveID string) (*douyin.RoomInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r := p.results[p.idx]
	if p.idx < len(p.results)-1 {
		p.idx++
	}
	return r.info, r.err
}

func (p *fakeProber) TTWid() (string, error) { return "test-ttwid", nil }

type fakeSigner struct{}

func (fakeSigner) Sign(string) (string, error) { return "test-signature", nil }

// fakeConn 从预置帧队列读取，记录所有写出的帧
type fakeConn struct {
	frames chan []byte

	mu     sync.Mutex
	writes [][]byte

	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn(frames ...[]byte) *fakeConn {
	c := &fakeConn{
		frames: make(chan []byte, len(frames)+8),
		closed: make(chan struct{}),
	}
	for _, f := range frames {
		c.frames <- f
	}
	return c
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case f := <-c.frames:
		return websocket.BinaryMessage, f, nil
	case <-c.closed:
		return 0, nil, errors.New("use of closed connection")
	}
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	select {
	case <-c.closed:
		return errors.New("use of closed connection")
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) writtenFrames() []*protocol.PushFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	var frames []*protocol.PushFrame
	for _, raw := range c.writes {
		if f, err := protocol.DecodePushFrame(raw); err == nil {
			frames = append(frames, f)
		}
	}
	return frames
}

// fakeDialer 按脚本返回连接或错误
type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	errs  []error
	dials int
}

func (d *fakeDialer) Dial(ctx context.Context, wssURL, ttwid, userAgent string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := d.dials
	d.dials++
	if i < len(d.errs) && d.errs[i] != nil {
		return nil, d.errs[i]
	}
	if len(d.conns) == 0 {
		return nil, errors.New("no more conns")
	}
	conn := d.conns[0]
	if len(d.conns) > 1 {
		d.conns = d.conns[1:]
	}
	return conn, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// 测试侧的 wire 编码辅助

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func buildFrame(t *testing.T, logID uint64, needAck bool, internalExt string, msgs ...[2][]byte) []byte {
	t.Helper()
	var resp []byte
	for _, m := range msgs {
		var wireMsg []byte
		wireMsg = appendString(wireMsg, 1, string(m[0]))
		wireMsg = appendBytes(wireMsg, 2, m[1])
		resp = appendBytes(resp, 1, wireMsg)
	}
	resp = appendString(resp, 5, internalExt)
	if needAck {
		resp = appendVarint(resp, 9, 1)
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(resp)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	frame := &protocol.PushFrame{
		LogID:           logID,
		PayloadEncoding: "gzip",
		PayloadType:     protocol.PayloadTypeMsg,
		Payload:         buf.Bytes(),
	}
	return frame.Marshal()
}

func chatPayload(content string) []byte {
	var user []byte
	user = appendVarint(user, 1, 100)
	user = appendString(user, 3, "观众甲")
	var b []byte
	b = appendBytes(b, 2, user)
	b = appendString(b, 3, content)
	return b
}

func controlEndPayload() []byte {
	var b []byte
	b = appendVarint(b, 2, protocol.ControlStatusStreamEnded)
	return b
}

func liveInfo() *douyin.RoomInfo {
	return &douyin.RoomInfo{
		LiveID:     "168465302284",
		RoomID:     "7418394362793331496",
		IsLive:     true,
		AnchorName: "主播甲",
	}
}

func offlineInfo() *douyin.RoomInfo {
	info := liveInfo()
	info.IsLive = false
	info.RoomStatus = 2
	return info
}

func testConfig() *configs.Config {
	cfg := configs.NewConfig()
	cfg.Monitor.HeartbeatInterval = 10 * time.Millisecond
	cfg.Monitor.ReconnectDelay = 10 * time.Millisecond
	cfg.Monitor.MaxRetries = 2
	cfg.Monitor.PollInterval = 20 * time.Millisecond
	return cfg
}

func newTestDeps(t *testing.T, prober RoomProber, dialer Dialer) (Deps, storage.Store) {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.UpsertLiveRoom(context.Background(), &storage.LiveRoom{
		LiveID: "168465302284", MonitorType: consts.MonitorType24h, AutoReconnect: true,
	}))

	return Deps{
		Config:     testConfig(),
		Prober:     prober,
		Signer:     fakeSigner{},
		Dialer:     dialer,
		Store:      store,
		Dispatcher: events.NewDispatcher(context.Background()),
	}, store
}

func TestStreamEndManualModeStops(t *testing.T) {
	conn := newFakeConn(buildFrame(t, 1, false, "", [2][]byte{[]byte(protocol.MethodControl), controlEndPayload()}))
	prober := &fakeProber{results: []probeResult{{info: liveInfo()}}}
	deps, store := newTestDeps(t, prober, &fakeDialer{conns: []*fakeConn{conn}})

	m := NewMonitor(context.Background(), &storage.LiveRoom{
		LiveID: "168465302284", MonitorType: consts.MonitorTypeManual, AutoReconnect: true,
	}, deps)
	require.NoError(t, m.Start())

	require.Eventually(t, func() bool {
		room, err := store.GetLiveRoom(context.Background(), "168465302284")
		return err == nil && room.Status == consts.RoomStatusStopped
	}, 3*time.Second, 10*time.Millisecond)

	sessions, err := store.GetSessionsByLiveID(context.Background(), "168465302284", 1)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, consts.SessionEndStream, sessions[0].EndReason)
	assert.False(t, sessions[0].EndTime.IsZero())
}

func TestStreamEnd24hModeGoesPolling(t *testing.T) {
	conn := newFakeConn(buildFrame(t, 1, false, "", [2][]byte{[]byte(protocol.MethodControl), controlEndPayload()}))
	// 下播后轮询探测始终未开播
	prober := &fakeProber{results: []probeResult{{info: liveInfo()}, {info: offlineInfo()}}}
	deps, store := newTestDeps(t, prober, &fakeDialer{conns: []*fakeConn{conn}})

	m := NewMonitor(context.Background(), &storage.LiveRoom{
		LiveID: "168465302284", MonitorType: consts.MonitorType24h, AutoReconnect: true,
	}, deps)
	require.NoError(t, m.Start())
	defer m.Close()

	require.Eventually(t, func() bool {
		return m.State() == StatePolling
	}, 3*time.Second, 10*time.Millisecond)

	// 会话已按下播关闭，但监控还在轮询
	sessions, err := store.GetSessionsByLiveID(context.Background(), "168465302284", 1)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, consts.SessionEndStream, sessions[0].EndReason)

	room, err := store.GetLiveRoom(context.Background(), "168465302284")
	require.NoError(t, err)
	assert.Equal(t, consts.RoomStatusOffline, room.Status)
}

func TestRetriesExhaustedMarksError(t *testing.T) {
	prober := &fakeProber{results: []probeResult{{err: errors.New("network down")}}}
	deps, store := newTestDeps(t, prober, &fakeDialer{})

	// 未开自动重连，耗尽后置错并停止
	m := NewMonitor(context.Background(), &storage.LiveRoom{
		LiveID: "168465302284", MonitorType: consts.MonitorType24h, AutoReconnect: false,
	}, deps)
	require.NoError(t, m.Start())

	require.Eventually(t, func() bool {
		room, err := store.GetLiveRoom(context.Background(), "168465302284")
		return err == nil && room.Status == consts.RoomStatusError
	}, 3*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return m.State() == StateStopped
	}, 3*time.Second, 10*time.Millisecond)
	// 计数到达上限即停，不再多试一次
	assert.Equal(t, deps.Config.Monitor.MaxRetries, m.Retries())

	room, err := store.GetLiveRoom(context.Background(), "168465302284")
	require.NoError(t, err)
	assert.Equal(t, consts.RoomStatusError, room.Status)
	assert.Equal(t, "network down", room.ErrorMessage)
	assert.Equal(t, deps.Config.Monitor.MaxRetries, room.ReconnectCount)
}

func TestConnectFailuresFallBackToPolling(t *testing.T) {
	dialer := &fakeDialer{errs: []error{errors.New("dial timeout"), errors.New("dial timeout")}}
	prober := &fakeProber{results: []probeResult{{info: liveInfo()}}}
	deps, store := newTestDeps(t, prober, dialer)
	// 拉长轮询间隔，降级后不会再发起新的连接
	deps.Config.Monitor.PollInterval = time.Minute

	m := NewMonitor(context.Background(), &storage.LiveRoom{
		LiveID: "168465302284", MonitorType: consts.MonitorType24h, AutoReconnect: true,
	}, deps)
	require.NoError(t, m.Start())
	defer m.Close()

	require.Eventually(t, func() bool {
		room, err := store.GetLiveRoom(context.Background(), "168465302284")
		return err == nil && room.Status == consts.RoomStatusWaiting && m.State() == StatePolling
	}, 3*time.Second, 10*time.Millisecond)

	room, err := store.GetLiveRoom(context.Background(), "168465302284")
	require.NoError(t, err)
	assert.Equal(t, "dial timeout", room.ErrorMessage)

	// 连接尝试数等于上限，计数不超过上限
	assert.Equal(t, deps.Config.Monitor.MaxRetries, dialer.dialCount())
	assert.Equal(t, deps.Config.Monitor.MaxRetries, m.Retries())

	// 轮询等待期内没有额外的重连
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, deps.Config.Monitor.MaxRetries, dialer.dialCount())
	assert.Equal(t, StatePolling, m.State())
}

func TestRetryCounterResetsAfterConnect(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{
		conns: []*fakeConn{conn},
		errs:  []error{errors.New("dial timeout"), errors.New("dial timeout"), nil},
	}
	prober := &fakeProber{results: []probeResult{{info: liveInfo()}}}
	deps, _ := newTestDeps(t, prober, dialer)

	m := NewMonitor(context.Background(), &storage.LiveRoom{
		LiveID: "168465302284", MonitorType: consts.MonitorType24h, AutoReconnect: true,
	}, deps)
	require.NoError(t, m.Start())
	defer m.Close()

	require.Eventually(t, func() bool {
		return m.State() == StateConnected
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, 3, dialer.dialCount())
	assert.Equal(t, 0, m.Retries())
}

func TestAckAndHeartbeat(t *testing.T) {
	conn := newFakeConn(buildFrame(t, 987, true, "ext-token",
		[2][]byte{[]byte(protocol.MethodChat), chatPayload("主播好")}))
	prober := &fakeProber{results: []probeResult{{info: liveInfo()}}}
	deps, store := newTestDeps(t, prober, &fakeDialer{conns: []*fakeConn{conn}})

	m := NewMonitor(context.Background(), &storage.LiveRoom{
		LiveID: "168465302284", MonitorType: consts.MonitorType24h, AutoReconnect: true,
	}, deps)
	require.NoError(t, m.Start())
	defer m.Close()

	// 弹幕入库
	require.Eventually(t, func() bool {
		chats, err := store.GetRecentChats(context.Background(), "168465302284", 10)
		return err == nil && len(chats) == 1
	}, 3*time.Second, 10*time.Millisecond)
	chats, err := store.GetRecentChats(context.Background(), "168465302284", 10)
	require.NoError(t, err)
	assert.Equal(t, "主播好", chats[0].Content)
	assert.Equal(t, "观众甲", chats[0].UserName)

	// ack 回显 log_id 和 internal_ext，心跳按间隔发送
	require.Eventually(t, func() bool {
		var gotAck, gotHeartbeat bool
		for _, frame := range conn.writtenFrames() {
			switch frame.PayloadType {
			case protocol.PayloadTypeAck:
				if frame.LogID == 987 && string(frame.Payload) == "ext-token" {
					gotAck = true
				}
			case protocol.PayloadTypeHeartbeat:
				gotHeartbeat = true
			}
		}
		return gotAck && gotHeartbeat
	}, 3*time.Second, 10*time.Millisecond)
}

func TestCloseMarksSessionManual(t *testing.T) {
	conn := newFakeConn(buildFrame(t, 1, false, "",
		[2][]byte{[]byte(protocol.MethodChat), chatPayload("在吗")}))
	prober := &fakeProber{results: []probeResult{{info: liveInfo()}}}
	deps, store := newTestDeps(t, prober, &fakeDialer{conns: []*fakeConn{conn}})

	m := NewMonitor(context.Background(), &storage.LiveRoom{
		LiveID: "168465302284", MonitorType: consts.MonitorType24h, AutoReconnect: true,
	}, deps)
	require.NoError(t, m.Start())

	require.Eventually(t, func() bool {
		return m.State() == StateConnected && m.Tracker().Active()
	}, 3*time.Second, 10*time.Millisecond)

	m.Close()

	require.Eventually(t, func() bool {
		sessions, err := store.GetSessionsByLiveID(context.Background(), "168465302284", 1)
		return err == nil && len(sessions) == 1 && sessions[0].EndReason == consts.SessionEndManual
	}, 3*time.Second, 10*time.Millisecond)

	room, err := store.GetLiveRoom(context.Background(), "168465302284")
	require.NoError(t, err)
	assert.Equal(t, consts.RoomStatusStopped, room.Status)
}

func TestOfflineRoomPollsWithoutDialing(t *testing.T) {
	dialer := &fakeDialer{}
	prober := &fakeProber{results: []probeResult{{info: offlineInfo()}}}
	deps, store := newTestDeps(t, prober, dialer)

	m := NewMonitor(context.Background(), &storage.LiveRoom{
		LiveID: "168465302284", MonitorType: consts.MonitorType24h, AutoReconnect: true,
	}, deps)
	require.NoError(t, m.Start())
	defer m.Close()

	require.Eventually(t, func() bool {
		return m.State() == StatePolling
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, dialer.dialCount())

	room, err := store.GetLiveRoom(context.Background(), "168465302284")
	require.NoError(t, err)
	assert.Equal(t, consts.RoomStatusOffline, room.Status)
	// 解析结果已回填
	assert.Equal(t, "7418394362793331496", room.RoomID)
	assert.Equal(t, "主播甲", room.AnchorName)
}
