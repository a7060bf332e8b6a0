// Package roomlogger 为每个直播间提供独立的日志记录器
// 日志同时进入全局 logger 和房间自己的环形缓冲区，供 API 查询和 SSE 推送
package roomlogger

import (
	"bytes"
	"context"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	applog "github.com/dylive-go/dylive-go/src/log"
	"github.com/dylive-go/dylive-go/src/pkg/dysentry"
)

const (
	// DefaultBufferSize 默认日志缓冲区大小（32KB）
	DefaultBufferSize = 32 * 1024
)

// roomLoggerKey 是用于在 context 中存储 RoomLogger 引用的 key
type roomLoggerKey struct{}

var hookOnce sync.Once

// LogCallback 日志回调函数类型
type LogCallback func(liveID string, logLine string)

var (
	logCallbackMu sync.RWMutex
	logCallback   LogCallback
)

// SetLogCallback 设置全局日志回调
// 当任何 RoomLogger 产生新日志时会调用此回调
func SetLogCallback(cb LogCallback) {
	logCallbackMu.Lock()
	defer logCallbackMu.Unlock()
	logCallback = cb
}

func getLogCallback() LogCallback {
	logCallbackMu.RLock()
	defer logCallbackMu.RUnlock()
	return logCallback
}

// roomLogHook 是一个 logrus Hook，负责将日志写入对应房间的缓冲区
type roomLogHook struct{}

func (h *roomLogHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *roomLogHook) Fire(entry *logrus.Entry) error {
	if entry.Context == nil {
		return nil
	}
	logger, ok := entry.Context.Value(roomLoggerKey{}).(*RoomLogger)
	if !ok || logger == nil {
		return nil
	}
	formatted, err := entry.Logger.Formatter.Format(entry)
	if err != nil {
		return nil // 忽略格式化错误
	}
	logger.writeToBuffer(formatted)
	return nil
}

func ensureHookRegistered() {
	hookOnce.Do(func() {
		applog.GetLogger().AddHook(&roomLogHook{})
	})
}

// ringBuffer 固定大小的环形缓冲区
type ringBuffer struct {
	buf      []byte
	size     int
	writePos int
	full     bool
}

func newRingBuffer(size int) *ringBuffer {
	return &ringBuffer{buf: make([]byte, size), size: size}
}

func (rb *ringBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if n == 0 {
		return 0, nil
	}
	if n >= rb.size {
		copy(rb.buf, p[n-rb.size:])
		rb.writePos = 0
		rb.full = true
		return n, nil
	}
	remaining := rb.size - rb.writePos
	if n <= remaining {
		copy(rb.buf[rb.writePos:], p)
		rb.writePos += n
		if rb.writePos == rb.size {
			rb.writePos = 0
			rb.full = true
		}
	} else {
		copy(rb.buf[rb.writePos:], p[:remaining])
		copy(rb.buf, p[remaining:])
		rb.writePos = n - remaining
		rb.full = true
	}
	return n, nil
}

func (rb *ringBuffer) String() string {
	if !rb.full {
		return string(rb.buf[:rb.writePos])
	}
	var result bytes.Buffer
	result.Write(rb.buf[rb.writePos:])
	result.Write(rb.buf[:rb.writePos])
	return result.String()
}

// RoomLogger 是每个直播间专属的日志记录器
// 它嵌入 logrus.Entry，自动继承所有日志方法
// 通过 context 机制，Hook 可以识别出日志属于哪个 RoomLogger
type RoomLogger struct {
	*logrus.Entry
	mu     sync.RWMutex
	buffer *ringBuffer
	liveID string
}

// New 创建一个新的 RoomLogger
// fields: 每条日志都会附带的字段（如 live_id, room_id）
func New(bufferSize int, fields logrus.Fields, liveID string) *RoomLogger {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	logger := &RoomLogger{
		buffer: newRingBuffer(bufferSize),
		liveID: liveID,
	}
	ctx := context.WithValue(context.Background(), roomLoggerKey{}, logger)
	logger.Entry = applog.GetLogger().WithContext(ctx).WithFields(fields)
	ensureHookRegistered()
	return logger
}

func (l *RoomLogger) writeToBuffer(data []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buffer.Write(data)

	if cb := getLogCallback(); cb != nil && l.liveID != "" {
		logLine := strings.TrimSuffix(string(data), "\n")
		dysentry.Go(func() { cb(l.liveID, logLine) })
	}
}

// GetLogs 获取缓冲区中的所有日志文本
func (l *RoomLogger) GetLogs() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.buffer.String()
}
