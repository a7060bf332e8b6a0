// Package dedup 负责礼物消息去重与连击合并。
// 推送通道在重连和多路下发时会重复投递同一条礼物消息，
// 连击礼物则以累计计数的形式反复推送，直接入库会重复计钱。
package dedup

import (
	"sync"
	"time"

	"github.com/dylive-go/dylive-go/src/metrics"
	"github.com/dylive-go/dylive-go/src/protocol"
)

const (
	// trace 窗口触发修剪的上限，修剪后保留最新的一半
	traceWindowCap  = 1000
	traceWindowKeep = 500

	// 超过该时长没有新推送的连击分组视为已结束
	staleGroupAge = 5 * time.Minute
)

// GiftEvent 去重后对外发出的礼物事件，计数与价值都是增量
type GiftEvent struct {
	TraceID      string
	GroupID      uint64
	GiftID       uint64
	GiftName     string
	DiamondCount uint32
	ComboCount   uint64
	RepeatEnd    bool
	DeltaCount   int64
	DeltaValue   int64
	UserID       uint64
	UserName     string
	RoomID       uint64
	Time         time.Time
}

type comboGroup struct {
	lastCount uint64
	lastSeen  time.Time
}

// Deduper 维护单个直播间的 trace 去重窗口和连击分组状态
// 不是并发安全之外的设计，内部自带锁，可被多个 goroutine 调用
type Deduper struct {
	mu sync.Mutex

	traceSeen  map[string]struct{}
	traceOrder []string

	groups map[uint64]*comboGroup
}

func NewDeduper() *Deduper {
	return &Deduper{
		traceSeen:  make(map[string]struct{}),
		traceOrder: make([]string, 0, traceWindowCap),
		groups:     make(map[uint64]*comboGroup),
	}
}

// Process 消化一条礼物消息
// 返回 nil 表示该消息是重复推送或没有产生增量，应当丢弃
func (d *Deduper) Process(msg *protocol.GiftMessage, now time.Time) *GiftEvent {
	d.mu.Lock()
	defer d.mu.Unlock()

	if msg.TraceID != "" {
		if _, ok := d.traceSeen[msg.TraceID]; ok {
			metrics.DuplicateGifts.Inc()
			return nil
		}
		d.recordTrace(msg.TraceID)
	}

	event := d.newEvent(msg, now)
	var diamond int64
	if msg.Gift != nil {
		diamond = int64(msg.Gift.DiamondCount)
	}

	// 非连击礼物直接按本条计数发出
	if msg.GroupID == 0 {
		count := int64(msg.ComboCount)
		if count == 0 {
			count = 1
		}
		if msg.GroupCount > 1 {
			count *= int64(msg.GroupCount)
		}
		event.DeltaCount = count
		event.DeltaValue = count * diamond
		return event
	}

	group, ok := d.groups[msg.GroupID]
	if !ok {
		group = &comboGroup{}
		d.groups[msg.GroupID] = group
	}

	// combo_count 是权威累计值，只发放相对上一次的增量
	current := msg.ComboCount
	if current == 0 {
		current = group.lastCount
	}
	var delta int64
	if current > group.lastCount {
		delta = int64(current - group.lastCount)
		group.lastCount = current
	}
	group.lastSeen = now

	if msg.RepeatEnd == 1 {
		delete(d.groups, msg.GroupID)
		event.RepeatEnd = true
	} else if delta == 0 {
		// 乱序或重复的中间帧，没有增量就不发
		metrics.DuplicateGifts.Inc()
		return nil
	}

	event.DeltaCount = delta
	event.DeltaValue = delta * diamond
	return event
}

// Sweep 清理长时间没有收到结束帧的连击分组，返回清理数量
func (d *Deduper) Sweep(now time.Time) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	removed := 0
	for id, group := range d.groups {
		if now.Sub(group.lastSeen) > staleGroupAge {
			delete(d.groups, id)
			removed++
		}
	}
	return removed
}

// PendingGroups 当前尚未收到结束帧的连击分组数
func (d *Deduper) PendingGroups() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.groups)
}

func (d *Deduper) recordTrace(traceID string) {
	d.traceSeen[traceID] = struct{}{}
	d.traceOrder = append(d.traceOrder, traceID)
	if len(d.traceOrder) < traceWindowCap {
		return
	}
	// 窗口打满后整体修剪，只保留最新的一半
	drop := len(d.traceOrder) - traceWindowKeep
	for _, old := range d.traceOrder[:drop] {
		delete(d.traceSeen, old)
	}
	d.traceOrder = append(d.traceOrder[:0], d.traceOrder[drop:]...)
}

func (d *Deduper) newEvent(msg *protocol.GiftMessage, now time.Time) *GiftEvent {
	event := &GiftEvent{
		TraceID:    msg.TraceID,
		GroupID:    msg.GroupID,
		GiftID:     msg.GiftID,
		ComboCount: msg.ComboCount,
		Time:       now,
	}
	if msg.Gift != nil {
		event.GiftName = msg.Gift.Name
		event.DiamondCount = msg.Gift.DiamondCount
		if event.GiftID == 0 {
			event.GiftID = msg.Gift.ID
		}
	}
	if msg.User != nil {
		event.UserID = msg.User.ID
		event.UserName = msg.User.Nickname
	}
	if msg.Common != nil {
		event.RoomID = msg.Common.RoomID
	}
	return event
}
