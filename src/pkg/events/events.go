package events

import (
	"context"
	"sync"

	"github.com/dylive-go/dylive-go/src/interfaces"
	"github.com/dylive-go/dylive-go/src/pkg/dysentry"
)

type EventType string

type Event struct {
	Type   EventType
	Object interface{}
}

func NewEvent(eventType EventType, object interface{}) *Event {
	return &Event{
		Type:   eventType,
		Object: object,
	}
}

type EventHandler func(event *Event)

type EventListener struct {
	Handler EventHandler
}

func NewEventListener(handler EventHandler) *EventListener {
	return &EventListener{
		Handler: handler,
	}
}

// Dispatcher 进程内事件总线
// 事件经单个派发 goroutine 按入队顺序送达监听器，
// 同一房间先后发出的事件不会乱序到达下游
type Dispatcher interface {
	interfaces.Module
	AddEventListener(eventType EventType, listener *EventListener)
	RemoveEventListener(eventType EventType, listener *EventListener)
	RemoveAllEventListener(eventType EventType)
	DispatchEvent(event *Event)
}

func NewDispatcher(ctx context.Context) Dispatcher {
	d := &dispatcher{
		saver: make(map[EventType]map[*EventListener]struct{}),
		queue: make(chan *Event, 1024),
		done:  make(chan struct{}),
	}
	dysentry.Go(d.deliverLoop)
	return d
}

type dispatcher struct {
	lock  sync.RWMutex
	saver map[EventType]map[*EventListener]struct{}

	queue chan *Event
	done  chan struct{}
	once  sync.Once
}

func (d *dispatcher) Start(ctx context.Context) error {
	return nil
}

func (d *dispatcher) Close(ctx context.Context) {
	d.once.Do(func() { close(d.done) })
	d.lock.Lock()
	defer d.lock.Unlock()
	d.saver = make(map[EventType]map[*EventListener]struct{})
}

func (d *dispatcher) AddEventListener(eventType EventType, listener *EventListener) {
	d.lock.Lock()
	defer d.lock.Unlock()
	listeners, ok := d.saver[eventType]
	if !ok {
		listeners = make(map[*EventListener]struct{})
		d.saver[eventType] = listeners
	}
	listeners[listener] = struct{}{}
}

func (d *dispatcher) RemoveEventListener(eventType EventType, listener *EventListener) {
	d.lock.Lock()
	defer d.lock.Unlock()
	if listeners, ok := d.saver[eventType]; ok {
		delete(listeners, listener)
	}
}

func (d *dispatcher) RemoveAllEventListener(eventType EventType) {
	d.lock.Lock()
	defer d.lock.Unlock()
	delete(d.saver, eventType)
}

func (d *dispatcher) DispatchEvent(event *Event) {
	if event == nil {
		return
	}
	select {
	case <-d.done:
	case d.queue <- event:
	}
}

func (d *dispatcher) deliverLoop() {
	for {
		select {
		case <-d.done:
			return
		case event := <-d.queue:
			d.deliver(event)
		}
	}
}

func (d *dispatcher) deliver(event *Event) {
	d.lock.RLock()
	listeners := make([]*EventListener, 0, len(d.saver[event.Type]))
	for listener := range d.saver[event.Type] {
		listeners = append(listeners, listener)
	}
	d.lock.RUnlock()
	for _, listener := range listeners {
		d.invoke(listener.Handler, event)
	}
}

// invoke 单个监听器 panic 不拖垮派发循环
func (d *dispatcher) invoke(handler EventHandler, event *Event) {
	defer dysentry.Recover()
	handler(event)
}
