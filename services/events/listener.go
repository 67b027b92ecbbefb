package events

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/clickweave/clickweave/pkg/logger"
)

// Listener receives events. OnEvent is called synchronously from the
// emitting goroutine and must not block for long.
type Listener interface {
	OnEvent(Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(Event)

func (f ListenerFunc) OnEvent(e Event) { f(e) }

// Discard drops every event.
var Discard Listener = ListenerFunc(func(Event) {})

// Dispatch delivers e to l, recovering and logging a listener panic so it
// never unwinds into the emitting worker.
func Dispatch(l Listener, e Event) {
	if l == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error(context.Background(), "listener panic on %s event: %v\n%s", e.Kind(), r, debug.Stack())
		}
	}()
	l.OnEvent(e)
}

// Offer performs a non-blocking send and reports whether the value was sent.
func Offer[T any](ch chan<- T, value T) (sent bool) {
	defer func() {
		if recover() != nil {
			sent = false
		}
	}()
	select {
	case ch <- value:
		return true
	default:
		return false
	}
}

// Hub is a Listener that republishes events to channel subscribers. A slow
// subscriber loses events instead of stalling the publisher.
type Hub struct {
	mu      sync.RWMutex
	subs    map[int]chan Event
	next    int
	dropped atomic.Uint64
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan Event)}
}

// Subscribe returns a buffered channel of events and a cancel func that
// unregisters and closes it.
func (h *Hub) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

func (h *Hub) OnEvent(e Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs {
		if !Offer(ch, e) {
			h.dropped.Add(1)
		}
	}
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns how many deliveries were skipped because a subscriber
// buffer was full.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}
