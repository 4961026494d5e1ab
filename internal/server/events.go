package server

import (
	"context"
	"sync"
	"time"
)

const (
	// EventStateChanged is published after any store mutation so clients can
	// refresh their in-memory mirror of the library state.
	EventStateChanged = "state-change"
	eventHeartbeat    = "heartbeat"
)

// StateEvent describes one store mutation broadcast to subscribed clients.
type StateEvent struct {
	EventType string
	MovieIDs  []int64
	Timestamp time.Time
}

// EventDispatcher fans state events out to all connected household clients.
// Slow subscribers drop events rather than block mutations.
type EventDispatcher struct {
	mu          sync.RWMutex
	subscribers map[int64]*eventSubscriber
	nextID      int64
	bufferSize  int
}

type eventSubscriber struct {
	id     int64
	stream chan StateEvent
}

func NewEventDispatcher() *EventDispatcher {
	return &EventDispatcher{
		subscribers: make(map[int64]*eventSubscriber),
		bufferSize:  16,
	}
}

// Subscribe registers a listener. The returned cleanup runs automatically when
// ctx is cancelled; calling it twice is safe.
func (d *EventDispatcher) Subscribe(ctx context.Context) (<-chan StateEvent, func()) {
	subscriber := &eventSubscriber{
		stream: make(chan StateEvent, d.bufferSize),
	}

	d.mu.Lock()
	d.nextID++
	subscriber.id = d.nextID
	d.subscribers[subscriber.id] = subscriber
	d.mu.Unlock()

	cleanup := func() {
		d.mu.Lock()
		delete(d.subscribers, subscriber.id)
		d.mu.Unlock()
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()

	return subscriber.stream, cleanup
}

// Publish delivers the event to every subscriber with buffer space.
func (d *EventDispatcher) Publish(event StateEvent) {
	if event.EventType == "" {
		return
	}

	d.mu.RLock()
	copies := make([]*eventSubscriber, 0, len(d.subscribers))
	for _, subscriber := range d.subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()

	for _, subscriber := range copies {
		select {
		case subscriber.stream <- event:
		default:
		}
	}
}

// SubscriberCount reports the number of connected listeners.
func (d *EventDispatcher) SubscriberCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers)
}
