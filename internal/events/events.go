// Package events carries connection status and badge updates from the
// session machine and pollers to whatever front end is listening.
package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// EventType defines the types of events that can be emitted.
type EventType string

const (
	EventStatus EventType = "status"
	EventBadge  EventType = "badge"
)

// Severity classifies a status message for the connection indicator.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
)

// Event is the base interface for all events.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common event fields.
type BaseEvent struct {
	EventType EventType
	Time      time.Time
}

func (e BaseEvent) Type() EventType      { return e.EventType }
func (e BaseEvent) Timestamp() time.Time { return e.Time }

// StatusEvent is a connection indicator update. Step/LastStep track the
// connect sequence (discover, authorize, track, login, session).
type StatusEvent struct {
	BaseEvent
	Step     int
	LastStep int
	Message  string
	Severity Severity
}

// BadgeEvent carries the download ETA badge text and the interval the
// poller picked for its next round.
type BadgeEvent struct {
	BaseEvent
	Text     string
	Interval time.Duration
}

// Bus manages event subscriptions and publishing.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]chan Event
	bufferSize  int
	closed      bool
	dropped     atomic.Int64
}

const defaultBuffer = 64

// NewBus creates a new event bus with the given buffer size per
// subscriber channel.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = defaultBuffer
	}
	return &Bus{
		subscribers: make(map[EventType][]chan Event),
		bufferSize:  bufferSize,
	}
}

// Subscribe creates a subscription to a specific event type.
func (b *Bus) Subscribe(eventType EventType) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, b.bufferSize)
	b.subscribers[eventType] = append(b.subscribers[eventType], ch)
	return ch
}

// Publish sends an event to all subscribers. Non-blocking: a full
// subscriber buffer drops the event rather than stalling a poller.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, ch := range b.subscribers[event.Type()] {
		select {
		case ch <- event:
		default:
			b.dropped.Add(1)
		}
	}
}

// PublishStatus is a convenience method for publishing a status event.
func (b *Bus) PublishStatus(step, lastStep int, message string, severity Severity) {
	b.Publish(&StatusEvent{
		BaseEvent: BaseEvent{EventType: EventStatus, Time: time.Now()},
		Step:      step,
		LastStep:  lastStep,
		Message:   message,
		Severity:  severity,
	})
}

// PublishBadge is a convenience method for publishing a badge event.
func (b *Bus) PublishBadge(text string, interval time.Duration) {
	b.Publish(&BadgeEvent{
		BaseEvent: BaseEvent{EventType: EventBadge, Time: time.Now()},
		Text:      text,
		Interval:  interval,
	})
}

// Close shuts down the bus and closes all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, channels := range b.subscribers {
		for _, ch := range channels {
			close(ch)
		}
	}
}

// Dropped returns the number of events dropped due to full buffers.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}
