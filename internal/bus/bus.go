package bus

import (
	"sync"
	"time"
)

// Event names on the realtime channel. Payload shapes are part of the wire
// contract and must stay stable.
const (
	EventNewRequest          = "ride:new_request"
	EventAccepted            = "ride:accepted"
	EventStarted             = "ride:started"
	EventDriverLocation      = "ride:driver_location"
	EventCompleted           = "ride:completed"
	EventCancelled           = "ride:cancelled"
	EventCancelledUnassigned = "ride:cancelled_unassigned"
	EventScheduledActivated  = "ride:scheduled_activated"
	EventSOSAlert            = "sos:alert"
)

type Event struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// Bus is the per-user pub/sub channel the dispatch core emits on. Publish is
// fire-and-forget and best-effort; ordering is strict FIFO per user and
// unconstrained across users.
type Bus interface {
	Publish(userID, eventType string, payload interface{})
	Subscribe(userID string) (<-chan Event, func())
	Broadcast(eventType string, payload interface{})
}

const subscriberBuffer = 64

type subscriber struct {
	userID string
	ch     chan Event
}

// Broker is the in-process Bus implementation. A slow subscriber loses
// events rather than blocking publishers.
type Broker struct {
	mu   sync.RWMutex
	subs map[string][]*subscriber
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[string][]*subscriber)}
}

func (b *Broker) Publish(userID, eventType string, payload interface{}) {
	ev := Event{Type: eventType, Payload: payload, Timestamp: time.Now()}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs[userID] {
		select {
		case s.ch <- ev:
		default:
		}
	}
}

func (b *Broker) Broadcast(eventType string, payload interface{}) {
	ev := Event{Type: eventType, Payload: payload, Timestamp: time.Now()}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, list := range b.subs {
		for _, s := range list {
			select {
			case s.ch <- ev:
			default:
			}
		}
	}
}

func (b *Broker) Subscribe(userID string) (<-chan Event, func()) {
	s := &subscriber{userID: userID, ch: make(chan Event, subscriberBuffer)}
	b.mu.Lock()
	b.subs[userID] = append(b.subs[userID], s)
	b.mu.Unlock()

	detach := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.subs[userID]
		for i, cur := range list {
			if cur == s {
				b.subs[userID] = append(list[:i], list[i+1:]...)
				break
			}
		}
		if len(b.subs[userID]) == 0 {
			delete(b.subs, userID)
		}
		close(s.ch)
	}
	return s.ch, detach
}

// SubscriberCount is used by tests and the websocket registry for liveness.
func (b *Broker) SubscriberCount(userID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[userID])
}
