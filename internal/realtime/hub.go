package realtime

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Event types published by the engine. The display layer subscribes over
// websocket and repaints from these instead of polling the tables.
const (
	EventRoundCreated   = "round_created"
	EventRoundActivated = "round_activated"
	EventRoundCompleted = "round_completed"
	EventEntryJoined    = "entry_joined"
	EventRewardClaimed  = "reward_claimed"
)

type Event struct {
	Type    string    `json:"type"`
	Variant string    `json:"variant,omitempty"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload,omitempty"`
}

// Hub fans round/entry change events out to websocket subscribers. Slow
// subscribers are dropped rather than ever blocking a publisher.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]chan Event
	nextID uint64

	dropped uint64
	logger  *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		subs:   map[uint64]chan Event{},
		logger: logger,
	}
}

// Subscribe returns a subscriber id and its event channel.
func (h *Hub) Subscribe(buf int) (uint64, <-chan Event) {
	if buf <= 0 {
		buf = 16
	}
	ch := make(chan Event, buf)
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs[id] = ch
	h.mu.Unlock()
	return id, ch
}

func (h *Hub) Unsubscribe(id uint64) {
	h.mu.Lock()
	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
	h.mu.Unlock()
}

func (h *Hub) Publish(event Event) {
	if h == nil {
		return
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs {
		select {
		case ch <- event:
		default:
			atomic.AddUint64(&h.dropped, 1)
		}
	}
}

func (h *Hub) Dropped() uint64 {
	if h == nil {
		return 0
	}
	return atomic.LoadUint64(&h.dropped)
}

func (h *Hub) Subscribers() int {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
