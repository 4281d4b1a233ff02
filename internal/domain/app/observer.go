package app

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/GriffinCanCode/AgentOS/appmgr/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/appmgr/internal/shared/types"
)

// EventKind classifies state events
type EventKind string

const (
	EventStateChanged      EventKind = "state_changed"
	EventCacheStateChanged EventKind = "cache_state_changed"
	EventProcessDied       EventKind = "process_died"
	EventProcessRestarted  EventKind = "process_restarted"
)

// StateEvent is delivered to observers whenever a process changes state
type StateEvent struct {
	Kind    EventKind         `json:"kind"`
	Process types.ProcessInfo `json:"process"`
	Time    time.Time         `json:"time"`
}

// Hub fans state events out to subscribers. Publishing never blocks: a
// subscriber whose buffer is full misses the event.
type Hub struct {
	mu      sync.RWMutex
	subs    map[string]chan StateEvent // Protected by mu
	metrics *monitoring.Metrics
}

// NewHub creates an empty hub
func NewHub(metrics *monitoring.Metrics) *Hub {
	return &Hub{
		subs:    make(map[string]chan StateEvent),
		metrics: metrics,
	}
}

// Subscribe registers a subscriber. The returned cancel func closes the
// channel and may be called more than once.
func (h *Hub) Subscribe(buffer int) (string, <-chan StateEvent, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	subID := uuid.NewString()
	ch := make(chan StateEvent, buffer)

	h.mu.Lock()
	h.subs[subID] = ch
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, subID)
			h.mu.Unlock()
			close(ch)
		})
	}
	return subID, ch, cancel
}

// Publish delivers an event to every subscriber
func (h *Hub) Publish(e StateEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.subs {
		select {
		case ch <- e:
		default:
			h.metrics.IncEventsDropped()
		}
	}
}

// Subscribers returns the number of subscribers
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
