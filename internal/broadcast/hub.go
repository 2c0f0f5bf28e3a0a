// Package broadcast fans completion events out to real-time subscribers.
package broadcast

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/clintrovert/taskhook/internal/telemetry"
	"github.com/clintrovert/taskhook/pkg/types"
)

// DefaultBuffer is the per-subscriber queue length used when none is given
const DefaultBuffer = 64

// Publisher publishes completion events
type Publisher interface {
	Publish(event types.CompletionEvent)
}

// Discard is a Publisher that drops every event
type Discard struct{}

// Publish implements Publisher
func (Discard) Publish(types.CompletionEvent) {}

// Hub delivers every published event to every current subscriber. Publish
// never blocks: a subscriber whose queue is full misses the event.
type Hub struct {
	mu      sync.RWMutex
	subs    map[uint64]*Subscription
	nextID  uint64
	logger  *zap.Logger
	metrics *telemetry.Metrics
}

// NewHub creates a new hub. metrics may be nil.
func NewHub(logger *zap.Logger, metrics *telemetry.Metrics) *Hub {
	return &Hub{
		subs:    make(map[uint64]*Subscription),
		logger:  logger,
		metrics: metrics,
	}
}

// Subscription is one subscriber's view of the hub
type Subscription struct {
	id     uint64
	hub    *Hub
	events chan types.CompletionEvent
	once   sync.Once
}

// Events returns the channel of delivered events. It is closed by Close.
func (s *Subscription) Events() <-chan types.CompletionEvent {
	return s.events
}

// Close removes the subscription from the hub
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs, s.id)
		s.hub.mu.Unlock()
		close(s.events)
	})
}

// Subscribe registers a new subscriber with the given queue length
func (h *Hub) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	sub := &Subscription{
		id:     h.nextID,
		hub:    h,
		events: make(chan types.CompletionEvent, buffer),
	}
	h.subs[sub.id] = sub

	h.logger.Debug("subscriber connected", zap.Uint64("subscriber_id", sub.id), zap.Int("subscribers", len(h.subs)))
	return sub
}

// Publish implements Publisher
func (h *Hub) Publish(event types.CompletionEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, sub := range h.subs {
		select {
		case sub.events <- event:
		default:
			h.logger.Debug("dropped event for slow subscriber",
				zap.Uint64("subscriber_id", id),
				zap.String("task_id", event.TaskID),
			)
			if h.metrics != nil {
				h.metrics.BroadcastDropped.Add(context.Background(), 1)
			}
		}
	}
}

// Subscribers returns the number of connected subscribers
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
