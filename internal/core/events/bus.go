package events

import (
	"sync"

	"github.com/rs/zerolog"
)

// EventBus fans machine output out to its consumers (execution, audit,
// metrics, dashboard) over buffered Go channels. Publishing never
// blocks: the session loop must not stall on a slow consumer, so a
// full subscriber channel loses the event and the drop is counted.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]chan Event
	counters    map[EventType]*eventCounters

	bufferSize int
	logger     zerolog.Logger
}

type eventCounters struct {
	published int64
	dropped   int64
}

// NewEventBus creates a new event bus with the specified channel buffer size
func NewEventBus(bufferSize int, logger zerolog.Logger) *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]chan Event),
		counters:    make(map[EventType]*eventCounters),
		bufferSize:  bufferSize,
		logger:      logger,
	}
}

// Subscribe creates a new subscription to the specified event type and
// returns a buffered read-only channel.
func (eb *EventBus) Subscribe(eventType EventType) <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	ch := make(chan Event, eb.bufferSize)
	eb.subscribers[eventType] = append(eb.subscribers[eventType], ch)

	eb.logger.Debug().
		Str("event_type", string(eventType)).
		Int("total_subscribers", len(eb.subscribers[eventType])).
		Msg("New subscriber registered")

	return ch
}

// Publish sends an event to all subscribers of that event type. A
// subscriber whose channel is full loses the event.
func (eb *EventBus) Publish(event Event) {
	eb.mu.Lock()
	subscribers := eb.subscribers[event.Type()]
	counters := eb.countersLocked(event.Type())
	if len(subscribers) > 0 {
		counters.published += int64(len(subscribers))
	}
	eb.mu.Unlock()

	for i, ch := range subscribers {
		select {
		case ch <- event:
		default:
			eb.mu.Lock()
			counters.dropped++
			eb.mu.Unlock()
			eb.logger.Warn().
				Str("event_type", string(event.Type())).
				Int("subscriber_index", i).
				Msg("Subscriber channel full, event dropped for this subscriber")
		}
	}
}

// Unsubscribe removes a subscriber and closes its channel.
func (eb *EventBus) Unsubscribe(eventType EventType, ch <-chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	subscribers := eb.subscribers[eventType]
	for i, subscriber := range subscribers {
		if subscriber == ch {
			eb.subscribers[eventType] = append(subscribers[:i], subscribers[i+1:]...)
			close(subscriber)
			return
		}
	}
}

// Close shuts down the event bus and closes all subscriber channels.
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	for _, subscribers := range eb.subscribers {
		for _, ch := range subscribers {
			close(ch)
		}
	}
	eb.subscribers = make(map[EventType][]chan Event)

	eb.logger.Debug().Msg("Event bus closed")
}

// SubscriberCount returns the number of subscribers for a given event type
func (eb *EventBus) SubscriberCount(eventType EventType) int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.subscribers[eventType])
}

// EventMetrics holds publish/drop counters for one event type.
type EventMetrics struct {
	EventType      EventType
	PublishedCount int64
	DroppedCount   int64
}

// GetMetrics returns the current per-type counters.
func (eb *EventBus) GetMetrics() map[EventType]EventMetrics {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	metrics := make(map[EventType]EventMetrics, len(eb.counters))
	for eventType, c := range eb.counters {
		metrics[eventType] = EventMetrics{
			EventType:      eventType,
			PublishedCount: c.published,
			DroppedCount:   c.dropped,
		}
	}
	return metrics
}

// countersLocked returns the counter cell for the type, creating it on
// first use. Caller holds eb.mu.
func (eb *EventBus) countersLocked(eventType EventType) *eventCounters {
	c, ok := eb.counters[eventType]
	if !ok {
		c = &eventCounters{}
		eb.counters[eventType] = c
	}
	return c
}
