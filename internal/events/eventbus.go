package events

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/felixgeelhaar/intelart/internal/observe"
)

// EventType names something that happened in the service.
type EventType string

const (
	EventSourceTrained  EventType = "source_trained"
	EventTrainingFailed EventType = "training_failed"
	EventChatAnswered   EventType = "chat_answered"
	EventChatFailed     EventType = "chat_failed"
	EventSceneAdvanced  EventType = "scene_advanced"
	EventStoryFinished  EventType = "story_finished"
	EventSessionReset   EventType = "session_reset"
	EventIndexReset     EventType = "index_reset"
)

// Event carries a type, the session it belongs to (if any) and free-form data.
type Event struct {
	Type      EventType
	Timestamp time.Time
	SessionID string
	Data      map[string]interface{}
}

// EventHandler is a function that handles events.
type EventHandler func(Event)

// EventBus fans events out to subscribers synchronously.
type EventBus struct {
	mu          sync.RWMutex
	handlers    map[EventType][]EventHandler
	allHandlers []EventHandler
}

// NewEventBus creates a new event bus.
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]EventHandler),
	}
}

// Subscribe registers a handler for a specific event type.
func (eb *EventBus) Subscribe(eventType EventType, handler EventHandler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.handlers[eventType] = append(eb.handlers[eventType], handler)
}

// SubscribeAll registers a handler for all event types.
func (eb *EventBus) SubscribeAll(handler EventHandler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.allHandlers = append(eb.allHandlers, handler)
}

// Publish sends an event to all registered handlers. Handlers run outside
// the lock so they may subscribe or publish themselves.
func (eb *EventBus) Publish(event Event) {
	if eb == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	eb.mu.RLock()
	targets := make([]EventHandler, 0, len(eb.handlers[event.Type])+len(eb.allHandlers))
	targets = append(targets, eb.handlers[event.Type]...)
	targets = append(targets, eb.allHandlers...)
	eb.mu.RUnlock()

	for _, handler := range targets {
		handler(event)
	}
}

// PublishWithData publishes an event with associated data.
func (eb *EventBus) PublishWithData(eventType EventType, sessionID string, data map[string]interface{}) {
	eb.Publish(Event{
		Type:      eventType,
		SessionID: sessionID,
		Data:      data,
	})
}

// LogTo writes every event to the observer at info level, failures at warn.
func (eb *EventBus) LogTo(obs *observe.Observer) {
	eb.SubscribeAll(func(e Event) {
		entry := obs.Log().Info()
		if e.Type == EventChatFailed || e.Type == EventTrainingFailed {
			entry = obs.Log().Warn()
		}
		entry = entry.Str("event", string(e.Type))
		if e.SessionID != "" {
			entry = entry.Str("session", e.SessionID)
		}
		keys := make([]string, 0, len(e.Data))
		for k := range e.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			entry = entry.Str(k, fmt.Sprint(e.Data[k]))
		}
		entry.Msg("event")
	})
}
