package notifier

import (
	"sync"
	"time"
)

// EventType represents the type of event
type EventType string

const (
	EventCircuitBreakerOpen      EventType = "circuit_breaker_open"
	EventCircuitBreakerRecovered EventType = "circuit_breaker_recovered"
	EventAllProvidersOpen        EventType = "all_providers_open"
	EventCacheCleared            EventType = "cache_cleared"
	EventServerStarted           EventType = "server_started"
)

// Severity represents the severity level of an event
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Event represents a system event
type Event struct {
	Type      EventType
	Severity  Severity
	Message   string
	Data      map[string]interface{}
	Timestamp time.Time
}

// NewEvent creates a new event with the current timestamp
func NewEvent(eventType EventType, severity Severity, message string) *Event {
	return &Event{
		Type:      eventType,
		Severity:  severity,
		Message:   message,
		Data:      make(map[string]interface{}),
		Timestamp: time.Now(),
	}
}

// WithData adds data to the event (chainable)
func (e *Event) WithData(key string, value interface{}) *Event {
	e.Data[key] = value
	return e
}

// EventHandler receives published events
type EventHandler func(event *Event)

// EventBus fans events out to subscribers. Each handler runs in its own
// goroutine so a slow notifier never delays the publisher.
type EventBus struct {
	mu       sync.RWMutex
	byType   map[EventType][]EventHandler
	wildcard []EventHandler
}

// NewEventBus creates an empty bus
func NewEventBus() *EventBus {
	return &EventBus{byType: make(map[EventType][]EventHandler)}
}

var defaultBus = sync.OnceValue(NewEventBus)

// GetEventBus returns the process-wide bus
func GetEventBus() *EventBus {
	return defaultBus()
}

// Subscribe registers handler for one event type
func (b *EventBus) Subscribe(eventType EventType, handler EventHandler) {
	b.mu.Lock()
	b.byType[eventType] = append(b.byType[eventType], handler)
	b.mu.Unlock()
}

// SubscribeAll registers handler for every event type
func (b *EventBus) SubscribeAll(handler EventHandler) {
	b.mu.Lock()
	b.wildcard = append(b.wildcard, handler)
	b.mu.Unlock()
}

// Publish delivers event to its subscribers without waiting for them
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	targets := make([]EventHandler, 0, len(b.byType[event.Type])+len(b.wildcard))
	targets = append(targets, b.byType[event.Type]...)
	targets = append(targets, b.wildcard...)
	b.mu.RUnlock()

	for _, h := range targets {
		go h(event)
	}
}

// PublishCircuitBreakerOpen reports a provider being skipped after repeated failures
func (b *EventBus) PublishCircuitBreakerOpen(provider string, failures int, cooldown time.Duration) {
	b.Publish(NewEvent(EventCircuitBreakerOpen, SeverityWarning,
		"Provider circuit breaker opened after consecutive failures").
		WithData("provider", provider).
		WithData("failures", failures).
		WithData("cooldown", cooldown.String()))
}

// PublishCircuitBreakerRecovered reports a provider answering again
func (b *EventBus) PublishCircuitBreakerRecovered(provider string) {
	b.Publish(NewEvent(EventCircuitBreakerRecovered, SeverityInfo,
		"Provider circuit breaker closed").
		WithData("provider", provider))
}

// PublishAllProvidersOpen reports that no remote provider is currently queried
func (b *EventBus) PublishAllProvidersOpen(providers []string) {
	b.Publish(NewEvent(EventAllProvidersOpen, SeverityCritical,
		"Every provider circuit breaker is open").
		WithData("providers", providers))
}

// PublishCacheCleared reports a manual cache purge
func (b *EventBus) PublishCacheCleared(removed int) {
	b.Publish(NewEvent(EventCacheCleared, SeverityInfo, "Cache has been cleared").
		WithData("removed", removed))
}

// PublishServerStarted reports a successful start
func (b *EventBus) PublishServerStarted(port string, providers []string) {
	b.Publish(NewEvent(EventServerStarted, SeverityInfo, "Server started successfully").
		WithData("port", port).
		WithData("providers", providers))
}
