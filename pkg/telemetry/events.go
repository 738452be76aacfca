package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event represents a telemetry event in the provisio system.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// Source identifies where the event originated.
	Source string `json:"source"`

	// PassID is the associated configuration pass ID, if applicable.
	PassID string `json:"pass_id,omitempty"`

	// Package is the associated package identifier, if applicable.
	Package string `json:"package,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	// Data contains additional event-specific data.
	Data map[string]interface{} `json:"data,omitempty"`
}

// EventType constants for common event types.
const (
	EventTypePassStarted     = "pass.started"
	EventTypePassCompleted   = "pass.completed"
	EventTypePassFailed      = "pass.failed"
	EventTypeDecision        = "package.decided"
	EventTypeConflict        = "package.conflict"
	EventTypeProbeFailed     = "probe.failed"
	EventTypeCatalogReloaded = "catalog.reloaded"
	EventTypeError           = "error"
)

// EventLevel constants for event severity.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber is a function that handles events.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be processed.
type EventFilter func(event Event) bool

// EventPublisher manages event publishing and subscriptions.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
	filters     []EventFilter
	wg          sync.WaitGroup
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a new event publisher with the given configuration.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	if !cfg.Enabled {
		return &EventPublisher{config: cfg}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())

	ep := &EventPublisher{
		config:      cfg,
		buffer:      make(chan Event, cfg.BufferSize),
		subscribers: make([]subscriberEntry, 0),
		filters:     make([]EventFilter, 0),
		ctx:         ctx,
		cancel:      cancel,
	}

	if cfg.EnableAsync {
		ep.wg.Add(1)
		go ep.processEvents()
	}

	return ep, nil
}

// Publish publishes an event to all subscribers.
func (ep *EventPublisher) Publish(event Event) error {
	if !ep.config.Enabled {
		return nil
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	ep.mu.RLock()
	for _, filter := range ep.filters {
		if !filter(event) {
			ep.mu.RUnlock()
			return nil // Event filtered out
		}
	}
	ep.mu.RUnlock()

	if ep.config.EnableAsync {
		select {
		case ep.buffer <- event:
			return nil
		case <-ep.ctx.Done():
			return fmt.Errorf("event publisher stopped")
		default:
			return fmt.Errorf("event buffer full, event dropped")
		}
	}

	ep.deliverEvent(event)
	return nil
}

// PublishPassStarted publishes a pass started event.
func (ep *EventPublisher) PublishPassStarted(passID, catalogPath string) error {
	return ep.Publish(Event{
		Type:    EventTypePassStarted,
		Source:  "engine",
		PassID:  passID,
		Message: fmt.Sprintf("Configuration pass %s started on %s", passID, catalogPath),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"catalog": catalogPath,
		},
	})
}

// PublishPassCompleted publishes a pass completed event.
func (ep *EventPublisher) PublishPassCompleted(passID, status string, duration time.Duration) error {
	return ep.Publish(Event{
		Type:    EventTypePassCompleted,
		Source:  "engine",
		PassID:  passID,
		Message: fmt.Sprintf("Configuration pass %s completed with status: %s", passID, status),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"status":   status,
			"duration": duration.Seconds(),
		},
	})
}

// PublishPassFailed publishes a pass failed event.
func (ep *EventPublisher) PublishPassFailed(passID, reason string) error {
	return ep.Publish(Event{
		Type:    EventTypePassFailed,
		Source:  "engine",
		PassID:  passID,
		Message: fmt.Sprintf("Configuration pass %s failed: %s", passID, reason),
		Level:   EventLevelError,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// PublishDecision publishes a per-package decision event.
func (ep *EventPublisher) PublishDecision(passID, pkg, verdict string, alreadyBuilt bool) error {
	return ep.Publish(Event{
		Type:    EventTypeDecision,
		Source:  "engine",
		PassID:  passID,
		Package: pkg,
		Message: fmt.Sprintf("Package %s resolved to %s", pkg, verdict),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"verdict":       verdict,
			"already_built": alreadyBuilt,
		},
	})
}

// PublishConflict publishes a forced-system conflict event.
func (ep *EventPublisher) PublishConflict(passID, pkg, reason string) error {
	return ep.Publish(Event{
		Type:    EventTypeConflict,
		Source:  "engine",
		PassID:  passID,
		Package: pkg,
		Message: fmt.Sprintf("Package %s: %s", pkg, reason),
		Level:   EventLevelError,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// PublishProbeFailed publishes a probe failure event.
func (ep *EventPublisher) PublishProbeFailed(passID, pkg, kind, reason string) error {
	return ep.Publish(Event{
		Type:    EventTypeProbeFailed,
		Source:  "probes",
		PassID:  passID,
		Package: pkg,
		Message: fmt.Sprintf("%s probe for %s failed: %s", kind, pkg, reason),
		Level:   EventLevelWarning,
		Data: map[string]interface{}{
			"kind":   kind,
			"reason": reason,
		},
	})
}

// PublishCatalogReloaded publishes a catalog reload event from watch mode.
func (ep *EventPublisher) PublishCatalogReloaded(path string) error {
	return ep.Publish(Event{
		Type:    EventTypeCatalogReloaded,
		Source:  "catalog",
		Message: fmt.Sprintf("Catalog %s reloaded", path),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"path": path,
		},
	})
}

// Subscribe adds a new event subscriber.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

// AddFilter adds a global event filter.
func (ep *EventPublisher) AddFilter(filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.filters = append(ep.filters, filter)
}

// processEvents processes events from the buffer asynchronously.
func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()

	batch := make([]Event, 0, ep.config.MaxBatchSize)

	for {
		select {
		case event := <-ep.buffer:
			batch = append(batch, event)

			if len(batch) >= ep.config.MaxBatchSize {
				ep.flushBatch(batch)
				batch = make([]Event, 0, ep.config.MaxBatchSize)
			}

		case <-ep.ctx.Done():
			// Flush remaining events before shutting down
			if len(batch) > 0 {
				ep.flushBatch(batch)
			}
			return
		}
	}
}

// flushBatch delivers a batch of events to subscribers.
func (ep *EventPublisher) flushBatch(events []Event) {
	for _, event := range events {
		ep.deliverEvent(event)
	}
}

// deliverEvent delivers an event to all subscribers.
func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.RLock()
	defer ep.mu.RUnlock()

	for _, entry := range ep.subscribers {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}
		entry.subscriber(event)
	}
}

// Shutdown gracefully shuts down the event publisher.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if !ep.config.Enabled {
		return nil
	}

	ep.cancel()

	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown timeout")
	}
}

// Common event filters.

// FilterByLevel creates a filter that only allows events of a specific level or higher.
func FilterByLevel(minLevel string) EventFilter {
	levels := map[string]int{
		EventLevelInfo:    0,
		EventLevelWarning: 1,
		EventLevelError:   2,
	}

	minLevelValue := levels[minLevel]

	return func(event Event) bool {
		return levels[event.Level] >= minLevelValue
	}
}

// FilterByType creates a filter that only allows events of specific types.
func FilterByType(types ...string) EventFilter {
	typeSet := make(map[string]bool)
	for _, t := range types {
		typeSet[t] = true
	}

	return func(event Event) bool {
		return typeSet[event.Type]
	}
}

// FilterByPassID creates a filter that only allows events for a specific pass.
func FilterByPassID(passID string) EventFilter {
	return func(event Event) bool {
		return event.PassID == passID
	}
}

// FilterByPackage creates a filter that only allows events for a specific package.
func FilterByPackage(pkg string) EventFilter {
	return func(event Event) bool {
		return event.Package == pkg
	}
}
