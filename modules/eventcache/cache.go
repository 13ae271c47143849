package eventcache

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"bgwatch/pkg/bgservice"
)

// Option mutates event cache configuration.
type Option func(*Cache)

// WithLogger injects a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(cache *Cache) {
		if logger != nil {
			cache.logger = logger
		}
	}
}

// Cache stores per-service event buffers for one backend connection.
type Cache struct {
	logger    *slog.Logger
	backend   bgservice.Backend
	publisher bgservice.Publisher

	mu     sync.Mutex
	events map[bgservice.ServiceName][]bgservice.Event
}

var _ bgservice.Model = (*Cache)(nil)

// New creates an empty cache bound to backend and publisher.
func New(backend bgservice.Backend, publisher bgservice.Publisher, options ...Option) (*Cache, error) {
	if backend == nil {
		return nil, fmt.Errorf("new event cache: nil backend")
	}
	if publisher == nil {
		return nil, fmt.Errorf("new event cache: nil publisher")
	}

	cache := &Cache{
		logger:    slog.Default(),
		backend:   backend,
		publisher: publisher,
		events:    make(map[bgservice.ServiceName][]bgservice.Event),
	}
	for _, option := range options {
		option(cache)
	}

	return cache, nil
}

// Enable resets the buffer for service, then asks the backend to start observing it.
//
// The reset stays in effect when the backend call fails.
func (c *Cache) Enable(ctx context.Context, service bgservice.ServiceName) error {
	if err := service.Validate(); err != nil {
		return fmt.Errorf("event cache enable: %w", err)
	}

	c.resetBuffer(service)

	if err := c.backend.StartObserving(ctx, service); err != nil {
		return fmt.Errorf("event cache enable %s: start observing: %w", service, err)
	}

	c.logger.DebugContext(ctx, "background service observation enabled", "service", service)

	return nil
}

// Disable asks the backend to stop observing service. Buffered events are kept.
func (c *Cache) Disable(ctx context.Context, service bgservice.ServiceName) error {
	if err := service.Validate(); err != nil {
		return fmt.Errorf("event cache disable: %w", err)
	}

	if err := c.backend.StopObserving(ctx, service); err != nil {
		return fmt.Errorf("event cache disable %s: stop observing: %w", service, err)
	}

	c.logger.DebugContext(ctx, "background service observation disabled", "service", service)

	return nil
}

// SetRecording forwards a recording toggle. State is only considered changed once
// the backend reports it through OnRecordingStateChanged.
func (c *Cache) SetRecording(ctx context.Context, shouldRecord bool, service bgservice.ServiceName) error {
	if err := service.Validate(); err != nil {
		return fmt.Errorf("event cache set recording: %w", err)
	}

	if err := c.backend.SetRecording(ctx, shouldRecord, service); err != nil {
		return fmt.Errorf("event cache set recording %s=%t: %w", service, shouldRecord, err)
	}

	return nil
}

// ClearEvents empties the local buffer for service and asks the backend to drop its history.
func (c *Cache) ClearEvents(ctx context.Context, service bgservice.ServiceName) error {
	if err := service.Validate(); err != nil {
		return fmt.Errorf("event cache clear events: %w", err)
	}

	c.resetBuffer(service)

	if err := c.backend.ClearEvents(ctx, service); err != nil {
		return fmt.Errorf("event cache clear events %s: %w", service, err)
	}

	return nil
}

// GetEvents returns a snapshot of the buffer for service.
func (c *Cache) GetEvents(service bgservice.ServiceName) []bgservice.Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	return cloneEventStream(c.events[service])
}

// Services returns the services that currently own a buffer, sorted by name.
func (c *Cache) Services() []bgservice.ServiceName {
	c.mu.Lock()
	services := make([]bgservice.ServiceName, 0, len(c.events))
	for service := range c.events {
		services = append(services, service)
	}
	c.mu.Unlock()

	slices.Sort(services)

	return services
}

// OnRecordingStateChanged republishes a backend recording-state change.
func (c *Cache) OnRecordingStateChanged(ctx context.Context, isRecording bool, service bgservice.ServiceName) error {
	state := bgservice.RecordingState{IsRecording: isRecording, Service: service}
	if err := c.publisher.PublishRecordingState(ctx, state); err != nil {
		return fmt.Errorf("event cache publish recording state %s: %w", service, err)
	}

	return nil
}

// OnEventReceived appends event to its service buffer and republishes it.
//
// The service must have been enabled first. A missing buffer means the backend
// and cache disagree about observation state; nothing is stored or published.
func (c *Cache) OnEventReceived(ctx context.Context, event bgservice.Event) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("event cache receive event: %w", err)
	}

	stored := event.Clone()

	c.mu.Lock()
	buffer, exists := c.events[event.Service]
	if !exists {
		c.mu.Unlock()
		err := fmt.Errorf("event cache receive event %s: %w", event.Service, bgservice.ErrServiceNotEnabled)
		c.logger.ErrorContext(ctx,
			"background service event for unobserved service",
			"service", event.Service,
			"event_name", event.EventName,
			"error", err,
		)
		return err
	}
	c.events[event.Service] = append(buffer, stored)
	c.mu.Unlock()

	if err := c.publisher.PublishEvent(ctx, stored.Clone()); err != nil {
		return fmt.Errorf("event cache publish event %s: %w", event.Service, err)
	}

	return nil
}

// Close drops every buffer. The cache is unusable for reads of old data afterwards.
func (c *Cache) Close(ctx context.Context) error {
	c.mu.Lock()
	serviceCount := len(c.events)
	eventCount := 0
	for _, buffer := range c.events {
		eventCount += len(buffer)
	}
	c.events = make(map[bgservice.ServiceName][]bgservice.Event)
	c.mu.Unlock()

	c.logger.InfoContext(ctx,
		"event cache closed",
		"services", serviceCount,
		"events", eventCount,
	)

	return nil
}

// resetBuffer replaces the buffer for service with a fresh empty one.
func (c *Cache) resetBuffer(service bgservice.ServiceName) {
	c.mu.Lock()
	c.events[service] = make([]bgservice.Event, 0)
	c.mu.Unlock()
}

func cloneEventStream(events []bgservice.Event) []bgservice.Event {
	cloned := make([]bgservice.Event, len(events))
	for idx, event := range events {
		cloned[idx] = event.Clone()
	}

	return cloned
}
