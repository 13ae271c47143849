package kernel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"bgwatch/pkg/bgservice"
)

// Notifier is the kernel synchronous pub/sub implementation.
//
// Handlers run in the publisher's goroutine, in registration order. Handler
// failures are returned to the publisher as joined *HandlerError values and are
// not logged here.
type Notifier struct {
	nextID    atomic.Int64
	closed    atomic.Bool
	recording *topic[bgservice.RecordingState]
	events    *topic[bgservice.Event]
}

var _ bgservice.Notifier = (*Notifier)(nil)

// NewNotifier creates a notifier with no subscribers.
func NewNotifier() *Notifier {
	return &Notifier{
		recording: newTopic[bgservice.RecordingState]("recording-state"),
		events:    newTopic[bgservice.Event]("background-service-event"),
	}
}

// PublishRecordingState delivers state to every recording-state subscriber.
func (n *Notifier) PublishRecordingState(ctx context.Context, state bgservice.RecordingState) error {
	if n.closed.Load() {
		return fmt.Errorf("publish recording state %s: %w", state.Service, bgservice.ErrNotifierClosed)
	}
	if err := n.recording.publish(ctx, state); err != nil {
		return fmt.Errorf("publish recording state %s: %w", state.Service, err)
	}

	return nil
}

// PublishEvent delivers event to every event subscriber.
func (n *Notifier) PublishEvent(ctx context.Context, event bgservice.Event) error {
	if n.closed.Load() {
		return fmt.Errorf("publish event %s: %w", event.Service, bgservice.ErrNotifierClosed)
	}
	if err := n.events.publish(ctx, event); err != nil {
		return fmt.Errorf("publish event %s: %w", event.Service, err)
	}

	return nil
}

// SubscribeRecordingState registers handler for recording-state notifications.
func (n *Notifier) SubscribeRecordingState(
	ctx context.Context,
	name string,
	handler bgservice.RecordingStateHandler,
) (bgservice.Subscription, error) {
	if handler == nil {
		return nil, fmt.Errorf("subscribe recording state %s: nil handler", name)
	}

	return subscribe(ctx, n, n.recording, name, func(ctx context.Context, state bgservice.RecordingState) error {
		return handler(ctx, state)
	})
}

// SubscribeEvents registers handler for newly received event notifications.
func (n *Notifier) SubscribeEvents(
	ctx context.Context,
	name string,
	handler bgservice.EventHandler,
) (bgservice.Subscription, error) {
	if handler == nil {
		return nil, fmt.Errorf("subscribe events %s: nil handler", name)
	}

	return subscribe(ctx, n, n.events, name, func(ctx context.Context, event bgservice.Event) error {
		return handler(ctx, event)
	})
}

// Close removes all subscriptions and rejects further publishes and subscribes.
func (n *Notifier) Close(_ context.Context) error {
	if n.closed.Swap(true) {
		return nil
	}
	n.recording.clear()
	n.events.clear()

	return nil
}

// subscribe assigns a notifier-wide id so default names stay unique across topics.
func subscribe[T any](
	ctx context.Context,
	n *Notifier,
	target *topic[T],
	name string,
	handler func(context.Context, T) error,
) (bgservice.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("subscribe %s %s: %w", target.name, name, err)
	}

	subID := n.nextID.Add(1)
	if name == "" {
		name = fmt.Sprintf("subscription-%d", subID)
	}

	if n.closed.Load() {
		return nil, fmt.Errorf("subscribe %s %s: %w", target.name, name, bgservice.ErrNotifierClosed)
	}

	return target.add(subID, name, handler), nil
}

// topic holds an ordered subscriber list for one notification kind.
type topic[T any] struct {
	name string
	mu   sync.RWMutex
	subs []*topicSubscription[T]
}

func newTopic[T any](name string) *topic[T] {
	return &topic[T]{name: name}
}

// add appends a subscriber; slice order is delivery order.
func (t *topic[T]) add(subID int64, name string, handler func(context.Context, T) error) *topicSubscription[T] {
	sub := &topicSubscription[T]{
		id:      subID,
		name:    name,
		handler: handler,
		topic:   t,
	}

	t.mu.Lock()
	t.subs = append(t.subs, sub)
	t.mu.Unlock()

	return sub
}

// remove drops subID, preserving the relative order of the rest.
func (t *topic[T]) remove(subID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for idx, sub := range t.subs {
		if sub.id == subID {
			t.subs = append(t.subs[:idx:idx], t.subs[idx+1:]...)
			return
		}
	}
}

func (t *topic[T]) clear() {
	t.mu.Lock()
	t.subs = nil
	t.mu.Unlock()
}

// snapshot copies the subscriber list so handlers may subscribe or unsubscribe re-entrantly.
func (t *topic[T]) snapshot() []*topicSubscription[T] {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return append([]*topicSubscription[T](nil), t.subs...)
}

// publish calls every subscriber even when earlier ones fail.
func (t *topic[T]) publish(ctx context.Context, value T) error {
	var publishErrs []error
	for _, sub := range t.snapshot() {
		if sub.closed.Load() {
			continue
		}

		if err := runHandler(t.name, sub.name, func() error {
			return sub.handler(ctx, value)
		}); err != nil {
			publishErrs = append(publishErrs, err)
		}
	}

	if len(publishErrs) > 0 {
		return errors.Join(publishErrs...)
	}

	return nil
}

// topicSubscription is one registered handler.
type topicSubscription[T any] struct {
	id      int64
	name    string
	handler func(context.Context, T) error
	closed  atomic.Bool
	topic   *topic[T]
}

// Name returns the stable subscription name.
func (s *topicSubscription[T]) Name() string {
	return s.name
}

// Close unregisters the subscription. Repeated calls are no-ops.
func (s *topicSubscription[T]) Close(_ context.Context) error {
	if s.closed.Swap(true) {
		return nil
	}
	s.topic.remove(s.id)

	return nil
}
