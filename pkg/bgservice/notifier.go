package bgservice

import "context"

// RecordingStateHandler consumes recording-state notifications.
type RecordingStateHandler func(ctx context.Context, state RecordingState) error

// EventHandler consumes newly received event notifications.
type EventHandler func(ctx context.Context, event Event) error

// Publisher fans notifications out to current subscribers.
//
// Delivery is synchronous and ordered by registration. Every subscriber is
// invoked even when an earlier one fails.
type Publisher interface {
	// PublishRecordingState delivers state to all recording-state subscribers.
	PublishRecordingState(ctx context.Context, state RecordingState) error
	// PublishEvent delivers event to all event subscribers.
	PublishEvent(ctx context.Context, event Event) error
}

// Subscription controls an active notification registration.
type Subscription interface {
	// Name returns the subscription identifier.
	Name() string
	// Close stops delivery for this subscription.
	Close(ctx context.Context) error
}

// Notifier is the subscriber-facing pub/sub contract.
type Notifier interface {
	Publisher
	// SubscribeRecordingState registers a recording-state handler.
	SubscribeRecordingState(ctx context.Context, name string, handler RecordingStateHandler) (Subscription, error)
	// SubscribeEvents registers an event handler.
	SubscribeEvents(ctx context.Context, name string, handler EventHandler) (Subscription, error)
	// Close removes all subscriptions and rejects further use.
	Close(ctx context.Context) error
}
