package kernel

import (
	"fmt"
)

// HandlerError identifies the subscriber whose handler failed during a publish.
type HandlerError struct {
	// Topic is the notification kind being published.
	Topic string
	// Subscription is the failing subscriber name.
	Subscription string
	// Panic holds the recovered value when the handler panicked.
	Panic any
	// Err is the handler's returned error, nil after a panic.
	Err error
}

// Error implements error.
func (e *HandlerError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("%s subscription %s: panic recovered: %v", e.Topic, e.Subscription, e.Panic)
	}

	return fmt.Sprintf("%s subscription %s: %v", e.Topic, e.Subscription, e.Err)
}

// Unwrap returns the handler's own error.
func (e *HandlerError) Unwrap() error {
	return e.Err
}

// runHandler calls one subscriber, turning a returned error or a panic into *HandlerError.
func runHandler(topic string, subscription string, fn func() error) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = &HandlerError{Topic: topic, Subscription: subscription, Panic: recovered}
		}
	}()

	if handlerErr := fn(); handlerErr != nil {
		return &HandlerError{Topic: topic, Subscription: subscription, Err: handlerErr}
	}

	return nil
}
