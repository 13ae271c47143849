package bgservice

import "errors"

var (
	// ErrUnknownService indicates a service name outside the supported set.
	ErrUnknownService = errors.New("bgservice: unknown service")
	// ErrServiceNotEnabled indicates an event arrived for a service with no buffer.
	//
	// This is a backend/cache desynchronization, not a recoverable condition.
	ErrServiceNotEnabled = errors.New("bgservice: event for service that was not enabled")
	// ErrInvalidEvent indicates that an event does not satisfy protocol invariants.
	ErrInvalidEvent = errors.New("bgservice: invalid event")
	// ErrNotifierClosed indicates publish or subscribe on a closed notifier.
	ErrNotifierClosed = errors.New("bgservice: notifier closed")
	// ErrTargetNotFound indicates a target registry lookup miss.
	ErrTargetNotFound = errors.New("bgservice: target not found")
)
