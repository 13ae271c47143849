package bgservice

import (
	"fmt"
	"time"
)

// MetadataEntry is one key/value pair attached to an event by the backend.
type MetadataEntry struct {
	Key   string
	Value string
}

// Event describes one occurrence observed by the backend for a service.
//
// Consumers treat events as immutable values. The cache routes by Service only
// and never inspects the remaining payload.
type Event struct {
	// Timestamp is when the backend observed the occurrence.
	Timestamp time.Time
	// Origin is the security origin the event belongs to.
	Origin string
	// ServiceWorkerRegistrationID identifies the owning service worker registration.
	ServiceWorkerRegistrationID string
	// Service is the routing key.
	Service ServiceName
	// EventName is a backend-defined description of the occurrence.
	EventName string
	// InstanceID groups events that belong to the same logical operation.
	InstanceID string
	// Metadata carries arbitrary backend-provided details in wire order.
	Metadata []MetadataEntry
	// StorageKey is the storage partition key, when the backend reports one.
	StorageKey string
}

// Validate checks that the event carries a routable service name.
func (e Event) Validate() error {
	if e.Service == "" {
		return fmt.Errorf("%w: missing service", ErrInvalidEvent)
	}

	return nil
}

// Clone returns a copy that shares no mutable state with e.
func (e Event) Clone() Event {
	cloned := e
	if len(e.Metadata) > 0 {
		cloned.Metadata = append([]MetadataEntry(nil), e.Metadata...)
	}

	return cloned
}

// MetadataValue returns the first metadata value stored under key.
func (e Event) MetadataValue(key string) (string, bool) {
	for _, entry := range e.Metadata {
		if entry.Key == key {
			return entry.Value, true
		}
	}

	return "", false
}

// RecordingState is a transient notification about a recording toggle.
type RecordingState struct {
	IsRecording bool
	Service     ServiceName
}
