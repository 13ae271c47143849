package bgservice

import "context"

// Backend is the remote instrumentation capability set the cache drives.
//
// Calls are fire-and-forget from the cache's perspective: failures are returned
// to whoever issued the control operation and are never retried.
type Backend interface {
	// StartObserving asks the backend to begin pushing events for service.
	StartObserving(ctx context.Context, service ServiceName) error
	// StopObserving asks the backend to stop pushing events for service.
	StopObserving(ctx context.Context, service ServiceName) error
	// SetRecording toggles server-side recording for service.
	SetRecording(ctx context.Context, shouldRecord bool, service ServiceName) error
	// ClearEvents discards server-side history for service.
	ClearEvents(ctx context.Context, service ServiceName) error
}

// Receiver is the push interface the backend calls back into.
type Receiver interface {
	// OnRecordingStateChanged reports an acknowledged recording change.
	OnRecordingStateChanged(ctx context.Context, isRecording bool, service ServiceName) error
	// OnEventReceived reports one newly observed event.
	OnEventReceived(ctx context.Context, event Event) error
}
