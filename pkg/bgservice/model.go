package bgservice

import "context"

// Model buffers pushed events per service for one backend connection.
//
// Implementations must be concurrency-safe: control calls and backend pushes
// may arrive from different goroutines.
type Model interface {
	Receiver
	// Enable resets the buffer for service and starts observation.
	Enable(ctx context.Context, service ServiceName) error
	// Disable stops observation for service and keeps its buffer.
	Disable(ctx context.Context, service ServiceName) error
	// SetRecording forwards a recording toggle without touching local state.
	SetRecording(ctx context.Context, shouldRecord bool, service ServiceName) error
	// ClearEvents resets the buffer for service and clears backend history.
	ClearEvents(ctx context.Context, service ServiceName) error
	// GetEvents returns a snapshot of buffered events for service.
	//
	// A service without a buffer yields an empty slice.
	GetEvents(service ServiceName) []Event
	// Services returns services that currently own a buffer.
	Services() []ServiceName
	// Close drops all buffered state.
	Close(ctx context.Context) error
}
