package cdp

import (
	"context"
	"fmt"

	"bgwatch/pkg/bgservice"
)

// Caller issues one protocol command and waits for its response.
type Caller interface {
	Call(ctx context.Context, method string, params any, result any) error
}

// Backend drives the BackgroundService domain of a DevTools target.
type Backend struct {
	caller Caller
}

var _ bgservice.Backend = (*Backend)(nil)

// NewBackend creates a backend adapter over caller.
func NewBackend(caller Caller) (*Backend, error) {
	if caller == nil {
		return nil, fmt.Errorf("new cdp backend: nil caller")
	}

	return &Backend{caller: caller}, nil
}

// StartObserving enables event pushes for service.
func (b *Backend) StartObserving(ctx context.Context, service bgservice.ServiceName) error {
	return b.call(ctx, MethodStartObserving, serviceParams{Service: service})
}

// StopObserving disables event pushes for service.
func (b *Backend) StopObserving(ctx context.Context, service bgservice.ServiceName) error {
	return b.call(ctx, MethodStopObserving, serviceParams{Service: service})
}

// SetRecording toggles target-side recording for service.
func (b *Backend) SetRecording(ctx context.Context, shouldRecord bool, service bgservice.ServiceName) error {
	return b.call(ctx, MethodSetRecording, setRecordingParams{ShouldRecord: shouldRecord, Service: service})
}

// ClearEvents drops target-side history for service.
func (b *Backend) ClearEvents(ctx context.Context, service bgservice.ServiceName) error {
	return b.call(ctx, MethodClearEvents, serviceParams{Service: service})
}

func (b *Backend) call(ctx context.Context, method string, params any) error {
	if err := b.caller.Call(ctx, method, params, nil); err != nil {
		return fmt.Errorf("cdp backend: %w", err)
	}

	return nil
}
