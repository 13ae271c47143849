package cdp

import (
	"context"
	"encoding/json"
	"fmt"

	"bgwatch/pkg/bgservice"
)

// Decoder routes BackgroundService notifications into a receiver.
type Decoder struct{}

// Dispatch decodes notification and invokes the matching receiver callback.
//
// handled is false for methods outside the BackgroundService push interface.
func (Decoder) Dispatch(
	ctx context.Context,
	notification Notification,
	receiver bgservice.Receiver,
) (handled bool, err error) {
	switch notification.Method {
	case EventRecordingStateChanged:
		var params recordingStateChangedParams
		if err := json.Unmarshal(notification.Params, &params); err != nil {
			return true, fmt.Errorf("decode %s: %w", notification.Method, err)
		}
		if params.Service == "" {
			return true, fmt.Errorf("decode %s: missing service", notification.Method)
		}
		if err := receiver.OnRecordingStateChanged(ctx, params.IsRecording, params.Service); err != nil {
			return true, fmt.Errorf("dispatch %s: %w", notification.Method, err)
		}
		return true, nil
	case EventBackgroundServiceEventReceived:
		var params eventReceivedParams
		if err := json.Unmarshal(notification.Params, &params); err != nil {
			return true, fmt.Errorf("decode %s: %w", notification.Method, err)
		}
		if params.BackgroundServiceEvent == nil {
			return true, fmt.Errorf("decode %s: missing backgroundServiceEvent", notification.Method)
		}
		if err := receiver.OnEventReceived(ctx, params.BackgroundServiceEvent.toEvent()); err != nil {
			return true, fmt.Errorf("dispatch %s: %w", notification.Method, err)
		}
		return true, nil
	default:
		return false, nil
	}
}
