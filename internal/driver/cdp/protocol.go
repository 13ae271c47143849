package cdp

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"bgwatch/pkg/bgservice"
)

// BackgroundService domain command and event names.
const (
	MethodStartObserving = "BackgroundService.startObserving"
	MethodStopObserving  = "BackgroundService.stopObserving"
	MethodSetRecording   = "BackgroundService.setRecording"
	MethodClearEvents    = "BackgroundService.clearEvents"

	EventRecordingStateChanged          = "BackgroundService.recordingStateChanged"
	EventBackgroundServiceEventReceived = "BackgroundService.backgroundServiceEventReceived"
)

type messageKind int

const (
	messageKindInvalid messageKind = iota
	messageKindResponse
	messageKindNotification
)

// message is the CDP wire envelope shared by requests, responses and notifications.
type message struct {
	ID        *int64          `json:"id,omitempty"`
	Method    string          `json:"method,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *RemoteError    `json:"error,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
}

// classify identifies inbound messages. Clients never receive requests.
func (m message) classify() (messageKind, error) {
	hasID := m.ID != nil
	hasMethod := m.Method != ""
	hasResult := m.Result != nil
	hasError := m.Error != nil

	if hasMethod {
		if hasID {
			return messageKindInvalid, errors.New("inbound request is not supported")
		}
		if hasResult || hasError {
			return messageKindInvalid, errors.New("both method and result or error are present")
		}
		return messageKindNotification, nil
	}

	if !hasID {
		return messageKindInvalid, errors.New("id is missing")
	}
	if hasResult && hasError {
		return messageKindInvalid, errors.New("result and error are both present")
	}

	return messageKindResponse, nil
}

// RemoteError is a protocol-level failure reported by the target.
type RemoteError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

// Error implements error.
func (e *RemoteError) Error() string {
	if e.Data != "" {
		return fmt.Sprintf("cdp error %d: %s (%s)", e.Code, e.Message, e.Data)
	}

	return fmt.Sprintf("cdp error %d: %s", e.Code, e.Message)
}

// Notification is one server-pushed protocol event.
type Notification struct {
	Method    string
	Params    json.RawMessage
	SessionID string
}

type serviceParams struct {
	Service bgservice.ServiceName `json:"service"`
}

type setRecordingParams struct {
	ShouldRecord bool                  `json:"shouldRecord"`
	Service      bgservice.ServiceName `json:"service"`
}

type recordingStateChangedParams struct {
	IsRecording bool                  `json:"isRecording"`
	Service     bgservice.ServiceName `json:"service"`
}

type eventReceivedParams struct {
	BackgroundServiceEvent *wireEvent `json:"backgroundServiceEvent"`
}

type wireEvent struct {
	// Timestamp is seconds since the Unix epoch.
	Timestamp                   float64               `json:"timestamp"`
	Origin                      string                `json:"origin"`
	ServiceWorkerRegistrationID string                `json:"serviceWorkerRegistrationId"`
	Service                     bgservice.ServiceName `json:"service"`
	EventName                   string                `json:"eventName"`
	InstanceID                  string                `json:"instanceId"`
	EventMetadata               []wireMetadata        `json:"eventMetadata"`
	StorageKey                  string                `json:"storageKey,omitempty"`
}

type wireMetadata struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (w wireEvent) toEvent() bgservice.Event {
	event := bgservice.Event{
		Timestamp:                   timeFromEpochSeconds(w.Timestamp),
		Origin:                      w.Origin,
		ServiceWorkerRegistrationID: w.ServiceWorkerRegistrationID,
		Service:                     w.Service,
		EventName:                   w.EventName,
		InstanceID:                  w.InstanceID,
		StorageKey:                  w.StorageKey,
	}
	if len(w.EventMetadata) > 0 {
		event.Metadata = make([]bgservice.MetadataEntry, len(w.EventMetadata))
		for idx, entry := range w.EventMetadata {
			event.Metadata[idx] = bgservice.MetadataEntry{Key: entry.Key, Value: entry.Value}
		}
	}

	return event
}

func timeFromEpochSeconds(seconds float64) time.Time {
	if seconds <= 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return time.Time{}
	}
	whole, frac := math.Modf(seconds)

	return time.Unix(int64(whole), int64(math.Round(frac*1e9))).UTC()
}
