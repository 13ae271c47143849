package bgservice

import (
	"fmt"
	"strings"
)

// ServiceName identifies one observable background service on the backend.
type ServiceName string

const (
	// ServiceBackgroundFetch is the Background Fetch API.
	ServiceBackgroundFetch ServiceName = "backgroundFetch"
	// ServiceBackgroundSync is the one-shot Background Sync API.
	ServiceBackgroundSync ServiceName = "backgroundSync"
	// ServicePushMessaging is the Push API.
	ServicePushMessaging ServiceName = "pushMessaging"
	// ServiceNotifications is the Notifications API.
	ServiceNotifications ServiceName = "notifications"
	// ServicePaymentHandler is the Payment Handler API.
	ServicePaymentHandler ServiceName = "paymentHandler"
	// ServicePeriodicBackgroundSync is the Periodic Background Sync API.
	ServicePeriodicBackgroundSync ServiceName = "periodicBackgroundSync"
)

var knownServices = []ServiceName{
	ServiceBackgroundFetch,
	ServiceBackgroundSync,
	ServicePushMessaging,
	ServiceNotifications,
	ServicePaymentHandler,
	ServicePeriodicBackgroundSync,
}

// Services returns every supported service name in protocol order.
func Services() []ServiceName {
	return append([]ServiceName(nil), knownServices...)
}

// Validate reports whether the name is one of the supported services.
func (s ServiceName) Validate() error {
	for _, known := range knownServices {
		if s == known {
			return nil
		}
	}

	return fmt.Errorf("validate service %q: %w", string(s), ErrUnknownService)
}

// ParseServiceName trims raw and validates it as a service name.
func ParseServiceName(raw string) (ServiceName, error) {
	name := ServiceName(strings.TrimSpace(raw))
	if err := name.Validate(); err != nil {
		return "", err
	}

	return name, nil
}
