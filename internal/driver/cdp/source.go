package cdp

import (
	"context"
	"fmt"
)

// NotificationHandler consumes pushed protocol notifications.
type NotificationHandler func(ctx context.Context, notification Notification) error

// NotificationSource streams protocol notifications into the driver.
type NotificationSource interface {
	// Consume runs the notification loop until context cancellation or fatal error.
	Consume(ctx context.Context, handler NotificationHandler) error
}

// NoopSource is a passive source useful for bootstrap wiring tests.
type NoopSource struct{}

// Consume blocks until context cancellation.
func (NoopSource) Consume(ctx context.Context, _ NotificationHandler) error {
	<-ctx.Done()

	return nil
}

// ChannelSource reads notifications from a channel.
type ChannelSource struct {
	// Notifications is the owned input stream consumed by the source loop.
	Notifications <-chan Notification
}

// Consume forwards channel notifications until closure or cancellation.
func (s ChannelSource) Consume(ctx context.Context, handler NotificationHandler) error {
	if handler == nil {
		return fmt.Errorf("channel source: nil handler")
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case notification, ok := <-s.Notifications:
			if !ok {
				return nil
			}
			if err := handler(ctx, notification); err != nil {
				return fmt.Errorf("channel source handle notification %s: %w", notification.Method, err)
			}
		}
	}
}
