package cdp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"bgwatch/pkg/bgservice"
)

// DriverType is the stable identifier for DevTools protocol drivers.
const DriverType = "cdp"

// driverConfig contains runtime controls for logging and error reporting.
type driverConfig struct {
	name         string
	logger       *slog.Logger
	onAsyncError func(context.Context, error)
}

// DriverOption mutates driver configuration.
type DriverOption func(*driverConfig)

// WithName configures the driver identity used in logs.
func WithName(name string) DriverOption {
	return func(cfg *driverConfig) {
		if name != "" {
			cfg.name = name
		}
	}
}

// WithLogger configures driver diagnostics logging.
func WithLogger(logger *slog.Logger) DriverOption {
	return func(cfg *driverConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithErrorHandler configures per-notification failure reporting.
func WithErrorHandler(handler func(context.Context, error)) DriverOption {
	return func(cfg *driverConfig) {
		if handler != nil {
			cfg.onAsyncError = handler
		}
	}
}

// Driver feeds BackgroundService pushes from a source into a receiver.
type Driver struct {
	cfg     driverConfig
	source  NotificationSource
	decoder Decoder
}

// NewDriver creates a driver reading from source.
func NewDriver(source NotificationSource, options ...DriverOption) (*Driver, error) {
	if source == nil {
		return nil, fmt.Errorf("new cdp driver: nil source")
	}

	cfg := driverConfig{
		name:         DriverType,
		logger:       slog.Default(),
		onAsyncError: func(context.Context, error) {},
	}
	for _, option := range options {
		option(&cfg)
	}

	return &Driver{
		cfg:    cfg,
		source: source,
	}, nil
}

// Name returns the stable driver identifier.
func (d *Driver) Name() string {
	return d.cfg.name
}

// Start consumes notifications until context cancellation or a fatal source error.
//
// Notifications are dispatched in arrival order on a separate goroutine, so a
// receiver or subscriber may issue backend calls whose responses arrive through
// the same source. Failures for a single notification are reported and do not
// stop the loop. Queued notifications are drained before Start returns.
func (d *Driver) Start(ctx context.Context, receiver bgservice.Receiver) error {
	if receiver == nil {
		return fmt.Errorf("start cdp driver: nil receiver")
	}

	queue := newNotificationQueue()
	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)
		for {
			notification, ok := queue.pop()
			if !ok {
				return
			}
			if err := d.handleNotification(ctx, notification, receiver); err != nil {
				d.cfg.onAsyncError(ctx, err)
			}
		}
	}()

	consumeErr := d.source.Consume(ctx, func(_ context.Context, notification Notification) error {
		queue.push(notification)
		return nil
	})
	queue.close()
	<-dispatched

	if consumeErr != nil {
		if errors.Is(consumeErr, context.Canceled) || errors.Is(consumeErr, context.DeadlineExceeded) {
			return nil
		}

		return fmt.Errorf("start cdp driver %s: consume notifications: %w", d.cfg.name, consumeErr)
	}

	return nil
}

func (d *Driver) handleNotification(ctx context.Context, notification Notification, receiver bgservice.Receiver) error {
	handled, err := d.dispatchSafely(ctx, notification, receiver)
	if err != nil {
		return fmt.Errorf("driver %s handle notification %s: %w", d.cfg.name, notification.Method, err)
	}
	if !handled {
		d.cfg.logger.DebugContext(ctx, "cdp notification ignored", "driver", d.cfg.name, "method", notification.Method)
	}

	return nil
}

// dispatchSafely protects receiver and decoder panics at the adapter boundary.
func (d *Driver) dispatchSafely(
	ctx context.Context,
	notification Notification,
	receiver bgservice.Receiver,
) (handled bool, err error) {
	defer func() {
		recovered := recover()
		if recovered == nil {
			return
		}
		handled = true
		err = fmt.Errorf("dispatch panic: %v", recovered)
	}()

	return d.decoder.Dispatch(ctx, notification, receiver)
}
