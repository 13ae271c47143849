package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"bgwatch/internal/driver/cdp"
	"bgwatch/internal/kernel"
	"bgwatch/modules/eventcache"
	"bgwatch/pkg/bgservice"
)

// watch connects to one DevTools target and observes configured services until ctx ends.
func watch(ctx context.Context, logger *slog.Logger, cfg appConfig) error {
	dialCtx, cancelDial := context.WithTimeout(ctx, cfg.dialTimeout)
	conn, err := cdp.Dial(dialCtx, cfg.endpoint,
		cdp.WithSessionID(cfg.sessionID),
		cdp.WithReadLimit(cfg.readLimit),
		cdp.WithConnLogger(logger),
	)
	cancelDial()
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	backend, err := cdp.NewBackend(conn)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("build backend: %w", err)
	}

	targets, err := kernel.NewTargets(newCacheFactory(logger), kernel.WithLogger(logger))
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("build targets: %w", err)
	}
	target, err := targets.Attach(ctx, backend)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("attach target: %w", err)
	}
	if err := subscribeLogging(ctx, logger, target); err != nil {
		_ = targets.Close(context.Background())
		_ = conn.Close()
		return err
	}

	driver, err := cdp.NewDriver(conn,
		cdp.WithName(target.ID),
		cdp.WithLogger(logger),
		cdp.WithErrorHandler(func(handlerCtx context.Context, err error) {
			logger.ErrorContext(handlerCtx, "background service notification failed",
				"target_id", target.ID,
				"error", err,
			)
		}),
	)
	if err != nil {
		_ = targets.Close(context.Background())
		_ = conn.Close()
		return fmt.Errorf("build driver: %w", err)
	}

	// The read loop outlives ctx so shutdown calls still receive responses.
	consumeCtx, cancelConsume := context.WithCancel(context.Background())
	defer cancelConsume()
	driverDone := make(chan error, 1)
	go func() {
		driverDone <- driver.Start(consumeCtx, target.Model)
	}()

	var errs []error
	connLost := false
	if err := startWatching(ctx, cfg, target.Model); err != nil {
		errs = append(errs, err)
	} else {
		logger.InfoContext(ctx, "bgwatch started",
			"target_id", target.ID,
			"endpoint", cfg.endpoint,
			"services", cfg.services,
			"record", cfg.record,
		)

		select {
		case <-ctx.Done():
		case <-conn.Done():
			connLost = true
			logger.WarnContext(ctx, "cdp connection ended", "target_id", target.ID)
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.shutdownTimeout)
	defer cancelShutdown()

	if !connLost {
		if err := stopWatching(shutdownCtx, cfg, target.Model); err != nil {
			errs = append(errs, err)
		}
	}
	if err := conn.Close(); err != nil {
		logger.WarnContext(shutdownCtx, "close cdp connection failed", "error", err)
	}
	// Start returns once every queued notification reached the cache.
	select {
	case err := <-driverDone:
		if err != nil {
			errs = append(errs, err)
		}
	case <-shutdownCtx.Done():
		errs = append(errs, fmt.Errorf("wait for driver: %w", shutdownCtx.Err()))
	}

	logBufferedEvents(shutdownCtx, logger, target, cfg.services)
	if err := targets.Close(shutdownCtx); err != nil {
		errs = append(errs, err)
	}

	logger.InfoContext(shutdownCtx, "bgwatch stopped", "target_id", target.ID)

	return errors.Join(errs...)
}

func newCacheFactory(logger *slog.Logger) kernel.ModelFactory {
	return func(backend bgservice.Backend, publisher bgservice.Publisher) (bgservice.Model, error) {
		cache, err := eventcache.New(backend, publisher, eventcache.WithLogger(logger))
		if err != nil {
			return nil, err
		}

		return cache, nil
	}
}

func subscribeLogging(ctx context.Context, logger *slog.Logger, target *kernel.Target) error {
	if _, err := target.Notifier.SubscribeRecordingState(ctx, "log-recording-state",
		func(handlerCtx context.Context, state bgservice.RecordingState) error {
			logger.InfoContext(handlerCtx, "recording state changed",
				"target_id", target.ID,
				"service", state.Service,
				"is_recording", state.IsRecording,
			)
			return nil
		},
	); err != nil {
		return fmt.Errorf("subscribe recording state: %w", err)
	}

	if _, err := target.Notifier.SubscribeEvents(ctx, "log-events",
		func(handlerCtx context.Context, event bgservice.Event) error {
			metadata := make(map[string]string, len(event.Metadata))
			for _, entry := range event.Metadata {
				metadata[entry.Key] = entry.Value
			}
			logger.InfoContext(handlerCtx, "background service event",
				"target_id", target.ID,
				"service", event.Service,
				"event_name", event.EventName,
				"origin", event.Origin,
				"instance_id", event.InstanceID,
				"service_worker_registration_id", event.ServiceWorkerRegistrationID,
				"timestamp", event.Timestamp,
				"metadata", metadata,
			)
			return nil
		},
	); err != nil {
		return fmt.Errorf("subscribe events: %w", err)
	}

	return nil
}

func startWatching(ctx context.Context, cfg appConfig, model bgservice.Model) error {
	for _, service := range cfg.services {
		if err := callWithTimeout(ctx, cfg.callTimeout, func(callCtx context.Context) error {
			return model.Enable(callCtx, service)
		}); err != nil {
			return fmt.Errorf("enable %s: %w", service, err)
		}
	}
	if !cfg.record {
		return nil
	}
	for _, service := range cfg.services {
		if err := callWithTimeout(ctx, cfg.callTimeout, func(callCtx context.Context) error {
			return model.SetRecording(callCtx, true, service)
		}); err != nil {
			return fmt.Errorf("start recording %s: %w", service, err)
		}
	}

	return nil
}

// stopWatching attempts every service even after a failure.
func stopWatching(ctx context.Context, cfg appConfig, model bgservice.Model) error {
	var errs []error
	for _, service := range cfg.services {
		if cfg.record {
			if err := callWithTimeout(ctx, cfg.callTimeout, func(callCtx context.Context) error {
				return model.SetRecording(callCtx, false, service)
			}); err != nil {
				errs = append(errs, fmt.Errorf("stop recording %s: %w", service, err))
			}
		}
		if err := callWithTimeout(ctx, cfg.callTimeout, func(callCtx context.Context) error {
			return model.Disable(callCtx, service)
		}); err != nil {
			errs = append(errs, fmt.Errorf("disable %s: %w", service, err))
		}
	}

	return errors.Join(errs...)
}

func callWithTimeout(ctx context.Context, timeout time.Duration, call func(context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return call(callCtx)
}

func logBufferedEvents(ctx context.Context, logger *slog.Logger, target *kernel.Target, services []bgservice.ServiceName) {
	for _, service := range services {
		logger.InfoContext(ctx, "background service events buffered",
			"target_id", target.ID,
			"service", service,
			"events", len(target.Model.GetEvents(service)),
		)
	}
}
