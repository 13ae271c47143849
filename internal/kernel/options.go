package kernel

import (
	"log/slog"
)

// config stores resolved target registry settings after option application.
type config struct {
	logger *slog.Logger
}

// Option mutates target registry construction.
type Option func(*config)

func applyOptions(options []Option) config {
	cfg := config{logger: slog.Default()}
	for _, option := range options {
		option(&cfg)
	}

	return cfg
}

// WithLogger configures registry lifecycle logging.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *config) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}
