package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"bgwatch/pkg/bgservice"
)

const (
	envConfigFile           = "BGWATCH_CONFIG_FILE"
	defaultConfigFilePath   = "config/bgwatch.json"
	alternateConfigFilePath = "bin/config/bgwatch.json"
	defaultDialTimeout      = 10 * time.Second
	defaultCallTimeout      = 5 * time.Second
	defaultShutdownTimeout  = 5 * time.Second
	defaultReadLimit        = 4 << 20
)

type appConfig struct {
	logLevel slog.Level

	endpoint  string
	sessionID string
	services  []bgservice.ServiceName
	record    bool

	dialTimeout     time.Duration
	callTimeout     time.Duration
	shutdownTimeout time.Duration
	readLimit       int64
}

type fileConfig struct {
	LogLevel        string   `json:"log_level"`
	Endpoint        string   `json:"endpoint"`
	SessionID       string   `json:"session_id"`
	Services        []string `json:"services"`
	Record          *bool    `json:"record"`
	DialTimeout     string   `json:"dial_timeout"`
	CallTimeout     string   `json:"call_timeout"`
	ShutdownTimeout string   `json:"shutdown_timeout"`
	ReadLimit       *int64   `json:"read_limit"`
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.logLevel}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := watch(ctx, logger, cfg); err != nil {
		return fmt.Errorf("watch %s: %w", cfg.endpoint, err)
	}

	return nil
}

func loadConfig() (appConfig, error) {
	cfg := defaultAppConfig()
	configFile, err := resolveConfigFilePath()
	if err != nil {
		return appConfig{}, err
	}

	if err := applyConfigFile(&cfg, configFile); err != nil {
		return appConfig{}, err
	}
	if err := validateAppConfig(&cfg); err != nil {
		return appConfig{}, fmt.Errorf("validate config file %s: %w", configFile, err)
	}

	return cfg, nil
}

func resolveConfigFilePath() (string, error) {
	if configFile := strings.TrimSpace(os.Getenv(envConfigFile)); configFile != "" {
		return configFile, nil
	}

	candidates := []string{defaultConfigFilePath, alternateConfigFilePath}
	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil {
			if info.IsDir() {
				return "", fmt.Errorf("config file %s is a directory", candidate)
			}
			return candidate, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("stat config file %s: %w", candidate, err)
		}
	}

	return "", fmt.Errorf(
		"config file not found; create %s or %s, or set %s",
		defaultConfigFilePath,
		alternateConfigFilePath,
		envConfigFile,
	)
}

func defaultAppConfig() appConfig {
	return appConfig{
		logLevel: slog.LevelInfo,

		services: make([]bgservice.ServiceName, 0),

		dialTimeout:     defaultDialTimeout,
		callTimeout:     defaultCallTimeout,
		shutdownTimeout: defaultShutdownTimeout,
		readLimit:       defaultReadLimit,
	}
}

func applyConfigFile(cfg *appConfig, path string) error {
	if cfg == nil {
		return fmt.Errorf("apply config file: nil config")
	}
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("config file path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	var parsed fileConfig
	if err := json.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if rawLevel := strings.TrimSpace(parsed.LogLevel); rawLevel != "" {
		level, err := parseLogLevel(rawLevel)
		if err != nil {
			return fmt.Errorf("parse log_level: %w", err)
		}
		cfg.logLevel = level
	}

	cfg.endpoint = strings.TrimSpace(parsed.Endpoint)
	cfg.sessionID = strings.TrimSpace(parsed.SessionID)
	if parsed.Record != nil {
		cfg.record = *parsed.Record
	}

	cfg.services = make([]bgservice.ServiceName, 0, len(parsed.Services))
	for index, rawService := range parsed.Services {
		service, err := bgservice.ParseServiceName(rawService)
		if err != nil {
			return fmt.Errorf("parse services[%d]: %w", index, err)
		}
		cfg.services = append(cfg.services, service)
	}

	if err := parsePositiveDuration(parsed.DialTimeout, "dial_timeout", &cfg.dialTimeout); err != nil {
		return err
	}
	if err := parsePositiveDuration(parsed.CallTimeout, "call_timeout", &cfg.callTimeout); err != nil {
		return err
	}
	if err := parsePositiveDuration(parsed.ShutdownTimeout, "shutdown_timeout", &cfg.shutdownTimeout); err != nil {
		return err
	}
	if parsed.ReadLimit != nil {
		if *parsed.ReadLimit <= 0 {
			return fmt.Errorf("parse read_limit: must be > 0")
		}
		cfg.readLimit = *parsed.ReadLimit
	}

	return nil
}

func parsePositiveDuration(raw string, key string, target *time.Duration) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	timeout, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	if timeout <= 0 {
		return fmt.Errorf("parse %s: must be > 0", key)
	}
	*target = timeout

	return nil
}

func validateAppConfig(cfg *appConfig) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if cfg.endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	if !strings.HasPrefix(cfg.endpoint, "ws://") && !strings.HasPrefix(cfg.endpoint, "wss://") {
		return fmt.Errorf("endpoint %s: scheme must be ws or wss", cfg.endpoint)
	}

	if len(cfg.services) == 0 {
		return fmt.Errorf("at least one service is required")
	}
	seen := make(map[bgservice.ServiceName]struct{}, len(cfg.services))
	for _, service := range cfg.services {
		if _, exists := seen[service]; exists {
			return fmt.Errorf("services[%s]: duplicate service", service)
		}
		seen[service] = struct{}{}
	}

	return nil
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unsupported level %q", raw)
	}
}
