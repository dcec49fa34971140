package main

import (
	"context"
	"fmt"

	"climbs/api/internal/app"
	"climbs/api/internal/config"
	"climbs/api/internal/logging"
)

// openRuntime is replaced in tests.
var openRuntime = func(ctx context.Context, cfg config.Config) (*app.Runtime, error) {
	logger, err := logging.New("error", "console")
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return app.Build(ctx, cfg, logger)
}

func loadConfig() (config.Config, error) {
	if globalConfig != "" {
		return config.LoadFile(globalConfig)
	}
	return config.FromEnvironment()
}

// moderationPassword prefers --password over the configured secret.
func moderationPassword(cfg config.Config) string {
	if globalPassword != "" {
		return globalPassword
	}
	return cfg.ModerationPassword
}

// withService builds the same Service the API server runs and closes its
// resources afterwards.
func withService(ctx context.Context, fn func(*app.Service, config.Config) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	runtime, err := openRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer runtime.Close()
	return fn(runtime.Service, cfg)
}
