package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"climbs/api/internal/config"
	"climbs/api/internal/credential"
	"climbs/api/internal/publish"
	"climbs/api/internal/store"
	"climbs/api/internal/throttle"

	"go.uber.org/zap"
)

// Runtime is a Service plus the resources it holds open.
type Runtime struct {
	Service *Service
	closers []func() error
}

func (r *Runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OpenStore connects to the configured backend and applies its migrations.
// The "memory" driver keeps everything in process and needs no migrations.
func OpenStore(ctx context.Context, cfg config.Config) (store.Store, func() error, error) {
	if strings.EqualFold(strings.TrimSpace(cfg.DatabaseDriver), "memory") {
		return store.NewMemoryStore(), func() error { return nil }, nil
	}

	dialect, err := store.ParseDialect(cfg.DatabaseDriver)
	if err != nil {
		return nil, nil, err
	}
	db, err := store.Open(ctx, dialect, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}
	if err := store.ApplyMigrations(ctx, db, dialect, store.MigrationsPath(cfg.MigrationsDir, dialect)); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("migrations failed: %w", err)
	}
	return store.NewSQLStore(db, dialect), db.Close, nil
}

// Build assembles the Service from cfg: store, moderation credential,
// submission limiter and, when configured, the dataset publisher.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Runtime, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	runtime := &Runtime{}

	records, closeStore, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	runtime.closers = append(runtime.closers, closeStore)

	verifier, err := credential.New(cfg.ModerationPassword, cfg.ModerationPasswordHash)
	if err != nil {
		_ = runtime.Close()
		return nil, err
	}
	if !verifier.Enabled() {
		logger.Warn("no moderation credential configured; every decision will be refused")
	}

	var limiter throttle.Limiter
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisLimiter, err := throttle.NewRedisLimiter(cfg.RedisURL, cfg.SubmitLimit, cfg.SubmitWindow)
		if err != nil {
			_ = runtime.Close()
			return nil, fmt.Errorf("redis connection failed: %w", err)
		}
		runtime.closers = append(runtime.closers, redisLimiter.Close)
		limiter = redisLimiter
		logger.Info("using redis for submission limits")
	} else {
		limiter = throttle.NewLocalLimiter(cfg.SubmitLimit, cfg.SubmitWindow)
		logger.Info("using in-process submission limits")
	}

	opts := Options{
		Verifier: verifier,
		Limiter:  limiter,
		Logger:   logger,
	}
	publishCfg := publish.Config{
		Endpoint:  cfg.MinIO.Endpoint,
		AccessKey: cfg.MinIO.AccessKey,
		SecretKey: cfg.MinIO.SecretKey,
		Bucket:    cfg.MinIO.Bucket,
		UseSSL:    cfg.MinIO.UseSSL,
	}
	if publishCfg.Enabled() {
		publisher, err := publish.New(publishCfg)
		if err != nil {
			_ = runtime.Close()
			return nil, err
		}
		opts.Publisher = publisher
		logger.Info("dataset publishing enabled", zap.String("endpoint", publishCfg.Endpoint), zap.String("bucket", publishCfg.Bucket))
	}

	runtime.Service = New(records, opts)
	return runtime, nil
}
