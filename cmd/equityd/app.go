package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/efreitasn/equityledger/internal/config"
	"github.com/efreitasn/equityledger/internal/database"
	"github.com/efreitasn/equityledger/internal/economics"
	"github.com/efreitasn/equityledger/internal/engine"
	"github.com/efreitasn/equityledger/internal/service"
	"github.com/efreitasn/equityledger/internal/store"
)

// app is the wired service graph shared by the subcommands.
type app struct {
	logger     *slog.Logger
	store      store.Store
	manager    *engine.Manager
	expiry     *engine.ExpiryManager
	webhooks   *service.WebhookService
	properties *service.PropertyService
	orders     *service.OrderService
	statements *service.StatementService

	cleanup []func() error
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	policy := economics.Policy{MinShares: cfg.MinShares, MaxShares: cfg.MaxShares}
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	a := &app{logger: logger}
	st, err := a.openStore(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.store = st

	a.manager = engine.NewManager(st, engine.Options{LockTimeout: cfg.LockTimeout, Logger: logger})
	a.webhooks = service.NewWebhookService(store.NewWebhookStore(), cfg.WebhookTimeout, cfg.WebhookMaxAttempts, logger)
	a.expiry = engine.NewExpiryManager(cfg.ExpirationInterval, a.manager, a.webhooks)

	a.properties = service.NewPropertyService(st, a.manager, economics.NewConverter(policy, logger), cfg.PriceWindow, logger)
	a.orders = service.NewOrderService(a.manager, st, a.webhooks, cfg.MaxRetries, logger)
	a.statements = service.NewStatementService(st, a.properties)
	return a, nil
}

// openStore selects the store from DATABASE_URL and wraps it with the
// Redis cache when REDIS_URL is set.
func (a *app) openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.DatabaseURL == "" {
		a.logger.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		return store.NewMemoryStore(), nil
	}

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	}
	a.cleanup = append(a.cleanup, sqlDB.Close)
	if err := store.Migrate(db); err != nil {
		return nil, err
	}
	var st store.Store = store.NewGormStore(db)
	a.logger.Info("database store enabled")

	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opt)
		a.cleanup = append(a.cleanup, rdb.Close)

		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		st = store.NewCachedStore(st, rdb, cfg.RedisCacheTTL)
		a.logger.Info("redis cache enabled", "ttl", cfg.RedisCacheTTL)
	}
	return st, nil
}

// warm loads every listed property so resting orders with an expiry are
// tracked before the server accepts traffic.
func (a *app) warm(ctx context.Context) error {
	props, err := a.store.ListProperties(ctx)
	if err != nil {
		return fmt.Errorf("listing properties: %w", err)
	}
	for _, p := range props {
		if _, err := a.manager.Property(ctx, p.PropertyID); err != nil {
			a.logger.Warn("property failed to load", "property_id", p.PropertyID, "error", err)
		}
	}
	a.logger.Info("properties loaded", "count", len(props))
	return nil
}

// Close releases the store connections in reverse order of opening.
func (a *app) Close() error {
	var errs []error
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		errs = append(errs, a.cleanup[i]())
	}
	a.cleanup = nil
	return errors.Join(errs...)
}
