// Package app assembles stores, feeds and services from configuration. Both
// the HTTP server and the operator CLI start from here.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/recoverly/recoverly/internal/account"
	"github.com/recoverly/recoverly/internal/activity"
	"github.com/recoverly/recoverly/internal/badge"
	"github.com/recoverly/recoverly/internal/cascade"
	"github.com/recoverly/recoverly/internal/checkin"
	"github.com/recoverly/recoverly/internal/config"
	"github.com/recoverly/recoverly/internal/contract"
	"github.com/recoverly/recoverly/internal/feed"
	"github.com/recoverly/recoverly/internal/infra"
	"github.com/recoverly/recoverly/internal/ledger"
	"github.com/recoverly/recoverly/internal/level"
	"github.com/recoverly/recoverly/internal/logging"
	"github.com/recoverly/recoverly/internal/notification"
	"github.com/recoverly/recoverly/internal/observer"
	"github.com/recoverly/recoverly/internal/streak"
)

// App holds every long-lived dependency.
type App struct {
	Config config.Config
	Logger *slog.Logger

	DB     *pgxpool.Pool
	SQLite *sql.DB
	Cache  *redis.Client

	Store   account.Store
	Feed    feed.Feed
	Guard   activity.Guard
	Catalog *badge.Catalog
	Curve   level.Curve

	Accounts   *account.Service
	Ledger     *ledger.Ledger
	Tracker    *streak.Tracker
	Cascade    *cascade.Coordinator
	Contracts  *contract.Service
	CheckIns   *checkin.Service
	Activities *activity.Service
	Observer   *observer.Observer
}

// New connects the configured backends and wires the services.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}
	if err := a.connect(ctx); err != nil {
		a.Close()
		return nil, err
	}

	catalog, err := loadCatalog(cfg.BadgeCatalog)
	if err != nil {
		a.Close()
		return nil, err
	}
	curve, err := loadCurve(cfg.LevelCurve)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Catalog, a.Curve = catalog, curve
	a.wire()
	return a, nil
}

// NewWithStore wires the services around an existing store and feed, without
// Redis or SQL connections. Used by tests.
func NewWithStore(cfg config.Config, logger *slog.Logger, store account.Store, f feed.Feed) *App {
	a := &App{
		Config:  cfg,
		Logger:  logger,
		Store:   store,
		Feed:    f,
		Guard:   activity.NewMemoryGuard(guardTTL(cfg)),
		Catalog: badge.DefaultCatalog(),
		Curve:   level.Linear{},
	}
	a.wire()
	return a
}

func (a *App) connect(ctx context.Context) error {
	cfg := a.Config

	cache, err := infra.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	a.Cache = cache

	switch cfg.StoreDriver {
	case config.StorePostgres:
		pool, err := infra.NewPostgresPool(ctx, cfg.DatabaseURL, cfg.AppName)
		if err != nil {
			return err
		}
		a.DB = pool
		store := account.NewPostgresStore(pool)
		if err := store.Migrate(ctx); err != nil {
			return err
		}
		a.Store = store
	case config.StoreSQLite:
		db, err := infra.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return err
		}
		a.SQLite = db
		store := account.NewSQLiteStore(db)
		if err := store.Migrate(ctx); err != nil {
			return err
		}
		a.Store = store
	case config.StoreMemory:
		a.Store = account.NewMemoryStore()
	default:
		return fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	if a.Cache != nil {
		a.Feed = feed.NewRedis(a.Cache, logging.With(a.Logger, "feed"))
		a.Guard = activity.NewRedisGuard(a.Cache, guardTTL(cfg))
	} else {
		a.Feed = feed.NewMemory()
		a.Guard = activity.NewMemoryGuard(guardTTL(cfg))
	}
	return nil
}

func (a *App) wire() {
	logger := a.Logger
	a.Store = account.NewPublished(a.Store, a.Feed, logging.With(logger, "store"))
	notifier := notification.NewLoggerNotifier(logging.With(logger, "notification"))

	a.Accounts = account.NewService(a.Store, a.Catalog)
	a.Ledger = ledger.New(a.Store, a.Curve, notifier, logging.With(logger, "ledger"))
	a.Tracker = streak.NewTracker(a.Store, a.Catalog, notifier, logging.With(logger, "streak"))
	a.Cascade = cascade.NewCoordinator(a.Store, a.Catalog, notifier, logging.With(logger, "cascade"))
	a.Contracts = contract.NewService(a.Store, a.Cascade, notifier, logging.With(logger, "contract"))
	a.CheckIns = checkin.NewService(a.Store, a.Ledger, a.Config.CheckInLocation, logging.With(logger, "checkin"))
	a.Activities = activity.NewService(a.Ledger, a.Guard, logging.With(logger, "activity"))
	a.Observer = observer.New(a.Store, a.Tracker, a.Contracts, a.Feed, logging.With(logger, "observer"))
}

// Health pings every configured backend and reports "ok" or the failure per backend.
func (a *App) Health(ctx context.Context) (map[string]string, bool) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	status := map[string]string{"store": a.Config.StoreDriver}
	healthy := true
	check := func(name string, err error) {
		if err != nil {
			status[name] = err.Error()
			healthy = false
			return
		}
		status[name] = "ok"
	}
	if a.DB != nil {
		check("postgres", a.DB.Ping(ctx))
	}
	if a.SQLite != nil {
		check("sqlite", a.SQLite.PingContext(ctx))
	}
	if a.Cache != nil {
		check("redis", a.Cache.Ping(ctx).Err())
	}
	return status, healthy
}

// Close releases connections.
func (a *App) Close() error {
	var errs []error
	if a.Cache != nil {
		errs = append(errs, a.Cache.Close())
	}
	if a.SQLite != nil {
		errs = append(errs, a.SQLite.Close())
	}
	if a.DB != nil {
		a.DB.Close()
	}
	return errors.Join(errs...)
}

func loadCatalog(path string) (*badge.Catalog, error) {
	if path == "" {
		return badge.DefaultCatalog(), nil
	}
	return badge.LoadCatalog(path)
}

func loadCurve(expression string) (level.Curve, error) {
	if expression == "" {
		return level.Linear{}, nil
	}
	return level.NewExprCurve(expression)
}

func guardTTL(cfg config.Config) time.Duration {
	if cfg.ActivityGuardTTL > 0 {
		return cfg.ActivityGuardTTL
	}
	return 24 * time.Hour
}
