// Package backend opens the configured expense store.
package backend

import (
	"context"
	"fmt"
	"time"

	"raskhody/internal/cache"
	"raskhody/internal/config"
	"raskhody/internal/log"
	"raskhody/internal/metrics"
	"raskhody/internal/storage"
	"raskhody/internal/storage/memory"
	"raskhody/internal/storage/postgres"
	"raskhody/internal/storage/sqlite"
)

type Type string

const (
	Postgres Type = "postgres"
	SQLite   Type = "sqlite"
	Memory   Type = "memory"
)

func (t Type) IsValid() bool {
	switch t {
	case Postgres, SQLite, Memory:
		return true
	}
	return false
}

type Config struct {
	Type Type

	// Postgres
	PostgresDSN string
	MaxConns    int
	AutoMigrate bool

	// SQLite
	SQLitePath string

	// Shared by every backend
	Store storage.Options

	// Closed-day read cache; size 0 disables it
	CacheSize int
	CacheTTL  time.Duration
}

// FromAppConfig converts the application config to a backend config.
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := Type(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}

	loc, err := appConfig.Location()
	if err != nil {
		return Config{}, fmt.Errorf("load timezone: %w", err)
	}

	return Config{
		Type:        backendType,
		PostgresDSN: appConfig.PostgresDSN(),
		MaxConns:    appConfig.DBMaxConns,
		AutoMigrate: appConfig.AutoMigrate,
		SQLitePath:  appConfig.SQLiteDBPath,
		Store: storage.Options{
			Location: loc,
			Timeout:  appConfig.StoreTimeout,
		},
		CacheSize: appConfig.ReadCacheSize,
		CacheTTL:  appConfig.ReadCacheTTL,
	}, nil
}

// Open connects the backend described by cfg and layers metrics and the
// read cache on top of it. The caller closes the returned store.
func Open(ctx context.Context, cfg Config, logger *log.Logger, m *metrics.Metrics) (storage.Store, error) {
	if !cfg.Type.IsValid() {
		return nil, fmt.Errorf("invalid backend type: %s", cfg.Type)
	}
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentStorage)
	cfg.Store = cfg.Store.WithDefaults()

	var (
		store storage.Store
		err   error
	)
	switch cfg.Type {
	case Postgres:
		store, err = openPostgres(ctx, cfg, logger)
	case SQLite:
		store, err = sqlite.Open(cfg.SQLitePath, cfg.Store)
	case Memory:
		logger.Warn("Using in-memory store, expenses are lost on restart")
		store = memory.New(cfg.Store)
	}
	if err != nil {
		return nil, err
	}

	logger.Info("Store ready",
		log.FieldBackend, string(cfg.Type),
		"timezone", cfg.Store.Location.String(),
		"read_cache", cfg.CacheSize)

	store = metrics.InstrumentStore(store, m)
	if cfg.CacheSize > 0 {
		store = cache.NewStore(store, cfg.CacheSize, cfg.CacheTTL, cfg.Store, m)
	}
	return store, nil
}

func openPostgres(ctx context.Context, cfg Config, logger *log.Logger) (storage.Store, error) {
	if cfg.AutoMigrate {
		if err := storage.RunMigrations(storage.DialectPostgres, cfg.PostgresDSN); err != nil {
			return nil, err
		}
		logger.Info("Database migrations applied", log.FieldOperation, log.OpMigrate)
	}
	pool, err := postgres.NewPool(ctx, cfg.PostgresDSN, cfg.MaxConns)
	if err != nil {
		return nil, storage.Wrap(storage.OpPing, err)
	}
	return postgres.New(pool, cfg.Store), nil
}
