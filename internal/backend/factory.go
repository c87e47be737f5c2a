package backend

import (
	"context"
	"errors"
	"fmt"

	"struk/internal/cache"
	"struk/internal/log"
	"struk/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Discard()
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	docs, err := f.createDocumentStore(ctx, config)
	if err != nil {
		return nil, err
	}

	store, closeCache, err := f.createCache(ctx, config)
	if err != nil {
		_ = docs.Close()
		return nil, err
	}

	return &BackendResult{
		Backend: Backend{Documents: docs, Cache: store},
		Cleanup: func() error {
			return errors.Join(closeCache(), docs.Close())
		},
	}, nil
}

func (f *DefaultFactory) createDocumentStore(ctx context.Context, config Config) (storage.DocumentStore, error) {
	switch config.Type {
	case SQLiteBackend:
		store, err := storage.NewSQLiteStore(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite document store: %w", err)
		}
		f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
		return store, nil
	case PostgresBackend:
		store, err := storage.NewPostgresStore(ctx, config.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Postgres document store: %w", err)
		}
		f.logger.Info("Initialized Postgres backend")
		return store, nil
	case MemoryBackend:
		f.logger.Warn("Using in-memory document store; data is lost on restart")
		return storage.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createCache(ctx context.Context, config Config) (cache.Store, func() error, error) {
	if config.Cache == RedisCache {
		store, err := cache.NewRedisStore(ctx, cache.RedisConfig{
			Addr:     config.RedisAddr,
			Password: config.RedisPassword,
			DB:       config.RedisDB,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize Redis cache: %w", err)
		}
		f.logger.Info("Initialized Redis cache", "addr", config.RedisAddr)
		return store, store.Close, nil
	}

	maxEntries := config.CacheMaxEntries
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	store := cache.NewMemoryStore(maxEntries)
	manager := cache.NewManager()
	store.Register(manager)
	if config.CleanupInterval > 0 {
		manager.StartCleanup(config.CleanupInterval)
	}
	f.logger.Info("Initialized memory cache", "max_entries", maxEntries)
	return store, func() error {
		manager.Stop()
		return nil
	}, nil
}
