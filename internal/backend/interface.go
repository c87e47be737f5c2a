package backend

import (
	"context"
	"time"

	"struk/internal/cache"
	"struk/internal/storage"
)

// Backend bundles the persistent document store and the shared cache.
type Backend struct {
	Documents storage.DocumentStore
	Cache     cache.Store
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the backend instance and optional cleanup function
type BackendResult struct {
	Backend Backend
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend creates a backend instance based on the provided config
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	// Document store
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Postgres specific
	PostgresDSN string

	// Cache
	Cache           CacheType
	CacheMaxEntries int
	RedisAddr       string
	RedisPassword   string
	RedisDB         int

	// CleanupInterval drives expiry sweeps of the memory cache.
	CleanupInterval time.Duration
}

// BackendType selects the document store
type BackendType string

const (
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
	MemoryBackend   BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, PostgresBackend, MemoryBackend:
		return true
	default:
		return false
	}
}

// CacheType selects the cache store
type CacheType string

const (
	MemoryCache CacheType = "memory"
	RedisCache  CacheType = "redis"
)

func (ct CacheType) IsValid() bool {
	return ct == MemoryCache || ct == RedisCache
}
