package storage

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/jsamuelsen/quote-sync/internal/adapters/storage/file"
	"github.com/jsamuelsen/quote-sync/internal/adapters/storage/memory"
	"github.com/jsamuelsen/quote-sync/internal/adapters/storage/redis"
	"github.com/jsamuelsen/quote-sync/internal/platform/config"
	"github.com/jsamuelsen/quote-sync/internal/ports"
)

// Backend names accepted in configuration.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
)

// Backend is a BlobStore that can report its health and be closed.
type Backend interface {
	ports.BlobStore
	ports.HealthChecker
	io.Closer
}

// Open constructs the backend selected by cfg.Backend.
func Open(cfg config.StorageConfig, logger *slog.Logger) (Backend, error) {
	switch cfg.Backend {
	case BackendMemory, "":
		return memory.New(), nil
	case BackendFile:
		store, err := file.New(cfg.File.Dir)
		if err != nil {
			return nil, err
		}

		return store, nil
	case BackendRedis:
		return redis.New(redis.Options{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
