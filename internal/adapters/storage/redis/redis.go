// Package redis provides a BlobStore backed by Redis string keys.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/jsamuelsen/quote-sync/internal/domain"
)

// Options holds configuration for connecting to a Redis server.
type Options struct {
	// Address is the host:port of the Redis server.
	Address string
	// Password is the password used to authenticate.
	Password string
	// DB is the database index to select.
	DB int
	// Prefix is prepended to every key, e.g. "quotesync:".
	Prefix string
}

// Store implements ports.BlobStore on top of a redis.Client.
type Store struct {
	client  *redis.Client
	prefix  string
	isOwner bool
}

// New opens a client with the given options. Call Close when done.
func New(opts Options, logger *slog.Logger) *Store {
	if logger != nil {
		logger.Info("opening redis connection",
			slog.String("address", opts.Address),
			slog.Int("db", opts.DB),
		)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Address,
		Password: opts.Password,
		DB:       opts.DB,
	})

	return &Store{client: client, prefix: opts.Prefix, isOwner: true}
}

// NewFromClient wraps an existing client. Close leaves the client open.
func NewFromClient(client *redis.Client, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

// Get returns the blob stored under key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, unavailable("get", key, err)
	}

	return v, true, nil
}

// Set stores value under key without expiration.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		return unavailable("set", key, err)
	}

	return nil
}

// Name implements ports.HealthChecker.
func (s *Store) Name() string {
	return "redis"
}

// Check pings the server.
func (s *Store) Check(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return domain.NewUnavailableError("redis", err.Error())
	}

	return nil
}

// Close closes the client if this Store opened it.
func (s *Store) Close() error {
	if !s.isOwner {
		return nil
	}

	return s.client.Close()
}

func unavailable(op, key string, err error) error {
	return fmt.Errorf("redis %s %q: %w", op, key, errors.Join(domain.NewUnavailableError("redis", op+" failed"), err))
}
