// Package ports defines interfaces for external dependencies.
// Ports are contracts that adapters implement, allowing the application layer
// to depend on abstractions rather than concrete implementations.
//
// Port Design Principles:
//   - Context as first parameter (always) for cancellation and deadlines
//   - Return domain types, never external DTOs or infrastructure types
//   - Error returns use domain error types (ErrNetwork, ErrUnavailable, etc.)
//   - Keep interfaces small and focused (one capability each)
package ports

import (
	"context"

	"github.com/jsamuelsen/quote-sync/internal/domain"
)

// Fixed blob store keys.
const (
	// KeyQuotes holds the JSON-serialized quote sequence.
	KeyQuotes = "quotes"

	// KeyLastSyncTime holds the Unix millisecond time of the last successful sync.
	KeyLastSyncTime = "lastSyncTime"

	// KeySelectedFilter holds the last category filter chosen by the user.
	KeySelectedFilter = "selectedFilter"
)

// BlobStore is the persistence collaborator: a key-value store of opaque blobs.
// No schema versioning is applied to stored values.
type BlobStore interface {
	// Get returns the blob stored under key. The boolean is false when the key is absent.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error
}

// QuoteSource is the remote collaborator. Each call returns one snapshot.
type QuoteSource interface {
	// Fetch returns the remote records already mapped to quote shape.
	// Transport failures are reported as domain.ErrNetwork.
	Fetch(ctx context.Context) ([]domain.Quote, error)
}
