package app

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jsamuelsen/quote-sync/internal/domain"
	"github.com/jsamuelsen/quote-sync/internal/ports"
)

// CategoryFilter selects quotes by category. The zero value matches every category,
// so a real category named "all" is an ordinary filter.
type CategoryFilter struct {
	category string
	set      bool
}

// AllCategories returns the filter that matches every quote.
func AllCategories() CategoryFilter {
	return CategoryFilter{}
}

// InCategory returns a filter matching exactly the named category.
func InCategory(name string) CategoryFilter {
	return CategoryFilter{category: name, set: true}
}

// IsAll reports whether the filter matches every category.
func (f CategoryFilter) IsAll() bool {
	return !f.set
}

// Category returns the selected category, empty when IsAll.
func (f CategoryFilter) Category() string {
	return f.category
}

// Matches reports whether q passes the filter.
func (f CategoryFilter) Matches(q domain.Quote) bool {
	return !f.set || q.Category == f.category
}

// QuoteStore owns the ordered quote collection.
// All mutations run under the store lock, so user adds and reconciliation applies never interleave.
// Writes to the blob store are serialized by persistMu, taken before mu, so the last write holds the latest snapshot.
type QuoteStore struct {
	persistMu sync.Mutex

	mu         sync.RWMutex
	quotes     []domain.Quote
	generation uint64

	identity domain.Identity
	blobs    ports.BlobStore
	seed     []domain.Quote
	now      func() time.Time
	newID    func() string
}

// QuoteStoreConfig contains the dependencies of a QuoteStore.
type QuoteStoreConfig struct {
	// Blobs persists the collection under ports.KeyQuotes. Required.
	Blobs ports.BlobStore
	// Identity decides which record UpsertByKey replaces.
	Identity domain.Identity
	// Seed is loaded when nothing has been persisted yet. Defaults to SeedQuotes.
	Seed []domain.Quote
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// NewQuoteStore creates an empty store. Call Load to hydrate it.
func NewQuoteStore(cfg QuoteStoreConfig) *QuoteStore {
	if cfg.Blobs == nil {
		panic("app: QuoteStore requires a BlobStore")
	}

	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	if cfg.Seed == nil {
		cfg.Seed = SeedQuotes()
	}

	return &QuoteStore{
		identity: cfg.Identity,
		blobs:    cfg.Blobs,
		seed:     cfg.Seed,
		now:      cfg.Clock,
		newID:    func() string { return "local_" + uuid.NewString() },
	}
}

// Identity returns the identity strategy used for upserts.
func (s *QuoteStore) Identity() domain.Identity {
	return s.identity
}

// Add appends q, assigning an id and timestamp when they are missing.
// Duplicate text is allowed; a duplicate id is a conflict.
func (s *QuoteStore) Add(q domain.Quote) (domain.Quote, error) {
	if err := q.Validate(); err != nil {
		return domain.Quote{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if q.ID != "" && s.hasID(s.quotes, q.ID) {
		return domain.Quote{}, domain.NewConflictErrorWithDetails("quote", "duplicate id", q.ID)
	}

	q = s.normalize(q)
	s.quotes = append(s.quotes, q)

	return q, nil
}

// ReplaceAll swaps the whole collection. Missing ids and timestamps are filled in;
// duplicate ids reject the replacement and leave the store untouched.
func (s *QuoteStore) ReplaceAll(quotes []domain.Quote) error {
	next, err := s.prepare(quotes)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.quotes = next
	s.generation++
	s.mu.Unlock()

	return nil
}

// Replace swaps the whole collection and persists it as one step. The store is
// left untouched unless the blob store accepts the new collection.
func (s *QuoteStore) Replace(ctx context.Context, quotes []domain.Quote) error {
	next, err := s.prepare(quotes)
	if err != nil {
		return err
	}

	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.write(ctx, next); err != nil {
		return err
	}

	s.quotes = next
	s.generation++

	return nil
}

// Generation counts whole-collection swaps by ReplaceAll, Replace and Load.
func (s *QuoteStore) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.generation
}

// UpsertByKey replaces the record sharing q's identity key in place, or appends q.
// It reports whether an existing record was replaced.
func (s *QuoteStore) UpsertByKey(q domain.Quote) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &StoreTx{store: s, quotes: s.quotes}
	replaced := tx.Upsert(q)
	s.quotes = tx.quotes

	return replaced
}

// Update runs fn against a working copy of the collection and commits it only if fn succeeds.
// The store lock is held for the duration of fn.
func (s *QuoteStore) Update(fn func(tx *StoreTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &StoreTx{store: s, quotes: slices.Clone(s.quotes)}
	if err := fn(tx); err != nil {
		return err
	}

	s.quotes = tx.quotes

	return nil
}

// List yields the quotes passing filter. Each iteration ranges over a fresh snapshot.
func (s *QuoteStore) List(filter CategoryFilter) iter.Seq[domain.Quote] {
	return func(yield func(domain.Quote) bool) {
		for _, q := range s.Snapshot() {
			if !filter.Matches(q) {
				continue
			}

			if !yield(q) {
				return
			}
		}
	}
}

// Snapshot returns a copy of the collection in order.
func (s *QuoteStore) Snapshot() []domain.Quote {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.quotes)
}

// Len returns the number of stored quotes.
func (s *QuoteStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.quotes)
}

// Categories returns the distinct categories in first-seen order.
func (s *QuoteStore) Categories() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	out := make([]string, 0)

	for _, q := range s.quotes {
		if _, ok := seen[q.Category]; ok {
			continue
		}

		seen[q.Category] = struct{}{}
		out = append(out, q.Category)
	}

	return out
}

// Load hydrates the store from the blob store, falling back to the seed quotes.
func (s *QuoteStore) Load(ctx context.Context) error {
	data, ok, err := s.blobs.Get(ctx, ports.KeyQuotes)
	if err != nil {
		return fmt.Errorf("loading quotes: %w", err)
	}

	if !ok {
		return s.ReplaceAll(s.seed)
	}

	var quotes []domain.Quote
	if err := json.Unmarshal(data, &quotes); err != nil {
		return fmt.Errorf("loading quotes: %w", domain.NewFormatError(err.Error()))
	}

	return s.ReplaceAll(quotes)
}

// Save writes the collection to the blob store. Concurrent saves are applied in
// the order their snapshots were taken.
func (s *QuoteStore) Save(ctx context.Context) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	return s.write(ctx, s.Snapshot())
}

func (s *QuoteStore) write(ctx context.Context, quotes []domain.Quote) error {
	data, err := json.Marshal(quotes)
	if err != nil {
		return fmt.Errorf("encoding quotes: %w", err)
	}

	if err := s.blobs.Set(ctx, ports.KeyQuotes, data); err != nil {
		return fmt.Errorf("saving quotes: %w", err)
	}

	return nil
}

func (s *QuoteStore) prepare(quotes []domain.Quote) ([]domain.Quote, error) {
	next := make([]domain.Quote, 0, len(quotes))
	ids := make(map[string]struct{}, len(quotes))

	for _, q := range quotes {
		if q.ID != "" {
			if _, dup := ids[q.ID]; dup {
				return nil, domain.NewConflictErrorWithDetails("quote", "duplicate id", q.ID)
			}

			ids[q.ID] = struct{}{}
		}

		next = append(next, q)
	}

	for i := range next {
		if next[i].ID == "" {
			next[i].ID = s.freshID(ids)
			ids[next[i].ID] = struct{}{}
		}

		if next[i].Timestamp == 0 {
			next[i].Timestamp = s.now().UnixMilli()
		}
	}

	return next, nil
}

func (s *QuoteStore) normalize(q domain.Quote) domain.Quote {
	if q.ID == "" {
		q.ID = s.newID()
	}

	if q.Timestamp == 0 {
		q.Timestamp = s.now().UnixMilli()
	}

	return q
}

func (s *QuoteStore) freshID(taken map[string]struct{}) string {
	for {
		id := s.newID()
		if _, ok := taken[id]; !ok {
			return id
		}
	}
}

func (s *QuoteStore) hasID(quotes []domain.Quote, id string) bool {
	return slices.ContainsFunc(quotes, func(q domain.Quote) bool { return q.ID == id })
}

// StoreTx is a working copy of the collection handed to Update.
type StoreTx struct {
	store  *QuoteStore
	quotes []domain.Quote
}

// Quotes returns the working copy. Callers must not modify it.
func (tx *StoreTx) Quotes() []domain.Quote {
	return tx.quotes
}

// Generation is the store generation the working copy was taken from.
func (tx *StoreTx) Generation() uint64 {
	return tx.store.generation
}

// Insert appends q. A missing or already taken id is replaced by a fresh one.
func (tx *StoreTx) Insert(q domain.Quote) domain.Quote {
	if q.ID != "" && tx.store.hasID(tx.quotes, q.ID) {
		q.ID = ""
	}

	q = tx.store.normalize(q)
	tx.quotes = append(tx.quotes, q)

	return q
}

// Upsert replaces the record sharing q's identity key, keeping its position.
// The replacement inherits the replaced id when its own is missing or held by another record.
func (tx *StoreTx) Upsert(q domain.Quote) bool {
	pos, found := tx.store.identity.Index(tx.quotes).Lookup(q)
	if !found {
		tx.Insert(q)
		return false
	}

	current := tx.quotes[pos].ID
	if q.ID == "" || (q.ID != current && tx.store.hasID(tx.quotes, q.ID)) {
		q.ID = current
	}

	if q.Timestamp == 0 {
		q.Timestamp = tx.store.now().UnixMilli()
	}

	tx.quotes[pos] = q

	return true
}
