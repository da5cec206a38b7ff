// Package app contains application services that orchestrate use cases.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strings"
	"time"

	"github.com/jsamuelsen/quote-sync/internal/domain"
	"github.com/jsamuelsen/quote-sync/internal/ports"
)

// QuoteService is the local half of the system: adding, listing and filtering quotes,
// and moving the collection in and out as JSON documents.
type QuoteService struct {
	store   *QuoteStore
	blobs   ports.BlobStore
	mutator *Mutator
	logger  *slog.Logger
	now     func() time.Time
	intn    func(n int) int
}

// QuoteServiceConfig contains the dependencies of a QuoteService.
type QuoteServiceConfig struct {
	Store  *QuoteStore
	Blobs  ports.BlobStore
	Logger *slog.Logger
	Clock  func() time.Time
	// Rand returns a value in [0, n). Defaults to math/rand/v2.
	Rand func(n int) int
}

// NewQuoteService creates a quote service with the provided dependencies.
func NewQuoteService(cfg QuoteServiceConfig) *QuoteService {
	if cfg.Store == nil || cfg.Blobs == nil {
		panic("app: QuoteService requires a QuoteStore and BlobStore")
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	if cfg.Rand == nil {
		cfg.Rand = rand.IntN
	}

	return &QuoteService{
		store:   cfg.Store,
		blobs:   cfg.Blobs,
		mutator: NewMutator(cfg.Logger),
		logger:  cfg.Logger,
		now:     cfg.Clock,
		intn:    cfg.Rand,
	}
}

// Add stores a user-authored quote and persists the collection.
func (s *QuoteService) Add(ctx context.Context, text, category string) (domain.Quote, error) {
	q, err := s.store.Add(domain.Quote{
		Text:     strings.TrimSpace(text),
		Category: strings.TrimSpace(category),
	})
	if err != nil {
		return domain.Quote{}, err
	}

	if err := s.store.Save(ctx); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist added quote",
			slog.String("quote_id", q.ID),
			slog.Any("error", err),
		)

		return domain.Quote{}, err
	}

	s.logger.InfoContext(ctx, "quote added",
		slog.String("quote_id", q.ID),
		slog.String("category", q.Category),
	)

	return q, nil
}

// List returns the quotes matching filter in store order.
func (s *QuoteService) List(filter CategoryFilter) []domain.Quote {
	return slices.Collect(s.store.List(filter))
}

// Categories returns the distinct categories in first-seen order.
func (s *QuoteService) Categories() []string {
	return s.store.Categories()
}

// RandomQuote picks a uniformly random quote from the filtered list.
func (s *QuoteService) RandomQuote(filter CategoryFilter) (domain.Quote, error) {
	quotes := s.List(filter)
	if len(quotes) == 0 {
		return domain.Quote{}, domain.NewNotFoundError("quote", "category:"+filter.Category())
	}

	return quotes[s.intn(len(quotes))], nil
}

// SelectedFilter reads the persisted category filter. Nothing persisted means all categories.
func (s *QuoteService) SelectedFilter(ctx context.Context) (CategoryFilter, error) {
	data, ok, err := s.blobs.Get(ctx, ports.KeySelectedFilter)
	if err != nil {
		return AllCategories(), fmt.Errorf("reading selected filter: %w", err)
	}

	if !ok || len(data) == 0 {
		return AllCategories(), nil
	}

	return InCategory(string(data)), nil
}

// SaveSelectedFilter persists the category filter.
func (s *QuoteService) SaveSelectedFilter(ctx context.Context, filter CategoryFilter) error {
	if err := s.blobs.Set(ctx, ports.KeySelectedFilter, []byte(filter.Category())); err != nil {
		return fmt.Errorf("saving selected filter: %w", err)
	}

	return nil
}
