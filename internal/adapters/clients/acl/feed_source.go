package acl

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jsamuelsen/quote-sync/internal/adapters/clients"
	"github.com/jsamuelsen/quote-sync/internal/domain"
	"github.com/jsamuelsen/quote-sync/internal/platform/logging"
)

// ExportPath is where a quote-sync instance serves its export document.
const ExportPath = "/api/v1/quotes/export"

// FeedSource is a ports.QuoteSource over another instance's export document.
// Records keep the peer's ids and timestamps.
type FeedSource struct {
	BaseAdapter

	logger *slog.Logger
}

// NewFeedSource creates a source reading the peer behind client.
func NewFeedSource(client *clients.Client, logger *slog.Logger) *FeedSource {
	if client == nil {
		panic("acl: FeedSource requires a Client")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &FeedSource{BaseAdapter: NewBaseAdapter(client), logger: logger}
}

// Fetch downloads the peer's export document.
func (s *FeedSource) Fetch(ctx context.Context) ([]domain.Quote, error) {
	body, err := s.Get(ctx, ExportPath, "fetch export")
	if err != nil {
		return nil, err
	}

	quotes, err := DecodeResponse[[]domain.Quote](body)
	if err != nil {
		return nil, err
	}

	logging.FromContextOr(ctx, s.logger).DebugContext(ctx, "peer export fetched",
		slog.String("downstream", s.ServiceName()),
		slog.Int("count", len(*quotes)),
	)

	return *quotes, nil
}

// Name implements ports.HealthChecker. Each peer registers under its own name.
func (s *FeedSource) Name() string {
	return "peer:" + s.ServiceName()
}

// Check asks the peer's liveness probe.
func (s *FeedSource) Check(ctx context.Context) error {
	body, err := s.Get(ctx, "/-/live", "health check")
	if err != nil {
		return fmt.Errorf("peer %s: %w", s.ServiceName(), err)
	}

	return body.Close()
}

// Advisory implements ports.Advisory.
func (s *FeedSource) Advisory() bool {
	return true
}
