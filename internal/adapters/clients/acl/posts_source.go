package acl

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jsamuelsen/quote-sync/internal/adapters/clients"
	"github.com/jsamuelsen/quote-sync/internal/domain"
	"github.com/jsamuelsen/quote-sync/internal/platform/logging"
)

const postsPath = "/posts"

// FieldMapping says how a post becomes a quote: id → IDPrefix+id,
// title → text, userId → CategoryPrefix+userId. Only the first Limit posts are kept.
type FieldMapping struct {
	IDPrefix       string
	CategoryPrefix string
	Limit          int
}

// DefaultFieldMapping returns the mapping used against jsonplaceholder.
func DefaultFieldMapping() FieldMapping {
	return FieldMapping{IDPrefix: "server_", CategoryPrefix: "category_", Limit: 5}
}

// PostsSourceConfig contains the dependencies of a PostsSource.
type PostsSourceConfig struct {
	Client  *clients.Client
	Mapping FieldMapping
	Logger  *slog.Logger
	// Clock stamps fetched quotes. Defaults to time.Now.
	Clock func() time.Time
}

// PostsSource is a ports.QuoteSource over a posts listing.
type PostsSource struct {
	BaseAdapter

	mapping FieldMapping
	logger  *slog.Logger
	now     func() time.Time
}

// NewPostsSource creates a posts source. It panics without a client.
func NewPostsSource(cfg PostsSourceConfig) *PostsSource {
	if cfg.Client == nil {
		panic("acl: PostsSource requires a Client")
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	return &PostsSource{
		BaseAdapter: NewBaseAdapter(cfg.Client),
		mapping:     cfg.Mapping,
		logger:      cfg.Logger,
		now:         cfg.Clock,
	}
}

// post is the external record. Fields quote-sync ignores are not declared.
type post struct {
	UserID int    `json:"userId"`
	ID     int    `json:"id"`
	Title  string `json:"title"`
}

// Fetch returns one snapshot of mapped posts.
func (s *PostsSource) Fetch(ctx context.Context) ([]domain.Quote, error) {
	logger := logging.FromContextOr(ctx, s.logger)
	logger.Log(ctx, logging.LevelTrace, "fetching posts", slog.String("downstream", s.ServiceName()))

	body, err := s.Get(ctx, postsPath, "fetch posts")
	if err != nil {
		return nil, err
	}

	posts, err := DecodeResponse[[]post](body)
	if err != nil {
		return nil, err
	}

	items := *posts
	if s.mapping.Limit > 0 && len(items) > s.mapping.Limit {
		items = items[:s.mapping.Limit]
	}

	stamp := s.now().UnixMilli()

	quotes, err := TranslateSlice(items, func(p *post) (domain.Quote, error) {
		return s.translate(p, stamp), nil
	})
	if err != nil {
		return nil, err
	}

	logger.DebugContext(ctx, "posts fetched",
		slog.Int("received", len(*posts)),
		slog.Int("mapped", len(quotes)),
	)

	return quotes, nil
}

func (s *PostsSource) translate(p *post, stamp int64) domain.Quote {
	return domain.Quote{
		ID:        s.mapping.IDPrefix + strconv.Itoa(p.ID),
		Text:      p.Title,
		Category:  s.mapping.CategoryPrefix + strconv.Itoa(p.UserID),
		Timestamp: stamp,
	}
}

// Name implements ports.HealthChecker.
func (s *PostsSource) Name() string {
	return "quote-source"
}

// Check asks for a single post.
func (s *PostsSource) Check(ctx context.Context) error {
	body, err := s.Get(ctx, postsPath+"/1", "health check")
	if err != nil {
		return fmt.Errorf("posts source: %w", err)
	}

	return body.Close()
}

// Advisory implements ports.Advisory.
func (s *PostsSource) Advisory() bool {
	return true
}
