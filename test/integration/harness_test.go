//go:build integration

package integration

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/jsamuelsen/quote-sync/internal/adapters/clients"
	"github.com/jsamuelsen/quote-sync/internal/adapters/clients/acl"
	httpadapter "github.com/jsamuelsen/quote-sync/internal/adapters/http"
	"github.com/jsamuelsen/quote-sync/internal/adapters/http/handlers"
	"github.com/jsamuelsen/quote-sync/internal/adapters/storage/file"
	"github.com/jsamuelsen/quote-sync/internal/app"
	"github.com/jsamuelsen/quote-sync/internal/domain"
	"github.com/jsamuelsen/quote-sync/internal/platform/config"
	"github.com/jsamuelsen/quote-sync/internal/platform/telemetry"
	"github.com/jsamuelsen/quote-sync/internal/ports"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// clientConfig returns a client config with fast backoff for baseURL.
func clientConfig(baseURL, name string, attempts int) *clients.Config {
	return &clients.Config{
		ServiceName: name,
		BaseURL:     baseURL,
		Timeout:     2 * time.Second,
		Retry: config.RetryConfig{
			MaxAttempts:     attempts,
			InitialInterval: 5 * time.Millisecond,
			MaxInterval:     20 * time.Millisecond,
			Multiplier:      2.0,
		},
		Circuit: config.CircuitBreakerConfig{
			MaxFailures:   3,
			Timeout:       time.Second,
			HalfOpenLimit: 1,
		},
	}
}

// instance is one in-process quote-sync service backed by a file store.
type instance struct {
	URL      string
	Dir      string
	Store    *app.QuoteStore
	Metrics  *prometheus.Registry
	Client   *acl.ServiceClient
	Upstream *clients.Client
}

type instanceOptions struct {
	dir      string
	source   func(t *testing.T) (ports.QuoteSource, *clients.Client)
	identity domain.Identity
	seed     []domain.Quote
}

// startInstance serves the full router over httptest and returns a
// single-attempt client for it.
func startInstance(t *testing.T, opts instanceOptions) *instance {
	t.Helper()

	gin.SetMode(gin.TestMode)

	dir := opts.dir
	if dir == "" {
		dir = t.TempDir()
	}

	blobs, err := file.New(dir)
	require.NoError(t, err)

	seed := opts.seed
	if seed == nil {
		seed = []domain.Quote{}
	}

	store := app.NewQuoteStore(app.QuoteStoreConfig{Blobs: blobs, Identity: opts.identity, Seed: seed})
	require.NoError(t, store.Load(t.Context()))

	source, upstream := opts.source(t)

	registry := prometheus.NewRegistry()
	logger := discardLogger()

	reconciler := app.NewReconciler(app.ReconcilerConfig{
		Store:        store,
		Source:       source,
		SourceName:   "upstream",
		FetchTimeout: 2 * time.Second,
		MaxRetries:   1,
		RetryBase:    5 * time.Millisecond,
		Logger:       logger,
		Metrics:      telemetry.NewSyncMetrics(registry),
	})

	health := ports.NewHealthRegistry()
	require.NoError(t, health.Register(blobs))

	engine := gin.New()
	httpadapter.SetupRouter(engine, httpadapter.NewDefaultRouterConfig(
		logger,
		&config.AppConfig{Name: "quote-sync", Environment: "test", Version: "test"},
		&config.AuthConfig{},
		handlers.NewHealthHandler(health, handlers.NewBuildInfo("test", "none", "now"), registry),
		handlers.NewQuoteHandler(app.NewQuoteService(app.QuoteServiceConfig{Store: store, Blobs: blobs, Logger: logger})),
		handlers.NewSyncHandler(app.NewSyncService(app.SyncServiceConfig{
			Reconciler: reconciler, Store: store, Blobs: blobs, Logger: logger,
		})),
	))

	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)

	client, err := clients.New(clientConfig(srv.URL, "quote-sync", 1))
	require.NoError(t, err)

	return &instance{
		URL:      srv.URL,
		Dir:      dir,
		Store:    store,
		Metrics:  registry,
		Client:   acl.NewServiceClient(client),
		Upstream: upstream,
	}
}

// postsUpstream serves a jsonplaceholder-style posts API through handler and
// returns a PostsSource reading it.
func postsUpstream(handler http.HandlerFunc) func(t *testing.T) (ports.QuoteSource, *clients.Client) {
	return func(t *testing.T) (ports.QuoteSource, *clients.Client) {
		t.Helper()

		srv := httptest.NewServer(handler)
		t.Cleanup(srv.Close)

		client, err := clients.New(clientConfig(srv.URL, "posts", 3))
		require.NoError(t, err)

		return acl.NewPostsSource(acl.PostsSourceConfig{
			Client:  client,
			Mapping: acl.DefaultFieldMapping(),
			Logger:  discardLogger(),
		}), client
	}
}

// peerFeeds reads the export documents of the given instances concurrently.
func peerFeeds(peers ...*instance) func(t *testing.T) (ports.QuoteSource, *clients.Client) {
	return func(t *testing.T) (ports.QuoteSource, *clients.Client) {
		t.Helper()

		sources := make([]ports.QuoteSource, 0, len(peers))

		var last *clients.Client

		for _, p := range peers {
			client, err := clients.New(clientConfig(p.URL, "peer", 2))
			require.NoError(t, err)

			sources = append(sources, acl.NewFeedSource(client, discardLogger()))
			last = client
		}

		return app.NewCombinedSource(len(sources), sources...), last
	}
}

const postsBody = `[
	{"userId": 1, "id": 1, "title": "first"},
	{"userId": 1, "id": 2, "title": "second"},
	{"userId": 2, "id": 3, "title": "third"},
	{"userId": 2, "id": 4, "title": "fourth"},
	{"userId": 3, "id": 5, "title": "fifth"},
	{"userId": 3, "id": 6, "title": "sixth"}
]`

func servePosts(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(postsBody))
}
