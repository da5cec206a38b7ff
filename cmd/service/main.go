// Package main is the entry point for the quote-sync service.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/jsamuelsen/quote-sync/internal/adapters/clients"
	"github.com/jsamuelsen/quote-sync/internal/adapters/clients/acl"
	"github.com/jsamuelsen/quote-sync/internal/adapters/http"
	"github.com/jsamuelsen/quote-sync/internal/adapters/http/handlers"
	"github.com/jsamuelsen/quote-sync/internal/adapters/storage"
	"github.com/jsamuelsen/quote-sync/internal/app"
	"github.com/jsamuelsen/quote-sync/internal/domain"
	"github.com/jsamuelsen/quote-sync/internal/platform/config"
	"github.com/jsamuelsen/quote-sync/internal/platform/logging"
	"github.com/jsamuelsen/quote-sync/internal/platform/telemetry"
	"github.com/jsamuelsen/quote-sync/internal/ports"
)

// Build-time variables, injected via ldflags.
// Example: go build -ldflags "-X main.Version=1.0.0 -X main.Commit=$(git rev-parse HEAD)"
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	profile := os.Getenv("APP_ENVIRONMENT")
	if profile == "" {
		profile = "local"
	}

	cfg, err := config.Load(profile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := logging.New(&logging.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Service: cfg.App.Name,
		Version: cfg.App.Version,
		File: logging.FileConfig{
			Enabled:    cfg.Log.File.Enabled,
			Path:       cfg.Log.File.Path,
			MaxSizeMB:  cfg.Log.File.MaxSizeMB,
			MaxBackups: cfg.Log.File.MaxBackups,
			MaxAgeDays: cfg.Log.File.MaxAgeDays,
			Compress:   cfg.Log.File.Compress,
		},
	})
	slog.SetDefault(logger)

	logger.Info("starting service",
		slog.String("version", Version),
		slog.String("commit", Commit),
		slog.String("environment", cfg.App.Environment),
		slog.String("storage", cfg.Storage.Backend),
		slog.String("remote", cfg.Remote.Kind),
	)

	telProvider, err := telemetry.New(ctx, &telemetry.Config{
		Enabled:      cfg.Telemetry.Enabled,
		Endpoint:     cfg.Telemetry.Endpoint,
		ServiceName:  cfg.Telemetry.ServiceName,
		Version:      cfg.App.Version,
		Environment:  cfg.App.Environment,
		SamplingRate: cfg.Telemetry.SamplingRate,
		Insecure:     cfg.Telemetry.Insecure,
	})
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}

	defer func() {
		if shutdownErr := telProvider.Shutdown(context.WithoutCancel(ctx)); shutdownErr != nil {
			logger.Error("telemetry shutdown error", slog.Any("error", shutdownErr))
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := telemetry.NewSyncMetrics(registry)

	blobs, err := storage.Open(cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}

	defer func() {
		if closeErr := blobs.Close(); closeErr != nil {
			logger.Error("storage close error", slog.Any("error", closeErr))
		}
	}()

	identity, err := domain.ParseIdentity(cfg.Sync.Identity)
	if err != nil {
		return fmt.Errorf("invalid sync identity: %w", err)
	}

	store := app.NewQuoteStore(app.QuoteStoreConfig{Blobs: blobs, Identity: identity})
	if err := store.Load(ctx); err != nil {
		return fmt.Errorf("loading quotes: %w", err)
	}

	metrics.SetStoredQuotes(store.Len())

	health := ports.NewHealthRegistry(ports.WithCheckTimeout(cfg.Client.Timeout))
	if err := health.Register(blobs); err != nil {
		return fmt.Errorf("registering storage health check: %w", err)
	}

	source, err := newSource(cfg, logger, health)
	if err != nil {
		return err
	}

	reconciler := app.NewReconciler(app.ReconcilerConfig{
		Store:        store,
		Source:       source,
		SourceName:   cfg.Services.Quote.Name,
		FetchTimeout: cfg.Sync.FetchTimeout,
		MaxRetries:   cfg.Sync.MaxRetries,
		RetryBase:    cfg.Sync.RetryBase,
		Logger:       logger,
		Metrics:      metrics,
	})

	syncService := app.NewSyncService(app.SyncServiceConfig{
		Reconciler: reconciler,
		Store:      store,
		Blobs:      blobs,
		Logger:     logger,
	})

	quoteService := app.NewQuoteService(app.QuoteServiceConfig{
		Store:  store,
		Blobs:  blobs,
		Logger: logger,
	})

	buildInfo := handlers.NewBuildInfo(Version, Commit, BuildTime)

	server := http.New(&cfg.Server, logger)
	http.SetupRouter(server.Engine(), http.NewDefaultRouterConfig(
		logger,
		&cfg.App,
		&cfg.Auth,
		handlers.NewHealthHandler(health, buildInfo, registry),
		handlers.NewQuoteHandler(quoteService),
		handlers.NewSyncHandler(syncService),
	))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.Run(gctx)
	})

	if cfg.Sync.Enabled {
		scheduler := app.NewScheduler(syncService, cfg.Sync.Interval, logger)

		g.Go(func() error {
			return scheduler.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("service stopped: %w", err)
	}

	logger.Info("shutdown complete")

	return nil
}

// newSource builds the remote QuoteSource selected by cfg.Remote.Kind and
// registers its health checks.
func newSource(cfg *config.Config, logger *slog.Logger, health ports.HealthRegistry) (ports.QuoteSource, error) {
	switch cfg.Remote.Kind {
	case "feed":
		peers := cfg.Remote.Peers
		if len(peers) == 0 {
			peers = []string{cfg.Services.Quote.BaseURL}
		}

		sources := make([]ports.QuoteSource, 0, len(peers))

		for i, peer := range peers {
			client, err := newClient(cfg, logger, peer, fmt.Sprintf("%s-%d", cfg.Services.Quote.Name, i))
			if err != nil {
				return nil, err
			}

			feed := acl.NewFeedSource(client, logger)
			if err := health.Register(feed); err != nil {
				return nil, fmt.Errorf("registering peer health check: %w", err)
			}

			sources = append(sources, feed)
		}

		return app.NewCombinedSource(len(sources), sources...), nil
	default:
		client, err := newClient(cfg, logger, cfg.Services.Quote.BaseURL, cfg.Services.Quote.Name)
		if err != nil {
			return nil, err
		}

		mapping := acl.DefaultFieldMapping()
		if cfg.Remote.IDPrefix != "" {
			mapping.IDPrefix = cfg.Remote.IDPrefix
		}

		if cfg.Remote.CategoryPrefix != "" {
			mapping.CategoryPrefix = cfg.Remote.CategoryPrefix
		}

		mapping.Limit = cfg.Remote.Limit

		posts := acl.NewPostsSource(acl.PostsSourceConfig{Client: client, Mapping: mapping, Logger: logger})
		if err := health.Register(posts); err != nil {
			return nil, fmt.Errorf("registering source health check: %w", err)
		}

		return posts, nil
	}
}

func newClient(cfg *config.Config, logger *slog.Logger, baseURL, name string) (*clients.Client, error) {
	client, err := clients.New(&clients.Config{
		BaseURL:     baseURL,
		ServiceName: name,
		Timeout:     cfg.Client.Timeout,
		Retry:       cfg.Client.Retry,
		Circuit:     cfg.Client.CircuitBreaker,
		Transport:   cfg.Client.Transport,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating %s client: %w", name, err)
	}

	return client, nil
}
