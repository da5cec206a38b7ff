package http

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jsamuelsen/quote-sync/internal/adapters/http/handlers"
	"github.com/jsamuelsen/quote-sync/internal/adapters/http/middleware"
	"github.com/jsamuelsen/quote-sync/internal/platform/config"
	"github.com/jsamuelsen/quote-sync/internal/platform/telemetry"
)

// DefaultRequestTimeout bounds an API request. A sync waits on the remote fetch,
// so this should exceed sync.fetch_timeout.
const DefaultRequestTimeout = 30 * time.Second

// RouterConfig contains what SetupRouter needs. Nil handlers leave their routes unregistered.
type RouterConfig struct {
	Logger *slog.Logger

	// AuthConfig guards the editor routes when Enabled.
	AuthConfig *config.AuthConfig

	AppConfig *config.AppConfig

	HealthHandler *handlers.HealthHandler
	QuoteHandler  *handlers.QuoteHandler
	SyncHandler   *handlers.SyncHandler

	// Timeout applies to /api/v1. Zero disables it.
	Timeout time.Duration
}

// SetupRouter installs the global middleware and every route.
// Middleware runs in this order:
//  1. Recovery
//  2. Context logger
//  3. Request ID
//  4. Correlation ID
//  5. OpenTelemetry span, trace id header and request metrics
//  6. Access log (skips /-/ probes)
//
// Routes:
//   - /-/ probes, build info and metrics, never authenticated
//   - /api/v1 quotes, filter and sync; import, resolve and discard need the editor role when auth is enabled
func SetupRouter(engine *gin.Engine, cfg RouterConfig) {
	engine.Use(
		middleware.Recovery(cfg.Logger),
		middleware.ContextLogger(cfg.Logger),
		middleware.RequestID(),
		middleware.CorrelationID(),
	)
	engine.Use(telemetry.Middleware(cfg.AppConfig.Name)...)
	engine.Use(middleware.AccessLog(cfg.Logger))

	if cfg.HealthHandler != nil {
		cfg.HealthHandler.RegisterRoutes(engine)
	}

	apiV1 := engine.Group("/api/v1")
	if cfg.Timeout > 0 {
		apiV1.Use(middleware.Deadline(cfg.Timeout))
	}

	setupAPIRoutes(apiV1, cfg)
}

func setupAPIRoutes(rg *gin.RouterGroup, cfg RouterConfig) {
	editor := rg.Group("")
	if cfg.AuthConfig != nil && cfg.AuthConfig.Enabled {
		editor.Use(middleware.RequireRole(cfg.AuthConfig, cfg.AuthConfig.EditorRole))
	}

	if cfg.QuoteHandler != nil {
		cfg.QuoteHandler.RegisterRoutes(rg, editor)
	}

	if cfg.SyncHandler != nil {
		cfg.SyncHandler.RegisterRoutes(rg, editor)
	}
}

// NewDefaultRouterConfig creates a RouterConfig with DefaultRequestTimeout.
func NewDefaultRouterConfig(
	logger *slog.Logger,
	appCfg *config.AppConfig,
	authCfg *config.AuthConfig,
	healthHandler *handlers.HealthHandler,
	quoteHandler *handlers.QuoteHandler,
	syncHandler *handlers.SyncHandler,
) RouterConfig {
	return RouterConfig{
		Logger:        logger,
		AuthConfig:    authCfg,
		AppConfig:     appCfg,
		HealthHandler: healthHandler,
		QuoteHandler:  quoteHandler,
		SyncHandler:   syncHandler,
		Timeout:       DefaultRequestTimeout,
	}
}
