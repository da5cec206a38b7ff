// Package cli implements quotectl, the command-line client for a quote-sync
// service. Every command is a thin wrapper over acl.ServiceClient.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jsamuelsen/quote-sync/internal/adapters/clients"
	"github.com/jsamuelsen/quote-sync/internal/adapters/clients/acl"
	"github.com/jsamuelsen/quote-sync/internal/platform/config"
	"github.com/jsamuelsen/quote-sync/internal/platform/logging"
)

// Environment variables read as flag defaults.
const (
	EnvServer = "QUOTESYNC_URL"
	EnvUser   = "QUOTESYNC_USER"
	EnvRoles  = "QUOTESYNC_ROLES"
)

const defaultServer = "http://localhost:8080"

// options are the persistent flags shared by every command.
type options struct {
	server   string
	user     string
	roles    string
	timeout  time.Duration
	json     bool
	logLevel string
}

// runtime is what a command needs once flags are parsed.
type runtime struct {
	opts   *options
	client *acl.ServiceClient
	logger *slog.Logger
	out    io.Writer
	in     io.Reader
}

// NewRootCommand builds the quotectl command tree.
func NewRootCommand() *cobra.Command {
	opts := &options{}
	rt := &runtime{opts: opts}

	root := &cobra.Command{
		Use:           "quotectl",
		Short:         "Manage quotes and sync decisions on a quote-sync service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return rt.init(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.server, "server", envOr(EnvServer, defaultServer), "base URL of the quote-sync service")
	flags.StringVar(&opts.user, "user", os.Getenv(EnvUser), "subject sent in the X-User-ID header")
	flags.StringVar(&opts.roles, "roles", os.Getenv(EnvRoles), "comma-separated roles sent in the X-User-Roles header")
	flags.DurationVar(&opts.timeout, "timeout", 30*time.Second, "request timeout")
	flags.BoolVar(&opts.json, "json", false, "print raw JSON instead of text")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "diagnostic log level (trace, debug, info, warn, error)")

	root.AddCommand(
		newListCommand(rt),
		newAddCommand(rt),
		newRandomCommand(rt),
		newCategoriesCommand(rt),
		newFilterCommand(rt),
		newExportCommand(rt),
		newImportCommand(rt),
		newSyncCommand(rt),
		newStatusCommand(rt),
		newConflictsCommand(rt),
		newResolveCommand(rt),
		newDiscardCommand(rt),
	)

	return root
}

// Execute runs quotectl with ctx and os.Args.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

func (rt *runtime) init(cmd *cobra.Command) error {
	rt.out = cmd.OutOrStdout()
	rt.in = cmd.InOrStdin()
	rt.logger = logging.NewWithWriter(&logging.Config{
		Level:   rt.opts.logLevel,
		Format:  "pretty",
		Service: "quotectl",
	}, cmd.ErrOrStderr())

	client, err := clients.New(&clients.Config{
		BaseURL:     rt.opts.server,
		ServiceName: "quote-sync",
		Timeout:     rt.opts.timeout,
		// Writes such as POST /sync must not be replayed on a 502.
		Retry: config.RetryConfig{
			MaxAttempts:     1,
			InitialInterval: 100 * time.Millisecond,
			MaxInterval:     time.Second,
			Multiplier:      config.DefaultClientRetryMultiplier,
		},
		Circuit: config.CircuitBreakerConfig{
			MaxFailures:   5,
			Timeout:       30 * time.Second,
			HalfOpenLimit: 1,
		},
		AuthFunc: rt.authenticate,
		Logger:   rt.logger,
	})
	if err != nil {
		return fmt.Errorf("creating client: %w", err)
	}

	rt.client = acl.NewServiceClient(client)

	return nil
}

func (rt *runtime) authenticate(req *http.Request) {
	if rt.opts.user != "" {
		req.Header.Set("X-User-ID", rt.opts.user)
	}

	if rt.opts.roles != "" {
		req.Header.Set("X-User-Roles", rt.opts.roles)
	}
}

// printJSON writes v indented. It is the --json form of every command.
func (rt *runtime) printJSON(v any) error {
	enc := json.NewEncoder(rt.out)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

func (rt *runtime) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(rt.out, format, args...)
}

// ExitCode maps an error returned by Execute to a process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, acl.ErrAccessDenied):
		return 3
	case errors.Is(err, errUsage):
		return 2
	default:
		return 1
	}
}

var errUsage = errors.New("usage")

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}
