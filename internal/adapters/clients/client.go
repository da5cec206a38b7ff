package clients

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/jsamuelsen/quote-sync/internal/adapters/http/middleware"
	"github.com/jsamuelsen/quote-sync/internal/platform/config"
	"github.com/jsamuelsen/quote-sync/internal/platform/logging"
)

const (
	instrumentationName = "github.com/jsamuelsen/quote-sync/internal/adapters/clients"

	defaultTimeout = 30 * time.Second
	defaultJitter  = 0.25
)

// ErrMaxRetriesExceeded wraps the last error once every attempt of a call has failed.
var ErrMaxRetriesExceeded = errors.New("max retries exceeded")

// errServerStatus marks a 5xx answer so the attempt loop retries it.
type errServerStatus int

func (e errServerStatus) Error() string { return "server error: " + strconv.Itoa(int(e)) }

// Config configures one downstream client. The posts API and each feed peer
// get their own, so every remote has its own breaker.
type Config struct {
	BaseURL     string
	ServiceName string

	// Timeout bounds a single attempt; the caller's context bounds the call.
	Timeout time.Duration

	Retry     config.RetryConfig
	Circuit   config.CircuitBreakerConfig
	Transport config.TransportConfig

	// AuthFunc sets credentials on every attempt.
	AuthFunc func(*http.Request)

	Logger *slog.Logger
}

// Client calls one downstream over HTTP. A call is one trip through the
// circuit breaker and may span several attempts.
type Client struct {
	http        *http.Client
	baseURL     string
	serviceName string
	cfg         *Config
	cb          *breaker

	tracer   trace.Tracer
	duration metric.Float64Histogram
}

// New builds a client. Zero Timeout and MaxAttempts fall back to 30s and a single attempt.
func New(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}

	if cfg.ServiceName == "" {
		return nil, errors.New("service name is required")
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	cfg.Retry.MaxAttempts = max(cfg.Retry.MaxAttempts, 1)

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	logger = logger.With(slog.String("downstream", cfg.ServiceName))

	duration, err := otel.Meter(instrumentationName).Float64Histogram(
		"quotesync.client.call.duration",
		metric.WithDescription("Duration of downstream calls including retries"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating call duration histogram: %w", err)
	}

	return &Client{
		http: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        cfg.Transport.MaxIdleConns,
				MaxIdleConnsPerHost: cfg.Transport.MaxIdleConnsPerHost,
				IdleConnTimeout:     cfg.Transport.IdleConnTimeout,
			},
		},
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		serviceName: cfg.ServiceName,
		cfg:         cfg,
		cb: newBreaker(cfg.Circuit, func(from, to State) {
			logger.Warn("circuit breaker state changed",
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		}),
		tracer:   otel.Tracer(instrumentationName),
		duration: duration,
	}, nil
}

// ServiceName returns the downstream name used in logs and errors.
func (c *Client) ServiceName() string {
	return c.serviceName
}

// CircuitState returns the current state of the circuit breaker.
func (c *Client) CircuitState() State {
	return c.cb.State()
}

// Do sends req with retries behind the circuit breaker. A body is replayed
// on retry only when req.GetBody is set. 4xx answers are returned to the
// caller; 5xx and transport failures are retried and finally wrapped in
// ErrMaxRetriesExceeded.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	start := time.Now()
	logger := logging.FromContext(ctx).With(
		slog.String("downstream", c.serviceName),
		slog.String("method", req.Method),
		slog.String("path", req.URL.Path),
	)

	if err := c.cb.acquire(); err != nil {
		c.observe(ctx, req.Method, "circuit_open", start)
		logger.Warn("request blocked by circuit breaker")

		return nil, err
	}

	ctx, span := c.tracer.Start(ctx, "HTTP "+req.Method+" "+c.serviceName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("url.full", req.URL.String()),
			attribute.String("peer.service", c.serviceName),
		),
	)
	defer span.End()

	c.decorate(ctx, req)

	resp, attempts, err := c.attempt(ctx, req, logger)
	span.SetAttributes(attribute.Int("http.request.resend_count", attempts-1))

	if err != nil {
		c.cb.release(true)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		if ctx.Err() != nil {
			c.observe(ctx, req.Method, "canceled", start)
			logger.Warn("request abandoned", slog.Int("attempts", attempts), slog.Any("error", err))

			return nil, err
		}

		c.observe(ctx, req.Method, "error", start)
		logger.Error("request failed", slog.Int("attempts", attempts), slog.Any("error", err))

		return nil, fmt.Errorf("%w: %w", ErrMaxRetriesExceeded, err)
	}

	c.cb.release(false)
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode >= http.StatusBadRequest {
		span.SetStatus(codes.Error, resp.Status)
	}

	c.observe(ctx, req.Method, strconv.Itoa(resp.StatusCode/100)+"xx", start)
	logger.Debug("request completed",
		slog.Int("status", resp.StatusCode),
		slog.Int("attempts", attempts),
		slog.Duration("duration", time.Since(start)),
	)

	return resp, nil
}

// attempt runs the retry loop and reports how many attempts it made.
func (c *Client) attempt(ctx context.Context, req *http.Request, logger *slog.Logger) (*http.Response, int, error) {
	var (
		resp     *http.Response
		attempts int
	)

	err := retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		attempts++

		if attempts > 1 {
			if err := c.rewind(req); err != nil {
				return err
			}
		}

		r, err := c.http.Do(req.WithContext(ctx))

		switch {
		case err != nil && ctx.Err() == nil && isRetryableError(err):
			logger.Debug("attempt failed", slog.Int("attempt", attempts), slog.Any("error", err))
			return retry.RetryableError(err)
		case err != nil:
			return err
		case r.StatusCode >= http.StatusInternalServerError:
			logger.Debug("attempt failed", slog.Int("attempt", attempts), slog.Int("status", r.StatusCode))
			discard(r, logger)

			return retry.RetryableError(errServerStatus(r.StatusCode))
		}

		resp = r

		return nil
	})

	return resp, attempts, err
}

// rewind prepares req for another attempt.
func (c *Client) rewind(req *http.Request) error {
	if req.GetBody == nil {
		if req.Body != nil && req.Body != http.NoBody {
			return errors.New("request body cannot be replayed")
		}
	} else {
		body, err := req.GetBody()
		if err != nil {
			return fmt.Errorf("rewinding request body: %w", err)
		}

		req.Body = body
	}

	if c.cfg.AuthFunc != nil {
		c.cfg.AuthFunc(req)
	}

	return nil
}

// backoff is exponential from InitialInterval by Multiplier, capped at
// MaxInterval, jittered and limited to MaxAttempts-1 retries.
func (c *Client) backoff() retry.Backoff {
	rc := c.cfg.Retry

	next := float64(rc.InitialInterval)
	factor := math.Max(rc.Multiplier, 1)

	var b retry.Backoff = retry.BackoffFunc(func() (time.Duration, bool) {
		d := time.Duration(math.Min(next, math.MaxInt64))
		next *= factor

		return d, false
	})

	if rc.MaxInterval > 0 {
		b = retry.WithCappedDuration(rc.MaxInterval, b)
	}

	jitter := rc.JitterFactor
	if jitter == 0 {
		jitter = defaultJitter
	}

	b = retry.WithJitterPercent(uint64(jitter*100), b)

	return retry.WithMaxRetries(uint64(rc.MaxAttempts-1), b)
}

// Get performs an HTTP GET request.
func (c *Client) Get(ctx context.Context, path string) (*http.Response, error) {
	return c.send(ctx, http.MethodGet, path, nil)
}

// Post sends body as JSON.
func (c *Client) Post(ctx context.Context, path string, body io.Reader) (*http.Response, error) {
	return c.send(ctx, http.MethodPost, path, body)
}

// Put sends body as JSON.
func (c *Client) Put(ctx context.Context, path string, body io.Reader) (*http.Response, error) {
	return c.send(ctx, http.MethodPut, path, body)
}

// Delete performs an HTTP DELETE request.
func (c *Client) Delete(ctx context.Context, path string) (*http.Response, error) {
	return c.send(ctx, http.MethodDelete, path, nil)
}

func (c *Client) send(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	if body == nil {
		body = http.NoBody
	}

	req, err := http.NewRequestWithContext(ctx, method, c.buildURL(path), body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	if body != http.NoBody {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.Do(ctx, req)
}

// decorate copies the request scope onto req: tracing ids, W3C trace
// context and credentials.
func (c *Client) decorate(ctx context.Context, req *http.Request) {
	if id := middleware.RequestIDFromContext(ctx); id != "" {
		req.Header.Set(middleware.HeaderRequestID, id)
	}

	if id := middleware.CorrelationIDFromContext(ctx); id != "" {
		req.Header.Set(middleware.HeaderCorrelationID, id)
	}

	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	if c.cfg.AuthFunc != nil {
		c.cfg.AuthFunc(req)
	}
}

func (c *Client) buildURL(path string) string {
	return c.baseURL + "/" + strings.TrimPrefix(path, "/")
}

func (c *Client) observe(ctx context.Context, method, outcome string, start time.Time) {
	c.duration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
		attribute.String("http.request.method", method),
		attribute.String("peer.service", c.serviceName),
		attribute.String("outcome", outcome),
	))
}

func discard(resp *http.Response, logger *slog.Logger) {
	_, _ = io.Copy(io.Discard, resp.Body)

	if err := resp.Body.Close(); err != nil {
		logger.Debug("closing response body", slog.Any("error", err))
	}
}

// isRetryableError reports whether a transport error is worth another
// attempt. Cancellation is final; a timeout is retried because the caller
// checks its own context before asking.
func isRetryableError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError

	return errors.As(err, &opErr)
}
