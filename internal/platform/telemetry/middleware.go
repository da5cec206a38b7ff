package telemetry

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/jsamuelsen/quote-sync/internal/platform/logging"
)

const instrumentationName = "github.com/jsamuelsen/quote-sync/telemetry"

// HeaderTraceID carries the trace id of a sampled request back to the caller.
const HeaderTraceID = "X-Trace-ID"

// httpInstruments are the OTel server instruments recorded per API request.
type httpInstruments struct {
	duration metric.Float64Histogram
	inFlight metric.Int64UpDownCounter
}

func newHTTPInstruments(meter metric.Meter) (*httpInstruments, error) {
	duration, err := meter.Float64Histogram("http.server.request.duration",
		metric.WithDescription("Duration of API requests."),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	inFlight, err := meter.Int64UpDownCounter("http.server.active_requests",
		metric.WithDescription("API requests in flight."),
	)
	if err != nil {
		return nil, err
	}

	return &httpInstruments{duration: duration, inFlight: inFlight}, nil
}

// Middleware returns the tracing chain for the router: an otelgin span per
// request, then a handler that exposes the trace id and records request
// metrics. Probe routes under /-/ are not traced.
func Middleware(serviceName string) []gin.HandlerFunc {
	instruments, err := newHTTPInstruments(otel.Meter(instrumentationName))
	if err != nil {
		otel.Handle(err)
	}

	return []gin.HandlerFunc{
		otelgin.Middleware(serviceName, otelgin.WithFilter(func(r *http.Request) bool {
			return !strings.HasPrefix(r.URL.Path, "/-/")
		})),
		observe(instruments),
	}
}

func observe(instruments *httpInstruments) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
			traceID := sc.TraceID().String()
			c.Header(HeaderTraceID, traceID)
			c.Request = c.Request.WithContext(logging.WithTraceID(ctx, traceID))
		}

		if instruments == nil {
			c.Next()
			return
		}

		start := time.Now()
		route := attribute.String("http.route", c.FullPath())
		method := attribute.String("http.request.method", c.Request.Method)

		instruments.inFlight.Add(ctx, 1, metric.WithAttributes(method, route))
		defer instruments.inFlight.Add(ctx, -1, metric.WithAttributes(method, route))

		c.Next()

		instruments.duration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
			method,
			route,
			attribute.Int("http.response.status_code", c.Writer.Status()),
		))
	}
}
