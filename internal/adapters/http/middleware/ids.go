// Package middleware holds the gin middleware of the quote-sync API.
package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jsamuelsen/quote-sync/internal/platform/logging"
)

// Tracing headers accepted from callers and echoed on every response.
const (
	HeaderRequestID     = "X-Request-ID"
	HeaderCorrelationID = "X-Correlation-ID"
)

// maxIDLength caps caller-supplied ids; longer values are replaced.
const maxIDLength = 128

type idKey struct{ header string }

var (
	requestIDKey     = idKey{HeaderRequestID}
	correlationIDKey = idKey{HeaderCorrelationID}
)

// RequestID tags each request with X-Request-ID, generating one when absent.
// The id lands in the request context, the context logger and the response headers.
func RequestID() gin.HandlerFunc {
	return propagateID(requestIDKey, logging.WithRequestID)
}

// CorrelationID does for X-Correlation-ID what RequestID does for X-Request-ID.
// Outbound calls to the quote source carry both ids.
func CorrelationID() gin.HandlerFunc {
	return propagateID(correlationIDKey, logging.WithCorrelationID)
}

func propagateID(key idKey, annotate func(context.Context, string) context.Context) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(key.header)
		if id == "" || len(id) > maxIDLength {
			id = uuid.NewString()
		}

		c.Header(key.header, id)

		ctx := context.WithValue(c.Request.Context(), key, id)
		c.Request = c.Request.WithContext(annotate(ctx, id))

		c.Next()
	}
}

// RequestIDFromContext returns the request id stored by RequestID, or "".
func RequestIDFromContext(ctx context.Context) string {
	return idFrom(ctx, requestIDKey)
}

// CorrelationIDFromContext returns the correlation id stored by CorrelationID, or "".
func CorrelationIDFromContext(ctx context.Context) string {
	return idFrom(ctx, correlationIDKey)
}

// ContextWithRequestID stores id as the request id of ctx.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// ContextWithCorrelationID stores id as the correlation id of ctx.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

func idFrom(ctx context.Context, key idKey) string {
	if ctx == nil {
		return ""
	}

	id, _ := ctx.Value(key).(string)

	return id
}
