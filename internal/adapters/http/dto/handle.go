package dto

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"github.com/jsamuelsen/quote-sync/internal/domain"
	"github.com/jsamuelsen/quote-sync/internal/platform/logging"
)

// ContextKeyTraceID is the gin context key that overrides the trace id of an error response.
const ContextKeyTraceID = "trace_id"

// MapDomainError maps a domain error to its status and envelope. Errors of
// unknown kind become a 500 whose message hides the cause.
func MapDomainError(err error) (int, *ErrorResponse) {
	if err == nil {
		return http.StatusOK, nil
	}

	var resp *ErrorResponse

	switch {
	case domain.IsValidation(err):
		resp = NewErrorResponse(ErrorCodeValidation, err.Error())

		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			resp.WithDetails(validationDetails(verr))
		}
	case domain.IsFormat(err):
		resp = NewErrorResponse(ErrorCodeFormat, err.Error())
	case domain.IsNotFound(err):
		resp = NewErrorResponse(ErrorCodeNotFound, err.Error())
	case domain.IsConflict(err):
		resp = NewErrorResponse(ErrorCodeConflict, err.Error())
	case domain.IsNetwork(err):
		resp = NewErrorResponse(ErrorCodeNetwork, err.Error())
	case domain.IsUnavailable(err):
		resp = NewErrorResponse(ErrorCodeUnavailable, "service temporarily unavailable")
	default:
		resp = NewErrorResponse(ErrorCodeInternal, "an internal error occurred")
	}

	return HTTPStatusFromCode(resp.Error.Code), resp
}

func validationDetails(verr *domain.ValidationError) map[string]string {
	details := map[string]string{}

	if verr.Field != "" {
		details[verr.Field] = verr.Message
	}

	if verr.Index >= 0 {
		details["index"] = strconv.Itoa(verr.Index)
	}

	if len(details) == 0 {
		return nil
	}

	return details
}

// GetTraceID returns the trace id for the current request.
// An explicit gin context value wins over the active span, which wins over X-Request-ID.
func GetTraceID(c *gin.Context) string {
	if v, ok := c.Get(ContextKeyTraceID); ok {
		id, _ := v.(string)
		return id
	}

	if c.Request == nil {
		return ""
	}

	if sc := trace.SpanContextFromContext(c.Request.Context()); sc.HasTraceID() {
		return sc.TraceID().String()
	}

	return c.Request.Header.Get("X-Request-ID")
}

// HandleError writes the mapped error response for err.
func HandleError(c *gin.Context, err error) {
	status, resp := errorResponse(c, err)
	c.JSON(status, resp)
}

// AbortWithError stops the handler chain and writes the mapped error response.
func AbortWithError(c *gin.Context, err error) {
	status, resp := errorResponse(c, err)
	c.AbortWithStatusJSON(status, resp)
}

// RespondWithCode writes an adapter-level error that did not come from the domain.
func RespondWithCode(c *gin.Context, code, message string) {
	c.JSON(HTTPStatusFromCode(code), NewErrorResponse(code, message).WithTraceID(GetTraceID(c)))
}

// RespondWithValidationErrors writes a 400 with field-level messages.
func RespondWithValidationErrors(c *gin.Context, fields map[string]string) {
	resp := NewErrorResponse(ErrorCodeValidation, "request validation failed").WithDetails(fields)
	c.JSON(http.StatusBadRequest, resp.WithTraceID(GetTraceID(c)))
}

func errorResponse(c *gin.Context, err error) (int, *ErrorResponse) {
	status, resp := MapDomainError(err)
	if resp == nil {
		resp = NewErrorResponse(ErrorCodeInternal, "an internal error occurred")
		status = http.StatusInternalServerError
	}

	resp.WithTraceID(GetTraceID(c))

	if status >= http.StatusInternalServerError && c.Request != nil {
		logging.FromContext(c.Request.Context()).ErrorContext(c.Request.Context(), "request failed",
			slog.Int("status", status),
			slog.Any("error", err),
		)
	}

	return status, resp
}
