package acl

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/jsamuelsen/quote-sync/internal/domain"
)

// ErrAccessDenied is returned when a downstream answers 401 or 403. Callers
// outside the HTTP layer have no domain error for it.
var ErrAccessDenied = errors.New("access denied")

// ErrorResponse is the error body of a downstream. Both the nested
// {"error":{"code","message"}} shape used by quote-sync and a flat
// {"code","message"} shape are accepted.
type ErrorResponse struct {
	Error   ErrorDetail `json:"error"`
	Code    string      `json:"code,omitempty"`
	Message string      `json:"message,omitempty"`
}

// ErrorDetail is the nested error object.
type ErrorDetail struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// GetCode returns the nested code, falling back to the flat one.
func (e *ErrorResponse) GetCode() string {
	if e.Error.Code != "" {
		return e.Error.Code
	}

	return e.Code
}

// GetMessage returns the nested message, falling back to the flat one.
func (e *ErrorResponse) GetMessage() string {
	if e.Error.Message != "" {
		return e.Error.Message
	}

	return e.Message
}

// Error codes emitted by a quote-sync instance.
const (
	ExternalCodeNotFound     = "NOT_FOUND"
	ExternalCodeConflict     = "CONFLICT"
	ExternalCodeValidation   = "VALIDATION_ERROR"
	ExternalCodeFormat       = "FORMAT_ERROR"
	ExternalCodeNetwork      = "NETWORK_ERROR"
	ExternalCodeUnavailable  = "SERVICE_UNAVAILABLE"
	ExternalCodeForbidden    = "FORBIDDEN"
	ExternalCodeUnauthorized = "UNAUTHORIZED"
)

// ParseErrorResponse decodes body, returning nil when it carries neither code nor message.
func ParseErrorResponse(body io.Reader) *ErrorResponse {
	if body == nil {
		return nil
	}

	var errResp ErrorResponse
	if err := json.NewDecoder(body).Decode(&errResp); err != nil {
		return nil
	}

	if errResp.GetCode() == "" && errResp.GetMessage() == "" {
		return nil
	}

	return &errResp
}

// MapHTTPError translates a failed call into a domain error.
// Transport failures, 5xx and 429 become a NetworkError so the reconciler
// treats them as retryable. A body with a known code wins over the status.
func MapHTTPError(resp *http.Response, clientErr error, serviceName, operation string) error {
	if clientErr != nil {
		return domain.NewNetworkError(serviceName, fmt.Errorf("%s: %w", operation, clientErr))
	}

	if resp == nil {
		return domain.NewNetworkError(serviceName, fmt.Errorf("%s: no response received", operation))
	}

	if resp.StatusCode < http.StatusBadRequest {
		return nil
	}

	errResp := ParseErrorResponse(resp.Body)
	if errResp != nil {
		if err := MapExternalCode(errResp, serviceName, operation); err != nil {
			return err
		}
	}

	return mapStatusCode(resp.StatusCode, errResp, serviceName, operation)
}

func mapStatusCode(status int, errResp *ErrorResponse, serviceName, operation string) error {
	message := fmt.Sprintf("%s failed with status %d", operation, status)
	if errResp != nil && errResp.GetMessage() != "" {
		message = errResp.GetMessage()
	}

	switch {
	case status == http.StatusNotFound:
		return domain.NewNotFoundError(serviceName, operation)
	case status == http.StatusConflict:
		return domain.NewConflictError(serviceName, message)
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return domain.NewValidationError("", message)
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return fmt.Errorf("%s %s: %w: %s", serviceName, operation, ErrAccessDenied, message)
	case status == http.StatusTooManyRequests, status >= http.StatusInternalServerError:
		return domain.NewNetworkError(serviceName, fmt.Errorf("%s: status %d: %s", operation, status, message))
	default:
		return domain.NewValidationError("", message)
	}
}

// MapExternalCode maps a quote-sync error body back to the domain error that
// produced it. It returns nil for codes it does not know.
func MapExternalCode(errResp *ErrorResponse, serviceName, operation string) error {
	message := errResp.GetMessage()

	switch errResp.GetCode() {
	case ExternalCodeNotFound:
		return domain.NewNotFoundError(serviceName, operation)
	case ExternalCodeConflict:
		return domain.NewConflictError(serviceName, message)
	case ExternalCodeValidation:
		return validationFromDetails(errResp.Error.Details, message)
	case ExternalCodeFormat:
		return domain.NewFormatError(message)
	case ExternalCodeNetwork:
		return domain.NewNetworkError(serviceName, errors.New(message))
	case ExternalCodeUnavailable:
		return domain.NewUnavailableError(serviceName, message)
	case ExternalCodeForbidden, ExternalCodeUnauthorized:
		return fmt.Errorf("%s %s: %w: %s", serviceName, operation, ErrAccessDenied, message)
	default:
		return nil
	}
}

// validationFromDetails rebuilds the field error, keeping the element index of import failures.
func validationFromDetails(details map[string]string, message string) error {
	index := domain.NoIndex
	if n, err := strconv.Atoi(details["index"]); err == nil {
		index = n
	}

	field, fieldMsg := "", message
	for k, v := range details {
		if k != "index" {
			field, fieldMsg = k, v
			break
		}
	}

	if index != domain.NoIndex {
		return domain.NewElementValidationError(index, field, fieldMsg)
	}

	return domain.NewValidationError(field, fieldMsg)
}
