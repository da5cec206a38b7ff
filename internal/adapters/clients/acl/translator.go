package acl

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/jsamuelsen/quote-sync/internal/adapters/clients"
	"github.com/jsamuelsen/quote-sync/internal/domain"
)

// BaseAdapter wraps a clients.Client so that every non-2xx answer comes back
// as a domain error. Sources and the service client embed it.
type BaseAdapter struct {
	client      *clients.Client
	serviceName string
}

// NewBaseAdapter creates a base adapter named after client's downstream.
func NewBaseAdapter(client *clients.Client) BaseAdapter {
	return BaseAdapter{
		client:      client,
		serviceName: client.ServiceName(),
	}
}

// ServiceName returns the downstream name used in errors.
func (a *BaseAdapter) ServiceName() string {
	return a.serviceName
}

// Get performs a GET and returns the body of a successful response. The caller closes it.
func (a *BaseAdapter) Get(ctx context.Context, path, operation string) (io.ReadCloser, error) {
	resp, err := a.client.Get(ctx, path)

	return a.body(resp, err, operation)
}

// Post performs a POST with a JSON body.
func (a *BaseAdapter) Post(ctx context.Context, path string, body io.Reader, operation string) (io.ReadCloser, error) {
	resp, err := a.client.Post(ctx, path, body)

	return a.body(resp, err, operation)
}

// Put performs a PUT with a JSON body.
func (a *BaseAdapter) Put(ctx context.Context, path string, body io.Reader, operation string) (io.ReadCloser, error) {
	resp, err := a.client.Put(ctx, path, body)

	return a.body(resp, err, operation)
}

// Delete performs a DELETE.
func (a *BaseAdapter) Delete(ctx context.Context, path, operation string) (io.ReadCloser, error) {
	resp, err := a.client.Delete(ctx, path)

	return a.body(resp, err, operation)
}

// Do sends req as is and hands back the raw response of a success, for callers
// that need headers. The caller closes the body.
func (a *BaseAdapter) Do(ctx context.Context, req *http.Request, operation string) (*http.Response, error) {
	resp, err := a.client.Do(ctx, req)
	if err != nil {
		return nil, MapHTTPError(nil, err, a.serviceName, operation)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		defer func() { _ = resp.Body.Close() }()

		return nil, MapHTTPError(resp, nil, a.serviceName, operation)
	}

	return resp, nil
}

func (a *BaseAdapter) body(resp *http.Response, err error, operation string) (io.ReadCloser, error) {
	if err != nil {
		return nil, MapHTTPError(nil, err, a.serviceName, operation)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		defer func() { _ = resp.Body.Close() }()

		return nil, MapHTTPError(resp, nil, a.serviceName, operation)
	}

	return resp.Body, nil
}

// DecodeResponse decodes a JSON body into T and closes it.
// A body that does not decode is a FormatError.
func DecodeResponse[T any](body io.ReadCloser) (*T, error) {
	if body == nil {
		return nil, domain.NewFormatError("response body is empty")
	}
	defer func() { _ = body.Close() }()

	var result T
	if err := json.NewDecoder(body).Decode(&result); err != nil {
		return nil, domain.NewFormatError("decoding response: " + err.Error())
	}

	return &result, nil
}

// Translator converts one external record into a domain value.
type Translator[External any, Domain any] func(ext *External) (Domain, error)

// TranslateSlice applies translate to every item and stops at the first failure,
// which is reported with the item's index.
func TranslateSlice[E any, D any](items []E, translate Translator[E, D]) ([]D, error) {
	result := make([]D, 0, len(items))

	for i := range items {
		translated, err := translate(&items[i])
		if err != nil {
			return nil, elementError(i, err)
		}

		result = append(result, translated)
	}

	return result, nil
}

func elementError(index int, err error) error {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		return domain.NewElementValidationError(index, verr.Field, verr.Message)
	}

	return err
}
