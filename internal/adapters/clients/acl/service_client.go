package acl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"

	"github.com/jsamuelsen/quote-sync/internal/adapters/clients"
	"github.com/jsamuelsen/quote-sync/internal/adapters/http/dto"
	"github.com/jsamuelsen/quote-sync/internal/domain"
)

const apiPrefix = "/api/v1"

// ServiceClient calls a quote-sync instance. Error bodies come back as the
// domain errors that produced them.
type ServiceClient struct {
	BaseAdapter
}

// NewServiceClient creates a client for the instance behind client.
func NewServiceClient(client *clients.Client) *ServiceClient {
	if client == nil {
		panic("acl: ServiceClient requires a Client")
	}

	return &ServiceClient{BaseAdapter: NewBaseAdapter(client)}
}

// List returns every quote in category, following the page cursor to the end.
// A nil category lists all quotes.
func (c *ServiceClient) List(ctx context.Context, category *string) ([]domain.Quote, error) {
	var (
		out    []domain.Quote
		cursor string
	)

	for {
		q := url.Values{}
		q.Set("limit", strconv.Itoa(dto.MaxLimit))

		if category != nil {
			q.Set("category", *category)
		}

		if cursor != "" {
			q.Set("cursor", cursor)
		}

		page, err := get[dto.PaginatedResponse[dto.QuoteResponse]](ctx, c, "/quotes?"+q.Encode(), "list quotes")
		if err != nil {
			return nil, err
		}

		for _, item := range page.Items {
			out = append(out, item.ToDomain())
		}

		if !page.HasMore || page.NextCursor == "" {
			return out, nil
		}

		cursor = page.NextCursor
	}
}

// Add stores a new quote.
func (c *ServiceClient) Add(ctx context.Context, text, category string) (domain.Quote, error) {
	resp, err := send[dto.QuoteResponse](ctx, c.Post, "/quotes", dto.CreateQuoteRequest{Text: text, Category: category}, "add quote")
	if err != nil {
		return domain.Quote{}, err
	}

	return resp.ToDomain(), nil
}

// Random picks a quote from category, or from all quotes when category is nil.
func (c *ServiceClient) Random(ctx context.Context, category *string) (dto.RandomQuoteResponse, error) {
	path := "/quotes/random"
	if category != nil {
		path += "?category=" + url.QueryEscape(*category)
	}

	resp, err := get[dto.RandomQuoteResponse](ctx, c, path, "random quote")
	if err != nil {
		return dto.RandomQuoteResponse{}, err
	}

	return *resp, nil
}

// Categories returns the distinct categories.
func (c *ServiceClient) Categories(ctx context.Context) ([]string, error) {
	resp, err := get[dto.CategoriesResponse](ctx, c, "/categories", "list categories")
	if err != nil {
		return nil, err
	}

	return resp.Categories, nil
}

// Export returns the raw export document.
func (c *ServiceClient) Export(ctx context.Context) ([]byte, error) {
	body, err := c.Get(ctx, apiPrefix+"/quotes/export", "export quotes")
	if err != nil {
		return nil, err
	}
	defer func() { _ = body.Close() }()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, domain.NewNetworkError(c.ServiceName(), err)
	}

	return data, nil
}

// Import replaces the instance's collection with document.
func (c *ServiceClient) Import(ctx context.Context, document []byte) (dto.ImportResponse, error) {
	body, err := c.Post(ctx, apiPrefix+"/quotes/import", bytes.NewReader(document), "import quotes")
	if err != nil {
		return dto.ImportResponse{}, err
	}

	resp, err := DecodeResponse[dto.ImportResponse](body)
	if err != nil {
		return dto.ImportResponse{}, err
	}

	return *resp, nil
}

// Filter returns the persisted category filter. Nil means all categories.
func (c *ServiceClient) Filter(ctx context.Context) (*string, error) {
	resp, err := get[dto.FilterResponse](ctx, c, "/filter", "get filter")
	if err != nil {
		return nil, err
	}

	return resp.Category, nil
}

// SetFilter persists the category filter. Nil selects all categories.
func (c *ServiceClient) SetFilter(ctx context.Context, category *string) error {
	_, err := send[dto.FilterResponse](ctx, c.Put, "/filter", dto.FilterRequest{Category: category}, "set filter")

	return err
}

// Sync starts a reconciliation run.
func (c *ServiceClient) Sync(ctx context.Context) (dto.SyncReportResponse, error) {
	resp, err := send[dto.SyncReportResponse](ctx, c.Post, "/sync", struct{}{}, "sync")
	if err != nil {
		return dto.SyncReportResponse{}, err
	}

	return *resp, nil
}

// Status reports the sync status.
func (c *ServiceClient) Status(ctx context.Context) (dto.SyncStatusResponse, error) {
	resp, err := get[dto.SyncStatusResponse](ctx, c, "/sync", "sync status")
	if err != nil {
		return dto.SyncStatusResponse{}, err
	}

	return *resp, nil
}

// Conflicts returns the pending conflict set.
func (c *ServiceClient) Conflicts(ctx context.Context) ([]dto.ConflictResponse, error) {
	resp, err := get[dto.ConflictsResponse](ctx, c, "/sync/conflicts", "list conflicts")
	if err != nil {
		return nil, err
	}

	return resp.Conflicts, nil
}

// Resolve applies policy to the pending conflicts.
func (c *ServiceClient) Resolve(ctx context.Context, policy domain.Policy) (dto.SyncReportResponse, error) {
	resp, err := send[dto.SyncReportResponse](ctx, c.Post, "/sync/resolve", dto.ResolveRequest{Policy: string(policy)}, "resolve conflicts")
	if err != nil {
		return dto.SyncReportResponse{}, err
	}

	return *resp, nil
}

// Discard abandons the pending conflicts and reports whether any were pending.
func (c *ServiceClient) Discard(ctx context.Context) (bool, error) {
	body, err := c.Delete(ctx, apiPrefix+"/sync/conflicts", "discard conflicts")
	if err != nil {
		return false, err
	}

	resp, err := DecodeResponse[dto.DiscardResponse](body)
	if err != nil {
		return false, err
	}

	return resp.Discarded, nil
}

func get[T any](ctx context.Context, c *ServiceClient, path, operation string) (*T, error) {
	body, err := c.Get(ctx, apiPrefix+path, operation)
	if err != nil {
		return nil, err
	}

	return DecodeResponse[T](body)
}

type bodyMethod func(ctx context.Context, path string, body io.Reader, operation string) (io.ReadCloser, error)

func send[T any](ctx context.Context, method bodyMethod, path string, payload any, operation string) (*T, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s request: %w", operation, err)
	}

	body, err := method(ctx, apiPrefix+path, bytes.NewReader(data), operation)
	if err != nil {
		return nil, err
	}

	return DecodeResponse[T](body)
}
