package dto

import (
	"time"

	"github.com/jsamuelsen/quote-sync/internal/domain"
)

// QuoteResponse is the wire form of a stored quote.
type QuoteResponse struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Category  string `json:"category"`
	Timestamp int64  `json:"timestamp"`
}

// QuoteFromDomain converts a domain quote.
func QuoteFromDomain(q domain.Quote) QuoteResponse {
	return QuoteResponse{ID: q.ID, Text: q.Text, Category: q.Category, Timestamp: q.Timestamp}
}

// ToDomain converts the response back into a domain quote.
func (r QuoteResponse) ToDomain() domain.Quote {
	return domain.Quote{ID: r.ID, Text: r.Text, Category: r.Category, Timestamp: r.Timestamp}
}

// QuotesFromDomain converts a slice of domain quotes.
func QuotesFromDomain(quotes []domain.Quote) []QuoteResponse {
	out := make([]QuoteResponse, 0, len(quotes))
	for _, q := range quotes {
		out = append(out, QuoteFromDomain(q))
	}

	return out
}

// ListQuotesRequest is the query of GET /quotes.
type ListQuotesRequest struct {
	PaginationRequest

	Category *string `form:"category"`
}

// CreateQuoteRequest is the body of POST /quotes.
type CreateQuoteRequest struct {
	Text     string `json:"text" validate:"required,notempty"`
	Category string `json:"category" validate:"required,notempty"`
}

// RandomQuoteResponse pairs a random quote with its rendered display.
type RandomQuoteResponse struct {
	Quote   QuoteResponse  `json:"quote"`
	Display domain.Display `json:"display"`
}

// CategoriesResponse lists the unique categories in first-seen order.
type CategoriesResponse struct {
	Categories []string `json:"categories"`
}

// FilterRequest is the body of PUT /filter. A null or absent category clears the filter.
type FilterRequest struct {
	Category *string `json:"category"`
}

// FilterResponse is the persisted selected filter. Category is null when no filter is selected.
type FilterResponse struct {
	Category *string `json:"category"`
}

// ImportResponse reports an applied import.
type ImportResponse struct {
	Imported    int `json:"imported"`
	AssignedIDs int `json:"assignedIds"`
}

// ConflictResponse is one pending conflict.
type ConflictResponse struct {
	Local  QuoteResponse `json:"local"`
	Remote QuoteResponse `json:"remote"`
}

// ConflictsFromDomain converts pending conflict entries.
func ConflictsFromDomain(entries []domain.ConflictEntry) []ConflictResponse {
	out := make([]ConflictResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, ConflictResponse{Local: QuoteFromDomain(e.Local), Remote: QuoteFromDomain(e.Remote)})
	}

	return out
}

// ConflictsResponse wraps the pending conflict list.
type ConflictsResponse struct {
	Conflicts []ConflictResponse `json:"conflicts"`
}

// SyncReportResponse describes a finished sync or resolution.
type SyncReportResponse struct {
	RunID      string             `json:"runId,omitempty"`
	Outcome    string             `json:"outcome"`
	State      string             `json:"state"`
	Added      int                `json:"added"`
	Unchanged  int                `json:"unchanged"`
	Duplicates int                `json:"duplicates"`
	Conflicts  []ConflictResponse `json:"conflicts,omitempty"`
	Policy     string             `json:"policy,omitempty"`
	Replaced   int                `json:"replaced"`
	Inserted   int                `json:"inserted"`
	Error      string             `json:"error,omitempty"`
	StartedAt  time.Time          `json:"startedAt"`
	FinishedAt time.Time          `json:"finishedAt"`
}

// SyncStatusResponse is the body of GET /sync.
type SyncStatusResponse struct {
	Status       string     `json:"status"`
	State        string     `json:"state"`
	LastSyncAt   *time.Time `json:"lastSyncAt,omitempty"`
	LastError    string     `json:"lastError,omitempty"`
	PendingCount int        `json:"pendingCount"`
}

// ResolveRequest is the body of POST /sync/resolve.
type ResolveRequest struct {
	Policy string `json:"policy" validate:"required,policy"`
}

// DiscardResponse reports whether a pending conflict set was dropped.
type DiscardResponse struct {
	Discarded bool `json:"discarded"`
}
