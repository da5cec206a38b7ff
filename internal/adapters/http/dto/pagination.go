package dto

import (
	"encoding/base64"
	"encoding/json"
	"errors"
)

// Page size bounds for GET /quotes.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// ErrInvalidCursor is returned for a cursor this service did not issue.
var ErrInvalidCursor = errors.New("invalid cursor")

// PaginationRequest carries the cursor query parameters.
type PaginationRequest struct {
	Cursor string `form:"cursor"`
	Limit  int    `form:"limit" validate:"omitempty,gte=1,lte=100"`
}

// GetLimit clamps Limit into [1, MaxLimit], defaulting to DefaultLimit.
func (p *PaginationRequest) GetLimit() int {
	switch {
	case p.Limit <= 0:
		return DefaultLimit
	case p.Limit > MaxLimit:
		return MaxLimit
	default:
		return p.Limit
	}
}

// PaginatedResponse is one page of a listing.
type PaginatedResponse[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"nextCursor,omitempty"`
	HasMore    bool   `json:"hasMore"`
}

// pageCursor points just past the last item served. AfterID re-anchors the
// next page when quotes were added or removed in between; Offset is the
// fallback when that quote is gone.
type pageCursor struct {
	AfterID string `json:"after"`
	Offset  int    `json:"at"`
}

func (pc pageCursor) encode() string {
	raw, _ := json.Marshal(pc)
	return base64.RawURLEncoding.EncodeToString(raw)
}

func decodeCursor(s string) (pageCursor, error) {
	var pc pageCursor

	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return pc, ErrInvalidCursor
	}

	if err := json.Unmarshal(raw, &pc); err != nil || pc.AfterID == "" || pc.Offset < 0 {
		return pc, ErrInvalidCursor
	}

	return pc, nil
}

// Paginate cuts the page that req asks for out of items. idOf names an item
// so the cursor can find it again on the next request.
func Paginate[T any](items []T, req PaginationRequest, idOf func(T) string) (*PaginatedResponse[T], error) {
	start := 0

	if req.Cursor != "" {
		pc, err := decodeCursor(req.Cursor)
		if err != nil {
			return nil, err
		}

		start = min(pc.Offset, len(items))

		for i, item := range items {
			if idOf(item) == pc.AfterID {
				start = i + 1
				break
			}
		}
	}

	limit := req.GetLimit()
	end := min(start+limit, len(items))

	page := &PaginatedResponse[T]{
		Items:   append(make([]T, 0, end-start), items[start:end]...),
		HasMore: end < len(items),
	}

	if page.HasMore {
		page.NextCursor = pageCursor{AfterID: idOf(items[end-1]), Offset: end}.encode()
	}

	return page, nil
}
