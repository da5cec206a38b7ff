package dto

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsamuelsen/quote-sync/internal/domain"
)

func TestQuoteFromDomain(t *testing.T) {
	q := domain.Quote{ID: "local_1", Text: "Be bold.", Category: "life", Timestamp: 42}

	resp := QuoteFromDomain(q)

	assert.Equal(t, QuoteResponse{ID: "local_1", Text: "Be bold.", Category: "life", Timestamp: 42}, resp)
	assert.Equal(t, q, resp.ToDomain())
}

func TestQuotesFromDomain_EmptyIsNotNull(t *testing.T) {
	data, err := json.Marshal(QuotesFromDomain(nil))

	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(data))
}

func TestConflictsFromDomain(t *testing.T) {
	entries := []domain.ConflictEntry{{
		Local:  domain.Quote{ID: "1", Text: "A", Category: "x"},
		Remote: domain.Quote{ID: "1", Text: "A", Category: "y"},
	}}

	got := ConflictsFromDomain(entries)

	require.Len(t, got, 1)
	assert.Equal(t, "x", got[0].Local.Category)
	assert.Equal(t, "y", got[0].Remote.Category)
}

func TestFilterResponse_NullMeansAll(t *testing.T) {
	data, err := json.Marshal(FilterResponse{})

	require.NoError(t, err)
	assert.JSONEq(t, `{"category":null}`, string(data))
}
