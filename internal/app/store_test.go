package app

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jsamuelsen/quote-sync/internal/adapters/storage/memory"
	"github.com/jsamuelsen/quote-sync/internal/domain"
	"github.com/jsamuelsen/quote-sync/internal/mocks"
	"github.com/jsamuelsen/quote-sync/internal/ports"
)

var fixedNow = time.UnixMilli(1_700_000_000_000)

// discardLogger returns a logger that discards all output.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixedClock() time.Time { return fixedNow }

// newTestStore returns a store over an in-memory blob store holding quotes.
func newTestStore(t *testing.T, identity domain.Identity, quotes ...domain.Quote) (*QuoteStore, *memory.Store) {
	t.Helper()

	blobs := memory.New()
	store := NewQuoteStore(QuoteStoreConfig{
		Blobs:    blobs,
		Identity: identity,
		Seed:     []domain.Quote{},
		Clock:    fixedClock,
	})
	require.NoError(t, store.ReplaceAll(quotes))

	return store, blobs
}

func TestNewQuoteStore_PanicsWithoutBlobs(t *testing.T) {
	assert.Panics(t, func() {
		NewQuoteStore(QuoteStoreConfig{})
	})
}

func TestCategoryFilter(t *testing.T) {
	q := domain.Quote{Text: "t", Category: "all"}

	assert.True(t, AllCategories().IsAll())
	assert.True(t, AllCategories().Matches(q))
	assert.True(t, InCategory("all").Matches(q))
	assert.False(t, InCategory("all").IsAll())
	assert.False(t, InCategory("life").Matches(q))
	assert.Equal(t, "all", InCategory("all").Category())
}

func TestQuoteStore_Add(t *testing.T) {
	tests := []struct {
		name    string
		quote   domain.Quote
		wantErr func(error) bool
	}{
		{
			name:  "assigns id and timestamp",
			quote: domain.Quote{Text: "new", Category: "c"},
		},
		{
			name:  "duplicate text is allowed",
			quote: domain.Quote{Text: "A", Category: "x"},
		},
		{
			name:    "duplicate id is a conflict",
			quote:   domain.Quote{ID: "1", Text: "other", Category: "x"},
			wantErr: domain.IsConflict,
		},
		{
			name:    "blank text is invalid",
			quote:   domain.Quote{Text: "  ", Category: "x"},
			wantErr: domain.IsValidation,
		},
		{
			name:    "missing category is invalid",
			quote:   domain.Quote{Text: "A"},
			wantErr: domain.IsValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, _ := newTestStore(t, domain.StableIDIdentity, domain.Quote{ID: "1", Text: "A", Category: "x", Timestamp: 10})

			got, err := store.Add(tt.quote)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, tt.wantErr(err))
				assert.Equal(t, 1, store.Len())

				return
			}

			require.NoError(t, err)
			assert.NotEmpty(t, got.ID)
			assert.Equal(t, fixedNow.UnixMilli(), got.Timestamp)
			assert.Equal(t, 2, store.Len())
			assert.Equal(t, got, store.Snapshot()[1])
		})
	}
}

func TestQuoteStore_ReplaceAll(t *testing.T) {
	t.Run("fills missing ids and timestamps", func(t *testing.T) {
		store, _ := newTestStore(t, domain.StableIDIdentity)

		require.NoError(t, store.ReplaceAll([]domain.Quote{
			{Text: "A", Category: "x"},
			{ID: "keep", Text: "B", Category: "y", Timestamp: 5},
		}))

		got := store.Snapshot()
		require.Len(t, got, 2)
		assert.NotEmpty(t, got[0].ID)
		assert.Equal(t, fixedNow.UnixMilli(), got[0].Timestamp)
		assert.Equal(t, domain.Quote{ID: "keep", Text: "B", Category: "y", Timestamp: 5}, got[1])
	})

	t.Run("duplicate ids leave the store untouched", func(t *testing.T) {
		original := domain.Quote{ID: "1", Text: "A", Category: "x", Timestamp: 1}
		store, _ := newTestStore(t, domain.StableIDIdentity, original)

		err := store.ReplaceAll([]domain.Quote{
			{ID: "2", Text: "B", Category: "y"},
			{ID: "2", Text: "C", Category: "z"},
		})

		require.Error(t, err)
		assert.True(t, domain.IsConflict(err))
		assert.Equal(t, []domain.Quote{original}, store.Snapshot())
	})
}

func TestQuoteStore_UpsertByKey(t *testing.T) {
	tests := []struct {
		name         string
		identity     domain.Identity
		upsert       domain.Quote
		wantReplaced bool
		want         []domain.Quote
	}{
		{
			name:         "stable id replaces in place",
			identity:     domain.StableIDIdentity,
			upsert:       domain.Quote{ID: "1", Text: "A", Category: "y", Timestamp: 20},
			wantReplaced: true,
			want: []domain.Quote{
				{ID: "1", Text: "A", Category: "y", Timestamp: 20},
				{ID: "2", Text: "B", Category: "x", Timestamp: 10},
			},
		},
		{
			name:         "text identity keeps the local id",
			identity:     domain.TextIdentity,
			upsert:       domain.Quote{ID: "2", Text: "A", Category: "z", Timestamp: 30},
			wantReplaced: true,
			want: []domain.Quote{
				{ID: "1", Text: "A", Category: "z", Timestamp: 30},
				{ID: "2", Text: "B", Category: "x", Timestamp: 10},
			},
		},
		{
			name:         "unknown key appends",
			identity:     domain.StableIDIdentity,
			upsert:       domain.Quote{ID: "9", Text: "C", Category: "x", Timestamp: 40},
			wantReplaced: false,
			want: []domain.Quote{
				{ID: "1", Text: "A", Category: "x", Timestamp: 10},
				{ID: "2", Text: "B", Category: "x", Timestamp: 10},
				{ID: "9", Text: "C", Category: "x", Timestamp: 40},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, _ := newTestStore(t, tt.identity,
				domain.Quote{ID: "1", Text: "A", Category: "x", Timestamp: 10},
				domain.Quote{ID: "2", Text: "B", Category: "x", Timestamp: 10},
			)

			assert.Equal(t, tt.wantReplaced, store.UpsertByKey(tt.upsert))
			assert.Equal(t, tt.want, store.Snapshot())
		})
	}
}

func TestQuoteStore_Update(t *testing.T) {
	original := domain.Quote{ID: "1", Text: "A", Category: "x", Timestamp: 10}

	t.Run("commits on success", func(t *testing.T) {
		store, _ := newTestStore(t, domain.StableIDIdentity, original)

		err := store.Update(func(tx *StoreTx) error {
			inserted := tx.Insert(domain.Quote{ID: "1", Text: "copy", Category: "x"})
			assert.NotEqual(t, "1", inserted.ID)

			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, 2, store.Len())
	})

	t.Run("discards the working copy on error", func(t *testing.T) {
		store, _ := newTestStore(t, domain.StableIDIdentity, original)

		err := store.Update(func(tx *StoreTx) error {
			tx.Insert(domain.Quote{Text: "B", Category: "y"})
			tx.Upsert(domain.Quote{ID: "1", Text: "A", Category: "changed"})

			return assert.AnError
		})

		require.ErrorIs(t, err, assert.AnError)
		assert.Equal(t, []domain.Quote{original}, store.Snapshot())
	})
}

func TestQuoteStore_List(t *testing.T) {
	store, _ := newTestStore(t, domain.StableIDIdentity,
		domain.Quote{ID: "1", Text: "A", Category: "x"},
		domain.Quote{ID: "2", Text: "B", Category: "y"},
		domain.Quote{ID: "3", Text: "C", Category: "x"},
	)

	t.Run("all categories", func(t *testing.T) {
		assert.Len(t, slices.Collect(store.List(AllCategories())), 3)
	})

	t.Run("single category keeps order", func(t *testing.T) {
		var ids []string
		for q := range store.List(InCategory("x")) {
			ids = append(ids, q.ID)
		}

		assert.Equal(t, []string{"1", "3"}, ids)
	})

	t.Run("sequence is restartable", func(t *testing.T) {
		seq := store.List(AllCategories())
		assert.Equal(t, slices.Collect(seq), slices.Collect(seq))
	})

	t.Run("early break stops iteration", func(t *testing.T) {
		count := 0
		for range store.List(AllCategories()) {
			count++
			break
		}

		assert.Equal(t, 1, count)
	})
}

func TestQuoteStore_Categories(t *testing.T) {
	store, _ := newTestStore(t, domain.StableIDIdentity,
		domain.Quote{ID: "1", Text: "A", Category: "life"},
		domain.Quote{ID: "2", Text: "B", Category: "work"},
		domain.Quote{ID: "3", Text: "C", Category: "life"},
	)

	assert.Equal(t, []string{"life", "work"}, store.Categories())
}

func TestQuoteStore_LoadSave(t *testing.T) {
	ctx := context.Background()

	t.Run("seeds when nothing is persisted", func(t *testing.T) {
		store := NewQuoteStore(QuoteStoreConfig{Blobs: memory.New(), Clock: fixedClock})

		require.NoError(t, store.Load(ctx))
		assert.Equal(t, SeedQuotes(), store.Snapshot())
	})

	t.Run("round trips through the blob store", func(t *testing.T) {
		quotes := []domain.Quote{
			{ID: "1", Text: "A", Category: "x", Timestamp: 10},
			{ID: "2", Text: "B", Category: "y", Timestamp: 20},
		}
		store, blobs := newTestStore(t, domain.StableIDIdentity, quotes...)
		require.NoError(t, store.Save(ctx))

		reloaded := NewQuoteStore(QuoteStoreConfig{Blobs: blobs, Clock: fixedClock})
		require.NoError(t, reloaded.Load(ctx))
		assert.Equal(t, quotes, reloaded.Snapshot())
	})

	t.Run("corrupt blob is a format error", func(t *testing.T) {
		blobs := memory.New()
		require.NoError(t, blobs.Set(ctx, ports.KeyQuotes, []byte(`{"not":"a list"}`)))

		store := NewQuoteStore(QuoteStoreConfig{Blobs: blobs})
		err := store.Load(ctx)

		require.Error(t, err)
		assert.True(t, domain.IsFormat(err))
	})

	t.Run("numeric ids from older records are accepted", func(t *testing.T) {
		blobs := memory.New()
		require.NoError(t, blobs.Set(ctx, ports.KeyQuotes, []byte(`[{"id":7,"text":"A","category":"x"}]`)))

		store := NewQuoteStore(QuoteStoreConfig{Blobs: blobs, Clock: fixedClock})
		require.NoError(t, store.Load(ctx))

		assert.Equal(t, []domain.Quote{{ID: "7", Text: "A", Category: "x", Timestamp: fixedNow.UnixMilli()}}, store.Snapshot())
	})
}

func TestQuoteStore_Replace(t *testing.T) {
	ctx := context.Background()
	existing := domain.Quote{ID: "keep", Text: "existing", Category: "x", Timestamp: 1}
	incoming := []domain.Quote{{ID: "7", Text: "A", Category: "y", Timestamp: 2}}

	t.Run("persists and bumps the generation", func(t *testing.T) {
		store, blobs := newTestStore(t, domain.StableIDIdentity, existing)
		before := store.Generation()

		require.NoError(t, store.Replace(ctx, incoming))

		assert.Equal(t, incoming, store.Snapshot())
		assert.Equal(t, before+1, store.Generation())

		data, ok, err := blobs.Get(ctx, ports.KeyQuotes)
		require.NoError(t, err)
		require.True(t, ok)
		assert.JSONEq(t, `[{"id":"7","text":"A","category":"y","timestamp":2}]`, string(data))
	})

	t.Run("rejected write leaves the store untouched", func(t *testing.T) {
		blobs := mocks.NewMockBlobStore(t)
		blobs.EXPECT().Set(mock.Anything, ports.KeyQuotes, mock.Anything).Return(domain.NewUnavailableError("blobstore", "read-only"))

		store := NewQuoteStore(QuoteStoreConfig{Blobs: blobs, Seed: []domain.Quote{}})
		require.NoError(t, store.ReplaceAll([]domain.Quote{existing}))
		before := store.Generation()

		err := store.Replace(ctx, incoming)

		require.ErrorIs(t, err, domain.ErrUnavailable)
		assert.Equal(t, []domain.Quote{existing}, store.Snapshot())
		assert.Equal(t, before, store.Generation())
	})

	t.Run("duplicate ids are rejected before writing", func(t *testing.T) {
		store, blobs := newTestStore(t, domain.StableIDIdentity, existing)

		err := store.Replace(ctx, append(slices.Clone(incoming), incoming[0]))

		require.ErrorIs(t, err, domain.ErrConflict)
		assert.Empty(t, blobs.Keys())
	})
}
