package app

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jsamuelsen/quote-sync/internal/domain"
	"github.com/jsamuelsen/quote-sync/internal/mocks"
	"github.com/jsamuelsen/quote-sync/internal/ports"
)

func TestParallel(t *testing.T) {
	t.Run("keeps input order", func(t *testing.T) {
		results, err := Parallel(context.Background(), 0,
			func(context.Context) (int, error) { time.Sleep(5 * time.Millisecond); return 1, nil },
			func(context.Context) (int, error) { return 2, nil },
			func(context.Context) (int, error) { return 3, nil },
		)

		require.NoError(t, err)
		assert.Equal(t, []int{1, 2, 3}, results)
	})

	t.Run("first error cancels the rest", func(t *testing.T) {
		boom := errors.New("boom")

		_, err := Parallel(context.Background(), 0,
			func(context.Context) (int, error) { return 0, boom },
			func(ctx context.Context) (int, error) { <-ctx.Done(); return 0, ctx.Err() },
		)

		require.ErrorIs(t, err, boom)
	})

	t.Run("limit bounds concurrency", func(t *testing.T) {
		var inFlight, peak atomic.Int32

		fn := func(context.Context) (int, error) {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}

			time.Sleep(2 * time.Millisecond)
			inFlight.Add(-1)

			return 0, nil
		}

		_, err := Parallel(context.Background(), 2, fn, fn, fn, fn, fn)

		require.NoError(t, err)
		assert.LessOrEqual(t, peak.Load(), int32(2))
	})
}

func TestCombinedSource_Fetch(t *testing.T) {
	first := mocks.NewMockQuoteSource(t)
	first.EXPECT().Fetch(mock.Anything).Return([]domain.Quote{{ID: "a", Text: "A", Category: "x"}}, nil)

	second := mocks.NewMockQuoteSource(t)
	second.EXPECT().Fetch(mock.Anything).Return([]domain.Quote{{ID: "b", Text: "B", Category: "y"}}, nil)

	var src ports.QuoteSource = NewCombinedSource(2, first, second)

	got, err := src.Fetch(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, []string{got[0].ID, got[1].ID})
}

func TestCombinedSource_FailureIsNetworkError(t *testing.T) {
	ok := mocks.NewMockQuoteSource(t)
	ok.EXPECT().Fetch(mock.Anything).Return(nil, nil).Maybe()

	failing := mocks.NewMockQuoteSource(t)
	failing.EXPECT().Fetch(mock.Anything).Return(nil, domain.NewNetworkError("peer", errors.New("timeout")))

	_, err := NewCombinedSource(0, ok, failing).Fetch(context.Background())

	require.Error(t, err)
	assert.True(t, domain.IsNetwork(err))
}
