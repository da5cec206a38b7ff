//go:build integration

package integration

import (
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsamuelsen/quote-sync/internal/adapters/clients"
	"github.com/jsamuelsen/quote-sync/internal/domain"
)

// TestSync_RetriesTransientUpstreamFailures verifies that 503s from the
// upstream are absorbed by the client retry policy.
func TestSync_RetriesTransientUpstreamFailures(t *testing.T) {
	var hits atomic.Int32

	inst := startInstance(t, instanceOptions{
		source: postsUpstream(func(w http.ResponseWriter, r *http.Request) {
			if hits.Add(1) <= 2 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}

			servePosts(w, r)
		}),
	})

	report, err := inst.Client.Sync(t.Context())

	require.NoError(t, err)
	assert.Equal(t, "merged", report.Outcome)
	assert.Equal(t, 5, report.Added, "only the first five posts are taken")
	assert.Equal(t, int32(3), hits.Load())

	quotes, err := inst.Client.List(t.Context(), nil)
	require.NoError(t, err)
	require.Len(t, quotes, 5)
	assert.Equal(t, "server_1", quotes[0].ID)
	assert.Equal(t, "category_1", quotes[0].Category)

	status, err := inst.Client.Status(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "synced", status.Status)
	assert.NotNil(t, status.LastSyncAt)
}

// TestSync_UpstreamOutage verifies that a failed fetch leaves the store
// untouched, surfaces a network error and eventually opens the circuit.
func TestSync_UpstreamOutage(t *testing.T) {
	var hits atomic.Int32

	inst := startInstance(t, instanceOptions{
		seed: []domain.Quote{{ID: "1", Text: "kept", Category: "local", Timestamp: 1}},
		source: postsUpstream(func(w http.ResponseWriter, _ *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
		}),
	})

	_, err := inst.Client.Sync(t.Context())

	require.Error(t, err)
	assert.True(t, domain.IsNetwork(err), "unexpected error %v", err)

	status, err := inst.Client.Status(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "sync failed", status.Status)
	assert.NotEmpty(t, status.LastError)

	quotes, err := inst.Client.List(t.Context(), nil)
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, "kept", quotes[0].Text)

	_, err = inst.Client.Sync(t.Context())
	require.Error(t, err)
	assert.NotEqual(t, clients.StateClosed, inst.Upstream.CircuitState())

	before := hits.Load()
	_, err = inst.Client.Sync(t.Context())
	require.Error(t, err)
	assert.Equal(t, before, hits.Load(), "open circuit must not reach the upstream")
}

// TestSync_ConflictResolvedWithPolicy walks a run that pauses on edited
// upstream records and is resolved in favour of the remote side.
func TestSync_ConflictResolvedWithPolicy(t *testing.T) {
	var edited atomic.Bool

	inst := startInstance(t, instanceOptions{
		source: postsUpstream(func(w http.ResponseWriter, r *http.Request) {
			if !edited.Load() {
				servePosts(w, r)
				return
			}

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(strings.Replace(postsBody, `"first"`, `"first, revised"`, 1)))
		}),
	})

	_, err := inst.Client.Sync(t.Context())
	require.NoError(t, err)

	edited.Store(true)

	report, err := inst.Client.Sync(t.Context())
	require.NoError(t, err)
	require.Equal(t, "awaiting_resolution", report.Outcome)
	require.Len(t, report.Conflicts, 1)
	assert.Equal(t, "first", report.Conflicts[0].Local.Text)
	assert.Equal(t, "first, revised", report.Conflicts[0].Remote.Text)

	skipped, err := inst.Client.Sync(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "skipped", skipped.Outcome, "pending conflicts block new runs")

	resolved, err := inst.Client.Resolve(t.Context(), domain.PolicyPreferRemote)
	require.NoError(t, err)
	assert.Equal(t, "resolved", resolved.Outcome)
	assert.Equal(t, 1, resolved.Replaced)

	quotes, err := inst.Client.List(t.Context(), nil)
	require.NoError(t, err)
	require.Len(t, quotes, 5)
	assert.Equal(t, "first, revised", quotes[0].Text)

	conflicts, err := inst.Client.Conflicts(t.Context())
	require.NoError(t, err)
	assert.Empty(t, conflicts)
}

// TestSync_StatePersistsAcrossRestart verifies that quotes, the filter and
// the last sync time survive a restart on the same file store.
func TestSync_StatePersistsAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	opts := instanceOptions{dir: dir, source: postsUpstream(servePosts)}

	first := startInstance(t, opts)

	_, err := first.Client.Sync(t.Context())
	require.NoError(t, err)

	added, err := first.Client.Add(t.Context(), "written locally", "notes")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(added.ID, "local_"))

	notes := "notes"
	require.NoError(t, first.Client.SetFilter(t.Context(), &notes))

	second := startInstance(t, opts)

	quotes, err := second.Client.List(t.Context(), nil)
	require.NoError(t, err)
	assert.Len(t, quotes, 6)

	filter, err := second.Client.Filter(t.Context())
	require.NoError(t, err)
	require.NotNil(t, filter)
	assert.Equal(t, "notes", *filter)

	status, err := second.Client.Status(t.Context())
	require.NoError(t, err)
	assert.NotNil(t, status.LastSyncAt)

	report, err := second.Client.Sync(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Added)
	assert.Equal(t, 5, report.Unchanged)
}

// TestSync_ConcurrentTriggersNeverDuplicate fires overlapping syncs and
// checks that every remote record lands exactly once.
func TestSync_ConcurrentTriggersNeverDuplicate(t *testing.T) {
	inst := startInstance(t, instanceOptions{source: postsUpstream(servePosts)})

	const callers = 10

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes = map[string]int{}
	)

	for range callers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			report, err := inst.Client.Sync(t.Context())
			if !assert.NoError(t, err) {
				return
			}

			mu.Lock()
			outcomes[report.Outcome]++
			mu.Unlock()
		}()
	}

	wg.Wait()

	assert.Equal(t, callers, outcomes["merged"]+outcomes["skipped"])
	assert.GreaterOrEqual(t, outcomes["merged"], 1)

	quotes, err := inst.Client.List(t.Context(), nil)
	require.NoError(t, err)
	assert.Len(t, quotes, 5)
}
