package ports

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChecker struct {
	name     string
	err      error
	advisory bool
}

func (s stubChecker) Name() string                { return s.name }
func (s stubChecker) Check(context.Context) error { return s.err }
func (s stubChecker) Advisory() bool              { return s.advisory }

// blockingChecker waits for its deadline.
type blockingChecker struct{ name string }

func (b blockingChecker) Name() string { return b.name }

func (b blockingChecker) Check(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestRegistry_Register(t *testing.T) {
	registry := NewHealthRegistry()

	require.NoError(t, registry.Register(stubChecker{name: "redis"}))
	require.NoError(t, registry.Register(stubChecker{name: "peer:quotes-b"}))

	err := registry.Register(stubChecker{name: "redis"})
	require.ErrorIs(t, err, ErrDuplicateChecker)
	assert.ErrorContains(t, err, "redis")

	assert.Equal(t, []string{"redis", "peer:quotes-b"}, registry.Names())
}

func TestRegistry_CheckAll(t *testing.T) {
	unreachable := errors.New("dial tcp: connection refused")

	tests := []struct {
		name       string
		checkers   []HealthChecker
		wantStatus HealthStatus
		wantChecks map[string]HealthStatus
	}{
		{
			name:       "nothing registered",
			wantStatus: HealthStatusHealthy,
			wantChecks: map[string]HealthStatus{},
		},
		{
			name: "all pass",
			checkers: []HealthChecker{
				stubChecker{name: "file"},
				stubChecker{name: "quote-source", advisory: true},
			},
			wantStatus: HealthStatusHealthy,
			wantChecks: map[string]HealthStatus{"file": HealthStatusHealthy, "quote-source": HealthStatusHealthy},
		},
		{
			name: "source down only degrades",
			checkers: []HealthChecker{
				stubChecker{name: "redis"},
				stubChecker{name: "quote-source", err: unreachable, advisory: true},
			},
			wantStatus: HealthStatusDegraded,
			wantChecks: map[string]HealthStatus{"redis": HealthStatusHealthy, "quote-source": HealthStatusDegraded},
		},
		{
			name: "store down is unhealthy",
			checkers: []HealthChecker{
				stubChecker{name: "redis", err: unreachable},
				stubChecker{name: "peer:quotes-b", err: unreachable, advisory: true},
			},
			wantStatus: HealthStatusUnhealthy,
			wantChecks: map[string]HealthStatus{"redis": HealthStatusUnhealthy, "peer:quotes-b": HealthStatusDegraded},
		},
		{
			name:       "advisory false counts as critical",
			checkers:   []HealthChecker{stubChecker{name: "memory", err: unreachable, advisory: false}},
			wantStatus: HealthStatusUnhealthy,
			wantChecks: map[string]HealthStatus{"memory": HealthStatusUnhealthy},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := NewHealthRegistry()
			for _, c := range tt.checkers {
				require.NoError(t, registry.Register(c))
			}

			result := registry.CheckAll(context.Background())

			assert.Equal(t, tt.wantStatus, result.Status)
			assert.False(t, result.Timestamp.IsZero())

			got := make(map[string]HealthStatus, len(result.Checks))
			for name, c := range result.Checks {
				got[name] = c.Status
				if c.Status != HealthStatusHealthy {
					assert.Equal(t, unreachable.Error(), c.Message)
				}
			}

			assert.Equal(t, tt.wantChecks, got)
		})
	}
}

func TestRegistry_CheckTimeout(t *testing.T) {
	registry := NewHealthRegistry(WithCheckTimeout(20 * time.Millisecond))
	require.NoError(t, registry.Register(blockingChecker{name: "redis"}))
	require.NoError(t, registry.Register(stubChecker{name: "quote-source", advisory: true}))

	start := time.Now()
	result := registry.CheckAll(context.Background())

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, HealthStatusUnhealthy, result.Status)
	assert.Equal(t, context.DeadlineExceeded.Error(), result.Checks["redis"].Message)
	assert.Equal(t, HealthStatusHealthy, result.Checks["quote-source"].Status)
}

func TestWithCheckTimeout_IgnoresNonPositive(t *testing.T) {
	assert.Equal(t, defaultCheckTimeout, NewHealthRegistry(WithCheckTimeout(0)).timeout)
	assert.Equal(t, time.Second, NewHealthRegistry(WithCheckTimeout(time.Second)).timeout)
}
