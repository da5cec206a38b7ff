package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jsamuelsen/quote-sync/internal/domain"
	"github.com/jsamuelsen/quote-sync/internal/platform/logging"
	"github.com/jsamuelsen/quote-sync/internal/platform/telemetry"
	"github.com/jsamuelsen/quote-sync/internal/ports"
)

// RunState is the position of the reconciler in a single run.
type RunState int

const (
	StateIdle RunState = iota
	StateFetching
	StateComparing
	StateAutoMerging
	StateAwaitingResolution
	StateApplying
)

// String returns the state name used in logs and API responses.
func (s RunState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateComparing:
		return "comparing"
	case StateAutoMerging:
		return "auto_merging"
	case StateAwaitingResolution:
		return "awaiting_resolution"
	case StateApplying:
		return "applying"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Outcome summarises how a run or resolution ended.
type Outcome string

const (
	OutcomeMerged             Outcome = "merged"
	OutcomeAwaitingResolution Outcome = "awaiting_resolution"
	OutcomeResolved           Outcome = "resolved"
	OutcomeSkipped            Outcome = "skipped"
	OutcomeFailed             Outcome = "failed"
)

// Report describes a finished Run or Resolve call.
type Report struct {
	RunID      string                 `json:"runId,omitempty"`
	Outcome    Outcome                `json:"outcome"`
	State      string                 `json:"state"`
	Added      int                    `json:"added"`
	Unchanged  int                    `json:"unchanged"`
	Duplicates int                    `json:"duplicates"`
	Conflicts  []domain.ConflictEntry `json:"conflicts,omitempty"`
	Policy     domain.Policy          `json:"policy,omitempty"`
	Replaced   int                    `json:"replaced"`
	Inserted   int                    `json:"inserted"`
	Error      string                 `json:"error,omitempty"`
	StartedAt  time.Time              `json:"startedAt"`
	FinishedAt time.Time              `json:"finishedAt"`
}

// CompletionFunc is told about every run that reached the store: merged or resolved.
type CompletionFunc func(ctx context.Context, report Report)

// pendingRun is a paused run. generation is the store generation its conflicts
// were detected against.
type pendingRun struct {
	id         string
	startedAt  time.Time
	added      []domain.Quote
	conflicts  []domain.ConflictEntry
	generation uint64
}

// Reconciler compares the store against remote snapshots and applies merge decisions.
// At most one run is in flight; overlapping requests are skipped.
type Reconciler struct {
	store        *QuoteStore
	source       ports.QuoteSource
	sourceName   string
	fetchTimeout time.Duration
	maxRetries   uint64
	retryBase    time.Duration
	logger       *slog.Logger
	metrics      *telemetry.SyncMetrics
	tracer       trace.Tracer
	now          func() time.Time

	mu        sync.Mutex
	state     RunState
	pending   *pendingRun
	listeners []CompletionFunc
}

// ReconcilerConfig contains the dependencies of a Reconciler.
type ReconcilerConfig struct {
	Store  *QuoteStore
	Source ports.QuoteSource
	// SourceName labels network errors and spans.
	SourceName string
	// FetchTimeout bounds the whole fetch step including retries.
	FetchTimeout time.Duration
	// MaxRetries is the number of extra fetch attempts after a network error.
	MaxRetries uint64
	// RetryBase is the first Fibonacci backoff interval.
	RetryBase time.Duration
	Logger    *slog.Logger
	Metrics   *telemetry.SyncMetrics
	Clock     func() time.Time
}

// Default reconciler settings.
const (
	DefaultFetchTimeout = 10 * time.Second
	DefaultRetryBase    = 200 * time.Millisecond
)

// NewReconciler creates a reconciler in the idle state.
func NewReconciler(cfg ReconcilerConfig) *Reconciler {
	if cfg.Store == nil {
		panic("app: Reconciler requires a QuoteStore")
	}

	if cfg.Source == nil {
		panic("app: Reconciler requires a QuoteSource")
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}

	if cfg.RetryBase <= 0 {
		cfg.RetryBase = DefaultRetryBase
	}

	if cfg.SourceName == "" {
		cfg.SourceName = "remote"
	}

	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	return &Reconciler{
		store:        cfg.Store,
		source:       cfg.Source,
		sourceName:   cfg.SourceName,
		fetchTimeout: cfg.FetchTimeout,
		maxRetries:   cfg.MaxRetries,
		retryBase:    cfg.RetryBase,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
		tracer:       telemetry.Tracer(),
		now:          cfg.Clock,
	}
}

// OnComplete registers fn to run after every merged or resolved run.
func (r *Reconciler) OnComplete(fn CompletionFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.listeners = append(r.listeners, fn)
}

// State returns the current run state.
func (r *Reconciler) State() RunState {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.state
}

// Pending returns the conflicts awaiting a decision, or nil.
func (r *Reconciler) Pending() []domain.ConflictEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pending == nil {
		return nil
	}

	out := make([]domain.ConflictEntry, len(r.pending.conflicts))
	copy(out, r.pending.conflicts)

	return out
}

// Run performs one reconciliation: fetch, compare, then auto-merge or pause.
// A run requested while another is in progress, or while conflicts await a decision, is skipped.
// On a fetch failure the store is untouched and the returned error is a domain.NetworkError.
func (r *Reconciler) Run(ctx context.Context) (Report, error) {
	started := r.now()

	r.mu.Lock()
	if r.state != StateIdle {
		state := r.state
		r.mu.Unlock()

		r.logger.InfoContext(ctx, "sync skipped", slog.String("state", state.String()))
		r.metrics.ObserveRun(string(OutcomeSkipped), 0)

		return Report{Outcome: OutcomeSkipped, State: state.String(), StartedAt: started, FinishedAt: r.now()}, nil
	}

	r.state = StateFetching
	r.mu.Unlock()

	runID := uuid.NewString()
	logger := r.logger.With(slog.String("run_id", runID))

	ctx, span := r.tracer.Start(ctx, "reconciler.Run", trace.WithAttributes(
		attribute.String("sync.run_id", runID),
		attribute.String("sync.source", r.sourceName),
	))
	defer span.End()

	report := Report{RunID: runID, StartedAt: started}

	snapshot, err := r.fetch(ctx)
	if err != nil {
		r.setState(StateIdle)

		report.Outcome = OutcomeFailed
		report.State = StateIdle.String()
		report.Error = err.Error()
		report.FinishedAt = r.now()

		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		logger.WarnContext(ctx, "sync failed", slog.Any("error", err))
		r.metrics.ObserveRun(string(OutcomeFailed), report.FinishedAt.Sub(started))

		return report, err
	}

	var (
		cmp        domain.Comparison
		generation uint64
	)

	errPaused := errors.New("paused")

	err = r.store.Update(func(tx *StoreTx) error {
		r.setState(StateComparing)
		cmp = domain.Compare(tx.Quotes(), snapshot, r.store.Identity())
		generation = tx.Generation()

		report.Unchanged = len(cmp.Unchanged)
		report.Duplicates = len(cmp.Duplicates)

		if cmp.HasConflicts() {
			return errPaused
		}

		r.setState(StateAutoMerging)
		r.setState(StateApplying)

		for _, q := range cmp.New {
			tx.Insert(q)
		}

		report.Added = len(cmp.New)

		return nil
	})

	if errors.Is(err, errPaused) {
		r.mu.Lock()
		r.pending = &pendingRun{
			id:         runID,
			startedAt:  started,
			added:      cmp.New,
			conflicts:  cmp.Conflicts,
			generation: generation,
		}
		r.state = StateAwaitingResolution
		r.mu.Unlock()

		report.Outcome = OutcomeAwaitingResolution
		report.State = StateAwaitingResolution.String()
		report.Conflicts = cmp.Conflicts
		report.FinishedAt = r.now()

		span.SetAttributes(attribute.Int("sync.conflicts", len(cmp.Conflicts)))
		logger.InfoContext(ctx, "sync paused for conflicts",
			slog.Int("conflicts", len(cmp.Conflicts)),
			slog.Int("new", len(cmp.New)),
		)
		r.metrics.AddConflicts(len(cmp.Conflicts))
		r.metrics.ObserveRun(string(OutcomeAwaitingResolution), report.FinishedAt.Sub(started))

		return report, nil
	}

	r.setState(StateIdle)

	if err != nil {
		report.Outcome = OutcomeFailed
		report.State = StateIdle.String()
		report.Error = err.Error()
		report.FinishedAt = r.now()

		return report, err
	}

	report.Outcome = OutcomeMerged
	report.State = StateIdle.String()
	report.FinishedAt = r.now()

	span.SetAttributes(attribute.Int("sync.added", report.Added))
	logger.InfoContext(ctx, "sync merged",
		slog.Int("added", report.Added),
		slog.Int("unchanged", report.Unchanged),
	)
	r.metrics.AddMerged(report.Added)
	r.metrics.ObserveRun(string(OutcomeMerged), report.FinishedAt.Sub(started))
	r.metrics.SetStoredQuotes(r.store.Len())
	r.notify(ctx, report)

	return report, nil
}

var errCollectionReplaced = errors.New("collection replaced since conflicts were detected")

// Resolve applies policy to the pending conflict set, together with the new records
// of the paused run. New records are added under every policy, prefer-local included.
// It fails with a domain.ConflictError when nothing is pending, or when the collection
// was replaced after the run paused; the stale set is then dropped and a new run is needed.
func (r *Reconciler) Resolve(ctx context.Context, policy domain.Policy) (Report, error) {
	policy, err := domain.ParsePolicy(string(policy))
	if err != nil {
		return Report{}, err
	}

	r.mu.Lock()
	if r.state != StateAwaitingResolution || r.pending == nil {
		state := r.state
		r.mu.Unlock()

		return Report{}, domain.NewConflictErrorWithDetails("sync", "no conflicts awaiting resolution", state.String())
	}

	pending := r.pending
	r.state = StateApplying
	r.mu.Unlock()

	ctx, span := r.tracer.Start(ctx, "reconciler.Resolve", trace.WithAttributes(
		attribute.String("sync.run_id", pending.id),
		attribute.String("sync.policy", string(policy)),
	))
	defer span.End()

	plan := policy.Plan(pending.conflicts)
	report := Report{
		RunID:     pending.id,
		Policy:    policy,
		Conflicts: pending.conflicts,
		StartedAt: pending.startedAt,
	}

	err = r.store.Update(func(tx *StoreTx) error {
		if tx.Generation() != pending.generation {
			return errCollectionReplaced
		}

		for _, q := range pending.added {
			tx.Insert(q)
		}

		for _, q := range plan.Upserts {
			if tx.Upsert(q) {
				report.Replaced++
			} else {
				report.Inserted++
			}
		}

		for _, q := range plan.Inserts {
			tx.Insert(q)
			report.Inserted++
		}

		return nil
	})
	if errors.Is(err, errCollectionReplaced) {
		r.mu.Lock()
		r.pending = nil
		r.state = StateIdle
		r.mu.Unlock()

		span.RecordError(err)
		r.logger.WarnContext(ctx, "pending conflicts dropped",
			slog.String("run_id", pending.id),
			slog.Any("error", err),
		)

		return Report{}, domain.NewConflictErrorWithDetails("sync", err.Error(), pending.id)
	}

	if err != nil {
		r.setState(StateAwaitingResolution)
		span.RecordError(err)

		return report, err
	}

	report.Added = len(pending.added)

	r.mu.Lock()
	r.pending = nil
	r.state = StateIdle
	r.mu.Unlock()

	report.Outcome = OutcomeResolved
	report.State = StateIdle.String()
	report.FinishedAt = r.now()

	r.logger.InfoContext(ctx, "sync conflicts resolved",
		slog.String("run_id", pending.id),
		slog.String("policy", string(policy)),
		slog.Int("replaced", report.Replaced),
		slog.Int("inserted", report.Inserted),
	)
	r.metrics.AddMerged(report.Added + report.Replaced + report.Inserted)
	r.metrics.ObserveRun(string(OutcomeResolved), report.FinishedAt.Sub(pending.startedAt))
	r.metrics.SetStoredQuotes(r.store.Len())
	r.notify(ctx, report)

	return report, nil
}

// Discard drops a pending conflict set without touching the store.
// It reports whether anything was pending.
func (r *Reconciler) Discard() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateAwaitingResolution {
		return false
	}

	r.pending = nil
	r.state = StateIdle

	return true
}

func (r *Reconciler) fetch(ctx context.Context) ([]domain.Quote, error) {
	ctx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
	defer cancel()

	var snapshot []domain.Quote

	backoff := retry.WithMaxRetries(r.maxRetries, retry.NewFibonacci(r.retryBase))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		r.metrics.IncFetchAttempt()

		quotes, err := r.source.Fetch(ctx)
		if err != nil {
			if domain.IsNetwork(err) && ctx.Err() == nil {
				return retry.RetryableError(err)
			}

			return err
		}

		snapshot = quotes

		return nil
	})
	if err != nil {
		if !domain.IsNetwork(err) {
			err = domain.NewNetworkError(r.sourceName, err)
		}

		return nil, err
	}

	return r.usable(ctx, snapshot), nil
}

// usable drops remote records that could never be stored.
func (r *Reconciler) usable(ctx context.Context, snapshot []domain.Quote) []domain.Quote {
	out := snapshot[:0:0]

	for _, q := range snapshot {
		if err := q.Validate(); err != nil {
			r.logger.Log(ctx, logging.LevelTrace, "dropping remote record",
				slog.String("id", q.ID),
				slog.Any("error", err),
			)

			continue
		}

		out = append(out, q)
	}

	return out
}

func (r *Reconciler) setState(s RunState) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

func (r *Reconciler) notify(ctx context.Context, report Report) {
	r.mu.Lock()
	listeners := make([]CompletionFunc, len(r.listeners))
	copy(listeners, r.listeners)
	r.mu.Unlock()

	for _, fn := range listeners {
		fn(ctx, report)
	}
}
