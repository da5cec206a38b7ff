package app

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/jsamuelsen/quote-sync/internal/domain"
	"github.com/jsamuelsen/quote-sync/internal/ports"
)

// SyncStatus is the user-facing result of the latest reconciliation.
type SyncStatus string

const (
	SyncStatusIdle          SyncStatus = "idle"
	SyncStatusSynced        SyncStatus = "synced"
	SyncStatusAwaiting      SyncStatus = "awaiting_resolution"
	SyncStatusFailed        SyncStatus = "sync failed"
	SyncStatusPersistFailed SyncStatus = "persist failed"
)

// SyncSnapshot is what a decision surface needs to render sync state.
type SyncSnapshot struct {
	Status     SyncStatus             `json:"status"`
	State      string                 `json:"state"`
	LastSyncAt *time.Time             `json:"lastSyncAt,omitempty"`
	LastError  string                 `json:"lastError,omitempty"`
	Pending    []domain.ConflictEntry `json:"pending,omitempty"`
}

// SyncService drives the reconciler and persists the store after every completed run.
type SyncService struct {
	reconciler *Reconciler
	store      *QuoteStore
	blobs      ports.BlobStore
	logger     *slog.Logger
	now        func() time.Time

	mu        sync.RWMutex
	status    SyncStatus
	lastError string
}

// SyncServiceConfig contains the dependencies of a SyncService.
type SyncServiceConfig struct {
	Reconciler *Reconciler
	Store      *QuoteStore
	Blobs      ports.BlobStore
	Logger     *slog.Logger
	Clock      func() time.Time
}

// NewSyncService wires persistence into the reconciler's completion signal.
func NewSyncService(cfg SyncServiceConfig) *SyncService {
	if cfg.Reconciler == nil || cfg.Store == nil || cfg.Blobs == nil {
		panic("app: SyncService requires a Reconciler, QuoteStore and BlobStore")
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	s := &SyncService{
		reconciler: cfg.Reconciler,
		store:      cfg.Store,
		blobs:      cfg.Blobs,
		logger:     cfg.Logger,
		now:        cfg.Clock,
		status:     SyncStatusIdle,
	}

	cfg.Reconciler.OnComplete(s.persist)

	return s
}

// Sync runs one reconciliation. Network failures are reported through the status
// and the returned error; they never leave the store partially merged.
func (s *SyncService) Sync(ctx context.Context) (Report, error) {
	report, err := s.reconciler.Run(ctx)

	switch report.Outcome {
	case OutcomeFailed:
		s.setStatus(SyncStatusFailed, report.Error)
	case OutcomeAwaitingResolution:
		s.setStatus(SyncStatusAwaiting, "")
	case OutcomeMerged, OutcomeResolved, OutcomeSkipped:
	}

	return report, err
}

// Resolve applies the caller's policy to the pending conflicts. When the
// reconciler dropped a stale set, the status returns to idle.
func (s *SyncService) Resolve(ctx context.Context, policy domain.Policy) (Report, error) {
	report, err := s.reconciler.Resolve(ctx, policy)
	if err != nil && s.reconciler.State() == StateIdle {
		s.mu.Lock()
		if s.status == SyncStatusAwaiting {
			s.status = SyncStatusIdle
		}
		s.mu.Unlock()
	}

	return report, err
}

// Discard abandons the pending conflicts.
func (s *SyncService) Discard(ctx context.Context) bool {
	discarded := s.reconciler.Discard()
	if discarded {
		s.logger.InfoContext(ctx, "pending conflicts discarded")
		s.setStatus(SyncStatusIdle, "")
	}

	return discarded
}

// Pending returns the conflicts awaiting a decision.
func (s *SyncService) Pending() []domain.ConflictEntry {
	return s.reconciler.Pending()
}

// Snapshot reports the current sync status.
func (s *SyncService) Snapshot(ctx context.Context) (SyncSnapshot, error) {
	last, ok, err := s.LastSyncTime(ctx)
	if err != nil {
		return SyncSnapshot{}, err
	}

	s.mu.RLock()
	snap := SyncSnapshot{
		Status:    s.status,
		State:     s.reconciler.State().String(),
		LastError: s.lastError,
		Pending:   s.reconciler.Pending(),
	}
	s.mu.RUnlock()

	if ok {
		snap.LastSyncAt = &last
	}

	return snap, nil
}

// LastSyncTime reads the time of the last successful sync.
func (s *SyncService) LastSyncTime(ctx context.Context) (time.Time, bool, error) {
	data, ok, err := s.blobs.Get(ctx, ports.KeyLastSyncTime)
	if err != nil || !ok {
		return time.Time{}, false, err
	}

	ms, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("reading %s: %w", ports.KeyLastSyncTime, domain.NewFormatError(err.Error()))
	}

	return time.UnixMilli(ms).UTC(), true, nil
}

func (s *SyncService) persist(ctx context.Context, report Report) {
	err := s.store.Save(ctx)
	if err == nil {
		stamp := strconv.FormatInt(s.now().UnixMilli(), 10)
		err = s.blobs.Set(ctx, ports.KeyLastSyncTime, []byte(stamp))
	}

	if err != nil {
		s.logger.ErrorContext(ctx, "failed to persist after sync",
			slog.String("run_id", report.RunID),
			slog.Any("error", err),
		)
		s.setStatus(SyncStatusPersistFailed, err.Error())

		return
	}

	s.setStatus(SyncStatusSynced, "")
}

func (s *SyncService) setStatus(status SyncStatus, lastError string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status = status
	s.lastError = lastError
}
