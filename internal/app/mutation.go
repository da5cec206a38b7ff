package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jsamuelsen/quote-sync/internal/domain"
	"github.com/jsamuelsen/quote-sync/internal/platform/logging"
	"github.com/jsamuelsen/quote-sync/internal/platform/telemetry"
)

// Stage names one step of a Mutation.
type Stage string

// Stages in the order a Mutation runs them.
const (
	StageCheck   Stage = "check"
	StagePrepare Stage = "prepare"
	StageVerify  Stage = "verify"
	StageCommit  Stage = "commit"
)

// StageError reports which stage of which mutation failed.
type StageError struct {
	Mutation string
	Stage    Stage
	Err      error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Mutation, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// IsStageError reports whether err came out of a Mutation.
func IsStageError(err error) bool {
	var se *StageError

	return errors.As(err, &se)
}

// FailedStage returns the stage err failed in.
func FailedStage(err error) (Stage, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}

	return "", false
}

// Mutation is a change to persisted quotes. Check, Prepare and Verify must not
// touch stored state; Commit runs only once all three succeed. Nil stages are skipped.
type Mutation[I, P, O any] struct {
	Name    string
	Check   func(ctx context.Context, input I) error
	Prepare func(ctx context.Context, input I) (P, error)
	Verify  func(ctx context.Context, input I, prepared P) error
	Commit  func(ctx context.Context, input I, prepared P) error
	Report  func(input I, prepared P) O
}

// Mutator runs mutations with logging and a span per run.
type Mutator struct {
	logger *slog.Logger
	tracer trace.Tracer
}

// NewMutator creates a Mutator. A nil logger uses slog.Default.
func NewMutator(logger *slog.Logger) *Mutator {
	if logger == nil {
		logger = slog.Default()
	}

	return &Mutator{logger: logger, tracer: telemetry.Tracer()}
}

// Apply runs m against input. Failures come back as *StageError wrapping the stage's error.
func Apply[I, P, O any](ctx context.Context, mu *Mutator, m Mutation[I, P, O], input I) (O, error) {
	var (
		zero     O
		prepared P
	)

	started := time.Now()
	logger := logging.FromContextOr(ctx, mu.logger).With(slog.String("mutation", m.Name))

	ctx, span := mu.tracer.Start(ctx, "mutation."+m.Name)
	defer span.End()

	fail := func(stage Stage, err error) (O, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(stage))

		level := slog.LevelError
		if domain.IsValidation(err) || domain.IsFormat(err) {
			level = slog.LevelWarn
		}

		logger.Log(ctx, level, "mutation rejected",
			slog.String("stage", string(stage)),
			slog.Any("error", err),
		)

		return zero, &StageError{Mutation: m.Name, Stage: stage, Err: err}
	}

	if m.Check != nil {
		if err := m.Check(ctx, input); err != nil {
			return fail(StageCheck, err)
		}
	}

	if m.Prepare != nil {
		p, err := m.Prepare(ctx, input)
		if err != nil {
			return fail(StagePrepare, err)
		}

		prepared = p
	}

	if m.Verify != nil {
		if err := m.Verify(ctx, input, prepared); err != nil {
			return fail(StageVerify, err)
		}
	}

	span.AddEvent("verified")

	if m.Commit != nil {
		if err := m.Commit(ctx, input, prepared); err != nil {
			return fail(StageCommit, err)
		}
	}

	logger.InfoContext(ctx, "mutation committed", slog.Duration("duration", time.Since(started)))

	if m.Report == nil {
		return zero, nil
	}

	return m.Report(input, prepared), nil
}
