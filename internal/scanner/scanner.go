// Package scanner emits events for domain rows that reached an outcome.
//
// A Scanner pages through the rows a Source reports as unprocessed, emits the
// events each row plans through the event emitter, and marks the row
// processed once every emission succeeded. Emission keys are stable across
// runs, so re-processing a row after a partial failure never double-emits.
package scanner

import (
	"context"
	"fmt"
	"time"

	"github.com/bissquit/eventrelay/internal/domain"
	"github.com/bissquit/eventrelay/internal/events"
	"github.com/bissquit/eventrelay/internal/pkg/ctxlog"
)

// Plan is the set of events a row produces.
type Plan struct {
	Inputs []events.EmitInput
	// Truncated counts recipients left out by a fan-out cap.
	Truncated int
}

// Source is a domain collection an outcome scanner reads.
type Source[T any] interface {
	// FetchUnprocessed returns up to limit rows whose outcome is due at now and
	// whose marker is unset, in a stable order.
	FetchUnprocessed(ctx context.Context, now time.Time, limit int) ([]T, error)
	RowID(row T) string
	// Prepare readies a row for planning, performing any per-row transition
	// atomically. skip=true leaves the row alone for this run.
	Prepare(ctx context.Context, row T, now time.Time) (prepared T, skip bool, err error)
	Plan(row T) Plan
	// MarkProcessed sets the row's marker and merges summary into its stored summary.
	MarkProcessed(ctx context.Context, row T, summary domain.OutcomeSummary, at time.Time) error
}

// Emitter is the subset of the event emitter scanners need.
type Emitter interface {
	Emit(ctx context.Context, input events.EmitInput) (events.EmitResult, error)
}

// Config contains scanner configuration.
type Config struct {
	MaxPerRun  int
	TimeBudget time.Duration
}

// DefaultConfig returns default scanner configuration.
func DefaultConfig() Config {
	return Config{
		MaxPerRun:  100,
		TimeBudget: 45 * time.Second,
	}
}

// RunStats summarizes one scanner run.
type RunStats struct {
	Fetched    int
	Processed  int
	Skipped    int
	Failed     int
	Emitted    int
	Duplicates int
	// Precondition is set when the run was skipped because storage was not ready.
	Precondition bool
}

// Scanner runs one Source.
type Scanner[T any] struct {
	name    string
	config  Config
	source  Source[T]
	emitter Emitter
	now     func() time.Time
}

// New creates a scanner named name over source.
func New[T any](name string, config Config, source Source[T], emitter Emitter) *Scanner[T] {
	if config.MaxPerRun <= 0 {
		config.MaxPerRun = DefaultConfig().MaxPerRun
	}
	if config.TimeBudget <= 0 {
		config.TimeBudget = DefaultConfig().TimeBudget
	}
	return &Scanner[T]{
		name:    name,
		config:  config,
		source:  source,
		emitter: emitter,
		now:     time.Now,
	}
}

// Name returns the scanner name.
func (s *Scanner[T]) Name() string {
	return s.name
}

// Run processes one page of unprocessed rows. It stops early, without error,
// once the time budget is spent; remaining rows are picked up next run.
func (s *Scanner[T]) Run(ctx context.Context) (RunStats, error) {
	var stats RunStats
	ctx, logger := ctxlog.With(ctx, "scanner", s.name)
	start := s.now().UTC()
	deadline := start.Add(s.config.TimeBudget)

	rows, err := s.source.FetchUnprocessed(ctx, start, s.config.MaxPerRun)
	if err != nil {
		if isPrecondition(err) {
			logger.Warn("scanner precondition not met, skipping run", "error", err)
			recordRun(s.name, "skipped")
			stats.Precondition = true
			return stats, nil
		}
		recordRun(s.name, "error")
		return stats, fmt.Errorf("fetch unprocessed rows: %w", err)
	}
	stats.Fetched = len(rows)

	for i, row := range rows {
		if ctx.Err() != nil || !s.now().Before(deadline) {
			logger.Info("scanner time budget exhausted",
				"handled", i,
				"remaining", len(rows)-i,
			)
			break
		}

		switch s.processRow(ctx, row, &stats) {
		case rowPrecondition:
			recordRun(s.name, "skipped")
			stats.Precondition = true
			return stats, nil
		case rowProcessed:
			stats.Processed++
			recordRow(s.name, "processed")
		case rowSkipped:
			stats.Skipped++
			recordRow(s.name, "skipped")
		case rowFailed:
			stats.Failed++
			recordRow(s.name, "failed")
		}
	}

	recordRun(s.name, "ok")
	if stats.Fetched > 0 {
		logger.Info("scanner run finished",
			"fetched", stats.Fetched,
			"processed", stats.Processed,
			"skipped", stats.Skipped,
			"failed", stats.Failed,
			"emitted", stats.Emitted,
		)
	}
	return stats, nil
}

type rowResult int

const (
	rowProcessed rowResult = iota
	rowSkipped
	rowFailed
	rowPrecondition
)

func (s *Scanner[T]) processRow(ctx context.Context, row T, stats *RunStats) rowResult {
	id := s.source.RowID(row)
	logger := ctxlog.FromContext(ctx).With("row_id", id)
	now := s.now().UTC()

	prepared, skip, err := s.source.Prepare(ctx, row, now)
	if err != nil {
		if isPrecondition(err) {
			logger.Warn("scanner precondition not met while preparing row, skipping run", "error", err)
			return rowPrecondition
		}
		logger.Error("failed to prepare row", "error", err)
		return rowFailed
	}
	if skip {
		logger.Debug("row skipped")
		return rowSkipped
	}

	plan := s.source.Plan(prepared)
	if plan.Truncated > 0 {
		logger.Warn("fan-out truncated",
			"emitting", len(plan.Inputs),
			"truncated", plan.Truncated,
		)
	}

	summary := domain.OutcomeSummary{Truncated: plan.Truncated}
	for _, input := range plan.Inputs {
		result, err := s.emitter.Emit(ctx, input)
		if err != nil {
			// The marker stays unset; stable keys make the retry safe.
			logger.Error("failed to emit outcome event",
				"type", input.Type,
				"target_user_id", input.TargetUserID,
				"error", err,
			)
			return rowFailed
		}
		recordEmitted(s.name, result.Created)
		if result.Created {
			summary.Emitted++
		} else {
			summary.Duplicates++
		}
	}
	stats.Emitted += summary.Emitted
	stats.Duplicates += summary.Duplicates

	if err := s.source.MarkProcessed(ctx, prepared, summary, now); err != nil {
		if isPrecondition(err) {
			logger.Warn("scanner precondition not met while marking row, skipping run", "error", err)
			return rowPrecondition
		}
		logger.Error("failed to mark row processed", "error", err)
		return rowFailed
	}
	return rowProcessed
}
