package dedupe

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tradescope/supplier-match/internal/audit"
	"github.com/tradescope/supplier-match/internal/match"
	"github.com/tradescope/supplier-match/internal/store"
)

// Summary is the result of one deduplication run. It is best-effort: a
// run that hit per-group failures still reports everything it completed.
type Summary struct {
	RunID        uuid.UUID
	Threshold    int
	DryRun       bool
	TotalRecords int
	Groups       []match.DuplicateGroup
	MergedCount  int
	Skipped      int
	Failures     []MergeFailure
	Elapsed      time.Duration
}

// Tracker is the audit surface a run writes to. *audit.Tracker
// implements it; nil disables auditing.
type Tracker interface {
	StartRun(ctx context.Context, runID uuid.UUID, threshold int, startedAt time.Time) error
	CompleteRun(ctx context.Context, rec audit.RunRecord) error
	RecordMerge(ctx context.Context, rec audit.MergeRecord) error
}

// Runner orchestrates duplicate discovery and merging. Only one
// deduplication pass may be active at a time; this is an operator batch
// job, not a request path.
type Runner struct {
	mu      sync.Mutex
	store   store.SupplierStore
	builder *Builder
	merger  *Merger
	tracker Tracker
	log     *zap.Logger
}

// NewRunner creates a runner. The tracker may be nil to disable auditing.
func NewRunner(s store.SupplierStore, tracker Tracker, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		store:   s,
		builder: NewBuilder(s, log),
		merger:  NewMerger(s, tracker, log),
		tracker: tracker,
		log:     log,
	}
}

// RunDeduplication discovers duplicate groups at the given threshold and,
// unless dryRun, merges every group. A dry run performs zero writes and
// reports the same groups a live run would act on. Only total inability to
// reach the record store is returned as an error.
func (r *Runner) RunDeduplication(ctx context.Context, threshold int, dryRun bool) (*Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	started := time.Now()
	summary := &Summary{
		RunID:     uuid.New(),
		Threshold: threshold,
		DryRun:    dryRun,
	}

	total, err := r.store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("record store unavailable: %w", err)
	}
	summary.TotalRecords = total

	if !dryRun && r.tracker != nil {
		if err := r.tracker.StartRun(ctx, summary.RunID, threshold, started); err != nil {
			r.log.Warn("audit write failed", zap.Error(err))
		}
	}

	groups, skipped, err := r.builder.FindDuplicateGroups(ctx, threshold)
	summary.Groups = groups
	summary.Skipped = skipped
	if err != nil {
		// Close the audit row with whatever was counted so far; an
		// aborted run must not leave it permanently open.
		if !dryRun {
			r.completeRun(ctx, summary, started)
		}
		summary.Elapsed = time.Since(started)
		return summary, err
	}

	if !dryRun {
		absorbed := make(map[int64]int64)
		for _, group := range groups {
			merged, failures := r.merger.MergeGroup(ctx, summary.RunID, group, absorbed)
			summary.MergedCount += merged
			summary.Failures = append(summary.Failures, failures...)
			if err := ctx.Err(); err != nil {
				r.completeRun(ctx, summary, started)
				summary.Elapsed = time.Since(started)
				return summary, err
			}
		}

		r.completeRun(ctx, summary, started)
	}

	summary.Elapsed = time.Since(started)
	r.log.Info("deduplication run complete",
		zap.String("run_id", summary.RunID.String()),
		zap.Int("threshold", threshold),
		zap.Bool("dry_run", dryRun),
		zap.Int("total_records", summary.TotalRecords),
		zap.Int("duplicate_groups", len(summary.Groups)),
		zap.Int("merged", summary.MergedCount),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failures", len(summary.Failures)),
		zap.Duration("elapsed", summary.Elapsed))
	return summary, nil
}

// completeRun finalizes the run's audit row. Detached from ctx's
// cancellation so a cancelled run still gets its counters written.
func (r *Runner) completeRun(ctx context.Context, summary *Summary, started time.Time) {
	if r.tracker == nil {
		return
	}
	err := r.tracker.CompleteRun(context.WithoutCancel(ctx), audit.RunRecord{
		RunID:        summary.RunID,
		Threshold:    summary.Threshold,
		TotalRecords: summary.TotalRecords,
		GroupCount:   len(summary.Groups),
		MergedCount:  summary.MergedCount,
		StartedAt:    started,
		FinishedAt:   time.Now(),
	})
	if err != nil {
		r.log.Warn("audit write failed", zap.Error(err))
	}
}
