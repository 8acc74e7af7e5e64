// Package audit persists deduplication run summaries and per-merge
// decisions so destructive merges stay reconstructable after the fact.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Tracker writes the audit trail. A nil Tracker disables auditing, which
// is what dry runs and the in-memory tests use.
type Tracker struct {
	db *sql.DB
}

// NewTracker creates an audit tracker over an open connection.
func NewTracker(db *sql.DB) *Tracker {
	return &Tracker{db: db}
}

// RunRecord summarizes one deduplication invocation.
type RunRecord struct {
	RunID        uuid.UUID
	Threshold    int
	TotalRecords int
	GroupCount   int
	MergedCount  int
	StartedAt    time.Time
	FinishedAt   time.Time
}

// MergeRecord is one executed (or failed) merge decision.
type MergeRecord struct {
	RunID       uuid.UUID
	PrimaryID   int64
	DuplicateID int64
	Score       int
	Outcome     string // "merged" | "failed" | "conflict"
	Detail      string
	MergedAt    time.Time
}

// StartRun opens the audit trail for one run. Nil trackers ignore the call.
func (t *Tracker) StartRun(ctx context.Context, runID uuid.UUID, threshold int, startedAt time.Time) error {
	if t == nil || t.db == nil {
		return nil
	}
	_, err := t.db.ExecContext(ctx, `
		INSERT INTO dedup_run (run_id, threshold, started_at)
		VALUES ($1, $2, $3)
	`, runID, threshold, startedAt)
	if err != nil {
		return fmt.Errorf("insert dedup_run %s: %w", runID, err)
	}
	return nil
}

// CompleteRun records the final counters for a run.
func (t *Tracker) CompleteRun(ctx context.Context, rec RunRecord) error {
	if t == nil || t.db == nil {
		return nil
	}
	_, err := t.db.ExecContext(ctx, `
		UPDATE dedup_run SET
			total_records = $2,
			group_count = $3,
			merged_count = $4,
			finished_at = $5
		WHERE run_id = $1
	`, rec.RunID, rec.TotalRecords, rec.GroupCount, rec.MergedCount, rec.FinishedAt)
	if err != nil {
		return fmt.Errorf("complete dedup_run %s: %w", rec.RunID, err)
	}
	return nil
}

// RecordMerge inserts one merge_audit row. Nil trackers ignore the call.
func (t *Tracker) RecordMerge(ctx context.Context, rec MergeRecord) error {
	if t == nil || t.db == nil {
		return nil
	}
	_, err := t.db.ExecContext(ctx, `
		INSERT INTO merge_audit
			(run_id, primary_id, duplicate_id, score, outcome, detail, merged_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, rec.RunID, rec.PrimaryID, rec.DuplicateID, rec.Score, rec.Outcome,
		rec.Detail, rec.MergedAt)
	if err != nil {
		return fmt.Errorf("insert merge_audit for %d -> %d: %w", rec.DuplicateID, rec.PrimaryID, err)
	}
	return nil
}
