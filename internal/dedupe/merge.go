package dedupe

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tradescope/supplier-match/internal/audit"
	"github.com/tradescope/supplier-match/internal/match"
	"github.com/tradescope/supplier-match/internal/store"
)

// Fusion conflicts. A conflict aborts the remainder of the affected
// group's merge, never the whole run.
var (
	ErrSelfMerge       = errors.New("refusing to merge a supplier into itself")
	ErrAlreadyAbsorbed = errors.New("duplicate already absorbed by another group in this run")
)

// MergeFailure records one duplicate whose merge did not complete.
type MergeFailure struct {
	PrimaryID   int64
	DuplicateID int64
	Reason      string
}

// Merger executes the destructive fusion of duplicate groups.
type Merger struct {
	store   store.SupplierStore
	tracker Tracker
	log     *zap.Logger
}

// NewMerger creates a merger. The tracker may be nil.
func NewMerger(s store.SupplierStore, tracker Tracker, log *zap.Logger) *Merger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Merger{store: s, tracker: tracker, log: log}
}

// MergeGroup fuses every duplicate in the group into its primary and
// deletes it. Each duplicate is one store transaction. A retrieval failure
// skips just that duplicate; a fusion conflict or write failure abandons
// the rest of the group. The absorbed map spans the whole run and guards
// against a duplicate being claimed by two groups.
func (m *Merger) MergeGroup(ctx context.Context, runID uuid.UUID, group match.DuplicateGroup, absorbed map[int64]int64) (int, []MergeFailure) {
	merged := 0
	var failures []MergeFailure

	for _, dup := range group.Duplicates {
		if err := ctx.Err(); err != nil {
			failures = append(failures, failure(group.PrimaryID, dup.ID, err))
			return merged, failures
		}

		if err := m.checkConflict(group.PrimaryID, dup.ID, absorbed); err != nil {
			failures = append(failures, failure(group.PrimaryID, dup.ID, err))
			m.recordMerge(ctx, runID, group.PrimaryID, dup, "conflict", err)
			m.log.Warn("fusion conflict, abandoning group",
				zap.Int64("primary_id", group.PrimaryID),
				zap.Int64("duplicate_id", dup.ID),
				zap.Error(err))
			return merged, failures
		}

		fused, err := m.fetchAndFuse(ctx, group.PrimaryID, dup.ID)
		if err != nil {
			// Retrieval failure: skip just this duplicate, keep the group.
			failures = append(failures, failure(group.PrimaryID, dup.ID, err))
			m.recordMerge(ctx, runID, group.PrimaryID, dup, "failed", err)
			m.log.Warn("skipping unreadable duplicate",
				zap.Int64("duplicate_id", dup.ID),
				zap.Error(err))
			continue
		}

		if err := m.store.MergeInto(ctx, fused, dup.ID); err != nil {
			// Write failure: the store rolled this duplicate back; move on
			// to the next group.
			failures = append(failures, failure(group.PrimaryID, dup.ID, err))
			m.recordMerge(ctx, runID, group.PrimaryID, dup, "failed", err)
			m.log.Warn("merge write failed, abandoning group",
				zap.Int64("primary_id", group.PrimaryID),
				zap.Int64("duplicate_id", dup.ID),
				zap.Error(err))
			return merged, failures
		}

		absorbed[dup.ID] = group.PrimaryID
		merged++
		m.recordMerge(ctx, runID, group.PrimaryID, dup, "merged", nil)
	}

	return merged, failures
}

func (m *Merger) checkConflict(primaryID, duplicateID int64, absorbed map[int64]int64) error {
	if duplicateID == primaryID {
		return ErrSelfMerge
	}
	if owner, ok := absorbed[duplicateID]; ok && owner != primaryID {
		return fmt.Errorf("%w (supplier %d taken by %d)", ErrAlreadyAbsorbed, duplicateID, owner)
	}
	return nil
}

func (m *Merger) fetchAndFuse(ctx context.Context, primaryID, duplicateID int64) (*store.SupplierRecord, error) {
	primary, err := m.store.Get(ctx, primaryID)
	if err != nil {
		return nil, fmt.Errorf("fetch primary: %w", err)
	}
	dup, err := m.store.Get(ctx, duplicateID)
	if err != nil {
		return nil, fmt.Errorf("fetch duplicate: %w", err)
	}
	return Fuse(primary, dup), nil
}

// Fuse combines a duplicate into a copy of the primary. Set-valued fields
// take the union, scalar optional fields keep the primary's value when
// present, quality scores take the maximum. Child collections are handled
// by the store at write time, not here.
func Fuse(primary, dup *store.SupplierRecord) *store.SupplierRecord {
	fused := *primary

	fused.Certifications = unionStrings(primary.Certifications, dup.Certifications)
	fused.Materials = unionStrings(primary.Materials, dup.Materials)
	fused.HTSChapters = unionStrings(primary.HTSChapters, dup.HTSChapters)
	fused.ProductCategories = unionStrings(primary.ProductCategories, dup.ProductCategories)

	fused.City = firstNonEmpty(primary.City, dup.City)
	fused.Website = firstNonEmpty(primary.Website, dup.Website)
	fused.Email = firstNonEmpty(primary.Email, dup.Email)
	fused.Phone = firstNonEmpty(primary.Phone, dup.Phone)
	fused.Description = firstNonEmpty(primary.Description, dup.Description)

	fused.ReliabilityScore = math.Max(primary.ReliabilityScore, dup.ReliabilityScore)
	fused.QualityScore = math.Max(primary.QualityScore, dup.QualityScore)
	fused.OverallScore = math.Max(primary.OverallScore, dup.OverallScore)

	return &fused
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range a {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, s := range b {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func failure(primaryID, duplicateID int64, err error) MergeFailure {
	return MergeFailure{
		PrimaryID:   primaryID,
		DuplicateID: duplicateID,
		Reason:      err.Error(),
	}
}

func (m *Merger) recordMerge(ctx context.Context, runID uuid.UUID, primaryID int64, dup match.DuplicateRef, outcome string, cause error) {
	if m.tracker == nil {
		return
	}
	detail := ""
	if cause != nil {
		detail = cause.Error()
	}
	err := m.tracker.RecordMerge(ctx, audit.MergeRecord{
		RunID:       runID,
		PrimaryID:   primaryID,
		DuplicateID: dup.ID,
		Score:       dup.Score,
		Outcome:     outcome,
		Detail:      detail,
		MergedAt:    time.Now().UTC(),
	})
	if err != nil {
		m.log.Warn("audit write failed", zap.Error(err))
	}
}
