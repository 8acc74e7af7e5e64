// Package dedupe discovers duplicate supplier groups and executes their
// destructive merge.
package dedupe

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/tradescope/supplier-match/internal/match"
	"github.com/tradescope/supplier-match/internal/store"
)

// Builder discovers duplicate groups across the whole supplier population.
type Builder struct {
	store   store.SupplierStore
	matcher *match.Matcher
	log     *zap.Logger
}

// NewBuilder creates a group builder over the given store.
func NewBuilder(s store.SupplierStore, log *zap.Logger) *Builder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Builder{
		store:   s,
		matcher: match.NewMatcher(s, log),
		log:     log,
	}
}

// FindDuplicateGroups walks the population in creation order and greedily
// absorbs every directly-matching unprocessed candidate into the current
// record, which becomes the group's primary. The visited set is local to
// this invocation. This is a single greedy pass, not connected components:
// for chained similarities, which group a record lands in depends on which
// anchor reached it first in creation order.
//
// Records that fail validation or whose candidate search fails are
// skipped, logged and counted; they never abort the walk. Cancellation is
// checked between records.
func (b *Builder) FindDuplicateGroups(ctx context.Context, threshold int) ([]match.DuplicateGroup, int, error) {
	records, err := b.store.ListAll(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("listing supplier population: %w", err)
	}

	processed := make(map[int64]bool, len(records))
	var groups []match.DuplicateGroup
	skipped := 0

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return groups, skipped, err
		}
		if processed[rec.ID] {
			continue
		}
		processed[rec.ID] = true

		if err := rec.Validate(); err != nil {
			skipped++
			b.log.Warn("skipping unmatchable supplier",
				zap.Int64("supplier_id", rec.ID),
				zap.Error(err))
			continue
		}

		results, err := b.matcher.FindPotentialMatches(ctx, rec, threshold)
		if err != nil {
			skipped++
			b.log.Warn("candidate search failed",
				zap.Int64("supplier_id", rec.ID),
				zap.Error(err))
			continue
		}

		var dups []match.DuplicateRef
		for _, res := range results {
			if !res.IsMatch || processed[res.Record.ID] {
				continue
			}
			processed[res.Record.ID] = true
			dups = append(dups, match.DuplicateRef{
				ID:    res.Record.ID,
				Name:  res.Record.Name,
				Score: res.Score.Overall,
			})
		}

		if len(dups) > 0 {
			groups = append(groups, match.DuplicateGroup{
				PrimaryID:   rec.ID,
				PrimaryName: rec.Name,
				Duplicates:  dups,
			})
		}
	}

	return groups, skipped, nil
}
