package match

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// CandidateSource is the slice of the record store the matcher needs:
// country-blocked retrieval of candidate records. Blocking on the country
// code is what keeps the comparison cost below O(n^2) over the whole
// population; no other blocking predicate is applied.
type CandidateSource interface {
	ListByCountry(ctx context.Context, country string) ([]CandidateRecord, error)
}

// Matcher finds potential duplicates for a target record within its
// country block.
type Matcher struct {
	source CandidateSource
	log    *zap.Logger
}

// NewMatcher creates a matcher over the given candidate source.
func NewMatcher(source CandidateSource, log *zap.Logger) *Matcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Matcher{source: source, log: log}
}

// FindPotentialMatches returns every candidate in the target's country
// block scoring within the review band of threshold, sorted descending by
// overall score. Candidates at or above the threshold itself carry
// IsMatch=true; the rest of the band stays visible for manual review.
func (m *Matcher) FindPotentialMatches(ctx context.Context, target CandidateRecord, threshold int) ([]Result, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}

	candidates, err := m.source.ListByCountry(ctx, target.Country)
	if err != nil {
		return nil, fmt.Errorf("candidate retrieval for country %q: %w", target.Country, err)
	}

	band := float64(threshold) * ReviewBand
	results := make([]Result, 0, len(candidates))
	for _, cand := range candidates {
		if cand.ID == target.ID {
			continue
		}
		if err := cand.Validate(); err != nil {
			m.log.Warn("skipping unmatchable candidate",
				zap.Int64("supplier_id", cand.ID),
				zap.Error(err))
			continue
		}
		res := Compare(target, cand, threshold)
		if float64(res.Score.Overall) >= band {
			results = append(results, res)
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score.Overall > results[j].Score.Overall
	})
	return results, nil
}
