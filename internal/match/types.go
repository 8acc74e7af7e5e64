// Package match holds the typed record shapes and pairwise classification
// used by both deduplication and shipment linkage.
package match

import (
	"errors"
	"time"
)

// CandidateRecord is the minimal supplier shape used during matching.
type CandidateRecord struct {
	ID        int64
	Name      string
	Country   string
	City      string // optional, "" when unknown
	Website   string // optional, "" when unknown
	CreatedAt time.Time
}

// Score holds the per-field and composite scores, each in [0,100].
type Score struct {
	Name     int
	Location int
	Website  int
	Overall  int
}

// Result pairs a candidate with its score against a target record.
type Result struct {
	Record  CandidateRecord
	Score   Score
	IsMatch bool
}

// DuplicateRef identifies one absorbed duplicate within a group.
type DuplicateRef struct {
	ID    int64
	Name  string
	Score int
}

// DuplicateGroup is one primary record plus the duplicates it absorbed.
// The primary is always the group's earliest-created record.
type DuplicateGroup struct {
	PrimaryID   int64
	PrimaryName string
	Duplicates  []DuplicateRef
}

// Thresholds defines the overall-score cutoffs for the three operating
// modes of the engine.
type Thresholds struct {
	Dedupe  int // automatic deduplication
	Review  int // exploratory / manual review
	Linkage int // shipment-to-supplier linkage
}

// DefaultThresholds returns the standard operating cutoffs.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Dedupe:  80,
		Review:  70,
		Linkage: 75,
	}
}

// ReviewBand is the fraction of the threshold down to which near-miss
// candidates stay visible in FindPotentialMatches output.
const ReviewBand = 0.7

// Validation errors for records that cannot participate in matching.
var (
	ErrMissingName    = errors.New("record has no usable name")
	ErrMissingCountry = errors.New("record has no country code")
)

// Validate checks the fields matching depends on. A name consisting only
// of legal suffixes canonicalizes to nothing and is treated as missing.
func (r CandidateRecord) Validate() error {
	if normalizedName(r.Name) == "" {
		return ErrMissingName
	}
	if r.Country == "" {
		return ErrMissingCountry
	}
	return nil
}
