package match

import (
	"math"
	"strings"

	"github.com/tradescope/supplier-match/internal/normalize"
	"github.com/tradescope/supplier-match/internal/similarity"
)

// Composite weights. When both records carry a website the domain is a
// strong identity signal and takes weight from the location.
const (
	nameWeightWithSite     = 0.5
	websiteWeight          = 0.3
	locationWeightWithSite = 0.2

	nameWeight     = 0.7
	locationWeight = 0.3
)

func normalizedName(name string) string {
	return normalize.CompanyName(name)
}

// NameScore scores two organization names on [0,100] after
// canonicalization. A containment bonus covers parent/subsidiary naming
// such as "Acme" vs "Acme Trading Division".
func NameScore(a, b string) int {
	na := normalizedName(a)
	nb := normalizedName(b)
	if na == nb {
		return 100
	}

	score := int(math.Round(similarity.JaroWinkler(na, nb) * 100))
	if na != "" && nb != "" && (strings.Contains(na, nb) || strings.Contains(nb, na)) {
		score += 10
	}
	return clampScore(score)
}

// LocationScore scores country and city agreement. Different countries are
// never a location match; a missing city on either side is neutral.
func LocationScore(target, candidate CandidateRecord) int {
	if !strings.EqualFold(target.Country, candidate.Country) {
		return 0
	}
	if target.City == "" || candidate.City == "" {
		return 50
	}
	if strings.EqualFold(target.City, candidate.City) {
		return 100
	}
	jw := similarity.JaroWinkler(strings.ToLower(target.City), strings.ToLower(candidate.City))
	return clampScore(int(math.Round(50 + jw*50)))
}

// WebsiteScore scores domain agreement between two website values.
func WebsiteScore(a, b string) int {
	da := normalize.Domain(a)
	db := normalize.Domain(b)
	if da == normalize.NoDomain || db == normalize.NoDomain {
		return 0
	}
	if da == db {
		return 100
	}
	return clampScore(int(math.Round(similarity.JaroWinkler(da, db) * 100)))
}

// Compare scores candidate against target and classifies it at threshold.
func Compare(target, candidate CandidateRecord, threshold int) Result {
	s := Score{
		Name:     NameScore(target.Name, candidate.Name),
		Location: LocationScore(target, candidate),
		Website:  WebsiteScore(target.Website, candidate.Website),
	}

	if target.Website != "" && candidate.Website != "" {
		s.Overall = int(math.Round(
			nameWeightWithSite*float64(s.Name) +
				websiteWeight*float64(s.Website) +
				locationWeightWithSite*float64(s.Location)))
	} else {
		s.Overall = int(math.Round(
			nameWeight*float64(s.Name) + locationWeight*float64(s.Location)))
	}

	return Result{
		Record:  candidate,
		Score:   s,
		IsMatch: s.Overall >= threshold,
	}
}

func clampScore(s int) int {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}
