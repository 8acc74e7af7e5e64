package normalize

import (
	"strings"
	"unicode"
)

// legalSuffixes is the fixed vocabulary of legal and generic business
// suffix tokens stripped from company names before comparison. Whole-word
// matching only, so "Colima" is never touched by "co".
var legalSuffixes = map[string]bool{
	"co": true, "corp": true, "corporation": true,
	"inc": true, "incorporated": true,
	"ltd": true, "limited": true,
	"llc": true, "llp": true, "plc": true,
	"gmbh": true, "ag": true, "sa": true, "srl": true,
	"bv": true, "nv": true, "pte": true, "pty": true, "pvt": true,
	"kk": true, "ab": true, "oy": true, "as": true,
	"sdn": true, "bhd": true,
	"company": true, "trading": true,
	"manufacturing": true, "manufactory": true,
	"industries": true, "industrial": true,
	"enterprise": true, "enterprises": true,
	"group": true, "holdings": true, "holding": true,
	"international": true, "global": true,
	"imports": true, "exports": true, "import": true, "export": true,
}

// CompanyName canonicalizes a free-text organization name: lowercase,
// non-alphanumeric runes folded to spaces, legal suffix tokens removed,
// whitespace collapsed. Total (never fails) and idempotent.
func CompanyName(raw string) string {
	b := strings.Builder{}
	b.Grow(len(raw))
	for _, r := range strings.ToLower(raw) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}

	var kept []string
	for _, tok := range strings.Fields(b.String()) {
		if legalSuffixes[tok] {
			continue
		}
		kept = append(kept, tok)
	}
	return strings.Join(kept, " ")
}

// NoDomain is returned by Domain when no usable host can be extracted.
const NoDomain = "no domain"

// Domain extracts the bare host from a website value: scheme and leading
// "www." stripped, path and query cut off, lowercased. Never fails.
func Domain(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	s = strings.TrimPrefix(s, "www.")
	if i := strings.IndexAny(s, "/?"); i >= 0 {
		s = s[:i]
	}
	if s == "" {
		return NoDomain
	}
	return s
}
