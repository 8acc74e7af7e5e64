package normalize

import (
	"testing"
)

func TestCompanyName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "legal suffix stripped",
			input: "Shenzhen Elite Electronics Ltd",
			want:  "shenzhen elite electronics",
		},
		{
			name:  "punctuation and casing",
			input: "ACME Corp.",
			want:  "acme",
		},
		{
			name:  "multiple suffixes",
			input: "Hanseatic Metals Trading GmbH",
			want:  "hanseatic metals",
		},
		{
			name:  "suffix-only name collapses to nothing",
			input: "Global Trading Co., Ltd.",
			want:  "",
		},
		{
			name:  "alphanumerics survive punctuation folding",
			input: "A-1 Plastics (HK) Limited",
			want:  "a 1 plastics hk",
		},
		{
			name:  "suffix token inside a word is kept",
			input: "Colima Agro",
			want:  "colima agro",
		},
		{
			name:  "empty input",
			input: "",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CompanyName(tt.input)
			if got != tt.want {
				t.Errorf("CompanyName(%q) = %q, want %q", tt.input, got, tt.want)
			}

			// Normalization must be idempotent.
			if again := CompanyName(got); again != got {
				t.Errorf("CompanyName not idempotent: %q -> %q", got, again)
			}
		})
	}
}

func TestDomain(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"https://www.acme.com/products?q=1", "acme.com"},
		{"http://acme.com", "acme.com"},
		{"www.acme.co.uk/about", "acme.co.uk"},
		{"Acme.COM", "acme.com"},
		{"acme.com?utm=x", "acme.com"},
		{"", "no domain"},
		{"   ", "no domain"},
		{"https://", "no domain"},
		{"www.", "no domain"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := Domain(tt.input); got != tt.want {
				t.Errorf("Domain(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
