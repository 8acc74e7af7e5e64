package config

import "testing"

func TestGetEnv(t *testing.T) {
	t.Setenv("SM_TEST_STR", "hello")
	if got := GetEnv("SM_TEST_STR", "fallback"); got != "hello" {
		t.Errorf("GetEnv = %q, want %q", got, "hello")
	}
	if got := GetEnv("SM_TEST_UNSET", "fallback"); got != "fallback" {
		t.Errorf("GetEnv = %q, want fallback", got)
	}
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("SM_TEST_INT", "85")
	if got := GetEnvInt("SM_TEST_INT", 80); got != 85 {
		t.Errorf("GetEnvInt = %d, want 85", got)
	}

	t.Setenv("SM_TEST_BAD", "not a number")
	if got := GetEnvInt("SM_TEST_BAD", 80); got != 80 {
		t.Errorf("GetEnvInt = %d, want default 80", got)
	}
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"true", true}, {"1", true}, {"YES", true}, {"on", true},
		{"false", false}, {"0", false}, {"no", false}, {"off", false},
		{"maybe", true}, // unparsable falls back to the default
	}
	for _, tt := range tests {
		t.Setenv("SM_TEST_BOOL", tt.value)
		if got := GetEnvBool("SM_TEST_BOOL", true); got != tt.want {
			t.Errorf("GetEnvBool(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}
