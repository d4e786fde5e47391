package support

import "testing"

func TestGetEnv(t *testing.T) {
	t.Setenv("PROXYSIEVE_TEST_ENV", "value")

	if got := GetEnv("PROXYSIEVE_TEST_ENV", "fallback"); got != "value" {
		t.Fatalf("GetEnv returned %q, want value", got)
	}
	if got := GetEnv("PROXYSIEVE_TEST_ENV_MISSING", "fallback"); got != "fallback" {
		t.Fatalf("GetEnv returned %q, want fallback", got)
	}
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("PROXYSIEVE_TEST_INT", "42")
	t.Setenv("PROXYSIEVE_TEST_BAD_INT", "not-a-number")

	if got := GetEnvInt("PROXYSIEVE_TEST_INT", 7); got != 42 {
		t.Fatalf("GetEnvInt returned %d, want 42", got)
	}
	if got := GetEnvInt("PROXYSIEVE_TEST_BAD_INT", 7); got != 7 {
		t.Fatalf("GetEnvInt returned %d for invalid value, want fallback 7", got)
	}
	if got := GetEnvInt("PROXYSIEVE_TEST_INT_MISSING", 7); got != 7 {
		t.Fatalf("GetEnvInt returned %d for missing key, want fallback 7", got)
	}
}
