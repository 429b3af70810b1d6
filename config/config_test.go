package config

import (
	"os"
	"testing"
)

func TestExpandEnvWithDefault(t *testing.T) {
	os.Unsetenv("MARTIN_TEST_UNSET")
	got := ExpandEnv("postgres://${MARTIN_TEST_UNSET:-localhost}:5432/db")
	if got != "postgres://localhost:5432/db" {
		t.Fatalf("got %q", got)
	}
}

func TestExpandEnvUsesSetValue(t *testing.T) {
	t.Setenv("MARTIN_TEST_HOST", "db.internal")
	got := ExpandEnv("postgres://${MARTIN_TEST_HOST}:5432/db")
	if got != "postgres://db.internal:5432/db" {
		t.Fatalf("got %q", got)
	}
}

func TestExpandEnvUnsetNoDefault(t *testing.T) {
	os.Unsetenv("MARTIN_TEST_MISSING")
	got := ExpandEnv("x${MARTIN_TEST_MISSING}y")
	if got != "xy" {
		t.Fatalf("got %q", got)
	}
}
