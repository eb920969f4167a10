package profile

import (
	"testing"

	"github.com/matheus3301/imstore/internal/config"
)

func TestResolvePrecedence(t *testing.T) {
	cfg := &config.Config{DefaultProfile: "cfg"}

	t.Setenv("IMSTORE_PROFILE", "env")
	if got := Resolve("flag", cfg); got != "flag" {
		t.Errorf("flag: got %q", got)
	}
	if got := Resolve("", cfg); got != "env" {
		t.Errorf("env: got %q", got)
	}

	t.Setenv("IMSTORE_PROFILE", "")
	if got := Resolve("", cfg); got != "cfg" {
		t.Errorf("config: got %q", got)
	}
	if got := Resolve("", nil); got != DefaultName {
		t.Errorf("default: got %q", got)
	}
}
