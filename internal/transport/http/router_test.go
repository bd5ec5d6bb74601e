package httptransport

import (
	"testing"

	platformtest "xtts-server-go/internal/platform/testing"
)

func TestBuildRequiresConfig(t *testing.T) {
	if _, err := Build(Options{}); err == nil {
		t.Fatal("expected error without config")
	}
}

func TestBuildConfiguresEngine(t *testing.T) {
	cfg := platformtest.SetupTestConfig(t)
	logger := platformtest.SetupTestLogger(t)

	r, err := Build(Options{Config: cfg, Logger: logger})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if r.Engine == nil || r.API == nil {
		t.Fatal("router not fully constructed")
	}
}
