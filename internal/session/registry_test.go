//go:build !windows

package session

import (
	"context"
	"testing"

	"github.com/cc-executor/cc-executor/internal/common/config"
	v1 "github.com/cc-executor/cc-executor/pkg/api/v1"
)

func testConfig(maxSessions int) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			MaxSessions:         maxSessions,
			SessionIdleTimeoutS: 3600,
			GracefulShutdownS:   1,
		},
		Execution: config.ExecutionDefaults{
			DefaultTotalTimeoutS: 2, DefaultStallTimeoutS: 2, ExtremeStallTimeoutS: 10,
			StallFractionOfTotal: 0.3, MaxLineBytes: 8192, MaxTotalBytes: 1024 * 1024,
		},
	}
}

func TestRegistryAdmitsUpToMaxSessions(t *testing.T) {
	deps := testDeps(t)
	cfg := testConfig(2)
	deps.Config = cfg
	reg := NewRegistry(cfg, deps, deps.Log)

	if _, err := reg.Admit("a"); err != nil {
		t.Fatalf("admit a: %v", err)
	}
	if _, err := reg.Admit("b"); err != nil {
		t.Fatalf("admit b: %v", err)
	}
	if _, err := reg.Admit("c"); err == nil {
		t.Fatal("expected admission rejection at capacity")
	}
	if reg.Count() != 2 {
		t.Fatalf("expected 2 tracked sessions, got %d", reg.Count())
	}
}

func TestRegistryRemoveTerminatesSession(t *testing.T) {
	deps := testDeps(t)
	cfg := testConfig(5)
	deps.Config = cfg
	reg := NewRegistry(cfg, deps, deps.Log)

	s, err := reg.Admit("a")
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	reg.Remove("a")

	if _, ok := reg.Get("a"); ok {
		t.Fatal("expected session to be untracked after Remove")
	}
	if s.State() != v1.SessionClosed {
		t.Fatalf("expected removed session to be CLOSED, got %s", s.State())
	}
	if reg.Count() != 0 {
		t.Fatalf("expected 0 tracked sessions, got %d", reg.Count())
	}
}

func TestRegistryStopTerminatesAllSessions(t *testing.T) {
	deps := testDeps(t)
	cfg := testConfig(5)
	deps.Config = cfg
	reg := NewRegistry(cfg, deps, deps.Log)
	reg.Start(context.Background())

	s, err := reg.Admit("a")
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	reg.Stop()

	if reg.Count() != 0 {
		t.Fatalf("expected registry drained after Stop, got %d", reg.Count())
	}
	if s.State() != v1.SessionClosed {
		t.Fatalf("expected session to be CLOSED after Stop, got %s", s.State())
	}
}
