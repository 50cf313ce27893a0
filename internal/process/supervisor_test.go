//go:build !windows

package process

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	v1 "github.com/cc-executor/cc-executor/pkg/api/v1"
)

func testSpec(command string) Spec {
	return Spec{
		ExecutionID:      "exec-1",
		SessionID:        "sess-1",
		Command:          command,
		TotalTimeout:     2 * time.Second,
		StallTimeout:     2 * time.Second,
		MaxLineBytes:     8 * 1024,
		MaxTotalBytes:    1024 * 1024,
		GracefulShutdown: 200 * time.Millisecond,
		DrainGrace:       200 * time.Millisecond,
	}
}

func TestSupervisorExitsCleanly(t *testing.T) {
	chunks := make(chan Chunk, 64)
	sup := New(testSpec(`sh -c 'echo hello'`), chunks, zap.NewNop())

	result := sup.Run(context.Background())
	if result.Status != v1.ExitExited {
		t.Fatalf("expected EXITED, got %s", result.Status)
	}
	if result.ExitCode == nil || *result.ExitCode != 0 {
		t.Fatalf("expected exit code 0, got %+v", result.ExitCode)
	}
}

func TestSupervisorNonZeroExit(t *testing.T) {
	chunks := make(chan Chunk, 64)
	sup := New(testSpec(`sh -c 'exit 7'`), chunks, zap.NewNop())

	result := sup.Run(context.Background())
	if result.Status != v1.ExitExited || result.ExitCode == nil || *result.ExitCode != 7 {
		t.Fatalf("expected exit code 7, got status=%s code=%+v", result.Status, result.ExitCode)
	}
}

func TestSupervisorTimeout(t *testing.T) {
	spec := testSpec(`sh -c 'sleep 10'`)
	spec.TotalTimeout = 200 * time.Millisecond
	spec.StallTimeout = 10 * time.Second

	chunks := make(chan Chunk, 64)
	sup := New(spec, chunks, zap.NewNop())

	start := time.Now()
	result := sup.Run(context.Background())
	if result.Status != v1.ExitTimeout {
		t.Fatalf("expected TIMEOUT, got %s", result.Status)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("termination took too long: %s", elapsed)
	}
}

func TestSupervisorStallDetection(t *testing.T) {
	spec := testSpec(`sh -c 'sleep 10'`)
	spec.TotalTimeout = 10 * time.Second
	spec.StallTimeout = 200 * time.Millisecond

	chunks := make(chan Chunk, 64)
	sup := New(spec, chunks, zap.NewNop())

	result := sup.Run(context.Background())
	if result.Status != v1.ExitStalled {
		t.Fatalf("expected STALLED, got %s", result.Status)
	}
}

func TestSupervisorCancel(t *testing.T) {
	spec := testSpec(`sh -c 'sleep 10'`)
	spec.TotalTimeout = 10 * time.Second
	spec.StallTimeout = 10 * time.Second

	chunks := make(chan Chunk, 64)
	sup := New(spec, chunks, zap.NewNop())

	done := make(chan *Result, 1)
	go func() { done <- sup.Run(context.Background()) }()

	time.Sleep(100 * time.Millisecond)
	if err := sup.Control(Cancel); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	select {
	case result := <-done:
		if result.Status != v1.ExitCancelled {
			t.Fatalf("expected CANCELLED, got %s", result.Status)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("supervisor did not terminate after cancel")
	}
}

func TestSupervisorPausePreventsStall(t *testing.T) {
	spec := testSpec(`sh -c 'sleep 10'`)
	spec.TotalTimeout = 10 * time.Second
	spec.StallTimeout = 200 * time.Millisecond

	chunks := make(chan Chunk, 64)
	sup := New(spec, chunks, zap.NewNop())

	done := make(chan *Result, 1)
	go func() { done <- sup.Run(context.Background()) }()

	time.Sleep(50 * time.Millisecond)
	if err := sup.Control(Pause); err != nil {
		t.Fatalf("pause failed: %v", err)
	}

	select {
	case result := <-done:
		t.Fatalf("expected execution to remain paused, but it terminated: %+v", result)
	case <-time.After(600 * time.Millisecond):
	}

	if err := sup.Control(Cancel); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	select {
	case result := <-done:
		if result.Status != v1.ExitCancelled {
			t.Fatalf("expected CANCELLED after cancel while paused, got %s", result.Status)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("supervisor did not terminate")
	}
}

func TestSupervisorSpawnFailure(t *testing.T) {
	chunks := make(chan Chunk, 64)
	sup := New(testSpec("this-binary-does-not-exist-anywhere"), chunks, zap.NewNop())

	result := sup.Run(context.Background())
	if result.Status != v1.ExitSpawnFailed {
		t.Fatalf("expected SPAWN_FAILED, got %s", result.Status)
	}
	if result.SpawnErr == nil {
		t.Fatal("expected a SpawnErr to be set")
	}
}
