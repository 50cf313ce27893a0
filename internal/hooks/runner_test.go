package hooks

import (
	"context"
	"testing"

	"go.uber.org/zap"

	v1 "github.com/cc-executor/cc-executor/pkg/api/v1"
)

func TestRunnerNoHooksConfigured(t *testing.T) {
	cfg := &Config{Hooks: map[v1.HookPoint][]v1.HookSpec{}, DefaultTimeoutS: 5}
	r := NewRunner(cfg, zap.NewNop())

	outcome := r.Run(context.Background(), v1.HookPreExecute, Context{Command: "echo hi"}, true)
	if outcome.Command != "echo hi" {
		t.Fatalf("expected command unchanged, got %q", outcome.Command)
	}
	if outcome.Aborted || outcome.Err != nil {
		t.Fatalf("expected clean outcome, got %+v", outcome)
	}
}

func TestRunnerMutatesCommand(t *testing.T) {
	cfg := &Config{
		Hooks: map[v1.HookPoint][]v1.HookSpec{
			v1.HookPreExecute: {{Point: v1.HookPreExecute, Command: `sh -c 'echo {\"modified_command\":\"echo replaced\"}'`, TimeoutS: 5}},
		},
		DefaultTimeoutS: 5,
	}
	r := NewRunner(cfg, zap.NewNop())

	outcome := r.Run(context.Background(), v1.HookPreExecute, Context{Command: "echo original"}, true)
	if outcome.Err != nil {
		t.Fatalf("unexpected error: %v", outcome.Err)
	}
	if outcome.Command != "echo replaced" {
		t.Fatalf("expected mutated command, got %q", outcome.Command)
	}
}

func TestRunnerAbort(t *testing.T) {
	cfg := &Config{
		Hooks: map[v1.HookPoint][]v1.HookSpec{
			v1.HookPreExecute: {{Point: v1.HookPreExecute, Command: `sh -c 'echo {\"abort\":true,\"error\":\"forbidden\"}'`, TimeoutS: 5}},
		},
		DefaultTimeoutS: 5,
	}
	r := NewRunner(cfg, zap.NewNop())

	outcome := r.Run(context.Background(), v1.HookPreExecute, Context{Command: "echo original"}, true)
	if !outcome.Aborted {
		t.Fatal("expected aborted outcome")
	}
	if outcome.AbortReason != "forbidden" {
		t.Fatalf("expected abort reason 'forbidden', got %q", outcome.AbortReason)
	}
}

func TestRunnerExecutableNotFound(t *testing.T) {
	cfg := &Config{
		Hooks: map[v1.HookPoint][]v1.HookSpec{
			v1.HookPreExecute: {{Point: v1.HookPreExecute, Command: "this-binary-does-not-exist-anywhere", TimeoutS: 5}},
		},
		DefaultTimeoutS: 5,
	}
	r := NewRunner(cfg, zap.NewNop())

	outcome := r.Run(context.Background(), v1.HookPreExecute, Context{Command: "echo original"}, true)
	if outcome.Err == nil {
		t.Fatal("expected error for missing executable")
	}
}
