//go:build !windows

package session

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/cc-executor/cc-executor/internal/common/config"
	"github.com/cc-executor/cc-executor/internal/events"
	"github.com/cc-executor/cc-executor/internal/hooks"
	"github.com/cc-executor/cc-executor/internal/timing"
	"github.com/cc-executor/cc-executor/internal/timing/classifier"
	v1 "github.com/cc-executor/cc-executor/pkg/api/v1"
)

type recordingNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (n *recordingNotifier) Notify(method string, params interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, method)
}

func (n *recordingNotifier) has(method string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, m := range n.calls {
		if m == method {
			return true
		}
	}
	return false
}

func testDeps(t *testing.T) Deps {
	t.Helper()
	bus, err := events.Connect("", "test", zap.NewNop())
	if err != nil {
		t.Fatalf("events.Connect: %v", err)
	}
	return Deps{
		Hooks:      hooks.NewRunner(&hooks.Config{Hooks: map[v1.HookPoint][]v1.HookSpec{}, DefaultTimeoutS: 5}, zap.NewNop()),
		Timing:     timing.NewMemoryStore(timing.DefaultOptions()),
		Classifier: classifier.New(classifier.DefaultRules()),
		Config: &config.Config{
			Server: config.ServerConfig{GracefulShutdownS: 1, MaxSessions: 10, SessionIdleTimeoutS: 3600},
			Execution: config.ExecutionDefaults{
				DefaultTotalTimeoutS: 2, DefaultStallTimeoutS: 2, ExtremeStallTimeoutS: 10,
				StallFractionOfTotal: 0.3, MaxLineBytes: 8192, MaxTotalBytes: 1024 * 1024,
			},
		},
		Events: bus,
		Log:    zap.NewNop(),
	}
}

func waitFor(t *testing.T, cond func() bool, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestSessionExecuteCompletesAndReturnsIdle(t *testing.T) {
	s := New("sess-1", testDeps(t))
	notifier := &recordingNotifier{}
	s.SetNotifier(notifier)

	exec, err := s.Execute(ExecuteParams{Command: `sh -c 'echo hi'`})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if exec.ExecutionID == "" {
		t.Fatal("expected execution id to be assigned")
	}
	if s.State() != v1.SessionRunning {
		t.Fatalf("expected RUNNING immediately after execute, got %s", s.State())
	}

	waitFor(t, func() bool { return s.State() == v1.SessionIdle }, 3*time.Second)
	if !notifier.has("execution_started") || !notifier.has("execution_completed") {
		t.Fatalf("expected lifecycle notifications, got %v", notifier.calls)
	}
}

func TestSessionRejectsConcurrentExecuteByDefault(t *testing.T) {
	s := New("sess-2", testDeps(t))
	s.SetNotifier(&recordingNotifier{})

	if _, err := s.Execute(ExecuteParams{Command: `sh -c 'sleep 1'`}); err != nil {
		t.Fatalf("first execute: %v", err)
	}
	if _, err := s.Execute(ExecuteParams{Command: `sh -c 'echo second'`}); err == nil {
		t.Fatal("expected AlreadyRunning error for concurrent execute")
	}

	waitFor(t, func() bool { return s.State() == v1.SessionIdle }, 3*time.Second)
}

func TestSessionControlWithoutExecutionFails(t *testing.T) {
	s := New("sess-3", testDeps(t))
	s.SetNotifier(&recordingNotifier{})

	if err := s.Control("PAUSE"); err == nil {
		t.Fatal("expected error pausing a session with no active execution")
	}
}

func TestSessionCommandAllowlist(t *testing.T) {
	deps := testDeps(t)
	deps.Config.AllowedCommands = []string{"echo"}
	s := New("sess-4", deps)
	s.SetNotifier(&recordingNotifier{})

	if _, err := s.Execute(ExecuteParams{Command: "rm -rf /tmp/nothing"}); err == nil {
		t.Fatal("expected CommandNotAllowed error")
	}
	if _, err := s.Execute(ExecuteParams{Command: "echo hi"}); err != nil {
		t.Fatalf("expected allowed command to pass, got %v", err)
	}
	waitFor(t, func() bool { return s.State() == v1.SessionIdle }, 3*time.Second)
}

func TestSessionTerminateCancelsRunningExecution(t *testing.T) {
	s := New("sess-5", testDeps(t))
	s.SetNotifier(&recordingNotifier{})

	if _, err := s.Execute(ExecuteParams{Command: `sh -c 'sleep 30'`}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	waitFor(t, func() bool { return s.State() == v1.SessionRunning }, time.Second)

	s.Terminate()
	if s.State() != v1.SessionClosed {
		t.Fatalf("expected CLOSED after terminate, got %s", s.State())
	}
}
