package process

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/cc-executor/cc-executor/internal/common/errors"
	"github.com/cc-executor/cc-executor/internal/common/secrets"
	v1 "github.com/cc-executor/cc-executor/pkg/api/v1"
)

// ControlKind is one of the three control operations a Session may apply to a running
// Supervisor.
type ControlKind int

const (
	Pause ControlKind = iota
	Resume
	Cancel
)

// Spec configures one Supervisor invocation.
type Spec struct {
	ExecutionID   string
	SessionID     string
	Command       string
	EnvOverrides  map[string]string
	TotalTimeout  time.Duration
	StallTimeout  time.Duration
	MaxLineBytes  int64
	MaxTotalBytes int64

	// GracefulShutdown bounds how long the termination protocol waits after SIGTERM
	// before escalating to SIGKILL.
	GracefulShutdown time.Duration

	// DrainGrace bounds how long, after the process exits, the drainers are awaited
	// before being cancelled. Bytes still unread at that point are not counted in
	// Result.BytesDropped, which only counts output over MaxTotalBytes.
	DrainGrace time.Duration
}

// Result is the terminal outcome of one Supervisor.Run call.
type Result struct {
	Status        v1.ExitStatus
	ExitCode      *int
	Signal        *int
	BytesDropped  int64
	StartedAt     time.Time
	EndedAt       time.Time
	AlsoTriggered []string
	SpawnErr      error
}

type controlRequest struct {
	kind   ControlKind
	respCh chan error
}

// Supervisor owns one Execution's child process, its two Drainers, and its timers.
type Supervisor struct {
	spec Spec
	log  *zap.Logger

	chunks  chan Chunk
	control chan controlRequest

	mu     sync.Mutex
	paused bool
}

// New builds a Supervisor. chunks is the channel output_chunk notifications are read
// from by the caller (typically the Session); it is sized by the caller to match its
// own back-pressure policy.
func New(spec Spec, chunks chan Chunk, log *zap.Logger) *Supervisor {
	if spec.GracefulShutdown == 0 {
		spec.GracefulShutdown = 10 * time.Second
	}
	if spec.DrainGrace == 0 {
		spec.DrainGrace = 2 * time.Second
	}
	return &Supervisor{
		spec:    spec,
		log:     log,
		chunks:  chunks,
		control: make(chan controlRequest, 4),
	}
}

// Control submits a PAUSE/RESUME/CANCEL request, blocking until it has been applied
// (or the Supervisor has already reached a terminal state).
func (s *Supervisor) Control(kind ControlKind) error {
	req := controlRequest{kind: kind, respCh: make(chan error, 1)}
	select {
	case s.control <- req:
	default:
		return fmt.Errorf("control channel full")
	}
	return <-req.respCh
}

// IsPaused reports the Supervisor's current pause state.
func (s *Supervisor) IsPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Run spawns the command and blocks until it reaches a terminal state, honoring
// Control requests concurrently. It is safe to call Control from another goroutine
// while Run is executing.
func (s *Supervisor) Run(ctx context.Context) *Result {
	startedAt := time.Now()
	argv, err := Lex(s.spec.Command)
	if err != nil {
		return &Result{Status: v1.ExitSpawnFailed, StartedAt: startedAt, EndedAt: time.Now(), SpawnErr: apperrors.InvalidCommand(err.Error())}
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = s.buildEnv()
	cmd.Stdin = nil
	setProcessGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &Result{Status: v1.ExitSpawnFailed, StartedAt: startedAt, EndedAt: time.Now(), SpawnErr: apperrors.SpawnError(s.spec.Command, err)}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return &Result{Status: v1.ExitSpawnFailed, StartedAt: startedAt, EndedAt: time.Now(), SpawnErr: apperrors.SpawnError(s.spec.Command, err)}
	}

	if err := cmd.Start(); err != nil {
		return &Result{Status: v1.ExitSpawnFailed, StartedAt: startedAt, EndedAt: time.Now(), SpawnErr: apperrors.SpawnError(s.spec.Command, err)}
	}

	pgid := cmd.Process.Pid
	drainCtx, cancelDrain := context.WithCancel(context.Background())
	defer cancelDrain()

	budget := NewByteBudget(s.spec.MaxTotalBytes)
	outDrainer := NewDrainer(StreamStdout, s.spec.MaxLineBytes)
	errDrainer := NewDrainer(StreamStderr, s.spec.MaxLineBytes)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); outDrainer.Run(drainCtx, stdout, s.chunks, budget) }()
	go func() { defer wg.Done(); errDrainer.Run(drainCtx, stderr, s.chunks, budget) }()

	exitCh := make(chan error, 1)
	go func() { exitCh <- cmd.Wait() }()

	totalTimer := time.NewTimer(s.spec.TotalTimeout)
	defer totalTimer.Stop()
	stallTimer := time.NewTimer(s.spec.StallTimeout)
	defer stallTimer.Stop()

	result := &Result{StartedAt: startedAt}
	var triggered []string
	terminated := false

	terminate := func(reason string) {
		if terminated {
			triggered = append(triggered, reason)
			return
		}
		terminated = true
		result.Status = statusForReason(reason)
		if err := s.terminateGroup(pgid); err != nil {
			s.log.Error("termination protocol did not fully succeed",
				zap.Int("pgid", pgid), zap.Error(err))
		}
	}

	for !terminated {
		select {
		case err := <-exitCh:
			terminated = true
			result.Status, result.ExitCode, result.Signal = exitOutcome(err)

		case <-totalTimer.C:
			terminate("TIMEOUT")

		case <-stallTimer.C:
			// Bytes on either stream reset the stall clock (yes, per design note), but
			// nothing proactively wakes this loop when a Drainer sees one, so the fired
			// timer is treated as a deadline check against actual last-byte time rather
			// than as the stall verdict itself.
			idle := time.Since(latest(outDrainer.LastByteAt(), errDrainer.LastByteAt()))
			if s.IsPaused() {
				stallTimer.Reset(s.spec.StallTimeout)
			} else if idle < s.spec.StallTimeout {
				stallTimer.Reset(s.spec.StallTimeout - idle)
			} else {
				terminate("STALLED")
			}

		case req := <-s.control:
			switch req.kind {
			case Pause:
				req.respCh <- s.applyPause(pgid, true)
			case Resume:
				req.respCh <- s.applyPause(pgid, false)
				resetStall(stallTimer, s.spec.StallTimeout)
			case Cancel:
				terminate("CANCELLED")
				req.respCh <- nil
			}
		}
	}

	// Drain the exit channel if termination raced a natural exit.
	if result.ExitCode == nil && result.Signal == nil && result.Status != v1.ExitTimeout &&
		result.Status != v1.ExitStalled && result.Status != v1.ExitCancelled {
		select {
		case err := <-exitCh:
			result.Status, result.ExitCode, result.Signal = exitOutcome(err)
		case <-time.After(s.spec.GracefulShutdown):
		}
	}

	waitWithGrace(&wg, s.spec.DrainGrace)
	cancelDrain()

	result.BytesDropped = budget.Dropped()
	result.EndedAt = time.Now()
	result.AlsoTriggered = triggered
	return result
}

func (s *Supervisor) applyPause(pgid int, pause bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pause == s.paused {
		return nil
	}
	var err error
	if pause {
		err = signalGroupStop(pgid)
	} else {
		err = signalGroupContinue(pgid)
	}
	if err == nil {
		s.paused = pause
	}
	return err
}

func (s *Supervisor) terminateGroup(pgid int) error {
	return terminateProcessGroup(pgid, s.spec.GracefulShutdown, s.log)
}

func (s *Supervisor) buildEnv() []string {
	env := secrets.Strip(os.Environ())
	env = append(env, fmt.Sprintf("CC_EXECUTOR_SESSION_ID=%s", s.spec.SessionID))
	env = append(env, fmt.Sprintf("CC_EXECUTOR_EXECUTION_ID=%s", s.spec.ExecutionID))
	for k, v := range s.spec.EnvOverrides {
		env = append(env, k+"="+v)
	}
	return env
}

func statusForReason(reason string) v1.ExitStatus {
	switch reason {
	case "TIMEOUT":
		return v1.ExitTimeout
	case "STALLED":
		return v1.ExitStalled
	case "CANCELLED":
		return v1.ExitCancelled
	default:
		return v1.ExitSignaled
	}
}

func resetStall(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

func latest(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func waitWithGrace(wg *sync.WaitGroup, grace time.Duration) {
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(grace):
	}
}

func exitOutcome(err error) (v1.ExitStatus, *int, *int) {
	if err == nil {
		code := 0
		return v1.ExitExited, &code, nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		if sig, ok := signalFromExitError(exitErr); ok {
			return v1.ExitSignaled, nil, &sig
		}
		code := exitErr.ExitCode()
		return v1.ExitExited, &code, nil
	}
	code := -1
	return v1.ExitExited, &code, nil
}
