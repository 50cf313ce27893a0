// Package session implements the Session state machine: the per-connection owner of
// at most one running Execution, its hook pipeline, and its timing-store bookkeeping.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cc-executor/cc-executor/internal/common/config"
	apperrors "github.com/cc-executor/cc-executor/internal/common/errors"
	"github.com/cc-executor/cc-executor/internal/events"
	"github.com/cc-executor/cc-executor/internal/hooks"
	"github.com/cc-executor/cc-executor/internal/metrics"
	"github.com/cc-executor/cc-executor/internal/process"
	"github.com/cc-executor/cc-executor/internal/timing"
	"github.com/cc-executor/cc-executor/internal/timing/classifier"
	v1 "github.com/cc-executor/cc-executor/pkg/api/v1"
)

// Notifier delivers one of the session's outbound JSON-RPC notifications
// (execution_started, output_chunk, paused, resumed, warning, hook_warning,
// execution_completed) to whatever transport owns this session.
type Notifier interface {
	Notify(method string, params interface{})
}

// Deps bundles the shared subsystems every Session is built against.
type Deps struct {
	Hooks      *hooks.Runner
	Timing     timing.Store
	Classifier *classifier.Classifier
	Config     *config.Config
	Events     *events.Bus
	Log        *zap.Logger
}

type runningExecution struct {
	exec   *v1.Execution
	sup    *process.Supervisor
	chunks chan process.Chunk
}

// Session is the state machine owning at most one non-terminal Execution.
type Session struct {
	id   string
	deps Deps

	notifyMu sync.RWMutex
	notifier Notifier

	mu             sync.Mutex
	state          v1.SessionState
	current        *runningExecution
	queued         *queuedExecution
	createdAt      time.Time
	lastActivityAt time.Time
}

// New builds an IDLE Session. SetNotifier must be called once the owning transport is
// ready to receive notifications (it may be nil at construction, e.g. while the
// registry admits the session before the WebSocket upgrade completes).
func New(id string, deps Deps) *Session {
	now := time.Now()
	return &Session{
		id:             id,
		deps:           deps,
		state:          v1.SessionIdle,
		createdAt:      now,
		lastActivityAt: now,
	}
}

// ID returns the session's identifier.
func (s *Session) ID() string { return s.id }

// SetNotifier attaches the notification sink for this session's connection.
func (s *Session) SetNotifier(n Notifier) {
	s.notifyMu.Lock()
	s.notifier = n
	s.notifyMu.Unlock()
}

func (s *Session) notify(method string, params interface{}) {
	s.notifyMu.RLock()
	n := s.notifier
	s.notifyMu.RUnlock()
	if n != nil {
		n.Notify(method, params)
	}
}

// State returns the session's current state.
func (s *Session) State() v1.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastActivityAt reports when this session last saw a request, used by the registry's
// idle sweep.
func (s *Session) LastActivityAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivityAt
}

func (s *Session) touch() {
	s.lastActivityAt = time.Now()
}

// ExecuteParams is the accepted form of §6.2's execute params: the command, an
// optional per-request environment overlay, and optional per-request total/stall
// timeout overrides that take precedence over the timing store's estimate and the
// configured defaults.
type ExecuteParams struct {
	Command       string
	EnvOverrides  map[string]string
	TotalTimeoutS *float64
	StallTimeoutS *float64
}

// Execute accepts a new command for this session.
//
// If the session is free, pre_execute (and, for a claude-cli command, pre_claude) run
// synchronously before this call returns: an aborting or failing hook is surfaced as
// this call's error (HookAborted) and no process is ever spawned, per §6.2/§8 scenario
// 5. Once the hooks pass, the Execution record is returned and the spawn/run/complete
// lifecycle continues in the background, reported via execution_started/.../
// execution_completed notifications.
//
// If the session is already running an Execution and queueing is enabled, the request
// is accepted into the depth-1 queue slot without running its hooks yet — those run
// when the queued request actually starts, and an abort there is reported the same way
// any other in-flight completion is, via hook_warning + execution_completed.
func (s *Session) Execute(params ExecuteParams) (*v1.Execution, error) {
	command := params.Command
	if err := s.checkAllowed(command); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.touch()

	switch s.state {
	case v1.SessionClosed, v1.SessionTerminating:
		s.mu.Unlock()
		return nil, apperrors.InvalidState("execute", string(s.state))
	}

	if s.current != nil {
		if !s.deps.Config.Server.QueueDepthOne || s.queued != nil {
			s.mu.Unlock()
			return nil, apperrors.AlreadyRunning(s.id)
		}
		execution := s.newExecutionRecord(command, params.EnvOverrides)
		s.queued = &queuedExecution{req: executeRequest{
			executionID:   execution.ExecutionID,
			command:       command,
			envOverrides:  params.EnvOverrides,
			totalTimeoutS: params.TotalTimeoutS,
			stallTimeoutS: params.StallTimeoutS,
		}}
		s.mu.Unlock()
		return execution, nil
	}

	execution := s.newExecutionRecord(command, params.EnvOverrides)
	s.current = &runningExecution{exec: execution}
	s.state = v1.SessionRunning
	s.mu.Unlock()

	mutatedCommand, err := s.runPreHooks(execution, command)
	if err != nil {
		s.completeAborted(execution, err.Error())
		return nil, err
	}

	go s.runSupervised(execution, mutatedCommand, params.EnvOverrides, params.TotalTimeoutS, params.StallTimeoutS)
	return execution, nil
}

func (s *Session) newExecutionRecord(command string, envOverrides map[string]string) *v1.Execution {
	class := s.deps.Classifier.Classify(argvForClassify(command))
	fp := timing.Fingerprint(class, command)
	return &v1.Execution{
		ExecutionID:  uuid.New().String(),
		SessionID:    s.id,
		Command:      command,
		EnvOverrides: envOverrides,
		Fingerprint:  fp,
	}
}

func argvForClassify(command string) []string {
	argv, err := process.Lex(command)
	if err != nil {
		return nil
	}
	return argv
}

func (s *Session) checkAllowed(command string) error {
	if len(s.deps.Config.AllowedCommands) == 0 {
		return nil
	}
	argv, err := process.Lex(command)
	if err != nil || len(argv) == 0 {
		return apperrors.InvalidCommand(fmt.Sprintf("could not parse command: %v", err))
	}
	first := argv[0]
	if idx := strings.LastIndexByte(first, '/'); idx >= 0 {
		first = first[idx+1:]
	}
	for _, allowed := range s.deps.Config.AllowedCommands {
		if allowed == first {
			return nil
		}
	}
	return apperrors.CommandNotAllowed(first)
}

// Control applies PAUSE/RESUME/CANCEL to the session's current Execution, per §6.2's
// control params {type: "PAUSE"|"RESUME"|"CANCEL"}.
func (s *Session) Control(controlType string) error {
	s.mu.Lock()
	cur := s.current
	state := s.state
	s.mu.Unlock()

	if cur == nil || cur.sup == nil {
		return apperrors.NoActiveExecution(s.id)
	}

	switch controlType {
	case "PAUSE":
		if state != v1.SessionRunning {
			return apperrors.InvalidState("PAUSE", string(state))
		}
		if err := cur.sup.Control(process.Pause); err != nil {
			return err
		}
		s.setState(v1.SessionPaused)
		s.notify("paused", map[string]string{"execution_id": cur.exec.ExecutionID})
		return nil

	case "RESUME":
		if state != v1.SessionPaused {
			return apperrors.InvalidState("RESUME", string(state))
		}
		if err := cur.sup.Control(process.Resume); err != nil {
			return err
		}
		s.setState(v1.SessionRunning)
		s.notify("resumed", map[string]string{"execution_id": cur.exec.ExecutionID})
		return nil

	case "CANCEL":
		return cur.sup.Control(process.Cancel)

	default:
		return apperrors.Protocol(fmt.Sprintf("unknown control type %q", controlType))
	}
}

func (s *Session) setState(state v1.SessionState) {
	s.mu.Lock()
	s.state = state
	s.touch()
	s.mu.Unlock()
}

// Terminate forces the session's current Execution (if any) to stop and moves the
// session to CLOSED. It is idempotent and safe to call from the registry's cleanup
// path or on connection loss — the spec's invariant that destroying a Session
// guarantees its process group is signaled.
func (s *Session) Terminate() {
	s.mu.Lock()
	cur := s.current
	s.state = v1.SessionTerminating
	s.mu.Unlock()

	if cur != nil && cur.sup != nil {
		_ = cur.sup.Control(process.Cancel)
	}

	s.mu.Lock()
	s.state = v1.SessionClosed
	s.mu.Unlock()
}

// runPreHooks runs pre_execute and, for a claude-cli command, pre_claude. It returns
// the (possibly mutated) command on success. On abort or hook failure it returns an
// apperrors.HookAborted error whose message is the hook's own reason. Both callers
// report it as a hook_warning + HOOK_ABORTED execution_completed; the immediate-run
// path also returns it as the execute response's error, while the dequeued path has no
// live RPC response left to attach it to.
func (s *Session) runPreHooks(execution *v1.Execution, command string) (string, error) {
	log := s.deps.Log.With(zap.String("session_id", s.id), zap.String("execution_id", execution.ExecutionID))
	ctx := context.Background()

	hctx := hooks.Context{ExecutionID: execution.ExecutionID, SessionID: s.id, Command: command}
	outcome := s.deps.Hooks.Run(ctx, v1.HookPreExecute, hctx, true)
	if outcome.Err != nil {
		log.Warn("pre_execute hook failed, aborting execution", zap.Error(outcome.Err))
		return "", apperrors.HookAborted(outcome.Err.Error())
	}
	command = outcome.Command
	if outcome.Aborted {
		return "", apperrors.HookAborted(outcome.AbortReason)
	}

	class := s.deps.Classifier.Classify(argvForClassify(command))
	if class == "claude-cli" {
		hctx.Command = command
		claudeOutcome := s.deps.Hooks.Run(ctx, v1.HookPreClaude, hctx, true)
		if claudeOutcome.Err != nil {
			log.Warn("pre_claude hook failed, aborting execution", zap.Error(claudeOutcome.Err))
			return "", apperrors.HookAborted(claudeOutcome.Err.Error())
		}
		command = claudeOutcome.Command
		if claudeOutcome.Aborted {
			return "", apperrors.HookAborted(claudeOutcome.AbortReason)
		}
	}

	return command, nil
}

// runSupervised builds the Supervisor for an already hook-approved command, runs it to
// completion, and reports the result. totalOverride/stallOverride, when set, take
// precedence over the timing store's estimate and the configured defaults, per §6.2's
// per-request total_timeout_s/stall_timeout_s.
func (s *Session) runSupervised(execution *v1.Execution, command string, envOverrides map[string]string, totalOverride, stallOverride *float64) {
	log := s.deps.Log.With(zap.String("session_id", s.id), zap.String("execution_id", execution.ExecutionID))
	ctx := context.Background()

	class := s.deps.Classifier.Classify(argvForClassify(command))

	estimate, err := s.deps.Timing.Lookup(ctx, execution.Fingerprint)
	if err != nil {
		log.Warn("timing store lookup failed, using configured defaults", zap.Error(err))
	}

	totalS := s.deps.Config.Execution.DefaultTotalTimeoutS
	stallS := s.deps.Config.Execution.DefaultStallTimeoutS
	if estimate != nil {
		totalS = estimate.PredictedTotalS
		stallS = estimate.PredictedStallS
	}
	if totalOverride != nil {
		totalS = *totalOverride
	}
	if stallOverride != nil {
		stallS = *stallOverride
	}
	execution.Limits = v1.Limits{
		TotalTimeoutS: totalS,
		StallTimeoutS: stallS,
		MaxTotalBytes: s.deps.Config.Execution.MaxTotalBytes,
		MaxLineBytes:  s.deps.Config.Execution.MaxLineBytes,
	}

	chunks := make(chan process.Chunk, 256)
	spec := process.Spec{
		ExecutionID:      execution.ExecutionID,
		SessionID:        s.id,
		Command:          command,
		EnvOverrides:     envOverrides,
		TotalTimeout:     durationFromSeconds(totalS),
		StallTimeout:     durationFromSeconds(stallS),
		MaxLineBytes:     s.deps.Config.Execution.MaxLineBytes,
		MaxTotalBytes:    s.deps.Config.Execution.MaxTotalBytes,
		GracefulShutdown: time.Duration(s.deps.Config.Server.GracefulShutdownS) * time.Second,
	}
	sup := process.New(spec, chunks, log)

	execution.StartedAt = time.Now()
	s.mu.Lock()
	if s.state == v1.SessionTerminating || s.state == v1.SessionClosed {
		s.mu.Unlock()
		now := time.Now()
		execution.EndedAt = &now
		execution.ExitStatus = v1.ExitCancelled
		s.notify("execution_completed", execution)
		metrics.ExecutionsTotal.WithLabelValues(string(v1.ExitCancelled)).Inc()
		s.finishExecution()
		return
	}
	s.current = &runningExecution{exec: execution, sup: sup, chunks: chunks}
	s.mu.Unlock()

	s.notify("execution_started", map[string]interface{}{
		"execution_id": execution.ExecutionID,
		"command":      command,
		"limits":       execution.Limits,
	})
	s.deps.Events.Publish(ctx, "cc_executor.execution.started", events.NewEvent("execution_started", "session", map[string]interface{}{
		"session_id": s.id, "execution_id": execution.ExecutionID,
	}))

	var bytesOut, bytesErr int64
	warnedLimit := false
	chunksDone := make(chan struct{})

	go func() {
		for {
			select {
			case c := <-chunks:
				s.handleChunk(execution, c, &bytesOut, &bytesErr, &warnedLimit)
			case <-chunksDone:
				for {
					select {
					case c := <-chunks:
						s.handleChunk(execution, c, &bytesOut, &bytesErr, &warnedLimit)
					default:
						return
					}
				}
			}
		}
	}()

	result := sup.Run(ctx)
	close(chunksDone)

	execution.EndedAt = &result.EndedAt
	execution.ExitStatus = result.Status
	execution.ExitCode = result.ExitCode
	execution.Signal = result.Signal
	execution.BytesOut = bytesOut
	execution.BytesErr = bytesErr
	execution.BytesDropped = result.BytesDropped
	execution.AlsoTriggered = result.AlsoTriggered
	metrics.BytesDroppedTotal.Add(float64(result.BytesDropped))
	metrics.ExecutionsTotal.WithLabelValues(string(result.Status)).Inc()
	metrics.ExecutionDurationSeconds.Observe(execution.DurationS())

	if result.Status == v1.ExitExited && result.SpawnErr == nil {
		if err := s.deps.Timing.Record(ctx, execution.Fingerprint, class, execution.DurationS()); err != nil {
			log.Warn("timing store record failed", zap.Error(err))
		}
	}

	if class == "claude-cli" {
		claudeDoneOutcome := s.deps.Hooks.Run(ctx, v1.HookPostClaude, hooks.Context{
			ExecutionID: execution.ExecutionID,
			SessionID:   s.id,
			Command:     command,
			ExitCode:    execution.ExitCode,
			BytesOut:    bytesOut,
			DurationS:   execution.DurationS(),
		}, false)
		if claudeDoneOutcome.Err != nil {
			s.notify("hook_warning", map[string]string{
				"execution_id": execution.ExecutionID,
				"hook_point":   string(v1.HookPostClaude),
				"message":      claudeDoneOutcome.Err.Error(),
			})
		}
	}

	postOutcome := s.deps.Hooks.Run(ctx, v1.HookPostOutput, hooks.Context{
		ExecutionID: execution.ExecutionID,
		SessionID:   s.id,
		Command:     command,
		ExitCode:    execution.ExitCode,
		BytesOut:    bytesOut,
		DurationS:   execution.DurationS(),
	}, false)
	if postOutcome.Err != nil {
		s.notify("hook_warning", map[string]string{
			"execution_id": execution.ExecutionID,
			"hook_point":   string(v1.HookPostOutput),
			"message":      postOutcome.Err.Error(),
		})
	}

	s.notify("execution_completed", execution)
	s.deps.Events.Publish(ctx, "cc_executor.execution.completed", events.NewEvent("execution_completed", "session", map[string]interface{}{
		"session_id": s.id, "execution_id": execution.ExecutionID, "status": string(execution.ExitStatus),
	}))

	s.finishExecution()
}

// completeAborted finalizes an Execution that never reached the Supervisor because a
// pre_execute/pre_claude hook vetoed it.
func (s *Session) completeAborted(execution *v1.Execution, reason string) {
	now := time.Now()
	execution.StartedAt = now
	execution.EndedAt = &now
	execution.ExitStatus = v1.ExitHookAborted

	s.mu.Lock()
	s.current = &runningExecution{exec: execution}
	s.mu.Unlock()

	s.notify("hook_warning", map[string]string{
		"execution_id": execution.ExecutionID,
		"hook_point":   string(v1.HookPreExecute),
		"message":      reason,
	})
	s.notify("execution_completed", execution)
	metrics.ExecutionsTotal.WithLabelValues(string(v1.ExitHookAborted)).Inc()

	s.finishExecution()
}

// finishExecution clears the current slot and either starts a queued execute or
// returns the session to IDLE.
func (s *Session) finishExecution() {
	s.mu.Lock()
	s.current = nil
	queued := s.queued
	s.queued = nil
	terminal := s.state == v1.SessionTerminating || s.state == v1.SessionClosed
	if queued == nil && !terminal {
		s.state = v1.SessionIdle
	}
	s.touch()
	s.mu.Unlock()

	if queued == nil || terminal {
		return
	}

	go s.startQueued(queued)
}

// startQueued runs the hook pipeline and, on success, the supervised process for a
// dequeued execute request. Unlike the immediate-run path in Execute, there is no live
// RPC response to attach a hook abort to, so it is reported the same way any other
// in-flight completion is: hook_warning + HOOK_ABORTED execution_completed.
func (s *Session) startQueued(queued *queuedExecution) {
	execution := s.newExecutionRecordForQueued(queued)
	s.mu.Lock()
	s.current = &runningExecution{exec: execution}
	s.state = v1.SessionRunning
	s.mu.Unlock()

	mutatedCommand, err := s.runPreHooks(execution, queued.req.command)
	if err != nil {
		s.completeAborted(execution, err.Error())
		return
	}
	s.runSupervised(execution, mutatedCommand, queued.req.envOverrides, queued.req.totalTimeoutS, queued.req.stallTimeoutS)
}

func (s *Session) newExecutionRecordForQueued(q *queuedExecution) *v1.Execution {
	class := s.deps.Classifier.Classify(argvForClassify(q.req.command))
	fp := timing.Fingerprint(class, q.req.command)
	return &v1.Execution{
		ExecutionID:  q.req.executionID,
		SessionID:    s.id,
		Command:      q.req.command,
		EnvOverrides: q.req.envOverrides,
		Fingerprint:  fp,
	}
}

func (s *Session) handleChunk(execution *v1.Execution, c process.Chunk, bytesOut, bytesErr *int64, warnedLimit *bool) {
	n := int64(len(c.Data))
	if c.Stream == process.StreamStdout {
		*bytesOut += n
	} else {
		*bytesErr += n
	}

	s.notify("output_chunk", map[string]interface{}{
		"execution_id": execution.ExecutionID,
		"stream":       string(c.Stream),
		"data":         c.Data,
		"seq":          c.Seq,
		"truncated":    c.Truncated,
	})

	if hookPoint, payload, ok := parseHookEvent(c.Data); ok {
		outcome := s.deps.Hooks.Run(context.Background(), hookPoint, hooks.Context{
			ExecutionID: execution.ExecutionID,
			SessionID:   s.id,
			Command:     execution.Command,
			Extra:       payload,
		}, false)
		if outcome.Err != nil {
			metrics.HookFailuresTotal.WithLabelValues(string(hookPoint), "error").Inc()
			s.notify("hook_warning", map[string]string{
				"execution_id": execution.ExecutionID,
				"hook_point":   string(hookPoint),
				"message":      outcome.Err.Error(),
			})
		}
	}

	total := *bytesOut + *bytesErr
	if !*warnedLimit && total >= s.deps.Config.Execution.MaxTotalBytes {
		*warnedLimit = true
		s.notify("warning", map[string]string{
			"execution_id": execution.ExecutionID,
			"kind":         "output_limit_reached",
			"message":      "max_total_bytes reached, further output is being dropped",
		})
	}
}

// parseHookEvent recognizes a narrow JSONL event shape a supervised Claude process may
// emit on stdout to mark tool/edit boundaries, e.g. {"hook_event":"pre_tool",...}. Lines
// that aren't this shape are ordinary output and are not inspected further.
func parseHookEvent(line string) (v1.HookPoint, map[string]interface{}, bool) {
	trimmed := strings.TrimSpace(line)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return "", nil, false
	}
	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
		return "", nil, false
	}
	eventName, ok := raw["hook_event"].(string)
	if !ok {
		return "", nil, false
	}
	point := v1.HookPoint(eventName)
	for _, known := range v1.AllHookPoints {
		if known == point {
			return point, raw, true
		}
	}
	return "", nil, false
}

func durationFromSeconds(s float64) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}
