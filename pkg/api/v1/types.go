// Package v1 defines the closed data types shared across the executor's components:
// Session, Execution, HookSpec, and TimingRecord, plus their enumerated states.
package v1

import "time"

// SessionState is the Session's state machine position.
type SessionState string

const (
	SessionIdle        SessionState = "IDLE"
	SessionRunning      SessionState = "RUNNING"
	SessionPaused       SessionState = "PAUSED"
	SessionTerminating  SessionState = "TERMINATING"
	SessionClosed       SessionState = "CLOSED"
)

// ExitStatus is an Execution's terminal condition.
type ExitStatus string

const (
	ExitExited      ExitStatus = "EXITED"
	ExitSignaled    ExitStatus = "SIGNALED"
	ExitTimeout     ExitStatus = "TIMEOUT"
	ExitStalled     ExitStatus = "STALLED"
	ExitCancelled   ExitStatus = "CANCELLED"
	ExitHookAborted ExitStatus = "HOOK_ABORTED"
	ExitSpawnFailed ExitStatus = "SPAWN_FAILED"
)

// Limits bounds a single Execution's resource usage.
type Limits struct {
	TotalTimeoutS float64 `json:"total_timeout_s"`
	StallTimeoutS float64 `json:"stall_timeout_s"`
	MaxTotalBytes int64   `json:"max_total_bytes"`
	MaxLineBytes  int64   `json:"max_line_bytes"`
}

// Execution is one command run within a Session.
type Execution struct {
	ExecutionID    string            `json:"execution_id"`
	SessionID      string            `json:"session_id"`
	Command        string            `json:"command"`
	EnvOverrides   map[string]string `json:"env_overrides,omitempty"`
	Fingerprint    string            `json:"fingerprint"`
	Limits         Limits            `json:"limits"`
	StartedAt      time.Time         `json:"started_at"`
	EndedAt        *time.Time        `json:"ended_at,omitempty"`
	ExitStatus     ExitStatus        `json:"exit_status,omitempty"`
	ExitCode       *int              `json:"exit_code,omitempty"`
	Signal         *int              `json:"signal,omitempty"`
	BytesOut       int64             `json:"bytes_out"`
	BytesErr       int64             `json:"bytes_err"`
	BytesDropped   int64             `json:"bytes_dropped"`
	AlsoTriggered  []string          `json:"also_triggered,omitempty"`
}

// DurationS returns the execution's wall-clock duration, or 0 if still running.
func (e *Execution) DurationS() float64 {
	if e.EndedAt == nil {
		return 0
	}
	return e.EndedAt.Sub(e.StartedAt).Seconds()
}

// HookPoint is one of the closed set of lifecycle points a hook may be attached to.
type HookPoint string

const (
	HookPreExecute HookPoint = "pre_execute"
	HookPreClaude  HookPoint = "pre_claude"
	HookPostClaude HookPoint = "post_claude"
	HookPreTool    HookPoint = "pre_tool"
	HookPostTool   HookPoint = "post_tool"
	HookPreEdit    HookPoint = "pre_edit"
	HookPostEdit   HookPoint = "post_edit"
	HookPostOutput HookPoint = "post_output"
)

// AllHookPoints lists every recognized hook point, used to validate a hook config file.
var AllHookPoints = []HookPoint{
	HookPreExecute, HookPreClaude, HookPostClaude, HookPreTool,
	HookPostTool, HookPreEdit, HookPostEdit, HookPostOutput,
}

// HookSpec is one configured hook command at a given hook point.
type HookSpec struct {
	Point     HookPoint `json:"hook_point"`
	Command   string    `json:"command"`
	TimeoutS  float64   `json:"timeout_s"`
}

// TimingRecord is one entry in the Timing Store, keyed by fingerprint.
type TimingRecord struct {
	Fingerprint  string    `json:"fingerprint"`
	Samples      []float64 `json:"samples"`
	LastUpdated  time.Time `json:"last_updated"`
	CommandClass string    `json:"command_class"`
}

// Estimate is the Timing Store's lookup result.
type Estimate struct {
	PredictedTotalS float64
	PredictedStallS float64
}
