// Package hooks runs the configured external validator/transformer programs at each
// lifecycle point, shell-lexed but never shell-invoked, and interprets their JSON
// result.
package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/cc-executor/cc-executor/internal/common/secrets"
	"github.com/cc-executor/cc-executor/internal/process"
	v1 "github.com/cc-executor/cc-executor/pkg/api/v1"
)

const maxLoggedStdout = 10 * 1024

// Context is the set of values passed to every hook invocation as environment
// variables; nested values are JSON-encoded per the spec's env-var transport note.
type Context struct {
	ExecutionID string
	SessionID   string
	Command     string
	ExitCode    *int
	BytesOut    int64
	DurationS   float64
	Extra       map[string]interface{}
}

// Runner executes hook pipelines.
type Runner struct {
	cfg *Config
	log *zap.Logger
}

// NewRunner builds a Runner from a parsed Config.
func NewRunner(cfg *Config, log *zap.Logger) *Runner {
	return &Runner{cfg: cfg, log: log}
}

// Run executes every hook configured at point, in declaration order, sequentially.
// mutable indicates whether modified_command is honored (true only for
// pre_execute/pre_claude).
func (r *Runner) Run(ctx context.Context, point v1.HookPoint, hctx Context, mutable bool) Outcome {
	outcome := Outcome{Command: hctx.Command}

	specs := r.cfg.Hooks[point]
	if len(specs) == 0 {
		return outcome
	}

	var errs *multierror.Error

	for _, spec := range specs {
		result, err := r.runOne(ctx, point, spec, hctx)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		if result == nil {
			continue
		}

		if mutable && result.ModifiedCommand != "" {
			outcome.Command = result.ModifiedCommand
			hctx.Command = result.ModifiedCommand
		}
		if result.Abort {
			outcome.Aborted = true
			outcome.AbortReason = result.Error
		}
		outcome.Warnings = append(outcome.Warnings, result.Warnings...)
	}

	if errs.ErrorOrNil() != nil {
		outcome.Err = errs
	}
	return outcome
}

func (r *Runner) runOne(ctx context.Context, point v1.HookPoint, spec v1.HookSpec, hctx Context) (*Result, error) {
	argv, err := process.Lex(spec.Command)
	if err != nil {
		return nil, &Error{HookPoint: string(point), Command: spec.Command, Kind: KindExecutableNotFound, Message: err.Error()}
	}

	bin, err := exec.LookPath(argv[0])
	if err != nil {
		return nil, &Error{HookPoint: string(point), Command: spec.Command, Kind: KindExecutableNotFound, Message: fmt.Sprintf("executable not found: %s", argv[0])}
	}

	timeout := spec.TimeoutS
	if timeout <= 0 {
		timeout = r.cfg.DefaultTimeoutS
	}
	hookCtx, cancel := context.WithTimeout(ctx, time.Duration(timeout*float64(time.Second)))
	defer cancel()

	cmd := exec.CommandContext(hookCtx, bin, argv[1:]...)
	cmd.Env = secrets.Strip(r.buildEnv(hctx))

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	if hookCtx.Err() != nil {
		return nil, &Error{HookPoint: string(point), Command: spec.Command, Kind: KindTimeout, Message: fmt.Sprintf("hook timed out after %.1fs", timeout)}
	}

	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			r.log.Warn("hook exited non-zero",
				zap.String("hook_point", string(point)),
				zap.String("command", spec.Command),
				zap.Int("exit_code", exitErr.ExitCode()),
				zap.String("stderr", truncatePreview(stderr.Bytes())))
			return nil, &Error{HookPoint: string(point), Command: spec.Command, Kind: KindExit, ExitCode: exitErr.ExitCode(), Message: stderr.String()}
		}
		return nil, &Error{HookPoint: string(point), Command: spec.Command, Kind: KindExecutableNotFound, Message: runErr.Error()}
	}

	out := stdout.Bytes()
	if len(out) == 0 {
		return nil, nil
	}

	var result Result
	if err := json.Unmarshal(out, &result); err != nil {
		r.log.Warn("hook stdout is not valid JSON, ignoring",
			zap.String("hook_point", string(point)),
			zap.String("command", spec.Command),
			zap.String("stdout_preview", truncatePreview(out)))
		return nil, nil
	}
	return &result, nil
}

func (r *Runner) buildEnv(hctx Context) []string {
	env := map[string]string{
		"CC_EXECUTOR_EXECUTION_ID": hctx.ExecutionID,
		"CC_EXECUTOR_SESSION_ID":   hctx.SessionID,
		"CC_EXECUTOR_COMMAND":      hctx.Command,
		"CC_EXECUTOR_BYTES_OUT":    strconv.FormatInt(hctx.BytesOut, 10),
		"CC_EXECUTOR_DURATION_S":   strconv.FormatFloat(hctx.DurationS, 'f', -1, 64),
	}
	if hctx.ExitCode != nil {
		env["CC_EXECUTOR_EXIT_CODE"] = strconv.Itoa(*hctx.ExitCode)
	}
	for k, v := range r.cfg.Env {
		env[k] = v
	}
	if len(hctx.Extra) > 0 {
		if encoded, err := json.Marshal(hctx.Extra); err == nil {
			env["CC_EXECUTOR_CONTEXT"] = string(encoded)
		}
	}

	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

func truncatePreview(data []byte) string {
	if len(data) <= maxLoggedStdout {
		if isPrintable(data) {
			return string(data)
		}
		return fmt.Sprintf("<binary, %d bytes>", len(data))
	}
	preview := data[:maxLoggedStdout]
	if isPrintable(preview) {
		return string(preview) + "...(truncated)"
	}
	return fmt.Sprintf("<binary, %d bytes, preview %x>", len(data), preview[:32])
}

func isPrintable(data []byte) bool {
	return !bytes.ContainsRune(data, 0)
}
