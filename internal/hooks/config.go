package hooks

import (
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"

	v1 "github.com/cc-executor/cc-executor/pkg/api/v1"
)

// Config is the parsed form of the hook configuration file (§6.3): a map from hook
// point to one or more hook commands, a default per-hook timeout, and env merged into
// every hook invocation.
type Config struct {
	Hooks         map[v1.HookPoint][]v1.HookSpec
	DefaultTimeoutS float64
	Env           map[string]string
}

// rawHookEntry accepts either the shorthand string form or the explicit
// {"command":..., "timeout":...} object form, or a list of either.
type rawHookEntry struct {
	Command string  `json:"command"`
	Timeout float64 `json:"timeout"`
}

type rawConfig struct {
	Hooks   map[string]json.RawMessage `json:"hooks"`
	Timeout float64                    `json:"timeout"`
	Env     map[string]string          `json:"env"`
}

var knownHookPoints = func() map[string]v1.HookPoint {
	m := make(map[string]v1.HookPoint, len(v1.AllHookPoints))
	for _, p := range v1.AllHookPoints {
		m[string(p)] = p
	}
	return m
}()

// LoadConfig reads and parses a hook config file. An empty path returns an empty
// Config (no hooks configured), matching the spec's "absent ⇒ no hooks" rule.
func LoadConfig(path string, log *zap.Logger) (*Config, error) {
	cfg := &Config{Hooks: map[v1.HookPoint][]v1.HookSpec{}, DefaultTimeoutS: 30}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read hook config: %w", err)
	}

	var raw rawConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse hook config: %w", err)
	}

	if raw.Timeout > 0 {
		cfg.DefaultTimeoutS = raw.Timeout
	}
	cfg.Env = raw.Env

	for pointName, entries := range raw.Hooks {
		point, ok := knownHookPoints[pointName]
		if !ok {
			log.Warn("ignoring unknown hook point in config", zap.String("hook_point", pointName))
			continue
		}

		specs, err := parseHookEntries(point, entries, cfg.DefaultTimeoutS)
		if err != nil {
			return nil, fmt.Errorf("hook point %q: %w", pointName, err)
		}
		cfg.Hooks[point] = specs
	}

	return cfg, nil
}

func parseHookEntries(point v1.HookPoint, raw json.RawMessage, defaultTimeout float64) ([]v1.HookSpec, error) {
	// Shorthand: a bare string.
	var shorthand string
	if err := json.Unmarshal(raw, &shorthand); err == nil {
		return []v1.HookSpec{{Point: point, Command: shorthand, TimeoutS: defaultTimeout}}, nil
	}

	// Explicit single object.
	var single rawHookEntry
	if err := json.Unmarshal(raw, &single); err == nil && single.Command != "" {
		return []v1.HookSpec{specFromRaw(point, single, defaultTimeout)}, nil
	}

	// List of either shorthand strings or explicit objects.
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("expected string, object, or list: %w", err)
	}

	specs := make([]v1.HookSpec, 0, len(list))
	for _, item := range list {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			specs = append(specs, v1.HookSpec{Point: point, Command: s, TimeoutS: defaultTimeout})
			continue
		}
		var entry rawHookEntry
		if err := json.Unmarshal(item, &entry); err != nil || entry.Command == "" {
			return nil, fmt.Errorf("invalid hook list entry")
		}
		specs = append(specs, specFromRaw(point, entry, defaultTimeout))
	}
	return specs, nil
}

func specFromRaw(point v1.HookPoint, raw rawHookEntry, defaultTimeout float64) v1.HookSpec {
	timeout := raw.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return v1.HookSpec{Point: point, Command: raw.Command, TimeoutS: timeout}
}
