// Package secrets strips sensitive environment variables from child and hook
// environments before spawn.
package secrets

import "strings"

// sensitivePatterns are substrings that, found case-insensitively anywhere in an
// environment variable's key, mark it for stripping. Matches the minimum set the spec
// names (API_KEY, TOKEN, SECRET) plus the common variants seen in the wild.
var sensitivePatterns = []string{
	"API_KEY",
	"APIKEY",
	"API-KEY",
	"TOKEN",
	"SECRET",
	"PASSWORD",
	"PRIVATE_KEY",
	"ACCESS_KEY",
}

// IsSensitive reports whether an environment variable key should be stripped.
func IsSensitive(key string) bool {
	upper := strings.ToUpper(key)
	for _, pattern := range sensitivePatterns {
		if strings.Contains(upper, pattern) {
			return true
		}
	}
	return false
}

// Strip filters a parent-style environment slice ("KEY=VALUE" entries), removing any
// entry whose key matches IsSensitive. The input is never mutated.
func Strip(env []string) []string {
	out := make([]string, 0, len(env))
	for _, kv := range env {
		key, _, found := strings.Cut(kv, "=")
		if found && IsSensitive(key) {
			continue
		}
		out = append(out, kv)
	}
	return out
}

// StripMap is the map-keyed equivalent of Strip, used when building a hook's context
// environment before it is flattened into KEY=VALUE pairs.
func StripMap(env map[string]string) map[string]string {
	out := make(map[string]string, len(env))
	for k, v := range env {
		if IsSensitive(k) {
			continue
		}
		out[k] = v
	}
	return out
}
