package timing

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
)

const maxNormalizedLength = 256

var (
	uuidPattern      = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)
	timestampPattern = regexp.MustCompile(`\b\d{10,13}\b`)
	isoTimePattern   = regexp.MustCompile(`\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:\d{2})?`)
)

// Normalize strips volatile tokens (UUIDs, unix/ISO timestamps) from a command string
// and truncates it, so that two invocations of "the same" command (differing only by
// a generated ID or a timestamp argument) share a fingerprint.
func Normalize(command string) string {
	out := uuidPattern.ReplaceAllString(command, "<uuid>")
	out = isoTimePattern.ReplaceAllString(out, "<timestamp>")
	out = timestampPattern.ReplaceAllString(out, "<timestamp>")
	if len(out) > maxNormalizedLength {
		out = out[:maxNormalizedLength]
	}
	return out
}

// Fingerprint computes the stable hash of (commandClass, normalized command) used to
// key the Timing Store.
func Fingerprint(commandClass, command string) string {
	normalized := Normalize(command)
	sum := sha256.Sum256([]byte(commandClass + "\x00" + normalized))
	return hex.EncodeToString(sum[:16])
}
