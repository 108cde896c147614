// fingerprint.go derives stable grouping keys from stack traces.

package aisen

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// defaultFingerprint tells the collection service to also apply its own
// grouping alongside the derived key.
const defaultFingerprint = "{{ default }}"

// Fingerprint derives a grouping key for an event from its exception type
// and the first 3 frames of its stack trace (function names only,
// normalized). It ignores variable data like messages, line numbers and
// memory addresses.
//
// Returns nil when the event has no usable stack trace.
func Fingerprint(event *Event) []string {
	frames := normalizeStackTrace(event.Stacktrace)
	if len(frames) == 0 {
		return nil
	}

	parts := append([]string{errorType(event.Exception)}, frames...)
	hash := sha256.Sum256([]byte(strings.Join(parts, "|")))

	// Hex-encoded first 16 bytes (32 hex chars)
	return []string{defaultFingerprint, hex.EncodeToString(hash[:16])}
}

// Regex patterns for stack trace parsing
var (
	// Match function names like "main.doSomething", "pkg/subpkg.Function"
	// or "example.com/mod-name/pkg.(*T).Method"
	funcNamePattern = regexp.MustCompile(`^([a-zA-Z0-9_./()*-]+\.[a-zA-Z0-9_]+)`)

	// Match memory addresses like "0x1234abcd"
	memAddrPattern = regexp.MustCompile(`0x[0-9a-fA-F]+`)

	// Match offset patterns like "+0x123"
	offsetPattern = regexp.MustCompile(`\+0x[0-9a-fA-F]+`)
)

// normalizeStackTrace extracts the first 3 application function names from
// a stack trace. Frames inside the runtime and inside aisen itself (the
// capture machinery) are skipped so the same failure fingerprints the same
// way regardless of how it was captured.
func normalizeStackTrace(trace string) []string {
	if trace == "" {
		return nil
	}

	var frames []string
	for _, line := range strings.Split(trace, "\n") {
		// File path lines are indented with a tab.
		if strings.HasPrefix(line, "\t") {
			continue
		}

		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "goroutine ") || strings.HasPrefix(line, "created by ") {
			continue
		}

		// Remove memory addresses and offsets
		funcLine := offsetPattern.ReplaceAllString(line, "")
		funcLine = memAddrPattern.ReplaceAllString(funcLine, "")

		// Remove parentheses and arguments
		if idx := strings.LastIndex(funcLine, "("); idx > 0 {
			funcLine = funcLine[:idx]
		}

		match := funcNamePattern.FindString(strings.TrimSpace(funcLine))
		if match == "" || isRuntimeFrame(match) || isCaptureFrame(match) {
			continue
		}

		frames = append(frames, match)
		if len(frames) >= 3 {
			break
		}
	}

	return frames
}

func isCaptureFrame(function string) bool {
	return strings.HasPrefix(function, "github.com/strongdm/aisen-go/pkg/aisen.")
}
