// event.go defines the in-process event handed to Client.Capture.

package aisen

import (
	"fmt"
	"strings"
	"time"
)

// Level indicates the severity of an event.
type Level string

const (
	// LevelDebug is for diagnostic detail useful only while debugging.
	LevelDebug Level = "debug"

	// LevelInfo is for informational messages.
	LevelInfo Level = "info"

	// LevelWarning indicates a non-fatal issue that may need attention.
	LevelWarning Level = "warning"

	// LevelError indicates a recoverable error that caused an operation to fail.
	LevelError Level = "error"

	// LevelFatal indicates an unrecoverable error such as a panic.
	LevelFatal Level = "fatal"
)

// ParseLevel parses a level name. "warn" is accepted for LevelWarning.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warning", "warn":
		return LevelWarning, nil
	case "error":
		return LevelError, nil
	case "fatal":
		return LevelFatal, nil
	default:
		return "", fmt.Errorf("aisen: unknown level %q", s)
	}
}

// Breadcrumb is a contextual trail entry recorded before an event occurs.
type Breadcrumb struct {
	Timestamp time.Time      `json:"timestamp"`
	Type      string         `json:"type,omitempty"`
	Category  string         `json:"category,omitempty"`
	Message   string         `json:"message,omitempty"`
	Level     Level          `json:"level,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// NewBreadcrumb returns a breadcrumb stamped with the current time.
func NewBreadcrumb(category, message string) *Breadcrumb {
	return &Breadcrumb{
		Timestamp: time.Now().UTC(),
		Category:  category,
		Message:   message,
	}
}

// Event is a single capture request. It is transient: Capture copies it,
// enriches the copy and discards it after the send attempt.
type Event struct {
	// Message is the human-readable message. Defaults to the exception's
	// message when empty.
	Message string

	// Exception is the error being reported, if any.
	Exception error

	// Level defaults to LevelError for events with an exception and
	// LevelInfo otherwise.
	Level Level

	// Logger names the logger that produced the event. Defaults to "root".
	Logger string

	// Tags are caller-supplied tags. They win over the client's default tags.
	Tags map[string]string

	// Extra is arbitrary metadata sent verbatim.
	Extra map[string]any

	// Fingerprint is an optional grouping key.
	Fingerprint []string

	// Timestamp defaults to the capture time.
	Timestamp time.Time

	// Stacktrace is an optional Go stack trace in runtime/debug.Stack format.
	Stacktrace string

	// Breadcrumbs are attached by Capture from the active trail. Values set
	// by the caller are discarded.
	Breadcrumbs []Breadcrumb
}
