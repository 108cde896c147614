// packet.go defines the wire packet and its default construction from an Event.

package aisen

import (
	"errors"
	"fmt"
	"maps"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultLoggerName is the logger name packets carry when the event names none.
const DefaultLoggerName = "root"

// Packet is the serializable representation of a captured event.
type Packet struct {
	EventID     string            `json:"event_id"`
	Timestamp   time.Time         `json:"timestamp"`
	Level       Level             `json:"level"`
	Logger      string            `json:"logger,omitempty"`
	Platform    string            `json:"platform"`
	Message     string            `json:"message,omitempty"`
	Exception   *Exception        `json:"exception,omitempty"`
	Tags        map[string]string `json:"tags,omitempty"`
	Extra       map[string]any    `json:"extra,omitempty"`
	Fingerprint []string          `json:"fingerprint,omitempty"`
	Breadcrumbs *BreadcrumbValues `json:"breadcrumbs,omitempty"`
	User        *User             `json:"user,omitempty"`
	Request     *Request          `json:"request,omitempty"`
	Release     string            `json:"release,omitempty"`
	Environment string            `json:"environment,omitempty"`
	ServerName  string            `json:"server_name,omitempty"`
	Contexts    map[string]any    `json:"contexts,omitempty"`
	SDK         SDKInfo           `json:"sdk"`
}

// Exception lists an error chain, innermost cause first.
type Exception struct {
	Values []ExceptionValue `json:"values"`
}

// ExceptionValue is one error in a chain.
type ExceptionValue struct {
	Type       string      `json:"type"`
	Value      string      `json:"value"`
	Module     string      `json:"module,omitempty"`
	Stacktrace *Stacktrace `json:"stacktrace,omitempty"`
}

// Stacktrace holds frames ordered oldest call first.
type Stacktrace struct {
	Frames []Frame `json:"frames"`
}

// Frame is a single stack frame.
type Frame struct {
	Function string `json:"function,omitempty"`
	Module   string `json:"module,omitempty"`
	Filename string `json:"filename,omitempty"`
	AbsPath  string `json:"abs_path,omitempty"`
	Lineno   int    `json:"lineno,omitempty"`
	InApp    bool   `json:"in_app"`
}

// BreadcrumbValues wraps the trail attached to a packet.
type BreadcrumbValues struct {
	Values []Breadcrumb `json:"values"`
}

// User identifies the user affected by an event.
type User struct {
	ID        string            `json:"id,omitempty"`
	Username  string            `json:"username,omitempty"`
	Email     string            `json:"email,omitempty"`
	IPAddress string            `json:"ip_address,omitempty"`
	Data      map[string]string `json:"data,omitempty"`
}

// Request describes the HTTP request being served when an event occurred.
type Request struct {
	URL         string            `json:"url,omitempty"`
	Method      string            `json:"method,omitempty"`
	QueryString string            `json:"query_string,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
}

// SDKInfo names the client that produced a packet.
type SDKInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// PacketFactory turns an enriched event into a wire packet.
type PacketFactory func(event *Event) (*Packet, error)

// NewPacket is the default PacketFactory.
func NewPacket(event *Event) (*Packet, error) {
	if event == nil {
		return nil, ErrNilEvent
	}

	timestamp := event.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	level := event.Level
	if level == "" {
		level = LevelInfo
		if event.Exception != nil {
			level = LevelError
		}
	}

	logger := event.Logger
	if logger == "" {
		logger = DefaultLoggerName
	}

	hostname, _ := os.Hostname() // empty server_name is acceptable

	p := &Packet{
		EventID:     newEventID(),
		Timestamp:   timestamp.UTC(),
		Level:       level,
		Logger:      logger,
		Platform:    "go",
		Message:     event.Message,
		Tags:        maps.Clone(event.Tags),
		Extra:       maps.Clone(event.Extra),
		Fingerprint: slices.Clone(event.Fingerprint),
		ServerName:  hostname,
		SDK:         SDKInfo{Name: SDKName, Version: Version},
	}

	if event.Exception != nil {
		p.Exception = newException(event.Exception, event.Stacktrace)
		if p.Message == "" {
			p.Message = event.Exception.Error()
		}
	}

	if len(event.Breadcrumbs) > 0 {
		p.Breadcrumbs = &BreadcrumbValues{Values: slices.Clone(event.Breadcrumbs)}
	}

	return p, nil
}

// newEventID returns a random identifier as 32 lowercase hex characters.
func newEventID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// newException converts an error chain into exception values. The stack
// trace, when given, belongs to the outermost error.
func newException(err error, trace string) *Exception {
	var chain []ExceptionValue
	for e := err; e != nil; e = errors.Unwrap(e) {
		chain = append(chain, ExceptionValue{
			Type:  errorType(e),
			Value: e.Error(),
		})
		if len(chain) >= 10 {
			break
		}
	}

	if frames := parseStackFrames(trace); len(frames) > 0 {
		chain[0].Stacktrace = &Stacktrace{Frames: frames}
	}

	slices.Reverse(chain)
	return &Exception{Values: chain}
}

// errorType returns the dynamic type name of err without pointer markers.
func errorType(err error) string {
	if err == nil {
		return ""
	}
	return strings.TrimPrefix(fmt.Sprintf("%T", err), "*")
}

// parseStackFrames parses runtime/debug.Stack output into frames ordered
// oldest call first.
func parseStackFrames(trace string) []Frame {
	if trace == "" {
		return nil
	}

	lines := strings.Split(trace, "\n")
	var frames []Frame
	for i := 0; i < len(lines)-1; i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" || strings.HasPrefix(line, "goroutine ") {
			continue
		}
		if !strings.HasPrefix(lines[i+1], "\t") {
			continue
		}

		function := strings.TrimPrefix(line, "created by ")
		if idx := strings.Index(function, " in goroutine"); idx > 0 {
			function = function[:idx]
		} else if idx := strings.LastIndex(function, "("); idx > 0 {
			function = function[:idx]
		}

		location := strings.TrimSpace(lines[i+1])
		if idx := strings.Index(location, " +0x"); idx > 0 {
			location = location[:idx]
		}
		file, lineno := location, 0
		if idx := strings.LastIndex(location, ":"); idx > 0 {
			file = location[:idx]
			lineno, _ = strconv.Atoi(location[idx+1:])
		}

		frames = append(frames, Frame{
			Function: function,
			Module:   frameModule(function),
			Filename: filepath.Base(file),
			AbsPath:  file,
			Lineno:   lineno,
			InApp:    !isRuntimeFrame(function),
		})
		i++
	}

	slices.Reverse(frames)
	return frames
}

// frameModule returns the package path portion of a qualified function name.
func frameModule(function string) string {
	slash := strings.LastIndex(function, "/")
	dot := strings.Index(function[slash+1:], ".")
	if dot < 0 {
		return ""
	}
	return function[:slash+1+dot]
}

func isRuntimeFrame(function string) bool {
	return strings.HasPrefix(function, "runtime.") ||
		strings.HasPrefix(function, "runtime/debug.") ||
		strings.HasPrefix(function, "testing.")
}

// NewRequest captures the parts of r worth reporting. Credentials carried
// in the Authorization and Cookie headers are dropped.
func NewRequest(r *http.Request) *Request {
	if r == nil {
		return nil
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}

	headers := make(map[string]string, len(r.Header))
	for name, values := range r.Header {
		if name == "Authorization" || name == "Cookie" || len(values) == 0 {
			continue
		}
		headers[name] = values[0]
	}

	req := &Request{
		URL:         scheme + "://" + r.Host + r.URL.Path,
		Method:      r.Method,
		QueryString: r.URL.RawQuery,
		Headers:     headers,
	}
	if r.RemoteAddr != "" {
		req.Env = map[string]string{"REMOTE_ADDR": r.RemoteAddr}
	}
	return req
}
