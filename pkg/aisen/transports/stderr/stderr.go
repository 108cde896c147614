// Package stderr provides a transport that prints packets to stderr in a
// human-readable format. Useful for development and debugging.
package stderr

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/strongdm/aisen-go/pkg/aisen"
)

// StderrTransportOption configures the stderr transport.
type StderrTransportOption func(*stderrTransportConfig)

type stderrTransportConfig struct {
	verbose  bool
	out      io.Writer
	scrubber aisen.Scrubber
}

// WithVerbose enables full details including stack frames and breadcrumbs.
func WithVerbose() StderrTransportOption {
	return func(c *stderrTransportConfig) {
		c.verbose = true
	}
}

// WithWriter redirects output away from os.Stderr.
func WithWriter(w io.Writer) StderrTransportOption {
	return func(c *stderrTransportConfig) {
		if w != nil {
			c.out = w
		}
	}
}

// WithScrubber redacts packets with s before printing them, matching what an
// HTTP transport configured with the same scrubber would send.
func WithScrubber(s aisen.Scrubber) StderrTransportOption {
	return func(c *stderrTransportConfig) {
		c.scrubber = s
	}
}

// stderrTransport writes packets to stderr in human-readable format.
type stderrTransport struct {
	verbose  bool
	out      io.Writer
	scrubber aisen.Scrubber
}

// NewStderrTransport creates a transport that writes to stderr.
func NewStderrTransport(opts ...StderrTransportOption) aisen.Transport {
	cfg := &stderrTransportConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	return &stderrTransport{
		verbose:  cfg.verbose,
		out:      cfg.out,
		scrubber: cfg.scrubber,
	}
}

func (s *stderrTransport) writer() io.Writer {
	if s.out != nil {
		return s.out
	}
	// Resolved per call so tests can swap os.Stderr.
	return os.Stderr
}

// Send formats the packet and returns its event ID.
func (s *stderrTransport) Send(ctx context.Context, packet *aisen.Packet) (string, error) {
	packet, err := aisen.ScrubPacket(packet, s.scrubber)
	if err != nil {
		return "", err
	}
	w := s.writer()

	// Format: [AISEN] <timestamp> <LEVEL> <logger> <event_id> (release: <release>, env: <environment>)
	timestamp := packet.Timestamp.Format("2006-01-02T15:04:05Z07:00")
	level := strings.ToUpper(string(packet.Level))

	parts := []string{fmt.Sprintf("[AISEN] %s %s %s %s", timestamp, level, packet.Logger, packet.EventID)}

	var build []string
	if packet.Release != "" {
		build = append(build, "release: "+packet.Release)
	}
	if packet.Environment != "" {
		build = append(build, "env: "+packet.Environment)
	}
	if len(build) > 0 {
		parts = append(parts, "("+strings.Join(build, ", ")+")")
	}

	fmt.Fprintln(w, strings.Join(parts, " "))

	if packet.Message != "" {
		fmt.Fprintf(w, "        Message: %s\n", packet.Message)
	}

	if packet.Exception != nil {
		for _, value := range packet.Exception.Values {
			fmt.Fprintf(w, "        Exception: %s: %s\n", value.Type, value.Value)
		}
	}

	if len(packet.Tags) > 0 {
		fmt.Fprintf(w, "        Tags: %s\n", formatTags(packet.Tags))
	}

	if len(packet.Fingerprint) > 0 {
		fmt.Fprintf(w, "        Fingerprint: %s\n", strings.Join(packet.Fingerprint, " "))
	}

	if !s.verbose {
		return packet.EventID, nil
	}

	if packet.Breadcrumbs != nil {
		fmt.Fprintf(w, "        Breadcrumbs:\n")
		for _, crumb := range packet.Breadcrumbs.Values {
			fmt.Fprintf(w, "          %s [%s] %s\n",
				crumb.Timestamp.Format("15:04:05.000"), crumb.Category, crumb.Message)
		}
	}

	if packet.Exception != nil {
		for _, value := range packet.Exception.Values {
			if value.Stacktrace == nil {
				continue
			}
			fmt.Fprintf(w, "        Stack trace:\n")
			frames := value.Stacktrace.Frames
			// Most recent call first, as Go prints them.
			for i := len(frames) - 1; i >= 0; i-- {
				fmt.Fprintf(w, "          %s\n            %s:%d\n",
					frames[i].Function, frames[i].AbsPath, frames[i].Lineno)
			}
		}
	}

	return packet.EventID, nil
}

// formatTags renders tags as sorted key=value pairs.
func formatTags(tags map[string]string) string {
	keys := make([]string, 0, len(tags))
	for key := range tags {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pairs := make([]string, len(keys))
	for i, key := range keys {
		pairs[i] = key + "=" + tags[key]
	}
	return strings.Join(pairs, " ")
}

// Close is a no-op for stderr transport.
func (s *stderrTransport) Close() error {
	return nil
}
