// scrubber.go implements redaction of the serialized packet before it is sent.

package aisen

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Scrubber transforms the serialized packet text immediately before
// transmission. It sees the final wire text, so it can redact any substring
// regardless of which field it came from.
type Scrubber interface {
	Scrub(payload string) string
}

// ScrubberFunc adapts a plain function to the Scrubber interface.
type ScrubberFunc func(payload string) string

// Scrub calls f(payload).
func (f ScrubberFunc) Scrub(payload string) string {
	return f(payload)
}

// ScrubberConfig controls the built-in scrubbers.
type ScrubberConfig struct {
	// SensitiveKeys contains additional object key substrings whose values
	// the JSON scrubber redacts.
	SensitiveKeys []string

	// ExtraPatterns contains additional regular expressions redacted from text.
	ExtraPatterns []string

	// MaxStringSize is the maximum length of a string value kept by the JSON
	// scrubber (default: 4096).
	MaxStringSize int

	// FailClosed replaces a payload the JSON scrubber cannot parse with a
	// redaction marker instead of passing it through (default: true).
	FailClosed bool
}

// DefaultScrubberConfig returns production-safe defaults.
func DefaultScrubberConfig() ScrubberConfig {
	return ScrubberConfig{
		MaxStringSize: 4096,
		FailClosed:    true,
	}
}

const redacted = "[REDACTED]"

// scrubFailure is the whole payload sent when a fail-closed scrub cannot
// parse its input. It is still valid JSON.
const scrubFailure = `{"message":"[REDACTED:SCRUB_ERROR]"}`

// Value patterns stop at quotes and backslashes so redaction never eats the
// JSON string delimiters around them.
var textScrubPatterns = []*regexp.Regexp{
	// API keys and tokens
	regexp.MustCompile(`(?i)(api[_-]?key|token)[=:\s]+[\w\-.]+`),
	regexp.MustCompile(`(?i)bearer\s+[\w\-.=]+`),
	regexp.MustCompile(`(?i)sk-[a-zA-Z0-9_-]{20,}`),                            // OpenAI-style keys (including sk-proj-)
	regexp.MustCompile(`(?i)ghp_[a-zA-Z0-9]{36}`),                              // GitHub tokens
	regexp.MustCompile(`(?i)gho_[a-zA-Z0-9]{36}`),                              // GitHub OAuth tokens
	regexp.MustCompile(`(?i)github_pat_[a-zA-Z0-9_]{22,}`),                     // GitHub PAT
	regexp.MustCompile(`(?i)xox[baprs]-[a-zA-Z0-9\-]{10,}`),                    // Slack tokens
	regexp.MustCompile(`eyJ[a-zA-Z0-9_-]*\.eyJ[a-zA-Z0-9_-]*\.[a-zA-Z0-9_-]*`), // JWT

	// Credentials
	regexp.MustCompile(`(?i)(password|passwd|secret|credential)[=:\s]+[^\s'"\\,&]+`),

	// PII
	regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`), // Email
	regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),                              // SSN
	regexp.MustCompile(`\b\d{4}[\s-]?\d{4}[\s-]?\d{4}[\s-]?\d{4}\b`),         // Credit card
}

// Sensitive object key patterns (case-insensitive substring match)
var sensitiveKeyPatterns = []string{
	"token",
	"key",
	"secret",
	"password",
	"credential",
	"auth",
	"passwd",
	"cookie",
}

// PatternScrubber redacts credential and PII patterns anywhere in the text.
type PatternScrubber struct {
	patterns []*regexp.Regexp
}

// NewPatternScrubber compiles cfg.ExtraPatterns on top of the built-in set.
func NewPatternScrubber(cfg ScrubberConfig) (*PatternScrubber, error) {
	patterns := append([]*regexp.Regexp(nil), textScrubPatterns...)
	for _, expr := range cfg.ExtraPatterns {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("aisen: compile scrub pattern %q: %w", expr, err)
		}
		patterns = append(patterns, re)
	}
	return &PatternScrubber{patterns: patterns}, nil
}

// Scrub replaces every pattern match with [REDACTED].
func (s *PatternScrubber) Scrub(payload string) string {
	result := payload
	for _, pattern := range s.patterns {
		result = pattern.ReplaceAllString(result, redacted)
	}
	return result
}

// JSONScrubber parses the payload as JSON, redacts the values of sensitive
// keys, applies the text patterns to every string value and truncates long
// strings.
type JSONScrubber struct {
	text          *PatternScrubber
	sensitiveKeys []string
	maxStringSize int
	failClosed    bool
}

// NewJSONScrubber creates a JSON scrubber from cfg.
func NewJSONScrubber(cfg ScrubberConfig) (*JSONScrubber, error) {
	text, err := NewPatternScrubber(cfg)
	if err != nil {
		return nil, err
	}

	keys := append([]string(nil), sensitiveKeyPatterns...)
	for _, key := range cfg.SensitiveKeys {
		keys = append(keys, strings.ToLower(key))
	}

	maxSize := cfg.MaxStringSize
	if maxSize <= 0 {
		maxSize = DefaultScrubberConfig().MaxStringSize
	}

	return &JSONScrubber{
		text:          text,
		sensitiveKeys: keys,
		maxStringSize: maxSize,
		failClosed:    cfg.FailClosed,
	}, nil
}

// Scrub returns the scrubbed payload. When the payload is not valid JSON it
// is replaced by a redaction marker if the scrubber fails closed, and passed
// through otherwise.
func (s *JSONScrubber) Scrub(payload string) string {
	decoder := json.NewDecoder(strings.NewReader(payload))
	decoder.UseNumber()

	var data any
	if err := decoder.Decode(&data); err != nil {
		return s.onError(payload)
	}

	result, err := json.Marshal(s.scrubValue(data))
	if err != nil {
		return s.onError(payload)
	}
	return string(result)
}

func (s *JSONScrubber) onError(payload string) string {
	if s.failClosed {
		return scrubFailure
	}
	return payload
}

// scrubValue recursively scrubs a JSON value (map, array, or primitive).
func (s *JSONScrubber) scrubValue(val any) any {
	switch v := val.(type) {
	case map[string]any:
		result := make(map[string]any, len(v))
		for key, value := range v {
			if s.isSensitiveKey(key) {
				result[key] = redacted
			} else {
				result[key] = s.scrubValue(value)
			}
		}
		return result
	case []any:
		result := make([]any, len(v))
		for i, value := range v {
			result[i] = s.scrubValue(value)
		}
		return result
	case string:
		return truncateWithMarker(s.text.Scrub(v), s.maxStringSize)
	default:
		return v // Numbers, booleans, null pass through
	}
}

// isSensitiveKey checks if an object key matches sensitive patterns.
func (s *JSONScrubber) isSensitiveKey(key string) bool {
	keyLower := strings.ToLower(key)
	for _, pattern := range s.sensitiveKeys {
		if strings.Contains(keyLower, pattern) {
			return true
		}
	}
	return false
}

// truncateWithMarker truncates a string to at most maxLen bytes and adds a
// truncation marker. The cut never splits a multi-byte rune.
func truncateWithMarker(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	marker := "...[TRUNCATED]"
	if maxLen <= len(marker) {
		return marker[:maxLen]
	}
	cut := maxLen - len(marker)
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + marker
}

// ScrubPacket returns a copy of packet whose fields have passed through s
// the same way the wire text does. It is for transports that present a
// packet without serializing it. The event ID is kept from the original.
func ScrubPacket(packet *Packet, s Scrubber) (*Packet, error) {
	if packet == nil || s == nil {
		return packet, nil
	}

	raw, err := json.Marshal(packet)
	if err != nil {
		return nil, fmt.Errorf("aisen: encode packet: %w", err)
	}

	var scrubbed Packet
	if err := json.Unmarshal([]byte(s.Scrub(string(raw))), &scrubbed); err != nil {
		return nil, fmt.Errorf("aisen: decode scrubbed packet: %w", err)
	}
	scrubbed.EventID = packet.EventID
	return &scrubbed, nil
}
