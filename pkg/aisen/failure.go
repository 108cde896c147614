// failure.go contains send failures so that capturing never interrupts the
// host application.

package aisen

import (
	"errors"
	"fmt"
)

// ErrorHook receives send failures in place of the default diagnostics.
// It runs synchronously on the capturing goroutine.
type ErrorHook func(err error)

// handleFailure reports err and returns the absent event ID. It never
// panics: a panicking hook or log handler is recovered and noted inline.
func (c *Client) handleFailure(err error) (id string) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("aisen: failure handler panicked",
				"panic", formatRecovered(r),
				"error", err,
			)
			id = ""
		}
	}()

	if c.errorHook != nil {
		c.errorHook(err)
		return ""
	}

	c.logger.Error("aisen: failed to send event", "error", err)

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.BodyErr != nil:
			c.logger.Error("aisen: failed to read error response",
				"status", httpErr.StatusCode,
				"error", httpErr.BodyErr,
			)
		case httpErr.Body != "":
			c.logger.Error("aisen: error response",
				"status", httpErr.StatusCode,
				"body", httpErr.Body,
			)
		}
	}

	return ""
}

// formatRecovered formats a recovered panic value as a string.
func formatRecovered(recovered any) string {
	if recovered == nil {
		return "<nil>"
	}
	if err, ok := recovered.(error); ok {
		return err.Error()
	}
	return fmt.Sprintf("%v", recovered)
}
