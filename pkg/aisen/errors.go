// errors.go defines the sentinel and typed errors returned by aisen.

package aisen

import (
	"errors"
	"fmt"
	"strconv"
)

// Sentinel errors for invalid usage and configuration.
var (
	// ErrNilEvent is the only error Capture returns. Transport failures are
	// contained and never surface to the caller.
	ErrNilEvent = errors.New("aisen: event cannot be nil")

	ErrInvalidDSN       = errors.New("aisen: invalid DSN")
	ErrMissingEndpoint  = errors.New("aisen: endpoint URI is required")
	ErrMissingPublicKey = errors.New("aisen: public key is required")
	ErrMissingProjectID = errors.New("aisen: project ID is required")
	ErrMissingTransport = errors.New("aisen: an endpoint identity or a transport is required")
)

// HTTPError reports a non-2xx answer from the collection service.
//
// The response body is read before the response is closed so that failure
// handling can log it. BodyErr records a failure while reading it.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
	BodyErr    error
}

func (e *HTTPError) Error() string {
	status := e.Status
	if status == "" {
		status = strconv.Itoa(e.StatusCode)
	}
	return fmt.Sprintf("aisen: collection service returned %s", status)
}

// PanicError wraps a recovered panic value that is not itself an error.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return "panic: " + formatRecovered(e.Value)
}
