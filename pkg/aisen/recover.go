// recover.go provides panic capture for goroutines and handlers.

package aisen

import (
	"context"
	"runtime/debug"
)

// Recover captures a panic as a fatal event and returns the recovered value.
// Recover does NOT re-panic after capturing. It must be deferred directly,
// since recover only stops a panic when called by the deferred function:
//
//	func handler(ctx context.Context) {
//	    defer aisen.Recover(ctx, client)
//	    // code that might panic
//	}
func Recover(ctx context.Context, client *Client) any {
	r := recover()
	if r == nil {
		return nil
	}
	client.capturePanic(ctx, r)
	return r
}

// capturePanic records a recovered value together with the current stack.
func (c *Client) capturePanic(ctx context.Context, recovered any) string {
	err, ok := recovered.(error)
	if !ok {
		err = &PanicError{Value: recovered}
	}

	// Capture never fails for a non-nil event.
	id, _ := c.Capture(ctx, &Event{
		Message:    formatRecovered(recovered),
		Exception:  err,
		Level:      LevelFatal,
		Stacktrace: string(debug.Stack()),
		Tags:       map[string]string{"mechanism": "panic"},
	})
	return id
}
