// context.go carries request-scoped capture state through context.Context:
// the affected user, the HTTP request being served, a breadcrumb trail and
// the cxdb context ID used by the cxdb transport.

package aisen

import (
	"context"
	"net/http"
)

// Context key types (unexported to avoid collisions)
type userKey struct{}
type requestKey struct{}
type trailKey struct{}
type contextIDKey struct{}

// contextIDSet is used to distinguish "zero value" from "not set"
type contextIDSet struct {
	id uint64
}

// ContextWithUser returns a context carrying the user affected by events
// captured under it.
func ContextWithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// UserFromContext is the default UserFactory. Returns nil if no user is set.
func UserFromContext(ctx context.Context) *User {
	user, _ := ctx.Value(userKey{}).(*User)
	return user
}

// ContextWithRequest returns a context carrying the HTTP request being served.
func ContextWithRequest(ctx context.Context, r *http.Request) context.Context {
	return context.WithValue(ctx, requestKey{}, r)
}

// RequestFromContext is the default RequestFactory. Returns nil if no
// request is set.
func RequestFromContext(ctx context.Context) *Request {
	r, _ := ctx.Value(requestKey{}).(*http.Request)
	return NewRequest(r)
}

// ContextWithTrail returns a context carrying a request-scoped trail. Capture
// consumes this trail instead of the client's own.
func ContextWithTrail(ctx context.Context, trail *Trail) context.Context {
	return context.WithValue(ctx, trailKey{}, trail)
}

// TrailFromContext extracts the request-scoped trail.
// Returns nil and false if not set.
func TrailFromContext(ctx context.Context) (*Trail, bool) {
	trail, ok := ctx.Value(trailKey{}).(*Trail)
	return trail, ok && trail != nil
}

// ContextWithContextID returns a context with the cxdb context ID attached.
// The cxdb transport appends packets captured under it to that context
// instead of creating a new one.
func ContextWithContextID(ctx context.Context, contextID uint64) context.Context {
	return context.WithValue(ctx, contextIDKey{}, contextIDSet{id: contextID})
}

// ContextIDFromContext extracts the cxdb context ID from context.
// Returns 0 and false if not set.
func ContextIDFromContext(ctx context.Context) (uint64, bool) {
	v := ctx.Value(contextIDKey{})
	if v == nil {
		return 0, false
	}
	set, ok := v.(contextIDSet)
	if !ok {
		return 0, false
	}
	return set.id, true
}
