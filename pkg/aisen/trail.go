// trail.go implements the breadcrumb trail consumed by each capture.

package aisen

import "sync"

// Trail accumulates breadcrumbs until the next capture consumes them.
// It is safe for concurrent use.
type Trail struct {
	mu     sync.Mutex
	crumbs []Breadcrumb
}

// NewTrail returns an empty trail.
func NewTrail() *Trail {
	return &Trail{}
}

// Add appends b. A nil breadcrumb is ignored.
func (t *Trail) Add(b *Breadcrumb) {
	if b == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.crumbs == nil {
		t.crumbs = make([]Breadcrumb, 0, 8)
	}
	t.crumbs = append(t.crumbs, *b)
}

// Restart discards the accumulated breadcrumbs.
func (t *Trail) Restart() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.crumbs = nil
}

// Len returns the number of accumulated breadcrumbs.
func (t *Trail) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.crumbs)
}

// Snapshot returns a copy of the accumulated breadcrumbs.
func (t *Trail) Snapshot() []Breadcrumb {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.crumbs == nil {
		return nil
	}
	result := make([]Breadcrumb, len(t.crumbs))
	copy(result, t.crumbs)
	return result
}

// take detaches the accumulated breadcrumbs and leaves the trail empty, in
// one step, so an entry is attached to at most one capture.
func (t *Trail) take() []Breadcrumb {
	t.mu.Lock()
	defer t.mu.Unlock()
	crumbs := t.crumbs
	t.crumbs = nil
	return crumbs
}
