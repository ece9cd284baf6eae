package langserver

import (
	"encoding/json"
	"sync"
)

// ReadyPredicate inspects one observed notification and reports whether the
// backend has finished its startup indexing. Most backends signal this
// through window/logMessage or a custom progress notification.
type ReadyPredicate func(method string, params json.RawMessage) bool

// readiness is a one-way latch flipped by the first satisfied predicate.
// Backends with no predicate are resolved immediately on process start.
// A backend that later re-indexes is not observable here; readiness never
// regresses.
type readiness struct {
	predicates []ReadyPredicate
	once       sync.Once
	ch         chan struct{}
}

func newReadiness(predicates []ReadyPredicate) *readiness {
	return &readiness{
		predicates: predicates,
		ch:         make(chan struct{}),
	}
}

// observe evaluates the predicates against one notification
func (r *readiness) observe(method string, params json.RawMessage) {
	for _, p := range r.predicates {
		if p(method, params) {
			r.resolve()
			return
		}
	}
}

// resolve flips the latch; safe to call more than once
func (r *readiness) resolve() {
	r.once.Do(func() { close(r.ch) })
}

// immediate reports whether the latch should resolve as soon as the process
// starts
func (r *readiness) immediate() bool {
	return len(r.predicates) == 0
}

// Ready returns a channel closed once the backend is ready
func (r *readiness) Ready() <-chan struct{} {
	return r.ch
}
