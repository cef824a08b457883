// Package serial provides per-key single-writer execution: calls bound to
// the same key run strictly in submission order on one goroutine, while
// calls for distinct keys proceed in parallel. Reservation pools and
// per-inscription sales each map to one key, so every state decision for a
// resource happens inside its own serialized context.
package serial

import (
	"context"
	"sync"
)

type request struct {
	ctx  context.Context
	fn   func(ctx context.Context) error
	errc chan error
}

type actor struct {
	requests chan request
	pending  int
}

// Runner dispatches functions to per-key actor goroutines. Actors are
// started on demand and retire once their queue drains.
type Runner struct {
	mu     sync.Mutex
	actors map[string]*actor
}

func NewRunner() *Runner {
	return &Runner{actors: make(map[string]*actor)}
}

// Do runs fn on the actor goroutine for key and returns its error. Calls
// with equal keys never overlap; the caller blocks until fn has run. The
// context is passed through to fn, which remains responsible for honoring
// cancellation once it starts.
func (r *Runner) Do(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	r.mu.Lock()
	a := r.actors[key]
	if a == nil {
		a = &actor{requests: make(chan request, 8)}
		r.actors[key] = a
		go r.run(key, a)
	}
	a.pending++
	r.mu.Unlock()

	errc := make(chan error, 1)
	a.requests <- request{ctx: ctx, fn: fn, errc: errc}
	return <-errc
}

func (r *Runner) run(key string, a *actor) {
	for {
		r.mu.Lock()
		if a.pending == 0 {
			// No request can be queued for this actor anymore: pending is
			// incremented under the same lock that removes the map entry.
			delete(r.actors, key)
			r.mu.Unlock()
			return
		}
		r.mu.Unlock()

		req := <-a.requests
		req.errc <- req.fn(req.ctx)

		r.mu.Lock()
		a.pending--
		r.mu.Unlock()
	}
}
