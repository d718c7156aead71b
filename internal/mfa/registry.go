package mfa

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	flow    *Flow
	expires time.Time
}

// Registry holds at most one in-flight enrollment per device scope. Entries expire after
// ttl and are discarded on removal.
type Registry struct {
	ttl   time.Duration
	clock func() time.Time

	mu    sync.Mutex
	flows map[string]entry
}

func NewRegistry(ttl time.Duration) *Registry {
	return &Registry{ttl: ttl, clock: time.Now, flows: make(map[string]entry)}
}

// Put replaces any previous flow for scope.
func (r *Registry) Put(scope string, f *Flow) {
	r.mu.Lock()
	prev, had := r.flows[scope]
	r.flows[scope] = entry{flow: f, expires: r.clock().Add(r.ttl)}
	r.mu.Unlock()
	if had && prev.flow != f {
		prev.flow.Discard()
	}
}

func (r *Registry) Get(scope string) (*Flow, bool) {
	r.mu.Lock()
	e, ok := r.flows[scope]
	if ok && !r.clock().Before(e.expires) {
		delete(r.flows, scope)
		r.mu.Unlock()
		e.flow.Discard()
		return nil, false
	}
	r.mu.Unlock()
	return e.flow, ok
}

func (r *Registry) Delete(scope string) {
	r.mu.Lock()
	e, ok := r.flows[scope]
	delete(r.flows, scope)
	r.mu.Unlock()
	if ok {
		e.flow.Discard()
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.flows)
}

// Sweep discards expired flows and reports how many were removed.
func (r *Registry) Sweep() int {
	now := r.clock()
	var expired []*Flow
	r.mu.Lock()
	for scope, e := range r.flows {
		if !now.Before(e.expires) {
			expired = append(expired, e.flow)
			delete(r.flows, scope)
		}
	}
	r.mu.Unlock()
	for _, f := range expired {
		f.Discard()
	}
	return len(expired)
}

// Run sweeps every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.Sweep()
		}
	}
}
