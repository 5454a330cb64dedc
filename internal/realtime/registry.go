package realtime

import "sync"

// Registry holds every live subscription. It stores only; authorization
// happens before registration, during the handshake. It is mutated from
// socket goroutines, the heartbeat timer and the event listener, so all
// access is mutex-guarded.
type Registry struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		subs: make(map[*Subscription]struct{}),
	}
}

func (r *Registry) Add(sub *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[sub] = struct{}{}
}

// Remove deletes a subscription and reports whether it was present.
// Removing twice is safe; the second call is a no-op.
func (r *Registry) Remove(sub *Subscription) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.subs[sub]; !ok {
		return false
	}
	delete(r.subs, sub)
	return true
}

// Match snapshots the matching subscriptions under the read lock so a
// socket closing mid-broadcast is simply skipped, never a panic.
func (r *Registry) Match(pred func(*Subscription) bool) []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*Subscription
	for sub := range r.subs {
		if pred(sub) {
			matched = append(matched, sub)
		}
	}
	return matched
}

func (r *Registry) All() []*Subscription {
	return r.Match(func(*Subscription) bool { return true })
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}
