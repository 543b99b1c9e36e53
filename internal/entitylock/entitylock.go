// Package entitylock hands out per-key mutexes so that read-modify-write
// cycles on the same entity are serialized across writers. Repositories
// persist whole entities, so two actors that both load a loan, change it
// and save it would otherwise overwrite each other's writes.
package entitylock

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// Registry maps keys to mutexes. An entry exists only while at least one
// holder or waiter references it, so the map stays bounded by the number
// of in-flight operations.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func New() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Lock blocks until the key's mutex is acquired and returns the matching
// unlock. The unlock must be called exactly once.
func (r *Registry) Lock(key string) (unlock func()) {
	r.mu.Lock()
	e, ok := r.entries[key]
	if !ok {
		e = &entry{}
		r.entries[key] = e
	}
	e.refs++
	r.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		r.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(r.entries, key)
		}
		r.mu.Unlock()
	}
}
