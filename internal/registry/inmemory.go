// Package registry implements registry.Registry as a mutex-guarded map,
// grounded on the same single-lock shape as internal/participants and
// internal/discovery; lookups and mutations are O(1) map operations, as
// spec.md C8 requires of the critical section.
package registry

import (
	"sync"
	"time"

	"github.com/ddspipe/ddspipe/pkg/ddstypes"
	registrypkg "github.com/ddspipe/ddspipe/pkg/registry"
)

// Registry is the concurrency-safe, in-memory registry.Registry
// implementation.
type Registry struct {
	mu      sync.Mutex
	entries map[ddstypes.SampleIdentity]registrypkg.Entry
}

var _ registrypkg.Registry = (*Registry)(nil)

// New creates an empty Registry.
func New() *Registry {
	return &Registry{entries: make(map[ddstypes.SampleIdentity]registrypkg.Entry)}
}

// Register implements registry.Registry.
func (r *Registry) Register(requestIdentity ddstypes.SampleIdentity, originParticipant ddstypes.ParticipantId, originIdentity ddstypes.SampleIdentity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[requestIdentity] = registrypkg.Entry{
		OriginParticipant: originParticipant,
		OriginIdentity:    originIdentity,
		EnqueuedAt:        time.Now(),
	}
}

// Lookup implements registry.Registry.
func (r *Registry) Lookup(requestIdentity ddstypes.SampleIdentity) (registrypkg.Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[requestIdentity]
	return e, ok
}

// Remove implements registry.Registry.
func (r *Registry) Remove(requestIdentity ddstypes.SampleIdentity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, requestIdentity)
}

// Clear implements registry.Registry.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[ddstypes.SampleIdentity]registrypkg.Entry)
}

// Len implements registry.Registry.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
