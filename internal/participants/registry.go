// Package participants keeps the set of identities allowed to exchange
// messages on the ledger.
package participants

import (
	"errors"
	"sort"
	"sync"

	"github.com/jmerrifield20/quorumledger/internal/chain"
)

// ErrAlreadyRegistered is returned when registering an identity twice.
var ErrAlreadyRegistered = errors.New("participant already registered")

// Registry is an in-memory, thread-safe set of identities.
type Registry struct {
	mu      sync.RWMutex
	members map[chain.Identity]struct{}
}

// New creates a Registry holding the given identities. Duplicates collapse.
func New(initial ...chain.Identity) *Registry {
	r := &Registry{members: make(map[chain.Identity]struct{}, len(initial))}
	for _, id := range initial {
		r.members[id] = struct{}{}
	}
	return r
}

// Register adds id to the set.
func (r *Registry) Register(id chain.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[id]; ok {
		return ErrAlreadyRegistered
	}
	r.members[id] = struct{}{}
	return nil
}

// IsRegistered reports whether id has been registered.
func (r *Registry) IsRegistered(id chain.Identity) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[id]
	return ok
}

// Len returns the number of registered identities.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// List returns all identities ordered by address, then id.
func (r *Registry) List() []chain.Identity {
	r.mu.RLock()
	out := make([]chain.Identity, 0, len(r.members))
	for id := range r.members {
		out = append(out, id)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].IPAddress != out[j].IPAddress {
			return out[i].IPAddress < out[j].IPAddress
		}
		return out[i].UUID < out[j].UUID
	})
	return out
}
