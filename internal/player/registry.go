// Package player implements the PlayerRegistry and per-(match, player)
// Session state machine (spec.md §4.5).
package player

import (
	"sort"
	"sync"

	"github.com/anvil-platform/simnode/internal/errs"
)

// Registry tracks known players, unique by playerID within a container.
type Registry struct {
	mu      sync.RWMutex
	players map[string]struct{}
}

// NewRegistry creates an empty player registry.
func NewRegistry() *Registry {
	return &Registry{players: make(map[string]struct{})}
}

// Create registers a new player. Conflict if playerID is already known.
func (r *Registry) Create(playerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.players[playerID]; ok {
		return errs.Newf(errs.Conflict, "player registry: player %q already exists", playerID)
	}
	r.players[playerID] = struct{}{}
	return nil
}

// Delete removes a known player. NotFound if playerID is unknown.
func (r *Registry) Delete(playerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.players[playerID]; !ok {
		return errs.Newf(errs.NotFound, "player registry: player %q not found", playerID)
	}
	delete(r.players, playerID)
	return nil
}

// Exists reports whether playerID is known.
func (r *Registry) Exists(playerID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.players[playerID]
	return ok
}

// List returns every known player id, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.players))
	for id := range r.players {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
