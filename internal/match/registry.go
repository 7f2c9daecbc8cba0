// Package match implements the MatchRegistry (spec.md §4.4): match
// creation/deletion and the enabled-module/enabled-logic-unit sets each
// match carries.
package match

import (
	"sort"
	"sync"

	"github.com/anvil-platform/simnode/internal/errs"
)

// Match is {matchId, enabledModules, enabledLogicUnits} from spec.md §3.
// Both sets are ordered: enablement order is preserved and observable
// (snapshots list modules in EnabledModules order; logic units run in
// EnabledLogicUnits order).
type Match struct {
	MatchID           string
	EnabledModules    []string
	EnabledLogicUnits []string
}

// ModuleExists reports whether name is a loaded module, used by Registry
// to validate a match's enabled module set at creation time without
// importing the module package directly (avoids a match<->module import
// cycle, since module.Registry has no reason to know about matches).
type ModuleExists func(name string) bool

// DeleteHook is invoked, in registration order, after a match is removed
// from the registry — used to cascade the deletion into sessions,
// logic-unit caches and snapshot history.
type DeleteHook func(matchID string)

// Registry is the MatchRegistry.
type Registry struct {
	mu      sync.RWMutex
	matches map[string]*Match
	hooks   []DeleteHook
}

// NewRegistry creates an empty match registry.
func NewRegistry() *Registry {
	return &Registry{matches: make(map[string]*Match)}
}

// OnDelete registers a cascade hook, run synchronously during Delete.
func (r *Registry) OnDelete(hook DeleteHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, hook)
}

// Create registers a new match. Fails with Conflict if matchID is already
// in use, or NotFound if any enabled module is unknown per moduleExists.
func (r *Registry) Create(m Match, moduleExists ModuleExists) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.matches[m.MatchID]; exists {
		return errs.Newf(errs.Conflict, "match registry: match %q already exists", m.MatchID)
	}
	for _, name := range m.EnabledModules {
		if moduleExists != nil && !moduleExists(name) {
			return errs.Newf(errs.NotFound, "match registry: enabled module %q is not loaded", name)
		}
	}

	copyMatch := m
	copyMatch.EnabledModules = append([]string(nil), m.EnabledModules...)
	copyMatch.EnabledLogicUnits = append([]string(nil), m.EnabledLogicUnits...)
	r.matches[m.MatchID] = &copyMatch
	return nil
}

// Delete removes a match and runs every registered cascade hook. Deleting
// an unknown match returns NotFound.
func (r *Registry) Delete(matchID string) error {
	r.mu.Lock()
	if _, ok := r.matches[matchID]; !ok {
		r.mu.Unlock()
		return errs.Newf(errs.NotFound, "match registry: match %q not found", matchID)
	}
	delete(r.matches, matchID)
	hooks := append([]DeleteHook(nil), r.hooks...)
	r.mu.Unlock()

	for _, h := range hooks {
		h(matchID)
	}
	return nil
}

// Get returns the match by id.
func (r *Registry) Get(matchID string) (Match, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.matches[matchID]
	if !ok {
		return Match{}, errs.Newf(errs.NotFound, "match registry: match %q not found", matchID)
	}
	return *m, nil
}

// Exists reports whether matchID is currently registered.
func (r *Registry) Exists(matchID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.matches[matchID]
	return ok
}

// List returns every match, sorted by id for deterministic iteration.
func (r *Registry) List() []Match {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Match, 0, len(r.matches))
	for _, m := range r.matches {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MatchID < out[j].MatchID })
	return out
}

// ModuleEnabledSomewhere reports whether any currently registered match
// still lists moduleName as enabled; its signature matches
// internal/module.EnabledChecker.
func (r *Registry) ModuleEnabledSomewhere(moduleName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.matches {
		for _, name := range m.EnabledModules {
			if name == moduleName {
				return true
			}
		}
	}
	return false
}
