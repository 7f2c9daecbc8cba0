package snapshot

import (
	"sort"

	"github.com/anvil-platform/simnode/internal/ecs"
	"github.com/anvil-platform/simnode/internal/errs"
	"github.com/anvil-platform/simnode/internal/module"
)

const entityIDComponentName = "ENTITY_ID"
const ownerComponentName = "OWNER"

// Provider is the SnapshotProvider: it reads live ComponentStore state
// into immutable Snapshot values, scoped to one match's enabled modules.
type Provider struct {
	store    *ecs.Store
	registry *module.Registry
}

// NewProvider creates a provider reading from store through registry.
func NewProvider(store *ecs.Store, registry *module.Registry) *Provider {
	return &Provider{store: store, registry: registry}
}

func (p *Provider) resolveModules(enabledModules []string) ([]*module.Module, error) {
	mods := make([]*module.Module, 0, len(enabledModules))
	for _, name := range enabledModules {
		mod, ok := p.registry.Get(name)
		if !ok {
			return nil, errs.Newf(errs.NotFound, "snapshot provider: module %q not loaded", name)
		}
		mods = append(mods, mod)
	}
	return mods, nil
}

// findComponent returns the ComponentID declared under componentName by
// any module in mods, scanning in module order.
func findComponent(mods []*module.Module, componentName string) (ecs.ComponentID, bool) {
	for _, mod := range mods {
		for _, c := range mod.Components {
			if c.Name == componentName {
				return c.ID, true
			}
		}
	}
	return 0, false
}

// entityOrder computes the stable, sorted-ascending scan order used for
// every array in one snapshot — the ENTITY_ID-publishing module's live
// entity set (spec.md §4.8: "the ordering of ENTITY_ID within the
// module's first system scan"). Sorting ascending by entity id is this
// engine's concrete, deterministic reading of "stable ordering": the
// store has no independent insertion-order index to recover, and a
// numeric sort is the simplest total order available.
func entityOrder(store *ecs.Store, mods []*module.Module) ([]ecs.EntityID, error) {
	cid, ok := findComponent(mods, entityIDComponentName)
	if !ok {
		return nil, errs.Newf(errs.InvalidState, "snapshot provider: no enabled module publishes %s", entityIDComponentName)
	}
	set := store.QueryAll(cid)
	ids := make([]ecs.EntityID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func buildSnapshot(store *ecs.Store, mods []*module.Module, ids []ecs.EntityID, matchID string, tick uint64) Snapshot {
	snap := Snapshot{
		MatchID:   matchID,
		Tick:      tick,
		EntityIDs: make([]uint64, len(ids)),
	}
	for i, id := range ids {
		snap.EntityIDs[i] = uint64(id)
	}

	for _, mod := range mods {
		ms := ModuleSnapshot{Name: mod.Name}
		for _, c := range mod.Components {
			values := make([]float32, len(ids))
			for i, id := range ids {
				values[i] = store.Get(id, c.ID)
			}
			ms.Components = append(ms.Components, ComponentSnapshot{Name: c.Name, Values: values})
		}
		snap.Modules = append(snap.Modules, ms)
	}
	return snap
}

// ForMatch produces a Snapshot containing every enabled module, every
// component it publishes, and the values of all live entities the
// ENTITY_ID-publishing module currently scans, at tick.
func (p *Provider) ForMatch(matchID string, enabledModules []string, tick uint64) (Snapshot, error) {
	mods, err := p.resolveModules(enabledModules)
	if err != nil {
		return Snapshot{}, err
	}
	ids, err := entityOrder(p.store, mods)
	if err != nil {
		return Snapshot{}, err
	}
	return buildSnapshot(p.store, mods, ids, matchID, tick), nil
}

// ForMatchAndPlayer restricts ForMatch's result to entities whose OWNER
// component equals ownerValue. Resolving a playerID to its numeric
// ownerValue is an external module contract (spec.md §4.8) the core does
// not interpret further.
func (p *Provider) ForMatchAndPlayer(matchID string, enabledModules []string, tick uint64, ownerValue float32) (Snapshot, error) {
	mods, err := p.resolveModules(enabledModules)
	if err != nil {
		return Snapshot{}, err
	}
	ownerCID, ok := findComponent(mods, ownerComponentName)
	if !ok {
		return Snapshot{}, errs.Newf(errs.InvalidState, "snapshot provider: no enabled module publishes %s", ownerComponentName)
	}
	ids, err := entityOrder(p.store, mods)
	if err != nil {
		return Snapshot{}, err
	}

	filtered := ids[:0:0]
	for _, id := range ids {
		if p.store.Get(id, ownerCID) == ownerValue {
			filtered = append(filtered, id)
		}
	}
	return buildSnapshot(p.store, mods, filtered, matchID, tick), nil
}
