// Package wire implements the binary encodings named in spec.md §6:
// snapshots/deltas as the module-name -> component-name -> float32-array
// map the spec describes, and commands/resources in their equivalent
// binary form, all via msgpack (github.com/vmihailenco/msgpack/v5),
// grounded on the teacher's engine-module-server/-client pairing
// structpb.Struct payloads over the wire in the same spirit: a
// schema-free, self-describing map rather than a generated struct.
package wire

import (
	"sort"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/anvil-platform/simnode/internal/module"
	"github.com/anvil-platform/simnode/internal/resource"
	"github.com/anvil-platform/simnode/internal/snapshot"
)

// snapshotWire is the on-wire shape spec.md §6 describes: "a map keyed by
// module name; each value a map keyed by component name; each value an
// array of 32-bit floats."
type snapshotWire struct {
	MatchID   string                         `msgpack:"matchId"`
	Tick      uint64                         `msgpack:"tick"`
	EntityIDs []uint64                       `msgpack:"entityIds"`
	Modules   map[string]map[string][]float32 `msgpack:"modules"`
}

func toSnapshotWire(s snapshot.Snapshot) snapshotWire {
	modules := make(map[string]map[string][]float32, len(s.Modules))
	for _, mod := range s.Modules {
		comps := make(map[string][]float32, len(mod.Components))
		for _, comp := range mod.Components {
			comps[comp.Name] = comp.Values
		}
		modules[mod.Name] = comps
	}
	return snapshotWire{MatchID: s.MatchID, Tick: s.Tick, EntityIDs: s.EntityIDs, Modules: modules}
}

func fromSnapshotWire(w snapshotWire) snapshot.Snapshot {
	modNames := make([]string, 0, len(w.Modules))
	for name := range w.Modules {
		modNames = append(modNames, name)
	}
	sort.Strings(modNames)

	mods := make([]snapshot.ModuleSnapshot, 0, len(modNames))
	for _, modName := range modNames {
		compMap := w.Modules[modName]
		compNames := make([]string, 0, len(compMap))
		for name := range compMap {
			compNames = append(compNames, name)
		}
		sort.Strings(compNames)

		comps := make([]snapshot.ComponentSnapshot, 0, len(compNames))
		for _, compName := range compNames {
			comps = append(comps, snapshot.ComponentSnapshot{Name: compName, Values: compMap[compName]})
		}
		mods = append(mods, snapshot.ModuleSnapshot{Name: modName, Components: comps})
	}
	return snapshot.Snapshot{MatchID: w.MatchID, Tick: w.Tick, Modules: mods, EntityIDs: w.EntityIDs}
}

// MarshalSnapshot encodes a Snapshot in the module/component/float-array
// wire shape.
func MarshalSnapshot(s snapshot.Snapshot) ([]byte, error) {
	return msgpack.Marshal(toSnapshotWire(s))
}

// UnmarshalSnapshot decodes a Snapshot, recovering a deterministic module
// and component order (alphabetical) since maps carry none of their own.
func UnmarshalSnapshot(data []byte) (snapshot.Snapshot, error) {
	var w snapshotWire
	if err := msgpack.Unmarshal(data, &w); err != nil {
		return snapshot.Snapshot{}, err
	}
	return fromSnapshotWire(w), nil
}

// deltaWire mirrors DeltaSnapshot's shape, with ChangedComponents kept as
// nested maps (module -> component -> entity index -> value) the same
// way the in-memory type already stores it.
type deltaWire struct {
	MatchID           string                               `msgpack:"matchId"`
	FromTick          uint64                               `msgpack:"fromTick"`
	ToTick            uint64                               `msgpack:"toTick"`
	AddedEntities     []uint64                             `msgpack:"addedEntities"`
	RemovedEntities   []uint64                             `msgpack:"removedEntities"`
	ChangedComponents map[string]map[string]map[int]float32 `msgpack:"changedComponents"`
	ChangeCount       int                                  `msgpack:"changeCount"`
}

// MarshalDelta encodes a DeltaSnapshot.
func MarshalDelta(d snapshot.DeltaSnapshot) ([]byte, error) {
	return msgpack.Marshal(deltaWire{
		MatchID:           d.MatchID,
		FromTick:          d.FromTick,
		ToTick:            d.ToTick,
		AddedEntities:     d.AddedEntities,
		RemovedEntities:   d.RemovedEntities,
		ChangedComponents: d.ChangedComponents,
		ChangeCount:       d.ChangeCount,
	})
}

// UnmarshalDelta decodes a DeltaSnapshot.
func UnmarshalDelta(data []byte) (snapshot.DeltaSnapshot, error) {
	var w deltaWire
	if err := msgpack.Unmarshal(data, &w); err != nil {
		return snapshot.DeltaSnapshot{}, err
	}
	return snapshot.DeltaSnapshot{
		MatchID:           w.MatchID,
		FromTick:          w.FromTick,
		ToTick:            w.ToTick,
		AddedEntities:     w.AddedEntities,
		RemovedEntities:   w.RemovedEntities,
		ChangedComponents: w.ChangedComponents,
		ChangeCount:       w.ChangeCount,
	}, nil
}

// commandWire is spec.md §6's `{commandName: string, payload: map<string,
// scalar>}`, field ordering otherwise driven by the command schema at the
// caller, not by this encoding.
type commandWire struct {
	CommandName string         `msgpack:"commandName"`
	Payload     map[string]any `msgpack:"payload"`
}

// MarshalCommand encodes a module.Command in its wire shape, dropping
// TickScheduled — that field is assigned by the game loop when it drains
// the command, not carried over the wire.
func MarshalCommand(cmd module.Command) ([]byte, error) {
	return msgpack.Marshal(commandWire{CommandName: cmd.Name, Payload: cmd.Payload})
}

// UnmarshalCommand decodes a wire command into a module.Command with
// TickScheduled left at zero for the game loop to assign.
func UnmarshalCommand(data []byte) (module.Command, error) {
	var w commandWire
	if err := msgpack.Unmarshal(data, &w); err != nil {
		return module.Command{}, err
	}
	return module.Command{Name: w.CommandName, Payload: w.Payload}, nil
}

// resourceWire mirrors resource.Resource field-for-field.
type resourceWire struct {
	ResourceID string `msgpack:"resourceId"`
	Name       string `msgpack:"name"`
	Type       string `msgpack:"type"`
	Blob       []byte `msgpack:"blob"`
}

// MarshalResource encodes a resource.Resource.
func MarshalResource(r resource.Resource) ([]byte, error) {
	return msgpack.Marshal(resourceWire{ResourceID: r.ResourceID, Name: r.Name, Type: r.Type, Blob: r.Blob})
}

// UnmarshalResource decodes a resource.Resource.
func UnmarshalResource(data []byte) (resource.Resource, error) {
	var w resourceWire
	if err := msgpack.Unmarshal(data, &w); err != nil {
		return resource.Resource{}, err
	}
	return resource.Resource{ResourceID: w.ResourceID, Name: w.Name, Type: w.Type, Blob: w.Blob}, nil
}
