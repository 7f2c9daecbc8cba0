package snapshot

import "github.com/anvil-platform/simnode/internal/ecs"

// Delta computes the DeltaSnapshot between two snapshots of the same
// match (spec.md §4.9). epsilon is the change threshold: a value is
// considered changed iff |vTo - vFrom| > epsilon. Pass 0 for exact float
// inequality, the spec's default.
func Delta(from, to Snapshot, epsilon float64) DeltaSnapshot {
	d := DeltaSnapshot{
		MatchID:           to.MatchID,
		FromTick:          from.Tick,
		ToTick:            to.Tick,
		ChangedComponents: make(map[string]map[string]map[int]float32),
	}

	fromSet := make(map[uint64]struct{}, len(from.EntityIDs))
	for _, id := range from.EntityIDs {
		fromSet[id] = struct{}{}
	}
	toSet := make(map[uint64]struct{}, len(to.EntityIDs))
	for _, id := range to.EntityIDs {
		toSet[id] = struct{}{}
	}

	for _, id := range to.EntityIDs {
		if _, ok := fromSet[id]; !ok {
			d.AddedEntities = append(d.AddedEntities, id)
		}
	}
	for _, id := range from.EntityIDs {
		if _, ok := toSet[id]; !ok {
			d.RemovedEntities = append(d.RemovedEntities, id)
		}
	}

	// Entities present in both, indexed by id for O(1) lookup into either
	// snapshot's parallel value arrays.
	fromIndex := make(map[uint64]int, len(from.EntityIDs))
	for i, id := range from.EntityIDs {
		fromIndex[id] = i
	}
	toIndex := make(map[uint64]int, len(to.EntityIDs))
	for i, id := range to.EntityIDs {
		toIndex[id] = i
	}

	fromModules := make(map[string]ModuleSnapshot, len(from.Modules))
	for _, m := range from.Modules {
		fromModules[m.Name] = m
	}
	toModules := make(map[string]ModuleSnapshot, len(to.Modules))
	for _, m := range to.Modules {
		toModules[m.Name] = m
	}

	moduleNames := unionKeys(fromModules, toModules)
	for _, modName := range moduleNames {
		fm, fromHas := fromModules[modName]
		tm, toHas := toModules[modName]

		fromComps := make(map[string][]float32)
		if fromHas {
			for _, c := range fm.Components {
				fromComps[c.Name] = c.Values
			}
		}
		toComps := make(map[string][]float32)
		if toHas {
			for _, c := range tm.Components {
				toComps[c.Name] = c.Values
			}
		}

		compNames := unionStringKeys(fromComps, toComps)
		for _, compName := range compNames {
			fromVals := fromComps[compName]
			toVals := toComps[compName]

			entries := make(map[int]float32)
			for id := range toIndex {
				fi, inFrom := fromIndex[id]
				ti, inTo := toIndex[id]
				if !inFrom || !inTo {
					continue
				}
				fv := ecs.Sentinel
				if fromVals != nil {
					fv = fromVals[fi]
				}
				tv := ecs.Sentinel
				if toVals != nil {
					tv = toVals[ti]
				}
				if changed(fv, tv, epsilon) {
					entries[ti] = tv
				}
			}
			if len(entries) > 0 {
				if d.ChangedComponents[modName] == nil {
					d.ChangedComponents[modName] = make(map[string]map[int]float32)
				}
				d.ChangedComponents[modName][compName] = entries
				d.ChangeCount += len(entries)
			}
		}
	}

	return d
}

// changed reports whether to differs from from beyond epsilon, with NaN
// semantics per spec.md §4.9: NaN-to-NaN is equal (not a change);
// NaN-to-finite is always a change.
func changed(from, to float32, epsilon float64) bool {
	fromNaN := isNaN(from)
	toNaN := isNaN(to)
	if fromNaN && toNaN {
		return false
	}
	if fromNaN != toNaN {
		return true
	}
	diff := float64(to) - float64(from)
	if diff < 0 {
		diff = -diff
	}
	return diff > epsilon
}

func isNaN(f float32) bool { return f != f }

func unionKeys(a, b map[string]ModuleSnapshot) []string {
	seen := make(map[string]struct{})
	var out []string
	for k := range a {
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	for k := range b {
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	return out
}

func unionStringKeys(a, b map[string][]float32) []string {
	seen := make(map[string]struct{})
	var out []string
	for k := range a {
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	for k := range b {
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	return out
}
