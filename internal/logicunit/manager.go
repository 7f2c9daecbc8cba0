// Package logicunit implements the LogicUnitManager (spec.md §4.3): lazy
// per-match instantiation of named logic units (game masters / AI),
// ticked once per GameLoop pass, with error isolation and optional
// poisoning after a configured run of consecutive failures.
package logicunit

import (
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/anvil-platform/simnode/internal/errs"
	"github.com/anvil-platform/simnode/internal/metrics"
)

// Unit is a per-match logic unit instance.
type Unit interface {
	OnTick(tick uint64) error
}

// Factory constructs a Unit for one (unit name, matchId) pair.
type Factory func(matchID string) Unit

type instance struct {
	unit              Unit
	consecutiveErrors int
	poisoned          bool
}

// Manager owns logic unit factories and their lazily-created, per-match
// instances.
//
// Instantiation races (two concurrent onTick calls for the same match
// racing to create the first instance) are collapsed with a
// singleflight.Group keyed on "unitName/matchID" — not a literal reading
// of spec.md §4.3 (the tick loop is already single-threaded per
// container) but a deliberate guard in case onTick is ever invoked by
// more than one caller for the same match, an unresolved detail spec.md
// §9 leaves open.
type Manager struct {
	mu                   sync.Mutex
	containerLabel       string
	factories            map[string]Factory
	instances            map[string]*instance // key: unitName + "/" + matchID
	maxConsecutiveErrors int                   // 0 means unlimited (never poison)
	sf                   singleflight.Group
}

// NewManager creates a manager. maxConsecutiveErrors of 0 means a unit is
// never poisoned regardless of how many consecutive onTick errors it
// produces, matching spec.md §4.3's "default infinite" wording.
func NewManager(containerLabel string, maxConsecutiveErrors int) *Manager {
	return &Manager{
		containerLabel:       containerLabel,
		factories:            make(map[string]Factory),
		instances:            make(map[string]*instance),
		maxConsecutiveErrors: maxConsecutiveErrors,
	}
}

// RegisterFactory adds an in-process factory for the named logic unit.
func (m *Manager) RegisterFactory(unitName string, f Factory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.factories[unitName] = f
}

func key(unitName, matchID string) string {
	return unitName + "/" + matchID
}

func (m *Manager) getOrCreate(unitName, matchID string) (*instance, error) {
	m.mu.Lock()
	if inst, ok := m.instances[key(unitName, matchID)]; ok {
		m.mu.Unlock()
		return inst, nil
	}
	factory, ok := m.factories[unitName]
	m.mu.Unlock()
	if !ok {
		return nil, errs.Newf(errs.NotFound, "logic unit manager: no factory registered for %q", unitName)
	}

	v, err, _ := m.sf.Do(key(unitName, matchID), func() (any, error) {
		m.mu.Lock()
		if inst, ok := m.instances[key(unitName, matchID)]; ok {
			m.mu.Unlock()
			return inst, nil
		}
		m.mu.Unlock()

		inst := &instance{unit: factory(matchID)}

		m.mu.Lock()
		m.instances[key(unitName, matchID)] = inst
		m.mu.Unlock()
		return inst, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*instance), nil
}

// OnTick runs onTick for every enabled logic unit of one match, in the
// order given. Errors are caught, counted per unit, and logged via the
// provided logFn; the tick continues across unit failures. A unit at its
// consecutive-error ceiling is skipped entirely.
func (m *Manager) OnTick(matchID string, enabledUnits []string, tick uint64, logFn func(unitName string, err error)) {
	for _, unitName := range enabledUnits {
		inst, err := m.getOrCreate(unitName, matchID)
		if err != nil {
			if logFn != nil {
				logFn(unitName, err)
			}
			continue
		}

		m.mu.Lock()
		poisoned := inst.poisoned
		m.mu.Unlock()
		if poisoned {
			continue
		}

		tickErr := runProtected(inst.unit, tick)

		m.mu.Lock()
		if tickErr != nil {
			inst.consecutiveErrors++
			if m.maxConsecutiveErrors > 0 && inst.consecutiveErrors >= m.maxConsecutiveErrors {
				inst.poisoned = true
			}
		} else {
			inst.consecutiveErrors = 0
		}
		m.mu.Unlock()

		if tickErr != nil {
			metrics.LogicUnitErrorsTotal.WithLabelValues(m.containerLabel, unitName).Inc()
			if logFn != nil {
				logFn(unitName, tickErr)
			}
		}
	}
}

func runProtected(u Unit, tick uint64) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errs.Newf(errs.Internal, "logic unit panic: %v", r)
		}
	}()
	return u.OnTick(tick)
}

// InvalidateUnit drops the cached instance for one (unitName, matchID)
// pair, called by the logic-unit `delete(name)` operation.
func (m *Manager) InvalidateUnit(unitName, matchID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.instances, key(unitName, matchID))
}

// InvalidateMatch drops every cached instance for one match, called when
// that match is deleted.
func (m *Manager) InvalidateMatch(matchID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	suffix := "/" + matchID
	for k := range m.instances {
		if hasSuffix(k, suffix) {
			delete(m.instances, k)
		}
	}
}

// InvalidateAll drops every cached instance across every match, called on
// logic-unit reload.
func (m *Manager) InvalidateAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.instances = make(map[string]*instance)
}

// Exists reports whether an instance has already been created for
// (unitName, matchID).
func (m *Manager) Exists(unitName, matchID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.instances[key(unitName, matchID)]
	return ok
}

// Poisoned reports whether the instance for (unitName, matchID) has hit
// its consecutive-error ceiling. Returns false for an instance that does
// not exist yet.
func (m *Manager) Poisoned(unitName, matchID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.instances[key(unitName, matchID)]
	return ok && inst.poisoned
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}
