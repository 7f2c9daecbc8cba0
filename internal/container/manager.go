package container

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/anvil-platform/simnode/internal/errs"
)

// ManagerConfig carries the capacities applied to every container the
// Manager creates; a node has exactly one Manager value (spec.md §9,
// "global mutable state -> container-scoped").
type ManagerConfig struct {
	StateRoot            string
	MaxEntities          int
	MaxComponents        int
	MaxCommandsPerTick   int
	MaxQueueLength       int
	MaxSnapshotHistory   int
	MaxConsecutiveErrors int
	Logger               *zap.Logger
}

// Manager owns every container on this node, keyed by a server-assigned
// id, and serializes structural operations (create/delete) behind one
// mutex; per-container operations go straight to the Container value.
type Manager struct {
	mu         sync.RWMutex
	cfg        ManagerConfig
	containers map[string]*Container
}

// NewManager creates an empty ContainerManager.
func NewManager(cfg ManagerConfig) *Manager {
	return &Manager{cfg: cfg, containers: make(map[string]*Container)}
}

// Create builds a new container in the CREATED state and, if modules is
// non-empty, loads each named module into it immediately (spec.md §6
// `create(name, modules?, logicUnits?)`). Create takes no logic-unit
// list: callers register logic-unit factories on the returned
// container's LogicUnits manager; the Manager has no logic-unit factory
// registry of its own.
func (m *Manager) Create(name string, modules []string) (*Container, error) {
	c := New(Config{
		ID:                   uuid.NewString(),
		Name:                 name,
		StateRoot:            m.cfg.StateRoot,
		MaxEntities:          m.cfg.MaxEntities,
		MaxComponents:        m.cfg.MaxComponents,
		MaxCommandsPerTick:   m.cfg.MaxCommandsPerTick,
		MaxQueueLength:       m.cfg.MaxQueueLength,
		MaxSnapshotHistory:   m.cfg.MaxSnapshotHistory,
		MaxConsecutiveErrors: m.cfg.MaxConsecutiveErrors,
		Logger:               m.cfg.Logger,
	})

	for _, name := range modules {
		if _, err := c.Modules.Load(name); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	m.containers[c.ID] = c
	m.mu.Unlock()
	return c, nil
}

// Get returns the container by id.
func (m *Manager) Get(id string) (*Container, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.containers[id]
	if !ok {
		return nil, errs.Newf(errs.NotFound, "container manager: container %q not found", id)
	}
	return c, nil
}

// List returns every container id, sorted.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.containers))
	for id := range m.containers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Delete stops and removes a container.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	c, ok := m.containers[id]
	if !ok {
		m.mu.Unlock()
		return errs.Newf(errs.NotFound, "container manager: container %q not found", id)
	}
	delete(m.containers, id)
	m.mu.Unlock()

	if c.State() != StateStopped {
		return c.Stop()
	}
	return nil
}

// Stats is the summary returned by spec.md §6's `stats` operation.
type Stats struct {
	ContainerID   string
	State         State
	CurrentTick   uint64
	MatchCount    int
	PlayerCount   int
	SessionCount  int
	ModuleCount   int
	EntityCount   int
	QueueLength   int
}

// Stats reports a snapshot of one container's load.
func (m *Manager) Stats(id string) (Stats, error) {
	c, err := m.Get(id)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		ContainerID:  c.ID,
		State:        c.State(),
		CurrentTick:  c.CurrentTick(),
		MatchCount:   len(c.Matches.List()),
		PlayerCount:  len(c.Players.List()),
		SessionCount: sessionCountAllMatches(c),
		ModuleCount:  len(c.Modules.List()),
		EntityCount:  c.Store.RowsInUse(),
		QueueLength:  c.Commands.Len(),
	}, nil
}

func sessionCountAllMatches(c *Container) int {
	total := 0
	for _, matchID := range c.Matches.List() {
		total += len(c.Sessions.ListByMatch(matchID))
	}
	return total
}
