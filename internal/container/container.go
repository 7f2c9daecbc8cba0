// Package container implements ContainerManager and the Container
// lifecycle state machine (spec.md §4.10): it wires one instance of
// every per-container subsystem from §4.1-§4.9 and enforces
// CREATED -> RUNNING <-> PAUSED -> STOPPED.
package container

import (
	"sync"

	"go.uber.org/zap"

	"github.com/anvil-platform/simnode/internal/command"
	"github.com/anvil-platform/simnode/internal/ecs"
	"github.com/anvil-platform/simnode/internal/errs"
	"github.com/anvil-platform/simnode/internal/logicunit"
	"github.com/anvil-platform/simnode/internal/match"
	"github.com/anvil-platform/simnode/internal/metrics"
	"github.com/anvil-platform/simnode/internal/module"
	"github.com/anvil-platform/simnode/internal/player"
	"github.com/anvil-platform/simnode/internal/resource"
	"github.com/anvil-platform/simnode/internal/snapshot"
	"github.com/anvil-platform/simnode/internal/tick"
)

// State is one of Container's lifecycle states.
type State string

const (
	StateCreated State = "CREATED"
	StateRunning State = "RUNNING"
	StatePaused  State = "PAUSED"
	StateStopped State = "STOPPED"
)

// Config bundles the capacities and tuning knobs one container is built
// from.
type Config struct {
	ID                   string
	Name                 string
	StateRoot            string // "" disables persistence of modules/resources
	MaxEntities          int
	MaxComponents        int
	MaxCommandsPerTick   int
	MaxQueueLength       int
	MaxSnapshotHistory   int
	MaxConsecutiveErrors int // logic unit poison ceiling, 0 = unlimited
	Logger               *zap.Logger
}

// Container is {id, name, state, tick, modules, matches, players,
// sessions, resources} (spec.md §3), exclusively owning every entity it
// contains.
type Container struct {
	ID   string
	Name string

	mu    sync.Mutex
	state State

	Store      *ecs.Store
	Modules    *module.Registry
	Matches    *match.Registry
	Players    *player.Registry
	Sessions   *player.Manager
	Resources  *resource.Store
	Commands   *command.Queue
	Resolver   *command.Resolver
	LogicUnits *logicunit.Manager
	Snapshots  *snapshot.Provider
	History    *snapshot.History
	GameLoop   *tick.GameLoop
	Scheduler  *tick.Scheduler

	logger *zap.Logger
}

// New wires a fresh container in the CREATED state.
func New(cfg Config) *Container {
	store := ecs.NewStore(cfg.MaxEntities, cfg.MaxComponents)
	modules := module.NewRegistry(cfg.StateRoot)
	matches := match.NewRegistry()
	players := player.NewRegistry()
	sessions := player.NewManager()
	resources := resource.NewStore(cfg.ID, cfg.StateRoot)
	queue := command.NewQueue(cfg.ID, cfg.MaxQueueLength)
	resolver := command.NewResolver(modules.CommandSchema)
	logicUnits := logicunit.NewManager(cfg.ID, cfg.MaxConsecutiveErrors)
	provider := snapshot.NewProvider(store, modules)
	history := snapshot.NewHistory(cfg.MaxSnapshotHistory)

	c := &Container{
		ID:         cfg.ID,
		Name:       cfg.Name,
		state:      StateCreated,
		Store:      store,
		Modules:    modules,
		Matches:    matches,
		Players:    players,
		Sessions:   sessions,
		Resources:  resources,
		Commands:   queue,
		Resolver:   resolver,
		LogicUnits: logicUnits,
		Snapshots:  provider,
		History:    history,
		logger:     cfg.Logger,
	}

	// Deleting a match drops its sessions, invalidates its logic-unit
	// instances and clears its snapshot history.
	matches.OnDelete(func(matchID string) { sessions.DropAllForMatch(matchID) })
	matches.OnDelete(func(matchID string) { logicUnits.InvalidateMatch(matchID) })
	matches.OnDelete(func(matchID string) { history.Clear(matchID) })

	c.GameLoop = tick.New(tick.Config{
		ContainerLabel:     cfg.ID,
		Store:              store,
		Modules:            modules,
		Queue:              queue,
		LogicUnits:         logicUnits,
		Matches:            matches,
		Snapshots:          provider,
		History:            history,
		Logger:             cfg.Logger,
		MaxCommandsPerTick: cfg.MaxCommandsPerTick,
	})
	c.Scheduler = tick.NewScheduler(cfg.ID, c.GameLoop)

	metrics.ContainersActive.Inc()
	return c
}

// State returns the container's current lifecycle state.
func (c *Container) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ModuleEnabledSomewhere adapts match.Registry to module.EnabledChecker
// for Modules.Unload calls.
func (c *Container) ModuleEnabledSomewhere(name string) bool {
	return c.Matches.ModuleEnabledSomewhere(name)
}

// Start transitions CREATED -> RUNNING.
func (c *Container) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateCreated {
		return errs.Newf(errs.InvalidState, "container: start requires CREATED, is %s", c.state)
	}
	c.state = StateRunning
	return nil
}

// Pause transitions RUNNING -> PAUSED.
func (c *Container) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateRunning {
		return errs.Newf(errs.InvalidState, "container: pause requires RUNNING, is %s", c.state)
	}
	c.state = StatePaused
	return nil
}

// Resume transitions PAUSED -> RUNNING.
func (c *Container) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StatePaused {
		return errs.Newf(errs.InvalidState, "container: resume requires PAUSED, is %s", c.state)
	}
	c.state = StateRunning
	return nil
}

// Stop transitions any non-STOPPED state to STOPPED, terminally, and
// releases the auto-advance worker if running.
func (c *Container) Stop() error {
	c.mu.Lock()
	if c.state == StateStopped {
		c.mu.Unlock()
		return errs.New(errs.InvalidState, "container: already STOPPED")
	}
	c.state = StateStopped
	c.mu.Unlock()

	c.Scheduler.StopAuto()
	c.Commands.ShutDown()
	metrics.ContainersActive.Dec()
	return nil
}

// Tick manually advances one tick. Requires RUNNING.
func (c *Container) Tick() (uint64, error) {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()
	if state != StateRunning {
		return 0, errs.Newf(errs.InvalidState, "container: tick requires RUNNING, is %s", state)
	}
	return c.Scheduler.Advance(), nil
}

// Play starts auto-advance. Requires RUNNING.
func (c *Container) Play(intervalMs int) error {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()
	if state != StateRunning {
		return errs.Newf(errs.InvalidState, "container: play requires RUNNING, is %s", state)
	}
	return c.Scheduler.StartAuto(intervalMs)
}

// StopPlay stops auto-advance; idempotent regardless of lifecycle state.
func (c *Container) StopPlay() {
	c.Scheduler.StopAuto()
}

// CurrentTick returns the current tick counter.
func (c *Container) CurrentTick() uint64 {
	return c.Scheduler.Current()
}

// EnqueueCommand validates and enqueues a command. Accepted in RUNNING
// and PAUSED (queued but not drained while paused); rejected otherwise.
func (c *Container) EnqueueCommand(name string, payload map[string]any) error {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()
	if state != StateRunning && state != StatePaused {
		return errs.Newf(errs.InvalidState, "container: enqueue requires RUNNING or PAUSED, is %s", state)
	}
	cmd, err := c.Resolver.Validate(name, payload)
	if err != nil {
		return err
	}
	return c.Commands.Enqueue(cmd)
}
