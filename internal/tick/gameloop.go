package tick

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/anvil-platform/simnode/internal/command"
	"github.com/anvil-platform/simnode/internal/ecs"
	"github.com/anvil-platform/simnode/internal/logicunit"
	"github.com/anvil-platform/simnode/internal/match"
	"github.com/anvil-platform/simnode/internal/metrics"
	"github.com/anvil-platform/simnode/internal/module"
	"github.com/anvil-platform/simnode/internal/snapshot"
)

type cachedSystem struct {
	moduleName string
	sys        module.System
}

// systemCache holds the flattened, registration-ordered system list,
// invalidated by module.Registry.OnChange rather than recomputed every
// tick (spec.md §9's explicit-invalidate lazy cache design note).
type systemCache struct {
	mu    sync.Mutex
	valid bool
	list  []cachedSystem
}

func (c *systemCache) invalidate() {
	c.mu.Lock()
	c.valid = false
	c.mu.Unlock()
}

func (c *systemCache) get(registry *module.Registry) []cachedSystem {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.valid {
		return c.list
	}
	var list []cachedSystem
	for _, mod := range registry.ModulesInOrder() {
		for _, sys := range mod.Systems {
			list = append(list, cachedSystem{moduleName: mod.Name, sys: sys})
		}
	}
	c.list = list
	c.valid = true
	return c.list
}

// GameLoop is the per-tick pipeline of spec.md §4.7: drain commands, run
// systems in module registration order, invoke logic units, optionally
// sample snapshots.
type GameLoop struct {
	containerLabel string
	store          *ecs.Store
	modules        *module.Registry
	queue          *command.Queue
	logicUnits     *logicunit.Manager
	matches        *match.Registry
	snapshots      *snapshot.Provider
	history        *snapshot.History
	logger         *zap.Logger

	maxCommandsPerTick int
	autoSample         atomic.Bool
	systems            systemCache
}

// Config bundles GameLoop's fixed collaborators.
type Config struct {
	ContainerLabel     string
	Store              *ecs.Store
	Modules            *module.Registry
	Queue              *command.Queue
	LogicUnits         *logicunit.Manager
	Matches            *match.Registry
	Snapshots          *snapshot.Provider
	History            *snapshot.History
	Logger             *zap.Logger
	MaxCommandsPerTick int
}

// New creates a GameLoop and subscribes its system cache to module
// registry changes.
func New(cfg Config) *GameLoop {
	gl := &GameLoop{
		containerLabel:     cfg.ContainerLabel,
		store:              cfg.Store,
		modules:            cfg.Modules,
		queue:              cfg.Queue,
		logicUnits:         cfg.LogicUnits,
		matches:            cfg.Matches,
		snapshots:          cfg.Snapshots,
		history:            cfg.History,
		logger:             cfg.Logger,
		maxCommandsPerTick: cfg.MaxCommandsPerTick,
	}
	gl.modules.OnChange(gl.systems.invalidate)
	return gl
}

// SetAutoSampleSnapshots toggles step 4 of the tick pipeline.
func (gl *GameLoop) SetAutoSampleSnapshots(enabled bool) {
	gl.autoSample.Store(enabled)
}

// RunTick executes one full pass of the pipeline for tick.
func (gl *GameLoop) RunTick(tick uint64) {
	gl.drainCommands(tick)
	gl.runSystems()
	gl.runLogicUnits(tick)
	if gl.autoSample.Load() {
		gl.sampleSnapshots(tick)
	}
}

func (gl *GameLoop) drainCommands(tick uint64) {
	cmds := gl.queue.Drain(gl.maxCommandsPerTick)
	for _, cmd := range cmds {
		cmd.TickScheduled = tick
		handler, mod, err := gl.modules.CommandHandler(cmd.Name)
		if err != nil {
			gl.logIfPresent("command handler lookup failed", err, "command", cmd.Name)
			continue
		}
		if err := gl.runCommandProtected(handler, cmd); err != nil {
			metrics.SystemErrorsTotal.WithLabelValues(gl.containerLabel, mod.Name, "command:"+cmd.Name).Inc()
			gl.logIfPresent("command handler failed", err, "command", cmd.Name, "module", mod.Name, "tick", tick)
		}
	}
}

func (gl *GameLoop) runCommandProtected(handler module.CommandHandler, cmd module.Command) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
		}
	}()
	return handler(gl.store, cmd)
}

func (gl *GameLoop) runSystems() {
	for _, cs := range gl.systems.get(gl.modules) {
		if err := gl.runSystemProtected(cs.sys); err != nil {
			metrics.SystemErrorsTotal.WithLabelValues(gl.containerLabel, cs.moduleName, cs.sys.Name).Inc()
			gl.logIfPresent("system failed", err, "module", cs.moduleName, "system", cs.sys.Name)
		}
	}
}

func (gl *GameLoop) runSystemProtected(sys module.System) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
		}
	}()
	return sys.Run(gl.store)
}

func (gl *GameLoop) runLogicUnits(tick uint64) {
	for _, m := range gl.matches.List() {
		gl.logicUnits.OnTick(m.MatchID, m.EnabledLogicUnits, tick, func(unitName string, err error) {
			gl.logIfPresent("logic unit failed", err, "match", m.MatchID, "unit", unitName)
		})
	}
}

func (gl *GameLoop) sampleSnapshots(tick uint64) {
	for _, m := range gl.matches.List() {
		snap, err := gl.snapshots.ForMatch(m.MatchID, m.EnabledModules, tick)
		if err != nil {
			gl.logIfPresent("auto-sample snapshot failed", err, "match", m.MatchID)
			continue
		}
		gl.history.Record(m.MatchID, tick, snap)
	}
}

func (gl *GameLoop) logIfPresent(msg string, err error, fields ...any) {
	if gl.logger == nil {
		return
	}
	zapFields := make([]zap.Field, 0, len(fields)/2+1)
	zapFields = append(zapFields, zap.Error(err))
	for i := 0; i+1 < len(fields); i += 2 {
		key, _ := fields[i].(string)
		zapFields = append(zapFields, zap.Any(key, fields[i+1]))
	}
	gl.logger.Warn(msg, zapFields...)
}

type panicError struct{ value any }

func (p *panicError) Error() string { return fmt.Sprintf("panic: %v", p.value) }
