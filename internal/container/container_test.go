package container

import (
	"testing"

	"github.com/anvil-platform/simnode/internal/ecs"
	"github.com/anvil-platform/simnode/internal/errs"
	"github.com/anvil-platform/simnode/internal/match"
	"github.com/anvil-platform/simnode/internal/module"
	"github.com/anvil-platform/simnode/internal/snapshot"
)

func newTestContainer(t *testing.T) *Container {
	t.Helper()
	return New(Config{
		ID:                   "c1",
		Name:                 "test",
		MaxEntities:          16,
		MaxComponents:        16,
		MaxCommandsPerTick:   8,
		MaxQueueLength:       32,
		MaxSnapshotHistory:   4,
		MaxConsecutiveErrors: 0,
	})
}

func TestLifecycleHappyPath(t *testing.T) {
	c := newTestContainer(t)
	if c.State() != StateCreated {
		t.Fatalf("expected CREATED, got %s", c.State())
	}
	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if c.State() != StateRunning {
		t.Fatalf("expected RUNNING")
	}
	if err := c.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := c.Resume(); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if c.State() != StateStopped {
		t.Fatalf("expected STOPPED")
	}
}

func TestStartTwiceRejected(t *testing.T) {
	c := newTestContainer(t)
	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := c.Start(); err == nil || !errs.Is(err, errs.InvalidState) {
		t.Fatalf("expected InvalidState, got %v", err)
	}
}

func TestTickRequiresRunning(t *testing.T) {
	c := newTestContainer(t)
	if _, err := c.Tick(); err == nil || !errs.Is(err, errs.InvalidState) {
		t.Fatalf("expected InvalidState, got %v", err)
	}
	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	got, err := c.Tick()
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if got != 1 {
		t.Fatalf("expected tick 1, got %d", got)
	}
}

func TestStopTerminalRejectsFurtherTransitions(t *testing.T) {
	c := newTestContainer(t)
	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := c.Stop(); err == nil || !errs.Is(err, errs.InvalidState) {
		t.Fatalf("expected InvalidState on second stop, got %v", err)
	}
	if err := c.Start(); err == nil || !errs.Is(err, errs.InvalidState) {
		t.Fatalf("expected InvalidState starting a stopped container, got %v", err)
	}
}

func TestEnqueueCommandRequiresRunningOrPaused(t *testing.T) {
	c := newTestContainer(t)
	c.Modules.RegisterFactory("phys", func() *module.Module {
		return &module.Module{
			Commands: map[string]module.CommandSchema{
				"move": {Name: "move", Fields: []module.Field{{Name: "dx", Type: module.FieldDouble, Required: true}}},
			},
			Handlers: map[string]module.CommandHandler{
				"move": func(s *ecs.Store, cmd module.Command) error { return nil },
			},
		}
	})
	if _, err := c.Modules.Load("phys"); err != nil {
		t.Fatalf("load: %v", err)
	}

	if err := c.EnqueueCommand("move", map[string]any{"dx": 1.0}); err == nil || !errs.Is(err, errs.InvalidState) {
		t.Fatalf("expected InvalidState before start, got %v", err)
	}

	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := c.EnqueueCommand("move", map[string]any{"dx": 1.0}); err != nil {
		t.Fatalf("enqueue while RUNNING: %v", err)
	}

	if err := c.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := c.EnqueueCommand("move", map[string]any{"dx": 2.0}); err != nil {
		t.Fatalf("enqueue while PAUSED: %v", err)
	}
}

func TestDeleteMatchCascadesToSessionsLogicUnitsHistory(t *testing.T) {
	c := newTestContainer(t)
	c.Modules.RegisterFactory("phys", func() *module.Module {
		return &module.Module{Components: []module.ComponentDecl{{Name: "ENTITY_ID", ID: 1}}}
	})
	if _, err := c.Modules.Load("phys"); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := c.Matches.Create(match.Match{MatchID: "m1", EnabledModules: []string{"phys"}}, func(string) bool { return true }); err != nil {
		t.Fatalf("create match: %v", err)
	}
	if err := c.Players.Create("p1"); err != nil {
		t.Fatalf("create player: %v", err)
	}
	if err := c.Sessions.Connect("m1", "p1", c.Matches.Exists, c.Players.Exists); err != nil {
		t.Fatalf("connect: %v", err)
	}
	c.History.Record("m1", 1, snapshot.Snapshot{MatchID: "m1", Tick: 1})

	if err := c.Matches.Delete("m1"); err != nil {
		t.Fatalf("delete match: %v", err)
	}

	if sessions := c.Sessions.ListByMatch("m1"); len(sessions) != 0 {
		t.Fatalf("expected sessions dropped, got %v", sessions)
	}
	if _, err := c.History.Get("m1", 1); err == nil {
		t.Fatalf("expected history cleared for deleted match")
	}
}

func TestModuleUnloadRejectedWhileMatchEnablesIt(t *testing.T) {
	c := newTestContainer(t)
	c.Modules.RegisterFactory("phys", func() *module.Module {
		return &module.Module{Components: []module.ComponentDecl{{Name: "ENTITY_ID", ID: 1}}}
	})
	if _, err := c.Modules.Load("phys"); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := c.Matches.Create(match.Match{MatchID: "m1", EnabledModules: []string{"phys"}}, func(string) bool { return true }); err != nil {
		t.Fatalf("create match: %v", err)
	}
	if err := c.Modules.Unload("phys", c.ModuleEnabledSomewhere); err == nil || !errs.Is(err, errs.Conflict) {
		t.Fatalf("expected Conflict unloading an in-use module, got %v", err)
	}
}
