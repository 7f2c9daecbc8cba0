package containerapi

import (
	"testing"

	"github.com/anvil-platform/simnode/internal/container"
	"github.com/anvil-platform/simnode/internal/ecs"
	"github.com/anvil-platform/simnode/internal/errs"
	"github.com/anvil-platform/simnode/internal/module"
)

func newAPI(t *testing.T) *API {
	t.Helper()
	mgr := container.NewManager(container.ManagerConfig{
		MaxEntities:          16,
		MaxComponents:        16,
		MaxCommandsPerTick:   8,
		MaxQueueLength:       32,
		MaxSnapshotHistory:   8,
		MaxConsecutiveErrors: 0,
	})
	return New(mgr)
}

const (
	posX ecs.ComponentID = 1
	posY ecs.ComponentID = 2
	entityIDComp ecs.ComponentID = 3
)

func physModule() *module.Module {
	return &module.Module{
		Name: "Phys",
		Components: []module.ComponentDecl{
			{Name: "POSITION_X", ID: posX},
			{Name: "POSITION_Y", ID: posY},
			{Name: "ENTITY_ID", ID: entityIDComp},
		},
		Commands: map[string]module.CommandSchema{
			"move": {
				Name: "move",
				Fields: []module.Field{
					{Name: "id", Type: module.FieldLong, Required: true},
					{Name: "dx", Type: module.FieldDouble, Required: true},
					{Name: "dy", Type: module.FieldDouble, Required: true},
				},
			},
		},
		Handlers: map[string]module.CommandHandler{
			"move": func(s *ecs.Store, cmd module.Command) error {
				id := ecs.EntityID(cmd.Payload["id"].(int64))
				dx := float32(cmd.Payload["dx"].(float64))
				dy := float32(cmd.Payload["dy"].(float64))
				if err := s.Attach(id, posX, dx); err != nil {
					return err
				}
				if err := s.Attach(id, posY, dy); err != nil {
					return err
				}
				return s.Attach(id, entityIDComp, float32(id))
			},
		},
	}
}

// S1 (tick + command).
func TestScenarioTickAndCommand(t *testing.T) {
	a := newAPI(t)
	c, err := a.CreateContainer("C1", nil)
	if err != nil {
		t.Fatalf("create container: %v", err)
	}
	c.Modules.RegisterFactory("Phys", physModule)
	if _, err := c.Modules.Load("Phys"); err != nil {
		t.Fatalf("load module: %v", err)
	}
	if err := a.CreateMatch(c.ID, "M1", []string{"Phys"}, nil); err != nil {
		t.Fatalf("create match: %v", err)
	}
	if err := a.StartContainer(c.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := a.Enqueue(c.ID, "move", map[string]any{"id": int64(1), "dx": 10.0, "dy": 5.0}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := a.Tick(c.ID); err != nil {
		t.Fatalf("tick: %v", err)
	}

	snap, err := a.ForMatch(c.ID, "M1", "")
	if err != nil {
		t.Fatalf("forMatch: %v", err)
	}
	var posXVals, posYVals []float32
	for _, mod := range snap.Modules {
		for _, comp := range mod.Components {
			if comp.Name == "POSITION_X" {
				posXVals = comp.Values
			}
			if comp.Name == "POSITION_Y" {
				posYVals = comp.Values
			}
		}
	}
	if len(posXVals) != 1 || posXVals[0] != 10.0 {
		t.Fatalf("expected POSITION_X[0] == 10.0, got %v", posXVals)
	}
	if len(posYVals) != 1 || posYVals[0] != 5.0 {
		t.Fatalf("expected POSITION_Y[0] == 5.0, got %v", posYVals)
	}
}

// S3 (session state machine).
func TestScenarioSessionStateMachine(t *testing.T) {
	a := newAPI(t)
	c, err := a.CreateContainer("C1", nil)
	if err != nil {
		t.Fatalf("create container: %v", err)
	}
	c.Modules.RegisterFactory("Phys", physModule)
	if _, err := c.Modules.Load("Phys"); err != nil {
		t.Fatalf("load module: %v", err)
	}
	if err := a.CreateMatch(c.ID, "M1", []string{"Phys"}, nil); err != nil {
		t.Fatalf("create match: %v", err)
	}
	if err := a.CreatePlayer(c.ID, "P1"); err != nil {
		t.Fatalf("create player: %v", err)
	}

	if err := a.Connect(c.ID, "M1", "P1"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := a.Disconnect(c.ID, "M1", "P1"); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if err := a.Reconnect(c.ID, "M1", "P1"); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	if err := a.Connect(c.ID, "M1", "P1"); err == nil || !errs.Is(err, errs.Conflict) {
		t.Fatalf("expected Conflict on second connect, got %v", err)
	}
	if err := a.Abandon(c.ID, "M1", "P1"); err != nil {
		t.Fatalf("abandon: %v", err)
	}
	if err := a.Reconnect(c.ID, "M1", "P1"); err == nil || !errs.Is(err, errs.InvalidState) {
		t.Fatalf("expected InvalidState reconnecting an abandoned session, got %v", err)
	}
}

// S4 (row reuse / capacity exhaustion).
func TestScenarioRowReuseAndCapacity(t *testing.T) {
	mgr := container.NewManager(container.ManagerConfig{MaxEntities: 2, MaxComponents: 4, MaxQueueLength: 4, MaxSnapshotHistory: 2})
	a := New(mgr)
	c, err := a.CreateContainer("C1", nil)
	if err != nil {
		t.Fatalf("create container: %v", err)
	}
	if err := c.Store.CreateEntity(1); err != nil {
		t.Fatalf("create entity 1: %v", err)
	}
	if err := c.Store.CreateEntity(2); err != nil {
		t.Fatalf("create entity 2: %v", err)
	}
	if err := c.Store.DeleteEntity(1); err != nil {
		t.Fatalf("delete entity 1: %v", err)
	}
	if err := c.Store.CreateEntity(3); err != nil {
		t.Fatalf("create entity 3 (reusing freed row): %v", err)
	}
	if err := c.Store.CreateEntity(4); err == nil || !errs.Is(err, errs.OutOfMemory) {
		t.Fatalf("expected OutOfMemory creating entity 4, got %v", err)
	}
}

// S6 (module isolation across containers).
func TestScenarioModuleIsolationAcrossContainers(t *testing.T) {
	a := newAPI(t)
	c1, err := a.CreateContainer("C1", nil)
	if err != nil {
		t.Fatalf("create c1: %v", err)
	}
	c2, err := a.CreateContainer("C2", nil)
	if err != nil {
		t.Fatalf("create c2: %v", err)
	}
	c1.Modules.RegisterFactory("Phys", physModule)
	c2.Modules.RegisterFactory("Phys", physModule)
	if _, err := c1.Modules.Load("Phys"); err != nil {
		t.Fatalf("load c1: %v", err)
	}
	if _, err := c2.Modules.Load("Phys"); err != nil {
		t.Fatalf("load c2: %v", err)
	}
	if err := a.CreateMatch(c1.ID, "M1", []string{"Phys"}, nil); err != nil {
		t.Fatalf("create match c1: %v", err)
	}
	if err := a.CreateMatch(c2.ID, "M2", []string{"Phys"}, nil); err != nil {
		t.Fatalf("create match c2: %v", err)
	}
	if err := c1.Store.Attach(1, entityIDComp, 1); err != nil {
		t.Fatalf("attach c1: %v", err)
	}

	snap2, err := a.ForMatch(c2.ID, "M2", "")
	if err != nil {
		t.Fatalf("forMatch c2: %v", err)
	}
	if len(snap2.EntityIDs) != 0 {
		t.Fatalf("expected no entities visible in c2, got %v", snap2.EntityIDs)
	}

	if err := a.DeleteMatch(c1.ID, "M1"); err != nil {
		t.Fatalf("delete match c1: %v", err)
	}
	if _, err := a.GetMatch(c2.ID, "M2"); err != nil {
		t.Fatalf("expected M2 unaffected by C1's match deletion: %v", err)
	}
}

func TestListCommandsReturnsSchemas(t *testing.T) {
	a := newAPI(t)
	c, err := a.CreateContainer("C1", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	c.Modules.RegisterFactory("Phys", physModule)
	if _, err := c.Modules.Load("Phys"); err != nil {
		t.Fatalf("load: %v", err)
	}
	cmds, err := a.ListCommands(c.ID)
	if err != nil {
		t.Fatalf("listCommands: %v", err)
	}
	if len(cmds) != 1 || cmds[0].Name != "move" {
		t.Fatalf("expected single move command, got %+v", cmds)
	}
}

func TestDeleteModuleRejectedWhileEnabledByMatch(t *testing.T) {
	a := newAPI(t)
	c, err := a.CreateContainer("C1", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	c.Modules.RegisterFactory("Phys", physModule)
	if _, err := c.Modules.Load("Phys"); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := a.CreateMatch(c.ID, "M1", []string{"Phys"}, nil); err != nil {
		t.Fatalf("create match: %v", err)
	}
	if err := a.DeleteModule(c.ID, "Phys"); err == nil || !errs.Is(err, errs.Conflict) {
		t.Fatalf("expected Conflict, got %v", err)
	}
}
