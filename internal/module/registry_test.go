package module

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/anvil-platform/simnode/internal/ecs"
	"github.com/anvil-platform/simnode/internal/errs"
	"github.com/anvil-platform/simnode/internal/semver"
)

func physicsFactory() *Module {
	return &Module{
		Components: []ComponentDecl{{Name: "position", ID: 1}, {Name: "velocity", ID: 2}},
		Commands: map[string]CommandSchema{
			"move": {Name: "move", Fields: []Field{{Name: "dx", Type: FieldFloat, Required: true}}},
		},
		Handlers: map[string]CommandHandler{
			"move": func(store *ecs.Store, cmd Command) error { return nil },
		},
		Exports: []Export{
			{CapabilityID: "physics.mover", Version: semver.MustParseVersion("1.2.0")},
		},
	}
}

func TestLoadRegistersComponentsAndCommands(t *testing.T) {
	r := NewRegistry("")
	r.RegisterFactory("physics", physicsFactory)

	mod, err := r.Load("physics")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if mod.Name != "physics" {
		t.Fatalf("expected module name to be set to the load key, got %q", mod.Name)
	}

	if _, _, err := r.CommandHandler("move"); err != nil {
		t.Fatalf("expected move handler registered: %v", err)
	}
}

func TestLoadDuplicateNameConflicts(t *testing.T) {
	r := NewRegistry("")
	r.RegisterFactory("physics", physicsFactory)
	if _, err := r.Load("physics"); err != nil {
		t.Fatalf("first load: %v", err)
	}
	_, err := r.Load("physics")
	if err == nil || !errs.Is(err, errs.Conflict) {
		t.Fatalf("expected Conflict on duplicate load, got %v", err)
	}
}

func TestLoadDuplicateComponentIDConflicts(t *testing.T) {
	r := NewRegistry("")
	r.RegisterFactory("a", physicsFactory)
	r.RegisterFactory("b", func() *Module {
		return &Module{Components: []ComponentDecl{{Name: "other", ID: 1}}}
	})
	if _, err := r.Load("a"); err != nil {
		t.Fatalf("load a: %v", err)
	}
	_, err := r.Load("b")
	if err == nil || !errs.Is(err, errs.Conflict) {
		t.Fatalf("expected Conflict on duplicate component id across modules, got %v", err)
	}
	// Rejected module b must leave no partial registration behind.
	if _, ok := r.Get("b"); ok {
		t.Fatalf("module b should not be registered after validation failure")
	}
}

func TestLoadDuplicateCommandNameConflicts(t *testing.T) {
	r := NewRegistry("")
	r.RegisterFactory("a", physicsFactory)
	r.RegisterFactory("b", func() *Module {
		return &Module{
			Components: []ComponentDecl{{Name: "other", ID: 99}},
			Commands: map[string]CommandSchema{
				"move": {Name: "move"},
			},
		}
	})
	if _, err := r.Load("a"); err != nil {
		t.Fatalf("load a: %v", err)
	}
	_, err := r.Load("b")
	if err == nil || !errs.Is(err, errs.Conflict) {
		t.Fatalf("expected Conflict on duplicate command name, got %v", err)
	}
}

func TestLoadRejectsExportWithNoVersion(t *testing.T) {
	r := NewRegistry("")
	r.RegisterFactory("unversioned", func() *Module {
		return &Module{
			Components: []ComponentDecl{{Name: "position", ID: 1}},
			Exports:    []Export{{CapabilityID: "physics.mover"}},
		}
	})
	_, err := r.Load("unversioned")
	if err == nil || !errs.Is(err, errs.InvalidArgument) {
		t.Fatalf("expected InvalidArgument for unversioned export, got %v", err)
	}
	if _, err := r.ResolveExport("physics.mover", semver.Constraint{}); err == nil || !errs.Is(err, errs.NotFound) {
		t.Fatalf("expected rejected load to leave no trace in exports, got %v", err)
	}
}

func writeArtifact(t *testing.T, root, name, version, factoryKey string) {
	t.Helper()
	dir := filepath.Join(root, "modules", name, version)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir artifact dir: %v", err)
	}
	desc := "factoryKey: " + factoryKey + "\n"
	if err := os.WriteFile(filepath.Join(dir, "descriptor.yaml"), []byte(desc), 0o644); err != nil {
		t.Fatalf("write descriptor: %v", err)
	}
}

func TestReloadBypassesInUseGuard(t *testing.T) {
	root := t.TempDir()
	writeArtifact(t, root, "physics", "1.0.0", "physics")
	r := NewRegistry(root)
	r.RegisterFactory("physics", physicsFactory)

	if _, err := r.LoadFromArtifact("physics"); err != nil {
		t.Fatalf("initial load: %v", err)
	}
	if err := r.Reload("physics"); err != nil {
		t.Fatalf("expected reload to succeed even though nothing guards in-use here: %v", err)
	}
	if _, _, err := r.CommandHandler("move"); err != nil {
		t.Fatalf("expected module still registered after reload: %v", err)
	}
}

func TestReloadRestoresPreviousModuleWhenArtifactMissing(t *testing.T) {
	root := t.TempDir()
	writeArtifact(t, root, "physics", "1.0.0", "physics")
	r := NewRegistry(root)
	r.RegisterFactory("physics", physicsFactory)

	if _, err := r.LoadFromArtifact("physics"); err != nil {
		t.Fatalf("initial load: %v", err)
	}

	// Remove the artifact directory so the reload's LoadFromArtifact fails.
	if err := os.RemoveAll(filepath.Join(root, "modules", "physics")); err != nil {
		t.Fatalf("remove artifact: %v", err)
	}

	err := r.Reload("physics")
	if err == nil || !errs.Is(err, errs.NotFound) {
		t.Fatalf("expected NotFound from the failed re-load, got %v", err)
	}
	if _, _, herr := r.CommandHandler("move"); herr != nil {
		t.Fatalf("expected previous module restored after failed reload: %v", herr)
	}
}

func TestReloadRequiresArtifactOrigin(t *testing.T) {
	r := NewRegistry("")
	r.RegisterFactory("physics", physicsFactory)
	if _, err := r.Load("physics"); err != nil {
		t.Fatalf("load: %v", err)
	}
	err := r.Reload("physics")
	if err == nil || !errs.Is(err, errs.InvalidState) {
		t.Fatalf("expected InvalidState reloading a factory-loaded module, got %v", err)
	}
}

func TestUnloadRejectedWhileEnabledByMatch(t *testing.T) {
	r := NewRegistry("")
	r.RegisterFactory("physics", physicsFactory)
	if _, err := r.Load("physics"); err != nil {
		t.Fatalf("load: %v", err)
	}

	err := r.Unload("physics", func(string) bool { return true })
	if err == nil || !errs.Is(err, errs.InvalidState) {
		t.Fatalf("expected InvalidState while module in use, got %v", err)
	}

	if err := r.Unload("physics", func(string) bool { return false }); err != nil {
		t.Fatalf("unload once unused: %v", err)
	}
	if _, ok := r.Get("physics"); ok {
		t.Fatalf("expected module gone after unload")
	}
	if _, _, err := r.CommandHandler("move"); err == nil {
		t.Fatalf("expected command ownership cleared after unload")
	}
}

func TestResolveExportVersionOrdering(t *testing.T) {
	r := NewRegistry("")
	r.RegisterFactory("a", func() *Module {
		return &Module{
			Components: []ComponentDecl{{Name: "c1", ID: 1}},
			Exports:    []Export{{CapabilityID: "cap", Version: semver.MustParseVersion("1.0.0")}},
		}
	})
	r.RegisterFactory("b", func() *Module {
		return &Module{
			Components: []ComponentDecl{{Name: "c2", ID: 2}},
			Exports:    []Export{{CapabilityID: "cap", Version: semver.MustParseVersion("2.0.0")}},
		}
	})
	if _, err := r.Load("a"); err != nil {
		t.Fatalf("load a: %v", err)
	}
	if _, err := r.Load("b"); err != nil {
		t.Fatalf("load b: %v", err)
	}

	matches, err := r.ResolveExport("cap", semver.MustParseConstraint(">=1.0.0"))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(matches) != 2 || matches[0].ModuleName != "b" {
		t.Fatalf("expected highest version (module b) first, got %+v", matches)
	}
}

func TestResolveExportConstraintFiltersCandidates(t *testing.T) {
	r := NewRegistry("")
	r.RegisterFactory("a", func() *Module {
		return &Module{
			Components: []ComponentDecl{{Name: "c1", ID: 1}},
			Exports:    []Export{{CapabilityID: "cap", Version: semver.MustParseVersion("1.0.0")}},
		}
	})
	if _, err := r.Load("a"); err != nil {
		t.Fatalf("load: %v", err)
	}
	_, err := r.ResolveExport("cap", semver.MustParseConstraint(">=2.0.0"))
	if err == nil || !errs.Is(err, errs.NotFound) {
		t.Fatalf("expected NotFound when no export satisfies constraint, got %v", err)
	}
}
