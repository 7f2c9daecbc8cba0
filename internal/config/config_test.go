package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingPathReturnsDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.NodeID != Default().NodeID {
		t.Fatalf("expected default node id, got %q", cfg.NodeID)
	}
}

func TestLoadEmptyPathReturnsDefault(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Container.MaxEntities != Default().Container.MaxEntities {
		t.Fatalf("expected default capacities")
	}
}

func TestLoadOverridesOnlySpecifiedFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.yaml")
	if err := os.WriteFile(path, []byte("nodeId: node-7\ncontainerDefaults:\n  maxEntities: 500\n"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.NodeID != "node-7" {
		t.Fatalf("expected overridden node id, got %q", cfg.NodeID)
	}
	if cfg.Container.MaxEntities != 500 {
		t.Fatalf("expected overridden max entities, got %d", cfg.Container.MaxEntities)
	}
	if cfg.Container.MaxComponents != Default().Container.MaxComponents {
		t.Fatalf("expected unspecified field to keep its default, got %d", cfg.Container.MaxComponents)
	}
}
