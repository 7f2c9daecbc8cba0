// Package config loads the node/container bootstrap configuration
// (spec.md §6's persisted-state-layout paragraph and SPEC_FULL.md's
// ambient-stack section): tick interval, store capacities, and the
// persisted-state root, the same YAML-manifest idiom
// internal/module/registry.go already uses for artifact descriptors.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/anvil-platform/simnode/internal/errs"
)

// NodeConfig is the top-level bootstrap document for one simnode
// process.
type NodeConfig struct {
	NodeID         string        `yaml:"nodeId"`
	ListenAddr     string        `yaml:"listenAddr"`
	MetricsAddr    string        `yaml:"metricsAddr"`
	StateRoot      string        `yaml:"stateRoot"`
	HeartbeatEvery time.Duration `yaml:"heartbeatEvery"`
	Container      ContainerDefaults `yaml:"containerDefaults"`
}

// ContainerDefaults are the capacities applied to every container
// created on this node unless overridden per-call.
type ContainerDefaults struct {
	MaxEntities          int `yaml:"maxEntities"`
	MaxComponents        int `yaml:"maxComponents"`
	MaxCommandsPerTick   int `yaml:"maxCommandsPerTick"`
	MaxQueueLength       int `yaml:"maxQueueLength"`
	MaxSnapshotHistory   int `yaml:"maxSnapshotHistory"`
	MaxConsecutiveErrors int `yaml:"maxConsecutiveErrors"`
	TickIntervalMs       int `yaml:"tickIntervalMs"`
}

// Default returns the out-of-the-box configuration used when no file is
// supplied, sized for local development and tests.
func Default() NodeConfig {
	return NodeConfig{
		NodeID:         "simnode-local",
		ListenAddr:     ":7420",
		MetricsAddr:    ":9420",
		StateRoot:      "",
		HeartbeatEvery: 10 * time.Second,
		Container: ContainerDefaults{
			MaxEntities:          100000,
			MaxComponents:        256,
			MaxCommandsPerTick:   1000,
			MaxQueueLength:       10000,
			MaxSnapshotHistory:   600,
			MaxConsecutiveErrors: 10,
			TickIntervalMs:       50,
		},
	}
}

// Load reads a NodeConfig from a YAML file decoded over Default(), so a
// field the file omits keeps its default value. A missing path is not an error: the default
// configuration is returned unchanged, matching the core's tolerance for
// a missing persisted-state root on first run.
func Load(path string) (NodeConfig, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return NodeConfig{}, errs.Wrap(errs.Internal, "config: reading file", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return NodeConfig{}, errs.Wrap(errs.InvalidArgument, "config: parsing yaml", err)
	}
	return cfg, nil
}
