// Package module implements the ModuleRegistry: loading, unloading and
// querying simulation modules — bundles of component declarations,
// systems, command schemas and capability exports (spec.md §3/§4.2).
//
// Grounded on the teacher's internal/resolver + internal/graph capability
// matching (semver-constrained provider selection), narrowed from a
// cluster-wide CapabilityBinding computation down to a single container's
// in-process export lookup.
package module

import (
	"github.com/anvil-platform/simnode/internal/ecs"
	"github.com/anvil-platform/simnode/internal/semver"
)

// FieldType is one of the scalar types a command field may hold.
type FieldType int

const (
	FieldLong FieldType = iota
	FieldInt
	FieldDouble
	FieldFloat
	FieldBool
	FieldString
)

func (t FieldType) String() string {
	switch t {
	case FieldLong:
		return "long"
	case FieldInt:
		return "int"
	case FieldDouble:
		return "double"
	case FieldFloat:
		return "float"
	case FieldBool:
		return "bool"
	case FieldString:
		return "string"
	default:
		return "unknown"
	}
}

// Field is one ordered, typed entry in a CommandSchema.
type Field struct {
	Name     string
	Type     FieldType
	Required bool
}

// CommandSchema is the ordered field list a module registers for one
// command name.
type CommandSchema struct {
	Name   string
	Fields []Field
}

// Command is a pending mutation request: a name, a validated payload, and
// the tick it was scheduled on.
type Command struct {
	Name          string
	Payload       map[string]any
	TickScheduled uint64
}

// CommandHandler executes a dequeued command against the store. Only
// unexpected panics/errors become errs.Internal at the boundary; handlers
// themselves simply return an error.
type CommandHandler func(store *ecs.Store, cmd Command) error

// ComponentDecl names a component this module owns, alongside its
// globally-unique id.
type ComponentDecl struct {
	Name string
	ID   ecs.ComponentID
}

// System is a per-tick function over the store with documented reads and
// writes, used only for diagnostics/ordering — the store itself does not
// enforce the declared access.
type System struct {
	Name   string
	Reads  []ecs.ComponentID
	Writes []ecs.ComponentID
	Run    func(store *ecs.Store) error
}

// Export is a capability a module publishes for other modules to query by
// tag, mirroring the teacher's ProvidedCapability.
type Export struct {
	CapabilityID string
	Version      semver.Version
	Value        any
}

// ArtifactRef records where a module was loaded from when it came from a
// packaged artifact path rather than an in-process factory.
type ArtifactRef struct {
	Path    string
	Version semver.Version
}

// Module bundles a component manifest, systems, command schemas and
// optional exports.
type Module struct {
	Name       string
	Components []ComponentDecl
	Systems    []System
	Commands   map[string]CommandSchema
	Handlers   map[string]CommandHandler
	Exports    []Export
	Artifact   *ArtifactRef
}

// Factory constructs a fresh Module value. Registered in-process, keyed by
// a factory key (usually the module name) per spec.md §4.2(i).
type Factory func() *Module
