package module

import (
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/anvil-platform/simnode/internal/errs"
	"github.com/anvil-platform/simnode/internal/semver"
)

// artifactDescriptor is the on-disk manifest under
// <root>/modules/<name>/<version>/descriptor.yaml. It never embeds code;
// it names the in-process factory key that produces the Module value,
// mirroring the teacher's ModuleManifest separating packaging metadata
// from the running binary.
type artifactDescriptor struct {
	FactoryKey string `yaml:"factoryKey"`
}

// EnabledChecker reports whether a module is currently enabled by some
// match, used by Unload to enforce spec.md's "a module cannot be unloaded
// while any match lists it as enabled" invariant without an import cycle
// back into the match package.
type EnabledChecker func(moduleName string) bool

// Registry is the ModuleRegistry (spec.md §4.2): it owns module lifecycle,
// enforces global component-id and command-name uniqueness, and answers
// capability-export lookups for other modules in the same container.
type Registry struct {
	mu sync.RWMutex

	artifactRoot string

	factories map[string]Factory
	modules   map[string]*Module
	order     []string // load order, preserved across unloads; drives system execution order

	commandOwners map[string]string           // command name -> owning module name
	componentIDs  map[uint64]string           // component id -> owning module name
	exports       map[string][]exportLocation // capability id -> locations across modules

	changeHooks []func() // notified after any successful Load/Unload/Reload
}

// OnChange registers a hook run after every successful Load, Unload or
// Reload — GameLoop's cached system list subscribes to this to invalidate
// itself exactly when the source of truth changes (spec.md §9's
// explicit-invalidate design note), instead of recomputing on every tick.
func (r *Registry) OnChange(hook func()) {
	r.mu.Lock()
	r.changeHooks = append(r.changeHooks, hook)
	r.mu.Unlock()
}

func (r *Registry) fireChangeHooks() {
	r.mu.RLock()
	hooks := append([]func(){}, r.changeHooks...)
	r.mu.RUnlock()
	for _, h := range hooks {
		h()
	}
}

type exportLocation struct {
	moduleName string
	version    semver.Version
	value      any
}

// NewRegistry creates an empty registry rooted at artifactRoot for
// resolving packaged-artifact loads. artifactRoot may be empty if this
// container never loads modules from disk.
func NewRegistry(artifactRoot string) *Registry {
	return &Registry{
		artifactRoot:  artifactRoot,
		factories:     make(map[string]Factory),
		modules:       make(map[string]*Module),
		commandOwners: make(map[string]string),
		componentIDs:  make(map[uint64]string),
		exports:       make(map[string][]exportLocation),
	}
}

// RegisterFactory adds an in-process factory under key, for later Load
// calls. Re-registering the same key overwrites the previous factory.
func (r *Registry) RegisterFactory(key string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[key] = f
}

// Load instantiates and registers the module produced by the factory
// registered under name. Returns Conflict if a module by that name is
// already loaded.
func (r *Registry) Load(name string) (*Module, error) {
	r.mu.Lock()
	factory, ok := r.factories[name]
	if !ok {
		r.mu.Unlock()
		return nil, errs.Newf(errs.NotFound, "module registry: no factory registered for %q", name)
	}
	mod, err := r.loadFromFactoryLocked(name, factory(), nil)
	r.mu.Unlock()
	if err == nil {
		r.fireChangeHooks()
	}
	return mod, err
}

// LoadFromArtifact resolves the highest version directory under
// <artifactRoot>/modules/<name>, reads its descriptor, and instantiates
// the named in-process factory, tagging the resulting Module with its
// artifact path and version.
func (r *Registry) LoadFromArtifact(name string) (*Module, error) {
	if r.artifactRoot == "" {
		return nil, errs.New(errs.InvalidState, "module registry: no artifact root configured")
	}

	dir := filepath.Join(r.artifactRoot, "modules", name)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errs.Wrap(errs.NotFound, "module registry: reading artifact directory", err)
	}

	var best semver.Version
	var bestEntry string
	found := false
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		v, err := semver.ParseVersion(e.Name())
		if err != nil {
			continue
		}
		if !found || semver.Compare(v, best) > 0 {
			best = v
			bestEntry = e.Name()
			found = true
		}
	}
	if !found {
		return nil, errs.Newf(errs.NotFound, "module registry: no versioned artifact for %q under %s", name, dir)
	}

	versionDir := filepath.Join(dir, bestEntry)
	raw, err := os.ReadFile(filepath.Join(versionDir, "descriptor.yaml"))
	if err != nil {
		return nil, errs.Wrap(errs.NotFound, "module registry: reading descriptor.yaml for "+name+"@"+best.String(), err)
	}
	var desc artifactDescriptor
	if err := yaml.Unmarshal(raw, &desc); err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, "module registry: parsing descriptor.yaml for "+name+"@"+best.String(), err)
	}

	r.mu.Lock()
	factory, ok := r.factories[desc.FactoryKey]
	if !ok {
		r.mu.Unlock()
		return nil, errs.Newf(errs.NotFound, "module registry: descriptor names unregistered factory %q", desc.FactoryKey)
	}
	ref := &ArtifactRef{Path: versionDir, Version: best}
	mod, err := r.loadFromFactoryLocked(name, factory(), ref)
	r.mu.Unlock()
	if err == nil {
		r.fireChangeHooks()
	}
	return mod, err
}

func (r *Registry) loadFromFactoryLocked(name string, mod *Module, artifact *ArtifactRef) (*Module, error) {
	if _, exists := r.modules[name]; exists {
		return nil, errs.Newf(errs.Conflict, "module registry: module %q already loaded", name)
	}

	mod.Name = name
	mod.Artifact = artifact

	if err := r.validateComponentsLocked(mod); err != nil {
		return nil, err
	}
	if err := r.validateCommandsLocked(mod); err != nil {
		return nil, err
	}
	if err := validateExportsLocked(mod); err != nil {
		return nil, err
	}

	// Commit: no partial registration on validation failure above.
	for _, c := range mod.Components {
		r.componentIDs[uint64(c.ID)] = name
	}
	for cmdName := range mod.Commands {
		r.commandOwners[cmdName] = name
	}
	for _, e := range mod.Exports {
		r.exports[e.CapabilityID] = append(r.exports[e.CapabilityID], exportLocation{
			moduleName: name,
			version:    e.Version,
			value:      e.Value,
		})
	}
	r.modules[name] = mod
	r.order = append(r.order, name)
	return mod, nil
}

func (r *Registry) validateComponentsLocked(mod *Module) error {
	seenNames := make(map[string]struct{}, len(mod.Components))
	for _, c := range mod.Components {
		if _, dup := seenNames[c.Name]; dup {
			return errs.Newf(errs.Conflict, "module %q: duplicate component name %q", mod.Name, c.Name)
		}
		seenNames[c.Name] = struct{}{}
		if owner, taken := r.componentIDs[uint64(c.ID)]; taken {
			return errs.Newf(errs.Conflict, "module %q: component id %d already owned by module %q", mod.Name, c.ID, owner)
		}
	}
	return nil
}

func (r *Registry) validateCommandsLocked(mod *Module) error {
	for cmdName := range mod.Commands {
		if owner, taken := r.commandOwners[cmdName]; taken {
			return errs.Newf(errs.Conflict, "module %q: command %q already registered by module %q", mod.Name, cmdName, owner)
		}
	}
	return nil
}

// validateExportsLocked rejects an export with no declared version: such
// an export could never satisfy any ResolveExport constraint (semver.
// Satisfies always reports false against a zero Version), so it could
// never be found once registered.
func validateExportsLocked(mod *Module) error {
	for _, e := range mod.Exports {
		if e.Version.IsZero() {
			return errs.Newf(errs.InvalidArgument, "module %q: export %q must declare a version", mod.Name, e.CapabilityID)
		}
	}
	return nil
}

// Unload removes a loaded module. inUse reports whether some match still
// lists the module as enabled; if so Unload fails with InvalidState.
func (r *Registry) Unload(name string, inUse EnabledChecker) error {
	r.mu.Lock()

	mod, ok := r.modules[name]
	if !ok {
		r.mu.Unlock()
		return errs.Newf(errs.NotFound, "module registry: module %q not loaded", name)
	}
	if inUse != nil && inUse(name) {
		r.mu.Unlock()
		return errs.Newf(errs.InvalidState, "module registry: module %q is still enabled by a match", name)
	}

	for _, c := range mod.Components {
		delete(r.componentIDs, uint64(c.ID))
	}
	for cmdName := range mod.Commands {
		delete(r.commandOwners, cmdName)
	}
	for _, e := range mod.Exports {
		r.exports[e.CapabilityID] = removeExport(r.exports[e.CapabilityID], name)
	}
	delete(r.modules, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.mu.Unlock()
	r.fireChangeHooks()
	return nil
}

// ModulesInOrder returns every loaded module in registration order —
// the order GameLoop runs systems in (spec.md §5 ordering guarantees).
func (r *Registry) ModulesInOrder() []*Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Module, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.modules[name])
	}
	return out
}

func removeExport(locs []exportLocation, moduleName string) []exportLocation {
	out := locs[:0]
	for _, l := range locs {
		if l.moduleName != moduleName {
			out = append(out, l)
		}
	}
	return out
}

// Get returns the loaded module by name.
func (r *Registry) Get(name string) (*Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	mod, ok := r.modules[name]
	return mod, ok
}

// List returns all loaded modules, sorted by name for deterministic
// iteration.
func (r *Registry) List() []*Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Module, 0, len(r.modules))
	for _, m := range r.modules {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// CommandHandler returns the handler registered for a command name along
// with the owning module, or NotFound.
func (r *Registry) CommandHandler(commandName string) (CommandHandler, *Module, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	owner, ok := r.commandOwners[commandName]
	if !ok {
		return nil, nil, errs.Newf(errs.NotFound, "module registry: no module registers command %q", commandName)
	}
	mod := r.modules[owner]
	handler, ok := mod.Handlers[commandName]
	if !ok {
		return nil, nil, errs.Newf(errs.Internal, "module registry: module %q declares command %q without a handler", owner, commandName)
	}
	return handler, mod, nil
}

// CommandSchema returns the schema registered for a command name.
func (r *Registry) CommandSchema(commandName string) (CommandSchema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	owner, ok := r.commandOwners[commandName]
	if !ok {
		return CommandSchema{}, errs.Newf(errs.NotFound, "module registry: no module registers command %q", commandName)
	}
	return r.modules[owner].Commands[commandName], nil
}

// ExportMatch is one capability export satisfying a Resolve query.
type ExportMatch struct {
	ModuleName string
	Version    semver.Version
	Value      any
}

// ResolveExport finds exports published under capabilityID whose version
// satisfies constraint, deterministically ordered highest-version-first
// and then by module name ascending — ported from the teacher's
// selectProvidersDeterministic.
func (r *Registry) ResolveExport(capabilityID string, constraint semver.Constraint) ([]ExportMatch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	locs, ok := r.exports[capabilityID]
	if !ok || len(locs) == 0 {
		return nil, errs.Newf(errs.NotFound, "module registry: no module exports capability %q", capabilityID)
	}

	var matches []ExportMatch
	for _, l := range locs {
		if !semver.Satisfies(l.version, constraint) {
			continue
		}
		matches = append(matches, ExportMatch{ModuleName: l.moduleName, Version: l.version, Value: l.value})
	}
	if len(matches) == 0 {
		versions := make([]string, len(locs))
		for i, l := range locs {
			versions[i] = l.version.String()
		}
		return nil, errs.Newf(errs.NotFound, "module registry: no export of %q satisfies constraint (available versions: %v)", capabilityID, versions)
	}

	sort.Slice(matches, func(i, j int) bool {
		if c := semver.Compare(matches[i].Version, matches[j].Version); c != 0 {
			return c > 0
		}
		return matches[i].ModuleName < matches[j].ModuleName
	})
	return matches, nil
}

// Reload re-reads the packaged artifact for an already-loaded module,
// replacing its Module value in place. Component ids for still-present
// components keep their existing internal store columns because
// ComponentID is author-assigned and stable across reload; only the
// Module's declared metadata (systems, handlers, exports) is refreshed.
func (r *Registry) Reload(name string) error {
	r.mu.Lock()
	existing, ok := r.modules[name]
	r.mu.Unlock()
	if !ok {
		return errs.Newf(errs.NotFound, "module registry: module %q not loaded", name)
	}
	if existing.Artifact == nil {
		return errs.Newf(errs.InvalidState, "module registry: module %q was not loaded from an artifact", name)
	}

	// Reload replaces an already-loaded module in place, so the in-use
	// guard Unload otherwise enforces for a permanent delete does not
	// apply here — hot-reloading a module a live match depends on is the
	// whole point of this operation.
	if err := r.Unload(name, func(string) bool { return false }); err != nil {
		return err
	}
	if _, err := r.LoadFromArtifact(name); err != nil {
		// The old registration is already gone; put it back rather than
		// leaving every match that depended on it silently without the
		// module because the new artifact failed to load.
		r.mu.Lock()
		_, restoreErr := r.loadFromFactoryLocked(name, existing, existing.Artifact)
		r.mu.Unlock()
		if restoreErr != nil {
			return errs.Newf(errs.Internal, "module registry: reload of %q failed (%v) and the previous module could not be restored (%v)", name, err, restoreErr)
		}
		r.fireChangeHooks()
		return err
	}
	return nil
}
