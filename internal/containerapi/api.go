// Package containerapi implements the transport-agnostic
// container/match/command/snapshot/resource/module/logic-unit API
// (spec.md §6). It is a thin façade over container.Manager: every method
// here maps to exactly one spec.md §6 operation and carries no
// transport-specific framing, so an HTTP or gRPC layer can wrap it
// directly.
package containerapi

import (
	"sort"

	"github.com/anvil-platform/simnode/internal/container"
	"github.com/anvil-platform/simnode/internal/errs"
	"github.com/anvil-platform/simnode/internal/match"
	"github.com/anvil-platform/simnode/internal/module"
	"github.com/anvil-platform/simnode/internal/player"
	"github.com/anvil-platform/simnode/internal/resource"
	"github.com/anvil-platform/simnode/internal/snapshot"
)

// API wraps one node's container.Manager.
type API struct {
	containers *container.Manager
}

// New builds an API over an already-constructed container.Manager.
func New(containers *container.Manager) *API {
	return &API{containers: containers}
}

// -- Containers --------------------------------------------------------

// CreateContainer implements `create(name, modules?, logicUnits?)`.
// It takes no logic-unit list: callers register logic-unit factories on
// the returned container's LogicUnits manager themselves — the API layer
// has no knowledge of logic-unit implementations.
func (a *API) CreateContainer(name string, modules []string) (*container.Container, error) {
	return a.containers.Create(name, modules)
}

func (a *API) StartContainer(containerID string) error {
	c, err := a.containers.Get(containerID)
	if err != nil {
		return err
	}
	return c.Start()
}

func (a *API) StopContainer(containerID string) error {
	c, err := a.containers.Get(containerID)
	if err != nil {
		return err
	}
	return c.Stop()
}

func (a *API) PauseContainer(containerID string) error {
	c, err := a.containers.Get(containerID)
	if err != nil {
		return err
	}
	return c.Pause()
}

func (a *API) ResumeContainer(containerID string) error {
	c, err := a.containers.Get(containerID)
	if err != nil {
		return err
	}
	return c.Resume()
}

func (a *API) Tick(containerID string) (uint64, error) {
	c, err := a.containers.Get(containerID)
	if err != nil {
		return 0, err
	}
	return c.Tick()
}

func (a *API) Play(containerID string, intervalMs int) error {
	c, err := a.containers.Get(containerID)
	if err != nil {
		return err
	}
	return c.Play(intervalMs)
}

func (a *API) StopAuto(containerID string) error {
	c, err := a.containers.Get(containerID)
	if err != nil {
		return err
	}
	c.StopPlay()
	return nil
}

func (a *API) CurrentTick(containerID string) (uint64, error) {
	c, err := a.containers.Get(containerID)
	if err != nil {
		return 0, err
	}
	return c.CurrentTick(), nil
}

func (a *API) Stats(containerID string) (container.Stats, error) {
	return a.containers.Stats(containerID)
}

func (a *API) DeleteContainer(containerID string) error {
	return a.containers.Delete(containerID)
}

// -- Matches -------------------------------------------------------------

func (a *API) CreateMatch(containerID, matchID string, enabledModules, enabledLogicUnits []string) error {
	c, err := a.containers.Get(containerID)
	if err != nil {
		return err
	}
	m := match.Match{MatchID: matchID, EnabledModules: enabledModules, EnabledLogicUnits: enabledLogicUnits}
	return c.Matches.Create(m, func(name string) bool { _, ok := c.Modules.Get(name); return ok })
}

func (a *API) DeleteMatch(containerID, matchID string) error {
	c, err := a.containers.Get(containerID)
	if err != nil {
		return err
	}
	return c.Matches.Delete(matchID)
}

func (a *API) ListMatches(containerID string) ([]match.Match, error) {
	c, err := a.containers.Get(containerID)
	if err != nil {
		return nil, err
	}
	return c.Matches.List(), nil
}

func (a *API) GetMatch(containerID, matchID string) (match.Match, error) {
	c, err := a.containers.Get(containerID)
	if err != nil {
		return match.Match{}, err
	}
	return c.Matches.Get(matchID)
}

// -- Players ---------------------------------------------------------------

func (a *API) CreatePlayer(containerID, playerID string) error {
	c, err := a.containers.Get(containerID)
	if err != nil {
		return err
	}
	return c.Players.Create(playerID)
}

func (a *API) DeletePlayer(containerID, playerID string) error {
	c, err := a.containers.Get(containerID)
	if err != nil {
		return err
	}
	return c.Players.Delete(playerID)
}

func (a *API) ListPlayers(containerID string) ([]string, error) {
	c, err := a.containers.Get(containerID)
	if err != nil {
		return nil, err
	}
	return c.Players.List(), nil
}

// -- Sessions ---------------------------------------------------------------

func (a *API) Connect(containerID, matchID, playerID string) error {
	c, err := a.containers.Get(containerID)
	if err != nil {
		return err
	}
	return c.Sessions.Connect(matchID, playerID, c.Matches.Exists, c.Players.Exists)
}

func (a *API) Disconnect(containerID, matchID, playerID string) error {
	c, err := a.containers.Get(containerID)
	if err != nil {
		return err
	}
	return c.Sessions.Disconnect(matchID, playerID)
}

func (a *API) Reconnect(containerID, matchID, playerID string) error {
	c, err := a.containers.Get(containerID)
	if err != nil {
		return err
	}
	return c.Sessions.Reconnect(matchID, playerID)
}

func (a *API) Abandon(containerID, matchID, playerID string) error {
	c, err := a.containers.Get(containerID)
	if err != nil {
		return err
	}
	return c.Sessions.Abandon(matchID, playerID)
}

func (a *API) ListSessions(containerID, matchID string) ([]player.Session, error) {
	c, err := a.containers.Get(containerID)
	if err != nil {
		return nil, err
	}
	return c.Sessions.ListByMatch(matchID), nil
}

// -- Commands ---------------------------------------------------------------

func (a *API) Enqueue(containerID, name string, payload map[string]any) error {
	c, err := a.containers.Get(containerID)
	if err != nil {
		return err
	}
	return c.EnqueueCommand(name, payload)
}

// CommandInfo is one entry of `listCommands`: `{name, schema}`.
type CommandInfo struct {
	Name   string
	Schema module.CommandSchema
}

func (a *API) ListCommands(containerID string) ([]CommandInfo, error) {
	c, err := a.containers.Get(containerID)
	if err != nil {
		return nil, err
	}
	var out []CommandInfo
	for _, mod := range c.Modules.List() {
		for name, schema := range mod.Commands {
			out = append(out, CommandInfo{Name: name, Schema: schema})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// -- Snapshots ---------------------------------------------------------------

func (a *API) ForMatch(containerID, matchID string, playerID string) (snapshot.Snapshot, error) {
	c, err := a.containers.Get(containerID)
	if err != nil {
		return snapshot.Snapshot{}, err
	}
	m, err := c.Matches.Get(matchID)
	if err != nil {
		return snapshot.Snapshot{}, err
	}
	tick := c.CurrentTick()
	if playerID == "" {
		return c.Snapshots.ForMatch(matchID, m.EnabledModules, tick)
	}
	owner, err := ownerValueForPlayer(c, matchID, playerID)
	if err != nil {
		return snapshot.Snapshot{}, err
	}
	return c.Snapshots.ForMatchAndPlayer(matchID, m.EnabledModules, tick, owner)
}

// ownerValueForPlayer has no canonical player-id -> OWNER float mapping in
// the data model (OWNER is a module-declared numeric component, not tied
// to player ids by the core); callers that need `forMatchAndPlayer` must
// resolve OWNER themselves and call Snapshots.ForMatchAndPlayer directly,
// or a module export must publish the player-id -> owner-value mapping.
// ForMatch rejects a non-empty playerID until a module supplies that
// export, rather than guessing.
func ownerValueForPlayer(c *container.Container, matchID, playerID string) (float32, error) {
	return 0, errs.New(errs.InvalidArgument, "containerapi: forMatchAndPlayer requires a module-published player->OWNER export")
}

func (a *API) RecordHistory(containerID, matchID string) error {
	c, err := a.containers.Get(containerID)
	if err != nil {
		return err
	}
	m, err := c.Matches.Get(matchID)
	if err != nil {
		return err
	}
	tick := c.CurrentTick()
	snap, err := c.Snapshots.ForMatch(matchID, m.EnabledModules, tick)
	if err != nil {
		return err
	}
	c.History.Record(matchID, tick, snap)
	return nil
}

// HistoryInfo is the summary returned by `historyInfo`.
type HistoryInfo struct {
	MatchID        string
	SnapshotCount  int
}

func (a *API) HistoryInfo(containerID, matchID string) (HistoryInfo, error) {
	c, err := a.containers.Get(containerID)
	if err != nil {
		return HistoryInfo{}, err
	}
	snaps, err := c.History.Latest(matchID, 1<<30)
	if err != nil {
		return HistoryInfo{}, err
	}
	return HistoryInfo{MatchID: matchID, SnapshotCount: len(snaps)}, nil
}

func (a *API) ClearHistory(containerID, matchID string) error {
	c, err := a.containers.Get(containerID)
	if err != nil {
		return err
	}
	c.History.Clear(matchID)
	return nil
}

func (a *API) Range(containerID, matchID string, fromTick, toTick uint64, limit int) ([]snapshot.Snapshot, error) {
	c, err := a.containers.Get(containerID)
	if err != nil {
		return nil, err
	}
	return c.History.Range(matchID, fromTick, toTick, limit)
}

func (a *API) Latest(containerID, matchID string, n int) ([]snapshot.Snapshot, error) {
	c, err := a.containers.Get(containerID)
	if err != nil {
		return nil, err
	}
	return c.History.Latest(matchID, n)
}

func (a *API) Delta(containerID, matchID string, fromTick, toTick uint64) (snapshot.DeltaSnapshot, error) {
	c, err := a.containers.Get(containerID)
	if err != nil {
		return snapshot.DeltaSnapshot{}, err
	}
	from, err := c.History.Get(matchID, fromTick)
	if err != nil {
		return snapshot.DeltaSnapshot{}, err
	}
	to, err := c.History.Get(matchID, toTick)
	if err != nil {
		return snapshot.DeltaSnapshot{}, err
	}
	return snapshot.Delta(from, to, 0), nil
}

// -- Resources ---------------------------------------------------------------

func (a *API) Upload(containerID, name, resourceType string, blob []byte) (string, error) {
	c, err := a.containers.Get(containerID)
	if err != nil {
		return "", err
	}
	return c.Resources.Upload(name, resourceType, blob)
}

func (a *API) Download(containerID, resourceID string) (resource.Resource, error) {
	c, err := a.containers.Get(containerID)
	if err != nil {
		return resource.Resource{}, err
	}
	return c.Resources.Download(resourceID)
}

func (a *API) ListResources(containerID string) ([]resource.Resource, error) {
	c, err := a.containers.Get(containerID)
	if err != nil {
		return nil, err
	}
	return c.Resources.List(), nil
}

func (a *API) DeleteResource(containerID, resourceID string) error {
	c, err := a.containers.Get(containerID)
	if err != nil {
		return err
	}
	return c.Resources.Delete(resourceID)
}

// -- Modules ---------------------------------------------------------------

func (a *API) ListModules(containerID string) ([]*module.Module, error) {
	c, err := a.containers.Get(containerID)
	if err != nil {
		return nil, err
	}
	return c.Modules.List(), nil
}

func (a *API) ReloadModule(containerID, name string) error {
	c, err := a.containers.Get(containerID)
	if err != nil {
		return err
	}
	return c.Modules.Reload(name)
}

func (a *API) DeleteModule(containerID, name string) error {
	c, err := a.containers.Get(containerID)
	if err != nil {
		return err
	}
	return c.Modules.Unload(name, c.ModuleEnabledSomewhere)
}

// -- Logic units ---------------------------------------------------------------

// LogicUnits are named by whatever the caller registered on the
// container's LogicUnits manager; the API layer exposes an existence
// check and deletion per (unit, match) rather than an enumeration, since logicunit.Manager
// indexes live instances by (unit, match) and does not separately track
// every registered factory name.

func (a *API) LogicUnitExists(containerID, unitName, matchID string) (bool, error) {
	c, err := a.containers.Get(containerID)
	if err != nil {
		return false, err
	}
	return c.LogicUnits.Exists(unitName, matchID), nil
}

func (a *API) DeleteLogicUnit(containerID, unitName, matchID string) error {
	c, err := a.containers.Get(containerID)
	if err != nil {
		return err
	}
	if !c.LogicUnits.Exists(unitName, matchID) {
		return errs.Newf(errs.NotFound, "containerapi: logic unit %q not instantiated for match %q", unitName, matchID)
	}
	c.LogicUnits.InvalidateUnit(unitName, matchID)
	return nil
}
