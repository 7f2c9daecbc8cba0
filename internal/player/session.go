package player

import (
	"sort"
	"sync"

	"github.com/anvil-platform/simnode/internal/errs"
)

// State is one state of the per-(match, player) session machine.
// ABANDONED is terminal: the record is kept so a second Abandon,
// Disconnect or Reconnect against it reports InvalidState rather than
// NotFound (spec.md §4.5's state-machine error-kind contract), while
// Get/ListByMatch treat it as absent so it stays unobservable to
// ordinary reads (spec.md §4.5: "becomes unobservable to subsequent
// operations").
type State string

const (
	StateConnected    State = "CONNECTED"
	StateDisconnected State = "DISCONNECTED"
	StateAbandoned    State = "ABANDONED"
)

// Session is one player's connection to one match.
type Session struct {
	MatchID  string
	PlayerID string
	State    State
}

// Exists reports whether a predicate function recognizes an id —
// satisfied by *match.Registry.Exists and *Registry.Exists without this
// package importing either concrete type.
type Exists func(id string) bool

// Manager is the session half of PlayerRegistry + Sessions.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session // key: matchID + "/" + playerID
}

// NewManager creates an empty session manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

func sessionKey(matchID, playerID string) string {
	return matchID + "/" + playerID
}

// Connect creates a CONNECTED session for (matchID, playerID). Both must
// exist per matchExists/playerExists, and at most one session may exist
// per pair at a time.
func (m *Manager) Connect(matchID, playerID string, matchExists, playerExists Exists) error {
	if matchExists != nil && !matchExists(matchID) {
		return errs.Newf(errs.NotFound, "session manager: match %q not found", matchID)
	}
	if playerExists != nil && !playerExists(playerID) {
		return errs.Newf(errs.NotFound, "session manager: player %q not found", playerID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	key := sessionKey(matchID, playerID)
	if _, exists := m.sessions[key]; exists {
		return errs.Newf(errs.Conflict, "session manager: session for match %q player %q already exists", matchID, playerID)
	}
	m.sessions[key] = &Session{MatchID: matchID, PlayerID: playerID, State: StateConnected}
	return nil
}

// Disconnect transitions CONNECTED -> DISCONNECTED. A missing session
// rejects with NotFound; any other state, including ABANDONED, rejects
// with InvalidState.
func (m *Manager) Disconnect(matchID, playerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionKey(matchID, playerID)]
	if !ok {
		return errs.Newf(errs.NotFound, "session manager: no session for match %q player %q", matchID, playerID)
	}
	if s.State != StateConnected {
		return errs.Newf(errs.InvalidState, "session manager: disconnect requires CONNECTED, session is %s", s.State)
	}
	s.State = StateDisconnected
	return nil
}

// Reconnect transitions DISCONNECTED -> CONNECTED. Requires the previous
// state to be exactly DISCONNECTED; a session left ABANDONED rejects
// with InvalidState rather than NotFound.
func (m *Manager) Reconnect(matchID, playerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionKey(matchID, playerID)]
	if !ok {
		return errs.Newf(errs.NotFound, "session manager: no session for match %q player %q", matchID, playerID)
	}
	if s.State != StateDisconnected {
		return errs.Newf(errs.InvalidState, "session manager: reconnect requires DISCONNECTED, session is %s", s.State)
	}
	s.State = StateConnected
	return nil
}

// Abandon terminates a session, whatever its current (non-terminal)
// state, moving it to ABANDONED. The record is kept, not deleted, so a
// second Abandon or any Disconnect/Reconnect against it reports
// InvalidState instead of NotFound; Get/ListByMatch still treat
// ABANDONED as absent.
func (m *Manager) Abandon(matchID, playerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionKey(matchID, playerID)]
	if !ok {
		return errs.Newf(errs.NotFound, "session manager: no session for match %q player %q", matchID, playerID)
	}
	if s.State == StateAbandoned {
		return errs.Newf(errs.InvalidState, "session manager: abandon requires a non-terminal session, session is %s", s.State)
	}
	s.State = StateAbandoned
	return nil
}

// Get returns the current session for (matchID, playerID). ABANDONED
// sessions are reported as NotFound, per spec.md §4.5's unobservability
// requirement.
func (m *Manager) Get(matchID, playerID string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionKey(matchID, playerID)]
	if !ok || s.State == StateAbandoned {
		return Session{}, errs.Newf(errs.NotFound, "session manager: no session for match %q player %q", matchID, playerID)
	}
	return *s, nil
}

// ListByMatch returns every non-abandoned session for one match, sorted
// by playerID.
func (m *Manager) ListByMatch(matchID string) []Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Session
	for _, s := range m.sessions {
		if s.MatchID == matchID && s.State != StateAbandoned {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlayerID < out[j].PlayerID })
	return out
}

// DropAllForMatch removes every session belonging to matchID, called when
// that match is deleted (spec.md §4.4 cascade). Unlike Abandon this is a
// hard delete: the match itself is gone, so there is nothing left for a
// stray state-machine call against it to observe.
func (m *Manager) DropAllForMatch(matchID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, s := range m.sessions {
		if s.MatchID == matchID {
			delete(m.sessions, k)
		}
	}
}
