package connmux

import "sync"

// Multiplexer tracks which live socket connections belong to which
// session, so one conversation can span several browser tabs. All
// methods are safe for concurrent use; attach and detach for a session
// are linearizable, so exactly one closer of the last two connections
// observes the count reach zero.
type Multiplexer struct {
	mu         sync.Mutex
	bySession  map[string]map[string]struct{}
	sessionFor map[string]string
}

func New() *Multiplexer {
	return &Multiplexer{
		bySession:  map[string]map[string]struct{}{},
		sessionFor: map[string]string{},
	}
}

// Attach registers a connection under a session. Re-attaching a known
// connection to a different session moves it.
func (m *Multiplexer) Attach(sessionID, connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.sessionFor[connID]; ok {
		if prev == sessionID {
			return
		}
		m.removeLocked(prev, connID)
	}

	set, ok := m.bySession[sessionID]
	if !ok {
		set = map[string]struct{}{}
		m.bySession[sessionID] = set
	}
	set[connID] = struct{}{}
	m.sessionFor[connID] = sessionID
}

// Detach removes a connection and returns the session id it belonged to
// along with how many connections that session still has. Detaching an
// unknown or already-detached connection is a no-op reporting the
// session's current count (zero session id when never attached).
func (m *Multiplexer) Detach(connID string) (sessionID string, remaining int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sessionID, ok := m.sessionFor[connID]
	if !ok {
		return "", 0
	}

	m.removeLocked(sessionID, connID)
	delete(m.sessionFor, connID)
	return sessionID, len(m.bySession[sessionID])
}

func (m *Multiplexer) removeLocked(sessionID, connID string) {
	set, ok := m.bySession[sessionID]
	if !ok {
		return
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(m.bySession, sessionID)
	}
}

// IsLastConnection reports whether the session's last connection has
// gone, i.e. zero connections remain attached.
func (m *Multiplexer) IsLastConnection(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.bySession[sessionID]) == 0
}

// Connections returns the connection ids currently attached to the
// session, for broadcast fan-out.
func (m *Multiplexer) Connections(sessionID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	set := m.bySession[sessionID]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}

// Counts reports total live connections and distinct sessions.
func (m *Multiplexer) Counts() (connections int, sessions int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessionFor), len(m.bySession)
}
