package server

import (
	"encoding/hex"
	"net"
	"sync"

	"github.com/Achbite/Server-System/pkg/protocol"
	"github.com/google/uuid"
)

// Session represents one live client connection. The account binding and
// active flag are mutated by other sessions' workers during a takeover,
// so they sit behind the session's own lock.
type Session struct {
	ID     string
	Conn   net.Conn
	Framer *protocol.Framer

	mu      sync.RWMutex
	account string
	active  bool
}

// Account returns the account id bound to this session, or "" when
// anonymous.
func (s *Session) Account() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.account
}

// LoggedIn reports whether the session is bound to an account.
func (s *Session) LoggedIn() bool {
	return s.Account() != ""
}

// Active reports whether the session may keep processing commands.
// It becomes false when the session is evicted by a forced takeover.
func (s *Session) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Send writes a framed message to the session's connection. Safe to call
// from any goroutine; the framer serializes writes.
func (s *Session) Send(m protocol.Message) error {
	return s.Framer.WriteMessage(m)
}

// newSessionID returns a fresh 128-bit random token rendered as 32 hex
// characters.
func newSessionID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}

// SessionManager owns the table of live sessions. One exclusive lock
// guards the map and every session's account binding, so the
// "at most one session per account" invariant is checked and updated
// atomically in Bind and Evict.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	metrics  *Metrics
}

// NewSessionManager creates an empty session table.
func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*Session),
	}
}

// SetMetrics attaches metrics to the session manager.
func (sm *SessionManager) SetMetrics(metrics *Metrics) {
	sm.metrics = metrics
}

// CreateSession allocates a session for the connection, inserts it and
// returns it. The caller (the connection worker) owns the session for
// its lifetime and must call RemoveSession exactly once on teardown.
func (sm *SessionManager) CreateSession(conn net.Conn) *Session {
	sess := &Session{
		ID:     newSessionID(),
		Conn:   conn,
		Framer: protocol.NewFramer(conn),
		active: true,
	}

	sm.mu.Lock()
	sm.sessions[sess.ID] = sess
	count := len(sm.sessions)
	sm.mu.Unlock()

	if sm.metrics != nil {
		sm.metrics.RecordActiveSessions(count)
		sm.metrics.RecordSessionCreated()
	}
	return sess
}

// GetSession returns a session by id.
func (sm *SessionManager) GetSession(id string) (*Session, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sess, ok := sm.sessions[id]
	return sess, ok
}

// RemoveSession deletes the session from the table. It is a no-op for
// unknown ids, so the deferred teardown path stays idempotent even when
// CloseAll ran first.
func (sm *SessionManager) RemoveSession(id string) {
	sm.mu.Lock()
	_, ok := sm.sessions[id]
	if !ok {
		sm.mu.Unlock()
		return
	}
	delete(sm.sessions, id)
	count := len(sm.sessions)
	sm.mu.Unlock()

	if sm.metrics != nil {
		sm.metrics.RecordActiveSessions(count)
		sm.metrics.RecordSessionDisconnected()
	}
}

// FindByAccount returns the id of the session currently bound to the
// account, or "" if there is none. Linear scan under the table lock.
func (sm *SessionManager) FindByAccount(accountID string) string {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.findByAccountLocked(accountID)
}

func (sm *SessionManager) findByAccountLocked(accountID string) string {
	if accountID == "" {
		return ""
	}
	for id, sess := range sm.sessions {
		sess.mu.RLock()
		bound := sess.account == accountID
		sess.mu.RUnlock()
		if bound {
			return id
		}
	}
	return ""
}

// Bind atomically binds the account to the session. If another live
// session already holds the account, Bind changes nothing and returns
// that session's id with ok=false. Two concurrent logins for the same
// account serialize here: one binds, the other sees the conflict.
func (sm *SessionManager) Bind(sess *Session, accountID string) (existingID string, ok bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if existing := sm.findByAccountLocked(accountID); existing != "" && existing != sess.ID {
		return existing, false
	}

	sess.mu.Lock()
	sess.account = accountID
	sess.mu.Unlock()
	return "", true
}

// Unbind clears the session's account binding.
func (sm *SessionManager) Unbind(sess *Session) {
	sess.mu.Lock()
	sess.account = ""
	sess.mu.Unlock()
}

// Evict clears the binding of whichever session holds the account and
// marks it inactive, returning it so the caller can notify it. The
// victim's socket is NOT closed here: eviction is cooperative, the
// victim's own worker tears the connection down when it next observes
// the flag or its read fails. Returns nil when no session holds the
// account.
func (sm *SessionManager) Evict(accountID string) *Session {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	id := sm.findByAccountLocked(accountID)
	if id == "" {
		return nil
	}

	victim := sm.sessions[id]
	victim.mu.Lock()
	victim.account = ""
	victim.active = false
	victim.mu.Unlock()
	return victim
}

// CountSessions returns the number of live sessions.
func (sm *SessionManager) CountSessions() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.sessions)
}

// CloseAll closes every connection and empties the table. Used on
// shutdown after the workers have been waited for.
func (sm *SessionManager) CloseAll() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	for _, sess := range sm.sessions {
		sess.Conn.Close()
	}
	sm.sessions = make(map[string]*Session)
}
