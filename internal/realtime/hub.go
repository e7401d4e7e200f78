package realtime

import (
	"sync"
)

// Session is one connected client. Out is a bounded queue: a full queue means
// the event is dropped for that session rather than blocking the fan-out.
// Sends go through TrySend so a fan-out that snapshotted the session before
// its removal cannot hit a closed channel.
type Session struct {
	ID     string
	UserID string
	Out    chan []byte

	mu     sync.Mutex
	closed bool
}

// TrySend queues the payload without blocking. It reports false when the
// queue is full or the session is already closed.
func (s *Session) TrySend(b []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.Out <- b:
		return true
	default:
		return false
	}
}

// Close shuts the outbound queue so the write loop drains and exits. Safe to
// call more than once; concurrent TrySend calls see the closed flag first.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.Out)
}

// Hub is the session registry. A user may hold several sessions (multiple
// tabs, phone plus desktop); contention is per-user so a single RWMutex over
// the map is enough.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]map[string]*Session // user id -> session id -> session
	count    int
}

func NewHub() *Hub {
	return &Hub{sessions: make(map[string]map[string]*Session)}
}

// Add registers a session and returns how many sessions the user now holds.
func (h *Hub) Add(s *Session) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	byID, ok := h.sessions[s.UserID]
	if !ok {
		byID = make(map[string]*Session)
		h.sessions[s.UserID] = byID
	}
	if _, existed := byID[s.ID]; !existed {
		h.count++
	}
	byID[s.ID] = s
	return len(byID)
}

// Remove drops a session and returns how many sessions the user still holds.
func (h *Hub) Remove(userID, sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	byID, ok := h.sessions[userID]
	if !ok {
		return 0
	}
	if _, existed := byID[sessionID]; existed {
		delete(byID, sessionID)
		h.count--
	}
	if len(byID) == 0 {
		delete(h.sessions, userID)
		return 0
	}
	return len(byID)
}

// SessionsFor snapshots every session belonging to the given users.
func (h *Hub) SessionsFor(userIDs []string) []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []*Session
	for _, uid := range userIDs {
		for _, s := range h.sessions[uid] {
			out = append(out, s)
		}
	}
	return out
}

// Online reports whether the user holds at least one session.
func (h *Hub) Online(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[userID]) > 0
}

// Len is the total number of open sessions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Users is the number of distinct online users.
func (h *Hub) Users() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}
