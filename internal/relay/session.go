package relay

import "sort"

// Transport is the live channel behind a session. Every method must return
// without waiting on the peer.
type Transport interface {
	// Deliver queues a text frame and reports whether it was accepted.
	Deliver(payload []byte) bool
	// Probe queues a liveness ping and reports whether it was accepted.
	Probe() bool
	// Close sends a close frame with code and reason, then closes the channel.
	Close(code int, reason string)
	// Terminate drops the channel without a closing handshake.
	Terminate()
}

// Session is the relay-side state of one open connection. memberRooms and
// ownedRooms are back-references; the room registry stays authoritative.
type Session struct {
	id          string
	username    string
	memberRooms map[string]struct{}
	ownedRooms  map[string]struct{}
	alive       bool
	terminated  bool
	transport   Transport
}

func newSession(id string, t Transport) *Session {
	return &Session{
		id:          id,
		memberRooms: make(map[string]struct{}),
		ownedRooms:  make(map[string]struct{}),
		alive:       true,
		transport:   t,
	}
}

func (s *Session) setUsername(username *string) {
	if username != nil {
		s.username = *username
	}
}

func (s *Session) owns(room string) bool {
	_, ok := s.ownedRooms[room]
	return ok
}

// SessionInfo is a point-in-time copy of a session's state.
type SessionInfo struct {
	ID          string
	Username    string
	MemberRooms []string
	OwnedRooms  []string
	Alive       bool
}

func (s *Session) info() SessionInfo {
	return SessionInfo{
		ID:          s.id,
		Username:    s.username,
		MemberRooms: sortedKeys(s.memberRooms),
		OwnedRooms:  sortedKeys(s.ownedRooms),
		Alive:       s.alive,
	}
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
