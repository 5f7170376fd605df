package relay

import (
	"github.com/Tyrowin/roomrelay/internal/protocol"
	"github.com/Tyrowin/roomrelay/internal/room"
)

// direct hands one event to a single session.
func (m *Manager) direct(s *Session, v any) {
	payload, err := protocol.Encode(v)
	if err != nil {
		m.log.Error("Failed to encode direct frame", "conn_id", s.id, "error", err)
		return
	}
	m.deliver(s, payload)
}

// fanOut hands one event to every member of r except exclude. The payload is
// encoded once; a failed delivery never stops the remaining ones.
func (m *Manager) fanOut(r *room.Room, v any, exclude string) {
	payload, err := protocol.Encode(v)
	if err != nil {
		m.log.Error("Failed to encode room frame", "room", r.Name(), "error", err)
		return
	}

	for _, id := range r.Members() {
		if id == exclude {
			continue
		}
		s, ok := m.sessions[id]
		if !ok {
			continue
		}
		m.deliver(s, payload)
	}
}

func (m *Manager) deliver(s *Session, payload []byte) {
	ok := s.transport.Deliver(payload)
	m.metrics.Delivered(ok)
	if !ok {
		m.log.Debug("Dropped frame for unresponsive connection", "conn_id", s.id)
	}
}

// presence builds the roster for r in member-ID order.
func (m *Manager) presence(r *room.Room) protocol.Users {
	ids := r.Members()
	users := make([]protocol.User, 0, len(ids))
	for _, id := range ids {
		var username string
		if s, ok := m.sessions[id]; ok {
			username = s.username
		}
		users = append(users, protocol.User{ID: id, Username: protocol.Nullable(username)})
	}
	return protocol.NewUsers(r.Name(), users)
}

// announce sends a lifecycle event followed by the refreshed roster.
func (m *Manager) announce(r *room.Room, event, username string) {
	m.fanOut(r, protocol.NewEvent(r.Name(), event, username), "")
	m.fanOut(r, m.presence(r), "")
}
