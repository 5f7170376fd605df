// Package relay implements room membership, presence broadcast and liveness
// tracking for end-to-end encrypted chat rooms. The relay routes payloads
// without interpreting them.
//
// All state lives behind one Manager lock. Client requests, disconnect
// cleanup and heartbeat sweeps take that lock, so membership changes are
// applied one at a time and a room never lingers with zero members.
package relay

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/Tyrowin/roomrelay/internal/logging"
	"github.com/Tyrowin/roomrelay/internal/metrics"
	"github.com/Tyrowin/roomrelay/internal/protocol"
	"github.com/Tyrowin/roomrelay/internal/room"
)

var (
	ErrUnknownConnection = errors.New("unknown connection")
	ErrDuplicateID       = errors.New("connection id already registered")
	ErrMissingRoom       = errors.New("missing room")
	ErrRoomExists        = errors.New("room exists")
	ErrRoomNotFound      = errors.New("room not found")
	ErrUnauthorized      = errors.New("not the room owner")
	ErrRoomNameTooLong   = errors.New("room name too long")
	ErrUsernameTooLong   = errors.New("username too long")
)

// Replies sent for protocol errors.
const (
	msgMissingRoom     = "Missing room"
	msgRoomExists      = "Room exists"
	msgUnauthorized    = "Unauthorized"
	msgRoomNameTooLong = "Room name too long"
	msgUsernameTooLong = "Username too long"
)

// Limits bounds client-chosen strings. Zero means unlimited.
type Limits struct {
	MaxRoomName int
	MaxUsername int
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. The default discards output.
func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// WithMetrics sets the metric recorders. A nil value disables metrics.
func WithMetrics(r *metrics.Relay) Option {
	return func(m *Manager) { m.metrics = r }
}

// WithLimits sets length limits for room names and usernames.
func WithLimits(l Limits) Option {
	return func(m *Manager) { m.limits = l }
}

// Manager owns the room registry and every open session.
type Manager struct {
	mu       sync.Mutex
	rooms    *room.Registry
	sessions map[string]*Session
	limits   Limits
	metrics  *metrics.Relay
	log      *slog.Logger
}

// NewManager returns a Manager with no rooms or sessions.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		rooms:    room.NewRegistry(),
		sessions: make(map[string]*Session),
		log:      logging.Discard(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Connect registers a new session and greets it with its id.
func (m *Manager) Connect(id string, t Transport) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; ok {
		return fmt.Errorf("connect %s: %w", id, ErrDuplicateID)
	}
	s := newSession(id, t)
	m.sessions[id] = s
	m.metrics.ConnectionOpened()
	m.direct(s, protocol.NewHello(id))
	m.log.Debug("Connection registered", "conn_id", id, "connections", len(m.sessions))
	return nil
}

// Create makes id the founder, sole member and owner of a new room.
func (m *Manager) Create(id, name string, username *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return ErrUnknownConnection
	}
	if name == "" {
		m.direct(s, protocol.NewError(msgMissingRoom))
		return ErrMissingRoom
	}
	if err := m.checkLimits(s, name, username); err != nil {
		return err
	}

	r, err := m.rooms.Create(name, id)
	if err != nil {
		m.direct(s, protocol.NewError(msgRoomExists))
		return fmt.Errorf("create %q: %w", name, ErrRoomExists)
	}

	s.setUsername(username)
	s.memberRooms[name] = struct{}{}
	s.ownedRooms[name] = struct{}{}
	m.metrics.SetRooms(m.rooms.Len())
	m.log.Info("Room created", "room", name, "conn_id", id, "rooms", m.rooms.Len())

	m.direct(s, protocol.NewCreated(name))
	m.announce(r, protocol.EventJoin, s.username)
	return nil
}

// Join adds id to an existing room.
func (m *Manager) Join(id, name string, username *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return ErrUnknownConnection
	}
	if name == "" {
		m.direct(s, protocol.NewError(msgMissingRoom))
		return ErrMissingRoom
	}
	if err := m.checkLimits(s, name, username); err != nil {
		return err
	}

	r, err := m.rooms.Get(name)
	if err != nil {
		m.direct(s, protocol.NewNoRoom(name))
		return fmt.Errorf("join %q: %w", name, ErrRoomNotFound)
	}

	s.setUsername(username)
	r.Add(id)
	s.memberRooms[name] = struct{}{}
	m.log.Debug("Room joined", "room", name, "conn_id", id, "members", r.Len())

	m.direct(s, protocol.NewJoined(name))
	m.announce(r, protocol.EventJoin, s.username)
	return nil
}

// Leave removes id from a room. Leaving a room the session is not in is a
// silent no-op.
func (m *Manager) Leave(id, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return ErrUnknownConnection
	}
	r, err := m.rooms.Get(name)
	if err != nil || !r.Has(id) {
		return nil
	}
	m.removeMember(s, r, protocol.EventLeave)
	return nil
}

// Kick lets a room owner remove targetID. The target is told, closed with
// code 4000 and dropped from the room. Unknown rooms and targets are ignored.
func (m *Manager) Kick(id, name, targetID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return ErrUnknownConnection
	}
	r, err := m.rooms.Get(name)
	if err != nil {
		return nil
	}
	if !s.owns(name) {
		m.direct(s, protocol.NewError(msgUnauthorized))
		return fmt.Errorf("kick in %q: %w", name, ErrUnauthorized)
	}
	if targetID == "" || !r.Has(targetID) {
		return nil
	}

	target, ok := m.sessions[targetID]
	if !ok {
		m.log.Error("Room member has no session", "room", name, "target_id", targetID)
		return nil
	}

	m.direct(target, protocol.NewKicked(name))
	target.transport.Close(protocol.CloseKicked, protocol.CloseKickedReason)
	m.metrics.Kicked()
	m.log.Info("Member kicked", "room", name, "conn_id", id, "target_id", targetID)

	m.removeMember(target, r, protocol.EventKick)
	return nil
}

// Message relays an encrypted payload to every member of the room except the
// sender, who need not be a member. Incomplete requests and unknown rooms are
// dropped.
func (m *Manager) Message(id string, req protocol.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return ErrUnknownConnection
	}
	if req.Room == "" || !req.HasPayload() {
		return nil
	}
	r, err := m.rooms.Get(req.Room)
	if err != nil {
		return nil
	}

	m.fanOut(r, protocol.NewChat(req), id)
	return nil
}

// Exists answers whether a room of that name is live.
func (m *Manager) Exists(id, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return ErrUnknownConnection
	}
	m.direct(s, protocol.NewExists(name, m.rooms.Exists(name)))
	return nil
}

// Disconnect releases every membership the session holds and forgets it.
// Calling it for an unknown or already-released id does nothing.
func (m *Manager) Disconnect(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return
	}

	for _, name := range sortedKeys(s.memberRooms) {
		r, err := m.rooms.Get(name)
		if err != nil {
			delete(s.memberRooms, name)
			continue
		}
		m.removeMember(s, r, protocol.EventLeave)
	}

	delete(m.sessions, id)
	m.metrics.ConnectionClosed()
	m.log.Debug("Connection released", "conn_id", id, "connections", len(m.sessions))
}

// removeMember takes s out of r, then either destroys r or tells the
// remaining members what happened followed by the new roster.
func (m *Manager) removeMember(s *Session, r *room.Room, event string) {
	r.Remove(s.id)
	delete(s.memberRooms, r.Name())

	if m.dropIfEmpty(r) {
		return
	}
	m.announce(r, event, s.username)
}

func (m *Manager) dropIfEmpty(r *room.Room) bool {
	if !m.rooms.RemoveIfEmpty(r.Name()) {
		return false
	}
	if owner, ok := m.sessions[r.Owner()]; ok {
		delete(owner.ownedRooms, r.Name())
	}
	m.metrics.SetRooms(m.rooms.Len())
	m.log.Info("Room destroyed", "room", r.Name(), "rooms", m.rooms.Len())
	return true
}

func (m *Manager) checkLimits(s *Session, name string, username *string) error {
	if m.limits.MaxRoomName > 0 && utf8.RuneCountInString(name) > m.limits.MaxRoomName {
		m.direct(s, protocol.NewError(msgRoomNameTooLong))
		return ErrRoomNameTooLong
	}
	if username != nil && m.limits.MaxUsername > 0 && utf8.RuneCountInString(*username) > m.limits.MaxUsername {
		m.direct(s, protocol.NewError(msgUsernameTooLong))
		return ErrUsernameTooLong
	}
	return nil
}

// RoomCount returns the number of live rooms.
func (m *Manager) RoomCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rooms.Len()
}

// Members returns the member IDs of a room in ascending order.
func (m *Manager) Members(name string) ([]string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, err := m.rooms.Get(name)
	if err != nil {
		return nil, false
	}
	return r.Members(), true
}

// ConnectionCount returns the number of registered sessions.
func (m *Manager) ConnectionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Session returns a copy of the session state for id.
func (m *Manager) Session(id string) (SessionInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return SessionInfo{}, false
	}
	return s.info(), true
}
