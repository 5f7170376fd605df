package relay

import (
	"errors"

	"github.com/Tyrowin/roomrelay/internal/protocol"
)

// Handle decodes one inbound frame from id and applies it. Frames that do not
// parse and unknown request types are dropped without a reply.
func (m *Manager) Handle(id string, raw []byte) {
	req, err := protocol.Decode(raw)
	if err != nil {
		m.log.Debug("Dropping malformed frame", "conn_id", id, "error", err)
		return
	}
	m.metrics.FrameReceived(req.Type)

	switch req.Type {
	case protocol.TypeCreate:
		err = m.Create(id, req.Room, req.Username)
	case protocol.TypeJoin:
		err = m.Join(id, req.Room, req.Username)
	case protocol.TypeLeave:
		err = m.Leave(id, req.Room)
	case protocol.TypeMessage:
		err = m.Message(id, req)
	case protocol.TypeExists:
		err = m.Exists(id, req.Room)
	case protocol.TypeKick:
		err = m.Kick(id, req.Room, req.TargetID)
	default:
		m.log.Debug("Ignoring unknown request type", "conn_id", id, "type", req.Type)
		return
	}

	if err != nil && !errors.Is(err, ErrUnknownConnection) {
		m.log.Debug("Request rejected", "conn_id", id, "type", req.Type, "room", req.Room, "error", err)
	}
}
