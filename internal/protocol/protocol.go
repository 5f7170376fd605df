// Package protocol defines the JSON frames exchanged between relay clients
// and the server. Payload fields (iv, ciphertext, meta) are kept as raw JSON
// so they pass through the relay unchanged.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Inbound request types.
const (
	TypeCreate  = "create"
	TypeJoin    = "join"
	TypeLeave   = "leave"
	TypeMessage = "message"
	TypeExists  = "exists"
	TypeKick    = "kick"
)

// Outbound event types.
const (
	TypeHello   = "hello"
	TypeCreated = "created"
	TypeJoined  = "joined"
	TypeNoRoom  = "no-room"
	TypeError   = "error"
	TypeUsers   = "users"
	TypeEvent   = "event"
	TypeKicked  = "kicked"
)

// Lifecycle event names carried in Event.Event.
const (
	EventJoin  = "join"
	EventLeave = "leave"
	EventKick  = "kick"
)

// CloseKicked is the WebSocket close code sent to a client removed by a room owner.
const (
	CloseKicked       = 4000
	CloseKickedReason = "kicked"
)

// ErrMissingType is returned by Decode for frames without a "type" field.
var ErrMissingType = errors.New("protocol: missing type")

var emptyObject = json.RawMessage(`{}`)

// Request is a decoded inbound frame. Only the fields relevant to Type are set.
type Request struct {
	Type       string          `json:"type"`
	Room       string          `json:"room"`
	Username   *string         `json:"username"`
	TargetID   string          `json:"targetId"`
	IV         json.RawMessage `json:"iv"`
	Ciphertext json.RawMessage `json:"ciphertext"`
	Meta       json.RawMessage `json:"meta"`
}

// Decode parses a raw text frame.
func Decode(raw []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return Request{}, fmt.Errorf("protocol: decode frame: %w", err)
	}
	if req.Type == "" {
		return Request{}, ErrMissingType
	}
	return req, nil
}

// HasPayload reports whether a message request carries both iv and ciphertext.
func (r Request) HasPayload() bool {
	return present(r.IV) && present(r.Ciphertext)
}

func present(v json.RawMessage) bool {
	return len(v) > 0 && !bytes.Equal(v, []byte("null"))
}

func falsy(v json.RawMessage) bool {
	if !present(v) {
		return true
	}
	var scalar any
	if err := json.Unmarshal(v, &scalar); err != nil {
		return true
	}
	switch x := scalar.(type) {
	case bool:
		return !x
	case float64:
		return x == 0
	case string:
		return x == ""
	}
	return false
}

// Nullable maps an empty string to JSON null.
func Nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Hello is sent once to a freshly connected client.
type Hello struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// RoomAck acknowledges create, join and kick (to the kicked client).
type RoomAck struct {
	Type string `json:"type"`
	Room string `json:"room"`
}

// NoRoom answers a join for a room that does not exist.
type NoRoom struct {
	Type    string `json:"type"`
	Room    string `json:"room"`
	Message string `json:"message"`
}

// Error is a direct protocol error reply.
type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// User is one entry of a presence snapshot.
type User struct {
	ID       string  `json:"id"`
	Username *string `json:"username"`
}

// Users is a presence snapshot for a room.
type Users struct {
	Type  string `json:"type"`
	Room  string `json:"room"`
	Users []User `json:"users"`
}

// Event describes a membership transition.
type Event struct {
	Type     string  `json:"type"`
	Room     string  `json:"room"`
	Event    string  `json:"event"`
	Username *string `json:"username"`
}

// Chat is a relayed end-to-end encrypted message.
type Chat struct {
	Type       string          `json:"type"`
	Room       string          `json:"room"`
	Username   *string         `json:"username"`
	IV         json.RawMessage `json:"iv"`
	Ciphertext json.RawMessage `json:"ciphertext"`
	Meta       json.RawMessage `json:"meta"`
}

// ExistsReply answers an exists query.
type ExistsReply struct {
	Type   string `json:"type"`
	Room   string `json:"room"`
	Exists bool   `json:"exists"`
}

// NewHello tells a new connection its id.
func NewHello(id string) Hello { return Hello{Type: TypeHello, ID: id} }

func NewCreated(room string) RoomAck { return RoomAck{Type: TypeCreated, Room: room} }

func NewJoined(room string) RoomAck { return RoomAck{Type: TypeJoined, Room: room} }

func NewKicked(room string) RoomAck { return RoomAck{Type: TypeKicked, Room: room} }

func NewNoRoom(room string) NoRoom {
	return NoRoom{Type: TypeNoRoom, Room: room, Message: "Room not found"}
}

func NewError(message string) Error { return Error{Type: TypeError, Message: message} }

// NewUsers builds a presence snapshot. A nil list encodes as [].
func NewUsers(room string, users []User) Users {
	if users == nil {
		users = []User{}
	}
	return Users{Type: TypeUsers, Room: room, Users: users}
}

// NewEvent builds a lifecycle notification; an empty username encodes as null.
func NewEvent(room, event, username string) Event {
	return Event{Type: TypeEvent, Room: room, Event: event, Username: Nullable(username)}
}

func NewExists(room string, exists bool) ExistsReply {
	return ExistsReply{Type: TypeExists, Room: room, Exists: exists}
}

// NewChat builds the relayed form of a message request. A missing username
// becomes null; a missing or falsy meta (null, false, 0, "") becomes an empty
// object.
func NewChat(req Request) Chat {
	meta := req.Meta
	if falsy(meta) {
		meta = emptyObject
	}
	var username string
	if req.Username != nil {
		username = *req.Username
	}
	return Chat{
		Type:       TypeMessage,
		Room:       req.Room,
		Username:   Nullable(username),
		IV:         req.IV,
		Ciphertext: req.Ciphertext,
		Meta:       meta,
	}
}

// Encode marshals an outbound event.
func Encode(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode frame: %w", err)
	}
	return b, nil
}
