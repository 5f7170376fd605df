// Package server implements the HTTP and WebSocket transport for the room relay.
//
// The implementation is organized into specialized files for configuration, hub
// management, clients, routing, and HTTP handlers. Room membership, presence
// and liveness rules live in the relay package; this package only moves
// frames between sockets and the relay.
package server
