// Package room is the index of live rooms and their member sets. A room
// exists only while it has at least one member.
//
// Registry is not safe for concurrent use; callers serialise access.
package room

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrAlreadyExists = errors.New("room already exists")
	ErrNotFound      = errors.New("room not found")
)

// Room is a named member set. Members are connection IDs.
type Room struct {
	name    string
	owner   string
	members map[string]struct{}
}

// Name returns the room name.
func (r *Room) Name() string { return r.name }

// Owner returns the ID of the connection that created the room.
func (r *Room) Owner() string { return r.owner }

// Len returns the member count.
func (r *Room) Len() int { return len(r.members) }

// Has reports whether id is a member.
func (r *Room) Has(id string) bool {
	_, ok := r.members[id]
	return ok
}

// Add inserts id and reports whether it was new.
func (r *Room) Add(id string) bool {
	if r.Has(id) {
		return false
	}
	r.members[id] = struct{}{}
	return true
}

// Remove deletes id and reports whether it was present.
func (r *Room) Remove(id string) bool {
	if !r.Has(id) {
		return false
	}
	delete(r.members, id)
	return true
}

// Members returns the member IDs in ascending order.
func (r *Room) Members() []string {
	ids := make([]string, 0, len(r.members))
	for id := range r.members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Registry maps room names to rooms.
type Registry struct {
	rooms map[string]*Room
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*Room)}
}

// Exists reports whether a room called name is live.
func (g *Registry) Exists(name string) bool {
	_, ok := g.rooms[name]
	return ok
}

// Create registers a room whose sole member and owner is founder.
func (g *Registry) Create(name, founder string) (*Room, error) {
	if g.Exists(name) {
		return nil, fmt.Errorf("create %q: %w", name, ErrAlreadyExists)
	}
	r := &Room{
		name:    name,
		owner:   founder,
		members: map[string]struct{}{founder: {}},
	}
	g.rooms[name] = r
	return r, nil
}

// Get returns the named room or ErrNotFound.
func (g *Registry) Get(name string) (*Room, error) {
	r, ok := g.rooms[name]
	if !ok {
		return nil, fmt.Errorf("get %q: %w", name, ErrNotFound)
	}
	return r, nil
}

// Remove deletes the room. Removing an absent room is a no-op.
func (g *Registry) Remove(name string) {
	delete(g.rooms, name)
}

// RemoveIfEmpty deletes the room when it has no members and reports whether
// it did.
func (g *Registry) RemoveIfEmpty(name string) bool {
	r, ok := g.rooms[name]
	if !ok || r.Len() > 0 {
		return false
	}
	delete(g.rooms, name)
	return true
}

// Len returns the number of live rooms.
func (g *Registry) Len() int { return len(g.rooms) }

// Names returns the room names in ascending order.
func (g *Registry) Names() []string {
	names := make([]string, 0, len(g.rooms))
	for name := range g.rooms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
