/*
Package gateway contains the real-time presence and messaging core.

This file defines the Registry, the single source of truth for which users are
online, which connections exist, and which rooms each connection has joined.
One mutex covers all three indices so that a disconnect removes a connection
from the presence map and from every room as one atomic operation.
*/
package gateway

import "sync"

// Registry is the shared, concurrency-safe connection and room-membership state.
// It is injectable so multiple gateway instances (e.g. in tests) run isolated;
// it is never a package-level variable.
type Registry struct {
	mu sync.RWMutex

	// sessions holds every live connection, authenticated or not.
	sessions map[*Client]struct{}

	// conns maps user id to that user's current connection. At most one entry
	// per user id; a newer authenticated connection replaces the prior mapping.
	conns map[string]*Client

	// rooms maps room name to the set of member connections. Rooms exist only
	// while they have members.
	rooms map[string]map[*Client]struct{}

	// memberships is the reverse index: the set of rooms each connection joined.
	memberships map[*Client]map[string]struct{}
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions:    make(map[*Client]struct{}),
		conns:       make(map[string]*Client),
		rooms:       make(map[string]map[*Client]struct{}),
		memberships: make(map[*Client]map[string]struct{}),
	}
}

// AddSession records a newly connected, not yet authenticated connection.
func (r *Registry) AddSession(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[c] = struct{}{}
}

// Sessions returns a snapshot of every live connection.
func (r *Registry) Sessions() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Client, 0, len(r.sessions))
	for c := range r.sessions {
		out = append(out, c)
	}
	return out
}

// Register maps a user id to its current connection, replacing any prior
// mapping for the same user id (last writer wins).
func (r *Registry) Register(userID string, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.conns[userID] = c
}

// Lookup returns the connection currently mapped to the user id.
func (r *Registry) Lookup(userID string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.conns[userID]
	return c, ok
}

// OnlineUserIDs returns the ids of every user with a registered connection.
func (r *Registry) OnlineUserIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	return ids
}

// JoinRoom adds the connection to the room's membership set, creating the
// room implicitly on first join. It reports whether the connection was newly
// added; joining twice has no additional effect.
func (r *Registry) JoinRoom(c *Client, room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		r.rooms[room] = members
	}

	if _, already := members[c]; already {
		return false
	}
	members[c] = struct{}{}

	joined, ok := r.memberships[c]
	if !ok {
		joined = make(map[string]struct{})
		r.memberships[c] = joined
	}
	joined[room] = struct{}{}

	return true
}

// LeaveRoom removes the connection from the room's membership set. Leaving a
// room the connection is not a member of is a no-op. Empty rooms vanish.
func (r *Registry) LeaveRoom(c *Client, room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.leaveRoomLocked(c, room)
}

func (r *Registry) leaveRoomLocked(c *Client, room string) bool {
	members, ok := r.rooms[room]
	if !ok {
		return false
	}
	if _, member := members[c]; !member {
		return false
	}

	delete(members, c)
	if len(members) == 0 {
		delete(r.rooms, room)
	}

	if joined, ok := r.memberships[c]; ok {
		delete(joined, room)
		if len(joined) == 0 {
			delete(r.memberships, c)
		}
	}

	return true
}

// RoomMembers returns a snapshot of the connections currently in the room.
// An unknown room yields an empty slice; rooms are implicit.
func (r *Registry) RoomMembers(room string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[room]
	out := make([]*Client, 0, len(members))
	for c := range members {
		out = append(out, c)
	}
	return out
}

// RoomsOf returns the rooms the connection has joined.
func (r *Registry) RoomsOf(c *Client) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	joined := r.memberships[c]
	out := make([]string, 0, len(joined))
	for room := range joined {
		out = append(out, room)
	}
	return out
}

// Disconnect removes the connection from the session set, from the presence
// map, and from every room it joined, all under one lock acquisition. The
// presence entry is removed only when it still points at this exact
// connection, so a newer session from the same user is never clobbered.
// userID is empty when the connection never authenticated.
func (r *Registry) Disconnect(c *Client, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, c)

	if userID != "" {
		if current, ok := r.conns[userID]; ok && current == c {
			delete(r.conns, userID)
		}
	}

	for room := range r.memberships[c] {
		r.leaveRoomLocked(c, room)
	}
	delete(r.memberships, c)
}
