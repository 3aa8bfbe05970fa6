// Package registry indexes live transport connections by room and by the
// connection id assigned at join time.
package registry

import (
	"sync"

	"github.com/google/uuid"

	"quizroom-service/internal/domain"
)

// Peer is a transport handle. Send must not block: a peer that cannot take
// the event right now reports false and the event is dropped for it.
type Peer interface {
	Send(ev domain.Event) bool
}

// Entry is the registry's view of one joined connection.
type Entry struct {
	ConnectionID string
	RoomCode     string
	UserID       string
	IsAdmin      bool
	Peer         Peer
}

// Stats is a point-in-time count of the registry contents.
type Stats struct {
	Connections int `json:"connections"`
	Rooms       int `json:"rooms"`
}

// Registry is safe for concurrent use. Only the session coordinator mutates it.
type Registry struct {
	mu          sync.RWMutex
	rooms       map[string]map[string]*Entry
	connections map[string]*Entry
}

func New() *Registry {
	return &Registry{
		rooms:       make(map[string]map[string]*Entry),
		connections: make(map[string]*Entry),
	}
}

// NewConnectionID returns a fresh connection identifier.
func (r *Registry) NewConnectionID() string {
	return "socket_" + uuid.NewString()
}

// Register indexes a connection under its room. Registering an id twice
// replaces the earlier entry.
func (r *Registry) Register(roomCode, connectionID, userID string, isAdmin bool, peer Peer) {
	entry := &Entry{
		ConnectionID: connectionID,
		RoomCode:     roomCode,
		UserID:       userID,
		IsAdmin:      isAdmin,
		Peer:         peer,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(connectionID)
	if r.rooms[roomCode] == nil {
		r.rooms[roomCode] = make(map[string]*Entry)
	}
	r.rooms[roomCode][connectionID] = entry
	r.connections[connectionID] = entry
}

// Lookup returns a copy of the entry for connectionID.
func (r *Registry) Lookup(connectionID string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.connections[connectionID]
	if !ok {
		return Entry{}, false
	}
	return *entry, true
}

// HasPeer reports whether peer is registered under the room.
func (r *Registry) HasPeer(roomCode string, peer Peer) bool {
	if peer == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.rooms[roomCode] {
		if e.Peer == peer {
			return true
		}
	}
	return false
}

// Unregister removes connectionID in both directions. Unknown ids are a no-op
// so duplicate close notifications are harmless.
func (r *Registry) Unregister(connectionID string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(connectionID)
}

func (r *Registry) removeLocked(connectionID string) (Entry, bool) {
	entry, ok := r.connections[connectionID]
	if !ok {
		return Entry{}, false
	}
	delete(r.connections, connectionID)
	if conns, ok := r.rooms[entry.RoomCode]; ok {
		delete(conns, connectionID)
		if len(conns) == 0 {
			delete(r.rooms, entry.RoomCode)
		}
	}
	return *entry, true
}

// DropRoom removes every connection of the room and returns how many went.
func (r *Registry) DropRoom(roomCode string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	conns := r.rooms[roomCode]
	for id := range conns {
		delete(r.connections, id)
	}
	delete(r.rooms, roomCode)
	return len(conns)
}

// Broadcast sends ev to every connection of the room except exceptID (pass
// "" to include all). It returns the number of peers that accepted the event.
func (r *Registry) Broadcast(roomCode, exceptID string, ev domain.Event) int {
	return r.fanOut(r.peers(roomCode, func(e *Entry) bool { return e.ConnectionID != exceptID }), ev)
}

// BroadcastAdmins sends ev to the admin connections of the room.
func (r *Registry) BroadcastAdmins(roomCode string, ev domain.Event) int {
	return r.fanOut(r.peers(roomCode, func(e *Entry) bool { return e.IsAdmin }), ev)
}

// Send delivers ev to a single connection.
func (r *Registry) Send(connectionID string, ev domain.Event) bool {
	r.mu.RLock()
	entry, ok := r.connections[connectionID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	return entry.Peer.Send(ev)
}

// Stats reports current counts.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{Connections: len(r.connections), Rooms: len(r.rooms)}
}

func (r *Registry) peers(roomCode string, keep func(*Entry) bool) []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := r.rooms[roomCode]
	out := make([]Peer, 0, len(conns))
	for _, e := range conns {
		if keep(e) {
			out = append(out, e.Peer)
		}
	}
	return out
}

// fanOut runs outside the lock; Send is a non-blocking enqueue.
func (r *Registry) fanOut(peers []Peer, ev domain.Event) int {
	sent := 0
	for _, p := range peers {
		if p.Send(ev) {
			sent++
		}
	}
	return sent
}
