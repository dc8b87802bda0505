package websocket

import (
	"sort"
	"sync"

	"medroom/pkg/interfaces"
	"medroom/pkg/types"
)

// Registry is the connection directory: every live connection plus a
// room index of the joined ones.
// ARCHITECTURAL DISCOVERY: Pure connection tracking without business logic;
// the binding itself lives on the connection
type Registry struct {
	mu          sync.RWMutex                                // TECHNICAL DISCOVERY: RWMutex optimizes for read-heavy lookup patterns
	connections map[string]interfaces.Connection            // connID -> connection
	rooms       map[string]map[string]interfaces.Connection // roomID -> connID -> connection
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[string]interfaces.Connection),
		rooms:       make(map[string]map[string]interfaces.Connection),
	}
}

// Register tracks a freshly upgraded connection
func (r *Registry) Register(conn interfaces.Connection) error {
	if conn == nil {
		return ErrNilConnection
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connections[conn.ID()] = conn
	return nil
}

// Unregister forgets a connection and drops it from its room index.
// FUNCTIONAL DISCOVERY: Idempotent operation safe for concurrent unregistration
func (r *Registry) Unregister(conn interfaces.Connection) {
	if conn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if registered, exists := r.connections[conn.ID()]; !exists || registered != conn {
		return
	}
	delete(r.connections, conn.ID())
	r.removeFromRoomsLocked(conn.ID())
}

// BindRoom binds a connection to a room and indexes it there
func (r *Registry) BindRoom(conn interfaces.Connection, binding types.Binding) error {
	if conn == nil {
		return ErrNilConnection
	}
	if binding.ConnectionID != "" && binding.ConnectionID != conn.ID() {
		return ErrBindingMismatch
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.connections[conn.ID()]; !exists {
		return ErrNotRegistered
	}
	r.removeFromRoomsLocked(conn.ID())
	conn.Bind(binding)

	members, exists := r.rooms[binding.RoomID]
	if !exists {
		members = make(map[string]interfaces.Connection)
		r.rooms[binding.RoomID] = members
	}
	members[conn.ID()] = conn
	return nil
}

// UnbindRoom removes a connection from its room without unregistering it
func (r *Registry) UnbindRoom(conn interfaces.Connection) {
	if conn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeFromRoomsLocked(conn.ID())
	conn.Unbind()
}

// TECHNICAL DISCOVERY: Clean up empty maps to prevent memory leaks
func (r *Registry) removeFromRoomsLocked(connID string) {
	for roomID, members := range r.rooms {
		if _, exists := members[connID]; exists {
			delete(members, connID)
			if len(members) == 0 {
				delete(r.rooms, roomID)
			}
		}
	}
}

// Get looks up a connection by id
func (r *Registry) Get(connID string) (interfaces.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, exists := r.connections[connID]
	return conn, exists
}

// RoomConnections returns the connections bound to a room, ordered by id
func (r *Registry) RoomConnections(roomID string) []interfaces.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[roomID]
	connections := make([]interfaces.Connection, 0, len(members))
	for _, conn := range members {
		connections = append(connections, conn)
	}
	sort.Slice(connections, func(i, j int) bool {
		return connections[i].ID() < connections[j].ID()
	})
	return connections
}

// RoomConnectionsByRole filters a room's connections by bound role
func (r *Registry) RoomConnectionsByRole(roomID string, role types.Role) []interfaces.Connection {
	all := r.RoomConnections(roomID)
	filtered := make([]interfaces.Connection, 0, len(all))
	for _, conn := range all {
		if binding, ok := conn.Binding(); ok && binding.Role == role {
			filtered = append(filtered, conn)
		}
	}
	return filtered
}

// CountRoom returns how many connections are bound to a room
func (r *Registry) CountRoom(roomID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[roomID])
}

// GetStats returns registry statistics for monitoring and debugging
func (r *Registry) GetStats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bound := 0
	for _, members := range r.rooms {
		bound += len(members)
	}
	return map[string]int{
		"total_connections": len(r.connections),
		"bound_connections": bound,
		"active_rooms":      len(r.rooms),
	}
}
