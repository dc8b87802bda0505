package interfaces

import "medroom/pkg/types"

// Connection represents one live real-time client
// ARCHITECTURAL DISCOVERY: Pure abstraction without transport details
// lets the hub and router deliver events without touching gorilla types
type Connection interface {
	// WriteJSON sends an event to the client (thread-safe)
	// FUNCTIONAL DISCOVERY: Implementations must serialize writes with a
	// single writer goroutine
	WriteJSON(v interface{}) error

	// Close closes the connection and cleans up resources
	Close() error

	// ID returns the server-assigned connection identifier
	ID() string

	// Binding returns the room binding, ok=false before join-room
	Binding() (types.Binding, bool)

	// Bind attaches the connection to a room identity
	Bind(binding types.Binding)

	// Unbind detaches the connection from its room
	Unbind()
}
