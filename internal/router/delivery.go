package router

import (
	"github.com/rs/zerolog"

	"medroom/pkg/interfaces"
	"medroom/pkg/types"
)

// Directory is the slice of the connection registry delivery needs
type Directory interface {
	Get(connID string) (interfaces.Connection, bool)
	RoomConnections(roomID string) []interfaces.Connection
	RoomConnectionsByRole(roomID string, role types.Role) []interfaces.Connection
}

// Delivery fans events out to bound connections.
// ARCHITECTURAL DISCOVERY: Reachability is checked at emission; nothing is
// queued for a connection that is gone or has moved to another room
type Delivery struct {
	dir    Directory
	logger zerolog.Logger
}

// NewDelivery creates a delivery helper over a directory
func NewDelivery(dir Directory, logger zerolog.Logger) *Delivery {
	return &Delivery{dir: dir, logger: logger.With().Str("component", "delivery").Logger()}
}

// MessageEvent wraps a logged message in its outbound event
func MessageEvent(msg types.Message) types.Event {
	if msg.SpeakerRole == types.SpeakerAI {
		return types.Event{Type: types.EventAIMessage, Data: msg}
	}
	return types.Event{Type: types.EventChatMessage, Data: msg}
}

func (d *Delivery) write(conn interfaces.Connection, event types.Event) {
	// FUNCTIONAL DISCOVERY: Continue delivery to other recipients even if one fails
	if err := conn.WriteJSON(event); err != nil {
		d.logger.Debug().Err(err).Str("conn_id", conn.ID()).Str("event", event.Type).Msg("delivery failed")
	}
}

// Broadcast sends an event to every connection in a room
func (d *Delivery) Broadcast(roomID string, event types.Event) {
	for _, conn := range d.dir.RoomConnections(roomID) {
		d.write(conn, event)
	}
}

// BroadcastExcept sends an event to every connection in a room but one
func (d *Delivery) BroadcastExcept(roomID, exceptConnID string, event types.Event) {
	for _, conn := range d.dir.RoomConnections(roomID) {
		if conn.ID() != exceptConnID {
			d.write(conn, event)
		}
	}
}

// SendToRole sends an event to the room's connections bound with one role
func (d *Delivery) SendToRole(roomID string, role types.Role, event types.Event) {
	for _, conn := range d.dir.RoomConnectionsByRole(roomID, role) {
		d.write(conn, event)
	}
}

// reachable returns the connection if it is still bound to roomID
func (d *Delivery) reachable(connID, roomID string) (interfaces.Connection, types.Binding, bool) {
	conn, exists := d.dir.Get(connID)
	if !exists {
		return nil, types.Binding{}, false
	}
	binding, bound := conn.Binding()
	if !bound || binding.RoomID != roomID {
		return nil, types.Binding{}, false
	}
	return conn, binding, true
}

// SendTo sends an event to one connection if it is still in the room
func (d *Delivery) SendTo(connID, roomID string, event types.Event) bool {
	conn, _, ok := d.reachable(connID, roomID)
	if !ok {
		return false
	}
	d.write(conn, event)
	return true
}

// DeliverMessage sends a logged message to every room connection allowed to see it.
// ARCHITECTURAL DISCOVERY: Visibility is re-checked per recipient at emission,
// so a role-scoped message cannot reach the other role through any caller
func (d *Delivery) DeliverMessage(roomID string, msg types.Message) {
	event := MessageEvent(msg)
	for _, conn := range d.dir.RoomConnections(roomID) {
		binding, bound := conn.Binding()
		if bound && types.Visible(msg, binding.Role) {
			d.write(conn, event)
		}
	}
}

// SendMessage delivers a logged message to a single connection, subject to the
// same visibility rule
func (d *Delivery) SendMessage(connID, roomID string, msg types.Message) bool {
	conn, binding, ok := d.reachable(connID, roomID)
	if !ok || !types.Visible(msg, binding.Role) {
		return false
	}
	d.write(conn, MessageEvent(msg))
	return true
}

// BroadcastFiles sends each connection the file list as its role may see it
func (d *Delivery) BroadcastFiles(roomID string, files []*types.UploadedFile) {
	views := map[types.Role][]*types.UploadedFile{
		types.RolePatient: types.FileViews(files, types.RolePatient),
		types.RoleDoctor:  types.FileViews(files, types.RoleDoctor),
	}
	for _, conn := range d.dir.RoomConnections(roomID) {
		binding, bound := conn.Binding()
		if !bound {
			continue
		}
		d.write(conn, types.Event{
			Type: types.EventFilesUpdated,
			Data: map[string]interface{}{"files": views[binding.Role]},
		})
	}
}

// SendError reports a client-safe failure to one connection
func SendError(conn interfaces.Connection, message string) {
	_ = conn.WriteJSON(types.Event{
		Type: types.EventError,
		Data: map[string]string{"message": message},
	})
}
