package hub

import (
	"context"
	"encoding/json"
	"errors"

	"medroom/internal/router"
	"medroom/pkg/interfaces"
	"medroom/pkg/types"
)

// RoomHistory is the payload of room-history, already filtered for the joiner's role
type RoomHistory struct {
	RoomID        string                `json:"roomId"`
	Role          types.Role            `json:"role"`
	Messages      []types.Message       `json:"messages"`
	Files         []*types.UploadedFile `json:"files"`
	HealthMetrics *types.HealthMetrics  `json:"healthMetrics,omitempty"`
	VideoCall     types.VideoCall       `json:"videoCall"`
	Presence      types.Presence        `json:"presence"`
}

// MemberNotice is the payload of user-joined and user-left
type MemberNotice struct {
	Nickname  string         `json:"nickname"`
	Role      types.Role     `json:"role"`
	AvatarURL string         `json:"avatarUrl,omitempty"`
	Presence  types.Presence `json:"presence"`
}

const genericFailure = "Something went wrong, please try again"

func decode(envelope types.Envelope, v interface{}) error {
	if len(envelope.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, v); err != nil {
		return ErrMalformedPayload
	}
	return nil
}

// handleEvent routes one client event. Runs on the loop
func (h *Hub) handleEvent(conn interfaces.Connection, envelope types.Envelope) {
	var err error
	switch envelope.Type {
	case types.EventJoinRoom:
		var req types.JoinRequest
		if err = decode(envelope, &req); err == nil {
			err = h.handleJoin(conn, req)
		}
	case types.EventChatMessage:
		var req types.ChatRequest
		if err = decode(envelope, &req); err == nil {
			err = h.router.HandleChat(h.ctx, conn, req)
		}
	case types.EventTyping:
		var req types.TypingRequest
		if err = decode(envelope, &req); err == nil {
			err = h.router.HandleTyping(conn, req)
		}
	case types.EventRequestDocumentation:
		err = h.handleDocumentation(conn)
	case types.EventStartVideoCall:
		err = h.handleStartVideo(conn)
	case types.EventJoinVideoCall:
		var req types.VideoRequest
		if err = decode(envelope, &req); err == nil {
			err = h.handleJoinVideo(conn, req)
		}
	case types.EventLeaveVideoCall:
		var req types.VideoRequest
		if err = decode(envelope, &req); err == nil {
			err = h.handleLeaveVideo(conn, req)
		}
	case types.EventEndVideoCall:
		err = h.handleEndVideo(conn)
	default:
		err = ErrUnknownEvent
	}

	if err != nil {
		h.logger.Debug().Err(err).Str("conn_id", conn.ID()).Str("event", envelope.Type).Msg("event rejected")
		router.SendError(conn, clientMessage(err))
	}
}

// clientMessage keeps internal failures out of client-visible text
func clientMessage(err error) string {
	if errors.Is(err, types.ErrValidation) || errors.Is(err, types.ErrForbidden) || errors.Is(err, types.ErrNotFound) {
		return err.Error()
	}
	return genericFailure
}

// handleJoin binds a connection to a room and replays what its role may see.
// FUNCTIONAL DISCOVERY: A second join on the same connection leaves the
// previous room first, so a connection is never in two rooms
func (h *Hub) handleJoin(conn interfaces.Connection, req types.JoinRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if err := h.store.CheckJoin(req.RoomID, req.Role, req.Email); err != nil {
		return err
	}
	if _, bound := conn.Binding(); bound {
		h.leaveRoom(conn)
	}

	h.store.EnsureRoom(req.RoomID)
	if err := h.registry.BindRoom(conn, types.Binding{
		RoomID:    req.RoomID,
		Nickname:  req.Nickname,
		Role:      req.Role,
		AvatarURL: req.AvatarURL,
		Email:     req.Email,
	}); err != nil {
		return err
	}
	binding, _ := conn.Binding()

	presence, err := h.store.ClaimPresence(binding)
	if err != nil {
		return err
	}
	room, ok := h.store.Snapshot(binding.RoomID)
	if !ok {
		return errors.New("room vanished during join")
	}

	history := RoomHistory{
		RoomID:    room.ID,
		Role:      binding.Role,
		Messages:  types.VisibleMessages(room.Messages, binding.Role),
		Files:     types.FileViews(room.Files, binding.Role),
		VideoCall: room.VideoCall,
		Presence:  presence,
	}
	if binding.Role == types.RoleDoctor {
		history.HealthMetrics = room.HealthMetrics
	}
	_ = conn.WriteJSON(types.Event{Type: types.EventRoomHistory, Data: history})

	h.delivery.Broadcast(binding.RoomID, types.Event{
		Type: types.EventUserJoined,
		Data: MemberNotice{Nickname: binding.Nickname, Role: binding.Role, AvatarURL: binding.AvatarURL, Presence: presence},
	})

	if room.VideoCall.Active {
		_ = conn.WriteJSON(types.Event{
			Type: types.EventVideoCallActive,
			Data: callStarted(room.VideoCall),
		})
	}

	h.logger.Info().Str("room_id", binding.RoomID).Str("conn_id", conn.ID()).
		Str("role", string(binding.Role)).Msg("joined room")
	return nil
}

// leaveRoom releases presence and the video slot, then unbinds.
// FUNCTIONAL DISCOVERY: The presence slot is cleared only when this
// connection still owns it; a newer same-role joiner keeps its identity
func (h *Hub) leaveRoom(conn interfaces.Connection) {
	binding, bound := conn.Binding()
	if !bound {
		return
	}

	h.dropVideoPeer(conn.ID(), binding)
	h.registry.UnbindRoom(conn)

	presence, cleared, err := h.store.ReleasePresence(binding)
	if err != nil {
		return
	}
	h.delivery.Broadcast(binding.RoomID, types.Event{
		Type: types.EventUserLeft,
		Data: MemberNotice{Nickname: binding.Nickname, Role: binding.Role, Presence: presence},
	})
	h.logger.Info().Str("room_id", binding.RoomID).Str("conn_id", conn.ID()).
		Bool("slot_cleared", cleared).Msg("left room")
}

func (h *Hub) handleDisconnect(conn interfaces.Connection) {
	h.leaveRoom(conn)
	h.registry.Unregister(conn)
}

// DocumentationResult is the payload of documentation-generated
type DocumentationResult struct {
	RoomID        string `json:"roomId"`
	Documentation string `json:"documentation"`
}

// handleDocumentation produces a note for the requesting doctor only
func (h *Hub) handleDocumentation(conn interfaces.Connection) error {
	binding, bound := conn.Binding()
	if !bound {
		return router.ErrNotJoined
	}
	if err := h.store.AuthorizeDoctor(binding.RoomID, binding.Role, binding.Email); err != nil {
		return err
	}
	room, ok := h.store.Snapshot(binding.RoomID)
	if !ok {
		return router.ErrNotJoined
	}

	h.Go(func(ctx context.Context) func() {
		note := h.documenter.Documentation(ctx, room)
		return func() {
			h.delivery.SendTo(binding.ConnectionID, binding.RoomID, types.Event{
				Type: types.EventDocumentationGenerated,
				Data: DocumentationResult{RoomID: binding.RoomID, Documentation: note},
			})
		}
	})
	return nil
}
