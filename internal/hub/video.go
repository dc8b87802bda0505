package hub

import (
	"strings"

	"medroom/internal/router"
	"medroom/internal/video"
	"medroom/pkg/interfaces"
	"medroom/pkg/types"
)

func callStarted(call types.VideoCall) video.CallStarted {
	return video.CallStarted{StartedBy: call.StartedBy, Participants: call.Participants}
}

// clearVideoPeers forgets every peer of a room after start/end/delete
func (h *Hub) clearVideoPeers(roomID string) {
	for connID, peer := range h.videoPeers {
		if peer.roomID == roomID {
			delete(h.videoPeers, connID)
		}
	}
}

func (h *Hub) handleStartVideo(conn interfaces.Connection) error {
	binding, bound := conn.Binding()
	if !bound {
		return router.ErrNotJoined
	}
	if err := h.store.AuthorizeDoctor(binding.RoomID, binding.Role, binding.Email); err != nil {
		return err
	}
	call, err := h.store.UpdateVideo(binding.RoomID, func(c *types.VideoCall) error {
		return video.Start(c, binding.Role, binding.Nickname)
	})
	if err != nil {
		return err
	}
	h.clearVideoPeers(binding.RoomID)

	h.delivery.Broadcast(binding.RoomID, types.Event{Type: types.EventVideoCallStarted, Data: callStarted(call)})
	h.logger.Info().Str("room_id", binding.RoomID).Msg("video call started")
	return nil
}

// handleJoinVideo adds the caller's peer id and hands back the pre-join roster
func (h *Hub) handleJoinVideo(conn interfaces.Connection, req types.VideoRequest) error {
	binding, bound := conn.Binding()
	if !bound {
		return router.ErrNotJoined
	}
	req.PeerID = strings.TrimSpace(req.PeerID)
	if req.PeerID == "" {
		return video.ErrMissingPeer
	}

	// FUNCTIONAL DISCOVERY: A connection holds one peer id; rejoining under a
	// new id retires the old one so later joiners never dial a dead peer
	if prev, ok := h.videoPeers[conn.ID()]; ok && prev.roomID == binding.RoomID && prev.peerID != req.PeerID {
		h.removePeer(conn.ID(), binding, prev.peerID)
	}

	var existing []string
	if _, err := h.store.UpdateVideo(binding.RoomID, func(c *types.VideoCall) error {
		var err error
		existing, err = video.Join(c, req.PeerID)
		return err
	}); err != nil {
		return err
	}
	h.videoPeers[conn.ID()] = videoPeer{roomID: binding.RoomID, peerID: req.PeerID}

	_ = conn.WriteJSON(types.Event{
		Type: types.EventExistingVideoParticipants,
		Data: video.ExistingParticipants{Participants: existing},
	})
	h.delivery.BroadcastExcept(binding.RoomID, conn.ID(), types.Event{
		Type: types.EventUserJoinedVideo,
		Data: video.PeerNotice{PeerID: req.PeerID, Nickname: binding.Nickname, Role: binding.Role},
	})
	return nil
}

func (h *Hub) handleLeaveVideo(conn interfaces.Connection, req types.VideoRequest) error {
	binding, bound := conn.Binding()
	if !bound {
		return router.ErrNotJoined
	}
	if req.PeerID == "" {
		if peer, ok := h.videoPeers[conn.ID()]; ok {
			req.PeerID = peer.peerID
		}
	}
	if req.PeerID == "" {
		return video.ErrMissingPeer
	}
	h.removePeer(conn.ID(), binding, req.PeerID)
	return nil
}

// dropVideoPeer removes a departing connection from its room's call
func (h *Hub) dropVideoPeer(connID string, binding types.Binding) {
	peer, ok := h.videoPeers[connID]
	if !ok || peer.roomID != binding.RoomID {
		return
	}
	h.removePeer(connID, binding, peer.peerID)
}

func (h *Hub) removePeer(connID string, binding types.Binding, peerID string) {
	delete(h.videoPeers, connID)

	removed := false
	if _, err := h.store.UpdateVideo(binding.RoomID, func(c *types.VideoCall) error {
		removed = video.Leave(c, peerID)
		return nil
	}); err != nil || !removed {
		return
	}
	h.delivery.BroadcastExcept(binding.RoomID, connID, types.Event{
		Type: types.EventUserLeftVideo,
		Data: video.PeerNotice{PeerID: peerID, Nickname: binding.Nickname, Role: binding.Role},
	})
}

func (h *Hub) handleEndVideo(conn interfaces.Connection) error {
	binding, bound := conn.Binding()
	if !bound {
		return router.ErrNotJoined
	}
	if err := h.store.AuthorizeDoctor(binding.RoomID, binding.Role, binding.Email); err != nil {
		return err
	}
	if _, err := h.store.UpdateVideo(binding.RoomID, func(c *types.VideoCall) error {
		return video.End(c, binding.Role)
	}); err != nil {
		return err
	}
	h.clearVideoPeers(binding.RoomID)

	h.delivery.Broadcast(binding.RoomID, types.Event{
		Type: types.EventVideoCallEnded,
		Data: map[string]string{"endedBy": binding.Nickname},
	})
	h.logger.Info().Str("room_id", binding.RoomID).Msg("video call ended")
	return nil
}
