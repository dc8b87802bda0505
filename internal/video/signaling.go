// Package video is the call-signaling state machine of a room: Idle -> Active -> Idle.
// It exchanges peer identifiers only; media never passes through the server.
package video

import (
	"fmt"
	"strings"

	"medroom/pkg/types"
)

var (
	ErrDoctorOnly  = fmt.Errorf("%w: only the doctor can start or end a video call", types.ErrForbidden)
	ErrNotActive   = fmt.Errorf("%w: no active video call", types.ErrValidation)
	ErrMissingPeer = fmt.Errorf("%w: peer id is required", types.ErrValidation)
)

// PeerNotice is the payload of user-joined-video and user-left-video
type PeerNotice struct {
	PeerID   string     `json:"peerId"`
	Nickname string     `json:"nickname"`
	Role     types.Role `json:"role"`
}

// ExistingParticipants is the payload sent to a joiner
type ExistingParticipants struct {
	Participants []string `json:"participants"`
}

// CallStarted is the payload of video-call-started and video-call-active
type CallStarted struct {
	StartedBy    string   `json:"startedBy"`
	Participants []string `json:"participants"`
}

// Every transition validates before mutating, so a rejected transition leaves
// the call untouched.

// Start opens a call and clears the roster; restarting an active call resets it
func Start(call *types.VideoCall, role types.Role, startedBy string) error {
	if role != types.RoleDoctor {
		return ErrDoctorOnly
	}
	call.Active = true
	call.StartedBy = startedBy
	call.Participants = []string{}
	return nil
}

// Join adds a peer and returns the roster as it was before the join.
// FUNCTIONAL DISCOVERY: Joining twice with the same peer id is a no-op for the
// roster, and the joiner never sees itself in the returned list
func Join(call *types.VideoCall, peerID string) ([]string, error) {
	peerID = strings.TrimSpace(peerID)
	if peerID == "" {
		return nil, ErrMissingPeer
	}
	if !call.Active {
		return nil, ErrNotActive
	}

	existing := make([]string, 0, len(call.Participants))
	present := false
	for _, p := range call.Participants {
		if p == peerID {
			present = true
			continue
		}
		existing = append(existing, p)
	}
	if !present {
		call.Participants = append(call.Participants, peerID)
	}
	return existing, nil
}

// Leave removes a peer; reports whether it was in the roster
func Leave(call *types.VideoCall, peerID string) bool {
	for i, p := range call.Participants {
		if p == peerID {
			call.Participants = append(call.Participants[:i:i], call.Participants[i+1:]...)
			return true
		}
	}
	return false
}

// End closes an active call and clears the roster
func End(call *types.VideoCall, role types.Role) error {
	if role != types.RoleDoctor {
		return ErrDoctorOnly
	}
	if !call.Active {
		return ErrNotActive
	}
	call.Active = false
	call.StartedBy = ""
	call.Participants = []string{}
	return nil
}
