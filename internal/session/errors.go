package session

import (
	"fmt"

	"medroom/pkg/types"
)

// Session store error types; each wraps a shared taxonomy sentinel
var (
	ErrRoomNotFound       = fmt.Errorf("%w: room not found", types.ErrNotFound)
	ErrInvitationNotFound = fmt.Errorf("%w: invitation not found", types.ErrNotFound)
	ErrFileNotFound       = fmt.Errorf("%w: file not found", types.ErrNotFound)
	ErrNotParticipant     = fmt.Errorf("%w: email is not bound to this room", types.ErrForbidden)
	ErrNotRoomDoctor      = fmt.Errorf("%w: only the room's doctor may do this", types.ErrForbidden)
	ErrMissingEmail       = fmt.Errorf("%w: doctor and patient emails are required", types.ErrValidation)
)
