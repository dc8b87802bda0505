package types

import (
	"errors"
	"fmt"
)

// ARCHITECTURAL DISCOVERY: One sentinel per failure class; packages wrap these
// with %w so transports can map them to status codes with errors.Is
var (
	ErrValidation       = errors.New("validation error")
	ErrNotFound         = errors.New("not found")
	ErrForbidden        = errors.New("forbidden")
	ErrModelUnavailable = errors.New("model unavailable")
	ErrRateLimited      = errors.New("rate limited")
)

// Field-level validation failures all classify as ErrValidation
var (
	ErrInvalidEmail    = fmt.Errorf("%w: email must be a valid address", ErrValidation)
	ErrInvalidRole     = fmt.Errorf("%w: role must be 'patient' or 'doctor'", ErrValidation)
	ErrInvalidNickname = fmt.Errorf("%w: nickname must be 1-50 characters", ErrValidation)
	ErrInvalidRoomID   = fmt.Errorf("%w: room id must be 1-64 characters, alphanumeric + underscore/hyphen only", ErrValidation)
	ErrEmptyMessage    = fmt.Errorf("%w: message text cannot be empty", ErrValidation)
	ErrMessageTooLong  = fmt.Errorf("%w: message text exceeds 4000 characters", ErrValidation)
)
