package hub

import (
	"errors"
	"fmt"

	"medroom/pkg/types"
)

// Hub-specific error types
var (
	ErrHubAlreadyRunning = errors.New("hub is already running")
	ErrHubNotRunning     = errors.New("hub is not running")
	ErrUnknownEvent      = fmt.Errorf("%w: unknown event type", types.ErrValidation)
	ErrMalformedPayload  = fmt.Errorf("%w: malformed event payload", types.ErrValidation)
)
