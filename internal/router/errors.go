package router

import (
	"fmt"

	"medroom/pkg/types"
)

// Router-specific error types
var (
	ErrNotJoined = fmt.Errorf("%w: join a room first", types.ErrValidation)
)
