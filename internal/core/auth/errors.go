package auth

import (
	"errors"
	"fmt"

	"github.com/solatis/labelkeeper/internal/types"
)

// Identity errors wrap types.ErrInvalidUserID so transports map them to 400
// (HTTP) or INVALID_ARGUMENT (gRPC) with one errors.Is check.
var (
	ErrUserIDTooLong   = fmt.Errorf("%w: longer than %d characters", types.ErrInvalidUserID, types.MaxUserIDLength)
	ErrUserIDControl   = fmt.Errorf("%w: contains control characters", types.ErrInvalidUserID)
	ErrMultipleUserIDs = fmt.Errorf("%w: more than one x-user-id value", types.ErrInvalidUserID)
	ErrNoDefaultUser   = errors.New("no user id supplied and no default configured")
)
