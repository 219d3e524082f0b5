package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/solatis/labelkeeper/internal/types"
	"google.golang.org/grpc/codes"
)

// ErrInvalidRequest indicates a request body that could not be decoded.
var ErrInvalidRequest = errors.New("invalid request")

// Error mapping for both transports.
// Validation errors map to 400 / INVALID_ARGUMENT.
// Missing rules map to 404 / NOT_FOUND.
// Context timeouts map to 504 / DEADLINE_EXCEEDED.
// Everything else is a storage failure: 500 / UNAVAILABLE.

// HTTPStatus returns the HTTP status code for err.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, types.ErrRuleNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	case isInvalidArgument(err):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return 499
	default:
		return http.StatusInternalServerError
	}
}

// GRPCCode returns the gRPC status code for err.
func GRPCCode(err error) codes.Code {
	switch {
	case err == nil:
		return codes.OK
	case errors.Is(err, types.ErrRuleNotFound):
		return codes.NotFound
	case errors.Is(err, types.ErrPayloadTooLarge):
		return codes.ResourceExhausted
	case isInvalidArgument(err):
		return codes.InvalidArgument
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	default:
		return codes.Unavailable
	}
}

// PublicMessage returns the message safe to show a caller. Storage errors
// are reduced to a generic text; validation errors are returned verbatim.
func PublicMessage(err error) string {
	switch HTTPStatus(err) {
	case http.StatusInternalServerError:
		return "internal error"
	case http.StatusGatewayTimeout:
		return "request timed out"
	default:
		return err.Error()
	}
}

func isInvalidArgument(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, types.ErrInvalidRule) ||
		errors.Is(err, types.ErrPayloadNotObject) ||
		errors.Is(err, types.ErrInvalidUserID) ||
		errors.Is(err, types.ErrInvalidTimeRange)
}
