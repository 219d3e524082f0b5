// Package auth resolves the caller identity for HTTP and gRPC requests.
//
// Identity is declared, not proven: the X-User-Id header (HTTP) or x-user-id
// metadata (gRPC) names the user whose rules and payloads a request works on.
// Requests without one act as the configured default user.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"unicode"

	"github.com/solatis/labelkeeper/internal/types"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// HeaderName is the HTTP header carrying the user id.
const HeaderName = "X-User-Id"

// MetadataKey is the gRPC metadata key carrying the user id.
const MetadataKey = "x-user-id"

// contextKey is a typed key for context values to avoid collisions.
type contextKey string

// userIDKey is the context key for storing the resolved user id.
const userIDKey = contextKey("user_id")

// Resolver turns a raw identity value into a UserID.
type Resolver struct {
	defaultUser types.UserID
}

// NewResolver creates a resolver that falls back to defaultUser.
func NewResolver(defaultUser types.UserID) *Resolver {
	return &Resolver{defaultUser: defaultUser}
}

// Resolve validates raw, substituting the default user when raw is blank.
func (r *Resolver) Resolve(raw string) (types.UserID, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		if r.defaultUser == "" {
			return "", ErrNoDefaultUser
		}
		return r.defaultUser, nil
	}
	if len(id) > types.MaxUserIDLength {
		return "", ErrUserIDTooLong
	}
	if strings.IndexFunc(id, unicode.IsControl) >= 0 {
		return "", ErrUserIDControl
	}
	return types.UserID(id), nil
}

// HTTPMiddleware resolves X-User-Id and stores the user id in the request
// context. Invalid ids are rejected with 400.
func (r *Resolver) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		user, err := r.Resolve(req.Header.Get(HeaderName))
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			code := http.StatusBadRequest
			if errors.Is(err, ErrNoDefaultUser) {
				code = http.StatusUnauthorized
			}
			w.WriteHeader(code)
			_, _ = w.Write([]byte(`{"error":"` + identityErrorMessage(err) + `"}` + "\n"))
			return
		}
		next.ServeHTTP(w, req.WithContext(WithUserID(req.Context(), user)))
	})
}

// UnaryInterceptor returns gRPC interceptor that resolves x-user-id metadata.
func (r *Resolver) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		var raw string
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			values := md.Get(MetadataKey)
			if len(values) > 1 {
				return nil, status.Error(codes.InvalidArgument, ErrMultipleUserIDs.Error())
			}
			if len(values) == 1 {
				raw = values[0]
			}
		}

		user, err := r.Resolve(raw)
		if err != nil {
			if errors.Is(err, ErrNoDefaultUser) {
				return nil, status.Error(codes.Unauthenticated, err.Error())
			}
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}

		// Inject user id into context for downstream handlers
		return handler(WithUserID(ctx, user), req)
	}
}

// WithUserID returns a copy of ctx carrying user.
func WithUserID(ctx context.Context, user types.UserID) context.Context {
	return context.WithValue(ctx, userIDKey, user)
}

// UserIDFromContext extracts the user id from context.
// Returns empty string if not found.
func UserIDFromContext(ctx context.Context) types.UserID {
	if user, ok := ctx.Value(userIDKey).(types.UserID); ok {
		return user
	}
	return ""
}

func identityErrorMessage(err error) string {
	switch {
	case errors.Is(err, ErrUserIDTooLong):
		return "user id too long"
	case errors.Is(err, ErrUserIDControl):
		return "user id contains control characters"
	case errors.Is(err, ErrNoDefaultUser):
		return "user id required"
	default:
		return "invalid user id"
	}
}
