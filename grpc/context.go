// Package grpc verifies session tokens carried in gRPC metadata so backend
// services can identify the calling user without a browser session.
package grpc

import (
	"context"
	"strings"

	"google.golang.org/grpc/metadata"
)

// DefaultMetadataKeyAuthorization carries the bearer token on incoming calls
const DefaultMetadataKeyAuthorization = "authorization"

// Config holds the metadata key configuration and the token verifier.
type Config struct {
	// MetadataKeyAuthorization is the metadata key the bearer token is read
	// from. Defaults to "authorization".
	MetadataKeyAuthorization string

	// VerifyToken validates a token string and returns the user id it was
	// issued to. Wire this to SessionAuthenticator.VerifyToken.
	VerifyToken func(token string) (userId string, err error)
}

func (c *Config) EnsureDefaults() {
	if c.MetadataKeyAuthorization == "" {
		c.MetadataKeyAuthorization = DefaultMetadataKeyAuthorization
	}
}

type userIdContextKey struct{}

// UserIDFromContext extracts the verified user id placed in the context by
// the auth interceptors. Returns "" for unauthenticated calls.
func UserIDFromContext(ctx context.Context) string {
	if v := ctx.Value(userIdContextKey{}); v != nil {
		if userId, ok := v.(string); ok {
			return userId
		}
	}
	return ""
}

// IsAuthenticated returns true if there is a verified user in the context.
func IsAuthenticated(ctx context.Context) bool {
	return UserIDFromContext(ctx) != ""
}

// WithAuthorization adds a bearer token to outgoing gRPC metadata. Clients
// use this to forward a browser session's token to a backend service.
func WithAuthorization(ctx context.Context, token string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, DefaultMetadataKeyAuthorization, "Bearer "+token)
}

func withUserId(ctx context.Context, userId string) context.Context {
	return context.WithValue(ctx, userIdContextKey{}, userId)
}

// bearerToken pulls the bearer token out of incoming metadata, or "" when
// the call carries none.
func bearerToken(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get(key)
	if len(values) == 0 {
		return ""
	}
	token := strings.TrimSpace(values[0])
	if rest, found := strings.CutPrefix(token, "Bearer "); found {
		return strings.TrimSpace(rest)
	}
	return token
}
