package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// InterceptorConfig configures the auth interceptor behavior.
type InterceptorConfig struct {
	// Config holds the metadata keys and the token verifier.
	*Config

	// RequireAuth when true rejects calls with no valid token.
	// When false, calls proceed but UserIDFromContext returns "".
	RequireAuth bool

	// PublicMethods are exempt from RequireAuth. Keys are full method names
	// like "/secretwall.SecretService/ListSecrets".
	PublicMethods map[string]bool
}

// DefaultInterceptorConfig returns a config that requires auth for all methods.
func DefaultInterceptorConfig(verify func(string) (string, error)) *InterceptorConfig {
	return &InterceptorConfig{
		Config:        &Config{VerifyToken: verify},
		RequireAuth:   true,
		PublicMethods: make(map[string]bool),
	}
}

// NewPublicMethodsConfig creates a config with the specified public methods.
func NewPublicMethodsConfig(verify func(string) (string, error), publicMethods ...string) *InterceptorConfig {
	config := DefaultInterceptorConfig(verify)
	for _, method := range publicMethods {
		config.PublicMethods[method] = true
	}
	return config
}

// OptionalAuthConfig returns a config that allows unauthenticated calls.
func OptionalAuthConfig(verify func(string) (string, error)) *InterceptorConfig {
	config := DefaultInterceptorConfig(verify)
	config.RequireAuth = false
	return config
}

// UnaryAuthInterceptor returns a gRPC unary interceptor that verifies the
// bearer token and injects the user id into the call context.
func UnaryAuthInterceptor(config *InterceptorConfig) grpc.UnaryServerInterceptor {
	config.ensure()
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := config.authenticate(ctx, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamAuthInterceptor returns a gRPC stream interceptor that verifies the
// bearer token and injects the user id into the stream context.
func StreamAuthInterceptor(config *InterceptorConfig) grpc.StreamServerInterceptor {
	config.ensure()
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := config.authenticate(ss.Context(), info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &wrappedStream{ServerStream: ss, ctx: ctx})
	}
}

func (c *InterceptorConfig) ensure() {
	if c.Config == nil {
		c.Config = &Config{}
	}
	c.Config.EnsureDefaults()
	if c.PublicMethods == nil {
		c.PublicMethods = make(map[string]bool)
	}
}

func (c *InterceptorConfig) authenticate(ctx context.Context, fullMethod string) (context.Context, error) {
	userId := ""
	if token := bearerToken(ctx, c.Config.MetadataKeyAuthorization); token != "" && c.Config.VerifyToken != nil {
		if id, err := c.Config.VerifyToken(token); err == nil {
			userId = id
		}
	}
	if c.RequireAuth && !c.PublicMethods[fullMethod] && userId == "" {
		return nil, status.Error(codes.Unauthenticated, "authentication required")
	}
	return withUserId(ctx, userId), nil
}

type wrappedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedStream) Context() context.Context {
	return w.ctx
}
