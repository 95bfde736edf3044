package grpc

import (
	"context"
	"fmt"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func testVerifier(token string) (string, error) {
	if token == "good-token" {
		return "user-42", nil
	}
	return "", fmt.Errorf("bad token")
}

func incomingCtx(authValue string) context.Context {
	md := metadata.MD{}
	if authValue != "" {
		md.Set(DefaultMetadataKeyAuthorization, authValue)
	}
	return metadata.NewIncomingContext(context.Background(), md)
}

func TestUnaryAuthInterceptor(t *testing.T) {
	tests := []struct {
		name       string
		authValue  string
		config     *InterceptorConfig
		method     string
		wantCode   codes.Code
		wantUserId string
	}{
		{
			name:       "valid bearer token",
			authValue:  "Bearer good-token",
			config:     DefaultInterceptorConfig(testVerifier),
			method:     "/secretwall.SecretService/Submit",
			wantUserId: "user-42",
		},
		{
			name:       "bare token without prefix",
			authValue:  "good-token",
			config:     DefaultInterceptorConfig(testVerifier),
			method:     "/secretwall.SecretService/Submit",
			wantUserId: "user-42",
		},
		{
			name:      "invalid token rejected",
			authValue: "Bearer bad-token",
			config:    DefaultInterceptorConfig(testVerifier),
			method:    "/secretwall.SecretService/Submit",
			wantCode:  codes.Unauthenticated,
		},
		{
			name:     "missing token rejected",
			config:   DefaultInterceptorConfig(testVerifier),
			method:   "/secretwall.SecretService/Submit",
			wantCode: codes.Unauthenticated,
		},
		{
			name:   "public method passes without token",
			config: NewPublicMethodsConfig(testVerifier, "/secretwall.SecretService/ListSecrets"),
			method: "/secretwall.SecretService/ListSecrets",
		},
		{
			name:   "optional auth passes without token",
			config: OptionalAuthConfig(testVerifier),
			method: "/secretwall.SecretService/ListSecrets",
		},
		{
			name:       "optional auth still resolves a valid token",
			authValue:  "Bearer good-token",
			config:     OptionalAuthConfig(testVerifier),
			method:     "/secretwall.SecretService/ListSecrets",
			wantUserId: "user-42",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			interceptor := UnaryAuthInterceptor(tt.config)
			var gotUserId string
			handler := func(ctx context.Context, req any) (any, error) {
				gotUserId = UserIDFromContext(ctx)
				return "ok", nil
			}

			_, err := interceptor(incomingCtx(tt.authValue), nil,
				&grpc.UnaryServerInfo{FullMethod: tt.method}, handler)

			if tt.wantCode != codes.OK {
				if status.Code(err) != tt.wantCode {
					t.Fatalf("got code %v, want %v", status.Code(err), tt.wantCode)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if gotUserId != tt.wantUserId {
				t.Errorf("handler saw user %q, want %q", gotUserId, tt.wantUserId)
			}
		})
	}
}

func TestWithAuthorizationRoundTrip(t *testing.T) {
	ctx := WithAuthorization(context.Background(), "good-token")
	md, ok := metadata.FromOutgoingContext(ctx)
	if !ok {
		t.Fatal("no outgoing metadata")
	}
	values := md.Get(DefaultMetadataKeyAuthorization)
	if len(values) != 1 || values[0] != "Bearer good-token" {
		t.Fatalf("got %v, want [Bearer good-token]", values)
	}
}
