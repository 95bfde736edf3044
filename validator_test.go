package secretwall_test

import (
	"context"
	"errors"
	"testing"

	sw "github.com/secretwall/secretwall"
)

func newTestPair(t *testing.T) (*sw.Registrar, *sw.Validator, *memStore) {
	t.Helper()
	store := newMemStore()
	scheme := &sw.BcryptScheme{Cost: 4}
	return &sw.Registrar{Store: store, Scheme: scheme},
		&sw.Validator{Store: store, Scheme: scheme},
		store
}

// Register then validate: the pair that was registered succeeds immediately,
// a wrong password mismatches and an unknown email is a distinct failure.
func TestRegisterThenValidate(t *testing.T) {
	registrar, validator, _ := newTestPair(t)
	ctx := context.Background()

	user, err := registrar.Register(ctx, "a@x.com", "hunter2")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if user.ID == "" {
		t.Fatal("registered user has no id")
	}
	if user.PasswordHash == "hunter2" {
		t.Fatal("password stored in plaintext")
	}
	if user.Secrets == nil || len(user.Secrets) != 0 {
		t.Errorf("new user should start with an empty secrets collection, got %v", user.Secrets)
	}

	tests := []struct {
		name     string
		email    string
		password string
		wantErr  error
	}{
		{name: "correct credentials", email: "a@x.com", password: "hunter2"},
		{name: "wrong password", email: "a@x.com", password: "wrong", wantErr: sw.ErrInvalidCredentials},
		{name: "empty password", email: "a@x.com", password: "", wantErr: sw.ErrInvalidCredentials},
		{name: "unknown email", email: "b@x.com", password: "hunter2", wantErr: sw.ErrUserNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := validator.Validate(ctx, tt.email, tt.password)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("got err %v, want %v", err, tt.wantErr)
				}
				if got != nil {
					t.Error("failed validation must not return a user")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.ID != user.ID {
				t.Errorf("validated wrong user: got %s want %s", got.ID, user.ID)
			}
		})
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	registrar, _, _ := newTestPair(t)
	ctx := context.Background()

	if _, err := registrar.Register(ctx, "dup@x.com", "first"); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}
	if _, err := registrar.Register(ctx, "dup@x.com", "second"); !errors.Is(err, sw.ErrEmailExists) {
		t.Fatalf("second Register: got %v, want ErrEmailExists", err)
	}
}

func TestRegisterMissingFields(t *testing.T) {
	registrar, _, _ := newTestPair(t)
	ctx := context.Background()

	for _, tt := range []struct{ name, email, password string }{
		{name: "missing email", email: "", password: "hunter2"},
		{name: "missing password", email: "a@x.com", password: ""},
	} {
		t.Run(tt.name, func(t *testing.T) {
			var authErr *sw.AuthError
			if _, err := registrar.Register(ctx, tt.email, tt.password); !errors.As(err, &authErr) {
				t.Fatalf("got %v, want an AuthError", err)
			} else if authErr.Code != sw.ErrCodeMissingField {
				t.Errorf("got code %q, want %q", authErr.Code, sw.ErrCodeMissingField)
			}
		})
	}
}

// A provider-created account has no password hash; a password login against
// it must fail as a mismatch, not a server error.
func TestValidateProviderOnlyAccount(t *testing.T) {
	_, validator, store := newTestPair(t)
	ctx := context.Background()

	err := store.CreateUser(ctx, &sw.User{
		ID:       sw.NewUserId(),
		Email:    "provider@x.com",
		Provider: "google",
		Subject:  "g-123",
		Secrets:  []string{},
	})
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	if _, err := validator.Validate(ctx, "provider@x.com", "anything"); !errors.Is(err, sw.ErrInvalidCredentials) {
		t.Fatalf("got %v, want ErrInvalidCredentials", err)
	}
}
