package secretwall

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Validator decides whether a submitted identifier+password pair matches a
// stored record. Read-only against the store.
type Validator struct {
	Store  UserStore
	Scheme CredentialScheme
}

// Validate looks the identifier up and verifies the submitted password under
// the configured scheme. An empty password is not rejected here; it simply
// will not verify.
//
// Failure modes are kept distinct: ErrUserNotFound for a missing record,
// ErrInvalidCredentials for a mismatch (including provider-only records with
// no local credential), and anything else is a store failure passed through
// wrapped.
func (v *Validator) Validate(ctx context.Context, email, password string) (*User, error) {
	user, err := v.Store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("looking up user: %w", err)
	}

	if !user.HasLocalCredential() {
		// Provider-only account. Indistinguishable from a wrong password on
		// the outside.
		return nil, ErrInvalidCredentials
	}

	if err := v.Scheme.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("verifying credential: %w", err)
	}

	return user, nil
}

// Registrar creates new local accounts. Uniqueness of the email is the
// store's responsibility; the registrar never pre-checks, it just surfaces
// the store's verdict.
type Registrar struct {
	Store  UserStore
	Scheme CredentialScheme
}

// Register hashes the password under the configured scheme, builds a record
// with an empty secrets collection and persists it. On success the caller is
// expected to establish a session immediately (registration implies login).
func (r *Registrar) Register(ctx context.Context, email, password string) (*User, error) {
	if email == "" {
		return nil, NewAuthError(ErrCodeMissingField, "Email is required.", "email")
	}
	if password == "" {
		return nil, NewAuthError(ErrCodeMissingField, "Password is required.", "password")
	}

	hash, err := r.Scheme.Hash(password)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	user := &User{
		ID:           NewUserId(),
		Email:        email,
		PasswordHash: hash,
		Secrets:      []string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := r.Store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, ErrEmailExists) {
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}
	return user, nil
}
