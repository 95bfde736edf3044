package secretwall

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"
)

// User is a single account record. Exactly one credential representation is
// stored at a time: a local password hash, or a provider subject when the
// account was created through an identity provider (in which case
// PasswordHash is empty).
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash,omitempty"`
	Provider     string    `json:"provider,omitempty"`
	Subject      string    `json:"subject,omitempty"`
	Secrets      []string  `json:"secrets"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HasLocalCredential reports whether the record can be validated against a
// submitted password at all.
func (u *User) HasLocalCredential() bool {
	return u.PasswordHash != ""
}

// UserStore is the persistence collaborator. The store is the sole arbiter of
// email uniqueness: CreateUser must fail with ErrEmailExists when the email
// is already taken, including under concurrent creates.
type UserStore interface {
	// GetUserByEmail retrieves a user by their email. Returns ErrUserNotFound
	// when no such record exists.
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// GetUserById retrieves a user by their ID. Returns ErrUserNotFound when
	// no such record exists.
	GetUserById(ctx context.Context, userId string) (*User, error)

	// GetUserBySubject retrieves a user by the external identifier a provider
	// reported for them. Returns ErrUserNotFound on a miss.
	GetUserBySubject(ctx context.Context, provider, subject string) (*User, error)

	// CreateUser persists a new record. Fails with ErrEmailExists if the
	// email is already registered.
	CreateUser(ctx context.Context, user *User) error

	// SaveUser updates an existing record (whole-record write).
	SaveUser(ctx context.Context, user *User) error

	// AppendSecret appends one secret to the user's collection, preserving
	// insertion order. Implementations that only support whole-record writes
	// may drop a concurrently appended secret (last write wins); they must
	// never lose the rest of the collection.
	AppendSecret(ctx context.Context, userId string, secret string) error

	// ListUsersWithSecrets returns every record holding at least one secret.
	ListUsersWithSecrets(ctx context.Context) ([]*User, error)
}

// NewUserId generates a cryptographically secure user ID
func NewUserId() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}
