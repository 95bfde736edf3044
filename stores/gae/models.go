package gae

import (
	"time"

	"cloud.google.com/go/datastore"

	sw "github.com/secretwall/secretwall"
)

// UserEntity is the Datastore entity for users, keyed by user id.
type UserEntity struct {
	Key          *datastore.Key `datastore:"__key__"`
	Email        string         `datastore:"email"`
	PasswordHash string         `datastore:"password_hash,noindex"`
	Provider     string         `datastore:"provider"`
	Subject      string         `datastore:"subject"`
	Secrets      []string       `datastore:"secrets,noindex"`
	CreatedAt    time.Time      `datastore:"created_at"`
	UpdatedAt    time.Time      `datastore:"updated_at"`
}

func (e *UserEntity) ToUser() *sw.User {
	secrets := e.Secrets
	if secrets == nil {
		secrets = []string{}
	}
	return &sw.User{
		ID:           e.Key.Name,
		Email:        e.Email,
		PasswordHash: e.PasswordHash,
		Provider:     e.Provider,
		Subject:      e.Subject,
		Secrets:      secrets,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}
}

func UserToEntity(u *sw.User, key *datastore.Key) *UserEntity {
	return &UserEntity{
		Key:          key,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Provider:     u.Provider,
		Subject:      u.Subject,
		Secrets:      u.Secrets,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

// EmailEntity reserves an email address. Keyed by the lowercased email, it is
// inserted in the same transaction as the user so duplicate registrations
// fail atomically.
type EmailEntity struct {
	Key       *datastore.Key `datastore:"__key__"`
	UserID    string         `datastore:"user_id"`
	CreatedAt time.Time      `datastore:"created_at"`
}
