// Package gae provides a Google Cloud Datastore backed user store.
package gae

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/datastore"
	"google.golang.org/api/iterator"

	sw "github.com/secretwall/secretwall"
)

// Kind constants for Datastore entities
const (
	KindUser  = "User"
	KindEmail = "Email"
)

// UserStore implements secretwall.UserStore using Google Cloud Datastore.
// Email uniqueness and secret appends both go through transactions, so
// concurrent registrations and appends are safe.
type UserStore struct {
	client    *datastore.Client
	namespace string
}

// NewUserStore creates a new Datastore-backed UserStore
func NewUserStore(client *datastore.Client, namespace string) *UserStore {
	return &UserStore{client: client, namespace: namespace}
}

func (s *UserStore) namespacedKey(kind, name string) *datastore.Key {
	key := datastore.NameKey(kind, name, nil)
	key.Namespace = s.namespace
	return key
}

func (s *UserStore) emailKey(email string) *datastore.Key {
	return s.namespacedKey(KindEmail, strings.ToLower(email))
}

func (s *UserStore) CreateUser(ctx context.Context, user *sw.User) error {
	userKey := s.namespacedKey(KindUser, user.ID)
	emailKey := s.emailKey(user.Email)
	now := time.Now()

	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var existing EmailEntity
		err := tx.Get(emailKey, &existing)
		if err == nil {
			return sw.ErrEmailExists
		}
		if !errors.Is(err, datastore.ErrNoSuchEntity) {
			return err
		}
		if _, err := tx.Put(emailKey, &EmailEntity{Key: emailKey, UserID: user.ID, CreatedAt: now}); err != nil {
			return err
		}
		_, err = tx.Put(userKey, UserToEntity(user, userKey))
		return err
	})
	return err
}

func (s *UserStore) GetUserById(ctx context.Context, userId string) (*sw.User, error) {
	key := s.namespacedKey(KindUser, userId)
	var entity UserEntity
	if err := s.client.Get(ctx, key, &entity); err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return nil, sw.ErrUserNotFound
		}
		return nil, err
	}
	entity.Key = key
	return entity.ToUser(), nil
}

func (s *UserStore) GetUserByEmail(ctx context.Context, email string) (*sw.User, error) {
	var entity EmailEntity
	if err := s.client.Get(ctx, s.emailKey(email), &entity); err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return nil, sw.ErrUserNotFound
		}
		return nil, err
	}
	return s.GetUserById(ctx, entity.UserID)
}

func (s *UserStore) GetUserBySubject(ctx context.Context, provider, subject string) (*sw.User, error) {
	query := datastore.NewQuery(KindUser).
		Namespace(s.namespace).
		FilterField("provider", "=", provider).
		FilterField("subject", "=", subject).
		Limit(1)

	it := s.client.Run(ctx, query)
	var entity UserEntity
	key, err := it.Next(&entity)
	if errors.Is(err, iterator.Done) {
		return nil, sw.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	entity.Key = key
	return entity.ToUser(), nil
}

func (s *UserStore) SaveUser(ctx context.Context, user *sw.User) error {
	key := s.namespacedKey(KindUser, user.ID)
	user.UpdatedAt = time.Now()
	_, err := s.client.Put(ctx, key, UserToEntity(user, key))
	return err
}

// AppendSecret runs read-append-write in a transaction so concurrent appends
// to the same user never drop a secret.
func (s *UserStore) AppendSecret(ctx context.Context, userId string, secret string) error {
	key := s.namespacedKey(KindUser, userId)
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var entity UserEntity
		if err := tx.Get(key, &entity); err != nil {
			if errors.Is(err, datastore.ErrNoSuchEntity) {
				return sw.ErrUserNotFound
			}
			return err
		}
		entity.Key = key
		entity.Secrets = append(entity.Secrets, secret)
		entity.UpdatedAt = time.Now()
		_, err := tx.Put(key, &entity)
		return err
	})
	return err
}

func (s *UserStore) ListUsersWithSecrets(ctx context.Context) ([]*sw.User, error) {
	query := datastore.NewQuery(KindUser).Namespace(s.namespace).Order("created_at")
	it := s.client.Run(ctx, query)

	var out []*sw.User
	for {
		var entity UserEntity
		key, err := it.Next(&entity)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		entity.Key = key
		if len(entity.Secrets) > 0 {
			out = append(out, entity.ToUser())
		}
	}
	return out, nil
}
