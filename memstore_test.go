package secretwall_test

import (
	"context"
	"strings"
	"sync"

	sw "github.com/secretwall/secretwall"
)

// memStore is an in-memory UserStore for tests. Email uniqueness is enforced
// under a single lock, mirroring what the real stores get from their
// constraints.
type memStore struct {
	mu      sync.Mutex
	byId    map[string]*sw.User
	byEmail map[string]string
}

func newMemStore() *memStore {
	return &memStore{
		byId:    map[string]*sw.User{},
		byEmail: map[string]string{},
	}
}

func (s *memStore) CreateUser(ctx context.Context, user *sw.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(user.Email)
	if _, exists := s.byEmail[key]; exists {
		return sw.ErrEmailExists
	}
	clone := *user
	s.byId[user.ID] = &clone
	s.byEmail[key] = user.ID
	return nil
}

func (s *memStore) GetUserById(ctx context.Context, userId string) (*sw.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.byId[userId]
	if !ok {
		return nil, sw.ErrUserNotFound
	}
	clone := *user
	return &clone, nil
}

func (s *memStore) GetUserByEmail(ctx context.Context, email string) (*sw.User, error) {
	s.mu.Lock()
	userId, ok := s.byEmail[strings.ToLower(email)]
	s.mu.Unlock()
	if !ok {
		return nil, sw.ErrUserNotFound
	}
	return s.GetUserById(ctx, userId)
}

func (s *memStore) GetUserBySubject(ctx context.Context, provider, subject string) (*sw.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.byId {
		if user.Provider == provider && user.Subject == subject {
			clone := *user
			return &clone, nil
		}
	}
	return nil, sw.ErrUserNotFound
}

func (s *memStore) SaveUser(ctx context.Context, user *sw.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *user
	s.byId[user.ID] = &clone
	return nil
}

func (s *memStore) AppendSecret(ctx context.Context, userId string, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.byId[userId]
	if !ok {
		return sw.ErrUserNotFound
	}
	user.Secrets = append(user.Secrets, secret)
	return nil
}

func (s *memStore) ListUsersWithSecrets(ctx context.Context) ([]*sw.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*sw.User
	for _, user := range s.byId {
		if len(user.Secrets) > 0 {
			clone := *user
			out = append(out, &clone)
		}
	}
	return out, nil
}
