// Package stores provides filesystem-backed persistence for user records.
// Database-backed implementations live in the gorm and gae subpackages.
package stores

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	sw "github.com/secretwall/secretwall"
)

// FSUserStore stores users as JSON files. Email uniqueness is enforced with
// an index file created exclusively, so concurrent registrations for the same
// email resolve to exactly one winner even across processes.
//
// AppendSecret is a read-modify-write of the whole record; two concurrent
// appends to the same user can lose one secret (last write wins) when they
// come from different processes. Within a process a mutex serializes them.
type FSUserStore struct {
	StoragePath string

	mu sync.Mutex
}

func NewFSUserStore(storagePath string) *FSUserStore {
	return &FSUserStore{StoragePath: storagePath}
}

func (s *FSUserStore) userPath(userId string) string {
	return filepath.Join(s.StoragePath, "users", userId+".json")
}

func (s *FSUserStore) emailIndexPath(email string) string {
	key := hex.EncodeToString([]byte(strings.ToLower(email)))
	return filepath.Join(s.StoragePath, "index", "email", key)
}

func (s *FSUserStore) subjectIndexPath(provider, subject string) string {
	key := hex.EncodeToString([]byte(provider + "|" + subject))
	return filepath.Join(s.StoragePath, "index", "subject", key)
}

func (s *FSUserStore) CreateUser(ctx context.Context, user *sw.User) error {
	emailPath := s.emailIndexPath(user.Email)
	if err := os.MkdirAll(filepath.Dir(emailPath), 0755); err != nil {
		return err
	}

	// O_EXCL makes the index file the uniqueness arbiter
	f, err := os.OpenFile(emailPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return sw.ErrEmailExists
		}
		return err
	}
	_, err = f.WriteString(user.ID)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(emailPath)
		return err
	}

	if err := s.writeUser(user); err != nil {
		os.Remove(emailPath)
		return err
	}

	if user.Provider != "" && user.Subject != "" {
		subjectPath := s.subjectIndexPath(user.Provider, user.Subject)
		if err := os.MkdirAll(filepath.Dir(subjectPath), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(subjectPath, []byte(user.ID), 0644); err != nil {
			return err
		}
	}
	return nil
}

func (s *FSUserStore) GetUserById(ctx context.Context, userId string) (*sw.User, error) {
	data, err := os.ReadFile(s.userPath(userId))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, sw.ErrUserNotFound
		}
		return nil, err
	}
	var user sw.User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *FSUserStore) GetUserByEmail(ctx context.Context, email string) (*sw.User, error) {
	return s.getByIndex(ctx, s.emailIndexPath(email))
}

func (s *FSUserStore) GetUserBySubject(ctx context.Context, provider, subject string) (*sw.User, error) {
	return s.getByIndex(ctx, s.subjectIndexPath(provider, subject))
}

func (s *FSUserStore) getByIndex(ctx context.Context, indexPath string) (*sw.User, error) {
	data, err := os.ReadFile(indexPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, sw.ErrUserNotFound
		}
		return nil, err
	}
	return s.GetUserById(ctx, strings.TrimSpace(string(data)))
}

func (s *FSUserStore) SaveUser(ctx context.Context, user *sw.User) error {
	return s.writeUser(user)
}

func (s *FSUserStore) AppendSecret(ctx context.Context, userId string, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, err := s.GetUserById(ctx, userId)
	if err != nil {
		return err
	}
	user.Secrets = append(user.Secrets, secret)
	return s.writeUser(user)
}

func (s *FSUserStore) ListUsersWithSecrets(ctx context.Context) ([]*sw.User, error) {
	usersDir := filepath.Join(s.StoragePath, "users")
	entries, err := os.ReadDir(usersDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []*sw.User
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		user, err := s.GetUserById(ctx, strings.TrimSuffix(name, ".json"))
		if err != nil {
			return nil, err
		}
		if len(user.Secrets) > 0 {
			out = append(out, user)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *FSUserStore) writeUser(user *sw.User) error {
	user.UpdatedAt = time.Now()
	path := s.userPath(user.ID)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(user, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomicFile(path, data)
}
