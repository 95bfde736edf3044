// Package gorm provides a database-backed user store. Any GORM dialect
// works; sqlite is what the bundled server uses.
package gorm

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	sw "github.com/secretwall/secretwall"
)

// AutoMigrate runs database migrations for all secretwall tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&UserModel{})
}

// UserStore implements secretwall.UserStore using GORM.
//
// Duplicate-key detection relies on the dialect translating driver errors,
// so open the DB with gorm.Config{TranslateError: true}.
type UserStore struct {
	db *gorm.DB
}

func NewUserStore(db *gorm.DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) CreateUser(ctx context.Context, user *sw.User) error {
	err := s.db.WithContext(ctx).Create(UserToModel(user)).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return sw.ErrEmailExists
	}
	return err
}

func (s *UserStore) GetUserById(ctx context.Context, userId string) (*sw.User, error) {
	return s.first(ctx, "id = ?", userId)
}

func (s *UserStore) GetUserByEmail(ctx context.Context, email string) (*sw.User, error) {
	return s.first(ctx, "email_key = ?", strings.ToLower(email))
}

func (s *UserStore) GetUserBySubject(ctx context.Context, provider, subject string) (*sw.User, error) {
	return s.first(ctx, "provider = ? AND subject = ?", provider, subject)
}

func (s *UserStore) first(ctx context.Context, query string, args ...any) (*sw.User, error) {
	var model UserModel
	if err := s.db.WithContext(ctx).First(&model, append([]any{query}, args...)...).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, sw.ErrUserNotFound
		}
		return nil, err
	}
	return model.ToUser(), nil
}

func (s *UserStore) SaveUser(ctx context.Context, user *sw.User) error {
	return s.db.WithContext(ctx).Save(UserToModel(user)).Error
}

// AppendSecret re-reads the record inside a transaction so the append is
// atomic with respect to other appends on the same connection.
func (s *UserStore) AppendSecret(ctx context.Context, userId string, secret string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model UserModel
		if err := tx.First(&model, "id = ?", userId).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return sw.ErrUserNotFound
			}
			return err
		}
		model.Secrets = append(model.Secrets, secret)
		return tx.Model(&model).Update("secrets", model.Secrets).Error
	})
}

func (s *UserStore) ListUsersWithSecrets(ctx context.Context) ([]*sw.User, error) {
	var models []UserModel
	if err := s.db.WithContext(ctx).Order("created_at").Find(&models).Error; err != nil {
		return nil, err
	}

	// Secrets live in a json column so the filter happens here, not in SQL
	var out []*sw.User
	for i := range models {
		if len(models[i].Secrets) > 0 {
			out = append(out, models[i].ToUser())
		}
	}
	return out, nil
}
