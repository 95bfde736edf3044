package gorm

import (
	"database/sql/driver"
	"encoding/json"
	"strings"
	"time"

	sw "github.com/secretwall/secretwall"
)

// StringSlice is a helper type for storing string slices in GORM
type StringSlice []string

func (s StringSlice) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal(s)
}

func (s *StringSlice) Scan(value any) error {
	if value == nil {
		*s = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	}
	return nil
}

// UserModel is the GORM model for users. The unique index on the lowercased
// email key is what makes the store the arbiter of registration races;
// Email keeps the address as the user typed it.
type UserModel struct {
	ID           string      `gorm:"primaryKey;size:64"`
	Email        string      `gorm:"size:255"`
	EmailKey     string      `gorm:"size:255;uniqueIndex"`
	PasswordHash string      `gorm:"size:255"`
	Provider     string      `gorm:"size:32;index:idx_users_subject"`
	Subject      string      `gorm:"size:255;index:idx_users_subject"`
	Secrets      StringSlice `gorm:"type:jsonb"`
	CreatedAt    time.Time   `gorm:"autoCreateTime"`
	UpdatedAt    time.Time   `gorm:"autoUpdateTime"`
}

func (UserModel) TableName() string {
	return "users"
}

func (m *UserModel) ToUser() *sw.User {
	secrets := []string(m.Secrets)
	if secrets == nil {
		secrets = []string{}
	}
	return &sw.User{
		ID:           m.ID,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		Provider:     m.Provider,
		Subject:      m.Subject,
		Secrets:      secrets,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func UserToModel(u *sw.User) *UserModel {
	return &UserModel{
		ID:           u.ID,
		Email:        u.Email,
		EmailKey:     strings.ToLower(u.Email),
		PasswordHash: u.PasswordHash,
		Provider:     u.Provider,
		Subject:      u.Subject,
		Secrets:      StringSlice(u.Secrets),
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}
