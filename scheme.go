package secretwall

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// CredentialScheme is the one-way transform applied to local passwords. The
// scheme is a global configuration decision made once at process start; a
// store written under one scheme is not readable under another.
type CredentialScheme interface {
	// Name returns the configuration name of the scheme
	Name() string

	// Hash computes the stored representation of a plaintext password
	Hash(plaintext string) (string, error)

	// Verify compares a submitted password against a stored representation.
	// Returns ErrInvalidCredentials on mismatch; any other error indicates a
	// malformed stored value.
	Verify(stored, submitted string) error
}

// SchemeNames
const (
	SchemeBcrypt = "bcrypt"
	SchemeHash   = "hash"
)

// SchemeByName selects one of the two supported schemes by configuration
// name. Defaults to bcrypt when name is empty.
func SchemeByName(name string) (CredentialScheme, error) {
	switch name {
	case SchemeBcrypt, "":
		return &BcryptScheme{}, nil
	case SchemeHash:
		return &HashScheme{}, nil
	default:
		return nil, fmt.Errorf("unknown credential scheme: %q", name)
	}
}

// BcryptScheme stores salted bcrypt digests. Verification extracts the
// embedded salt and is constant-time-equivalent.
type BcryptScheme struct {
	// Cost for new hashes. Zero means bcrypt.DefaultCost.
	Cost int
}

func (s *BcryptScheme) Name() string { return SchemeBcrypt }

func (s *BcryptScheme) Hash(plaintext string) (string, error) {
	cost := s.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

func (s *BcryptScheme) Verify(stored, submitted string) error {
	err := bcrypt.CompareHashAndPassword([]byte(stored), []byte(submitted))
	if err == bcrypt.ErrMismatchedHashAndPassword {
		return ErrInvalidCredentials
	}
	return err
}

// HashScheme stores unsalted SHA-256 hex digests. It exists for stores
// written by the earliest deployments; new deployments should use bcrypt.
type HashScheme struct{}

func (s *HashScheme) Name() string { return SchemeHash }

func (s *HashScheme) Hash(plaintext string) (string, error) {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:]), nil
}

func (s *HashScheme) Verify(stored, submitted string) error {
	sum := sha256.Sum256([]byte(submitted))
	recomputed := hex.EncodeToString(sum[:])
	if subtle.ConstantTimeCompare([]byte(stored), []byte(recomputed)) != 1 {
		return ErrInvalidCredentials
	}
	return nil
}
