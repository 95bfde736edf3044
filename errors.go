package secretwall

import "errors"

// Sentinel errors for the credential lifecycle. Store failures (connectivity,
// persistence) are never mapped onto these; they pass through wrapped so the
// caller can tell "wrong password" from "store is down".
var (
	// ErrUserNotFound means no record exists for the identifier
	ErrUserNotFound = errors.New("user not found")

	// ErrInvalidCredentials means the record exists but the submitted secret
	// does not match its stored representation
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrEmailExists means a record with that email already exists
	ErrEmailExists = errors.New("email already registered")
)

// Error codes for AuthError
const (
	ErrCodeMissingField = "missing_field"
	ErrCodeInvalidCreds = "invalid_credentials"
	ErrCodeEmailExists  = "email_exists"
	ErrCodeStoreError   = "store_error"
)

// AuthError carries a machine-readable code and the offending form field
// alongside the user-facing message.
type AuthError struct {
	Code    string
	Message string
	Field   string
}

func (e *AuthError) Error() string {
	return e.Message
}

// NewAuthError creates an AuthError with the given code, message and field
func NewAuthError(code, message, field string) *AuthError {
	return &AuthError{Code: code, Message: message, Field: field}
}
