package auth

import (
	"errors"
	"strings"
)

// Sentinel failures of the credential flows.  Handlers map them to HTTP
// status codes with errors.Is.
var (
	ErrValidation          = errors.New("validation failed")
	ErrPasswordMismatch    = errors.New("passwords do not match")
	ErrUserExists          = errors.New("user already exists")
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrRoleAssignment      = errors.New("default role is not configured")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	// ErrRefreshTokenIssue means a refresh token minted by this service could
	// not be decoded again.  It is a server fault, not a client one.
	ErrRefreshTokenIssue = errors.New("refresh token could not be issued")
)

// RefreshErrorKind tells the refresh rejections apart for logs and metrics.
// It is never sent to clients.
type RefreshErrorKind string

const (
	KindDecode         RefreshErrorKind = "decode"
	KindUnknownSubject RefreshErrorKind = "unknown_subject"
	KindInvalidated    RefreshErrorKind = "invalidated"
	KindMismatch       RefreshErrorKind = "mismatch"
	KindExpired        RefreshErrorKind = "expired"
)

// RefreshError is returned by Refresh and Logout for every rejected token.
// errors.Is(err, ErrInvalidRefreshToken) holds for all kinds.
type RefreshError struct {
	Kind RefreshErrorKind
	Err  error
}

func (e *RefreshError) Error() string {
	msg := ErrInvalidRefreshToken.Error() + ": " + string(e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RefreshError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrInvalidRefreshToken}
	}
	return []error{ErrInvalidRefreshToken, e.Err}
}

// RefreshKind extracts the rejection kind from err, if any.
func RefreshKind(err error) (RefreshErrorKind, bool) {
	var re *RefreshError
	if errors.As(err, &re) {
		return re.Kind, true
	}
	return "", false
}

func rejected(kind RefreshErrorKind, err error) error {
	return &RefreshError{Kind: kind, Err: err}
}

// FieldError describes one invalid request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every invalid field of a request.  It matches
// ErrValidation.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }
