package auth

import (
	"net/mail"
	"strings"
	"unicode/utf8"
)

// Password length bounds enforced on register and login.
const (
	MinPasswordLen = 8
	MaxPasswordLen = 15
)

// RegisterRequest carries the registration form.
type RegisterRequest struct {
	FirstName      string `json:"firstName"`
	LastName       string `json:"lastName"`
	Email          string `json:"email"`
	Password       string `json:"password"`
	VerifyPassword string `json:"verifyPassword"`
}

// LoginRequest carries the login form.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type fieldChecker struct{ fields []FieldError }

func (c *fieldChecker) add(field, msg string) {
	c.fields = append(c.fields, FieldError{Field: field, Message: msg})
}

func (c *fieldChecker) notBlank(field, v string) bool {
	if strings.TrimSpace(v) == "" {
		c.add(field, "must not be blank")
		return false
	}
	return true
}

func (c *fieldChecker) email(field, v string) {
	if !c.notBlank(field, v) {
		return
	}
	v = strings.TrimSpace(v)
	addr, err := mail.ParseAddress(v)
	if err != nil || addr.Address != v {
		c.add(field, "must be a well-formed email address")
	}
}

func (c *fieldChecker) password(field, v string) {
	if !c.notBlank(field, v) {
		return
	}
	if n := utf8.RuneCountInString(v); n < MinPasswordLen || n > MaxPasswordLen {
		c.add(field, "size must be between 8 and 15")
	}
}

func (c *fieldChecker) err() error {
	if len(c.fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: c.fields}
}

// Validate checks the shape of the form.  Whether both passwords agree is
// left to Register, which reports ErrPasswordMismatch.
func (r RegisterRequest) Validate() error {
	var c fieldChecker
	c.notBlank("firstName", r.FirstName)
	c.notBlank("lastName", r.LastName)
	c.email("email", r.Email)
	c.password("password", r.Password)
	c.password("verifyPassword", r.VerifyPassword)
	return c.err()
}

func (r LoginRequest) Validate() error {
	var c fieldChecker
	c.email("email", r.Email)
	c.password("password", r.Password)
	return c.err()
}

// NormalizeEmail trims and lower-cases an address before any lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
