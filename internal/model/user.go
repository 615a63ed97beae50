package model

import (
	"strings"
	"time"
)

// User represents an application user record as stored in the `users`
// table.  Roles are loaded from the `user_roles` join table and Token from
// the `tokens` table; the repository owns both relationships, so a User
// value only carries what was read or what should be written.
//
// Fields:
//
//	ID           – primary key identifier of the user (0 until inserted).
//	FirstName    – given name.
//	LastName     – family name.
//	Email        – unique, normalised (trimmed, lower-case) email address.
//	PasswordHash – bcrypt hashed password, never empty.
//	ProfileImg   – optional profile image URL.
//	Roles        – granted roles, non-empty after registration.
//	Token        – the single refresh token record, nil until first login.
type User struct {
	ID           uint64
	FirstName    string
	LastName     string
	Email        string
	PasswordHash string
	ProfileImg   *string
	Roles        []Role
	Token        *Token
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RoleNames returns the authority names of the user's roles in the order
// they were loaded.
func (u User) RoleNames() []string {
	names := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		names = append(names, string(r.Authority))
	}
	return names
}

// HasRole reports whether the user was granted the given authority.
func (u User) HasRole(authority RoleType) bool {
	for _, r := range u.Roles {
		if r.Authority == authority {
			return true
		}
	}
	return false
}

// RoleType enumerates the fixed set of authorities.
type RoleType string

const (
	RoleUser  RoleType = "USER"
	RoleAdmin RoleType = "ADMIN"
)

// RoleTypes lists every authority seeded into the roles table.
func RoleTypes() []RoleType { return []RoleType{RoleUser, RoleAdmin} }

// ParseRoleType maps a role name (case-insensitive) to its RoleType.
func ParseRoleType(s string) (RoleType, bool) {
	switch RoleType(strings.ToUpper(strings.TrimSpace(s))) {
	case RoleUser:
		return RoleUser, true
	case RoleAdmin:
		return RoleAdmin, true
	}
	return "", false
}

// Role represents a row in the `roles` table.  There is exactly one row per
// RoleType.
type Role struct {
	ID        uint8    // roles.id
	Authority RoleType // roles.authority (unique)
}

// Token models the single refresh token record of a user in the `tokens`
// table.  RefreshToken holds the encoded signed token exactly as it was
// handed to the client; ExpireTime equals the exp claim inside it.
type Token struct {
	ID           uint64    // tokens.id
	UserID       uint64    // tokens.user_id (unique)
	RefreshToken string    // tokens.refresh_token
	ExpireTime   time.Time // tokens.expire_time
	IsValid      bool      // tokens.is_valid
}
