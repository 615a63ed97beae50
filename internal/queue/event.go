// Package queue defines message payloads exchanged over the message broker.
package queue

import (
	"time"

	"github.com/google/uuid"
)

// EventType names an auth lifecycle event.
type EventType string

const (
	UserRegistered       EventType = "user.registered"
	UserAuthenticated    EventType = "user.authenticated"
	RefreshTokenRejected EventType = "refresh_token.rejected"
	RefreshTokenRevoked  EventType = "refresh_token.revoked"
)

// AuthEvent is published after a credential lifecycle step.  It carries enough
// context for the audit consumer to write a log line without querying the
// primary database.  Reason is only set on rejections and holds the internal
// failure kind, never anything sent back to the client.
type AuthEvent struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	UserID     uint64    `json:"user_id,omitempty"`
	Email      string    `json:"email,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewAuthEvent stamps a new event with a random id.
func NewAuthEvent(typ EventType, userID uint64, email string, at time.Time) AuthEvent {
	return AuthEvent{
		ID:         uuid.NewString(),
		Type:       typ,
		UserID:     userID,
		Email:      email,
		OccurredAt: at.UTC(),
	}
}
