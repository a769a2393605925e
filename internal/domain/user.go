// Package domain contains room entities and the small amount of logic that
// keeps them consistent. No transport or storage code lives here.
package domain

import (
	"strings"
	"time"
)

const (
	MaxUserIDLen   = 128
	MaxUsernameLen = 64
)

type UserID string

// ConnectionIdentity is attached to a live connection when it is accepted and
// never changes afterwards. It is the only record of who holds a socket.
type ConnectionIdentity struct {
	UserID   UserID    `json:"userId"`
	UserName string    `json:"userName"`
	JoinedAt time.Time `json:"joinedAt"`
}

// NewConnectionIdentity validates the identity handed over by the upstream
// authenticator. An empty name falls back to the user id.
func NewConnectionIdentity(userID, userName string, now time.Time) (ConnectionIdentity, error) {
	id := strings.TrimSpace(userID)
	if id == "" {
		return ConnectionIdentity{}, ErrUserIDRequired
	}
	if len(id) > MaxUserIDLen {
		return ConnectionIdentity{}, ErrUserIDTooLong
	}
	name := strings.TrimSpace(userName)
	if name == "" {
		name = id
	}
	if len(name) > MaxUsernameLen {
		return ConnectionIdentity{}, ErrUsernameTooLong
	}
	return ConnectionIdentity{UserID: UserID(id), UserName: name, JoinedAt: now}, nil
}
