package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUserIDRequired  = &ValidationError{Field: "userId", Reason: "is required"}
	ErrUserIDTooLong   = &ValidationError{Field: "userId", Reason: "too long"}
	ErrUsernameTooLong = &ValidationError{Field: "userName", Reason: "too long"}

	// ErrRoomFull is returned when a join or upgrade would exceed maxParticipants.
	ErrRoomFull = errors.New("Room is full")
	// ErrRoomNotFound means the room was never initialized or has been purged.
	ErrRoomNotFound = errors.New("room not found")
	// ErrRoomClosed is returned by a room actor that has been destroyed.
	ErrRoomClosed = errors.New("room closed")
)

// ValidationError reports a malformed request or frame. It is answered with
// HTTP 400 or a WebSocket error frame.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// ProtocolError marks an inbound frame the relay does not understand.
type ProtocolError struct {
	Type string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("unknown message type %q", e.Type)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
