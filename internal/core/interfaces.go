package core

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/voicerooms/internal/domain"
)

// Frame is one encoded text frame.
type Frame []byte

// ConnID identifies a live connection within a room.
type ConnID string

var ErrBackpressure = errors.New("backpressure")

// SignalConnection abstracts a messaging transport.
// Owned by the adapter; the room only sends to it and may ask it to close.
type SignalConnection interface {
	// TrySend queues f without blocking.
	TrySend(f Frame) error
	// Close ends the connection with a WebSocket close code.
	Close(code int, reason string)
}

// PublishResult reports delivery stats/backpressure to the room.
type PublishResult struct {
	SendTo  int
	Dropped []ConnID
}

// RoomStore keeps one durable snapshot per room.
type RoomStore interface {
	// LoadRoom returns domain.ErrRoomNotFound when nothing is stored.
	LoadRoom(ctx context.Context, id domain.RoomID) (*domain.Room, error)
	StoreRoom(ctx context.Context, room *domain.Room) error
	DeleteRoom(ctx context.Context, id domain.RoomID) error
}

// Cache is the external short-lived key/value store used for the room
// directory, recording metadata and quality reports.
type Cache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// ErrCacheMiss is returned by Cache.Get for an absent or expired key.
var ErrCacheMiss = errors.New("cache miss")
