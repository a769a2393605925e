package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dkeye/voicerooms/internal/core"
	"github.com/dkeye/voicerooms/internal/domain"
)

const (
	directoryPrefix = "room:"
	directoryTTL    = 24 * time.Hour
)

// RoomSummary is the discovery record other services read from the cache.
type RoomSummary struct {
	ID               domain.RoomID   `json:"id"`
	Type             domain.RoomType `json:"type"`
	MaxParticipants  int             `json:"maxParticipants"`
	ParticipantCount int             `json:"participantCount"`
	Participants     []domain.UserID `json:"participants"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// Directory mirrors live room state into the external cache. It is a
// discovery aid only; callers log and ignore its errors.
type Directory struct {
	cache core.Cache
}

func NewDirectory(cache core.Cache) *Directory {
	return &Directory{cache: cache}
}

func DirectoryKey(id domain.RoomID) string {
	return directoryPrefix + string(id)
}

func (d *Directory) Put(ctx context.Context, s RoomSummary) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return d.cache.Set(ctx, DirectoryKey(s.ID), data, directoryTTL)
}

func (d *Directory) Get(ctx context.Context, id domain.RoomID) (RoomSummary, error) {
	var s RoomSummary
	data, err := d.cache.Get(ctx, DirectoryKey(id))
	if err != nil {
		return s, err
	}
	err = json.Unmarshal(data, &s)
	return s, err
}

func (d *Directory) Remove(ctx context.Context, id domain.RoomID) error {
	return d.cache.Delete(ctx, DirectoryKey(id))
}
