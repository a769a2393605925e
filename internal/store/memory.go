// Package store holds the durable room snapshot store and the external
// key/value cache, each with an in-process and a Redis implementation.
package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/dkeye/voicerooms/internal/core"
	"github.com/dkeye/voicerooms/internal/domain"
)

// MemoryRoomStore keeps encoded snapshots so that a loaded room never aliases
// the one that was stored.
type MemoryRoomStore struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID][]byte
}

func NewMemoryRoomStore() *MemoryRoomStore {
	return &MemoryRoomStore{rooms: make(map[domain.RoomID][]byte)}
}

func (s *MemoryRoomStore) LoadRoom(_ context.Context, id domain.RoomID) (*domain.Room, error) {
	s.mu.RLock()
	data, ok := s.rooms[id]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return decodeRoom(data)
}

func (s *MemoryRoomStore) StoreRoom(_ context.Context, room *domain.Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.rooms[room.ID] = data
	s.mu.Unlock()
	return nil
}

func (s *MemoryRoomStore) DeleteRoom(_ context.Context, id domain.RoomID) error {
	s.mu.Lock()
	delete(s.rooms, id)
	s.mu.Unlock()
	return nil
}

type cacheItem struct {
	value    []byte
	expireAt time.Time
}

// sweepInterval bounds how often Set scans for expired keys.
const sweepInterval = time.Minute

// MemoryCache is a TTL map. Expired keys are dropped on read and by a sweep
// that Set runs at most once per sweepInterval, so write-only keys do not
// pile up.
type MemoryCache struct {
	mu        sync.Mutex
	items     map[string]cacheItem
	now       func() time.Time
	lastSweep time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{items: make(map[string]cacheItem), now: time.Now}
}

func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	now := c.now()
	item := cacheItem{value: append([]byte(nil), value...)}
	if ttl > 0 {
		item.expireAt = now.Add(ttl)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if now.Sub(c.lastSweep) >= sweepInterval {
		c.sweep(now)
	}
	c.items[key] = item
	return nil
}

func (c *MemoryCache) sweep(now time.Time) {
	for k, item := range c.items {
		if item.expired(now) {
			delete(c.items, k)
		}
	}
	c.lastSweep = now
}

func (i cacheItem) expired(now time.Time) bool {
	return !i.expireAt.IsZero() && !now.Before(i.expireAt)
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.items[key]
	if !ok {
		return nil, core.ErrCacheMiss
	}
	if item.expired(c.now()) {
		delete(c.items, key)
		return nil, core.ErrCacheMiss
	}
	return append([]byte(nil), item.value...), nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
	return nil
}

func decodeRoom(data []byte) (*domain.Room, error) {
	room := domain.Room{}
	if err := json.Unmarshal(data, &room); err != nil {
		return nil, err
	}
	if room.Metadata == nil {
		room.Metadata = map[string]any{}
	}
	if room.Participants == nil {
		room.Participants = []domain.Participant{}
	}
	return &room, nil
}
