package app

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicerooms/internal/config"
	"github.com/dkeye/voicerooms/internal/domain"
)

type RoomInfo struct {
	ID          domain.RoomID `json:"id"`
	Connections int           `json:"connections"`
	Users       int           `json:"users"`
}

// RoomManager owns the room actors of this process.
type RoomManager struct {
	ctx  context.Context
	deps *Deps

	mu    sync.RWMutex
	rooms map[domain.RoomID]*Room
}

func NewRoomManager(ctx context.Context, deps *Deps) *RoomManager {
	return &RoomManager{ctx: ctx, deps: deps, rooms: make(map[domain.RoomID]*Room)}
}

func (m *RoomManager) GetOrCreate(id domain.RoomID) *Room {
	m.mu.RLock()
	room, ok := m.rooms[id]
	m.mu.RUnlock()
	if ok && !room.isClosed() {
		return room
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	// a closed handle may linger until its finish removes it
	if room, ok = m.rooms[id]; ok && !room.isClosed() {
		return room
	}
	room = NewRoom(m.ctx, id, m.deps)
	room.onClose = m.remove
	m.rooms[id] = room
	log.Debug().Str("module", "app.rooms").Str("room", string(id)).Msg("room created")
	return room
}

// With runs fn against the live actor of id. A room destroyed between lookup
// and call is replaced by a fresh actor once.
func (m *RoomManager) With(id domain.RoomID, fn func(*Room) error) error {
	err := fn(m.GetOrCreate(id))
	if errors.Is(err, domain.ErrRoomClosed) {
		if m.ctx.Err() != nil {
			return err
		}
		return fn(m.GetOrCreate(id))
	}
	return err
}

// ICEServers is the same for every room and needs no actor.
func (m *RoomManager) ICEServers() ICEResult {
	return iceResult(m.deps.ICE)
}

func (m *RoomManager) Get(id domain.RoomID) (*Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[id]
	return room, ok
}

func (m *RoomManager) List() []RoomInfo {
	m.mu.RLock()
	out := make([]RoomInfo, 0, len(m.rooms))
	for id, r := range m.rooms {
		out = append(out, RoomInfo{ID: id, Connections: r.Connections(), Users: r.Users()})
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// remove forgets room once its actor has finished.
func (m *RoomManager) remove(room *Room) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.rooms[room.id]; ok && cur == room {
		delete(m.rooms, room.id)
		log.Debug().Str("module", "app.rooms").Str("room", string(room.id)).Msg("room removed")
	}
}

// Shutdown stops every room and waits for them or for ctx.
func (m *RoomManager) Shutdown(ctx context.Context) error {
	m.mu.RLock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mu.RUnlock()

	for _, r := range rooms {
		r.Stop()
	}
	for _, r := range rooms {
		select {
		case <-r.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	log.Info().Str("module", "app.rooms").Int("rooms", len(rooms)).Msg("all rooms stopped")
	return nil
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		CleanupDelay:           cfg.Room.CleanupDelay,
		HibernateAfter:         cfg.Room.HibernateAfter,
		DefaultMaxParticipants: cfg.Room.DefaultMaxParticipants,
		MaxParticipantsLimit:   cfg.Room.MaxParticipantsLimit,
		InboxSize:              cfg.Room.InboxSize,
		FrameRate:              cfg.FrameRate,
		PublicWSURL:            cfg.PublicWSURL,
	}
}
