package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicerooms/internal/core"
	"github.com/dkeye/voicerooms/internal/domain"
)

type connEntry struct {
	ID       core.ConnID
	Identity domain.ConnectionIdentity
	Conn     core.SignalConnection
}

// Registry holds the live connections of one room. Entries are created at
// accept time and never rebuilt from stored state, so they are the source of
// truth for who is connected. Connections are tagged by user id so that a
// user with several tabs can be addressed as one target.
type Registry struct {
	mu     sync.RWMutex
	conns  map[core.ConnID]*connEntry
	byUser map[domain.UserID]map[core.ConnID]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		conns:  make(map[core.ConnID]*connEntry),
		byUser: make(map[domain.UserID]map[core.ConnID]struct{}),
	}
}

func (r *Registry) Bind(id core.ConnID, identity domain.ConnectionIdentity, conn core.SignalConnection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[id] = &connEntry{ID: id, Identity: identity, Conn: conn}
	tag, ok := r.byUser[identity.UserID]
	if !ok {
		tag = make(map[core.ConnID]struct{})
		r.byUser[identity.UserID] = tag
	}
	tag[id] = struct{}{}
	log.Debug().Str("module", "app.registry").Str("conn", string(id)).Str("user", string(identity.UserID)).Msg("bound connection")
}

// Unbind removes the connection and reports whether it was still registered.
func (r *Registry) Unbind(id core.ConnID) (connEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok {
		return connEntry{}, false
	}
	delete(r.conns, id)
	if tag, ok := r.byUser[e.Identity.UserID]; ok {
		delete(tag, id)
		if len(tag) == 0 {
			delete(r.byUser, e.Identity.UserID)
		}
	}
	log.Debug().Str("module", "app.registry").Str("conn", string(id)).Str("user", string(e.Identity.UserID)).Msg("unbound connection")
	return *e, true
}

func (r *Registry) Entry(id core.ConnID) (connEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[id]
	if !ok {
		return connEntry{}, false
	}
	return *e, true
}

// Tagged returns every connection held by the user.
func (r *Registry) Tagged(user domain.UserID) []connEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tag := r.byUser[user]
	out := make([]connEntry, 0, len(tag))
	for id := range tag {
		out = append(out, *r.conns[id])
	}
	return out
}

func (r *Registry) All() []connEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]connEntry, 0, len(r.conns))
	for _, e := range r.conns {
		out = append(out, *e)
	}
	return out
}

func (r *Registry) IsConnected(user domain.UserID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byUser[user]
	return ok
}

// Count is the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// UserCount is the number of distinct connected users.
func (r *Registry) UserCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}
