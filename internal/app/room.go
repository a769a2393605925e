package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.uber.org/atomic"

	"github.com/dkeye/voicerooms/internal/core"
	"github.com/dkeye/voicerooms/internal/domain"
	"github.com/dkeye/voicerooms/internal/ice"
	"github.com/dkeye/voicerooms/internal/store"
	"github.com/dkeye/voicerooms/internal/telemetry"
)

type Options struct {
	CleanupDelay           time.Duration
	HibernateAfter         time.Duration
	DefaultMaxParticipants int
	MaxParticipantsLimit   int
	InboxSize              int
	// FrameRate limits inbound frames per user per second; 0 disables.
	FrameRate   int
	PublicWSURL string
}

// Deps are shared by every room of a process.
type Deps struct {
	Store     core.RoomStore
	Cache     core.Cache
	Directory *store.Directory
	Emitter   *telemetry.Emitter
	ICE       *ice.Provider
	Policy    Policy
	Options   Options
	Now       func() time.Time
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

type task struct {
	fn   func() error
	done chan error
}

// Room is the actor of one room. Every operation runs on a single goroutine
// in arrival order, so the snapshot needs no locking. The goroutine exits
// after HibernateAfter of idleness and forgets the snapshot; the registry of
// live connections stays on the handle and survives.
type Room struct {
	id       domain.RoomID
	deps     *Deps
	registry *Registry
	limiter  *RateLimiter
	logger   zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	inbox  chan task

	mu         sync.Mutex
	running    bool
	closed     bool
	done       chan struct{}
	finishOnce sync.Once
	onClose    func(*Room)

	// owned by the actor goroutine
	snapshot *domain.Room

	alarms  atomic.Int32
	pending atomic.Int32
	wakes   atomic.Int32
	// generation of the most recently armed alarm
	cleanupGen atomic.Int64
}

func NewRoom(parent context.Context, id domain.RoomID, deps *Deps) *Room {
	ctx, cancel := context.WithCancel(parent)
	size := deps.Options.InboxSize
	if size <= 0 {
		size = 256
	}
	r := &Room{
		id:       id,
		deps:     deps,
		registry: NewRegistry(),
		logger:   log.With().Str("module", "app.room").Str("room", string(id)).Logger(),
		ctx:      ctx,
		cancel:   cancel,
		inbox:    make(chan task, size),
		done:     make(chan struct{}),
	}
	if deps.Options.FrameRate > 0 {
		r.limiter = NewRateLimiter(deps.Options.FrameRate, time.Second)
	}
	telemetry.RoomStarted()
	return r
}

func (r *Room) ID() domain.RoomID { return r.id }

// Connections is safe to call from any goroutine.
func (r *Room) Connections() int { return r.registry.Count() }

func (r *Room) Users() int { return r.registry.UserCount() }

// Done is closed once the room has been destroyed or stopped.
func (r *Room) Done() <-chan struct{} { return r.done }

// do runs fn on the actor and waits for it.
func (r *Room) do(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	if err := r.enqueue(ctx, task{fn: fn, done: done}); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		// the last task completes before done is closed
		select {
		case err := <-done:
			return err
		default:
			return domain.ErrRoomClosed
		}
	}
}

// post runs fn on the actor without waiting.
func (r *Room) post(fn func() error) error {
	return r.enqueue(r.ctx, task{fn: fn})
}

func (r *Room) enqueue(ctx context.Context, t task) error {
	r.mu.Lock()
	if r.closed || r.ctx.Err() != nil {
		r.mu.Unlock()
		return domain.ErrRoomClosed
	}
	if !r.running {
		r.running = true
		go r.run()
	}
	select {
	case r.inbox <- t:
		r.mu.Unlock()
		return nil
	default:
	}
	r.mu.Unlock()

	// Inbox is full, so the actor is busy and cannot hibernate under us.
	select {
	case r.inbox <- t:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return domain.ErrRoomClosed
	}
}

func (r *Room) run() {
	var idle <-chan time.Time
	var timer *time.Timer
	if d := r.deps.Options.HibernateAfter; d > 0 {
		timer = time.NewTimer(d)
		defer timer.Stop()
		idle = timer.C
	}
	reset := func() {
		if timer == nil {
			return
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(r.deps.Options.HibernateAfter)
	}

	for {
		select {
		case t := <-r.inbox:
			r.handle(t)
			if r.isClosed() {
				r.shutdown()
				return
			}
			reset()
		case <-idle:
			if r.hibernate() {
				return
			}
			reset()
		case <-r.ctx.Done():
			r.shutdown()
			return
		}
	}
}

func (r *Room) handle(t task) {
	var err error
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().Interface("panic", rec).Msg("room task panicked")
			err = fmt.Errorf("room %s: internal error", r.id)
		}
		if t.done != nil {
			t.done <- err
		}
	}()
	if r.snapshot == nil {
		if err = r.rehydrate(); err != nil {
			return
		}
	}
	err = t.fn()
}

// hibernate drops the cached snapshot unless work arrived meanwhile. A room
// with no connection and no pending alarm is evicted altogether; its state
// lives on in the store.
func (r *Room) hibernate() bool {
	r.mu.Lock()
	if len(r.inbox) > 0 {
		r.mu.Unlock()
		return false
	}
	r.running = false
	r.snapshot = nil
	evict := r.registry.Count() == 0 && r.pending.Load() == 0
	if evict {
		r.closed = true
	}
	r.mu.Unlock()

	r.logger.Debug().Int("connections", r.registry.Count()).Bool("evicted", evict).Msg("room hibernating")
	if evict {
		r.drain()
		r.finish()
	}
	return true
}

func (r *Room) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *Room) markClosed() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
}

func (r *Room) shutdown() {
	r.mu.Lock()
	r.closed = true
	r.running = false
	r.mu.Unlock()
	for _, e := range r.registry.All() {
		e.Conn.Close(closeGoingAway, "room closed")
	}
	r.drain()
	r.finish()
}

func (r *Room) drain() {
	for {
		select {
		case t := <-r.inbox:
			if t.done != nil {
				t.done <- domain.ErrRoomClosed
			}
		default:
			return
		}
	}
}

func (r *Room) finish() {
	r.finishOnce.Do(func() {
		close(r.done)
		telemetry.RoomStopped()
		r.logger.Info().Msg("room stopped")
		if r.onClose != nil {
			r.onClose(r)
		}
	})
}

// Stop cancels the actor and closes every live connection.
func (r *Room) Stop() {
	r.cancel()
	r.mu.Lock()
	r.closed = true
	idle := !r.running
	r.mu.Unlock()
	if idle {
		for _, e := range r.registry.All() {
			e.Conn.Close(closeGoingAway, "room closed")
		}
		r.drain()
		r.finish()
	}
}

// rehydrate loads the stored snapshot, or a fresh uninitialized one, and
// reconciles its roster with the live connections.
func (r *Room) rehydrate() error {
	r.wakes.Inc()
	room, err := r.deps.Store.LoadRoom(r.ctx, r.id)
	switch {
	case err == nil:
		r.snapshot = room
	case errors.Is(err, domain.ErrRoomNotFound):
		r.snapshot = r.freshSnapshot()
	default:
		r.logger.Error().Err(err).Msg("failed to load room")
		return fmt.Errorf("load room %s: %w", r.id, err)
	}
	r.logger.Debug().Int("roster", len(r.snapshot.Participants)).Int("connections", r.registry.Count()).Msg("room woke up")
	return r.reconcile()
}

func (r *Room) freshSnapshot() *domain.Room {
	var settings domain.RoomSettings
	if r.deps.ICE != nil {
		settings = domain.DefaultSettings(r.deps.ICE.Settings())
	} else {
		settings = domain.DefaultSettings([]string{}, []domain.TURNServer{})
	}
	return domain.NewRoom(r.id, r.deps.Options.DefaultMaxParticipants, settings, r.deps.now())
}

func (r *Room) persist() error {
	if err := r.deps.Store.StoreRoom(r.ctx, r.snapshot); err != nil {
		r.logger.Error().Err(err).Msg("failed to persist room")
		return fmt.Errorf("persist room %s: %w", r.id, err)
	}
	return nil
}

// syncDirectory mirrors the live roster into the external room directory.
func (r *Room) syncDirectory() {
	if r.deps.Directory == nil {
		return
	}
	active := r.activeParticipants()
	ids := make([]domain.UserID, 0, len(active))
	for _, p := range active {
		ids = append(ids, p.ID)
	}
	err := r.deps.Directory.Put(r.ctx, store.RoomSummary{
		ID:               r.id,
		Type:             r.snapshot.Type,
		MaxParticipants:  r.snapshot.MaxParticipants,
		ParticipantCount: len(active),
		Participants:     ids,
		UpdatedAt:        r.deps.now(),
	})
	if err != nil {
		r.logger.Warn().Err(err).Msg("room directory sync failed")
	}
}

func (r *Room) emit(name string, values map[string]float64, labels map[string]string) {
	r.deps.Emitter.Emit(r.ctx, r.id, name, values, labels)
}

// armCleanup schedules an emptiness check. Alarms are never cancelled; a
// room that is busy again when one fires simply ignores it, and only the
// most recently armed alarm may purge.
func (r *Room) armCleanup() {
	n := r.alarms.Inc()
	gen := r.cleanupGen.Inc()
	r.pending.Inc()
	delay := r.deps.Options.CleanupDelay
	r.logger.Info().Dur("delay", delay).Int32("armed", n).Msg("cleanup alarm armed")
	time.AfterFunc(delay, func() {
		if err := r.post(func() error { return r.onAlarm(gen) }); err != nil {
			r.pending.Dec()
			r.logger.Debug().Err(err).Msg("cleanup alarm dropped")
		}
	})
}

func (r *Room) onAlarm(gen int64) error {
	r.pending.Dec()
	if latest := r.cleanupGen.Load(); gen != latest {
		r.logger.Debug().Int64("alarm", gen).Int64("latest", latest).Msg("superseded cleanup alarm skipped")
		return nil
	}
	if n := r.registry.Count(); n > 0 {
		r.logger.Info().Int("connections", n).Msg("room active again, cleanup skipped")
		return nil
	}
	return r.destroy()
}

func (r *Room) destroy() error {
	if err := r.deps.Store.DeleteRoom(r.ctx, r.id); err != nil {
		r.logger.Error().Err(err).Msg("failed to purge room")
		return err
	}
	if r.deps.Directory != nil {
		if err := r.deps.Directory.Remove(r.ctx, r.id); err != nil {
			r.logger.Warn().Err(err).Msg("room directory removal failed")
		}
	}
	r.emit(telemetry.EventRoomDestroyed, map[string]float64{
		"totalParticipants": float64(r.snapshot.Metrics.TotalParticipants),
		"peakParticipants":  float64(r.snapshot.Metrics.PeakParticipants),
		"messagesExchanged": float64(r.snapshot.Metrics.MessagesExchanged),
	}, nil)
	r.snapshot = nil
	r.markClosed()
	r.logger.Info().Msg("room destroyed")
	return nil
}
