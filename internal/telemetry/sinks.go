package telemetry

import (
	"context"
	"errors"

	"github.com/gammazero/workerpool"
	"github.com/rs/zerolog/log"
	"go.uber.org/atomic"
)

// LogSink writes each event as a debug line.
type LogSink struct{}

func (LogSink) Write(_ context.Context, e Event) error {
	ev := log.Debug().Str("module", "telemetry").Str("room", string(e.RoomID)).Str("event", e.Name)
	for k, v := range e.Values {
		ev = ev.Float64(k, v)
	}
	for k, v := range e.Labels {
		ev = ev.Str(k, v)
	}
	ev.Msg("analytics event")
	return nil
}

// MultiSink writes to every sink and joins their errors.
type MultiSink []Sink

func (m MultiSink) Write(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// AsyncSink hands writes to a worker pool so a slow analytics backend never
// holds up a room.
type AsyncSink struct {
	next    Sink
	pool    *workerpool.WorkerPool
	stopped atomic.Bool
}

func NewAsyncSink(next Sink, workers int) *AsyncSink {
	if workers <= 0 {
		workers = 1
	}
	return &AsyncSink{next: next, pool: workerpool.New(workers)}
}

func (s *AsyncSink) Write(_ context.Context, e Event) error {
	if s.stopped.Load() {
		return errors.New("analytics sink stopped")
	}
	s.pool.Submit(func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Str("module", "telemetry").Str("event", e.Name).Interface("panic", r).Msg("async sink panicked")
			}
		}()
		if err := s.next.Write(context.Background(), e); err != nil {
			log.Warn().Err(err).Str("module", "telemetry").Str("room", string(e.RoomID)).Str("event", e.Name).Msg("async analytics write failed")
		}
	})
	return nil
}

// Stop drains queued writes.
func (s *AsyncSink) Stop() {
	if s.stopped.CompareAndSwap(false, true) {
		s.pool.StopWait()
	}
}
