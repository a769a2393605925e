// Package telemetry updates per-room counters and ships best-effort
// analytics events to pluggable sinks.
package telemetry

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicerooms/internal/domain"
)

type UpdateKind string

const (
	UpdateJoin    UpdateKind = "join"
	UpdateLeave   UpdateKind = "leave"
	UpdateMessage UpdateKind = "message"
	UpdateError   UpdateKind = "error"
)

const (
	EventParticipantJoined = "participant_joined"
	EventParticipantLeft   = "participant_left"
	EventConnectionError   = "connection_error"
	EventRecordingStarted  = "recording_started"
	EventRecordingStopped  = "recording_stopped"
	EventRecordingChunk    = "recording_chunk"
	EventQualityReport     = "quality_report"
	EventRoomDestroyed     = "room_destroyed"
)

// Update applies one metrics change. live is the number of active
// participants after the change and only matters for joins.
func Update(m *domain.RoomMetrics, kind UpdateKind, live int, now time.Time) {
	switch kind {
	case UpdateJoin:
		m.TotalParticipants++
		if live > m.PeakParticipants {
			m.PeakParticipants = live
		}
	case UpdateMessage:
		m.MessagesExchanged++
	case UpdateError:
		m.ConnectionErrors++
	case UpdateLeave:
	}
	m.LastActivity = now
}

// RefreshDuration recomputes the derived session duration.
func RefreshDuration(m *domain.RoomMetrics, createdAt, now time.Time) {
	m.SessionDuration = now.Sub(createdAt).Milliseconds()
}

// Event is one analytics data point.
type Event struct {
	RoomID domain.RoomID
	Name   string
	Values map[string]float64
	Labels map[string]string
	Time   time.Time
}

type Sink interface {
	Write(ctx context.Context, e Event) error
}

// Emitter never propagates sink failures to its caller.
type Emitter struct {
	sink Sink
	now  func() time.Time
}

func NewEmitter(sink Sink) *Emitter {
	return &Emitter{sink: sink, now: time.Now}
}

func (e *Emitter) Emit(ctx context.Context, roomID domain.RoomID, name string, values map[string]float64, labels map[string]string) {
	if e == nil || e.sink == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("module", "telemetry").Str("room", string(roomID)).Str("event", name).Interface("panic", r).Msg("analytics sink panicked")
		}
	}()
	ev := Event{RoomID: roomID, Name: name, Values: values, Labels: labels, Time: e.now()}
	if err := e.sink.Write(ctx, ev); err != nil {
		log.Warn().Err(err).Str("module", "telemetry").Str("room", string(roomID)).Str("event", name).Msg("analytics write failed")
	}
}
