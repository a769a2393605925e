package telemetry

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/voicerooms/internal/domain"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	err    error
	panics bool
}

func (s *recordingSink) Write(_ context.Context, e Event) error {
	if s.panics {
		panic("sink exploded")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return s.err
}

func (s *recordingSink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func TestUpdate(t *testing.T) {
	var m domain.RoomMetrics
	t0 := time.Unix(1700000000, 0)

	Update(&m, UpdateJoin, 1, t0)
	Update(&m, UpdateJoin, 2, t0)
	Update(&m, UpdateLeave, 0, t0)
	Update(&m, UpdateJoin, 2, t0)
	Update(&m, UpdateMessage, 0, t0)
	Update(&m, UpdateError, 0, t0.Add(time.Second))

	require.Equal(t, 3, m.TotalParticipants)
	require.Equal(t, 2, m.PeakParticipants)
	require.Equal(t, 1, m.MessagesExchanged)
	require.Equal(t, 1, m.ConnectionErrors)
	require.Equal(t, t0.Add(time.Second), m.LastActivity)

	// peak never goes down
	Update(&m, UpdateJoin, 1, t0)
	require.Equal(t, 2, m.PeakParticipants)

	RefreshDuration(&m, t0, t0.Add(90*time.Second))
	require.Equal(t, int64(90000), m.SessionDuration)
}

func TestEmitterSwallowsFailures(t *testing.T) {
	sink := &recordingSink{err: errors.New("backend down")}
	e := NewEmitter(sink)
	require.NotPanics(t, func() {
		e.Emit(context.Background(), "r1", EventParticipantJoined, map[string]float64{"participants": 1}, nil)
	})
	require.Len(t, sink.Events(), 1)

	require.NotPanics(t, func() {
		NewEmitter(&recordingSink{panics: true}).Emit(context.Background(), "r1", EventParticipantLeft, nil, nil)
	})

	var nilEmitter *Emitter
	require.NotPanics(t, func() {
		nilEmitter.Emit(context.Background(), "r1", EventParticipantLeft, nil, nil)
	})
}

func TestMultiSinkJoinsErrors(t *testing.T) {
	ok := &recordingSink{}
	bad := &recordingSink{err: errors.New("boom")}
	err := MultiSink{bad, ok}.Write(context.Background(), Event{Name: "x"})
	require.ErrorContains(t, err, "boom")
	require.Len(t, ok.Events(), 1)
}

func TestAsyncSink(t *testing.T) {
	next := &recordingSink{}
	s := NewAsyncSink(next, 2)
	for i := 0; i < 10; i++ {
		require.NoError(t, s.Write(context.Background(), Event{Name: EventQualityReport}))
	}
	s.Stop()
	require.Len(t, next.Events(), 10)

	require.Error(t, s.Write(context.Background(), Event{Name: EventQualityReport}))
	s.Stop()
}

func TestPrometheusSink(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Write(ctx, Event{RoomID: "r1", Name: EventParticipantJoined, Values: map[string]float64{"participants": 2}}))
	require.NoError(t, s.Write(ctx, Event{RoomID: "r1", Name: EventQualityReport, Values: map[string]float64{
		"rtt": 120, "jitter": 10, "audioPacketLoss": 1, "videoPacketLoss": 7, "qualityScore": 75,
	}}))

	require.Equal(t, 1.0, testutil.ToFloat64(s.events.WithLabelValues(EventParticipantJoined)))
	require.Equal(t, 2.0, testutil.ToFloat64(s.participants.WithLabelValues("r1")))
	require.Equal(t, 1, testutil.CollectAndCount(s.rtt))
	require.Equal(t, 2, testutil.CollectAndCount(s.packetLoss))

	require.NoError(t, s.Write(ctx, Event{RoomID: "r1", Name: EventRoomDestroyed}))
	require.Equal(t, 0, testutil.CollectAndCount(s.participants))

	require.Equal(t, 1.0, testutil.ToFloat64(s.events.WithLabelValues(EventRoomDestroyed)))
	require.Equal(t, 1.0, testutil.ToFloat64(s.events.WithLabelValues(EventQualityReport)))

	expected := `
# HELP voicerooms_room_events_total Room analytics events by name.
# TYPE voicerooms_room_events_total counter
voicerooms_room_events_total{event="participant_joined"} 1
voicerooms_room_events_total{event="quality_report"} 1
voicerooms_room_events_total{event="room_destroyed"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "voicerooms_room_events_total"))

	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}
