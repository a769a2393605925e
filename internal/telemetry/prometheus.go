package telemetry

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
)

const namespace = "voicerooms"

var (
	liveRooms       atomic.Int32
	liveConnections atomic.Int32
)

func RoomStarted()           { liveRooms.Inc() }
func RoomStopped()           { liveRooms.Dec() }
func ConnectionOpened()      { liveConnections.Inc() }
func ConnectionClosed()      { liveConnections.Dec() }
func LiveRooms() int32       { return liveRooms.Load() }
func LiveConnections() int32 { return liveConnections.Load() }

// PrometheusSink turns analytics events into Prometheus series.
type PrometheusSink struct {
	events       *prometheus.CounterVec
	participants *prometheus.GaugeVec
	rtt          prometheus.Histogram
	jitter       prometheus.Histogram
	packetLoss   *prometheus.HistogramVec
	score        prometheus.Histogram
}

func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	s := &PrometheusSink{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "room",
			Name:      "events_total",
			Help:      "Room analytics events by name.",
		}, []string{"event"}),
		participants: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "room",
			Name:      "participants",
			Help:      "Active participants per room.",
		}, []string{"room"}),
		rtt: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "quality",
			Name:      "rtt_ms",
			Help:      "Client reported round trip time in milliseconds.",
			Buckets:   []float64{25, 50, 100, 150, 200, 300, 500, 1000},
		}),
		jitter: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "quality",
			Name:      "jitter_ms",
			Help:      "Client reported jitter in milliseconds.",
			Buckets:   []float64{5, 10, 20, 30, 50, 100, 200},
		}),
		packetLoss: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "quality",
			Name:      "packet_loss_pct",
			Help:      "Client reported packet loss in percent.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 50},
		}, []string{"kind"}),
		score: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "quality",
			Name:      "score",
			Help:      "Client reported connection quality score.",
			Buckets:   []float64{25, 50, 75, 100},
		}),
	}
	roomsGauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "rooms_live",
		Help:      "Room actors held by this process.",
	}, func() float64 { return float64(liveRooms.Load()) })
	connsGauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "connections_live",
		Help:      "Open WebSocket connections.",
	}, func() float64 { return float64(liveConnections.Load()) })

	for _, c := range []prometheus.Collector{s.events, s.participants, s.rtt, s.jitter, s.packetLoss, s.score, roomsGauge, connsGauge} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *PrometheusSink) Write(_ context.Context, e Event) error {
	s.events.WithLabelValues(e.Name).Inc()

	room := string(e.RoomID)
	if e.Name == EventRoomDestroyed {
		s.participants.DeleteLabelValues(room)
		return nil
	}
	if v, ok := e.Values["participants"]; ok {
		s.participants.WithLabelValues(room).Set(v)
	}
	if e.Name == EventQualityReport {
		if v, ok := e.Values["rtt"]; ok {
			s.rtt.Observe(v)
		}
		if v, ok := e.Values["jitter"]; ok {
			s.jitter.Observe(v)
		}
		if v, ok := e.Values["audioPacketLoss"]; ok {
			s.packetLoss.WithLabelValues("audio").Observe(v)
		}
		if v, ok := e.Values["videoPacketLoss"]; ok {
			s.packetLoss.WithLabelValues("video").Observe(v)
		}
		if v, ok := e.Values["qualityScore"]; ok {
			s.score.Observe(v)
		}
	}
	return nil
}
