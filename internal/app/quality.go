package app

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dkeye/voicerooms/internal/domain"
	"github.com/dkeye/voicerooms/internal/telemetry"
)

const QualityTTL = time.Hour

// Alert thresholds.
const (
	MaxPacketLossPct = 5
	MaxRTTMillis     = 300
	MaxJitterMillis  = 50
)

func QualityKey(room domain.RoomID, user domain.UserID, ts int64) string {
	return fmt.Sprintf("quality:%s:%s:%d", room, user, ts)
}

type StreamStats struct {
	PacketLoss float64 `json:"packetLoss"`
	Bitrate    float64 `json:"bitrate,omitempty"`
}

// QualityData is the client-side connection report. Loss is in percent,
// RTT and jitter in milliseconds.
type QualityData struct {
	Overall domain.ConnectionQuality `json:"overall"`
	Audio   StreamStats              `json:"audio"`
	Video   StreamStats              `json:"video"`
	RTT     float64                  `json:"rtt"`
	Jitter  float64                  `json:"jitter"`
}

func (q QualityData) Issues() []string {
	issues := []string{}
	if q.Audio.PacketLoss > MaxPacketLossPct {
		issues = append(issues, "high audio packet loss")
	}
	if q.Video.PacketLoss > MaxPacketLossPct {
		issues = append(issues, "high video packet loss")
	}
	if q.RTT > MaxRTTMillis {
		issues = append(issues, "high latency")
	}
	if q.Jitter > MaxJitterMillis {
		issues = append(issues, "high jitter")
	}
	return issues
}

type qualityRecord struct {
	RoomID      domain.RoomID `json:"roomId"`
	UserID      domain.UserID `json:"userId"`
	QualityData QualityData   `json:"qualityData"`
	Timestamp   int64         `json:"timestamp"`
}

type qualityAlertData struct {
	UserID    domain.UserID            `json:"userId"`
	Quality   domain.ConnectionQuality `json:"quality"`
	Issues    []string                 `json:"issues"`
	Timestamp int64                    `json:"timestamp"`
}

func (r *Room) qualityReport(e connEntry, m qualityReportMessage) {
	user := e.Identity.UserID
	now := r.deps.now()
	ts := m.Timestamp
	if ts == 0 {
		ts = now.UnixMilli()
	}
	q := m.QualityData

	if data, err := json.Marshal(qualityRecord{RoomID: r.id, UserID: user, QualityData: q, Timestamp: ts}); err == nil {
		if err := r.deps.Cache.Set(r.ctx, QualityKey(r.id, user, ts), data, QualityTTL); err != nil {
			r.logger.Warn().Err(err).Str("user", string(user)).Msg("failed to store quality report")
		}
	}

	r.emit(telemetry.EventQualityReport, map[string]float64{
		"rtt":             q.RTT,
		"jitter":          q.Jitter,
		"audioPacketLoss": q.Audio.PacketLoss,
		"videoPacketLoss": q.Video.PacketLoss,
		"qualityScore":    q.Overall.Score(),
		"participants":    float64(len(r.activeParticipants())),
	}, map[string]string{"user": string(user), "quality": string(q.Overall)})

	if q.Overall.Degraded() {
		r.broadcast(outFrame{Type: TypeQualityAlert, Data: qualityAlertData{
			UserID:    user,
			Quality:   q.Overall,
			Issues:    q.Issues(),
			Timestamp: ts,
		}}, user)
	}

	if p, ok := r.snapshot.Participant(user); ok && q.Overall != "" {
		p.SetQuality(q.Overall, now)
	}
}
