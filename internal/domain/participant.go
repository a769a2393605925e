package domain

import "time"

type ConnectionQuality string

const (
	QualityExcellent ConnectionQuality = "excellent"
	QualityGood      ConnectionQuality = "good"
	QualityFair      ConnectionQuality = "fair"
	QualityPoor      ConnectionQuality = "poor"
)

func (q ConnectionQuality) Valid() bool {
	switch q {
	case QualityExcellent, QualityGood, QualityFair, QualityPoor:
		return true
	}
	return false
}

// Score maps a quality grade onto 0..100 for analytics.
func (q ConnectionQuality) Score() float64 {
	switch q {
	case QualityExcellent:
		return 100
	case QualityGood:
		return 75
	case QualityFair:
		return 50
	case QualityPoor:
		return 25
	default:
		return 0
	}
}

// Degraded reports whether other participants should be alerted.
func (q ConnectionQuality) Degraded() bool {
	return q == QualityPoor || q == QualityFair
}

// Participant is one roster entry. It is created on the first accepted
// connection of a user and removed when the user disconnects.
type Participant struct {
	ID                UserID             `json:"id"`
	Name              string             `json:"name"`
	JoinedAt          time.Time          `json:"joinedAt"`
	AudioEnabled      bool               `json:"audioEnabled"`
	VideoEnabled      bool               `json:"videoEnabled"`
	IsScreenSharing   bool               `json:"isScreenSharing"`
	ConnectionQuality *ConnectionQuality `json:"connectionQuality,omitempty"`
	LastQualityUpdate *time.Time         `json:"lastQualityUpdate,omitempty"`
}

// NewParticipant builds the roster entry for a freshly accepted connection.
func NewParticipant(id ConnectionIdentity, roomType RoomType, autoMute bool) Participant {
	return Participant{
		ID:           id.UserID,
		Name:         id.UserName,
		JoinedAt:     id.JoinedAt,
		AudioEnabled: !autoMute,
		VideoEnabled: roomType == RoomTypeVideo,
	}
}

func (p *Participant) SetQuality(q ConnectionQuality, at time.Time) {
	p.ConnectionQuality = &q
	p.LastQualityUpdate = &at
}

func (p Participant) Clone() Participant {
	out := p
	if p.ConnectionQuality != nil {
		q := *p.ConnectionQuality
		out.ConnectionQuality = &q
	}
	if p.LastQualityUpdate != nil {
		t := *p.LastQualityUpdate
		out.LastQualityUpdate = &t
	}
	return out
}
