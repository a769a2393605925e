package domain

import "time"

// RoomMetrics counters only ever grow. SessionDuration is derived and
// refreshed whenever metrics are read.
type RoomMetrics struct {
	TotalParticipants int       `json:"totalParticipants"`
	PeakParticipants  int       `json:"peakParticipants"`
	MessagesExchanged int       `json:"messagesExchanged"`
	ConnectionErrors  int       `json:"connectionErrors"`
	LastActivity      time.Time `json:"lastActivity"`
	// SessionDuration is in milliseconds.
	SessionDuration int64 `json:"sessionDuration"`
}
