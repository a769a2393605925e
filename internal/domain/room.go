package domain

import (
	"time"
)

type (
	RoomID   string
	RoomType string
)

const (
	RoomTypeAudio RoomType = "audio"
	RoomTypeVideo RoomType = "video"
)

func (t RoomType) Valid() bool {
	return t == RoomTypeAudio || t == RoomTypeVideo
}

// Room is the persisted snapshot of one room. Participants is the stored
// roster and may list users whose sockets are already gone until presence is
// reconciled.
type Room struct {
	ID              RoomID         `json:"id"`
	Type            RoomType       `json:"type"`
	MaxParticipants int            `json:"maxParticipants"`
	CreatedAt       time.Time      `json:"createdAt"`
	Settings        RoomSettings   `json:"settings"`
	Metrics         RoomMetrics    `json:"metrics"`
	Metadata        map[string]any `json:"metadata"`
	Participants    []Participant  `json:"participants"`
	Initialized     bool           `json:"initialized"`
}

func NewRoom(id RoomID, maxParticipants int, settings RoomSettings, now time.Time) *Room {
	return &Room{
		ID:              id,
		Type:            RoomTypeVideo,
		MaxParticipants: maxParticipants,
		CreatedAt:       now,
		Settings:        settings,
		Metrics:         RoomMetrics{LastActivity: now},
		Metadata:        map[string]any{},
		Participants:    []Participant{},
	}
}

// Participant returns a pointer into the roster so callers can update the
// entry in place.
func (r *Room) Participant(id UserID) (*Participant, bool) {
	for i := range r.Participants {
		if r.Participants[i].ID == id {
			return &r.Participants[i], true
		}
	}
	return nil, false
}

func (r *Room) HasParticipant(id UserID) bool {
	_, ok := r.Participant(id)
	return ok
}

// AddParticipant appends p unless a participant with the same id is listed.
func (r *Room) AddParticipant(p Participant) bool {
	if r.HasParticipant(p.ID) {
		return false
	}
	r.Participants = append(r.Participants, p)
	return true
}

func (r *Room) RemoveParticipant(id UserID) bool {
	for i := range r.Participants {
		if r.Participants[i].ID == id {
			r.Participants = append(r.Participants[:i], r.Participants[i+1:]...)
			return true
		}
	}
	return false
}

// MergeMetadata shallow-merges patch into the room metadata.
func (r *Room) MergeMetadata(patch map[string]any) {
	if r.Metadata == nil {
		r.Metadata = make(map[string]any, len(patch))
	}
	for k, v := range patch {
		r.Metadata[k] = v
	}
}

// Clone returns a copy that shares nothing mutable with r. Metadata values
// are copied one level deep.
func (r *Room) Clone() *Room {
	out := *r
	out.Participants = make([]Participant, len(r.Participants))
	for i, p := range r.Participants {
		out.Participants[i] = p.Clone()
	}
	out.Metadata = make(map[string]any, len(r.Metadata))
	for k, v := range r.Metadata {
		out.Metadata[k] = v
	}
	out.Settings = r.Settings.Clone()
	return &out
}

const MaxRoomIDLen = 128

// ValidateRoomID accepts ids made of letters, digits, '-', '_' and '.'.
func ValidateRoomID(id string) (RoomID, error) {
	if id == "" {
		return "", NewValidationError("roomId", "is required")
	}
	if len(id) > MaxRoomIDLen {
		return "", NewValidationError("roomId", "too long")
	}
	for _, c := range id {
		ok := c == '-' || c == '_' || c == '.' ||
			(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
		if !ok {
			return "", NewValidationError("roomId", "contains invalid characters")
		}
	}
	return RoomID(id), nil
}
