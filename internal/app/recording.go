package app

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dkeye/voicerooms/internal/domain"
	"github.com/dkeye/voicerooms/internal/telemetry"
)

// RecordingTTL is how long chunk metadata stays in the cache. The payload
// itself lives in external object storage.
const RecordingTTL = 30 * 24 * time.Hour

func RecordingKey(room domain.RoomID, filename string) string {
	return fmt.Sprintf("recording:%s:%s", room, filename)
}

// RecordingChunk is the metadata record written for every uploaded chunk.
type RecordingChunk struct {
	RoomID       domain.RoomID        `json:"roomId"`
	UserID       domain.UserID        `json:"userId"`
	Filename     string               `json:"filename"`
	Size         int64                `json:"size"`
	Duration     float64              `json:"duration"`
	Timestamp    int64                `json:"timestamp"`
	Participants []domain.Participant `json:"participants"`
}

type recordingStartedData struct {
	InitiatedBy domain.UserID            `json:"initiatedBy"`
	Timestamp   int64                    `json:"timestamp"`
	Settings    domain.RecordingSettings `json:"settings"`
}

type recordingStoppedData struct {
	StoppedBy domain.UserID `json:"stoppedBy"`
	Timestamp int64         `json:"timestamp"`
}

type recordingChunkSavedData struct {
	UserID    domain.UserID `json:"userId"`
	Filename  string        `json:"filename"`
	Size      int64         `json:"size"`
	Duration  float64       `json:"duration"`
	Timestamp int64         `json:"timestamp"`
}

func (r *Room) startRecording(e connEntry) {
	if !r.snapshot.Settings.RecordingAllowed() {
		r.sendTo(e, errorFrame("recording not allowed"))
		return
	}
	ts := r.deps.now().UnixMilli()
	r.broadcast(outFrame{Type: TypeRecordingStarted, Data: recordingStartedData{
		InitiatedBy: e.Identity.UserID,
		Timestamp:   ts,
		Settings:    r.snapshot.Settings.RecordingSettings,
	}}, "")
	r.logger.Info().Str("user", string(e.Identity.UserID)).Msg("recording started")
	r.emit(telemetry.EventRecordingStarted, map[string]float64{
		"participants": float64(len(r.activeParticipants())),
	}, map[string]string{"user": string(e.Identity.UserID)})
}

func (r *Room) stopRecording(e connEntry) {
	r.broadcast(outFrame{Type: TypeRecordingStopped, Data: recordingStoppedData{
		StoppedBy: e.Identity.UserID,
		Timestamp: r.deps.now().UnixMilli(),
	}}, "")
	r.logger.Info().Str("user", string(e.Identity.UserID)).Msg("recording stopped")
	r.emit(telemetry.EventRecordingStopped, nil, map[string]string{"user": string(e.Identity.UserID)})
}

func (r *Room) recordingChunk(e connEntry, m recordingChunkMessage) {
	rec := RecordingChunk{
		RoomID:       r.id,
		UserID:       e.Identity.UserID,
		Filename:     m.Filename,
		Size:         m.Size,
		Duration:     m.Duration,
		Timestamp:    r.deps.now().UnixMilli(),
		Participants: r.activeParticipants(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		r.logger.Error().Err(err).Msg("encode recording chunk")
		return
	}
	if err := r.deps.Cache.Set(r.ctx, RecordingKey(r.id, m.Filename), data, RecordingTTL); err != nil {
		r.logger.Warn().Err(err).Str("file", m.Filename).Msg("failed to save recording chunk")
		return
	}
	r.broadcast(outFrame{Type: TypeRecordingChunkSaved, Data: recordingChunkSavedData{
		UserID:    rec.UserID,
		Filename:  rec.Filename,
		Size:      rec.Size,
		Duration:  rec.Duration,
		Timestamp: rec.Timestamp,
	}}, e.Identity.UserID)
	r.emit(telemetry.EventRecordingChunk, map[string]float64{
		"size":     float64(m.Size),
		"duration": m.Duration,
	}, map[string]string{"user": string(e.Identity.UserID)})
}
