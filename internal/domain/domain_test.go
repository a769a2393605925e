package domain

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewConnectionIdentity(t *testing.T) {
	now := time.Unix(1700000000, 0)

	id, err := NewConnectionIdentity("  alice ", "", now)
	require.NoError(t, err)
	require.Equal(t, UserID("alice"), id.UserID)
	require.Equal(t, "alice", id.UserName)
	require.Equal(t, now, id.JoinedAt)

	_, err = NewConnectionIdentity(" ", "x", now)
	require.ErrorIs(t, err, ErrUserIDRequired)
	require.True(t, IsValidation(err))

	_, err = NewConnectionIdentity(strings.Repeat("a", MaxUserIDLen+1), "", now)
	require.ErrorIs(t, err, ErrUserIDTooLong)

	_, err = NewConnectionIdentity("bob", strings.Repeat("b", MaxUsernameLen+1), now)
	require.ErrorIs(t, err, ErrUsernameTooLong)
}

func TestRoomRoster(t *testing.T) {
	r := NewRoom("r1", 2, DefaultSettings(nil, nil), time.Now())
	require.Equal(t, RoomTypeVideo, r.Type)

	alice := NewParticipant(ConnectionIdentity{UserID: "alice", UserName: "Alice"}, r.Type, false)
	require.True(t, r.AddParticipant(alice))
	require.False(t, r.AddParticipant(alice))
	require.Len(t, r.Participants, 1)

	p, ok := r.Participant("alice")
	require.True(t, ok)
	p.AudioEnabled = false
	require.False(t, r.Participants[0].AudioEnabled)

	require.True(t, r.RemoveParticipant("alice"))
	require.False(t, r.RemoveParticipant("alice"))
	require.Empty(t, r.Participants)
}

func TestNewParticipantDefaults(t *testing.T) {
	id := ConnectionIdentity{UserID: "u"}
	p := NewParticipant(id, RoomTypeAudio, true)
	require.False(t, p.AudioEnabled)
	require.False(t, p.VideoEnabled)

	p = NewParticipant(id, RoomTypeVideo, false)
	require.True(t, p.AudioEnabled)
	require.True(t, p.VideoEnabled)
	require.False(t, p.IsScreenSharing)
	require.Nil(t, p.ConnectionQuality)
}

func TestRoomCloneIsDeep(t *testing.T) {
	r := NewRoom("r1", 4, DefaultSettings([]string{"stun:a:3478"}, nil), time.Now())
	r.AddParticipant(NewParticipant(ConnectionIdentity{UserID: "a"}, r.Type, false))
	r.Participants[0].SetQuality(QualityGood, time.Now())
	r.MergeMetadata(map[string]any{"topic": "standup"})

	c := r.Clone()
	c.Participants[0].Name = "changed"
	*c.Participants[0].ConnectionQuality = QualityPoor
	c.Metadata["topic"] = "retro"
	c.Settings.StunServers[0] = "stun:b:3478"

	require.Equal(t, "", r.Participants[0].Name)
	require.Equal(t, QualityGood, *r.Participants[0].ConnectionQuality)
	require.Equal(t, "standup", r.Metadata["topic"])
	require.Equal(t, "stun:a:3478", r.Settings.StunServers[0])
}

func TestMergeMetadataIsShallow(t *testing.T) {
	r := NewRoom("r1", 4, RoomSettings{}, time.Now())
	r.MergeMetadata(map[string]any{"a": 1, "nested": map[string]any{"x": 1}})
	r.MergeMetadata(map[string]any{"b": 2, "nested": map[string]any{"y": 2}})
	require.Equal(t, 1, r.Metadata["a"])
	require.Equal(t, 2, r.Metadata["b"])
	require.Equal(t, map[string]any{"y": 2}, r.Metadata["nested"])
}

func TestSettingsMerge(t *testing.T) {
	s := DefaultSettings([]string{"stun:a:3478"}, []TURNServer{})
	patch := map[string]json.RawMessage{
		"allowScreenShare":  json.RawMessage(`false`),
		"recordingSettings": json.RawMessage(`{"enabled":false}`),
		"unknown":           json.RawMessage(`"ignored"`),
	}
	merged, err := s.Merge(patch)
	require.NoError(t, err)
	require.False(t, merged.AllowScreenShare)
	require.True(t, merged.AllowRecording)
	require.Equal(t, []string{"stun:a:3478"}, merged.StunServers)
	// top-level keys are replaced wholesale
	require.False(t, merged.RecordingSettings.Enabled)
	require.Equal(t, 0, merged.RecordingSettings.MaxDuration)
	require.False(t, merged.RecordingAllowed())

	_, err = s.Merge(map[string]json.RawMessage{"allowRecording": json.RawMessage(`"yes"`)})
	require.Error(t, err)
	require.True(t, IsValidation(err))
}

func TestQualityScore(t *testing.T) {
	require.Equal(t, 100.0, QualityExcellent.Score())
	require.Equal(t, 75.0, QualityGood.Score())
	require.Equal(t, 50.0, QualityFair.Score())
	require.Equal(t, 25.0, QualityPoor.Score())
	require.Equal(t, 0.0, ConnectionQuality("bogus").Score())

	require.True(t, QualityFair.Valid())
	require.False(t, ConnectionQuality("terrible").Valid())
	require.False(t, ConnectionQuality("").Valid())

	require.True(t, QualityPoor.Degraded())
	require.True(t, QualityFair.Degraded())
	require.False(t, QualityGood.Degraded())
}

func TestValidateRoomID(t *testing.T) {
	id, err := ValidateRoomID("team-42_a.b")
	require.NoError(t, err)
	require.Equal(t, RoomID("team-42_a.b"), id)

	for _, bad := range []string{"", "a b", "a/b", strings.Repeat("x", MaxRoomIDLen+1)} {
		_, err := ValidateRoomID(bad)
		require.Error(t, err, bad)
		require.True(t, IsValidation(err))
	}
}
