package domain

import (
	"encoding/json"
	"fmt"
)

type TURNServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

type RecordingSettings struct {
	Enabled     bool   `json:"enabled"`
	AutoStart   bool   `json:"autoStart"`
	MaxDuration int    `json:"maxDuration"`
	Format      string `json:"format"`
	Quality     string `json:"quality"`
	AudioOnly   bool   `json:"audioOnly"`
}

type RoomSettings struct {
	AllowScreenShare  bool              `json:"allowScreenShare"`
	AllowRecording    bool              `json:"allowRecording"`
	AutoMuteOnJoin    bool              `json:"autoMuteOnJoin"`
	StunServers       []string          `json:"stunServers"`
	TurnServers       []TURNServer      `json:"turnServers"`
	RecordingSettings RecordingSettings `json:"recordingSettings"`
}

func DefaultSettings(stun []string, turn []TURNServer) RoomSettings {
	return RoomSettings{
		AllowScreenShare: true,
		AllowRecording:   true,
		AutoMuteOnJoin:   false,
		StunServers:      stun,
		TurnServers:      turn,
		RecordingSettings: RecordingSettings{
			Enabled:     true,
			AutoStart:   false,
			MaxDuration: 3600,
			Format:      "webm",
			Quality:     "high",
			AudioOnly:   false,
		},
	}
}

// RecordingAllowed is true when both the room switch and the recording
// switch are on.
func (s RoomSettings) RecordingAllowed() bool {
	return s.AllowRecording && s.RecordingSettings.Enabled
}

// Merge applies a shallow patch: every top-level key present in patch
// replaces the current value wholesale. Unknown keys are ignored.
func (s RoomSettings) Merge(patch map[string]json.RawMessage) (RoomSettings, error) {
	cur, err := json.Marshal(s)
	if err != nil {
		return s, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(cur, &fields); err != nil {
		return s, err
	}
	for k, v := range patch {
		if _, known := fields[k]; known {
			fields[k] = v
		}
	}
	merged, err := json.Marshal(fields)
	if err != nil {
		return s, err
	}
	var out RoomSettings
	if err := json.Unmarshal(merged, &out); err != nil {
		return s, NewValidationError("settings", fmt.Sprintf("invalid: %v", err))
	}
	return out, nil
}

func (s RoomSettings) Clone() RoomSettings {
	out := s
	out.StunServers = append([]string(nil), s.StunServers...)
	out.TurnServers = make([]TURNServer, len(s.TurnServers))
	for i, t := range s.TurnServers {
		t.URLs = append([]string(nil), t.URLs...)
		out.TurnServers[i] = t
	}
	return out
}
