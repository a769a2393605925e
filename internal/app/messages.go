package app

import (
	"encoding/json"
	"strings"

	"github.com/dkeye/voicerooms/internal/domain"
)

// Inbound frame types.
const (
	TypeOffer             = "offer"
	TypeAnswer            = "answer"
	TypeICECandidate      = "ice-candidate"
	TypeSignal            = "signal"
	TypeToggleAudio       = "toggle-audio"
	TypeToggleVideo       = "toggle-video"
	TypeToggleScreenShare = "toggle-screen-share"
	TypeChat              = "chat"
	TypeStartRecording    = "start-recording"
	TypeStopRecording     = "stop-recording"
	TypeRecordingChunk    = "recording-chunk"
	TypeQualityReport     = "quality-report"
	TypePing              = "ping"
)

// Outbound frame types.
const (
	TypeConnected           = "connected"
	TypeParticipantJoined   = "participant-joined"
	TypeParticipantLeft     = "participant-left"
	TypeParticipantUpdated  = "participant-updated"
	TypeScreenShareChanged  = "screen-share-changed"
	TypeSettingsUpdated     = "settings-updated"
	TypeRecordingStarted    = "recording-started"
	TypeRecordingStopped    = "recording-stopped"
	TypeRecordingChunkSaved = "recording-chunk-saved"
	TypeQualityAlert        = "quality-alert"
	TypePong                = "pong"
	TypeError               = "error"
)

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// InboundMessage is the closed set of frames a client may send.
type InboundMessage interface {
	messageType() string
}

type signalMessage struct {
	Type string
	To   domain.UserID
	Data json.RawMessage
}

type toggleMessage struct {
	Type string
	// Enabled is nil when the client asked to flip the current state.
	Enabled *bool
}

type chatMessage struct {
	Message string
}

type startRecordingMessage struct{}

type stopRecordingMessage struct{}

type recordingChunkMessage struct {
	Filename string  `json:"filename"`
	Size     int64   `json:"size"`
	Duration float64 `json:"duration"`
}

type qualityReportMessage struct {
	QualityData QualityData `json:"qualityData"`
	Timestamp   int64       `json:"timestamp"`
}

type pingMessage struct{}

type unknownMessage struct {
	Type string
}

func (m signalMessage) messageType() string       { return m.Type }
func (m toggleMessage) messageType() string       { return m.Type }
func (chatMessage) messageType() string           { return TypeChat }
func (startRecordingMessage) messageType() string { return TypeStartRecording }
func (stopRecordingMessage) messageType() string  { return TypeStopRecording }
func (recordingChunkMessage) messageType() string { return TypeRecordingChunk }
func (qualityReportMessage) messageType() string  { return TypeQualityReport }
func (pingMessage) messageType() string           { return TypePing }
func (m unknownMessage) messageType() string      { return m.Type }

// DecodeMessage parses one text frame. Malformed JSON and malformed payloads
// of known types are validation errors; unknown types decode to a message
// the relay ignores.
func DecodeMessage(raw []byte) (InboundMessage, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, domain.NewValidationError("", "invalid JSON")
	}
	if env.Type == "" {
		return nil, domain.NewValidationError("type", "is required")
	}
	switch env.Type {
	case TypeOffer, TypeAnswer, TypeICECandidate, TypeSignal:
		var target struct {
			To string `json:"to"`
		}
		if err := decodeData(env.Data, &target); err != nil {
			return nil, err
		}
		to := strings.TrimSpace(target.To)
		if to == "" {
			return nil, domain.NewValidationError("to", "is required")
		}
		return signalMessage{Type: env.Type, To: domain.UserID(to), Data: env.Data}, nil
	case TypeToggleAudio, TypeToggleVideo, TypeToggleScreenShare:
		var body struct {
			Enabled *bool `json:"enabled"`
		}
		if err := decodeData(env.Data, &body); err != nil {
			return nil, err
		}
		return toggleMessage{Type: env.Type, Enabled: body.Enabled}, nil
	case TypeChat:
		var body struct {
			Message string `json:"message"`
		}
		if err := decodeData(env.Data, &body); err != nil {
			return nil, err
		}
		if strings.TrimSpace(body.Message) == "" {
			return nil, domain.NewValidationError("message", "is required")
		}
		return chatMessage{Message: body.Message}, nil
	case TypeStartRecording:
		return startRecordingMessage{}, nil
	case TypeStopRecording:
		return stopRecordingMessage{}, nil
	case TypeRecordingChunk:
		var m recordingChunkMessage
		if err := decodeData(env.Data, &m); err != nil {
			return nil, err
		}
		if m.Filename == "" {
			return nil, domain.NewValidationError("filename", "is required")
		}
		return m, nil
	case TypeQualityReport:
		var m qualityReportMessage
		if err := decodeData(env.Data, &m); err != nil {
			return nil, err
		}
		if q := m.QualityData.Overall; q != "" && !q.Valid() {
			return nil, domain.NewValidationError("overall", "must be excellent, good, fair or poor")
		}
		return m, nil
	case TypePing:
		return pingMessage{}, nil
	default:
		return unknownMessage{Type: env.Type}, nil
	}
}

func decodeData(data json.RawMessage, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return domain.NewValidationError("data", "malformed payload")
	}
	return nil
}

// outFrame is the shape of every server frame except forwarded signals and
// chat.
type outFrame struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

type signalFrame struct {
	Type string          `json:"type"`
	From domain.UserID   `json:"from"`
	Data json.RawMessage `json:"data"`
}

type chatFrame struct {
	Type      string        `json:"type"`
	From      domain.UserID `json:"from"`
	FromName  string        `json:"fromName"`
	Message   string        `json:"message"`
	Timestamp int64         `json:"timestamp"`
}

type errorData struct {
	Message string `json:"message"`
}

type connectedData struct {
	UserID       domain.UserID        `json:"userId"`
	ConnectionID string               `json:"connectionId"`
	Room         *domain.Room         `json:"room"`
	Participants []domain.Participant `json:"participants"`
}

type participantData struct {
	Participant domain.Participant `json:"participant"`
}

type participantLeftData struct {
	UserID domain.UserID `json:"userId"`
}

type screenShareData struct {
	UserID          domain.UserID `json:"userId"`
	IsScreenSharing bool          `json:"isScreenSharing"`
}

type settingsData struct {
	Settings domain.RoomSettings `json:"settings"`
}

type pongData struct {
	Timestamp int64 `json:"timestamp"`
}

func errorFrame(msg string) outFrame {
	return outFrame{Type: TypeError, Data: errorData{Message: msg}}
}
