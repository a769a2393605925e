package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/voicerooms/internal/domain"
	"github.com/dkeye/voicerooms/internal/ice"
	"github.com/dkeye/voicerooms/internal/telemetry"
)

type InitRequest struct {
	RoomType        domain.RoomType `json:"roomType"`
	MaxParticipants int             `json:"maxParticipants"`
	Metadata        map[string]any  `json:"metadata"`
}

type InitResult struct {
	Success         bool            `json:"success"`
	RoomID          domain.RoomID   `json:"roomId"`
	RoomType        domain.RoomType `json:"roomType"`
	MaxParticipants int             `json:"maxParticipants"`
	Metadata        map[string]any  `json:"metadata"`
	CreatedAt       time.Time       `json:"createdAt"`
}

type JoinRequest struct {
	UserID   string          `json:"userId"`
	UserName string          `json:"userName"`
	RoomType domain.RoomType `json:"roomType,omitempty"`
}

type JoinResult struct {
	Success      bool         `json:"success"`
	RoomData     *domain.Room `json:"roomData"`
	WebsocketURL string       `json:"websocketUrl"`
}

type ICEResult struct {
	ICEServers []webrtc.ICEServer `json:"iceServers"`
	TTL        int                `json:"ttl"`
}

type MetricsResult struct {
	RoomID              domain.RoomID        `json:"roomId"`
	CurrentParticipants int                  `json:"currentParticipants"`
	Metrics             domain.RoomMetrics   `json:"metrics"`
	RoomSettings        domain.RoomSettings  `json:"roomSettings"`
	Participants        []domain.Participant `json:"participants"`
}

// Init configures a room. Once anybody has connected the call is a no-op
// that returns the current configuration.
func (r *Room) Init(ctx context.Context, req InitRequest) (InitResult, error) {
	if req.RoomType != "" && !req.RoomType.Valid() {
		return InitResult{}, domain.NewValidationError("roomType", "must be audio or video")
	}
	if req.MaxParticipants < 0 || req.MaxParticipants > r.deps.Options.MaxParticipantsLimit {
		return InitResult{}, domain.NewValidationError("maxParticipants", fmt.Sprintf("must be between 1 and %d", r.deps.Options.MaxParticipantsLimit))
	}
	var res InitResult
	err := r.do(ctx, func() error {
		s := r.snapshot
		if len(s.Participants) == 0 {
			if req.RoomType != "" {
				s.Type = req.RoomType
			}
			if req.MaxParticipants > 0 {
				s.MaxParticipants = req.MaxParticipants
			}
			if req.Metadata != nil {
				s.MergeMetadata(req.Metadata)
			}
			s.Initialized = true
			if err := r.persist(); err != nil {
				return err
			}
			r.syncDirectory()
			r.logger.Info().Str("type", string(s.Type)).Int("max", s.MaxParticipants).Msg("room initialized")
		}
		c := s.Clone()
		res = InitResult{
			Success:         true,
			RoomID:          c.ID,
			RoomType:        c.Type,
			MaxParticipants: c.MaxParticipants,
			Metadata:        c.Metadata,
			CreatedAt:       c.CreatedAt,
		}
		return nil
	})
	return res, err
}

// Join admits a user at the HTTP level and hands back the WebSocket URL.
// The roster entry itself is created when the socket is accepted.
func (r *Room) Join(ctx context.Context, req JoinRequest) (JoinResult, error) {
	identity, err := domain.NewConnectionIdentity(req.UserID, req.UserName, r.deps.now())
	if err != nil {
		return JoinResult{}, err
	}
	if req.RoomType != "" && !req.RoomType.Valid() {
		return JoinResult{}, domain.NewValidationError("roomType", "must be audio or video")
	}
	var res JoinResult
	err = r.do(ctx, func() error {
		s := r.snapshot
		if !s.HasParticipant(identity.UserID) {
			if r.isFull(identity.UserID) {
				return domain.ErrRoomFull
			}
			if req.RoomType != "" && len(s.Participants) == 0 {
				s.Type = req.RoomType
			}
			s.Initialized = true
			if err := r.persist(); err != nil {
				return err
			}
		}
		res = JoinResult{
			Success:      true,
			RoomData:     s.Clone(),
			WebsocketURL: r.websocketURL(identity),
		}
		return nil
	})
	return res, err
}

func (r *Room) websocketURL(identity domain.ConnectionIdentity) string {
	q := url.Values{}
	q.Set("userId", string(identity.UserID))
	q.Set("userName", identity.UserName)
	base := strings.TrimRight(r.deps.Options.PublicWSURL, "/")
	return fmt.Sprintf("%s/rooms/%s/ws?%s", base, url.PathEscape(string(r.id)), q.Encode())
}

// Leave removes a user no matter how it is connected. Unknown users are
// ignored.
func (r *Room) Leave(ctx context.Context, userID string) error {
	user := domain.UserID(strings.TrimSpace(userID))
	if user == "" {
		return domain.ErrUserIDRequired
	}
	return r.do(ctx, func() error {
		tagged := r.registry.Tagged(user)
		for _, e := range tagged {
			r.registry.Unbind(e.ID)
			e.Conn.Close(closeNormal, "left the room")
		}
		if len(tagged) == 0 && !r.snapshot.HasParticipant(user) {
			return nil
		}
		r.removeUser(user, nil)
		return nil
	})
}

// Info returns the stored snapshot. Rooms that were never initialized are
// reported as not found.
func (r *Room) Info(ctx context.Context) (*domain.Room, error) {
	var out *domain.Room
	err := r.do(ctx, func() error {
		if !r.snapshot.Initialized {
			return domain.ErrRoomNotFound
		}
		telemetry.RefreshDuration(&r.snapshot.Metrics, r.snapshot.CreatedAt, r.deps.now())
		out = r.snapshot.Clone()
		return nil
	})
	return out, err
}

func (r *Room) Settings(ctx context.Context) (domain.RoomSettings, error) {
	var out domain.RoomSettings
	err := r.do(ctx, func() error {
		out = r.snapshot.Settings.Clone()
		return nil
	})
	return out, err
}

// UpdateSettings shallow-merges patch and tells every connection.
func (r *Room) UpdateSettings(ctx context.Context, patch map[string]json.RawMessage) (domain.RoomSettings, error) {
	var out domain.RoomSettings
	err := r.do(ctx, func() error {
		merged, err := r.snapshot.Settings.Merge(patch)
		if err != nil {
			return err
		}
		r.snapshot.Settings = merged
		if err := r.persist(); err != nil {
			return err
		}
		out = merged.Clone()
		r.broadcast(outFrame{Type: TypeSettingsUpdated, Data: settingsData{Settings: merged.Clone()}}, "")
		return nil
	})
	return out, err
}

// UpdateMetadata shallow-merges patch without notifying anyone.
func (r *Room) UpdateMetadata(ctx context.Context, patch map[string]any) (map[string]any, error) {
	var out map[string]any
	err := r.do(ctx, func() error {
		r.snapshot.MergeMetadata(patch)
		if err := r.persist(); err != nil {
			return err
		}
		out = r.snapshot.Clone().Metadata
		return nil
	})
	return out, err
}

// ICEServers does not touch room state.
func (r *Room) ICEServers() ICEResult {
	return iceResult(r.deps.ICE)
}

func iceResult(p *ice.Provider) ICEResult {
	var servers []webrtc.ICEServer
	if p != nil {
		servers = p.ICEServers()
	}
	if servers == nil {
		servers = []webrtc.ICEServer{}
	}
	return ICEResult{ICEServers: servers, TTL: int(ice.TTL.Seconds())}
}

func (r *Room) Metrics(ctx context.Context) (MetricsResult, error) {
	var out MetricsResult
	err := r.do(ctx, func() error {
		telemetry.RefreshDuration(&r.snapshot.Metrics, r.snapshot.CreatedAt, r.deps.now())
		active := r.activeParticipants()
		out = MetricsResult{
			RoomID:              r.id,
			CurrentParticipants: len(active),
			Metrics:             r.snapshot.Metrics,
			RoomSettings:        r.snapshot.Settings.Clone(),
			Participants:        active,
		}
		return nil
	})
	return out, err
}
