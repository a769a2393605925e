package app

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"github.com/dkeye/voicerooms/internal/core"
	"github.com/dkeye/voicerooms/internal/domain"
	"github.com/dkeye/voicerooms/internal/telemetry"
)

// WebSocket close codes used by the room.
const (
	closeNormal    = 1000
	closeGoingAway = 1001
	closePolicy    = 1008
)

// ErrIdentityLost is returned for frames arriving on a connection the room
// no longer knows. The adapter closes that connection with 1008.
var ErrIdentityLost = errors.New("connection identity lost")

// UpgradeFunc completes the transport handshake. It runs on the actor after
// the capacity check so that a rejected client never gets a socket.
type UpgradeFunc func() (core.SignalConnection, error)

// Accept admits a new connection for identity. On ErrRoomFull upgrade is
// never called.
func (r *Room) Accept(ctx context.Context, identity domain.ConnectionIdentity, upgrade UpgradeFunc) (core.ConnID, error) {
	var id core.ConnID
	err := r.do(ctx, func() error {
		if r.isFull(identity.UserID) {
			r.logger.Info().Str("user", string(identity.UserID)).Msg("upgrade rejected, room is full")
			return domain.ErrRoomFull
		}
		conn, err := upgrade()
		if err != nil {
			return err
		}
		id = core.ConnID(uuid.NewString())
		returning := r.registry.IsConnected(identity.UserID)
		r.registry.Bind(id, identity, conn)

		p, listed := r.snapshot.Participant(identity.UserID)
		if !listed {
			r.snapshot.AddParticipant(domain.NewParticipant(identity, r.snapshot.Type, r.snapshot.Settings.AutoMuteOnJoin))
			p, _ = r.snapshot.Participant(identity.UserID)
		}
		r.snapshot.Initialized = true
		active := r.activeParticipants()
		if !returning {
			telemetry.Update(&r.snapshot.Metrics, telemetry.UpdateJoin, len(active), r.deps.now())
		}
		_ = r.persist()
		r.syncDirectory()

		r.logger.Info().Str("user", string(identity.UserID)).Str("conn", string(id)).Int("active", len(active)).Msg("connection accepted")
		e := connEntry{ID: id, Identity: identity, Conn: conn}
		r.sendTo(e, outFrame{Type: TypeConnected, Data: connectedData{
			UserID:       identity.UserID,
			ConnectionID: string(id),
			Room:         r.snapshot.Clone(),
			Participants: active,
		}})
		if !returning {
			r.emit(telemetry.EventParticipantJoined, map[string]float64{
				"participants":      float64(len(active)),
				"totalParticipants": float64(r.snapshot.Metrics.TotalParticipants),
			}, map[string]string{"user": string(identity.UserID)})
			r.broadcast(outFrame{Type: TypeParticipantJoined, Data: participantData{Participant: p.Clone()}}, identity.UserID)
		}
		return nil
	})
	return id, err
}

// HandleFrame routes one inbound text frame.
func (r *Room) HandleFrame(ctx context.Context, id core.ConnID, raw []byte) error {
	return r.do(ctx, func() error {
		e, ok := r.registry.Entry(id)
		if !ok {
			return ErrIdentityLost
		}
		identity := e.Identity
		telemetry.Update(&r.snapshot.Metrics, telemetry.UpdateMessage, 0, r.deps.now())
		defer func() { _ = r.persist() }()

		if r.limiter != nil && !r.limiter.Allow(identity.UserID) {
			r.sendTo(e, errorFrame("rate limit exceeded"))
			return nil
		}
		msg, err := DecodeMessage(raw)
		if err != nil {
			r.logger.Debug().Err(err).Str("conn", string(id)).Msg("rejected frame")
			r.sendTo(e, errorFrame(err.Error()))
			return nil
		}
		r.route(e, msg)
		return nil
	})
}

func (r *Room) route(e connEntry, msg InboundMessage) {
	switch m := msg.(type) {
	case signalMessage:
		r.relaySignal(e, m)
	case toggleMessage:
		r.toggle(e, m)
	case chatMessage:
		r.broadcast(chatFrame{
			Type:      TypeChat,
			From:      e.Identity.UserID,
			FromName:  e.Identity.UserName,
			Message:   m.Message,
			Timestamp: r.deps.now().UnixMilli(),
		}, "")
	case startRecordingMessage:
		r.startRecording(e)
	case stopRecordingMessage:
		r.stopRecording(e)
	case recordingChunkMessage:
		r.recordingChunk(e, m)
	case qualityReportMessage:
		r.qualityReport(e, m)
	case pingMessage:
		r.sendTo(e, outFrame{Type: TypePong, Data: pongData{Timestamp: r.deps.now().UnixMilli()}})
	default:
		r.logger.Warn().Err(&domain.ProtocolError{Type: msg.messageType()}).Str("conn", string(e.ID)).Msg("ignored frame")
	}
}

func (r *Room) relaySignal(e connEntry, m signalMessage) {
	targets := r.registry.Tagged(m.To)
	if len(targets) == 0 {
		r.sendTo(e, errorFrame("peer not connected"))
		return
	}
	frame, err := json.Marshal(signalFrame{Type: m.Type, From: e.Identity.UserID, Data: m.Data})
	if err != nil {
		r.logger.Error().Err(err).Msg("encode signal")
		return
	}
	if res := r.deliver(frame, targets); res.SendTo == 0 {
		r.logger.Debug().Str("to", string(m.To)).Int("dropped", len(res.Dropped)).Msg("signal not delivered")
	}
}

func (r *Room) toggle(e connEntry, m toggleMessage) {
	p, ok := r.snapshot.Participant(e.Identity.UserID)
	if !ok {
		r.sendTo(e, errorFrame("participant not found"))
		return
	}
	pick := func(cur bool) bool {
		if m.Enabled == nil {
			return !cur
		}
		return *m.Enabled
	}
	switch m.Type {
	case TypeToggleAudio:
		p.AudioEnabled = pick(p.AudioEnabled)
	case TypeToggleVideo:
		p.VideoEnabled = pick(p.VideoEnabled)
	case TypeToggleScreenShare:
		next := pick(p.IsScreenSharing)
		if next && !r.snapshot.Settings.AllowScreenShare {
			r.sendTo(e, errorFrame("screen sharing is disabled"))
			return
		}
		p.IsScreenSharing = next
		r.broadcast(outFrame{Type: TypeScreenShareChanged, Data: screenShareData{
			UserID:          p.ID,
			IsScreenSharing: p.IsScreenSharing,
		}}, e.Identity.UserID)
		return
	}
	r.broadcast(outFrame{Type: TypeParticipantUpdated, Data: participantData{Participant: p.Clone()}}, "")
}

// Disconnect handles both clean closes and transport errors. cause is nil
// for a clean close.
func (r *Room) Disconnect(ctx context.Context, id core.ConnID, cause error) error {
	return r.do(ctx, func() error {
		e, ok := r.registry.Unbind(id)
		if !ok {
			return nil
		}
		user := e.Identity.UserID
		if r.registry.IsConnected(user) {
			r.logger.Info().Str("user", string(user)).Str("conn", string(id)).Msg("tab closed, user still connected")
			return nil
		}
		r.removeUser(user, cause)
		return nil
	})
}

// removeUser runs once the user holds no live connection.
func (r *Room) removeUser(user domain.UserID, cause error) {
	r.snapshot.RemoveParticipant(user)
	if r.limiter != nil {
		r.limiter.Forget(user)
	}
	kind, event := telemetry.UpdateLeave, telemetry.EventParticipantLeft
	if cause != nil {
		kind, event = telemetry.UpdateError, telemetry.EventConnectionError
	}
	telemetry.Update(&r.snapshot.Metrics, kind, 0, r.deps.now())
	_ = r.persist()
	r.syncDirectory()

	active := len(r.activeParticipants())
	ev := r.logger.Info().Str("user", string(user)).Int("active", active)
	if cause != nil {
		ev = ev.AnErr("cause", cause)
	}
	ev.Msg("participant left")
	r.emit(event, map[string]float64{"participants": float64(active)}, map[string]string{"user": string(user)})
	r.broadcast(outFrame{Type: TypeParticipantLeft, Data: participantLeftData{UserID: user}}, "")
	if r.registry.Count() == 0 {
		r.armCleanup()
	}
}

func (r *Room) encode(v any) ([]byte, bool) {
	b, err := json.Marshal(v)
	if err != nil {
		r.logger.Error().Err(err).Msg("encode frame")
		return nil, false
	}
	return b, true
}

func (r *Room) sendTo(e connEntry, v any) {
	if e.Conn == nil {
		return
	}
	if b, ok := r.encode(v); ok {
		r.deliver(b, []connEntry{e})
	}
}

// broadcast sends v to every live connection except those of except.
func (r *Room) broadcast(v any, except domain.UserID) {
	b, ok := r.encode(v)
	if !ok {
		return
	}
	all := r.registry.All()
	targets := all[:0]
	for _, e := range all {
		if except != "" && e.Identity.UserID == except {
			continue
		}
		targets = append(targets, e)
	}
	if res := r.deliver(b, targets); len(res.Dropped) > 0 {
		r.logger.Debug().Int("sent", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast hit full send queues")
	}
}

// deliver writes frame to each target. One failing connection never stops
// delivery to the others.
func (r *Room) deliver(frame []byte, targets []connEntry) core.PublishResult {
	var res core.PublishResult
	for _, e := range targets {
		err := e.Conn.TrySend(core.Frame(frame))
		switch {
		case err == nil:
			res.SendTo++
		case errors.Is(err, core.ErrBackpressure):
			res.Dropped = append(res.Dropped, e.ID)
			r.onBackpressure(e)
		default:
			r.logger.Warn().Err(err).Str("conn", string(e.ID)).Msg("send failed")
		}
	}
	return res
}

func (r *Room) onBackpressure(e connEntry) {
	policy := r.deps.Policy
	if policy == nil {
		policy = DropPolicy{}
	}
	switch policy.OnBackPressure(r, e) {
	case KickMember:
		r.logger.Warn().Str("conn", string(e.ID)).Str("user", string(e.Identity.UserID)).Msg("slow consumer kicked")
		e.Conn.Close(closePolicy, "slow consumer")
	case DropFrame:
		r.logger.Debug().Str("conn", string(e.ID)).Msg("frame dropped, send queue full")
	}
}
