// Package ice assembles the STUN/TURN server list handed to clients.
package ice

import (
	"fmt"
	"strings"
	"time"

	"github.com/pion/stun/v3"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicerooms/internal/config"
	"github.com/dkeye/voicerooms/internal/domain"
)

// TTL is how long clients may reuse an ICE server list.
const TTL = time.Hour

// TURNProvider is the vendor strategy for relay servers.
type TURNProvider interface {
	Name() string
	TURNServers() ([]webrtc.ICEServer, error)
}

type Provider struct {
	stunURLs []string
	turn     TURNProvider
}

func NewProvider(stunURLs []string, turn TURNProvider) *Provider {
	return &Provider{stunURLs: stunURLs, turn: turn}
}

// FromConfig validates the configured URLs and selects a TURN strategy.
func FromConfig(conf config.ICEConfig) (*Provider, error) {
	if err := ValidateURLs(conf.StunURLs, stun.SchemeTypeSTUN); err != nil {
		return nil, err
	}
	turn, err := SelectTURNProvider(conf.TURN)
	if err != nil {
		return nil, err
	}
	return NewProvider(conf.StunURLs, turn), nil
}

// ICEServers returns STUN servers first, then whatever the TURN strategy
// yields. A TURN failure degrades to a STUN-only list.
func (p *Provider) ICEServers() []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, 4)
	if len(p.stunURLs) > 0 {
		out = append(out, webrtc.ICEServer{URLs: append([]string(nil), p.stunURLs...)})
	}
	if p.turn == nil {
		return out
	}
	turn, err := p.turn.TURNServers()
	if err != nil {
		log.Error().Err(err).Str("module", "ice").Str("provider", p.turn.Name()).Msg("turn servers unavailable")
		return out
	}
	return append(out, turn...)
}

// Settings splits the list into the shape stored in RoomSettings.
func (p *Provider) Settings() ([]string, []domain.TURNServer) {
	stunURLs := append([]string(nil), p.stunURLs...)
	var turn []domain.TURNServer
	for _, s := range p.ICEServers() {
		if !hasTURNURL(s) {
			continue
		}
		cred, _ := s.Credential.(string)
		turn = append(turn, domain.TURNServer{URLs: s.URLs, Username: s.Username, Credential: cred})
	}
	if turn == nil {
		turn = []domain.TURNServer{}
	}
	return stunURLs, turn
}

func (p *Provider) TURNName() string {
	if p.turn == nil {
		return "none"
	}
	return p.turn.Name()
}

// ValidateURLs parses every URL as an ICE URI of one of the allowed schemes.
func ValidateURLs(urls []string, allowed ...stun.SchemeType) error {
	for _, raw := range urls {
		u, err := stun.ParseURI(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("invalid ICE url %q: %w", raw, err)
		}
		ok := len(allowed) == 0
		for _, s := range allowed {
			if u.Scheme == s {
				ok = true
				break
			}
		}
		if !ok {
			return fmt.Errorf("ICE url %q has unexpected scheme %s", raw, u.Scheme)
		}
	}
	return nil
}

func hasTURNURL(s webrtc.ICEServer) bool {
	for _, raw := range s.URLs {
		url := strings.ToLower(strings.TrimSpace(raw))
		if strings.HasPrefix(url, "turn:") || strings.HasPrefix(url, "turns:") {
			return true
		}
	}
	return false
}
