package ice

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pion/stun/v3"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicerooms/internal/config"
)

// relayURLs returns the UDP endpoint plus a TCP/443 fallback for clients
// behind firewalls that only allow HTTPS egress.
func relayURLs(host string) []string {
	return []string{
		fmt.Sprintf("turn:%s:3478?transport=udp", host),
		fmt.Sprintf("turn:%s:443?transport=tcp", host),
	}
}

// StaticTURN serves long-lived managed credentials.
type StaticTURN struct {
	Host       string
	Username   string
	Credential string
}

func (StaticTURN) Name() string { return "static" }

func (t StaticTURN) TURNServers() ([]webrtc.ICEServer, error) {
	out := make([]webrtc.ICEServer, 0, 2)
	for _, u := range relayURLs(t.Host) {
		out = append(out, webrtc.ICEServer{
			URLs:       []string{u},
			Username:   t.Username,
			Credential: t.Credential,
		})
	}
	return out, nil
}

// RESTTURN issues coturn-compatible ephemeral credentials:
//
//	username   = <unix_expiry>:<prefix>:<session>
//	credential = base64(hmac_sha1(shared_secret, username))
type RESTTURN struct {
	Host         string
	SharedSecret string
	TTL          time.Duration
	Prefix       string

	Now       func() time.Time
	SessionID func() string
}

func NewRESTTURN(host, secret, prefix string, ttl time.Duration) (*RESTTURN, error) {
	if secret == "" {
		return nil, errors.New("shared secret is required")
	}
	if ttl <= 0 {
		return nil, errors.New("ttl must be > 0")
	}
	if prefix == "" || strings.Contains(prefix, ":") {
		return nil, fmt.Errorf("invalid username prefix %q", prefix)
	}
	return &RESTTURN{
		Host:         host,
		SharedSecret: secret,
		TTL:          ttl,
		Prefix:       prefix,
		Now:          time.Now,
		SessionID:    func() string { return strings.ReplaceAll(uuid.NewString(), "-", "") },
	}, nil
}

func (*RESTTURN) Name() string { return "turn-rest" }

func (t *RESTTURN) Credentials() (username, credential string) {
	expiry := t.Now().UTC().Add(t.TTL).Unix()
	username = fmt.Sprintf("%d:%s:%s", expiry, t.Prefix, t.SessionID())
	mac := hmac.New(sha1.New, []byte(t.SharedSecret))
	_, _ = mac.Write([]byte(username))
	return username, base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (t *RESTTURN) TURNServers() ([]webrtc.ICEServer, error) {
	username, credential := t.Credentials()
	out := make([]webrtc.ICEServer, 0, 2)
	for _, u := range relayURLs(t.Host) {
		out = append(out, webrtc.ICEServer{
			URLs:       []string{u},
			Username:   username,
			Credential: credential,
		})
	}
	return out, nil
}

// PublicTURN is the shared fallback relay used when nothing is configured.
type PublicTURN struct {
	URLs       []string
	Username   string
	Credential string
}

func (PublicTURN) Name() string { return "public" }

func (t PublicTURN) TURNServers() ([]webrtc.ICEServer, error) {
	if len(t.URLs) == 0 {
		return nil, nil
	}
	return []webrtc.ICEServer{{
		URLs:       append([]string(nil), t.URLs...),
		Username:   t.Username,
		Credential: t.Credential,
	}}, nil
}

// SelectTURNProvider prefers ephemeral REST credentials, then static managed
// credentials, and otherwise falls back to the public relay.
func SelectTURNProvider(conf config.TURNConfig) (TURNProvider, error) {
	switch {
	case conf.Host != "" && conf.SharedSecret != "":
		log.Info().Str("module", "ice").Str("host", conf.Host).Msg("using TURN REST credentials")
		if err := ValidateURLs(relayURLs(conf.Host), stun.SchemeTypeTURN); err != nil {
			return nil, err
		}
		return NewRESTTURN(conf.Host, conf.SharedSecret, conf.UsernamePrefix, conf.TTL)
	case conf.Host != "" && conf.Username != "" && conf.Credential != "":
		log.Info().Str("module", "ice").Str("host", conf.Host).Msg("using managed TURN credentials")
		if err := ValidateURLs(relayURLs(conf.Host), stun.SchemeTypeTURN); err != nil {
			return nil, err
		}
		return StaticTURN{Host: conf.Host, Username: conf.Username, Credential: conf.Credential}, nil
	default:
		if err := ValidateURLs(conf.PublicURLs, stun.SchemeTypeTURN, stun.SchemeTypeTURNS); err != nil {
			return nil, err
		}
		log.Warn().Str("module", "ice").Strs("urls", conf.PublicURLs).Msg("no TURN credentials configured, falling back to public relay")
		return PublicTURN{URLs: conf.PublicURLs, Username: conf.PublicUsername, Credential: conf.PublicCredential}, nil
	}
}
