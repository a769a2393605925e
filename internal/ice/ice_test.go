package ice

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/pion/stun/v3"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/voicerooms/internal/config"
)

type failingTURN struct{}

func (failingTURN) Name() string { return "failing" }

func (failingTURN) TURNServers() ([]webrtc.ICEServer, error) {
	return nil, errors.New("vendor api down")
}

func TestSelectTURNProvider(t *testing.T) {
	rest, err := SelectTURNProvider(config.TURNConfig{
		Host:           "turn.example.com",
		SharedSecret:   "s3cret",
		TTL:            time.Hour,
		UsernamePrefix: "voicerooms",
	})
	require.NoError(t, err)
	require.Equal(t, "turn-rest", rest.Name())

	static, err := SelectTURNProvider(config.TURNConfig{
		Host:       "turn.example.com",
		Username:   "user",
		Credential: "pass",
	})
	require.NoError(t, err)
	require.Equal(t, "static", static.Name())

	public, err := SelectTURNProvider(config.TURNConfig{
		PublicURLs: []string{"turn:openrelay.metered.ca:80"},
	})
	require.NoError(t, err)
	require.Equal(t, "public", public.Name())

	_, err = SelectTURNProvider(config.TURNConfig{PublicURLs: []string{"stun:stun.example.com:3478"}})
	require.Error(t, err)

	_, err = SelectTURNProvider(config.TURNConfig{Host: "turn.example.com", SharedSecret: "x", TTL: time.Hour, UsernamePrefix: "a:b"})
	require.Error(t, err)
}

func TestRESTTURNCredentials(t *testing.T) {
	turn, err := NewRESTTURN("turn.example.com", "s3cret", "voicerooms", time.Hour)
	require.NoError(t, err)
	turn.Now = func() time.Time { return time.Unix(1700000000, 0) }
	turn.SessionID = func() string { return "abc" }

	username, credential := turn.Credentials()
	require.Equal(t, "1700003600:voicerooms:abc", username)

	mac := hmac.New(sha1.New, []byte("s3cret"))
	mac.Write([]byte(username))
	require.Equal(t, base64.StdEncoding.EncodeToString(mac.Sum(nil)), credential)

	servers, err := turn.TURNServers()
	require.NoError(t, err)
	require.Len(t, servers, 2)
	require.Equal(t, []string{"turn:turn.example.com:3478?transport=udp"}, servers[0].URLs)
	require.Equal(t, []string{"turn:turn.example.com:443?transport=tcp"}, servers[1].URLs)
	require.Equal(t, username, servers[1].Username)

	_, err = NewRESTTURN("h", "", "p", time.Hour)
	require.Error(t, err)
	_, err = NewRESTTURN("h", "s", "p", 0)
	require.Error(t, err)
}

func TestValidateURLs(t *testing.T) {
	require.NoError(t, ValidateURLs([]string{"stun:stun.l.google.com:19302"}, stun.SchemeTypeSTUN))
	require.NoError(t, ValidateURLs([]string{"turns:relay.example.com:5349"}, stun.SchemeTypeTURN, stun.SchemeTypeTURNS))
	require.Error(t, ValidateURLs([]string{"http://example.com"}, stun.SchemeTypeSTUN))
	require.Error(t, ValidateURLs([]string{"turn:relay.example.com"}, stun.SchemeTypeSTUN))
}

func TestProviderICEServers(t *testing.T) {
	p := NewProvider([]string{"stun:a:3478", "stun:b:3478"}, StaticTURN{Host: "relay", Username: "u", Credential: "c"})
	servers := p.ICEServers()
	require.Len(t, servers, 3)
	require.Equal(t, []string{"stun:a:3478", "stun:b:3478"}, servers[0].URLs)
	require.Equal(t, "u", servers[1].Username)

	stunURLs, turn := p.Settings()
	require.Len(t, stunURLs, 2)
	require.Len(t, turn, 2)
	require.Equal(t, "c", turn[0].Credential)
	require.Equal(t, "static", p.TURNName())
}

func TestProviderDegradesToSTUN(t *testing.T) {
	p := NewProvider([]string{"stun:a:3478"}, failingTURN{})
	servers := p.ICEServers()
	require.Len(t, servers, 1)

	_, turn := p.Settings()
	require.NotNil(t, turn)
	require.Empty(t, turn)

	require.Equal(t, "none", NewProvider(nil, nil).TURNName())
	require.Empty(t, NewProvider(nil, nil).ICEServers())
}

func TestFromConfigDefaults(t *testing.T) {
	p, err := FromConfig(config.Default().ICE)
	require.NoError(t, err)
	require.Equal(t, "public", p.TURNName())
	require.Len(t, p.ICEServers(), 2)
}
