package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, 60*time.Second, cfg.Room.CleanupDelay)
	require.Equal(t, 10, cfg.Room.DefaultMaxParticipants)
	require.Equal(t, "drop", cfg.SlowConsumer)
	require.Len(t, cfg.ICE.StunURLs, 2)
	require.Equal(t, time.Hour, cfg.ICE.TURN.TTL)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode: debug
port: 9000
room:
  cleanup_delay: 5s
  default_max_participants: 4
ice:
  turn:
    host: turn.example.com
    shared_secret: s3cret
`), 0o600))
	t.Setenv("VOICEROOMS_SLOW_CONSUMER", "kick")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.Mode)
	require.Equal(t, 9000, cfg.Port)
	require.Equal(t, 5*time.Second, cfg.Room.CleanupDelay)
	require.Equal(t, 4, cfg.Room.DefaultMaxParticipants)
	require.Equal(t, 100, cfg.Room.MaxParticipantsLimit)
	require.Equal(t, "kick", cfg.SlowConsumer)
	require.Equal(t, "turn.example.com", cfg.ICE.TURN.Host)
	require.Equal(t, "voicerooms", cfg.ICE.TURN.UsernamePrefix)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Port)
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: [8080\nroom: {"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to read config")
}

func TestValidate(t *testing.T) {
	for name, mutate := range map[string]func(*Config){
		"port":          func(c *Config) { c.Port = 0 },
		"default max":   func(c *Config) { c.Room.DefaultMaxParticipants = 0 },
		"limit":         func(c *Config) { c.Room.MaxParticipantsLimit = 2 },
		"slow consumer": func(c *Config) { c.SlowConsumer = "block" },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
