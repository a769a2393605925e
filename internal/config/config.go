package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode        string        `mapstructure:"mode"`
	Port        int           `mapstructure:"port"`
	PublicWSURL string        `mapstructure:"public_ws_url"`
	ReadLimit   int64         `mapstructure:"read_limit"`
	PingPeriod  time.Duration `mapstructure:"ping_period"`
	PongWait    time.Duration `mapstructure:"pong_wait"`
	SendBuffer  int           `mapstructure:"send_buffer"`
	// SlowConsumer is "drop" or "kick".
	SlowConsumer string `mapstructure:"slow_consumer"`
	// FrameRate limits inbound frames per user per second; 0 disables.
	FrameRate int `mapstructure:"frame_rate"`

	Room      RoomConfig      `mapstructure:"room"`
	Redis     RedisConfig     `mapstructure:"redis"`
	ICE       ICEConfig       `mapstructure:"ice"`
	Analytics AnalyticsConfig `mapstructure:"analytics"`
}

type RoomConfig struct {
	CleanupDelay           time.Duration `mapstructure:"cleanup_delay"`
	HibernateAfter         time.Duration `mapstructure:"hibernate_after"`
	DefaultMaxParticipants int           `mapstructure:"default_max_participants"`
	MaxParticipantsLimit   int           `mapstructure:"max_participants_limit"`
	InboxSize              int           `mapstructure:"inbox_size"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type ICEConfig struct {
	StunURLs []string   `mapstructure:"stun_urls"`
	TURN     TURNConfig `mapstructure:"turn"`
}

// TURNConfig carries every TURN vendor option; the provider strategy decides
// which of them apply.
type TURNConfig struct {
	Host           string        `mapstructure:"host"`
	Username       string        `mapstructure:"username"`
	Credential     string        `mapstructure:"credential"`
	SharedSecret   string        `mapstructure:"shared_secret"`
	TTL            time.Duration `mapstructure:"ttl"`
	UsernamePrefix string        `mapstructure:"username_prefix"`

	PublicURLs       []string `mapstructure:"public_urls"`
	PublicUsername   string   `mapstructure:"public_username"`
	PublicCredential string   `mapstructure:"public_credential"`
}

type AnalyticsConfig struct {
	Workers    int  `mapstructure:"workers"`
	Prometheus bool `mapstructure:"prometheus"`
}

// Load reads config from path, or from config/config.{CONFIG_ENV}.yaml when
// path is empty. A missing file is not an error; defaults and VOICEROOMS_*
// environment variables still apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	fileName := path
	if fileName == "" {
		env := os.Getenv("CONFIG_ENV")
		if env == "" {
			env = "dev"
		}
		fileName = fmt.Sprintf("config/config.%s.yaml", env)
	}

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("VOICEROOMS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config %s: %w", fileName, err)
		}
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Bool("redis", cfg.Redis.Enabled).Msg("config ready")
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("public_ws_url", "ws://localhost:8080")
	v.SetDefault("read_limit", 65536)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("pong_wait", "60s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("slow_consumer", "drop")
	v.SetDefault("frame_rate", 0)

	v.SetDefault("room.cleanup_delay", "60s")
	v.SetDefault("room.hibernate_after", "30s")
	v.SetDefault("room.default_max_participants", 10)
	v.SetDefault("room.max_participants_limit", 100)
	v.SetDefault("room.inbox_size", 256)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("ice.stun_urls", []string{
		"stun:stun.l.google.com:19302",
		"stun:stun1.l.google.com:19302",
	})
	v.SetDefault("ice.turn.host", "")
	v.SetDefault("ice.turn.username", "")
	v.SetDefault("ice.turn.credential", "")
	v.SetDefault("ice.turn.shared_secret", "")
	v.SetDefault("ice.turn.ttl", "1h")
	v.SetDefault("ice.turn.username_prefix", "voicerooms")
	v.SetDefault("ice.turn.public_urls", []string{
		"turn:openrelay.metered.ca:80",
		"turn:openrelay.metered.ca:443?transport=tcp",
	})
	v.SetDefault("ice.turn.public_username", "openrelayproject")
	v.SetDefault("ice.turn.public_credential", "openrelayproject")

	v.SetDefault("analytics.workers", 2)
	v.SetDefault("analytics.prometheus", true)
}

func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Room.DefaultMaxParticipants <= 0 {
		return fmt.Errorf("room.default_max_participants must be > 0")
	}
	if c.Room.MaxParticipantsLimit < c.Room.DefaultMaxParticipants {
		return fmt.Errorf("room.max_participants_limit must be >= room.default_max_participants")
	}
	if c.SlowConsumer != "drop" && c.SlowConsumer != "kick" {
		return fmt.Errorf("slow_consumer must be drop or kick, got %q", c.SlowConsumer)
	}
	return nil
}

// Default returns the built-in configuration without touching disk or env.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(err)
	}
	return &cfg
}
