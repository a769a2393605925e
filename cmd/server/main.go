package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	router "github.com/dkeye/voicerooms/internal/adapters/http"
	"github.com/dkeye/voicerooms/internal/app"
	"github.com/dkeye/voicerooms/internal/config"
	"github.com/dkeye/voicerooms/internal/core"
	"github.com/dkeye/voicerooms/internal/ice"
	"github.com/dkeye/voicerooms/internal/store"
	"github.com/dkeye/voicerooms/internal/telemetry"
)

var baseFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "config",
		Usage:   "path to config file, defaults to config/config.{CONFIG_ENV}.yaml",
		EnvVars: []string{"VOICEROOMS_CONFIG"},
	},
	&cli.IntFlag{
		Name:  "port",
		Usage: "HTTP port, overrides the config file",
	},
	&cli.StringFlag{
		Name:    "redis-addr",
		Usage:   "host:port of redis; enables the redis store",
		EnvVars: []string{"REDIS_ADDR"},
	},
	&cli.BoolFlag{
		Name:  "dev",
		Usage: "debug log level, console output and gin debug mode",
	},
}

func main() {
	cliApp := &cli.App{
		Name:        "voicerooms",
		Usage:       "WebRTC room signaling coordinator",
		Description: "run without subcommands to start the server",
		Flags:       baseFlags,
		Action:      startServer,
		Commands: []*cli.Command{
			{
				Name:   "ice-servers",
				Usage:  "print the ICE server list clients would receive",
				Action: printICEServers,
			},
		},
	}
	if err := cliApp.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("voicerooms exited")
	}
}

func setupLogging(dev bool) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if dev {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		return
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	setupLogging(c.Bool("dev"))
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if c.IsSet("port") {
		cfg.Port = c.Int("port")
	}
	if addr := c.String("redis-addr"); addr != "" {
		cfg.Redis.Enabled = true
		cfg.Redis.Addr = addr
	}
	if c.Bool("dev") {
		cfg.Mode = "debug"
	}
	return cfg, cfg.Validate()
}

func printICEServers(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	provider, err := ice.FromConfig(cfg.ICE)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(provider.ICEServers(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func startServer(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	ctx, cancel := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	provider, err := ice.FromConfig(cfg.ICE)
	if err != nil {
		return err
	}

	var (
		roomStore core.RoomStore
		cache     core.Cache
	)
	if cfg.Redis.Enabled {
		rc, err := store.NewRedisClient(ctx, store.RedisConfig{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err != nil {
			return err
		}
		defer rc.Close()
		roomStore, cache = store.NewRedisRoomStore(rc), store.NewRedisCache(rc)
	} else {
		log.Warn().Str("module", "main").Msg("redis disabled, room state is kept in memory")
		roomStore, cache = store.NewMemoryRoomStore(), store.NewMemoryCache()
	}

	sinks := telemetry.MultiSink{telemetry.LogSink{}}
	var gatherer prometheus.Gatherer
	if cfg.Analytics.Prometheus {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		promSink, err := telemetry.NewPrometheusSink(reg)
		if err != nil {
			return err
		}
		sinks = append(sinks, promSink)
		gatherer = reg
	}
	async := telemetry.NewAsyncSink(sinks, cfg.Analytics.Workers)
	defer async.Stop()

	rooms := app.NewRoomManager(ctx, &app.Deps{
		Store:     roomStore,
		Cache:     cache,
		Directory: store.NewDirectory(cache),
		Emitter:   telemetry.NewEmitter(async),
		ICE:       provider,
		Policy:    app.PolicyFromName(cfg.SlowConsumer),
		Options:   app.OptionsFromConfig(cfg),
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router.SetupRouter(cfg, rooms, gatherer),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("module", "main").Str("addr", addr).Str("turn", provider.TURNName()).Msg("voicerooms server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		log.Error().Err(err).Str("module", "main").Msg("server error")
		return err
	}

	log.Info().Str("module", "main").Msg("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Str("module", "main").Msg("server forced to shutdown")
	}
	if err := rooms.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Str("module", "main").Msg("rooms did not stop in time")
	}
	log.Info().Str("module", "main").Msg("server exited gracefully")
	return nil
}
