package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicerooms/internal/adapters/signal"
	"github.com/dkeye/voicerooms/internal/app"
	"github.com/dkeye/voicerooms/internal/config"
	"github.com/dkeye/voicerooms/internal/telemetry"
)

const RequestIDHeader = "X-Request-ID"

// RequestIDMiddleware keeps an incoming request id or mints one.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// SetupRouter wires the room control surface. gatherer may be nil when
// Prometheus is disabled.
func SetupRouter(cfg *config.Config, rooms *app.RoomManager, gatherer prometheus.Gatherer) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())

	h := &RoomHandlers{rooms: rooms, ws: signal.NewSignalWSController(rooms, cfg)}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"rooms":       telemetry.LiveRooms(),
			"connections": telemetry.LiveConnections(),
		})
	})
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group("/rooms")
	api.GET("", h.list)

	room := api.Group("/:roomId", h.roomID)
	room.POST("/init", h.initRoom)
	room.POST("/join", h.join)
	room.POST("/leave", h.leave)
	room.GET("/info", h.info)
	room.GET("/settings", h.settings)
	room.PATCH("/settings", h.updateSettings)
	room.PATCH("/metadata", h.updateMetadata)
	room.POST("/metadata", h.updateMetadata)
	room.GET("/ice-servers", h.iceServers)
	room.GET("/metrics", h.metrics)
	room.GET("/ws", h.websocket)

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Bool("prometheus", gatherer != nil).Msg("router setup")
	return r
}
