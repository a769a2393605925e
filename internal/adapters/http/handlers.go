package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicerooms/internal/adapters/signal"
	"github.com/dkeye/voicerooms/internal/app"
	"github.com/dkeye/voicerooms/internal/domain"
)

const roomIDKey = "room_id"

type RoomHandlers struct {
	rooms *app.RoomManager
	ws    *signal.SignalWSController
}

type LeaveRequest struct {
	UserID string `json:"userId"`
}

func (h *RoomHandlers) roomID(c *gin.Context) {
	id, err := domain.ValidateRoomID(c.Param("roomId"))
	if err != nil {
		writeError(c, err)
		c.Abort()
		return
	}
	c.Set(roomIDKey, id)
	c.Next()
}

func currentRoom(c *gin.Context) domain.RoomID {
	return c.MustGet(roomIDKey).(domain.RoomID)
}

// bindJSON treats an empty body as an empty request.
func bindJSON(c *gin.Context, v any) error {
	if err := c.ShouldBindJSON(v); err != nil && !errors.Is(err, io.EOF) {
		return domain.NewValidationError("", "invalid JSON body")
	}
	return nil
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"
	switch {
	case errors.Is(err, domain.ErrRoomFull), domain.IsValidation(err):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrRoomNotFound):
		status, msg = http.StatusNotFound, err.Error()
	default:
		log.Error().Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Str("request_id", c.GetString("request_id")).Msg("request failed")
	}
	c.JSON(status, gin.H{"success": false, "error": msg})
}

func (h *RoomHandlers) list(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": h.rooms.List()})
}

func (h *RoomHandlers) initRoom(c *gin.Context) {
	var req app.InitRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(c, err)
		return
	}
	var res app.InitResult
	err := h.rooms.With(currentRoom(c), func(r *app.Room) (err error) {
		res, err = r.Init(c.Request.Context(), req)
		return err
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *RoomHandlers) join(c *gin.Context) {
	var req app.JoinRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(c, err)
		return
	}
	var res app.JoinResult
	err := h.rooms.With(currentRoom(c), func(r *app.Room) (err error) {
		res, err = r.Join(c.Request.Context(), req)
		return err
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *RoomHandlers) leave(c *gin.Context) {
	var req LeaveRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(c, err)
		return
	}
	err := h.rooms.With(currentRoom(c), func(r *app.Room) error {
		return r.Leave(c.Request.Context(), req.UserID)
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *RoomHandlers) info(c *gin.Context) {
	var room *domain.Room
	err := h.rooms.With(currentRoom(c), func(r *app.Room) (err error) {
		room, err = r.Info(c.Request.Context())
		return err
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

func (h *RoomHandlers) settings(c *gin.Context) {
	var s domain.RoomSettings
	err := h.rooms.With(currentRoom(c), func(r *app.Room) (err error) {
		s, err = r.Settings(c.Request.Context())
		return err
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *RoomHandlers) updateSettings(c *gin.Context) {
	patch := map[string]json.RawMessage{}
	if err := bindJSON(c, &patch); err != nil {
		writeError(c, err)
		return
	}
	var s domain.RoomSettings
	err := h.rooms.With(currentRoom(c), func(r *app.Room) (err error) {
		s, err = r.UpdateSettings(c.Request.Context(), patch)
		return err
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *RoomHandlers) updateMetadata(c *gin.Context) {
	patch := map[string]any{}
	if err := bindJSON(c, &patch); err != nil {
		writeError(c, err)
		return
	}
	var md map[string]any
	err := h.rooms.With(currentRoom(c), func(r *app.Room) (err error) {
		md, err = r.UpdateMetadata(c.Request.Context(), patch)
		return err
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, md)
}

func (h *RoomHandlers) iceServers(c *gin.Context) {
	c.JSON(http.StatusOK, h.rooms.ICEServers())
}

func (h *RoomHandlers) metrics(c *gin.Context) {
	var res app.MetricsResult
	err := h.rooms.With(currentRoom(c), func(r *app.Room) (err error) {
		res, err = r.Metrics(c.Request.Context())
		return err
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *RoomHandlers) websocket(c *gin.Context) {
	h.ws.HandleSignal(c, currentRoom(c))
}
