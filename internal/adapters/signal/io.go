package signal

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicerooms/internal/app"
	"github.com/dkeye/voicerooms/internal/core"
	"github.com/dkeye/voicerooms/internal/domain"
	"github.com/dkeye/voicerooms/internal/telemetry"
)

func (ctl *SignalWSController) writePump(c *WsSignalConn) {
	ticker := time.NewTicker(ctl.pingPeriod())
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, c.closeMessage())
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Debug().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := ctl.ping(c); err != nil {
				log.Debug().Err(err).Str("module", "signal").Msg("writePump ping failed")
				return
			}
		}
	}
}

// readPump feeds frames to the room until the socket fails. Every exit path
// ends in exactly one Disconnect.
func (ctl *SignalWSController) readPump(room *app.Room, id core.ConnID, c *WsSignalConn) {
	var cause error
	defer func() {
		c.Close(websocket.CloseNormalClosure, "")
		if err := room.Disconnect(context.Background(), id, cause); err != nil && !errors.Is(err, domain.ErrRoomClosed) {
			log.Error().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("disconnect failed")
		}
		telemetry.ConnectionClosed()
		log.Info().Str("module", "signal").Str("conn", string(id)).Msg("readPump closing")
	}()

	ctl.keepalive(c)
	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			if !c.isClosed() && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				cause = err
				log.Warn().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("readPump read error")
			}
			return
		}
		if mt != websocket.TextMessage {
			log.Debug().Str("module", "signal").Str("conn", string(id)).Msg("ignored binary frame")
			continue
		}
		err = room.HandleFrame(context.Background(), id, data)
		switch {
		case err == nil:
		case errors.Is(err, app.ErrIdentityLost):
			log.Warn().Str("module", "signal").Str("conn", string(id)).Msg("frame from unknown connection")
			c.Close(websocket.ClosePolicyViolation, "identity lost")
			return
		case errors.Is(err, domain.ErrRoomClosed):
			return
		default:
			log.Error().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("handle frame")
		}
	}
}
