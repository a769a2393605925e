// Package signal carries room frames over WebSocket.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicerooms/internal/app"
	"github.com/dkeye/voicerooms/internal/config"
	"github.com/dkeye/voicerooms/internal/core"
	"github.com/dkeye/voicerooms/internal/domain"
	"github.com/dkeye/voicerooms/internal/telemetry"
)

var ErrConnClosed = errors.New("connection closed")

const writeWait = 5 * time.Second

// WsSignalConn is the room side of one WebSocket. Frames are queued on send
// and written by the write pump, so TrySend never blocks.
type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu          sync.RWMutex
	closed      bool
	closeCode   int
	closeReason string
}

func newWsSignalConn(ws *websocket.Conn, buffer int) *WsSignalConn {
	if buffer <= 0 {
		buffer = 32
	}
	return &WsSignalConn{conn: ws, send: make(chan core.Frame, buffer)}
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

// Close flushes queued frames, then sends a close frame with code.
func (c *WsSignalConn) Close(code int, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.closeCode = code
	c.closeReason = reason
	close(c.send)
}

func (c *WsSignalConn) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

func (c *WsSignalConn) closeMessage() []byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return websocket.FormatCloseMessage(c.closeCode, c.closeReason)
}

// SignalWSController upgrades HTTP requests into room connections.
type SignalWSController struct {
	rooms    *app.RoomManager
	conf     *config.Config
	upgrader websocket.Upgrader
}

func NewSignalWSController(rooms *app.RoomManager, conf *config.Config) *SignalWSController {
	return &SignalWSController{
		rooms: rooms,
		conf:  conf,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// HandleSignal validates the identity before anything is upgraded. A full
// room is answered with 400 and the client never gets a socket.
func (ctl *SignalWSController) HandleSignal(c *gin.Context, roomID domain.RoomID) {
	identity, err := domain.NewConnectionIdentity(c.Query("userId"), c.Query("userName"), time.Now())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	if !websocket.IsWebSocketUpgrade(c.Request) {
		c.JSON(http.StatusUpgradeRequired, gin.H{"success": false, "error": "expected websocket upgrade"})
		return
	}

	var (
		room   *app.Room
		conn   *WsSignalConn
		connID core.ConnID
	)
	err = ctl.rooms.With(roomID, func(r *app.Room) error {
		room = r
		id, err := r.Accept(context.Background(), identity, func() (core.SignalConnection, error) {
			ws, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
			if err != nil {
				return nil, err
			}
			conn = newWsSignalConn(ws, ctl.conf.SendBuffer)
			return conn, nil
		})
		connID = id
		return err
	})
	if err != nil {
		if conn != nil {
			// upgraded but the room went away
			_ = conn.conn.Close()
			return
		}
		if errors.Is(err, domain.ErrRoomFull) {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
			return
		}
		// a failed upgrade has already answered the client
		if !c.Writer.Written() {
			log.Error().Err(err).Str("module", "signal").Str("room", string(roomID)).Msg("accept failed")
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal error"})
		}
		return
	}

	telemetry.ConnectionOpened()
	log.Info().Str("module", "signal").Str("room", string(roomID)).Str("user", string(identity.UserID)).Str("conn", string(connID)).Msg("new WS connection")
	go ctl.writePump(conn)
	go ctl.readPump(room, connID, conn)
}
