package signal

import (
	"time"

	"github.com/gorilla/websocket"
)

const (
	pingPeriodDefault = 54 * time.Second
	pongWaitDefault   = 60 * time.Second
)

func (ctl *SignalWSController) pingPeriod() time.Duration {
	if ctl.conf.PingPeriod > 0 {
		return ctl.conf.PingPeriod
	}
	return pingPeriodDefault
}

func (ctl *SignalWSController) pongWait() time.Duration {
	if ctl.conf.PongWait > 0 {
		return ctl.conf.PongWait
	}
	return pongWaitDefault
}

// keepalive arms the read deadline, which every pong pushes forward.
func (ctl *SignalWSController) keepalive(c *WsSignalConn) {
	if ctl.conf.ReadLimit > 0 {
		c.conn.SetReadLimit(ctl.conf.ReadLimit)
	}
	wait := ctl.pongWait()
	_ = c.conn.SetReadDeadline(time.Now().Add(wait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wait))
	})
}

func (ctl *SignalWSController) ping(c *WsSignalConn) error {
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}
