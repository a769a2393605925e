package signal

import (
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/voicerooms/internal/config"
	"github.com/dkeye/voicerooms/internal/core"
)

func TestWsSignalConnQueue(t *testing.T) {
	c := newWsSignalConn(nil, 1)
	require.NoError(t, c.TrySend(core.Frame(`{"type":"pong"}`)))
	require.ErrorIs(t, c.TrySend(core.Frame(`{"type":"pong"}`)), core.ErrBackpressure)

	c.Close(websocket.ClosePolicyViolation, "slow consumer")
	c.Close(websocket.CloseNormalClosure, "")
	require.True(t, c.isClosed())
	require.ErrorIs(t, c.TrySend(core.Frame(`{}`)), ErrConnClosed)
	require.Equal(t, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "slow consumer"), c.closeMessage())

	// queued frames are still drained by the write pump
	f, ok := <-c.send
	require.True(t, ok)
	require.Equal(t, core.Frame(`{"type":"pong"}`), f)
	_, ok = <-c.send
	require.False(t, ok)
}

func TestKeepaliveDefaults(t *testing.T) {
	ctl := NewSignalWSController(nil, &config.Config{})
	require.Equal(t, pingPeriodDefault, ctl.pingPeriod())
	require.Equal(t, pongWaitDefault, ctl.pongWait())

	conf := config.Default()
	ctl = NewSignalWSController(nil, conf)
	require.Equal(t, conf.PingPeriod, ctl.pingPeriod())
	require.Less(t, ctl.pingPeriod(), ctl.pongWait())
}
