package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/voicerooms/internal/app"
	"github.com/dkeye/voicerooms/internal/config"
	"github.com/dkeye/voicerooms/internal/ice"
	"github.com/dkeye/voicerooms/internal/store"
	"github.com/dkeye/voicerooms/internal/telemetry"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	cfg.Mode = "test"
	cache := store.NewMemoryCache()
	ctx, cancel := context.WithCancel(context.Background())
	rooms := app.NewRoomManager(ctx, &app.Deps{
		Store:     store.NewMemoryRoomStore(),
		Cache:     cache,
		Directory: store.NewDirectory(cache),
		Emitter:   telemetry.NewEmitter(telemetry.LogSink{}),
		ICE:       ice.NewProvider(cfg.ICE.StunURLs, nil),
		Policy:    app.DropPolicy{},
		Options:   app.OptionsFromConfig(cfg),
	})

	srv := httptest.NewServer(SetupRouter(cfg, rooms, prometheus.NewRegistry()))
	t.Cleanup(func() {
		srv.Close()
		sctx, scancel := context.WithTimeout(context.Background(), time.Second)
		defer scancel()
		_ = rooms.Shutdown(sctx)
		cancel()
	})
	return srv
}

func doJSON(t *testing.T, method, url, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewBufferString(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out := map[string]any{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func dial(t *testing.T, srv *httptest.Server, room, user string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/rooms/" + room + "/ws?userId=" + user
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if conn != nil {
		t.Cleanup(func() { _ = conn.Close() })
	}
	return conn, resp, err
}

// readType reads frames until one of type typ arrives.
func readType(t *testing.T, conn *websocket.Conn, typ string) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var frame map[string]any
		require.NoError(t, conn.ReadJSON(&frame))
		if frame["type"] == typ {
			return frame
		}
	}
}

func TestRoomLifecycle(t *testing.T) {
	srv := newTestServer(t)
	base := srv.URL + "/rooms/standup"

	status, body := doJSON(t, http.MethodGet, base+"/info", "")
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, false, body["success"])

	status, body = doJSON(t, http.MethodPost, base+"/init", `{"roomType":"audio","maxParticipants":2}`)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, true, body["success"])
	require.Equal(t, "audio", body["roomType"])

	status, body = doJSON(t, http.MethodPost, base+"/init", `{"roomType":"hologram"}`)
	require.Equal(t, http.StatusBadRequest, status)
	require.Contains(t, body["error"], "roomType")

	status, body = doJSON(t, http.MethodPost, base+"/join", `{"userId":"alice","userName":"Alice"}`)
	require.Equal(t, http.StatusOK, status)
	require.Contains(t, body["websocketUrl"], "/rooms/standup/ws?userId=alice")

	status, body = doJSON(t, http.MethodPost, base+"/join", `{}`)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "userId is required", body["error"])

	status, body = doJSON(t, http.MethodPatch, base+"/metadata", `{"topic":"daily"}`)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "daily", body["topic"])

	status, body = doJSON(t, http.MethodGet, base+"/info", "")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "daily", body["metadata"].(map[string]any)["topic"])

	status, body = doJSON(t, http.MethodGet, base+"/ice-servers", "")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, float64(3600), body["ttl"])
	require.NotEmpty(t, body["iceServers"])

	status, _ = doJSON(t, http.MethodGet, srv.URL+"/rooms/bad%20id/info", "")
	require.Equal(t, http.StatusBadRequest, status)

	status, body = doJSON(t, http.MethodGet, srv.URL+"/healthz", "")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "ok", body["status"])
}

func TestWebSocketSignaling(t *testing.T) {
	srv := newTestServer(t)
	base := srv.URL + "/rooms/call"

	status, _ := doJSON(t, http.MethodPost, base+"/init", `{"maxParticipants":2}`)
	require.Equal(t, http.StatusOK, status)

	status, body := doJSON(t, http.MethodGet, base+"/ws", "")
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "userId is required", body["error"])

	status, _ = doJSON(t, http.MethodGet, base+"/ws?userId=alice", "")
	require.Equal(t, http.StatusUpgradeRequired, status)

	alice, _, err := dial(t, srv, "call", "alice")
	require.NoError(t, err)
	connected := readType(t, alice, "connected")
	require.Equal(t, "alice", connected["data"].(map[string]any)["userId"])

	bob, _, err := dial(t, srv, "call", "bob")
	require.NoError(t, err)
	readType(t, bob, "connected")
	joined := readType(t, alice, "participant-joined")
	require.Equal(t, "bob", joined["data"].(map[string]any)["participant"].(map[string]any)["id"])

	_, resp, err := dial(t, srv, "call", "carol")
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	require.NoError(t, alice.WriteJSON(map[string]any{
		"type": "offer",
		"data": map[string]any{"to": "bob", "sdp": "v=0"},
	}))
	offer := readType(t, bob, "offer")
	require.Equal(t, "alice", offer["from"])
	require.Equal(t, "v=0", offer["data"].(map[string]any)["sdp"])

	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte("{oops")))
	errFrame := readType(t, alice, "error")
	require.Equal(t, "invalid JSON", errFrame["data"].(map[string]any)["message"])

	status, body = doJSON(t, http.MethodPatch, base+"/settings", `{"allowScreenShare":false}`)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, false, body["allowScreenShare"])
	for _, conn := range []*websocket.Conn{alice, bob} {
		update := readType(t, conn, "settings-updated")
		require.Equal(t, false, update["data"].(map[string]any)["settings"].(map[string]any)["allowScreenShare"])
	}

	status, body = doJSON(t, http.MethodGet, base+"/metrics", "")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, float64(2), body["currentParticipants"])

	status, _ = doJSON(t, http.MethodPost, base+"/leave", `{"userId":"bob"}`)
	require.Equal(t, http.StatusOK, status)
	left := readType(t, alice, "participant-left")
	require.Equal(t, "bob", left["data"].(map[string]any)["userId"])

	require.NoError(t, bob.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		if _, _, err := bob.ReadMessage(); err != nil {
			require.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
			break
		}
	}
}

func TestPrometheusEndpoint(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get(RequestIDHeader))
}
