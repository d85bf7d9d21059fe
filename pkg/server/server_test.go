package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nftmint/pkg/app"
	"nftmint/pkg/config"
	"nftmint/pkg/events"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer() *Server {
	return NewServer(app.NewWithProvider(config.Default(), nil))
}

func TestHandleStatus(t *testing.T) {
	s := newTestServer()

	req, _ := http.NewRequest("GET", "/api/status", nil)
	rr := httptest.NewRecorder()

	s.mux.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var resp map[string]interface{}
	err := json.Unmarshal(rr.Body.Bytes(), &resp)
	assert.NoError(t, err)
	assert.Contains(t, resp, "status")
	assert.Contains(t, resp, "gallery")

	status := resp["status"].(map[string]interface{})
	sess := status["session"].(map[string]interface{})
	assert.Equal(t, "disconnected", sess["status"])
	assert.Equal(t, common.HexToAddress(config.DefaultContractAddress).Hex(), status["contract"])
}

func TestHandleConnect_NoWallet(t *testing.T) {
	s := newTestServer()

	req, _ := http.NewRequest("POST", "/api/connect", nil)
	rr := httptest.NewRecorder()
	s.mux.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Contains(t, resp["message"], "No wallet")
}

func TestHandleMint_NotConnected(t *testing.T) {
	s := newTestServer()

	req, _ := http.NewRequest("POST", "/api/mint?slot=3", nil)
	rr := httptest.NewRecorder()
	s.mux.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), "Connect your wallet first")
}

func TestHandlers_RequirePost(t *testing.T) {
	s := newTestServer()
	for _, path := range []string{"/api/connect", "/api/disconnect", "/api/mint"} {
		req, _ := http.NewRequest("GET", path, nil)
		rr := httptest.NewRecorder()
		s.mux.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusMethodNotAllowed, rr.Code, path)
	}
}

func TestHandleDisconnect(t *testing.T) {
	s := newTestServer()

	req, _ := http.NewRequest("POST", "/api/disconnect", nil)
	rr := httptest.NewRecorder()
	s.mux.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"connected":false`)
}

func TestHandleWS(t *testing.T) {
	s := newTestServer()
	server := httptest.NewServer(s.mux)
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.listenToHub(ctx)

	u := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"

	ws, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	defer func() { _ = ws.Close() }()

	// Read initial state
	var msg map[string]interface{}
	err = ws.ReadJSON(&msg)
	assert.NoError(t, err)
	assert.Equal(t, "initial", msg["type"])

	// Give listenToHub time to subscribe before publishing.
	time.Sleep(20 * time.Millisecond)
	s.app.Hub().Publish(events.Event{Type: events.EventNotice, Data: events.Notice{Level: events.LevelInfo, Text: "hello"}})

	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev map[string]interface{}
	require.NoError(t, ws.ReadJSON(&ev))
	assert.Equal(t, "notice", ev["type"])
	assert.Equal(t, "hello", ev["data"].(map[string]interface{})["text"])
}
