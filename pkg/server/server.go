package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"nftmint/pkg/app"
	"nftmint/pkg/events"
	"nftmint/pkg/mint"
	"nftmint/pkg/network"
	"nftmint/pkg/session"
	"nftmint/pkg/wallet"

	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// requestTimeout bounds connect and mint calls made through the API. Minting
// waits for the receipt, so it is generous.
var requestTimeout = 5 * time.Minute

type Server struct {
	app     *app.App
	clients map[*websocket.Conn]bool
	mu      sync.Mutex
	mux     *http.ServeMux
}

func NewServer(a *app.App) *Server {
	s := &Server{
		app:     a,
		clients: make(map[*websocket.Conn]bool),
		mux:     http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/status", s.handleStatus)
	s.mux.HandleFunc("/api/gallery", s.handleGallery)
	s.mux.HandleFunc("/api/connect", s.handleConnect)
	s.mux.HandleFunc("/api/disconnect", s.handleDisconnect)
	s.mux.HandleFunc("/api/mint", s.handleMint)
	s.mux.HandleFunc("/ws", s.handleWS)
}

func (s *Server) Start(ctx context.Context, port int) error {
	go s.listenToHub(ctx)

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: s.mux}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	log.Info("API server listening", "port", port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) state() map[string]interface{} {
	return map[string]interface{}{
		"status":   s.app.Snapshot(),
		"gallery":  s.app.Gallery(),
		"gateways": s.app.GatewayStatus(),
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]interface{}{
		"error":   err.Error(),
		"message": app.Notice(err),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, wallet.ErrWalletUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, session.ErrPermissionRejected):
		return http.StatusForbidden
	case errors.Is(err, mint.ErrNotConnected):
		return http.StatusUnauthorized
	case errors.Is(err, network.ErrNetworkMismatch), errors.Is(err, session.ErrSessionReset), errors.Is(err, session.ErrDisconnected), errors.Is(err, app.ErrMintInProgress):
		return http.StatusConflict
	}
	return http.StatusBadGateway
}

func requirePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state())
}

func (s *Server) handleGallery(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.app.Gallery())
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	if err := s.app.Connect(ctx); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.app.Snapshot())
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	s.app.Disconnect()
	writeJSON(w, http.StatusOK, s.app.Snapshot())
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	slot, _ := strconv.Atoi(r.URL.Query().Get("slot"))
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	res, err := s.app.Mint(ctx, slot)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"result":  res,
		"tx_url":  s.app.TxURL(res.TxHash),
		"message": "Minted",
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	s.mu.Lock()
	s.clients[conn] = true
	// Send initial state
	err = conn.WriteJSON(map[string]interface{}{
		"type": "initial",
		"data": s.state(),
	})
	s.mu.Unlock()
	if err != nil {
		return
	}

	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (s *Server) listenToHub(ctx context.Context) {
	sub := s.app.Hub().Subscribe()
	defer s.app.Hub().Unsubscribe(sub)

	for {
		select {
		case event, ok := <-sub:
			if !ok {
				return
			}
			s.broadcast(event)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) broadcast(event events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for client := range s.clients {
		if err := client.WriteJSON(event); err != nil {
			_ = client.Close()
			delete(s.clients, client)
		}
	}
}
