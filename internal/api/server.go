// Package api serves the operational HTTP surface: health and version
// endpoints, the alert task listing, and a WebSocket stream of
// operational events.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"finagent/internal/alerts"
	"finagent/internal/buildinfo"
	"finagent/internal/config"
	"finagent/internal/events"
)

// eventBufSize is the per-subscriber channel buffer. A slow WebSocket
// client misses events rather than blocking publishers.
const eventBufSize = 64

// writeJSON encodes v as JSON to w. Errors here typically mean the
// client disconnected mid-response.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Server is the operational HTTP server.
type Server struct {
	cfg    config.ListenConfig
	bus    *events.Bus
	tasks  *alerts.Store
	logger *slog.Logger
	server *http.Server

	upgrader websocket.Upgrader
}

// NewServer creates a server over the given event bus and task store.
func NewServer(cfg config.ListenConfig, bus *events.Bus, tasks *alerts.Store, logger *slog.Logger) *Server {
	return &Server{
		cfg:    cfg,
		bus:    bus,
		tasks:  tasks,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

// Start begins serving HTTP requests and blocks until the listener
// fails or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /v1/version", s.handleVersion)
	mux.HandleFunc("GET /v1/alerts", s.handleAlerts)
	mux.HandleFunc("GET /v1/events", s.handleEvents)

	s.server = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", s.cfg.Address, s.cfg.Port),
		Handler:     s.withLogging(mux),
		ReadTimeout: 30 * time.Second,
	}

	addr := s.cfg.Address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting events API server", "address", addr, "port", s.cfg.Port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status":      "ok",
		"uptime_sec":  int(buildinfo.Uptime().Seconds()),
		"subscribers": s.bus.SubscriberCount(),
	}, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, buildinfo.Info(), s.logger)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.tasks.List()
	if err != nil {
		s.logger.Error("alert list failed", "error", err)
		http.Error(w, "alert store unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"alerts": tasks}, s.logger)
}

// handleEvents upgrades to WebSocket and relays bus events as JSON
// frames until the client disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ch := s.bus.Subscribe(eventBufSize)
	defer s.bus.Unsubscribe(ch)
	s.logger.Info("event stream client connected", "remote", r.RemoteAddr)

	// Reader goroutine: we never expect client frames, but reading is
	// required to notice disconnects and answer pings.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			s.logger.Info("event stream client disconnected", "remote", r.RemoteAddr)
			return
		case <-r.Context().Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				s.logger.Debug("event write failed", "remote", r.RemoteAddr, "error", err)
				return
			}
		}
	}
}
