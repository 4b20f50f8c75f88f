package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// Config tunes the HTTP server.
type Config struct {
	Addr string

	// ObserveHTTP, if set, receives the route template and duration of
	// every handled request.
	ObserveHTTP func(route string, d time.Duration)
}

// Server is the public HTTP surface: the REST query layer and the
// WebSocket upgrade route.
type Server struct {
	srv *http.Server
	log zerolog.Logger
}

// NewServer builds the router with the shared middleware chain. ws
// handles GET /ws; pass the gateway's upgrade handler.
func NewServer(cfg Config, h *Handlers, ws http.HandlerFunc, log zerolog.Logger) *Server {
	log = log.With().Str("component", "http").Logger()

	r := mux.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(log, cfg.ObserveHTTP))
	r.Use(corsMiddleware)

	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.HandleFunc("/symbols", h.Symbols).Methods(http.MethodGet)
	r.HandleFunc("/candles", h.Candles).Methods(http.MethodGet)
	r.HandleFunc("/orderbook", h.OrderBook).Methods(http.MethodGet)
	r.HandleFunc("/price", h.Price).Methods(http.MethodGet)
	r.HandleFunc("/ws", ws).Methods(http.MethodGet)

	return &Server{
		srv: &http.Server{
			Addr:              cfg.Addr,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: log,
	}
}

// Run blocks serving requests until Shutdown is called.
func (s *Server) Run() error {
	s.log.Info().Str("addr", s.srv.Addr).Msg("api server listening")
	if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, reason string) {
	writeJSON(w, status, map[string]string{"error": reason})
}
