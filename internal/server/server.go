// Package server exposes Jack over HTTP.
//
// The surface is small: the WhatsApp gateway POSTs inbound messages to
// /converse and relays the reply, operators can attach an interactive console
// over /ws, and the usual /healthz, /readyz and /metrics endpoints serve the
// deployment. All session state lives behind the orchestrator; handlers here
// are stateless.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tinredperu/jack/internal/dialog/orchestrator"
	"github.com/tinredperu/jack/internal/health"
	"github.com/tinredperu/jack/internal/observe"
)

// maxBodyBytes caps inbound request bodies. Voice notes arrive base64-encoded
// inside the JSON payload, so the limit must hold a multi-minute OGG clip.
const maxBodyBytes = 16 << 20

// Converser handles one inbound message and returns the reply text. It is
// satisfied by [*orchestrator.Orchestrator].
type Converser interface {
	Handle(ctx context.Context, req orchestrator.Request) (string, error)
}

// Server wires the HTTP routes. Build one with [New] and mount [Server.Handler]
// on an [http.Server].
type Server struct {
	conv    Converser
	health  *health.Handler
	metrics *observe.Metrics
}

// Option configures a [Server].
type Option func(*Server)

// WithHealth sets the health handler serving /healthz and /readyz. Without it
// only the liveness default is mounted.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetrics overrides the metrics sink (default [observe.DefaultMetrics]).
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// New creates a Server around the given conversation handler.
func New(conv Converser, opts ...Option) *Server {
	s := &Server{
		conv:    conv,
		metrics: observe.DefaultMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.health == nil {
		s.health = health.New()
	}
	return s
}

// Handler returns the fully routed handler, wrapped in the observability
// middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /converse", s.handleConverse)
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.Handle("GET /metrics", promhttp.Handler())
	s.health.Register(mux)
	return observe.Middleware(s.metrics)(mux)
}

// converseRequest is the gateway payload for one inbound message. Audio is the
// raw voice note (OGG/Opus), base64-encoded on the wire by encoding/json.
type converseRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
	Audio   []byte `json:"audio,omitempty"`
}

type converseResponse struct {
	Reply string `json:"reply"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleConverse(w http.ResponseWriter, r *http.Request) {
	var req converseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if req.Phone == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "phone is required"})
		return
	}

	reply, err := s.conv.Handle(r.Context(), orchestrator.Request{
		Phone: req.Phone,
		Text:  req.Message,
		Audio: req.Audio,
	})
	if err != nil {
		slog.Error("server: converse failed", "phone", req.Phone, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}

	writeJSON(w, http.StatusOK, converseResponse{Reply: reply})
}

// ─────────────────────────────────────────────────────────────────────────────
// Internal helpers
// ─────────────────────────────────────────────────────────────────────────────

// decodeJSON decodes a single JSON document from the request body, rejecting
// unknown fields and trailing garbage.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.New("malformed JSON body")
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("unexpected data after JSON body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("server: encode response", "error", err)
	}
}
