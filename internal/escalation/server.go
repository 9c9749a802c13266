package escalation

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/rhamenator/antiscrape/internal/config"
	"github.com/rhamenator/antiscrape/internal/metrics"
	"github.com/rhamenator/antiscrape/internal/reqmeta"
)

type Server struct {
	cfg        *config.Config
	engine     *Engine
	registry   *metrics.Registry
	httpClient *http.Client
	router     *mux.Router
}

func NewServer(cfg *config.Config, engine *Engine, registry *metrics.Registry) *Server {
	s := &Server{
		cfg:        cfg,
		engine:     engine,
		registry:   registry,
		httpClient: &http.Client{Timeout: time.Duration(cfg.Escalation.WebhookTimeoutSec * float64(time.Second))},
	}
	s.router = mux.NewRouter()
	s.router.HandleFunc("/escalate", s.handleEscalate).Methods(http.MethodPost)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)
	s.router.Handle("/metrics/prom", metrics.Handler()).Methods(http.MethodGet)
	return s
}

// handleMetrics serves the counter-registry JSON snapshot on the canonical
// path; Prometheus exposition lives on /metrics/prom to avoid colliding
// with this contract.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.registry.Snapshot())
}

func (s *Server) Router() *mux.Router { return s.router }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleEscalate(w http.ResponseWriter, r *http.Request) {
	var meta reqmeta.Metadata
	if err := json.NewDecoder(r.Body).Decode(&meta); err != nil {
		s.registry.Increment("escalate_bad_request", 1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{"status": "error", "detail": "invalid metadata"})
		return
	}
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now().UTC()
	}

	s.registry.Increment("escalate_received", 1)
	verdict := s.engine.Evaluate(r.Context(), meta)

	if verdict.Action == reqmeta.ActionBlock {
		go s.dispatchToSink(meta, verdict)
	}

	resp := reqmeta.EscalateResponse{
		Status:        "evaluated",
		Action:        verdict.Action,
		IsBotDecision: verdict.IsBot,
		Score:         verdict.Score,
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

// dispatchToSink fire-and-forgets the verdict to the Webhook Sink,
// carrying the request's correlation ID if present.
func (s *Server) dispatchToSink(meta reqmeta.Metadata, verdict reqmeta.Verdict) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(s.cfg.Escalation.WebhookTimeoutSec*float64(time.Second)))
	defer cancel()

	body := reqmeta.AnalyzeRequest{
		EventType:    "escalation_verdict",
		Reason:       verdict.Reason,
		TimestampUTC: time.Now().UTC().Format(time.RFC3339),
		Details: reqmeta.AnalyzeDetails{
			IP:        meta.IP,
			UserAgent: meta.UserAgent,
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		s.registry.Increment("escalation_sink_dispatch_errors", 1)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Escalation.WebhookSinkURL, bytes.NewReader(payload))
	if err != nil {
		s.registry.Increment("escalation_sink_dispatch_errors", 1)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if meta.RequestID != "" {
		req.Header.Set("X-Request-ID", meta.RequestID)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.registry.Increment("escalation_sink_dispatch_errors", 1)
		slog.Warn("escalation: sink dispatch failed", "ip", meta.IP, "error", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		s.registry.Increment("escalation_sink_dispatch_errors", 1)
	}
}
