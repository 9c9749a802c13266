// Package sink implements the Webhook Sink: the pipeline's terminal
// stage, which turns an Escalation Engine verdict (or any other
// /analyze caller) into a blocklist write, an optional community
// report, and an independent alert dispatch.
//
// Grounded on the donor API server's handler-method-per-route layout
// (internal/api/server.go) and its webhook dispatcher's "never let a
// delivery failure surface to the caller" posture.
package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/rhamenator/antiscrape/internal/apperr"
	"github.com/rhamenator/antiscrape/internal/config"
	"github.com/rhamenator/antiscrape/internal/jsonlog"
	"github.com/rhamenator/antiscrape/internal/metrics"
	"github.com/rhamenator/antiscrape/internal/reqmeta"
	"github.com/rhamenator/antiscrape/internal/store"
	"github.com/rhamenator/antiscrape/internal/webhook"
)

type Server struct {
	cfg         *config.Config
	blocklist   store.Blocklist
	dispatcher  *webhook.Dispatcher
	registry    *metrics.Registry
	blockLog    *jsonlog.Writer
	communityLog *jsonlog.Writer
	httpClient  *http.Client
	router      *mux.Router
}

func NewServer(cfg *config.Config, blocklist store.Blocklist, dispatcher *webhook.Dispatcher, registry *metrics.Registry, blockLog, communityLog *jsonlog.Writer) *Server {
	s := &Server{
		cfg:          cfg,
		blocklist:    blocklist,
		dispatcher:   dispatcher,
		registry:     registry,
		blockLog:     blockLog,
		communityLog: communityLog,
		httpClient:   &http.Client{Timeout: time.Duration(cfg.Webhook.CommunityReportTimeoutSec * float64(time.Second))},
	}
	s.router = mux.NewRouter()
	s.router.HandleFunc("/analyze", s.handleAnalyze).Methods(http.MethodPost)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	return s
}

func (s *Server) Router() *mux.Router { return s.router }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// handleAnalyze implements the Webhook Sink's sole business endpoint.
// It always responds 200 to the caller once request parsing succeeds —
// store/dispatch failures degrade gracefully per the error-kind taxonomy
// and are never surfaced as a non-2xx status.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req reqmeta.AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.registry.Increment("analyze_bad_request", 1)
		writeJSON(w, http.StatusUnprocessableEntity, reqmeta.AnalyzeResponse{Status: "error", ActionTaken: "none"})
		return
	}

	s.registry.Increment("analyze_received", 1)
	ctx := r.Context()

	ip := req.Details.IP
	if ip == "" {
		s.registry.Increment("blocklist_skipped_unknown_ip", 1)
		slog.Info("sink: skipping analyze request with unknown ip", "event_type", req.EventType, "reason", req.Reason)
		writeJSON(w, http.StatusOK, reqmeta.AnalyzeResponse{
			Status:      "received",
			ActionTaken: "blocklist_skipped_unknown_ip",
		})
		return
	}

	actionTaken := "none"
	if webhook.IsAutoBlockReason(req.Reason) {
		entry := store.BlockEntry{
			Reason:       req.Reason,
			TimestampUTC: req.TimestampUTC,
			UserAgent:    req.Details.UserAgent,
		}
		ttl := time.Duration(s.cfg.Redis.BlocklistTTLSec) * time.Second
		created, err := s.blocklist.Write(ctx, ip, entry, ttl)
		if err != nil {
			s.registry.Increment("blocklist_write_errors", 1)
			slog.Warn("sink: blocklist write failed", "ip", ip, "error", err, "kind", apperr.KindOf(err))
			actionTaken = "block_write_failed"
		} else {
			actionTaken = "blocked"
			if s.blockLog != nil {
				s.blockLog.Append(map[string]any{
					"ip":         ip,
					"reason":     req.Reason,
					"user_agent": req.Details.UserAgent,
					"new_entry":  created,
				})
			}
			s.registry.Increment("ips_blocked", 1)
		}
	}

	if s.cfg.Webhook.EnableCommunityReporting {
		go s.reportCommunity(ip, req.Reason, req.Details.UserAgent)
	}

	if s.dispatcher != nil {
		s.dispatcher.Dispatch(req.Reason, reasonMessage(req), ip)
	}

	writeJSON(w, http.StatusOK, reqmeta.AnalyzeResponse{
		Status:      "received",
		ActionTaken: actionTaken,
		IPProcessed: ip,
	})
}

func reasonMessage(req reqmeta.AnalyzeRequest) string {
	return req.EventType + ": " + req.Reason
}

// reportCommunity fire-and-forgets a community block report. Failures
// are logged and counted, never retried inline.
func (s *Server) reportCommunity(ip, reason, userAgent string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(s.cfg.Webhook.CommunityReportTimeoutSec*float64(time.Second)))
	defer cancel()

	payload, err := json.Marshal(map[string]string{
		"ip":         ip,
		"reason":     reason,
		"user_agent": userAgent,
	})
	if err != nil {
		s.registry.Increment("community_report_errors", 1)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Webhook.CommunityReportURL, bytes.NewReader(payload))
	if err != nil {
		s.registry.Increment("community_report_errors", 1)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.registry.Increment("community_report_errors", 1)
		slog.Warn("sink: community report failed", "ip", ip, "error", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		s.registry.Increment("community_report_errors", 1)
		return
	}
	s.registry.Increment("community_reports_sent", 1)
	if s.communityLog != nil {
		s.communityLog.Append(map[string]any{"ip": ip, "reason": reason, "user_agent": userAgent})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
