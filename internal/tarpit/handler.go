// Package tarpit implements the Tarpit Engine: the pipeline's entry
// stage, which streams a deterministically-generated fake page to
// suspected crawlers one line at a time, fires a hop check, logs a
// honeypot hit and dispatches to the Escalation Engine without ever
// blocking the response.
package tarpit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/rhamenator/antiscrape/internal/apperr"
	"github.com/rhamenator/antiscrape/internal/config"
	"github.com/rhamenator/antiscrape/internal/jsonlog"
	"github.com/rhamenator/antiscrape/internal/markov"
	"github.com/rhamenator/antiscrape/internal/metrics"
	"github.com/rhamenator/antiscrape/internal/reqmeta"
	"github.com/rhamenator/antiscrape/internal/store"
)

type Server struct {
	cfg          *config.Config
	hops         store.HopCounter
	blocklist    store.Blocklist
	flagger      store.TarpitFlagger
	generator    *markov.Generator
	registry     *metrics.Registry
	honeypotLog  *jsonlog.Writer
	httpClient   *http.Client
	router       *mux.Router
}

func NewServer(cfg *config.Config, hops store.HopCounter, blocklist store.Blocklist, flagger store.TarpitFlagger, generator *markov.Generator, registry *metrics.Registry, honeypotLog *jsonlog.Writer) *Server {
	s := &Server{
		cfg:         cfg,
		hops:        hops,
		blocklist:   blocklist,
		flagger:     flagger,
		generator:   generator,
		registry:    registry,
		honeypotLog: honeypotLog,
		httpClient:  &http.Client{Timeout: time.Duration(cfg.Tarpit.EscalationTimeoutSec * float64(time.Second))},
	}
	s.router = mux.NewRouter()
	s.router.HandleFunc("/tarpit/assets/{tail:.*}", s.handleAsset).Methods(http.MethodGet)
	s.router.HandleFunc("/tarpit/{tail:.*}", s.handleTarpit).Methods(http.MethodGet)
	s.router.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	return s
}

func (s *Server) Router() *mux.Router { return s.router }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("<!doctype html><html><body>welcome</body></html>"))
}

// handleTarpit implements the §4.4 per-request algorithm: client-IP
// derivation, hop check, honeypot logging, fire-and-forget escalation
// dispatch, and a slow line-by-line stream of a deterministic fake page.
func (s *Server) handleTarpit(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() { metrics.TarpitStreamSeconds.Observe(time.Since(start).Seconds()) }()

	ip := clientIP(r)
	normalizedPath := normalizePath("/" + mux.Vars(r)["tail"])
	requestID := uuid.New().String()

	if s.cfg.Tarpit.EnableHopCheck && s.hops != nil {
		window := time.Duration(s.cfg.Tarpit.HopWindowSec) * time.Second
		hops, err := s.hops.Hit(r.Context(), ip, window)
		if err != nil {
			s.registry.Increment("tarpit_hop_check_errors", 1)
			slog.Warn("tarpit: hop check failed", "ip", ip, "error", err, "kind", apperr.KindOf(err))
		} else if int(hops) > s.cfg.Tarpit.MaxHops {
			s.registry.Increment("tarpit_self_blocked", 1)
			s.selfBlock(r.Context(), ip, requestID)
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte("forbidden"))
			return
		}
	}

	s.logHoneypotHit(ip, r, normalizedPath, requestID)

	meta := reqmeta.Metadata{
		Timestamp: time.Now().UTC(),
		IP:        ip,
		UserAgent: r.UserAgent(),
		Referer:   r.Referer(),
		Path:      normalizedPath,
		Method:    r.Method,
		Source:    "tarpit",
		RequestID: requestID,
	}
	go s.dispatchToEscalation(meta)

	s.stream(w, r, normalizedPath)
}

func (s *Server) handleAsset(w http.ResponseWriter, r *http.Request) {
	tail := mux.Vars(r)["tail"]
	ext := extOf(tail)
	normalizedPath := normalizePath("/" + tail)
	body := s.generator.RenderAsset(r.Context(), normalizedPath, ext)
	w.Header().Set("Content-Type", contentTypeFor(ext))
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(body))
}

// stream writes the generated page one line at a time with a per-request
// delay between lines, cooperating with client cancellation via
// r.Context().Done() so an abandoned connection stops wasting a
// goroutine and a worker slot.
func (s *Server) stream(w http.ResponseWriter, r *http.Request, normalizedPath string) {
	body := s.generator.Render(r.Context(), normalizedPath)

	flusher, _ := w.(http.Flusher)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	rng := s.generator.SeedRand(normalizedPath)

	scanner := bufio.NewScanner(strings.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		select {
		case <-r.Context().Done():
			return
		default:
		}
		line := scanner.Text()
		if _, err := w.Write([]byte(line + "\n")); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
		delay := lineDelay(rng, s.cfg.Tarpit.MinDelaySec, s.cfg.Tarpit.MaxDelaySec)
		timer := time.NewTimer(delay)
		select {
		case <-r.Context().Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func lineDelay(rng *rand.Rand, min, max float64) time.Duration {
	if max <= min {
		return time.Duration(min * float64(time.Second))
	}
	span := max - min
	d := min + rng.Float64()*span
	return time.Duration(d * float64(time.Second))
}

func (s *Server) selfBlock(ctx context.Context, ip, requestID string) {
	if s.blocklist == nil {
		return
	}
	entry := store.BlockEntry{
		Reason:       "hop limit exceeded",
		TimestampUTC: time.Now().UTC().Format(time.RFC3339),
	}
	ttl := time.Duration(s.cfg.Redis.BlocklistTTLSec) * time.Second
	if _, err := s.blocklist.Write(ctx, ip, entry, ttl); err != nil {
		s.registry.Increment("tarpit_self_block_errors", 1)
		slog.Warn("tarpit: self-block write failed", "ip", ip, "request_id", requestID, "error", err)
	}
}

func (s *Server) logHoneypotHit(ip string, r *http.Request, normalizedPath, requestID string) {
	if s.flagger != nil {
		ttl := time.Duration(s.cfg.Redis.TarpitFlagTTLSec) * time.Second
		if err := s.flagger.Flag(r.Context(), ip, ttl); err != nil {
			s.registry.Increment("tarpit_flag_errors", 1)
		}
	}
	s.registry.Increment("tarpit_hits", 1)
	if s.honeypotLog != nil {
		s.honeypotLog.Append(map[string]any{
			"ip":         ip,
			"path":       normalizedPath,
			"user_agent": r.UserAgent(),
			"referer":    r.Referer(),
			"method":     r.Method,
			"request_id": requestID,
		})
	}
}

// dispatchToEscalation fire-and-forgets the request metadata to the
// Escalation Engine, carrying requestID as a correlation header.
func (s *Server) dispatchToEscalation(meta reqmeta.Metadata) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(s.cfg.Tarpit.EscalationTimeoutSec*float64(time.Second)))
	defer cancel()

	payload, err := json.Marshal(meta)
	if err != nil {
		s.registry.Increment("tarpit_escalation_dispatch_errors", 1)
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Tarpit.EscalationURL, bytes.NewReader(payload))
	if err != nil {
		s.registry.Increment("tarpit_escalation_dispatch_errors", 1)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", meta.RequestID)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.registry.Increment("tarpit_escalation_dispatch_errors", 1)
		slog.Warn("tarpit: escalation dispatch failed", "ip", meta.IP, "error", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		s.registry.Increment("tarpit_escalation_dispatch_errors", 1)
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func normalizePath(path string) string {
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		return "/" + path
	}
	for strings.HasPrefix(path, "//") {
		path = path[1:]
	}
	return path
}

func extOf(path string) string {
	idx := strings.LastIndex(path, ".")
	if idx == -1 || idx == len(path)-1 {
		return "html"
	}
	return path[idx+1:]
}

func contentTypeFor(ext string) string {
	switch ext {
	case "js":
		return "application/javascript; charset=utf-8"
	case "css":
		return "text/css; charset=utf-8"
	case "json":
		return "application/json; charset=utf-8"
	default:
		return "text/csv; charset=utf-8"
	}
}
