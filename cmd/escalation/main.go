package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rhamenator/antiscrape/internal/config"
	"github.com/rhamenator/antiscrape/internal/escalation"
	"github.com/rhamenator/antiscrape/internal/metrics"
	"github.com/rhamenator/antiscrape/internal/robots"
	"github.com/rhamenator/antiscrape/internal/store"
)

func main() {
	cfg := config.Get()
	port := cfg.GetPort()

	var freqTracker store.FrequencyTracker
	var reputationCache store.ReputationCache
	if cfg.Redis.Enabled {
		freqClient, err := store.Dial(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DBFreq)
		if err != nil {
			slog.Warn("escalation: redis frequency-tracker connection failed", "error", err)
		} else {
			defer freqClient.Close()
			freqTracker = store.NewRedisFrequencyTracker(freqClient)
		}

		repClient, err := store.Dial(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DBReputation)
		if err != nil {
			slog.Warn("escalation: redis reputation-cache connection failed", "error", err)
		} else {
			defer repClient.Close()
			reputationCache = store.NewRedisReputationCache(repClient)
		}
	} else {
		slog.Info("escalation: redis disabled, frequency tracking and reputation caching degraded")
	}

	var robotsMatcher *robots.Matcher
	if cfg.Escalation.RobotsTxtURL != "" {
		m, err := robots.Load(cfg.Escalation.RobotsTxtURL)
		if err != nil {
			slog.Warn("escalation: robots.txt load failed, treating all paths as allowed", "error", err)
			robotsMatcher = robots.Empty()
		} else {
			robotsMatcher = m
		}
	} else {
		robotsMatcher = robots.Empty()
	}

	model, err := escalation.LoadModel(cfg.Escalation.ModelPath)
	if err != nil {
		slog.Warn("escalation: model load failed, running rule-only scoring", "error", err)
	}

	reputationLookup := escalation.NewReputationLookup(
		reputationCache,
		cfg.Reputation.URL,
		time.Duration(cfg.Reputation.TimeoutSec*float64(time.Second)),
		time.Duration(cfg.Redis.ReputationTTLSec)*time.Second,
	)

	var localLLM *escalation.Classifier
	if cfg.Escalation.LocalLLMURL != "" {
		localLLM = escalation.NewClassifier(cfg.Escalation.LocalLLMURL, time.Duration(cfg.Escalation.LocalLLMTimeoutSec*float64(time.Second)), "")
	}
	var externalAPI *escalation.Classifier
	if cfg.Escalation.ExternalAPIURL != "" {
		externalAPI = escalation.NewClassifier(cfg.Escalation.ExternalAPIURL, time.Duration(cfg.Escalation.ExternalAPITimeoutSec*float64(time.Second)), cfg.Escalation.ExternalAPIKey)
	}

	registry := metrics.NewRegistry()
	stopSnapshot := registry.StartScheduledSnapshot(cfg.Paths.BaseDirectory+"/logs/metrics.json", time.Duration(cfg.Logging.MetricsDumpIntervalMin)*time.Minute)
	defer stopSnapshot()

	engine := escalation.NewEngine(cfg, freqTracker, robotsMatcher, model, reputationLookup, localLLM, externalAPI, registry)
	server := escalation.NewServer(cfg, engine, registry)

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      server.Router(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSec) * time.Second,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		slog.Info("escalation: received shutdown signal, shutting down gracefully")
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			slog.Error("escalation: shutdown error", "error", err)
		}
	}()

	slog.Info("escalation engine starting", "port", port)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("escalation: server failed to start: %v", err)
	}
	slog.Info("escalation: server stopped")
}
