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
	"github.com/rhamenator/antiscrape/internal/jsonlog"
	"github.com/rhamenator/antiscrape/internal/markov"
	"github.com/rhamenator/antiscrape/internal/store"
	"github.com/rhamenator/antiscrape/internal/tarpit"

	"github.com/rhamenator/antiscrape/internal/metrics"
)

func main() {
	cfg := config.Get()
	port := cfg.GetPort()

	var hops store.HopCounter
	var blocklist store.Blocklist
	var flagger store.TarpitFlagger
	if cfg.Redis.Enabled {
		client, err := store.Dial(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DBHops)
		if err != nil {
			slog.Warn("tarpit: redis connection failed, falling back to in-memory hop counter", "error", err)
			hops = store.NewMemHopCounter()
		} else {
			defer client.Close()
			hops = store.NewRedisHopCounter(client)

			blocklistClient, err := store.Dial(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DBBlocklist)
			if err != nil {
				slog.Warn("tarpit: redis blocklist connection failed", "error", err)
			} else {
				defer blocklistClient.Close()
				blocklist = store.NewRedisBlocklist(blocklistClient)
			}

			flagClient, err := store.Dial(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DBTarpitFlag)
			if err != nil {
				slog.Warn("tarpit: redis tarpit-flag connection failed", "error", err)
			} else {
				defer flagClient.Close()
				flagger = store.NewRedisTarpitFlagger(flagClient)
			}
		}
	} else {
		slog.Info("tarpit: redis disabled, using in-memory hop counter")
		hops = store.NewMemHopCounter()
	}

	markovStore, err := markov.Open(cfg.Markov.DatabaseURL)
	var source markov.Source
	if err != nil {
		slog.Warn("tarpit: markov store unavailable, generator will serve fallback pages", "error", err)
		source = nil
	} else {
		defer markovStore.Close()
		if err := markovStore.Migrate(context.Background()); err != nil {
			slog.Warn("tarpit: markov schema migration failed", "error", err)
		}
		source = markovStore
	}
	generator := markov.NewGenerator(source, cfg.Markov.SystemSeed)

	registry := metrics.NewRegistry()
	stopSnapshot := registry.StartScheduledSnapshot(cfg.Paths.BaseDirectory+"/logs/metrics.json", time.Duration(cfg.Logging.MetricsDumpIntervalMin)*time.Minute)
	defer stopSnapshot()

	honeypotLog, err := jsonlog.Open(cfg.Paths.BaseDirectory + "/logs/honeypot_hits.log")
	if err != nil {
		slog.Warn("tarpit: honeypot log unavailable", "error", err)
	} else {
		defer honeypotLog.Close()
	}

	server := tarpit.NewServer(cfg, hops, blocklist, flagger, generator, registry, honeypotLog)

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
		slog.Info("tarpit: received shutdown signal, shutting down gracefully")
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			slog.Error("tarpit: shutdown error", "error", err)
		}
	}()

	slog.Info("tarpit engine starting", "port", port)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("tarpit: server failed to start: %v", err)
	}
	slog.Info("tarpit: server stopped")
}
