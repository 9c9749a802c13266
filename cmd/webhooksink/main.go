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
	"github.com/rhamenator/antiscrape/internal/metrics"
	"github.com/rhamenator/antiscrape/internal/sink"
	"github.com/rhamenator/antiscrape/internal/store"
	"github.com/rhamenator/antiscrape/internal/webhook"
)

func main() {
	cfg := config.Get()
	port := cfg.GetPort()

	var blocklist store.Blocklist
	if cfg.Redis.Enabled {
		client, err := store.Dial(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DBBlocklist)
		if err != nil {
			slog.Warn("webhooksink: redis blocklist connection failed, blocking is disabled", "error", err)
		} else {
			defer client.Close()
			blocklist = store.NewRedisBlocklist(client)
		}
	} else {
		slog.Warn("webhooksink: redis disabled, blocking is disabled")
	}

	registry := metrics.NewRegistry()
	stopSnapshot := registry.StartScheduledSnapshot(cfg.Paths.BaseDirectory+"/logs/metrics.json", time.Duration(cfg.Logging.MetricsDumpIntervalMin)*time.Minute)
	defer stopSnapshot()

	blockLog, err := jsonlog.Open(cfg.Paths.BaseDirectory + "/logs/block_events.log")
	if err != nil {
		slog.Warn("webhooksink: block-events log unavailable", "error", err)
	} else {
		defer blockLog.Close()
	}
	communityLog, err := jsonlog.Open(cfg.Paths.BaseDirectory + "/logs/community_report.log")
	if err != nil {
		slog.Warn("webhooksink: community-report log unavailable", "error", err)
	} else {
		defer communityLog.Close()
	}
	alertLog, err := jsonlog.Open(cfg.Paths.BaseDirectory + "/logs/alert_events.log")
	if err != nil {
		slog.Warn("webhooksink: alert-events log unavailable", "error", err)
	} else {
		defer alertLog.Close()
	}

	transport := buildAlertTransport(cfg)
	dispatcher := webhook.NewDispatcher(transport, cfg.Alert.MinSeverity, cfg.Alert.RateLimitPerSec, cfg.Webhook.WorkerCount, cfg.Webhook.QueueSize, registry, alertLog)
	defer dispatcher.Shutdown()

	server := sink.NewServer(cfg, blocklist, dispatcher, registry, blockLog, communityLog)

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
		slog.Info("webhooksink: received shutdown signal, shutting down gracefully")
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			slog.Error("webhooksink: shutdown error", "error", err)
		}
	}()

	slog.Info("webhook sink starting", "port", port)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("webhooksink: server failed to start: %v", err)
	}
	slog.Info("webhooksink: server stopped")
}

func buildAlertTransport(cfg *config.Config) webhook.Transport {
	switch cfg.Alert.Method {
	case "webhook":
		return &webhook.HTTPTransport{URL: cfg.Alert.WebhookURL, Client: &http.Client{Timeout: 10 * time.Second}}
	case "slack":
		return &webhook.ChatTransport{URL: cfg.Alert.ChatWebhookURL, Client: &http.Client{Timeout: 10 * time.Second}}
	case "smtp":
		return &webhook.SMTPTransport{
			Host:     cfg.Alert.SMTPHost,
			Port:     cfg.Alert.SMTPPort,
			User:     cfg.Alert.SMTPUser,
			Password: cfg.Alert.SMTPPassword,
			From:     cfg.Alert.SMTPFrom,
			To:       cfg.Alert.SMTPTo,
		}
	default:
		return webhook.NoopTransport{}
	}
}
