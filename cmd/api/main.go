package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cookietrail/services/recorder/internal/api"
	"cookietrail/services/recorder/internal/classifier"
	"cookietrail/services/recorder/internal/config"
	"cookietrail/services/recorder/internal/knowledge"
	"cookietrail/services/recorder/internal/queue"
	"cookietrail/services/recorder/internal/session"
)

func main() {
	cfg := config.Load()

	weights, err := config.LoadScoring(cfg.ScoringConfigFile)
	if err != nil {
		log.Printf("scoring config unusable (%v), continuing with default weights", err)
		weights = classifier.DefaultWeights()
	}
	cookieClassifier := classifier.New(weights)

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		_ = knowledge.Load(shutdownCtx, cookieClassifier, cfg.KnowledgeBaseLocator, knowledge.Options{
			S3Region:   cfg.S3Region,
			S3Endpoint: cfg.S3Endpoint,
			S3Access:   cfg.S3AccessKey,
			S3Secret:   cfg.S3SecretKey,
			Table:      cfg.KnowledgeBaseTable,
		}, cfg.KnowledgeBaseTimeout)
	}()

	var (
		publisher   queue.Publisher
		streamStats queue.StatsProvider
	)
	redisPublisher, err := queue.NewRedisPublisher(cfg.RedisAddr, cfg.EventStreamName, cfg.EventStreamMaxLen)
	if err != nil {
		log.Printf("event stream unavailable (%v), continuing with noop publisher", err)
		publisher = queue.NewNoopPublisher()
	} else {
		publisher = redisPublisher
		streamStats = redisPublisher
	}
	defer publisher.Close()

	registry := session.NewRegistry(cookieClassifier)
	startSessionSweeper(shutdownCtx, registry, cfg.SessionSweepInterval, cfg.SessionIdleTimeout)

	handler := api.NewHandler(registry, cookieClassifier, publisher, streamStats, api.Options{
		CORSAllowedOrigins:      cfg.CORSAllowedOrigins,
		IngestAPIKey:            cfg.IngestAPIKey,
		RateLimitRequestsPerSec: cfg.RateLimitRequestsPerSec,
		RateLimitBurst:          cfg.RateLimitBurst,
		RedactClickText:         cfg.RedactClickText,
	})

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("recorder listening on %s", cfg.ListenAddr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server failed: %v", err)
		}
	}()

	<-shutdownCtx.Done()
	ctxTimeout, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxTimeout); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}
