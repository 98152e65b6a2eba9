package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

const DefaultKnowledgeBaseLocator = "assets/open-cookie-database.json"

type Config struct {
	ListenAddr              string
	RedisAddr               string
	EventStreamName         string
	EventStreamMaxLen       int64
	CORSAllowedOrigins      []string
	IngestAPIKey            string
	RateLimitRequestsPerSec float64
	RateLimitBurst          int
	KnowledgeBaseLocator    string
	KnowledgeBaseTimeout    time.Duration
	KnowledgeBaseTable      string
	S3Region                string
	S3Endpoint              string
	S3AccessKey             string
	S3SecretKey             string
	ScoringConfigFile       string
	RedactClickText         bool
	SessionIdleTimeout      time.Duration
	SessionSweepInterval    time.Duration
}

func Load() Config {
	port := envOrDefault("COOKIETRAIL_PORT", "8080")

	return Config{
		ListenAddr:              ":" + port,
		RedisAddr:               redisAddr(),
		EventStreamName:         envOrDefault("EVENT_STREAM_NAME", "tab-events"),
		EventStreamMaxLen:       int64(envOrDefaultInt("EVENT_STREAM_MAX_LEN", 10000)),
		CORSAllowedOrigins:      parseCSV(envOrDefault("CORS_ALLOWED_ORIGINS", "*")),
		IngestAPIKey:            os.Getenv("INGEST_API_KEY"),
		RateLimitRequestsPerSec: envOrDefaultFloat("RATE_LIMIT_REQUESTS_PER_SEC", 50),
		RateLimitBurst:          envOrDefaultInt("RATE_LIMIT_BURST", 100),
		KnowledgeBaseLocator:    envOrDefault("KNOWLEDGE_BASE_LOCATOR", DefaultKnowledgeBaseLocator),
		KnowledgeBaseTimeout:    time.Duration(envOrDefaultInt("KNOWLEDGE_BASE_TIMEOUT_SECONDS", 30)) * time.Second,
		KnowledgeBaseTable:      envOrDefault("KNOWLEDGE_BASE_TABLE", "cookie_reference_entries"),
		S3Region:                envOrDefault("S3_REGION", "us-east-1"),
		S3Endpoint:              os.Getenv("S3_ENDPOINT"),
		S3AccessKey:             envOrDefault("S3_ACCESS_KEY", ""),
		S3SecretKey:             envOrDefault("S3_SECRET_KEY", ""),
		ScoringConfigFile:       os.Getenv("SCORING_CONFIG_FILE"),
		RedactClickText:         envOrDefaultBool("REDACT_CLICK_TEXT", true),
		SessionIdleTimeout:      time.Duration(envOrDefaultInt("SESSION_IDLE_MINUTES", 0)) * time.Minute,
		SessionSweepInterval:    time.Duration(envOrDefaultInt("SESSION_SWEEP_INTERVAL_MINUTES", 5)) * time.Minute,
	}
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func redisAddr() string {
	host := envOrDefault("REDIS_HOST", "localhost")
	port := envOrDefault("REDIS_PORT", "6379")
	return fmt.Sprintf("%s:%s", host, port)
}

func parseCSV(value string) []string {
	values := strings.Split(value, ",")
	result := make([]string, 0, len(values))
	for _, item := range values {
		trimmed := strings.TrimSpace(item)
		if trimmed == "" {
			continue
		}
		result = append(result, trimmed)
	}

	if len(result) == 0 {
		return []string{"*"}
	}
	return result
}

func envOrDefaultInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	var parsed int
	if _, err := fmt.Sscanf(value, "%d", &parsed); err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	var parsed float64
	if _, err := fmt.Sscanf(value, "%f", &parsed); err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultBool(key string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
