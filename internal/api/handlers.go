package api

import (
	"context"
	"encoding/json"
	"log"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"cookietrail/services/recorder/internal/classifier"
	"cookietrail/services/recorder/internal/cookie"
	"cookietrail/services/recorder/internal/queue"
	"cookietrail/services/recorder/internal/session"
	"cookietrail/services/recorder/internal/timeline"
)

const ingestKeyHeader = "X-Cookietrail-Key"

type Options struct {
	CORSAllowedOrigins      []string
	IngestAPIKey            string
	RateLimitRequestsPerSec float64
	RateLimitBurst          int
	RedactClickText         bool
}

type Handler struct {
	registry           *session.Registry
	classifier         *classifier.Classifier
	publisher          queue.Publisher
	metrics            *apiMetrics
	corsAllowedOrigins []string
	ingestAPIKey       string
	rateLimiter        *apiRateLimiter
	redactClickText    bool
	now                func() time.Time
}

func NewHandler(
	registry *session.Registry,
	cookieClassifier *classifier.Classifier,
	publisher queue.Publisher,
	streamStats queue.StatsProvider,
	opts Options,
) *Handler {
	if publisher == nil {
		publisher = queue.NewNoopPublisher()
	}

	metrics := newAPIMetrics(streamStats, registry, cookieClassifier)
	limiter := newAPIRateLimiter(opts.RateLimitRequestsPerSec, opts.RateLimitBurst)
	if limiter != nil {
		limiter.onLimited = func() { metrics.rateLimitedTotal.Add(1) }
	}

	return &Handler{
		registry:           registry,
		classifier:         cookieClassifier,
		publisher:          publisher,
		metrics:            metrics,
		corsAllowedOrigins: opts.CORSAllowedOrigins,
		ingestAPIKey:       opts.IngestAPIKey,
		rateLimiter:        limiter,
		redactClickText:    opts.RedactClickText,
		now:                time.Now,
	}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))
	if h.rateLimiter != nil {
		r.Use(h.rateLimiter.Middleware)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.corsAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", ingestKeyHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", h.healthz)
	r.Get("/metrics", h.metrics.handleMetrics)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/knowledge", h.getKnowledge)
		r.Post("/classify", h.classify)

		r.Route("/tabs/{tabID}", func(r chi.Router) {
			r.Get("/session", h.getSession)
			r.Get("/timeline", h.getTimeline)

			r.Group(func(r chi.Router) {
				r.Use(h.requireWriteAccess)

				r.Post("/navigation", h.recordNavigation)
				r.Put("/session", h.ensureSession)
				r.Delete("/session", h.removeSession)
				r.Post("/headers", h.recordHeaders)
				r.Post("/clicks", h.recordClick)
				r.Post("/cookie-changes", h.recordCookieChange)
			})
		})
	})

	return r
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	state, entries, _ := h.classifier.Status()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"knowledgeBase": state,
		"entries":       entries,
	})
}

func (h *Handler) getKnowledge(w http.ResponseWriter, _ *http.Request) {
	state, entries, err := h.classifier.Status()
	payload := map[string]any{
		"state":   state,
		"entries": entries,
		"weights": h.classifier.Weights(),
	}
	if err != nil {
		payload["error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, payload)
}

type classifyRequest struct {
	Header string `json:"header"`
}

func (h *Handler) classify(w http.ResponseWriter, r *http.Request) {
	payload := classifyRequest{}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}

	identity, ok := cookie.Parse(payload.Header)
	if !ok {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "header has no cookie name"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"result": h.classifier.Classify(identity)})
}

type navigationRequest struct {
	URL       string  `json:"url"`
	Status    string  `json:"status"`
	Timestamp float64 `json:"timestamp"`
}

// recordNavigation mirrors a tab update: a loading http(s) page starts the
// tab's session if it has none.
func (h *Handler) recordNavigation(w http.ResponseWriter, r *http.Request) {
	tabID, ok := tabIDParam(w, r)
	if !ok {
		return
	}

	payload := navigationRequest{}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}

	if !session.ShouldTrack(payload.URL, payload.Status) {
		writeJSON(w, http.StatusAccepted, map[string]any{"tracked": false})
		return
	}

	s, created := h.startSession(r.Context(), tabID, payload.URL, h.eventTime(payload.Timestamp))
	writeJSON(w, http.StatusAccepted, map[string]any{
		"tracked":   true,
		"created":   created,
		"sessionId": s.ID,
	})
}

type ensureSessionRequest struct {
	URL       string  `json:"url"`
	Timestamp float64 `json:"timestamp"`
}

func (h *Handler) ensureSession(w http.ResponseWriter, r *http.Request) {
	tabID, ok := tabIDParam(w, r)
	if !ok {
		return
	}

	payload := ensureSessionRequest{}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	if strings.TrimSpace(payload.URL) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "url is required"})
		return
	}

	s, created := h.startSession(r.Context(), tabID, payload.URL, h.eventTime(payload.Timestamp))
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]any{"session": s.Snapshot()})
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookupSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": s.Snapshot()})
}

func (h *Handler) removeSession(w http.ResponseWriter, r *http.Request) {
	tabID, ok := tabIDParam(w, r)
	if !ok {
		return
	}

	if !h.registry.Remove(tabID) {
		h.metrics.lookupMissesTotal.Add(1)
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type headersRequest struct {
	URL             string           `json:"url"`
	Timestamp       float64          `json:"timestamp"`
	ResponseHeaders []session.Header `json:"responseHeaders"`
}

func (h *Handler) recordHeaders(w http.ResponseWriter, r *http.Request) {
	tabID, ok := tabIDParam(w, r)
	if !ok {
		return
	}

	payload := headersRequest{}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}

	s, found := h.registry.Find(tabID)
	if !found {
		h.metrics.lookupMissesTotal.Add(1)
		writeJSON(w, http.StatusAccepted, map[string]any{"recorded": 0})
		return
	}

	events, stats := h.registry.EvaluateHeaders(s, payload.ResponseHeaders, payload.URL, h.eventTime(payload.Timestamp))
	h.metrics.cookiesRecordedTotal.Add(int64(stats.Recorded))
	h.metrics.setCookieDroppedTotal.Add(int64(stats.Dropped))
	h.metrics.setCookieRecoveredTotal.Add(int64(stats.Recovered))
	h.publish(r.Context(), tabID, events...)

	cookies := make([]classifier.Result, 0, len(events))
	for _, event := range events {
		if typed, ok := event.(session.SetCookieViaHeader); ok {
			cookies = append(cookies, typed.Cookie)
		}
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"recorded": stats.Recorded,
		"dropped":  stats.Dropped + stats.Recovered,
		"cookies":  cookies,
	})
}

type clickRequest struct {
	URL         string  `json:"url"`
	Timestamp   float64 `json:"timestamp"`
	CSSSelector string  `json:"cssSelector"`
	MouseButton int     `json:"mouseButton"`
	Text        string  `json:"text"`
}

func (h *Handler) recordClick(w http.ResponseWriter, r *http.Request) {
	tabID, ok := tabIDParam(w, r)
	if !ok {
		return
	}

	payload := clickRequest{}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}

	s, found := h.registry.Find(tabID)
	if !found {
		h.metrics.lookupMissesTotal.Add(1)
		writeJSON(w, http.StatusAccepted, map[string]any{"recorded": 0})
		return
	}

	text := payload.Text
	if h.redactClickText {
		text = redactClickText(text)
	}

	click := s.RecordClick(payload.URL, h.eventTime(payload.Timestamp), payload.CSSSelector, payload.MouseButton, text)
	h.metrics.clicksRecordedTotal.Add(1)
	h.publish(r.Context(), tabID, click)

	writeJSON(w, http.StatusAccepted, map[string]any{
		"recorded": 1,
		"event":    session.ToRecord(click),
	})
}

type cookieChangeRequest struct {
	URL       string          `json:"url"`
	Timestamp float64         `json:"timestamp"`
	Removed   bool            `json:"removed"`
	Cookie    cookie.Identity `json:"cookie"`
}

func (h *Handler) recordCookieChange(w http.ResponseWriter, r *http.Request) {
	tabID, ok := tabIDParam(w, r)
	if !ok {
		return
	}

	payload := cookieChangeRequest{}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	if cookie.NormalizeCookieName(payload.Cookie.Name) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "cookie.name is required"})
		return
	}

	s, found := h.registry.Find(tabID)
	if !found {
		h.metrics.lookupMissesTotal.Add(1)
		writeJSON(w, http.StatusAccepted, map[string]any{"recorded": 0})
		return
	}

	identity := payload.Cookie
	identity.Name = strings.TrimSpace(identity.Name)
	identity.Domain = cookie.NormalizeDomain(identity.Domain)
	identity.Path = cookie.NormalizePath(identity.Path)
	if identity.Path == "" {
		identity.Path = "/"
	}
	identity.SameSite = cookie.NormalizeSameSite(string(identity.SameSite))
	identity.Signature = cookie.Signature(identity)

	event := h.registry.RecordCookieChange(s, identity, payload.Removed, payload.URL, h.eventTime(payload.Timestamp))
	h.metrics.cookieChangesTotal.Add(1)
	h.publish(r.Context(), tabID, event)

	writeJSON(w, http.StatusAccepted, map[string]any{
		"recorded": 1,
		"event":    session.ToRecord(event),
	})
}

func (h *Handler) getTimeline(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookupSession(w, r)
	if !ok {
		return
	}

	entries := timeline.Aggregate(s.Events())
	writeJSON(w, http.StatusOK, map[string]any{
		"sessionId":  s.ID,
		"entries":    entries,
		"lines":      timeline.Lines(entries),
		"categories": timeline.CountByCategory(s.Cookies()),
	})
}

func (h *Handler) startSession(ctx context.Context, tabID int, url string, startedAt time.Time) (*session.Session, bool) {
	s, created := h.registry.EnsureSessionAt(tabID, url, startedAt)
	if created {
		h.metrics.sessionsStartedTotal.Add(1)
		if events := s.Events(); len(events) > 0 {
			h.publish(ctx, tabID, events[0])
		}
	}
	return s, created
}

func (h *Handler) lookupSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	tabID, ok := tabIDParam(w, r)
	if !ok {
		return nil, false
	}

	s, found := h.registry.Find(tabID)
	if !found {
		h.metrics.lookupMissesTotal.Add(1)
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return nil, false
	}
	return s, true
}

// publish forwards events to the tab-event stream. Failures are logged and
// counted; recording never depends on the stream.
func (h *Handler) publish(ctx context.Context, tabID int, events ...session.Event) {
	for _, event := range events {
		message := queue.TabEventMessage{TabID: tabID, Event: session.ToRecord(event)}
		if err := h.publisher.PublishTabEvent(ctx, message); err != nil {
			h.metrics.publishErrorsTotal.Add(1)
			log.Printf("tab event publish failed tab=%d type=%s err=%v", tabID, event.Kind(), err)
		}
	}
}

// maxEventTimeMs bounds browser timestamps so the microsecond conversion
// cannot overflow int64. It is the year 9999 in epoch milliseconds.
const maxEventTimeMs = 253402300799999

// eventTime converts a browser timestamp in fractional epoch milliseconds.
// A missing or out-of-range timestamp means now.
func (h *Handler) eventTime(ms float64) time.Time {
	if ms <= 0 || ms > maxEventTimeMs || math.IsNaN(ms) || math.IsInf(ms, 0) {
		return h.now()
	}
	return time.UnixMicro(int64(ms * 1000))
}

func tabIDParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	tabID, err := strconv.Atoi(chi.URLParam(r, "tabID"))
	if err != nil || tabID < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "tabID must be a non-negative integer"})
		return 0, false
	}
	return tabID, true
}

func (h *Handler) requireWriteAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.TrimSpace(h.ingestAPIKey) == "" {
			next.ServeHTTP(w, r)
			return
		}

		provided := strings.TrimSpace(r.Header.Get(ingestKeyHeader))
		if provided == h.ingestAPIKey {
			next.ServeHTTP(w, r)
			return
		}

		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
