package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"cookietrail/services/recorder/internal/classifier"
	"cookietrail/services/recorder/internal/queue"
	"cookietrail/services/recorder/internal/session"
)

type apiMetrics struct {
	startedAtUnix           int64
	streamStatsProvider     queue.StatsProvider
	registry                *session.Registry
	classifier              *classifier.Classifier
	sessionsStartedTotal    atomic.Int64
	cookiesRecordedTotal    atomic.Int64
	setCookieDroppedTotal   atomic.Int64
	setCookieRecoveredTotal atomic.Int64
	clicksRecordedTotal     atomic.Int64
	cookieChangesTotal      atomic.Int64
	lookupMissesTotal       atomic.Int64
	publishErrorsTotal      atomic.Int64
	rateLimitedTotal        atomic.Int64
	streamMetricsErrors     atomic.Int64
}

func newAPIMetrics(streamStatsProvider queue.StatsProvider, registry *session.Registry, c *classifier.Classifier) *apiMetrics {
	return &apiMetrics{
		startedAtUnix:       time.Now().Unix(),
		streamStatsProvider: streamStatsProvider,
		registry:            registry,
		classifier:          c,
	}
}

func writeMetric(w io.Writer, name, kind, help string, value int64) {
	_, _ = fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	_, _ = fmt.Fprintf(w, "# TYPE %s %s\n", name, kind)
	_, _ = fmt.Fprintf(w, "%s %d\n", name, value)
}

func (m *apiMetrics) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)

	writeMetric(w, "cookietrail_uptime_seconds", "gauge", "Process uptime in seconds.", time.Now().Unix()-m.startedAtUnix)
	writeMetric(w, "cookietrail_sessions_started_total", "counter", "Tab sessions started.", m.sessionsStartedTotal.Load())
	writeMetric(w, "cookietrail_cookies_recorded_total", "counter", "Set-Cookie headers parsed, classified and recorded.", m.cookiesRecordedTotal.Load())
	writeMetric(w, "cookietrail_set_cookie_dropped_total", "counter", "Set-Cookie headers dropped as malformed.", m.setCookieDroppedTotal.Load())
	writeMetric(w, "cookietrail_set_cookie_recovered_total", "counter", "Set-Cookie headers whose handling panicked and was recovered.", m.setCookieRecoveredTotal.Load())
	writeMetric(w, "cookietrail_clicks_recorded_total", "counter", "Click events recorded.", m.clicksRecordedTotal.Load())
	writeMetric(w, "cookietrail_cookie_changes_recorded_total", "counter", "Cookie-store change notifications recorded.", m.cookieChangesTotal.Load())
	writeMetric(w, "cookietrail_session_lookup_misses_total", "counter", "Requests that referenced a tab without a session.", m.lookupMissesTotal.Load())
	writeMetric(w, "cookietrail_publish_errors_total", "counter", "Tab event stream publish failures.", m.publishErrorsTotal.Load())
	writeMetric(w, "cookietrail_rate_limited_total", "counter", "Requests rejected due to rate limiting.", m.rateLimitedTotal.Load())

	if m.registry != nil {
		writeMetric(w, "cookietrail_active_sessions", "gauge", "Tabs with a live session.", int64(m.registry.Len()))
	}

	if m.classifier != nil {
		state, entries, _ := m.classifier.Status()
		ready := int64(0)
		if state == classifier.StateReady {
			ready = 1
		}
		writeMetric(w, "cookietrail_knowledge_base_ready", "gauge", "Whether the knowledge base is installed.", ready)
		writeMetric(w, "cookietrail_knowledge_base_entries", "gauge", "Reference entries in the installed knowledge base.", int64(entries))
	}

	if m.streamStatsProvider != nil {
		stats, err := m.loadStreamStats(r.Context())
		if err != nil {
			m.streamMetricsErrors.Add(1)
		} else {
			writeMetric(w, "cookietrail_event_stream_depth", "gauge", "Entries retained in the tab event stream.", stats.Depth)
		}
	}

	writeMetric(w, "cookietrail_stream_metrics_errors_total", "counter", "Event stream metrics collection errors.", m.streamMetricsErrors.Load())
}

func (m *apiMetrics) loadStreamStats(parent context.Context) (queue.StreamStats, error) {
	ctx := parent
	cancel := func() {}
	if ctx == nil {
		ctx = context.Background()
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		ctx, cancel = context.WithTimeout(ctx, 1200*time.Millisecond)
	}
	defer cancel()

	return m.streamStatsProvider.StreamStats(ctx)
}
