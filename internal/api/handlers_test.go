package api

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"cookietrail/services/recorder/internal/classifier"
	"cookietrail/services/recorder/internal/queue"
	"cookietrail/services/recorder/internal/session"
)

type stubPublisher struct {
	mu       sync.Mutex
	messages []queue.TabEventMessage
	err      error
}

func (p *stubPublisher) PublishTabEvent(_ context.Context, message queue.TabEventMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, message)
	return nil
}

func (p *stubPublisher) Close() error { return nil }

type stubStreamStats struct {
	stats queue.StreamStats
	err   error
}

func (s stubStreamStats) StreamStats(context.Context) (queue.StreamStats, error) {
	return s.stats, s.err
}

func newTestHandler(t *testing.T, opts Options, publisher queue.Publisher, stats queue.StatsProvider) (*Handler, http.Handler) {
	t.Helper()

	c := classifier.New(classifier.DefaultWeights())
	c.Install(classifier.NewKnowledgeBase([]classifier.Entry{
		{ID: "ga", Cookie: "_ga", Domain: "example.com", Category: "Analytics"},
		{ID: "fbp", Cookie: "_fbp", Category: "Marketing"},
	}))

	handler := NewHandler(session.NewRegistry(c), c, publisher, stats, opts)
	return handler, handler.Router()
}

func serve(router http.Handler, method, target, body string, headers ...string) *httptest.ResponseRecorder {
	request := httptest.NewRequest(method, target, strings.NewReader(body))
	request.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		request.Header.Set(headers[i], headers[i+1])
	}
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to decode response: %v body=%s", err, recorder.Body.String())
	}
}

func TestHealthzReportsKnowledgeBaseState(t *testing.T) {
	_, router := newTestHandler(t, Options{}, nil, nil)

	recorder := serve(router, http.MethodGet, "/healthz", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, recorder.Code)
	}

	var body struct {
		Status        string `json:"status"`
		KnowledgeBase string `json:"knowledgeBase"`
		Entries       int    `json:"entries"`
	}
	decodeBody(t, recorder, &body)
	if body.KnowledgeBase != "ready" || body.Entries != 2 {
		t.Fatalf("unexpected health body: %+v", body)
	}
}

func TestNavigationStartsSessionOnlyForLoadingHTTP(t *testing.T) {
	publisher := &stubPublisher{}
	_, router := newTestHandler(t, Options{}, publisher, nil)

	ignored := serve(router, http.MethodPost, "/v1/tabs/3/navigation", `{"url":"chrome://newtab","status":"loading"}`)
	if ignored.Code != http.StatusAccepted {
		t.Fatalf("expected status %d, got %d", http.StatusAccepted, ignored.Code)
	}
	if !strings.Contains(ignored.Body.String(), `"tracked":false`) {
		t.Fatalf("expected untracked navigation, got %s", ignored.Body.String())
	}

	first := serve(router, http.MethodPost, "/v1/tabs/3/navigation", `{"url":"https://example.com/","status":"loading"}`)
	second := serve(router, http.MethodPost, "/v1/tabs/3/navigation", `{"url":"https://example.com/next","status":"loading"}`)

	var firstBody, secondBody struct {
		Tracked   bool   `json:"tracked"`
		Created   bool   `json:"created"`
		SessionID string `json:"sessionId"`
	}
	decodeBody(t, first, &firstBody)
	decodeBody(t, second, &secondBody)

	if !firstBody.Created || secondBody.Created {
		t.Fatalf("expected only first navigation to create a session, got %+v then %+v", firstBody, secondBody)
	}
	if firstBody.SessionID != secondBody.SessionID || !strings.HasPrefix(firstBody.SessionID, "3-") {
		t.Fatalf("expected stable session id, got %q and %q", firstBody.SessionID, secondBody.SessionID)
	}
	if len(publisher.messages) != 1 || publisher.messages[0].Event.Type != session.KindSessionStart {
		t.Fatalf("expected one session-started publish, got %+v", publisher.messages)
	}
}

func TestSessionStartUsesClientClock(t *testing.T) {
	_, router := newTestHandler(t, Options{}, nil, nil)
	const started = int64(1_700_000_000_000)

	serve(router, http.MethodPost, "/v1/tabs/7/navigation", `{"url":"https://example.com/","status":"loading","timestamp":`+itoa(started)+`}`)
	headers := `{"url":"https://example.com/","timestamp":` + itoa(started+5) + `,"responseHeaders":[{"name":"Set-Cookie","value":"_ga=1; Domain=example.com"}]}`
	serve(router, http.MethodPost, "/v1/tabs/7/headers", headers)
	serve(router, http.MethodPost, "/v1/tabs/7/clicks", `{"url":"https://example.com/","timestamp":`+itoa(started+50)+`,"text":"Accept"}`)

	var snapshot struct {
		Session session.Snapshot `json:"session"`
	}
	decodeBody(t, serve(router, http.MethodGet, "/v1/tabs/7/session", ""), &snapshot)
	if snapshot.Session.T0 != started {
		t.Fatalf("expected t0 %d, got %d", started, snapshot.Session.T0)
	}
	if !strings.HasPrefix(snapshot.Session.SessionID, "7-"+itoa(started)+"-") {
		t.Fatalf("expected session id from client t0, got %q", snapshot.Session.SessionID)
	}

	var body struct {
		Lines []string `json:"lines"`
	}
	decodeBody(t, serve(router, http.MethodGet, "/v1/tabs/7/timeline", ""), &body)
	expected := []string{"Session started", "| 50ms", "+1 Cookies (1x Analytics)", `Click | "Accept"`}
	if strings.Join(body.Lines, "\n") != strings.Join(expected, "\n") {
		t.Fatalf("expected lines %q, got %q", expected, body.Lines)
	}
}

func TestEventTimeFallsBackForOutOfRangeTimestamps(t *testing.T) {
	handler, _ := newTestHandler(t, Options{}, nil, nil)
	fixed := time.UnixMilli(1_700_000_000_000)
	handler.now = func() time.Time { return fixed }

	for _, ms := range []float64{0, -5, 1e19, 1e300, math.NaN(), math.Inf(1)} {
		if got := handler.eventTime(ms); !got.Equal(fixed) {
			t.Fatalf("expected fallback to now for %v, got %v", ms, got)
		}
	}

	if got := handler.eventTime(maxEventTimeMs); got.Equal(fixed) || got.UTC().Year() != 9999 {
		t.Fatalf("expected the upper bound to be accepted, got %v", got)
	}
	if got := handler.eventTime(1_700_000_000_123.5); got.UnixMicro() != 1_700_000_000_123_500 {
		t.Fatalf("expected microsecond precision, got %d", got.UnixMicro())
	}
}

func TestEnsureSessionReturnsSnapshot(t *testing.T) {
	_, router := newTestHandler(t, Options{}, nil, nil)

	created := serve(router, http.MethodPut, "/v1/tabs/9/session", `{"url":"https://example.com/"}`)
	if created.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d", http.StatusCreated, created.Code)
	}

	existing := serve(router, http.MethodPut, "/v1/tabs/9/session", `{"url":"https://example.com/"}`)
	if existing.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, existing.Code)
	}

	var body struct {
		Session session.Snapshot `json:"session"`
	}
	decodeBody(t, existing, &body)
	if body.Session.TabID != 9 || len(body.Session.Events) != 1 || body.Session.Events[0].Type != session.KindSessionStart {
		t.Fatalf("unexpected snapshot: %+v", body.Session)
	}

	missingURL := serve(router, http.MethodPut, "/v1/tabs/9/session", `{}`)
	if missingURL.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, missingURL.Code)
	}
}

func TestGetSessionAndTimelineMissReturnNotFound(t *testing.T) {
	_, router := newTestHandler(t, Options{}, nil, nil)

	for _, target := range []string{"/v1/tabs/5/session", "/v1/tabs/5/timeline"} {
		recorder := serve(router, http.MethodGet, target, "")
		if recorder.Code != http.StatusNotFound {
			t.Fatalf("%s: expected status %d, got %d", target, http.StatusNotFound, recorder.Code)
		}
	}

	invalid := serve(router, http.MethodGet, "/v1/tabs/abc/session", "")
	if invalid.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, invalid.Code)
	}
}

func TestRecordHeadersClassifiesSetCookies(t *testing.T) {
	publisher := &stubPublisher{}
	_, router := newTestHandler(t, Options{}, publisher, nil)
	serve(router, http.MethodPut, "/v1/tabs/1/session", `{"url":"https://example.com/"}`)

	payload := `{
		"url": "https://example.com/",
		"timestamp": 1700000000010.5,
		"responseHeaders": [
			{"name": "content-type", "value": "text/html"},
			{"name": "Set-Cookie", "value": "_ga=GA1.1; Domain=.example.com; Path=/; Secure"},
			{"name": "set-cookie", "value": "no-equals-sign"},
			{"name": "SET-COOKIE", "value": "_fbp=fb.1; SameSite=Lax"}
		]
	}`
	recorder := serve(router, http.MethodPost, "/v1/tabs/1/headers", payload)
	if recorder.Code != http.StatusAccepted {
		t.Fatalf("expected status %d, got %d", http.StatusAccepted, recorder.Code)
	}

	var body struct {
		Recorded int                 `json:"recorded"`
		Dropped  int                 `json:"dropped"`
		Cookies  []classifier.Result `json:"cookies"`
	}
	decodeBody(t, recorder, &body)
	if body.Recorded != 2 || body.Dropped != 1 {
		t.Fatalf("expected 2 recorded and 1 dropped, got %+v", body)
	}
	if body.Cookies[0].Category != classifier.CategoryAnalytics || body.Cookies[0].Confidence != classifier.ConfidenceHigh {
		t.Fatalf("unexpected first classification: %+v", body.Cookies[0])
	}
	if body.Cookies[1].Category != classifier.CategoryMarketing {
		t.Fatalf("unexpected second classification: %+v", body.Cookies[1])
	}

	// session-started plus two cookie events
	if len(publisher.messages) != 3 {
		t.Fatalf("expected 3 published events, got %d", len(publisher.messages))
	}
	if publisher.messages[1].Event.Timestamp != 1700000000010 {
		t.Fatalf("expected millisecond timestamp, got %d", publisher.messages[1].Event.Timestamp)
	}
}

func TestRecordHeadersWithoutSessionIsNoop(t *testing.T) {
	_, router := newTestHandler(t, Options{}, nil, nil)

	recorder := serve(router, http.MethodPost, "/v1/tabs/42/headers", `{"url":"https://example.com/","responseHeaders":[{"name":"Set-Cookie","value":"a=1"}]}`)
	if recorder.Code != http.StatusAccepted {
		t.Fatalf("expected status %d, got %d", http.StatusAccepted, recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), `"recorded":0`) {
		t.Fatalf("expected recorded 0, got %s", recorder.Body.String())
	}
}

func TestRecordClickRedactsAndTruncates(t *testing.T) {
	_, router := newTestHandler(t, Options{RedactClickText: true}, nil, nil)
	serve(router, http.MethodPut, "/v1/tabs/2/session", `{"url":"https://example.com/"}`)

	payload := `{"url":"https://example.com/","timestamp":1700000000050,"cssSelector":"#account","mouseButton":0,"text":"Signed in as jane@example.com"}`
	recorder := serve(router, http.MethodPost, "/v1/tabs/2/clicks", payload)
	if recorder.Code != http.StatusAccepted {
		t.Fatalf("expected status %d, got %d", http.StatusAccepted, recorder.Code)
	}

	var body struct {
		Recorded int            `json:"recorded"`
		Event    session.Record `json:"event"`
	}
	decodeBody(t, recorder, &body)
	if body.Event.Meta == nil || body.Event.Meta.ClickData == nil {
		t.Fatalf("expected click data, got %+v", body.Event)
	}
	if body.Event.Meta.ClickData.Text != "Signed in as <email>" {
		t.Fatalf("expected redacted text, got %q", body.Event.Meta.ClickData.Text)
	}
	if body.Event.Meta.ClickData.CSSSelector != "#account" {
		t.Fatalf("expected selector, got %q", body.Event.Meta.ClickData.CSSSelector)
	}
}

func TestTimelineRendersSessionNarrative(t *testing.T) {
	_, router := newTestHandler(t, Options{}, nil, nil)
	serve(router, http.MethodPut, "/v1/tabs/4/session", `{"url":"https://example.com/"}`)

	var snapshot struct {
		Session session.Snapshot `json:"session"`
	}
	decodeBody(t, serve(router, http.MethodGet, "/v1/tabs/4/session", ""), &snapshot)
	t0 := snapshot.Session.T0

	headers := `{"url":"https://example.com/","timestamp":` + itoa(t0+10) + `,"responseHeaders":[{"name":"Set-Cookie","value":"_ga=1; Domain=example.com"}]}`
	serve(router, http.MethodPost, "/v1/tabs/4/headers", headers)
	headers = `{"url":"https://example.com/","timestamp":` + itoa(t0+20) + `,"responseHeaders":[{"name":"Set-Cookie","value":"_ga_X=1; Domain=example.com"}]}`
	serve(router, http.MethodPost, "/v1/tabs/4/headers", headers)
	serve(router, http.MethodPost, "/v1/tabs/4/clicks", `{"url":"https://example.com/","timestamp":`+itoa(t0+50)+`,"text":"Accept"}`)

	recorder := serve(router, http.MethodGet, "/v1/tabs/4/timeline", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, recorder.Code)
	}

	var body struct {
		Lines      []string `json:"lines"`
		Categories []struct {
			Category string `json:"category"`
			Count    int    `json:"count"`
		} `json:"categories"`
	}
	decodeBody(t, recorder, &body)

	expected := []string{"Session started", "| 50ms", "+2 Cookies (2x Analytics)", `Click | "Accept"`}
	if strings.Join(body.Lines, "\n") != strings.Join(expected, "\n") {
		t.Fatalf("expected lines %q, got %q", expected, body.Lines)
	}
	if len(body.Categories) != 1 || body.Categories[0].Category != "Analytics" || body.Categories[0].Count != 2 {
		t.Fatalf("unexpected category counts: %+v", body.Categories)
	}
}

func TestRecordCookieChangeFeedsTimeline(t *testing.T) {
	publisher := &stubPublisher{}
	_, router := newTestHandler(t, Options{}, publisher, nil)
	serve(router, http.MethodPut, "/v1/tabs/9/session", `{"url":"https://example.com/"}`)

	var snapshot struct {
		Session session.Snapshot `json:"session"`
	}
	decodeBody(t, serve(router, http.MethodGet, "/v1/tabs/9/session", ""), &snapshot)
	t0 := snapshot.Session.T0

	written := `{"url":"https://example.com/","timestamp":` + itoa(t0+10) + `,"cookie":{"name":"_fbp","domain":".Example.com","sameSite":"LAX"}}`
	recorder := serve(router, http.MethodPost, "/v1/tabs/9/cookie-changes", written)
	if recorder.Code != http.StatusAccepted {
		t.Fatalf("expected status %d, got %d", http.StatusAccepted, recorder.Code)
	}

	var body struct {
		Event session.Record `json:"event"`
	}
	decodeBody(t, recorder, &body)
	if body.Event.Type != session.KindCookieChanged || body.Event.Meta == nil || body.Event.Meta.CookieData == nil {
		t.Fatalf("expected cookie-changed record, got %+v", body.Event)
	}
	if got := body.Event.Meta.CookieData.Signature; got != "_fbp|example.com|/|s=0|h=0|ss=lax" {
		t.Fatalf("expected normalized signature, got %q", got)
	}
	if body.Event.Meta.CookieData.Category != classifier.CategoryMarketing {
		t.Fatalf("expected Marketing, got %s", body.Event.Meta.CookieData.Category)
	}

	removed := `{"url":"https://example.com/","timestamp":` + itoa(t0+20) + `,"removed":true,"cookie":{"name":"_fbp","domain":"example.com","sameSite":"lax"}}`
	serve(router, http.MethodPost, "/v1/tabs/9/cookie-changes", removed)

	var timelineBody struct {
		Lines []string `json:"lines"`
	}
	decodeBody(t, serve(router, http.MethodGet, "/v1/tabs/9/timeline", ""), &timelineBody)
	expected := []string{"Session started", "+1 Cookies (1x Marketing)", "-1 Cookies (1x Marketing)"}
	if strings.Join(timelineBody.Lines, "\n") != strings.Join(expected, "\n") {
		t.Fatalf("expected lines %q, got %q", expected, timelineBody.Lines)
	}
	if len(publisher.messages) != 3 {
		t.Fatalf("expected 3 published events, got %d", len(publisher.messages))
	}
}

func TestRecordCookieChangeRequiresName(t *testing.T) {
	_, router := newTestHandler(t, Options{}, nil, nil)
	serve(router, http.MethodPut, "/v1/tabs/9/session", `{"url":"https://example.com/"}`)

	recorder := serve(router, http.MethodPost, "/v1/tabs/9/cookie-changes", `{"cookie":{"name":"  "}}`)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, recorder.Code)
	}
}

func TestClassifyEndpoint(t *testing.T) {
	_, router := newTestHandler(t, Options{}, nil, nil)

	recorder := serve(router, http.MethodPost, "/v1/classify", `{"header":"_ga=1; Domain=sub.example.com"}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, recorder.Code)
	}
	var body struct {
		Result classifier.Result `json:"result"`
	}
	decodeBody(t, recorder, &body)
	if body.Result.Confidence != classifier.ConfidenceMedium || body.Result.Score != 85 {
		t.Fatalf("unexpected classification: %+v", body.Result)
	}

	rejected := serve(router, http.MethodPost, "/v1/classify", `{"header":"=nothing"}`)
	if rejected.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status %d, got %d", http.StatusUnprocessableEntity, rejected.Code)
	}
}

func TestKnowledgeEndpointReportsFailure(t *testing.T) {
	handler, router := newTestHandler(t, Options{}, nil, nil)
	handler.classifier.Fail(errors.New("fetch knowledge base: status 404"))

	recorder := serve(router, http.MethodGet, "/v1/knowledge", "")
	var body struct {
		State   string `json:"state"`
		Entries int    `json:"entries"`
		Error   string `json:"error"`
	}
	decodeBody(t, recorder, &body)
	if body.State != "failed" || body.Entries != 0 || body.Error != "fetch knowledge base: status 404" {
		t.Fatalf("unexpected knowledge body: %+v", body)
	}
}

func TestWriteRoutesRequireIngestKey(t *testing.T) {
	_, router := newTestHandler(t, Options{IngestAPIKey: "secret"}, nil, nil)

	denied := serve(router, http.MethodPut, "/v1/tabs/1/session", `{"url":"https://example.com/"}`)
	if denied.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, denied.Code)
	}

	allowed := serve(router, http.MethodPut, "/v1/tabs/1/session", `{"url":"https://example.com/"}`, ingestKeyHeader, "secret")
	if allowed.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d", http.StatusCreated, allowed.Code)
	}

	read := serve(router, http.MethodGet, "/v1/tabs/1/session", "")
	if read.Code != http.StatusOK {
		t.Fatalf("expected reads without key, got %d", read.Code)
	}
}

func TestRemoveSession(t *testing.T) {
	_, router := newTestHandler(t, Options{}, nil, nil)
	serve(router, http.MethodPut, "/v1/tabs/6/session", `{"url":"https://example.com/"}`)

	if recorder := serve(router, http.MethodDelete, "/v1/tabs/6/session", ""); recorder.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, recorder.Code)
	}
	if recorder := serve(router, http.MethodDelete, "/v1/tabs/6/session", ""); recorder.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, recorder.Code)
	}
}

func TestPublishFailureDoesNotBlockRecording(t *testing.T) {
	publisher := &stubPublisher{err: errors.New("redis down")}
	handler, router := newTestHandler(t, Options{}, publisher, nil)
	serve(router, http.MethodPut, "/v1/tabs/1/session", `{"url":"https://example.com/"}`)

	recorder := serve(router, http.MethodPost, "/v1/tabs/1/clicks", `{"url":"https://example.com/","text":"Buy"}`)
	if recorder.Code != http.StatusAccepted {
		t.Fatalf("expected status %d, got %d", http.StatusAccepted, recorder.Code)
	}
	if got := handler.metrics.publishErrorsTotal.Load(); got != 2 {
		t.Fatalf("expected 2 publish errors, got %d", got)
	}
}

func TestMetricsExposeCountersAndStreamDepth(t *testing.T) {
	_, router := newTestHandler(t, Options{}, nil, stubStreamStats{stats: queue.StreamStats{Stream: "tab-events", Depth: 7}})
	serve(router, http.MethodPut, "/v1/tabs/1/session", `{"url":"https://example.com/"}`)
	serve(router, http.MethodPost, "/v1/tabs/1/headers", `{"url":"https://example.com/","responseHeaders":[{"name":"Set-Cookie","value":"broken"}]}`)
	serve(router, http.MethodGet, "/v1/tabs/99/session", "")

	recorder := serve(router, http.MethodGet, "/metrics", "")
	payload := recorder.Body.String()

	for _, expected := range []string{
		"cookietrail_sessions_started_total 1",
		"cookietrail_set_cookie_dropped_total 1",
		"cookietrail_session_lookup_misses_total 1",
		"cookietrail_active_sessions 1",
		"cookietrail_knowledge_base_ready 1",
		"cookietrail_knowledge_base_entries 2",
		"cookietrail_event_stream_depth 7",
	} {
		if !strings.Contains(payload, expected) {
			t.Fatalf("expected metrics to contain %q, payload=%s", expected, payload)
		}
	}
}

func TestMetricsCountStreamErrors(t *testing.T) {
	_, router := newTestHandler(t, Options{}, nil, stubStreamStats{err: errors.New("redis unavailable")})

	payload := serve(router, http.MethodGet, "/metrics", "").Body.String()
	if strings.Contains(payload, "cookietrail_event_stream_depth") {
		t.Fatalf("expected stream depth to be omitted, payload=%s", payload)
	}
	if !strings.Contains(payload, "cookietrail_stream_metrics_errors_total 1") {
		t.Fatalf("expected stream metrics error counter to increment, payload=%s", payload)
	}
}

func itoa(value int64) string {
	return strconv.FormatInt(value, 10)
}
