package session

import (
	"sync"
	"time"
	"unicode/utf8"

	"cookietrail/services/recorder/internal/classifier"
)

const maxClickTextRunes = 120

// Session is the per-tab recording: an append-only event log plus the latest
// classification for every cookie signature seen on the tab.
type Session struct {
	ID    string
	TabID int
	T0    time.Time
	URL   string

	mu           sync.Mutex
	events       []Event
	cookies      map[string]classifier.Result
	cookieOrder  []string
	lastActivity time.Time
}

func newSession(id string, tabID int, t0 time.Time, url string) *Session {
	return &Session{
		ID:           id,
		TabID:        tabID,
		T0:           t0,
		URL:          url,
		cookies:      make(map[string]classifier.Result),
		lastActivity: t0,
	}
}

func (s *Session) base(url string, ts time.Time) Base {
	return Base{SessionID: s.ID, URL: url, Timestamp: ts}
}

func (s *Session) append(event Event) {
	s.mu.Lock()
	s.appendLocked(event)
	s.mu.Unlock()
}

func (s *Session) appendLocked(event Event) {
	s.events = append(s.events, event)
	if ts := event.Details().Timestamp; ts.After(s.lastActivity) {
		s.lastActivity = ts
	}
}

// upsertCookie stores result under its signature. A replaced signature keeps
// its original position in Cookies().
func (s *Session) upsertCookie(result classifier.Result, event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.cookies[result.Signature]; !exists {
		s.cookieOrder = append(s.cookieOrder, result.Signature)
	}
	s.cookies[result.Signature] = result
	s.appendLocked(event)
}

// RecordClick appends a click event. Text beyond 120 characters is cut.
func (s *Session) RecordClick(url string, ts time.Time, cssSelector string, mouseButton int, text string) Click {
	click := Click{
		Base:        s.base(url, ts),
		CSSSelector: cssSelector,
		MouseButton: mouseButton,
		Text:        truncateRunes(text, maxClickTextRunes),
	}
	s.append(click)
	return click
}

// Events returns a copy of the log in arrival order.
func (s *Session) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// Cookies returns the latest classification per signature in first-seen order.
func (s *Session) Cookies() []classifier.Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]classifier.Result, 0, len(s.cookieOrder))
	for _, signature := range s.cookieOrder {
		out = append(out, s.cookies[signature])
	}
	return out
}

// LastActivity is the latest event timestamp seen, or T0.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

func (s *Session) Cookie(signature string) (classifier.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, ok := s.cookies[signature]
	return result, ok
}

// Snapshot is the transferable form of a session: cookies as a list and
// events as records.
type Snapshot struct {
	SessionID string              `json:"sessionId"`
	TabID     int                 `json:"tabId"`
	T0        int64               `json:"t0"`
	URL       string              `json:"url"`
	Cookies   []classifier.Result `json:"cookies"`
	Events    []Record            `json:"events"`
}

func (s *Session) Snapshot() Snapshot {
	events := s.Events()
	records := make([]Record, 0, len(events))
	for _, event := range events {
		records = append(records, ToRecord(event))
	}

	return Snapshot{
		SessionID: s.ID,
		TabID:     s.TabID,
		T0:        s.T0.UnixMilli(),
		URL:       s.URL,
		Cookies:   s.Cookies(),
		Events:    records,
	}
}

// DecodeEvents turns snapshot records back into events. Records of unknown
// type are skipped and counted.
func (snapshot Snapshot) DecodeEvents() ([]Event, int) {
	events := make([]Event, 0, len(snapshot.Events))
	skipped := 0
	for _, record := range snapshot.Events {
		event, err := FromRecord(record)
		if err != nil {
			skipped++
			continue
		}
		events = append(events, event)
	}
	return events, skipped
}

func truncateRunes(value string, max int) string {
	if utf8.RuneCountInString(value) <= max {
		return value
	}
	runes := []rune(value)
	return string(runes[:max])
}
