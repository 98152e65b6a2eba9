package session

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"cookietrail/services/recorder/internal/classifier"
	"cookietrail/services/recorder/internal/cookie"
)

type Classifier interface {
	Classify(id cookie.Identity) classifier.Result
}

// Header is one response header as reported by the browser collaborator.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// HeaderStats counts what happened to the Set-Cookie values of one response.
type HeaderStats struct {
	Seen      int
	Recorded  int
	Dropped   int
	Recovered int
}

// Registry owns the live session of every tab.
type Registry struct {
	classifier Classifier
	now        func() time.Time
	suffix     func() string

	mu       sync.Mutex
	sessions map[int]*Session
}

func NewRegistry(c Classifier) *Registry {
	return &Registry{
		classifier: c,
		now:        time.Now,
		suffix:     randomSuffix,
		sessions:   make(map[int]*Session),
	}
}

// EnsureSession returns the tab's session, creating it with a SessionStart
// event when the tab has none. The boolean reports whether it was created.
func (r *Registry) EnsureSession(tabID int, url string) (*Session, bool) {
	return r.EnsureSessionAt(tabID, url, time.Time{})
}

// EnsureSessionAt is EnsureSession with the start time taken from the same
// clock as the session's events. A zero startedAt means now.
func (r *Registry) EnsureSessionAt(tabID int, url string, startedAt time.Time) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.sessions[tabID]; ok {
		return existing, false
	}

	if startedAt.IsZero() {
		startedAt = r.now()
	}
	t0 := time.UnixMilli(startedAt.UnixMilli())
	id := fmt.Sprintf("%d-%d-%s", tabID, t0.UnixMilli(), r.suffix())
	created := newSession(id, tabID, t0, url)
	created.append(SessionStart{Base: created.base(url, t0)})
	r.sessions[tabID] = created

	log.Printf("session started tab=%d session_id=%s url=%s", tabID, id, url)
	return created, true
}

func (r *Registry) Find(tabID int) (*Session, bool) {
	r.mu.Lock()
	found, ok := r.sessions[tabID]
	r.mu.Unlock()

	if !ok {
		log.Printf("no session for tab=%d", tabID)
	}
	return found, ok
}

// Remove forgets the tab's session, as when the tab closes.
func (r *Registry) Remove(tabID int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[tabID]; !ok {
		return false
	}
	delete(r.sessions, tabID)
	return true
}

// PruneIdle removes sessions with no activity since cutoff and returns how
// many were removed.
func (r *Registry) PruneIdle(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for tabID, s := range r.sessions {
		if s.LastActivity().Before(cutoff) {
			delete(r.sessions, tabID)
			removed++
		}
	}
	return removed
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// RecordCookie parses and classifies one raw Set-Cookie value. A header that
// does not parse records nothing and returns false.
func (r *Registry) RecordCookie(s *Session, rawHeader, url string, ts time.Time) (SetCookieViaHeader, bool) {
	identity, ok := cookie.Parse(rawHeader)
	if !ok {
		return SetCookieViaHeader{}, false
	}

	result := r.classifier.Classify(identity)
	event := SetCookieViaHeader{Base: s.base(url, ts), Cookie: result}
	s.upsertCookie(result, event)
	return event, true
}

// RecordCookieChange records a cookie-store notification. Removals do not
// touch the cookie map.
func (r *Registry) RecordCookieChange(s *Session, id cookie.Identity, removed bool, url string, ts time.Time) CookieChanged {
	if id.Signature == "" {
		id.Signature = cookie.Signature(id)
	}
	result := r.classifier.Classify(id)
	event := CookieChanged{Base: s.base(url, ts), Cookie: result, Removed: removed}
	if removed {
		s.append(event)
	} else {
		s.upsertCookie(result, event)
	}
	return event
}

// EvaluateHeaders records every Set-Cookie value among headers. A panic while
// handling one value is recovered and the remaining values are still handled.
func (r *Registry) EvaluateHeaders(s *Session, headers []Header, url string, ts time.Time) ([]Event, HeaderStats) {
	var (
		events []Event
		stats  HeaderStats
	)

	for _, header := range headers {
		if !strings.EqualFold(strings.TrimSpace(header.Name), "set-cookie") {
			continue
		}
		stats.Seen++

		event, ok, recovered := r.recordSafely(s, header.Value, url, ts)
		switch {
		case recovered:
			stats.Recovered++
		case !ok:
			stats.Dropped++
		default:
			stats.Recorded++
			events = append(events, event)
		}
	}
	return events, stats
}

func (r *Registry) recordSafely(s *Session, raw, url string, ts time.Time) (event SetCookieViaHeader, ok bool, recovered bool) {
	defer func() {
		if p := recover(); p != nil {
			log.Printf("set-cookie handling panicked session_id=%s err=%v", s.ID, p)
			event, ok, recovered = SetCookieViaHeader{}, false, true
		}
	}()

	event, ok = r.RecordCookie(s, raw, url, ts)
	return event, ok, false
}

// ShouldTrack reports whether a tab update starts a recording: the tab must be
// loading an http or https URL.
func ShouldTrack(url, status string) bool {
	if status != "loading" {
		return false
	}
	lower := strings.ToLower(strings.TrimSpace(url))
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

func randomSuffix() string {
	id := uuid.New()
	return strings.ReplaceAll(id.String(), "-", "")[:9]
}
