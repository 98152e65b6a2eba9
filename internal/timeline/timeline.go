package timeline

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"cookietrail/services/recorder/internal/classifier"
	"cookietrail/services/recorder/internal/session"
)

const maxSnippetRunes = 140

type EntryKind string

const (
	KindMilestone EntryKind = "milestone"
	KindConnector EntryKind = "connector"
	KindSummary   EntryKind = "summary"
)

type CategoryCount struct {
	Category classifier.Category `json:"category"`
	Count    int                 `json:"count"`
}

// Entry is one rendered row of a session timeline.
type Entry struct {
	Kind      EntryKind       `json:"kind"`
	Timestamp time.Time       `json:"timestamp"`
	Lines     []string        `json:"lines"`
	Event     session.Kind    `json:"event,omitempty"`
	ElapsedMs int64           `json:"elapsedMs,omitempty"`
	Added     []CategoryCount `json:"added,omitempty"`
	Removed   []CategoryCount `json:"removed,omitempty"`
}

// Aggregate renders events as milestones separated by elapsed-time connectors,
// with cookie activity between two milestones folded into one summary entry.
// Events are sorted by timestamp first; ties keep their arrival order.
func Aggregate(events []session.Event) []Entry {
	ordered := make([]session.Event, len(events))
	copy(ordered, events)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Details().Timestamp.Before(ordered[j].Details().Timestamp)
	})

	var (
		entries      []Entry
		open         *batch
		lastRendered time.Time
		rendered     bool
	)

	flush := func() {
		if open == nil {
			return
		}
		if summary, ok := open.summary(); ok {
			entries = append(entries, summary)
		}
		open = nil
	}

	for _, event := range ordered {
		ts := event.Details().Timestamp

		switch typed := event.(type) {
		case session.SessionStart, session.Click:
			if rendered {
				if delta := ts.Sub(lastRendered); delta > 0 {
					entries = append(entries, connector(ts, delta))
				}
			}
			flush()
			entries = append(entries, milestone(typed))
			lastRendered = ts
			rendered = true
		case session.SetCookieViaHeader:
			if open == nil {
				open = newBatch(ts)
			}
			open.add(typed.Cookie.Category)
		case session.CookieChanged:
			if open == nil {
				open = newBatch(ts)
			}
			if typed.Removed {
				open.remove(typed.Cookie.Category)
			} else {
				open.add(typed.Cookie.Category)
			}
		}
	}
	flush()

	return entries
}

// Lines flattens entries into display text.
func Lines(entries []Entry) []string {
	var lines []string
	for _, entry := range entries {
		lines = append(lines, entry.Lines...)
	}
	return lines
}

// CountByCategory tallies the session's current cookies per category in
// descending count order.
func CountByCategory(cookies []classifier.Result) []CategoryCount {
	tally := newTally()
	for _, result := range cookies {
		tally.inc(result.Category)
	}
	return tally.sorted()
}

func connector(ts time.Time, delta time.Duration) Entry {
	elapsed := delta.Round(time.Millisecond).Milliseconds()
	return Entry{
		Kind:      KindConnector,
		Timestamp: ts,
		Lines:     []string{fmt.Sprintf("| %dms", elapsed)},
		ElapsedMs: elapsed,
	}
}

func milestone(event session.Event) Entry {
	entry := Entry{
		Kind:      KindMilestone,
		Timestamp: event.Details().Timestamp,
		Event:     event.Kind(),
	}

	switch typed := event.(type) {
	case session.SessionStart:
		entry.Lines = []string{"Session started"}
	case session.Click:
		entry.Lines = []string{"Click"}
		if text := snippet(typed.Text); text != "" {
			entry.Lines[0] = fmt.Sprintf("Click | \"%s\"", text)
		}
	}
	return entry
}

func snippet(text string) string {
	collapsed := strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(collapsed) <= maxSnippetRunes {
		return collapsed
	}
	runes := []rune(collapsed)
	return string(runes[:maxSnippetRunes]) + "…"
}
