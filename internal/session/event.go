package session

import (
	"fmt"
	"time"

	"cookietrail/services/recorder/internal/classifier"
)

type Kind string

const (
	KindCookieChanged      Kind = "cookie-changed"
	KindSessionStart       Kind = "session-started"
	KindSetCookieViaHeader Kind = "set-cookie-via-header"
	KindClick              Kind = "user-click"
)

// Event is one entry of a session's log. The set of implementations is closed:
// SessionStart, SetCookieViaHeader, Click and CookieChanged.
type Event interface {
	Kind() Kind
	Details() Base
	sealed()
}

// Base carries the fields every event has.
type Base struct {
	SessionID string
	URL       string
	Timestamp time.Time
}

func (b Base) Details() Base { return b }

func (Base) sealed() {}

type SessionStart struct {
	Base
}

func (SessionStart) Kind() Kind { return KindSessionStart }

type SetCookieViaHeader struct {
	Base
	Cookie classifier.Result
}

func (SetCookieViaHeader) Kind() Kind { return KindSetCookieViaHeader }

type Click struct {
	Base
	CSSSelector string
	MouseButton int
	Text        string
}

func (Click) Kind() Kind { return KindClick }

// CookieChanged is reserved for cookie-store notifications. Removed marks a
// deletion rather than a write.
type CookieChanged struct {
	Base
	Cookie  classifier.Result
	Removed bool
}

func (CookieChanged) Kind() Kind { return KindCookieChanged }

// Record is the transferable JSON shape of an Event.
type Record struct {
	Type      Kind       `json:"type"`
	URL       string     `json:"url"`
	SessionID string     `json:"sessionId"`
	Timestamp int64      `json:"timestamp"`
	Meta      *EventMeta `json:"meta,omitempty"`
}

type EventMeta struct {
	CookieData *classifier.Result `json:"cookieData,omitempty"`
	Removed    bool               `json:"removed,omitempty"`
	ClickData  *ClickData         `json:"clickData,omitempty"`
}

type ClickData struct {
	CSSSelector string `json:"cssSelector,omitempty"`
	Text        string `json:"text,omitempty"`
	MouseButton int    `json:"mouseButton"`
}

func ToRecord(event Event) Record {
	common := event.Details()
	record := Record{
		Type:      event.Kind(),
		URL:       common.URL,
		SessionID: common.SessionID,
		Timestamp: common.Timestamp.UnixMilli(),
	}

	switch typed := event.(type) {
	case SetCookieViaHeader:
		cookie := typed.Cookie
		record.Meta = &EventMeta{CookieData: &cookie}
	case CookieChanged:
		cookie := typed.Cookie
		record.Meta = &EventMeta{CookieData: &cookie, Removed: typed.Removed}
	case Click:
		record.Meta = &EventMeta{ClickData: &ClickData{
			CSSSelector: typed.CSSSelector,
			Text:        typed.Text,
			MouseButton: typed.MouseButton,
		}}
	}
	return record
}

func FromRecord(record Record) (Event, error) {
	common := Base{
		SessionID: record.SessionID,
		URL:       record.URL,
		Timestamp: time.UnixMilli(record.Timestamp),
	}
	meta := record.Meta
	if meta == nil {
		meta = &EventMeta{}
	}

	switch record.Type {
	case KindSessionStart:
		return SessionStart{Base: common}, nil
	case KindSetCookieViaHeader:
		return SetCookieViaHeader{Base: common, Cookie: cookieData(meta)}, nil
	case KindCookieChanged:
		return CookieChanged{Base: common, Cookie: cookieData(meta), Removed: meta.Removed}, nil
	case KindClick:
		click := Click{Base: common}
		if meta.ClickData != nil {
			click.CSSSelector = meta.ClickData.CSSSelector
			click.MouseButton = meta.ClickData.MouseButton
			click.Text = meta.ClickData.Text
		}
		return click, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", record.Type)
	}
}

func cookieData(meta *EventMeta) classifier.Result {
	if meta.CookieData == nil {
		return classifier.Result{Category: classifier.CategoryUnknown, Confidence: classifier.ConfidenceLow}
	}
	return *meta.CookieData
}
