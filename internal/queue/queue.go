package queue

import (
	"context"

	"cookietrail/services/recorder/internal/session"
)

// TabEventMessage is one recorded tab event as published to the event stream.
type TabEventMessage struct {
	TabID int            `json:"tabId"`
	Event session.Record `json:"event"`
}

type StreamStats struct {
	Stream string `json:"stream"`
	Depth  int64  `json:"depth"`
}

type Publisher interface {
	PublishTabEvent(ctx context.Context, message TabEventMessage) error
	Close() error
}

type StatsProvider interface {
	StreamStats(ctx context.Context) (StreamStats, error)
}

type NoopPublisher struct{}

func NewNoopPublisher() *NoopPublisher {
	return &NoopPublisher{}
}

func (p *NoopPublisher) PublishTabEvent(_ context.Context, _ TabEventMessage) error {
	return nil
}

func (p *NoopPublisher) Close() error {
	return nil
}
