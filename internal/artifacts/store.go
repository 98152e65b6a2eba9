package artifacts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var ErrNotConfigured = errors.New("object store not configured")

// Store reads JSON documents, such as knowledge-base exports, from object
// storage.
type Store interface {
	LoadJSON(ctx context.Context, location ObjectLocation) (json.RawMessage, error)
	LoadObject(ctx context.Context, location ObjectLocation) ([]byte, string, error)
	Close() error
}

type ObjectLocation struct {
	Bucket string
	Key    string
}

func (l ObjectLocation) String() string {
	return "s3://" + l.Bucket + "/" + l.Key
}

// ParseObjectURL splits an s3://bucket/key locator.
func ParseObjectURL(raw string) (ObjectLocation, error) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ObjectLocation{}, fmt.Errorf("parse object url: %w", err)
	}
	if !strings.EqualFold(parsed.Scheme, "s3") {
		return ObjectLocation{}, fmt.Errorf("object url scheme must be s3, got %q", parsed.Scheme)
	}

	location := ObjectLocation{
		Bucket: parsed.Host,
		Key:    strings.TrimPrefix(parsed.Path, "/"),
	}
	if location.Bucket == "" || location.Key == "" {
		return ObjectLocation{}, fmt.Errorf("object url needs bucket and key: %s", raw)
	}
	return location, nil
}

type NoopStore struct{}

func NewNoopStore() *NoopStore {
	return &NoopStore{}
}

func (s *NoopStore) LoadJSON(_ context.Context, _ ObjectLocation) (json.RawMessage, error) {
	return nil, ErrNotConfigured
}

func (s *NoopStore) LoadObject(_ context.Context, _ ObjectLocation) ([]byte, string, error) {
	return nil, "", ErrNotConfigured
}

func (s *NoopStore) Close() error {
	return nil
}
