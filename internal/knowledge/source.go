package knowledge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/afero"

	"cookietrail/services/recorder/internal/artifacts"
	"cookietrail/services/recorder/internal/classifier"
	"cookietrail/services/recorder/internal/store"
)

var ErrUnsupportedLocator = errors.New("unsupported knowledge base locator")

const maxDocumentBytes = 64 << 20

// Source yields the reference entries of one knowledge base, in order.
type Source interface {
	Fetch(ctx context.Context) ([]classifier.Entry, error)
	Close() error
}

type FileSource struct {
	fs   afero.Fs
	path string
}

func NewFileSource(fs afero.Fs, path string) *FileSource {
	return &FileSource{fs: fs, path: path}
}

func (s *FileSource) Fetch(_ context.Context) ([]classifier.Entry, error) {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		return nil, fmt.Errorf("read knowledge base file: %w", err)
	}
	return classifier.DecodeEntries(data)
}

func (s *FileSource) Close() error {
	return nil
}

type HTTPSource struct {
	client *http.Client
	url    string
}

func NewHTTPSource(client *http.Client, url string) *HTTPSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSource{client: client, url: url}
}

func (s *HTTPSource) Fetch(ctx context.Context) ([]classifier.Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build knowledge base request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch knowledge base: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch knowledge base: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, fmt.Errorf("read knowledge base body: %w", err)
	}
	return classifier.DecodeEntries(data)
}

func (s *HTTPSource) Close() error {
	return nil
}

type ObjectSource struct {
	store    artifacts.Store
	location artifacts.ObjectLocation
}

func NewObjectSource(objects artifacts.Store, location artifacts.ObjectLocation) *ObjectSource {
	return &ObjectSource{store: objects, location: location}
}

func (s *ObjectSource) Fetch(ctx context.Context) ([]classifier.Entry, error) {
	payload, err := s.store.LoadJSON(ctx, s.location)
	if err != nil {
		return nil, fmt.Errorf("load knowledge base object: %w", err)
	}
	return classifier.DecodeEntries(payload)
}

func (s *ObjectSource) Close() error {
	return s.store.Close()
}

// ReferenceReader is the part of the Postgres store a table source needs.
type ReferenceReader interface {
	ListReferenceRows(ctx context.Context, table string) ([]store.ReferenceRow, error)
}

type TableSource struct {
	db     ReferenceReader
	table  string
	closer func()
}

func NewTableSource(db ReferenceReader, table string) *TableSource {
	return &TableSource{db: db, table: table}
}

func (s *TableSource) Fetch(ctx context.Context) ([]classifier.Entry, error) {
	rows, err := s.db.ListReferenceRows(ctx, s.table)
	if err != nil {
		return nil, fmt.Errorf("load knowledge base table: %w", err)
	}

	entries := make([]classifier.Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, row.Entry())
	}
	return entries, nil
}

func (s *TableSource) Close() error {
	if s.closer != nil {
		s.closer()
	}
	return nil
}

// Options carries what Resolve needs to open a source.
type Options struct {
	Fs         afero.Fs
	HTTPClient *http.Client
	S3Region   string
	S3Endpoint string
	S3Access   string
	S3Secret   string
	Table      string
}

// Resolve picks a source for locator by scheme: file paths, http(s) URLs,
// s3://bucket/key objects and postgres:// reference tables.
func Resolve(ctx context.Context, locator string, opts Options) (Source, error) {
	trimmed := strings.TrimSpace(locator)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty locator", ErrUnsupportedLocator)
	}

	scheme := ""
	if index := strings.Index(trimmed, "://"); index > 0 {
		scheme = strings.ToLower(trimmed[:index])
	}

	switch scheme {
	case "", "file":
		fs := opts.Fs
		if fs == nil {
			fs = afero.NewOsFs()
		}
		return NewFileSource(fs, filePath(trimmed, scheme)), nil
	case "http", "https":
		return NewHTTPSource(opts.HTTPClient, trimmed), nil
	case "s3":
		location, err := artifacts.ParseObjectURL(trimmed)
		if err != nil {
			return nil, err
		}
		if opts.S3Region == "" {
			return NewObjectSource(artifacts.NewNoopStore(), location), nil
		}
		objects, err := artifacts.NewS3Store(ctx, opts.S3Region, opts.S3Endpoint, opts.S3Access, opts.S3Secret)
		if err != nil {
			return nil, err
		}
		return NewObjectSource(objects, location), nil
	case "postgres", "postgresql":
		db, err := store.NewPostgres(ctx, trimmed)
		if err != nil {
			return nil, fmt.Errorf("connect knowledge base database: %w", err)
		}
		source := NewTableSource(db, opts.Table)
		source.closer = db.Close
		return source, nil
	default:
		return nil, fmt.Errorf("%w: scheme %q", ErrUnsupportedLocator, scheme)
	}
}

func filePath(locator, scheme string) string {
	if scheme == "" {
		return locator
	}
	return locator[len(scheme)+len("://"):]
}
