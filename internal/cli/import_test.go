package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cookietrail/services/recorder/internal/classifier"
	"cookietrail/services/recorder/internal/store"
)

type staticSource struct {
	entries []classifier.Entry
	err     error
}

func (s staticSource) Fetch(context.Context) ([]classifier.Entry, error) { return s.entries, s.err }
func (s staticSource) Close() error                                     { return nil }

type fakeReferenceWriter struct {
	pinged    bool
	healthErr error
	ensured   string
	table     string
	rows      []store.ReferenceRow
	existing  int
	err       error
}

func (f *fakeReferenceWriter) Health(context.Context) error {
	f.pinged = true
	return f.healthErr
}

func (f *fakeReferenceWriter) EnsureReferenceTable(_ context.Context, table string) error {
	f.ensured = table
	return f.err
}

func (f *fakeReferenceWriter) ReplaceReferenceRows(_ context.Context, table string, rows []store.ReferenceRow) (store.ImportResult, error) {
	f.table = table
	f.rows = rows
	return store.ImportResult{Table: table, Replaced: f.existing, Imported: len(rows)}, nil
}

func TestImportKBReplacesTableInDocumentOrder(t *testing.T) {
	src := staticSource{entries: []classifier.Entry{
		{ID: "b", Cookie: "_gid", Category: "Analytics"},
		{ID: "a", Cookie: "_ga", Category: "Analytics"},
	}}
	db := &fakeReferenceWriter{existing: 7}
	var out bytes.Buffer

	cmd := &ImportKBCommand{Table: "cookie_reference_entries", globals: &GlobalFlags{}}
	require.NoError(t, cmd.run(context.Background(), &out, src, db))

	assert.True(t, db.pinged)
	assert.Equal(t, "cookie_reference_entries", db.ensured)
	require.Len(t, db.rows, 2)
	assert.Equal(t, 0, db.rows[0].Position)
	assert.Equal(t, "b", db.rows[0].ID)
	assert.Equal(t, 1, db.rows[1].Position)
	assert.Equal(t, "imported 2 entries into cookie_reference_entries (replaced 7)\n", out.String())
}

func TestImportKBStopsWhenSourceFails(t *testing.T) {
	db := &fakeReferenceWriter{}
	cmd := &ImportKBCommand{Table: "refs", globals: &GlobalFlags{}}

	err := cmd.run(context.Background(), &bytes.Buffer{}, staticSource{err: errors.New("unreachable")}, db)
	assert.ErrorContains(t, err, "unreachable")
	assert.Empty(t, db.ensured)
}

func TestImportKBReportsTableErrors(t *testing.T) {
	db := &fakeReferenceWriter{err: errors.New("permission denied")}
	cmd := &ImportKBCommand{Table: "refs", globals: &GlobalFlags{JSON: true}}

	err := cmd.run(context.Background(), &bytes.Buffer{}, staticSource{}, db)
	assert.ErrorContains(t, err, "prepare reference table")
	assert.Nil(t, db.rows)
}

func TestImportKBChecksDestinationBeforeReading(t *testing.T) {
	db := &fakeReferenceWriter{healthErr: errors.New("connection refused")}
	cmd := &ImportKBCommand{Table: "refs", globals: &GlobalFlags{}}

	err := cmd.run(context.Background(), &bytes.Buffer{}, staticSource{err: errors.New("should not be fetched")}, db)
	assert.ErrorContains(t, err, "destination database unreachable")
	assert.NotContains(t, err.Error(), "should not be fetched")
	assert.Empty(t, db.ensured)
}
