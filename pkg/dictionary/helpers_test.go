package dictionary

import (
	"bytes"
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"

	"github.com/japaniel/tab2kindle/pkg/db"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *EntryStore {
	t.Helper()
	conn, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// Ensure single connection to avoid separate in-memory DBs per connection.
	conn.SetMaxOpenConns(1)
	require.NoError(t, db.InitDB(context.Background(), conn))
	t.Cleanup(func() { conn.Close() })
	return NewEntryStore(conn)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func bufferLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

func mustInsert(t *testing.T, s *EntryStore, headword, explanation string) Ref {
	t.Helper()
	ref, err := s.Insert(context.Background(), headword, explanation)
	require.NoError(t, err)
	return ref
}
