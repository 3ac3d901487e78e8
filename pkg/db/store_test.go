package db

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// Ensure single connection to avoid separate in-memory DBs per connection.
	conn.SetMaxOpenConns(1)
	require.NoError(t, InitDB(context.Background(), conn))
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestInitDBCreatesSchema(t *testing.T) {
	conn := setupTestDB(t)

	for _, table := range []string{"entries", "inflections"} {
		var name string
		err := conn.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		require.NoError(t, err, "table %s missing", table)
	}
}

func TestInsertAndList(t *testing.T) {
	ctx := context.Background()
	conn := setupTestDB(t)

	require.NoError(t, InsertEntry(ctx, conn, Entry{Seq: 1, ID: "go-1", Headword: "go", Explanation: "<p>go</p>", Inflections: []string{"going", "went"}}))
	require.NoError(t, InsertEntry(ctx, conn, Entry{Seq: 2, ID: "cat", Headword: "cat", Explanation: "<p>cat</p>"}))
	require.NoError(t, InsertEntry(ctx, conn, Entry{Seq: 3, ID: "go-1_infl1", Headword: "go", Explanation: "<p>go</p>", Inflections: []string{"gone"}, ContinuationOf: 1}))

	got, err := ListEntries(ctx, conn, 0, 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"going", "went"}, got[0].Inflections)
	assert.Empty(t, got[1].Inflections)
	assert.Equal(t, int64(1), got[2].ContinuationOf)
	assert.True(t, got[2].IsContinuation())

	page, err := ListEntries(ctx, conn, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "cat", page[0].ID)

	rest, err := ListEntries(ctx, conn, 3, 10)
	require.NoError(t, err)
	assert.Empty(t, rest)

	n, err := CountEntries(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestInsertEntryRejectsDuplicateID(t *testing.T) {
	ctx := context.Background()
	conn := setupTestDB(t)

	require.NoError(t, InsertEntry(ctx, conn, Entry{Seq: 1, ID: "a", Headword: "a"}))
	err := InsertEntry(ctx, conn, Entry{Seq: 2, ID: "a", Headword: "b"})
	require.Error(t, err)
	assert.True(t, IsUniqueConstraintErr(err))
}

func TestUpdateExplanationAndInflections(t *testing.T) {
	ctx := context.Background()
	conn := setupTestDB(t)
	require.NoError(t, InsertEntry(ctx, conn, Entry{Seq: 1, ID: "a", Headword: "a", Explanation: "old", Inflections: []string{"x"}}))

	require.NoError(t, UpdateExplanation(ctx, conn, 1, "new"))
	got, err := GetExplanation(ctx, conn, 1)
	require.NoError(t, err)
	assert.Equal(t, "new", got)

	require.NoError(t, ReplaceInflections(ctx, conn, 1, []string{"y", "z"}))
	entries, err := ListEntries(ctx, conn, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"y", "z"}, entries[0].Inflections)

	assert.ErrorIs(t, UpdateExplanation(ctx, conn, 42, "x"), ErrEntryNotFound)
	_, err = GetExplanation(ctx, conn, 42)
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestInsertManyInflectionsSpansStatements(t *testing.T) {
	ctx := context.Background()
	conn := setupTestDB(t)
	forms := make([]string, 0, 450)
	for i := 0; i < 450; i++ {
		forms = append(forms, "form"+string(rune('a'+i%26))+string(rune('a'+i/26)))
	}
	require.NoError(t, InsertEntry(ctx, conn, Entry{Seq: 1, ID: "a", Headword: "a", Inflections: forms}))

	entries, err := ListEntries(ctx, conn, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, forms, entries[0].Inflections)
}

func TestWithTxRollsBack(t *testing.T) {
	ctx := context.Background()
	conn := setupTestDB(t)

	err := WithTx(ctx, conn, func(tx *sql.Tx) error {
		if err := InsertEntry(ctx, tx, Entry{Seq: 1, ID: "a", Headword: "a"}); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	n, err := CountEntries(ctx, conn)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStagingRemovedOnClose(t *testing.T) {
	dir := t.TempDir()
	st, err := OpenStaging(context.Background(), dir)
	require.NoError(t, err)

	require.NoError(t, InsertEntry(context.Background(), st.DB, Entry{Seq: 1, ID: "a", Headword: "a"}))
	path := st.Path()
	_, err = os.Stat(path)
	require.NoError(t, err)

	require.NoError(t, st.Close())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	assert.NoError(t, st.Close())
}
