package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// DBExecutor is an interface that allows functions to accept either *sql.DB or *sql.Tx
type DBExecutor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// ErrEntryNotFound is returned when no row matches the requested seq.
var ErrEntryNotFound = errors.New("entry not found")

var builder = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// IsUniqueConstraintErr returns true when the error indicates a unique/constraint violation
func IsUniqueConstraintErr(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "unique") || strings.Contains(s, "constraint failed")
}

// WithTx runs fn inside a transaction, committing when fn returns nil.
func WithTx(ctx context.Context, conn *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback() // ignored if committed
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// InsertEntry writes a new entry row together with its inflections.
func InsertEntry(ctx context.Context, ex DBExecutor, e Entry) error {
	if e.Seq <= 0 {
		return fmt.Errorf("seq must be positive, got %d", e.Seq)
	}
	if e.ID == "" {
		return fmt.Errorf("entry %d: id must be non-empty", e.Seq)
	}
	var continuation interface{}
	if e.ContinuationOf != 0 {
		continuation = e.ContinuationOf
	}
	query, args, err := builder.
		Insert("entries").
		Columns("seq", "id", "headword", "explanation", "continuation_of").
		Values(e.Seq, e.ID, e.Headword, e.Explanation, continuation).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := ex.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert entry %q: %w", e.ID, err)
	}
	if len(e.Inflections) == 0 {
		return nil
	}
	return insertInflections(ctx, ex, e.Seq, e.Inflections)
}

// ReplaceInflections swaps the stored inflection list of an entry.
func ReplaceInflections(ctx context.Context, ex DBExecutor, seq int64, forms []string) error {
	query, args, err := builder.Delete("inflections").Where(sq.Eq{"entry_seq": seq}).ToSql()
	if err != nil {
		return err
	}
	if _, err := ex.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("clear inflections of %d: %w", seq, err)
	}
	if len(forms) == 0 {
		return nil
	}
	return insertInflections(ctx, ex, seq, forms)
}

// insertBatch bounds the number of bound parameters per statement well
// below SQLite's default limit.
const insertBatch = 200

func insertInflections(ctx context.Context, ex DBExecutor, seq int64, forms []string) error {
	for start := 0; start < len(forms); start += insertBatch {
		end := min(start+insertBatch, len(forms))
		stmt := builder.Insert("inflections").Columns("entry_seq", "position", "form")
		for i := start; i < end; i++ {
			stmt = stmt.Values(seq, i, forms[i])
		}
		query, args, err := stmt.ToSql()
		if err != nil {
			return err
		}
		if _, err := ex.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert inflections of %d: %w", seq, err)
		}
	}
	return nil
}

// UpdateExplanation overwrites the explanation of one entry.
func UpdateExplanation(ctx context.Context, ex DBExecutor, seq int64, explanation string) error {
	query, args, err := builder.Update("entries").
		Set("explanation", explanation).
		Where(sq.Eq{"seq": seq}).
		ToSql()
	if err != nil {
		return err
	}
	res, err := ex.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update explanation of %d: %w", seq, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update explanation of %d: %w", seq, ErrEntryNotFound)
	}
	return nil
}

// GetExplanation reads the current explanation of one entry.
func GetExplanation(ctx context.Context, ex DBExecutor, seq int64) (string, error) {
	query, args, err := builder.Select("explanation").From("entries").Where(sq.Eq{"seq": seq}).ToSql()
	if err != nil {
		return "", err
	}
	var explanation string
	if err := ex.QueryRowContext(ctx, query, args...).Scan(&explanation); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrEntryNotFound
		}
		return "", err
	}
	return explanation, nil
}

// ListEntries returns up to limit entries with seq greater than afterSeq,
// in seq order, with their inflections. Rows are fully read before return so
// callers never hold a connection between pages.
func ListEntries(ctx context.Context, ex DBExecutor, afterSeq int64, limit int) ([]Entry, error) {
	query, args, err := builder.
		Select("seq", "id", "headword", "explanation", "continuation_of").
		From("entries").
		Where(sq.Gt{"seq": afterSeq}).
		OrderBy("seq").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := ex.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var out []Entry
	for rows.Next() {
		var e Entry
		var continuation sql.NullInt64
		if err := rows.Scan(&e.Seq, &e.ID, &e.Headword, &e.Explanation, &continuation); err != nil {
			rows.Close()
			return nil, err
		}
		if continuation.Valid {
			e.ContinuationOf = continuation.Int64
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	if len(out) == 0 {
		return nil, nil
	}

	forms, err := listInflections(ctx, ex, out[0].Seq, out[len(out)-1].Seq)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Inflections = forms[out[i].Seq]
	}
	return out, nil
}

func listInflections(ctx context.Context, ex DBExecutor, fromSeq, toSeq int64) (map[int64][]string, error) {
	query, args, err := builder.
		Select("entry_seq", "form").
		From("inflections").
		Where(sq.And{sq.GtOrEq{"entry_seq": fromSeq}, sq.LtOrEq{"entry_seq": toSeq}}).
		OrderBy("entry_seq", "position").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := ex.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64][]string)
	for rows.Next() {
		var seq int64
		var form string
		if err := rows.Scan(&seq, &form); err != nil {
			return nil, err
		}
		out[seq] = append(out[seq], form)
	}
	return out, rows.Err()
}

// CountEntries returns the number of stored entries.
func CountEntries(ctx context.Context, ex DBExecutor) (int, error) {
	var n int
	err := ex.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`).Scan(&n)
	return n, err
}
