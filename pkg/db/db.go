package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// InitDB runs the embedded migrations on the given DB connection.
func InitDB(ctx context.Context, conn *sql.DB) error {
	fsys, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migrations fs: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, conn, fsys)
	if err != nil {
		return fmt.Errorf("migration provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Open opens a SQLite database file tuned for a single bulk writer with
// concurrent readers.
func Open(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_synchronous=OFF", path)
	return sql.Open("sqlite3", dsn)
}

// Staging is a throwaway database file that holds entries for the duration
// of one compile run. Close removes the file.
type Staging struct {
	DB   *sql.DB
	path string
}

// OpenStaging creates a fresh staging database in dir (os.TempDir when empty)
// and migrates it. On error nothing is left behind.
func OpenStaging(ctx context.Context, dir string) (*Staging, error) {
	f, err := os.CreateTemp(dir, "tab2kindle-*.db")
	if err != nil {
		return nil, fmt.Errorf("create staging file: %w", err)
	}
	path := f.Name()
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("create staging file: %w", err)
	}

	conn, err := Open(path)
	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("open staging db: %w", err)
	}
	if err := InitDB(ctx, conn); err != nil {
		conn.Close()
		removeStagingFiles(path)
		return nil, err
	}
	return &Staging{DB: conn, path: path}, nil
}

// Path returns the staging file location.
func (s *Staging) Path() string { return s.path }

// Close closes the connection and deletes the staging file together with
// its WAL side files. It is safe to call more than once.
func (s *Staging) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	err := s.DB.Close()
	s.DB = nil
	removeStagingFiles(s.path)
	return err
}

func removeStagingFiles(path string) {
	for _, p := range []string{path, path + "-wal", path + "-shm", path + "-journal"} {
		_ = os.Remove(p)
	}
}
