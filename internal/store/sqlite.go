package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS file_metadata (
	filename       TEXT PRIMARY KEY,
	upload_time    TEXT NOT NULL,
	file_size      INTEGER NOT NULL,
	status         TEXT NOT NULL,
	date_column    TEXT,
	earliest_date  TEXT,
	latest_date    TEXT,
	user_specified INTEGER NOT NULL DEFAULT 0,
	error_message  TEXT,
	run_seq        INTEGER NOT NULL DEFAULT 0
)`

const sqliteColumns = `filename, upload_time, file_size, status, date_column,
	earliest_date, latest_date, user_specified, error_message, run_seq`

// SQLiteStore keeps records in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and ensures the schema.
// Pass ":memory:" for an in-memory database (used by tests).
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("metadata store: sqlite path is empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("metadata store: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("metadata store: open sqlite: %w", err)
	}

	// One connection: updates are serialized and ":memory:" stays one database.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("metadata store: ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("metadata store: set busy timeout: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("metadata store: create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Create(ctx context.Context, filename string, size int64) (Record, error) {
	rec := NewRecord(filename, size, time.Now())
	if err := s.upsert(ctx, s.db, rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (s *SQLiteStore) Update(ctx context.Context, filename string, mutate func(*Record)) (Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Record{}, fmt.Errorf("metadata store: begin: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		"SELECT "+sqliteColumns+" FROM file_metadata WHERE filename = ?", filename)
	rec, err := scanSQLiteRecord(row)
	if err != nil {
		return Record{}, err
	}

	mutate(&rec)
	rec.Filename = filename
	if err := s.upsert(ctx, tx, rec); err != nil {
		return Record{}, err
	}
	if err := tx.Commit(); err != nil {
		return Record{}, fmt.Errorf("metadata store: commit: %w", err)
	}
	return rec, nil
}

func (s *SQLiteStore) Get(ctx context.Context, filename string) (Record, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+sqliteColumns+" FROM file_metadata WHERE filename = ?", filename)
	return scanSQLiteRecord(row)
}

func (s *SQLiteStore) All(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+sqliteColumns+" FROM file_metadata")
	if err != nil {
		return nil, fmt.Errorf("metadata store: list: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanSQLiteRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("metadata store: list: %w", err)
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, filename string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM file_metadata WHERE filename = ?", filename); err != nil {
		return fmt.Errorf("metadata store: delete: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteStore) upsert(ctx context.Context, db sqlExecer, rec Record) error {
	_, err := db.ExecContext(ctx, `INSERT INTO file_metadata (`+sqliteColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(filename) DO UPDATE SET
			upload_time = excluded.upload_time,
			file_size = excluded.file_size,
			status = excluded.status,
			date_column = excluded.date_column,
			earliest_date = excluded.earliest_date,
			latest_date = excluded.latest_date,
			user_specified = excluded.user_specified,
			error_message = excluded.error_message,
			run_seq = excluded.run_seq`,
		rec.Filename,
		rec.UploadTime.UTC().Format(time.RFC3339Nano),
		rec.FileSize,
		string(rec.Status),
		nullString(rec.DateColumn),
		nullString(rec.EarliestDate),
		nullString(rec.LatestDate),
		rec.UserSpecified,
		nullString(rec.ErrorMessage),
		int64(rec.RunSeq),
	)
	if err != nil {
		return fmt.Errorf("metadata store: write %s: %w", rec.Filename, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteRecord(row rowScanner) (Record, error) {
	var (
		rec                           Record
		uploaded, status              string
		dateCol, earliest, latest, em sql.NullString
		seq                           int64
	)
	err := row.Scan(&rec.Filename, &uploaded, &rec.FileSize, &status, &dateCol,
		&earliest, &latest, &rec.UserSpecified, &em, &seq)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("metadata store: scan: %w", err)
	}

	t, err := time.Parse(time.RFC3339Nano, uploaded)
	if err != nil {
		return Record{}, fmt.Errorf("metadata store: upload_time %q: %w", uploaded, err)
	}
	rec.UploadTime = t
	rec.Status = Status(status)
	rec.DateColumn = stringPtr(dateCol)
	rec.EarliestDate = stringPtr(earliest)
	rec.LatestDate = stringPtr(latest)
	rec.ErrorMessage = stringPtr(em)
	rec.RunSeq = uint64(seq)
	return rec, nil
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
