package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `CREATE TABLE IF NOT EXISTS file_metadata (
	filename       TEXT PRIMARY KEY,
	upload_time    TIMESTAMPTZ NOT NULL,
	file_size      BIGINT NOT NULL,
	status         TEXT NOT NULL,
	date_column    TEXT,
	earliest_date  TEXT,
	latest_date    TEXT,
	user_specified BOOLEAN NOT NULL DEFAULT FALSE,
	error_message  TEXT,
	run_seq        BIGINT NOT NULL DEFAULT 0
)`

const postgresColumns = `filename, upload_time, file_size, status, date_column,
	earliest_date, latest_date, user_specified, error_message, run_seq`

const postgresUpsert = `INSERT INTO file_metadata (` + postgresColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (filename) DO UPDATE SET
		upload_time = EXCLUDED.upload_time,
		file_size = EXCLUDED.file_size,
		status = EXCLUDED.status,
		date_column = EXCLUDED.date_column,
		earliest_date = EXCLUDED.earliest_date,
		latest_date = EXCLUDED.latest_date,
		user_specified = EXCLUDED.user_specified,
		error_message = EXCLUDED.error_message,
		run_seq = EXCLUDED.run_seq`

// PostgresStore keeps records in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to databaseURL and ensures the schema.
// Non-positive pool sizes keep the pgxpool defaults.
func OpenPostgres(ctx context.Context, databaseURL string, maxConns, minConns int32) (*PostgresStore, error) {
	if databaseURL == "" {
		return nil, errors.New("metadata store: DATABASE_URL is required for the postgres backend")
	}

	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("metadata store: parse database url: %w", err)
	}
	if maxConns > 0 {
		poolConfig.MaxConns = maxConns
	}
	if minConns > 0 {
		poolConfig.MinConns = minConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("metadata store: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("metadata store: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("metadata store: create schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresStore wraps an existing pool. The schema must already exist.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Create(ctx context.Context, filename string, size int64) (Record, error) {
	rec := NewRecord(filename, size, time.Now())
	if _, err := s.pool.Exec(ctx, postgresUpsert, recordArgs(rec)...); err != nil {
		return Record{}, fmt.Errorf("metadata store: write %s: %w", filename, err)
	}
	return rec, nil
}

func (s *PostgresStore) Update(ctx context.Context, filename string, mutate func(*Record)) (Record, error) {
	var rec Record
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			"SELECT "+postgresColumns+" FROM file_metadata WHERE filename = $1 FOR UPDATE", filename)
		var err error
		rec, err = scanPostgresRecord(row)
		if err != nil {
			return err
		}

		mutate(&rec)
		rec.Filename = filename
		if _, err := tx.Exec(ctx, postgresUpsert, recordArgs(rec)...); err != nil {
			return fmt.Errorf("metadata store: write %s: %w", filename, err)
		}
		return nil
	})
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (s *PostgresStore) Get(ctx context.Context, filename string) (Record, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT "+postgresColumns+" FROM file_metadata WHERE filename = $1", filename)
	return scanPostgresRecord(row)
}

func (s *PostgresStore) All(ctx context.Context) ([]Record, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+postgresColumns+" FROM file_metadata ORDER BY upload_time DESC, filename")
	if err != nil {
		return nil, fmt.Errorf("metadata store: list: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanPostgresRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("metadata store: list: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Delete(ctx context.Context, filename string) error {
	if _, err := s.pool.Exec(ctx, "DELETE FROM file_metadata WHERE filename = $1", filename); err != nil {
		return fmt.Errorf("metadata store: delete: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func recordArgs(rec Record) []any {
	return []any{
		rec.Filename,
		rec.UploadTime,
		rec.FileSize,
		string(rec.Status),
		pgText(rec.DateColumn),
		pgText(rec.EarliestDate),
		pgText(rec.LatestDate),
		rec.UserSpecified,
		pgText(rec.ErrorMessage),
		int64(rec.RunSeq),
	}
}

func scanPostgresRecord(row pgx.Row) (Record, error) {
	var (
		rec                           Record
		status                        string
		dateCol, earliest, latest, em pgtype.Text
		seq                           int64
	)
	err := row.Scan(&rec.Filename, &rec.UploadTime, &rec.FileSize, &status, &dateCol,
		&earliest, &latest, &rec.UserSpecified, &em, &seq)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("metadata store: scan: %w", err)
	}
	rec.UploadTime = rec.UploadTime.UTC()
	rec.Status = Status(status)
	rec.DateColumn = textPtr(dateCol)
	rec.EarliestDate = textPtr(earliest)
	rec.LatestDate = textPtr(latest)
	rec.ErrorMessage = textPtr(em)
	rec.RunSeq = uint64(seq)
	return rec, nil
}

func pgText(p *string) pgtype.Text {
	if p == nil {
		return pgtype.Text{}
	}
	return pgtype.Text{String: *p, Valid: true}
}

func textPtr(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	s := t.String
	return &s
}
