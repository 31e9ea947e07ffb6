// Package store persists one metadata record per uploaded file.
//
// Three backends share the Store interface:
//   - json: a single JSON object keyed by filename, replaced atomically on
//     every write (temp file, fsync, rename). The default.
//   - sqlite: a local database file through modernc.org/sqlite.
//   - postgres: a pgx connection pool.
//
// Update is a read-modify-write under the backend's own serialization
// (process mutex, single connection, or row lock). Callers that need to fence
// stale writers do so around Update; the store does not know about runs.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Status is the processing state of a file.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Terminal reports whether s ends a run.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Record is the metadata kept for one uploaded file.
type Record struct {
	Filename      string    `json:"filename"`
	UploadTime    time.Time `json:"upload_time"`
	FileSize      int64     `json:"file_size"`
	Status        Status    `json:"status"`
	DateColumn    *string   `json:"date_column"`
	EarliestDate  *string   `json:"earliest_date"`
	LatestDate    *string   `json:"latest_date"`
	UserSpecified bool      `json:"user_specified"`
	ErrorMessage  *string   `json:"error_message"`

	// RunSeq is the sequence number of the last run that started.
	RunSeq uint64 `json:"run_seq"`
}

// NewRecord returns a pending record for a freshly registered file.
func NewRecord(filename string, size int64, now time.Time) Record {
	return Record{
		Filename:   filename,
		UploadTime: now.UTC(),
		FileSize:   size,
		Status:     StatusPending,
	}
}

// ClearResult drops the date column, range and error message.
func (r *Record) ClearResult() {
	r.DateColumn = nil
	r.EarliestDate = nil
	r.LatestDate = nil
	r.ErrorMessage = nil
}

// ErrNotFound is returned when no record exists for a filename.
var ErrNotFound = errors.New("file not registered")

// Store is the metadata store contract.
type Store interface {
	// Create registers filename in pending state, replacing any prior record.
	Create(ctx context.Context, filename string, size int64) (Record, error)

	// Update applies mutate to the stored record and persists the result.
	// Returns ErrNotFound if the record does not exist.
	Update(ctx context.Context, filename string, mutate func(*Record)) (Record, error)

	// Get returns the record for filename or ErrNotFound.
	Get(ctx context.Context, filename string) (Record, error)

	// All returns every record, newest upload first.
	All(ctx context.Context) ([]Record, error)

	// Delete removes the record. Deleting an absent record is not an error.
	Delete(ctx context.Context, filename string) error

	Close() error
}

// Backend names accepted by Open.
const (
	BackendJSON     = "json"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Options selects and configures a backend.
type Options struct {
	Backend string

	// JSONPath is the metadata file for the json backend.
	JSONPath string

	// SQLitePath is the database file for the sqlite backend, or ":memory:".
	SQLitePath string

	// DatabaseURL is the connection string for the postgres backend.
	DatabaseURL string
	MaxConns    int32
	MinConns    int32
}

// Open returns the backend named by opts.Backend.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch strings.ToLower(opts.Backend) {
	case "", BackendJSON:
		return NewJSONStore(opts.JSONPath)
	case BackendSQLite:
		return OpenSQLite(ctx, opts.SQLitePath)
	case BackendPostgres:
		return OpenPostgres(ctx, opts.DatabaseURL, opts.MaxConns, opts.MinConns)
	default:
		return nil, fmt.Errorf("metadata store: unknown backend %q", opts.Backend)
	}
}

// sortNewestFirst orders records by upload time descending, then by name.
func sortNewestFirst(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].UploadTime.Equal(records[j].UploadTime) {
			return records[i].UploadTime.After(records[j].UploadTime)
		}
		return records[i].Filename < records[j].Filename
	})
}
