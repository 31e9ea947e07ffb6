package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// JSONStore keeps all records in one JSON file.
//
// Every operation re-reads the file so edits made while the process runs are
// picked up. A missing file means no records. A file that does not decode is
// logged and treated as empty; the next write replaces it.
type JSONStore struct {
	path string

	mu sync.Mutex
}

// NewJSONStore returns a store backed by path. The parent directory is
// created if needed; the file itself is written on the first change.
func NewJSONStore(path string) (*JSONStore, error) {
	if path == "" {
		return nil, errors.New("metadata store: json path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("metadata store: create directory: %w", err)
	}
	return &JSONStore{path: path}, nil
}

// Path returns the metadata file location.
func (s *JSONStore) Path() string {
	return s.path
}

func (s *JSONStore) Create(ctx context.Context, filename string, size int64) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return Record{}, err
	}
	rec := NewRecord(filename, size, time.Now())
	records[filename] = rec
	if err := s.save(records); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (s *JSONStore) Update(ctx context.Context, filename string, mutate func(*Record)) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return Record{}, err
	}
	rec, ok := records[filename]
	if !ok {
		return Record{}, ErrNotFound
	}
	mutate(&rec)
	rec.Filename = filename
	records[filename] = rec
	if err := s.save(records); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (s *JSONStore) Get(ctx context.Context, filename string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return Record{}, err
	}
	rec, ok := records[filename]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (s *JSONStore) All(ctx context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(records))
	for _, rec := range records {
		out = append(out, rec)
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *JSONStore) Delete(ctx context.Context, filename string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := records[filename]; !ok {
		return nil
	}
	delete(records, filename)
	return s.save(records)
}

func (s *JSONStore) Close() error {
	return nil
}

// load reads the metadata file. Caller holds s.mu.
func (s *JSONStore) load() (map[string]Record, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("metadata store: read %s: %w", s.path, err)
	}

	records := map[string]Record{}
	if len(data) == 0 {
		return records, nil
	}
	if err := json.Unmarshal(data, &records); err != nil {
		slog.Warn("metadata file is corrupt, treating as empty",
			"path", s.path,
			"error", err,
		)
		return map[string]Record{}, nil
	}
	for name, rec := range records {
		if rec.Filename == "" {
			rec.Filename = name
			records[name] = rec
		}
	}
	return records, nil
}

// save replaces the metadata file atomically. Caller holds s.mu.
func (s *JSONStore) save(records map[string]Record) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("metadata store: encode: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".metadata-*.tmp")
	if err != nil {
		return fmt.Errorf("metadata store: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("metadata store: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("metadata store: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("metadata store: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("metadata store: replace %s: %w", s.path, err)
	}
	committed = true
	return nil
}
