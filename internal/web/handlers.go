package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/dateprobe/internal/core"
	"github.com/JonMunkholm/dateprobe/internal/logging"
	"github.com/JonMunkholm/dateprobe/internal/store"
)

const (
	// DefaultPreviewRows is the preview size when ?rows is absent.
	DefaultPreviewRows = 100

	// MaxPreviewRows caps ?rows.
	MaxPreviewRows = 1000

	// multipartMemory is held in memory before the upload spills to disk.
	multipartMemory = 32 << 20
)

// fileName returns the unescaped {name} URL parameter.
func fileName(r *http.Request) string {
	raw := chi.URLParam(r, "name")
	if name, err := url.PathUnescape(raw); err == nil {
		return name
	}
	return raw
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}

// ----------------------------------------------------------------------------
// Upload and listing
// ----------------------------------------------------------------------------

// handleUpload saves a multipart "file", registers it and starts automatic
// detection. Responds 201 with the record, normally in processing state.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Upload.MaxFileSize
	if r.ContentLength > maxSize {
		respondError(w, r, fmt.Errorf("file too large: %d bytes exceeds %d", r.ContentLength, maxSize), http.StatusRequestEntityTooLarge)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxSize)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			respondError(w, r, fmt.Errorf("file too large: %w", err), http.StatusRequestEntityTooLarge)
			return
		}
		respondError(w, r, fmt.Errorf("no file provided: %w", err), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, r, fmt.Errorf("no file provided: %w", err), http.StatusBadRequest)
		return
	}
	defer file.Close()

	if _, err := core.FormatFromPath(header.Filename); err != nil {
		respondError(w, r, err, 0)
		return
	}

	ctx := r.Context()
	name, size, err := s.files.Save(header.Filename, file)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	logger := logging.WithFields(ctx, "file", name, "size", size)
	logger.Info("file uploaded")

	if _, err := s.proc.Register(ctx, name, size); err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	if _, err := s.proc.Start(ctx, name, core.AutoDetect()); err != nil {
		respondError(w, r, err, 0)
		return
	}

	rec, err := s.proc.Store().Get(ctx, name)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// handleListFiles returns a record for every file in the uploads area,
// newest first. Files without a stored record are reported as pending.
func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	entries, err := s.files.List()
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	records, err := s.proc.Store().All(ctx)
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	byName := make(map[string]store.Record, len(records))
	for _, rec := range records {
		byName[rec.Filename] = rec
	}

	out := make([]store.Record, 0, len(entries))
	for _, e := range entries {
		rec, ok := byName[e.Name]
		if !ok {
			rec = store.NewRecord(e.Name, e.Size, e.ModTime)
		}
		out = append(out, rec)
	}
	writeJSON(w, http.StatusOK, out)
}

// ----------------------------------------------------------------------------
// Single file
// ----------------------------------------------------------------------------

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	rec, err := s.proc.Store().Get(r.Context(), fileName(r))
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleDeleteFile cancels runs for the file, then removes its record and
// the file itself. Responds 404 only when neither existed.
func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := fileName(r)

	_, getErr := s.proc.Store().Get(ctx, name)
	hadRecord := getErr == nil

	if err := s.proc.Remove(ctx, name); err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	err := s.files.Delete(name)
	switch {
	case err == nil:
	case errors.Is(err, core.ErrFileNotFound) && hadRecord:
	default:
		respondError(w, r, err, 0)
		return
	}

	logging.WithFields(ctx, "file", name).Info("file deleted")
	w.WriteHeader(http.StatusNoContent)
}

// columnsResponse is the body of GET /api/files/{name}/columns.
type columnsResponse struct {
	Filename    string       `json:"filename"`
	Columns     []string     `json:"columns"`
	DateColumns []dateColumn `json:"date_columns"`
}

// dateColumn is a column the classifier accepts, with the matching format.
type dateColumn struct {
	Column string `json:"column"`
	Format string `json:"format"`
}

func (s *Server) handleColumns(w http.ResponseWriter, r *http.Request) {
	name := fileName(r)
	path, err := s.files.Path(name)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	engine := s.proc.Engine()
	cols, err := engine.ColumnNames(path)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	cands, err := engine.DetectAll(r.Context(), path)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}

	resp := columnsResponse{Filename: name, Columns: cols, DateColumns: make([]dateColumn, len(cands))}
	for i, c := range cands {
		resp.DateColumns[i] = dateColumn{Column: c.Column, Format: c.FormatName()}
	}
	writeJSON(w, http.StatusOK, resp)
}

// previewResponse is the body of GET /api/files/{name}/preview.
type previewResponse struct {
	Filename string     `json:"filename"`
	Columns  []string   `json:"columns"`
	Rows     [][]string `json:"rows"`
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	name := fileName(r)
	rows := min(parseIntParam(r, "rows", DefaultPreviewRows), MaxPreviewRows)

	path, err := s.files.Path(name)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	ds, err := s.proc.Engine().Preview(r.Context(), path, rows)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}

	resp := previewResponse{
		Filename: name,
		Columns:  ds.Names(),
		Rows:     make([][]string, ds.Rows()),
	}
	for i := range resp.Rows {
		resp.Rows[i] = ds.Row(i)
	}
	writeJSON(w, http.StatusOK, resp)
}

// reprocessRequest is the body of POST /api/files/{name}/reprocess.
// An empty body means automatic detection. Format applies to mode column.
type reprocessRequest struct {
	Mode   string `json:"mode"`
	Column string `json:"column"`
	Format string `json:"format"`
}

// reprocessResponse reports the run that was started.
type reprocessResponse struct {
	Filename string       `json:"filename"`
	RunSeq   uint64       `json:"run_seq"`
	Record   store.Record `json:"record"`
}

func (s *Server) handleReprocess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := fileName(r)

	var req reprocessRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, r, fmt.Errorf("invalid request body: %w", err), http.StatusBadRequest)
		return
	}

	choice, err := choiceFrom(req)
	if err != nil {
		respondError(w, r, err, http.StatusBadRequest)
		return
	}

	seq, err := s.proc.Start(ctx, name, choice)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	rec, err := s.proc.Store().Get(ctx, name)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusAccepted, reprocessResponse{Filename: name, RunSeq: seq, Record: rec})
}

func choiceFrom(req reprocessRequest) (core.ColumnChoice, error) {
	mode, err := core.ParseChoiceMode(req.Mode)
	if err != nil {
		return core.ColumnChoice{}, fmt.Errorf("invalid request: %w", err)
	}
	if mode != core.ChoiceColumn && strings.TrimSpace(req.Format) != "" {
		return core.ColumnChoice{}, errors.New("invalid request: format needs mode column")
	}
	switch mode {
	case core.ChoiceColumn:
		col := strings.TrimSpace(req.Column)
		if col == "" {
			return core.ColumnChoice{}, errors.New("invalid request: mode column needs a column name")
		}
		format, err := core.ParseFormatHint(req.Format)
		if err != nil {
			return core.ColumnChoice{}, fmt.Errorf("invalid request: %w", err)
		}
		return core.UseColumnFormat(col, format), nil
	case core.ChoiceNone:
		return core.NoDateColumn(), nil
	default:
		return core.AutoDetect(), nil
	}
}

// handleHarmonized streams the file as CSV with a _harmonized column
// appended for every detected date column.
func (s *Server) handleHarmonized(w http.ResponseWriter, r *http.Request) {
	name := fileName(r)
	path, err := s.files.Path(name)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}

	var buf bytes.Buffer
	cands, err := s.proc.Engine().HarmonizeTo(r.Context(), path, &buf)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}

	base := strings.TrimSuffix(name, filepath.Ext(name))
	download := base + core.HarmonizedSuffix + ".csv"

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", download))
	w.Header().Set("X-Date-Columns", strconv.Itoa(len(cands)))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		logging.FromContext(r.Context()).Warn("harmonized download interrupted", "file", name, "error", err)
	}
}
