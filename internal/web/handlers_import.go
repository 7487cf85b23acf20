package web

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/tradejournal/internal/core"
	"github.com/JonMunkholm/tradejournal/internal/logging"
	"github.com/go-chi/chi/v5"
)

// OwnerHeader carries the id of the journal owner a request acts for.
const OwnerHeader = "X-Owner-ID"

// multipartOverhead is allowed on top of the archive size for form framing.
const multipartOverhead = 1 << 20

// TableResponse describes one importable table.
type TableResponse struct {
	Key       core.EntityType   `json:"key"`
	Label     string            `json:"label"`
	File      string            `json:"file"`
	Stage     int               `json:"stage"`
	DependsOn []core.EntityType `json:"dependsOn,omitempty"`
	Assets    []string          `json:"assets,omitempty"`
	Columns   []string          `json:"columns"`
}

// HealthResponse is returned by the health check.
type HealthResponse struct {
	Status   string                   `json:"status"`
	Database string                   `json:"database"`
	Imports  core.ImportLimiterStatus `json:"imports"`
}

// handleHealth reports database reachability and import slot usage.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:   "ok",
		Database: "ok",
		Imports:  s.service.ImportLimiterStatus(),
	}
	status := http.StatusOK
	if err := s.service.DB().PingContext(r.Context()); err != nil {
		logging.FromContext(r.Context()).Error("health check: database unreachable", "error", err)
		resp.Status = "degraded"
		resp.Database = "unreachable"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// handleListTables returns the importable tables in import order.
func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	defs := core.Ordered()
	tables := make([]TableResponse, 0, len(defs))
	for _, def := range defs {
		t := TableResponse{
			Key:       def.Info.Key,
			Label:     def.Info.Label,
			File:      def.FileName(),
			Stage:     def.Info.Stage,
			DependsOn: def.Info.DependsOn,
		}
		for _, slot := range def.Assets {
			t.Assets = append(t.Assets, slot.Slot)
		}
		for _, spec := range def.FieldSpecs {
			t.Columns = append(t.Columns, spec.Name)
		}
		tables = append(tables, t)
	}
	writeJSON(w, http.StatusOK, tables)
}

// handleImport imports a snapshot archive for the requesting owner.
// The archive is either the "archive" part of a multipart form or the raw
// request body.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}

	data, err := s.readArchive(w, r)
	if err != nil {
		s.respondError(w, r, err, importErrorStatus(err))
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	res, err := s.service.ImportSnapshot(ctx, ownerID, data)
	if res == nil {
		if err == nil {
			err = errors.New("import produced no result")
		}
		if errors.Is(err, core.ErrTooManyImports) {
			w.Header().Set("Retry-After", "30")
		}
		s.respondError(w, r, err, importErrorStatus(err))
		return
	}
	if err != nil {
		// The client went away; the run is recorded in the history.
		logging.FromContext(ctx).Warn("import finished after client left", "run_id", res.RunID, "error", err)
	}

	w.Header().Set("Location", "/api/import/runs/"+res.RunID)
	writeJSON(w, http.StatusOK, res)
}

// handlePreview validates a snapshot archive without importing it.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	data, err := s.readArchive(w, r)
	if err != nil {
		s.respondError(w, r, err, importErrorStatus(err))
		return
	}

	preview, err := s.service.PreviewSnapshot(r.Context(), data)
	if err != nil {
		s.respondError(w, r, err, importErrorStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

// handleListRuns lists the requesting owner's import runs, newest first.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}

	limit := core.DefaultRunListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondCode(w, r, http.StatusBadRequest, core.UserMessage{
				Message: "Invalid limit",
				Action:  "Use a positive whole number",
				Code:    "REQ002",
			})
			return
		}
		limit = n
	}

	runs, err := s.service.ListRuns(r.Context(), ownerID, limit)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// handleGetRun returns one import run with its full result.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}

	run, err := s.service.GetRun(r.Context(), ownerID, chi.URLParam(r, "runID"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, core.ErrRunNotFound) {
			status = http.StatusNotFound
		}
		s.respondError(w, r, err, status)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// requireOwner reads the owner header and writes a 400 when it is missing.
func requireOwner(w http.ResponseWriter, r *http.Request) (string, bool) {
	ownerID := strings.TrimSpace(r.Header.Get(OwnerHeader))
	if ownerID == "" {
		respondCode(w, r, http.StatusBadRequest, core.UserMessage{
			Message: "Missing owner",
			Action:  "Send the owner id in the " + OwnerHeader + " header",
			Code:    "REQ001",
		})
		return "", false
	}
	return ownerID, true
}

// readArchive reads the uploaded archive, bounded by the configured size.
func (s *Server) readArchive(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	limit := s.cfg.Import.MaxArchiveSize
	if limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
	}

	var src io.Reader = r.Body
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			return nil, archiveReadError(err)
		}
		file, _, err := r.FormFile("archive")
		if err != nil {
			return nil, &core.ImportError{
				Kind: core.KindMalformedArchive,
				Err:  errors.New(`malformed archive: missing "archive" form field`),
			}
		}
		defer file.Close()
		src = file
	}

	start := time.Now()
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, archiveReadError(err)
	}
	logging.FromContext(r.Context()).Debug("archive received", "bytes", len(data), "duration", time.Since(start))
	return data, nil
}

func archiveReadError(err error) error {
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		return &core.ImportError{
			Kind: core.KindArchiveTooLarge,
			Err:  fmt.Errorf("archive too large: %w", err),
		}
	}
	return &core.ImportError{
		Kind: core.KindMalformedArchive,
		Err:  fmt.Errorf("malformed archive: %w", err),
	}
}
