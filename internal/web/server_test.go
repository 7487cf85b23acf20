package web

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/tradejournal/internal/config"
	"github.com/JonMunkholm/tradejournal/internal/core"
	_ "github.com/JonMunkholm/tradejournal/internal/core/tables"
	"github.com/JonMunkholm/tradejournal/internal/testutil"
)

const accountsCSV = "id,account_number,name\na1,ACC1,Main\na2,ACC2,Swing\n"

func newTestServer(t *testing.T, mutate ...func(*config.Config)) (*Server, *sql.DB) {
	t.Helper()

	cfg := &config.Config{
		Import: config.ImportConfig{
			MaxArchiveSize: 10 << 20,
			MaxConcurrent:  2,
			MaxWaitTime:    time.Second,
			Timeout:        time.Minute,
			MaxFailedRows:  100,
		},
	}
	for _, m := range mutate {
		m(cfg)
	}

	db := testutil.SetupTestDB(t)
	testutil.CreateOwner(t, db, "owner-1")

	svc := core.NewService(db, core.ServiceConfig{
		MaxArchiveSize: cfg.Import.MaxArchiveSize,
		MaxConcurrent:  cfg.Import.MaxConcurrent,
		MaxWait:        cfg.Import.MaxWaitTime,
		Timeout:        cfg.Import.Timeout,
		MaxFailedRows:  cfg.Import.MaxFailedRows,
	}, nil)

	s := NewServer(svc, cfg)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s, db
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func importRequest(body []byte, owner string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/import", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/zip")
	req.Header.Set("User-Agent", "journal-test/1.0")
	if owner != "" {
		req.Header.Set(OwnerHeader, owner)
	}
	return req
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

// =============================================================================
// Health and metadata
// =============================================================================

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "ok", resp.Database)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestListTables(t *testing.T) {
	s, _ := newTestServer(t)

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/tables", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var tables []TableResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tables))
	require.Len(t, tables, 13)
	assert.Equal(t, core.EntityAccountGroup, tables[0].Key)
	assert.Equal(t, core.EntityDashboardTemplate, tables[12].Key)

	for _, tbl := range tables {
		if tbl.Key == core.EntityTrade {
			assert.Equal(t, "trades.csv", tbl.File)
			assert.NotEmpty(t, tbl.Assets)
			assert.Contains(t, tbl.DependsOn, core.EntityAccount)
		}
	}
}

// =============================================================================
// Import
// =============================================================================

func TestImport_RawBody(t *testing.T) {
	s, db := newTestServer(t)
	archive := testutil.BuildArchive(t, map[string]string{"accounts.csv": accountsCSV})

	rec := serve(s, importRequest(archive, "owner-1"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res core.ImportResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, core.StatusSucceeded, res.Status)
	assert.Equal(t, 2, res.Totals.Imported)
	assert.Equal(t, "/api/import/runs/"+res.RunID, rec.Header().Get("Location"))
	assert.Equal(t, 2, testutil.CountRows(t, db, "accounts"))

	// Same archive again: everything is a duplicate.
	rec = serve(s, importRequest(archive, "owner-1"))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, 0, res.Totals.Imported)
	assert.Equal(t, 2, res.Totals.Skipped)
}

func TestImport_Multipart(t *testing.T) {
	s, db := newTestServer(t)
	archive := testutil.BuildArchive(t, map[string]string{"accounts.csv": accountsCSV})

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("archive", "snapshot.zip")
	require.NoError(t, err)
	_, err = part.Write(archive)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/import", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(OwnerHeader, "owner-1")

	rec := serve(s, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 2, testutil.CountRows(t, db, "accounts"))
}

func TestImport_MultipartWithoutArchiveField(t *testing.T) {
	s, _ := newTestServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("note", "no file here"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/import", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(OwnerHeader, "owner-1")

	rec := serve(s, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(core.KindMalformedArchive), decodeError(t, rec).Kind)
}

func TestImport_Errors(t *testing.T) {
	s, db := newTestServer(t)
	good := testutil.BuildArchive(t, map[string]string{"accounts.csv": accountsCSV})
	newer := testutil.BuildArchive(t, map[string]string{"manifest.json": `{"version": "2.0"}`})

	tests := []struct {
		name   string
		owner  string
		body   []byte
		status int
		code   string
		kind   core.ImportErrorKind
	}{
		{"missing owner", "", good, http.StatusBadRequest, "REQ001", ""},
		{"unknown owner", "nobody", good, http.StatusNotFound, "OWN001", core.KindOwnerNotFound},
		{"not a zip", "owner-1", []byte("hello"), http.StatusBadRequest, "ARC001", core.KindMalformedArchive},
		{"newer version", "owner-1", newer, http.StatusUnprocessableEntity, "ARC003", core.KindUnsupportedVersion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(s, importRequest(tt.body, tt.owner))
			assert.Equal(t, tt.status, rec.Code)

			resp := decodeError(t, rec)
			assert.Equal(t, tt.code, resp.Code)
			assert.Equal(t, string(tt.kind), resp.Kind)
			assert.NotEmpty(t, resp.Message)
		})
	}

	assert.Equal(t, 0, testutil.CountRows(t, db, "accounts"))
	assert.Equal(t, 0, testutil.CountRows(t, db, "import_runs"))
}

func TestImport_ArchiveTooLarge(t *testing.T) {
	s, _ := newTestServer(t, func(c *config.Config) { c.Import.MaxArchiveSize = 64 })
	archive := testutil.BuildArchive(t, map[string]string{"accounts.csv": accountsCSV})

	rec := serve(s, importRequest(archive, "owner-1"))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "ARC004", decodeError(t, rec).Code)
}

func TestPreview(t *testing.T) {
	s, db := newTestServer(t)
	archive := testutil.BuildArchive(t, map[string]string{"accounts.csv": accountsCSV})

	req := httptest.NewRequest(http.MethodPost, "/api/import/preview", bytes.NewReader(archive))
	rec := serve(s, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var preview core.PreviewResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &preview))
	assert.Equal(t, 2, preview.Summary.TotalRows)
	assert.Equal(t, 0, preview.Summary.ErrorRows)
	assert.Equal(t, 0, testutil.CountRows(t, db, "accounts"))

	rec = serve(s, httptest.NewRequest(http.MethodPost, "/api/import/preview", bytes.NewReader([]byte("nope"))))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// Run history
// =============================================================================

func TestRuns(t *testing.T) {
	s, _ := newTestServer(t)
	archive := testutil.BuildArchive(t, map[string]string{"accounts.csv": accountsCSV})

	rec := serve(s, importRequest(archive, "owner-1"))
	require.Equal(t, http.StatusOK, rec.Code)
	var res core.ImportResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))

	req := httptest.NewRequest(http.MethodGet, "/api/import/runs", nil)
	req.Header.Set(OwnerHeader, "owner-1")
	rec = serve(s, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var runs []core.ImportRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, res.RunID, runs[0].ID)
	assert.Equal(t, "192.0.2.1", runs[0].IPAddress)
	assert.Equal(t, "journal-test/1.0", runs[0].UserAgent)

	req = httptest.NewRequest(http.MethodGet, "/api/import/runs/"+res.RunID, nil)
	req.Header.Set(OwnerHeader, "owner-1")
	rec = serve(s, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var run core.ImportRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	require.NotNil(t, run.Summary)
	assert.Equal(t, 2, run.Summary.Totals.Imported)

	req = httptest.NewRequest(http.MethodGet, "/api/import/runs/"+res.RunID, nil)
	req.Header.Set(OwnerHeader, "someone-else")
	assert.Equal(t, http.StatusNotFound, serve(s, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/api/import/runs?limit=zero", nil)
	req.Header.Set(OwnerHeader, "owner-1")
	rec = serve(s, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "REQ002", decodeError(t, rec).Code)
}

// =============================================================================
// Access control
// =============================================================================

func TestAPIKeyRequired(t *testing.T) {
	s, _ := newTestServer(t, func(c *config.Config) {
		c.Security.RequireAPIKey = true
		c.Security.APIKeys = []string{"k1"}
	})

	assert.Equal(t, http.StatusUnauthorized, serve(s, httptest.NewRequest(http.MethodGet, "/api/tables", nil)).Code)

	req := httptest.NewRequest(http.MethodGet, "/api/tables", nil)
	req.Header.Set("X-API-Key", "k1")
	assert.Equal(t, http.StatusOK, serve(s, req).Code)

	// Probes stay open.
	assert.Equal(t, http.StatusOK, serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil)).Code)
}

func TestRateLimit(t *testing.T) {
	s, _ := newTestServer(t, func(c *config.Config) {
		c.Rate.Enabled = true
		c.Rate.RequestsPerMinute = 2
		c.Rate.ImportLimit = 1
	})

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil)).Code)
	}
	rec := serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, "RATE001", decodeError(t, rec).Code)
}

func TestImportErrorStatus(t *testing.T) {
	tests := map[core.ImportErrorKind]int{
		core.KindMalformedArchive:   http.StatusBadRequest,
		core.KindMissingManifest:    http.StatusBadRequest,
		core.KindUnsupportedVersion: http.StatusUnprocessableEntity,
		core.KindOwnerNotFound:      http.StatusNotFound,
		core.KindArchiveTooLarge:    http.StatusRequestEntityTooLarge,
		core.KindTooManyImports:     http.StatusServiceUnavailable,
	}
	for kind, want := range tests {
		err := &core.ImportError{Kind: kind, Err: assert.AnError}
		assert.Equal(t, want, importErrorStatus(err), kind)
	}
	assert.Equal(t, http.StatusInternalServerError, importErrorStatus(assert.AnError))
}
