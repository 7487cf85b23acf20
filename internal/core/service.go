package core

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/JonMunkholm/tradejournal/internal/archive"
	"github.com/JonMunkholm/tradejournal/internal/blob"
	"github.com/JonMunkholm/tradejournal/internal/ids"
	"github.com/JonMunkholm/tradejournal/internal/logging"
	"github.com/JonMunkholm/tradejournal/internal/store"
)

// ImportErrorKind classifies a fatal import error.
type ImportErrorKind string

const (
	KindMalformedArchive   ImportErrorKind = "malformed_archive"
	KindMissingManifest    ImportErrorKind = "missing_manifest"
	KindUnsupportedVersion ImportErrorKind = "unsupported_version"
	KindOwnerNotFound      ImportErrorKind = "owner_not_found"
	KindArchiveTooLarge    ImportErrorKind = "archive_too_large"
	KindTooManyImports     ImportErrorKind = "too_many_imports"
)

// ImportError is a failure of the whole import, as opposed to a row
// failure, which is counted in the result.
type ImportError struct {
	Kind ImportErrorKind
	Err  error
}

func (e *ImportError) Error() string {
	return e.Err.Error()
}

func (e *ImportError) Unwrap() error {
	return e.Err
}

// ServiceConfig holds the import settings of a Service.
type ServiceConfig struct {
	MaxArchiveSize      int64         // Bytes; 0 disables the check
	MaxEntrySize        int64         // Inflated bytes per archive entry
	MaxConcurrent       int           // Parallel runs
	MaxWait             time.Duration // Wait for a run slot
	Timeout             time.Duration // Budget per run
	DecodeAhead         int
	MaxFailedRows       int
	HeuristicPhaseMatch bool
	AssetGrace          time.Duration
}

// Service provides snapshot import for any frontend.
type Service struct {
	db      *sql.DB
	cfg     ServiceConfig
	assets  *blob.Migrator
	limiter *ImportLimiter
	metrics *importMetrics
}

// NewService creates a Service writing to db. assets may be nil to leave
// attachment references as they are in the snapshot.
func NewService(db *sql.DB, cfg ServiceConfig, assets *blob.Migrator) *Service {
	return &Service{
		db:      db,
		cfg:     cfg,
		assets:  assets,
		limiter: NewImportLimiter(cfg.MaxConcurrent, cfg.MaxWait),
		metrics: newImportMetrics(),
	}
}

// ImportSnapshot imports a snapshot archive for ownerID.
//
// Fatal problems (unreadable archive, unknown owner, too many concurrent
// imports) return an *ImportError and no result. Everything else, including
// row failures and an expired budget, is reported in the result.
func (s *Service) ImportSnapshot(ctx context.Context, ownerID string, data []byte) (*ImportResult, error) {
	runID := ids.NewRun()
	ctx = logging.WithRunID(ctx, runID)
	log := logging.FromContext(ctx)

	if err := s.limiter.Acquire(ctx); err != nil {
		if errors.Is(err, ErrTooManyImports) {
			return nil, s.fatal(ctx, KindTooManyImports, err)
		}
		return nil, err
	}
	defer s.limiter.Release()

	if limit := s.cfg.MaxArchiveSize; limit > 0 && int64(len(data)) > limit {
		return nil, s.fatal(ctx, KindArchiveTooLarge,
			fmt.Errorf("archive too large: %d bytes (max %d)", len(data), limit))
	}

	ar, err := archive.Open(data)
	if err != nil {
		return nil, s.fatal(ctx, archiveErrorKind(err), err)
	}
	if s.cfg.MaxEntrySize > 0 {
		ar.MaxEntrySize = s.cfg.MaxEntrySize
	}

	if _, err := store.GetOwner(ctx, s.db, ownerID); err != nil {
		if errors.Is(err, store.ErrOwnerNotFound) {
			return nil, s.fatal(ctx, KindOwnerNotFound, err)
		}
		return nil, fmt.Errorf("look up owner: %w", err)
	}

	im := NewImporter(s.db, ImportOptions{
		OwnerID:             ownerID,
		RunID:               runID,
		Budget:              s.cfg.Timeout,
		DecodeAhead:         s.cfg.DecodeAhead,
		MaxFailedRows:       s.cfg.MaxFailedRows,
		HeuristicPhaseMatch: s.cfg.HeuristicPhaseMatch,
		Assets:              s.assets,
		AssetGrace:          s.cfg.AssetGrace,
	})
	res, runErr := im.Run(ctx, ar)

	// History is written even when the caller went away.
	if err := s.recordRun(context.WithoutCancel(ctx), res); err != nil {
		log.Error("import run not recorded", "error", err)
	}
	s.metrics.record(ctx, res)

	return res, runErr
}

func (s *Service) fatal(ctx context.Context, kind ImportErrorKind, err error) *ImportError {
	logging.FromContext(ctx).Warn("import rejected", "kind", kind, "error", err)
	s.metrics.failed(ctx, kind)
	return &ImportError{Kind: kind, Err: err}
}

func archiveErrorKind(err error) ImportErrorKind {
	var (
		missing     *archive.MissingManifestError
		unsupported *archive.UnsupportedVersionError
	)
	switch {
	case errors.As(err, &missing):
		return KindMissingManifest
	case errors.As(err, &unsupported):
		return KindUnsupportedVersion
	case errors.Is(err, archive.ErrEntryTooLarge):
		return KindArchiveTooLarge
	default:
		return KindMalformedArchive
	}
}

// WaitForImports blocks until running imports finish or ctx is done.
// Used for graceful shutdown.
func (s *Service) WaitForImports(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// ImportLimiterStatus returns the current import concurrency state.
func (s *Service) ImportLimiterStatus() ImportLimiterStatus {
	return s.limiter.Status()
}

// DB returns the destination database.
func (s *Service) DB() *sql.DB {
	return s.db
}
