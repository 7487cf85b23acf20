// Package bootstrap turns a loaded Config into the running pieces shared by
// the server and the command line tool.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/JonMunkholm/tradejournal/internal/blob"
	"github.com/JonMunkholm/tradejournal/internal/config"
	"github.com/JonMunkholm/tradejournal/internal/core"
	_ "github.com/JonMunkholm/tradejournal/internal/core/tables" // Register all tables
	"github.com/JonMunkholm/tradejournal/internal/store"
)

// OpenDB connects to the configured database and applies pending
// migrations when migrate is set.
func OpenDB(ctx context.Context, cfg *config.Config, migrate bool) (*sql.DB, error) {
	db, err := store.Open(ctx, cfg.Database.Driver, cfg.Database.URL, store.Options{
		MaxOpenConns:    cfg.Database.MaxConns,
		MaxIdleConns:    cfg.Database.MinConns,
		ConnMaxLifetime: cfg.Database.MaxConnLifetime,
		ConnMaxIdleTime: cfg.Database.MaxConnIdleTime,
	})
	if err != nil {
		return nil, err
	}

	slog.Info("connected to database",
		"driver", cfg.Database.Driver,
		"url", store.RedactDSN(cfg.Database.URL),
	)

	if migrate {
		if err := store.Migrate(ctx, db, cfg.Database.Driver); err != nil {
			db.Close()
			return nil, err
		}
	}
	return db, nil
}

// NewService builds the import service. Attachment migration writes to the
// configured blob root unless it is disabled.
func NewService(db *sql.DB, cfg *config.Config) (*core.Service, error) {
	if err := core.ValidateOrder(); err != nil {
		return nil, fmt.Errorf("table registry: %w", err)
	}

	var assets *blob.Migrator
	if cfg.Assets.Enabled {
		fs, err := blob.NewFSStore(cfg.Blob.Root, cfg.Blob.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("blob store: %w", err)
		}
		assets = blob.NewMigrator(fs, blob.Options{
			Workers:         cfg.Assets.Workers,
			Timeout:         cfg.Assets.Timeout,
			RetryMaxElapsed: cfg.Assets.RetryMaxElapsed,
		})
	}

	slog.Debug("tables registered", "count", core.TableCount())

	return core.NewService(db, ServiceConfig(cfg), assets), nil
}

// ServiceConfig maps the import and asset sections onto core settings.
func ServiceConfig(cfg *config.Config) core.ServiceConfig {
	return core.ServiceConfig{
		MaxArchiveSize:      cfg.Import.MaxArchiveSize,
		MaxEntrySize:        cfg.Import.MaxEntrySize,
		MaxConcurrent:       cfg.Import.MaxConcurrent,
		MaxWait:             cfg.Import.MaxWaitTime,
		Timeout:             cfg.Import.Timeout,
		DecodeAhead:         cfg.Import.DecodeAhead,
		MaxFailedRows:       cfg.Import.MaxFailedRows,
		HeuristicPhaseMatch: cfg.Import.HeuristicPhaseMatch,
		AssetGrace:          cfg.Assets.Grace,
	}
}
