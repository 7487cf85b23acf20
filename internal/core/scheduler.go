package core

// scheduler.go runs background maintenance jobs.
//
// Currently one job: purging import run history older than the retention
// window. The scheduler is long-running and stops with its context. A failed
// purge is logged and retried at the next tick; it never stops the process.

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// RetentionConfig holds configuration for the history purge job.
type RetentionConfig struct {
	RetentionDays int    // Days to keep import runs (default: 90)
	Schedule      string // Standard 5-field cron expression (default: "0 3 * * *")
}

func (c RetentionConfig) withDefaults() RetentionConfig {
	if c.RetentionDays <= 0 {
		c.RetentionDays = 90
	}
	if c.Schedule == "" {
		c.Schedule = "0 3 * * *"
	}
	return c
}

// StartRetentionScheduler purges old import runs on cfg.Schedule until ctx
// is canceled. It runs one purge immediately, then blocks.
func (s *Service) StartRetentionScheduler(ctx context.Context, cfg RetentionConfig) error {
	cfg = cfg.withDefaults()

	c := cron.New()
	if _, err := c.AddFunc(cfg.Schedule, func() { s.runPurgeJob(ctx, cfg) }); err != nil {
		return fmt.Errorf("history purge schedule %q: %w", cfg.Schedule, err)
	}

	slog.Info("retention scheduler started",
		"retention_days", cfg.RetentionDays,
		"schedule", cfg.Schedule,
	)

	s.runPurgeJob(ctx, cfg)
	c.Start()

	<-ctx.Done()
	// Wait for a purge in progress.
	<-c.Stop().Done()
	slog.Info("retention scheduler stopped")
	return nil
}

// runPurgeJob performs one purge.
func (s *Service) runPurgeJob(ctx context.Context, cfg RetentionConfig) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	cutoff := start.AddDate(0, 0, -cfg.RetentionDays)

	purged, err := s.PurgeRuns(ctx, cutoff)
	if err != nil {
		slog.Error("import history purge failed", "error", err)
		return
	}
	slog.Info("purged import history",
		"runs_purged", purged,
		"cutoff", cutoff.UTC().Format(time.RFC3339),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
