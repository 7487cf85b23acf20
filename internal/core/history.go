package core

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/JonMunkholm/tradejournal/internal/ids"
)

// ErrRunNotFound is returned when an import run id does not exist for an owner.
var ErrRunNotFound = errors.New("import run not found")

// DefaultRunListLimit bounds ListRuns when no limit is given.
const DefaultRunListLimit = 50

// ImportRun is the stored record of one import.
type ImportRun struct {
	ID         string        `json:"id"`
	OwnerID    string        `json:"ownerId"`
	Status     Status        `json:"status"`
	TimedOut   bool          `json:"timedOut"`
	Imported   int           `json:"imported"`
	Skipped    int           `json:"skipped"`
	Failed     int           `json:"failed"`
	Summary    *ImportResult `json:"summary,omitempty"`
	IPAddress  string        `json:"ipAddress,omitempty"`
	UserAgent  string        `json:"userAgent,omitempty"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt time.Time     `json:"finishedAt"`
}

// recordRun stores the outcome of a run with the caller's IP and user agent.
func (s *Service) recordRun(ctx context.Context, res *ImportResult) error {
	summary, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode run summary: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO import_runs
			(id, owner_id, status, timed_out, imported, skipped, failed, summary, ip_address, user_agent, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		res.RunID,
		res.OwnerID,
		string(res.Status),
		res.TimedOut,
		res.Totals.Imported,
		res.Totals.Skipped,
		res.Totals.Failed,
		string(summary),
		nullIfEmpty(GetIPAddressFromContext(ctx)),
		nullIfEmpty(GetUserAgentFromContext(ctx)),
		res.StartedAt.UTC().Format(time.RFC3339Nano),
		res.StartedAt.Add(res.Duration).UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record import run: %w", err)
	}
	return nil
}

const runColumns = `id, owner_id, status, timed_out, imported, skipped, failed, summary, ip_address, user_agent, started_at, finished_at`

// ListRuns returns an owner's most recent runs, newest first. Summaries are
// omitted; use GetRun for the full result.
func (s *Service) ListRuns(ctx context.Context, ownerID string, limit int) ([]ImportRun, error) {
	if limit <= 0 {
		limit = DefaultRunListLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM import_runs WHERE owner_id = $1 ORDER BY id DESC LIMIT $2`,
		ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list import runs: %w", err)
	}
	defer rows.Close()

	var runs []ImportRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		run.Summary = nil
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun returns one run of an owner, including its full result.
func (s *Service) GetRun(ctx context.Context, ownerID, runID string) (ImportRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM import_runs WHERE owner_id = $1 AND id = $2`,
		ownerID, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ImportRun{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return run, err
}

// PurgeRuns deletes runs started before cutoff. Run ids sort by start
// time, so the comparison works the same on every driver.
func (s *Service) PurgeRuns(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM import_runs WHERE id < $1`, ids.RunFloor(cutoff))
	if err != nil {
		return 0, fmt.Errorf("purge import runs: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(r rowScanner) (ImportRun, error) {
	var (
		run                 ImportRun
		status              string
		summary, ip, ua     sql.NullString
		startedAt, finished string
	)
	err := r.Scan(&run.ID, &run.OwnerID, &status, &run.TimedOut,
		&run.Imported, &run.Skipped, &run.Failed,
		&summary, &ip, &ua, &startedAt, &finished)
	if err != nil {
		return ImportRun{}, err
	}
	run.Status = Status(status)
	run.IPAddress = ip.String
	run.UserAgent = ua.String
	run.StartedAt = parseStoredTime(startedAt)
	run.FinishedAt = parseStoredTime(finished)

	if summary.Valid && summary.String != "" {
		var res ImportResult
		if err := json.Unmarshal([]byte(summary.String), &res); err != nil {
			return ImportRun{}, fmt.Errorf("decode run summary %s: %w", run.ID, err)
		}
		run.Summary = &res
	}
	return run, nil
}

// storedTimeLayouts covers what the supported drivers return for a
// TIMESTAMP scanned into a string.
var storedTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
}

func parseStoredTime(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range storedTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
