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

// DefaultImportBudget is the wall-clock budget of a run when none is set.
const DefaultImportBudget = 5 * time.Minute

// Snapshot is an opened archive. *archive.Reader satisfies it.
type Snapshot interface {
	TextSource
	blob.Source
	Manifest() archive.Manifest
}

// ImportOptions configure one import run.
type ImportOptions struct {
	OwnerID string
	RunID   string // Generated when empty

	Budget              time.Duration // Wall-clock limit; rows stop when it expires
	DecodeAhead         int           // Tables decoded ahead of the one being committed
	MaxFailedRows       int           // Failed rows kept in the result
	HeuristicPhaseMatch bool          // Match trades to phases by account number

	Assets     *blob.Migrator // nil disables attachment migration
	AssetGrace time.Duration  // How long to wait for uploads after the last table

	Tables []TableDefinition // Defaults to the registry in import order
}

// Importer runs one snapshot import. It is not reusable.
type Importer struct {
	db   *sql.DB
	opts ImportOptions

	ids    *IDMap
	dedup  *Deduper
	res    *Resolver
	report *Reporter

	batch   *blob.Batch
	targets map[assetTarget]assetColumn
}

type assetTarget struct{ kind, slot string }

type assetColumn struct{ table, column string }

// storedRow is a row inserted or merged in the open transaction.
type storedRow struct {
	line   int
	oldID  string
	id     string
	rec    Record
	merged bool // id is a pre-existing row this one was folded into
}

// NewImporter prepares a run writing to db.
func NewImporter(db *sql.DB, opts ImportOptions) *Importer {
	if opts.RunID == "" {
		opts.RunID = ids.NewRun()
	}
	if opts.Budget <= 0 {
		opts.Budget = DefaultImportBudget
	}
	if opts.Tables == nil {
		opts.Tables = Ordered()
	}
	idMap := NewIDMap()
	im := &Importer{
		db:      db,
		opts:    opts,
		ids:     idMap,
		dedup:   NewDeduper(),
		res:     NewResolver(idMap, opts.HeuristicPhaseMatch),
		report:  NewReporter(opts.MaxFailedRows),
		targets: make(map[assetTarget]assetColumn),
	}
	for _, def := range opts.Tables {
		for _, slot := range def.Assets {
			im.targets[assetTarget{def.Info.AssetKind, slot.Slot}] = assetColumn{def.TableName(), slot.Column}
		}
	}
	return im
}

// IDs exposes the run's remapping table.
func (im *Importer) IDs() *IDMap { return im.ids }

// Run imports every table of snap in dependency order.
//
// Row failures are counted and never abort the run. When the budget expires
// the current table is committed and the partial result is returned with
// TimedOut set. The error is non-nil only if ctx itself was canceled; the
// result is still valid in that case.
func (im *Importer) Run(ctx context.Context, snap Snapshot) (*ImportResult, error) {
	started := time.Now()
	ctx = logging.WithRunID(ctx, im.opts.RunID)
	log := logging.FromContext(ctx)

	budgetCtx, cancel := context.WithTimeout(ctx, im.opts.Budget)
	defer cancel()
	// Database work must never be interrupted by the budget: a canceled
	// context would roll back the open transaction.
	dbCtx := context.WithoutCancel(ctx)

	for _, def := range im.opts.Tables {
		im.report.Track(def.Info.Key)
	}
	if im.opts.Assets != nil {
		im.batch = im.opts.Assets.Start(dbCtx, snap)
	}

	manifest := snap.Manifest()
	log.Info("import started",
		"owner_id", im.opts.OwnerID,
		"snapshot_version", manifest.Version,
		"tables", len(im.opts.Tables),
	)

	pf := newPrefetcher(budgetCtx, snap, im.opts.Tables, im.opts.DecodeAhead)
	for _, def := range im.opts.Tables {
		if budgetCtx.Err() != nil {
			im.report.TimedOut()
			break
		}
		d := pf.take()
		if !d.present {
			if d.err != nil {
				im.report.TimedOut()
				break
			}
			log.Debug("table not in snapshot", "entity", def.Info.Key, "file", def.FileName())
			continue
		}
		if d.err != nil {
			im.fail(ctx, def, 0, "", d.err)
			continue
		}

		seen, timedOut := im.importTable(budgetCtx, dbCtx, snap, def, d.table)
		if want, ok := manifest.Tables[string(def.Info.Key)]; ok && want != seen && !timedOut {
			log.Warn("row count differs from manifest",
				"entity", def.Info.Key, "declared", want, "read", seen)
		}
		if timedOut {
			im.report.TimedOut()
			break
		}
	}

	im.finishAssets(ctx, dbCtx)

	res := im.report.Snapshot()
	res.RunID = im.opts.RunID
	res.OwnerID = im.opts.OwnerID
	res.Resolution = im.res.Totals()
	res.Manifest = manifest
	res.StartedAt = started.UTC()
	res.Duration = time.Since(started)

	log.Info("import finished",
		"status", res.Status,
		"imported", res.Totals.Imported,
		"skipped", res.Totals.Skipped,
		"merged", res.Totals.Merged,
		"failed", res.Totals.Failed,
		"assets_migrated", res.Assets.Migrated,
		"duration", res.Duration,
	)
	if n := im.report.DroppedFailures(); n > 0 {
		log.Warn("failed rows truncated in result", "dropped", n)
	}

	if err := ctx.Err(); err != nil {
		return &res, err
	}
	return &res, nil
}

// importTable processes one table in its own transaction. It returns the
// number of data rows read and whether the budget stopped it early.
func (im *Importer) importTable(budgetCtx, dbCtx context.Context, snap Snapshot, def TableDefinition, table *Table) (int, bool) {
	log := logging.WithFields(budgetCtx, "entity", def.Info.Key)
	if missing := table.Missing(def.FieldSpecs); len(missing) > 0 {
		log.Warn("table is missing required columns", "columns", missing)
	}

	tx, err := im.db.BeginTx(dbCtx, nil)
	if err != nil {
		im.fail(budgetCtx, def, 0, "", fmt.Errorf("begin %s: %w", def.TableName(), err))
		return 0, false
	}

	before := im.report.Counts(def.Info.Key)
	var stored []storedRow
	seen, timedOut := 0, false

	for row, rowErr := range table.Rows() {
		if budgetCtx.Err() != nil {
			timedOut = true
			break
		}
		seen++
		if rowErr != nil {
			im.fail(budgetCtx, def, row.Line, "", fmt.Errorf("malformed row: %w", rowErr))
			continue
		}
		if s, ok := im.importRow(budgetCtx, dbCtx, tx, def, row); ok {
			stored = append(stored, s)
		}
	}

	if err := tx.Commit(); err != nil {
		im.rollbackStored(budgetCtx, def, stored, err)
		return seen, timedOut
	}

	im.submitAssets(snap, def, stored)

	after := im.report.Counts(def.Info.Key)
	log.Info("table imported",
		"imported", after.Imported-before.Imported,
		"skipped", after.Skipped-before.Skipped,
		"merged", after.Merged-before.Merged,
		"failed", after.Failed-before.Failed,
		"timed_out", timedOut,
	)
	return seen, timedOut
}

// importRow runs the per-row pipeline: decode, resolve, dedup, then merge or
// insert.
// It reports whether the row changed the store.
func (im *Importer) importRow(logCtx, ctx context.Context, tx *sql.Tx, def TableDefinition, row Row) (storedRow, bool) {
	entity := def.Info.Key
	rec, err := def.Decode(row, def.FieldSpecs)
	if err != nil {
		id, _ := row.Get("id")
		im.fail(logCtx, def, row.Line, CleanCell(id.Raw), err)
		return storedRow{}, false
	}
	oldID := rec.OldID()

	// Parents resolve first: child keys contain the parent's new id.
	im.res.begin()
	if def.Resolve != nil {
		if err := def.Resolve(rec, im.res); err != nil {
			im.fail(logCtx, def, row.Line, oldID, err)
			return storedRow{}, false
		}
	}

	key := def.Key(im.opts.OwnerID, rec)
	var (
		id      string
		outcome rowOutcome
	)
	err = im.savepoint(ctx, tx, func() error {
		existing, found, err := im.dedup.Exists(ctx, tx, def.TableName(), key)
		if err != nil {
			return err
		}
		if found {
			id, outcome = existing, rowSkipped
			if def.Merge == nil {
				return nil
			}
			changed, err := def.Merge(ctx, tx, existing, rec)
			if changed {
				outcome = rowMerged
			}
			return err
		}
		outcome = rowInserted
		id, err = def.Insert(ctx, tx, im.opts.OwnerID, ids.NewEntity(), rec)
		return err
	})
	if err != nil {
		im.fail(logCtx, def, row.Line, oldID, err)
		return storedRow{}, false
	}

	switch outcome {
	case rowSkipped:
		// Dependants of the duplicate must still resolve to the stored row.
		im.remember(def, rec, id)
		im.report.Skipped(entity)
		return storedRow{}, false
	case rowMerged:
		im.remember(def, rec, id)
		im.report.Merged(entity)
		return storedRow{line: row.Line, oldID: oldID, id: id, rec: rec, merged: true}, true
	}

	if refs := im.res.Unresolved(); len(refs) > 0 {
		logging.FromContext(logCtx).Debug("optional references left empty",
			"entity", entity, "line", row.Line, "old_id", oldID, "refs", refs)
	}
	im.res.settle()
	im.remember(def, rec, id)
	im.dedup.Remember(def.TableName(), key, id)
	im.report.Imported(entity)
	return storedRow{line: row.Line, oldID: oldID, id: id, rec: rec}, true
}

type rowOutcome int

const (
	rowInserted rowOutcome = iota
	rowSkipped
	rowMerged
)

// savepoint runs fn under a savepoint so a failing statement, the existence
// lookup included, does not poison the table's transaction.
func (im *Importer) savepoint(ctx context.Context, tx *sql.Tx, fn func() error) error {
	if _, err := tx.ExecContext(ctx, "SAVEPOINT import_row"); err != nil {
		return fmt.Errorf("savepoint: %w", err)
	}
	if err := fn(); err != nil {
		if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT import_row"); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback to savepoint: %w", rbErr))
		}
		_, _ = tx.ExecContext(ctx, "RELEASE SAVEPOINT import_row")
		return err
	}
	if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT import_row"); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	return nil
}

func (im *Importer) remember(def TableDefinition, rec Record, id string) {
	im.ids.Put(def.Info.Key, rec.OldID(), id)
	if def.Aliases == nil {
		return
	}
	for ns, value := range def.Aliases(rec) {
		im.ids.Put(ns, value, id)
	}
}

// fail counts a failed row and logs it with the table's dependencies.
func (im *Importer) fail(ctx context.Context, def TableDefinition, line int, oldID string, err error) {
	msg := MapError(err)
	im.report.Failed(FailedRow{
		Entity: def.Info.Key,
		Line:   line,
		OldID:  oldID,
		Reason: err.Error(),
		Code:   msg.Code,
	})

	attrs := []any{
		"entity", def.Info.Key,
		"line", line,
		"code", msg.Code,
		"error", err,
	}
	if oldID != "" {
		attrs = append(attrs, "old_id", oldID)
	}
	if len(def.Info.DependsOn) > 0 {
		attrs = append(attrs, "depends_on", def.Info.DependsOn)
	}
	if kind := store.ConstraintKind(err); kind != "" {
		attrs = append(attrs, "constraint", kind)
	}
	logging.FromContext(ctx).Warn("row failed", attrs...)
}

// rollbackStored undoes the bookkeeping of rows whose transaction could not
// be committed, so later tables do not resolve to rows that do not exist.
func (im *Importer) rollbackStored(ctx context.Context, def TableDefinition, stored []storedRow, commitErr error) {
	logging.FromContext(ctx).Error("table commit failed",
		"entity", def.Info.Key, "rows", len(stored), "error", commitErr)

	code := MapError(commitErr).Code
	var inserted, merged []FailedRow
	var idList []string
	for _, s := range stored {
		row := FailedRow{
			Entity: def.Info.Key,
			Line:   s.line,
			OldID:  s.oldID,
			Reason: "commit failed: " + commitErr.Error(),
			Code:   code,
		}
		if s.merged {
			// The target row predates the transaction and still exists.
			merged = append(merged, row)
			continue
		}
		inserted = append(inserted, row)
		idList = append(idList, s.id)
	}
	im.report.Reclassify(def.Info.Key, inserted)
	im.report.ReclassifyMerged(def.Info.Key, merged)
	im.ids.Forget(idList...)
	im.dedup.Forget(idList...)
}

// submitAssets queues the attachments of committed rows.
func (im *Importer) submitAssets(snap Snapshot, def TableDefinition, stored []storedRow) {
	if im.batch == nil || len(def.Assets) == 0 {
		return
	}
	for _, s := range stored {
		if s.oldID == "" || s.merged {
			continue
		}
		for _, slot := range def.Assets {
			att := blob.Attachment{
				OwnerID: im.opts.OwnerID,
				Kind:    def.Info.AssetKind,
				OldID:   s.oldID,
				NewID:   s.id,
				Slot:    slot.Slot,
			}
			hasRef := slot.Ref != nil && slot.Ref(s.rec) != ""
			if _, found := snap.Find(att.SourceDir(), att.Stem(), blob.Extensions); !found && !hasRef {
				continue
			}
			im.batch.Submit(att)
		}
	}
}

// finishAssets waits a bounded time for uploads and points the migrated rows
// at their new URLs. Rows whose upload failed keep the reference they were
// inserted with.
func (im *Importer) finishAssets(ctx, dbCtx context.Context) {
	if im.batch == nil {
		return
	}
	grace := im.opts.AssetGrace
	if grace <= 0 {
		grace = 30 * time.Second
	}
	waitCtx, cancel := context.WithTimeout(dbCtx, grace)
	defer cancel()

	results, stats := im.batch.Wait(waitCtx)
	log := logging.FromContext(ctx)

	for _, r := range results {
		switch r.Outcome {
		case blob.Migrated:
			target, ok := im.targets[assetTarget{r.Attachment.Kind, r.Attachment.Slot}]
			if !ok {
				continue
			}
			if err := UpdateColumn(dbCtx, im.db, target.table, target.column, r.Attachment.NewID, r.URL); err != nil {
				log.Warn("attachment reference not updated",
					"table", target.table, "id", r.Attachment.NewID, "slot", r.Attachment.Slot, "error", err)
				stats.Migrated--
				stats.Fallback++
			}
		case blob.Fallback:
			log.Warn("attachment kept original reference",
				"kind", r.Attachment.Kind, "id", r.Attachment.NewID, "slot", r.Attachment.Slot, "error", r.Err)
		}
	}
	im.report.AddAssets(AssetCounts(stats))
}
