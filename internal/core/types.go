// Package core provides the business logic for snapshot import operations.
// This package has no transport dependencies and can be used by any frontend.
package core

import (
	"context"
	"database/sql"
	"time"

	"github.com/JonMunkholm/tradejournal/internal/archive"
)

// DBTX is the interface for database operations.
// Satisfied by *sql.DB, *sql.Tx and *sql.Conn.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// EntityType names an importable entity. It doubles as the archive table
// name: rows for EntityTrade live in "trades.csv".
type EntityType string

const (
	EntityAccountGroup      EntityType = "account_groups"
	EntityAccount           EntityType = "accounts"
	EntityTradingModel      EntityType = "trading_models"
	EntityTradeTag          EntityType = "trade_tags"
	EntityMasterAccount     EntityType = "master_accounts"
	EntityPhaseAccount      EntityType = "phase_accounts"
	EntityTrade             EntityType = "trades"
	EntityDailyAnchor       EntityType = "daily_anchors"
	EntityBreachRecord      EntityType = "breach_records"
	EntityPayout            EntityType = "payouts"
	EntityBacktestTrade     EntityType = "backtest_trades"
	EntityDailyNote         EntityType = "daily_notes"
	EntityDashboardTemplate EntityType = "dashboard_templates"
)

// Alias namespaces in the IDMap for lookups that are not by old id.
const (
	AliasAccountNumber      EntityType = "accounts#number"
	AliasPhaseExternalID    EntityType = "phase_accounts#external"
	AliasTradingModelByName EntityType = "trading_models#name"
)

// Import stages. Every entity of a stage may reference only entities of
// earlier stages.
const (
	StageAccounts = iota + 1
	StageMasterAccounts
	StagePhaseAccounts
	StageTrades
	StagePhaseState
	StageBacktests
	StageNotes
	StageTemplates
)

// FieldType represents the expected data type for a table field.
type FieldType int

const (
	FieldText FieldType = iota
	FieldEnum
	FieldDate
	FieldTime
	FieldNumeric
	FieldInt
	FieldBool
	FieldJSON
)

// FieldSpec defines coercion rules for a single archive column.
// Header matching ignores case, spaces and underscores, so "account_number"
// also matches "accountNumber" and "Account Number".
type FieldSpec struct {
	Name       string              // Column header name
	Type       FieldType           // Expected data type
	Required   bool                // Row fails when the value is missing or does not parse
	EnumValues []string            // Valid values for FieldEnum, compared after Normalizer
	Normalizer func(string) string // Optional transformation applied before type checks
}

// TableInfo contains descriptive information about an importable table.
type TableInfo struct {
	Key       EntityType   // Entity and archive table name
	Label     string       // Display name: "Trades"
	File      string       // Archive entry; defaults to Key + ".csv"
	Table     string       // Destination table; defaults to Key
	Stage     int          // Import stage (StageAccounts..StageTemplates)
	Order     int          // Position within the stage
	DependsOn []EntityType // Entities whose ids this table references
	AssetKind string       // Attachment folder under images/, empty if none
}

// HeaderIndex maps normalized column names to their position in a row.
type HeaderIndex map[string]int

// Record is a decoded, typed row of one entity type.
type Record interface {
	// OldID is the identifier the row had in the exporting system, or "".
	OldID() string
}

// KeyPart is one column of a natural key.
type KeyPart struct {
	Column string
	Value  any
}

// AssetSlot describes one attachment column of an entity.
type AssetSlot struct {
	Slot   string // File name suffix: images/<kind>/<oldId>_<slot>.<ext>
	Column string // Destination column holding the reference

	// Ref returns the reference the row carried, if any. A slot with neither
	// a reference nor a file is not an attachment and is not counted.
	Ref func(rec Record) string
}

// DecodeFunc coerces a raw row into the entity's typed record.
type DecodeFunc func(row Row, specs []FieldSpec) (Record, error)

// KeyFunc returns the natural key of a record. Owner scoping is part of the
// key: either an owner_id column or a parent id that is owner scoped.
type KeyFunc func(ownerID string, rec Record) []KeyPart

// ResolveFunc rewrites the record's references to destination ids.
// It returns an error only when a required parent cannot be resolved.
type ResolveFunc func(rec Record, res *Resolver) error

// InsertFunc writes the record with newID and returns the id of the stored
// row. Upserting tables may return the id of the row they merged into.
type InsertFunc func(ctx context.Context, db DBTX, ownerID, newID string, rec Record) (string, error)

// MergeFunc folds a duplicate record into the stored row existingID and
// reports whether that row changed. Tables without it treat every duplicate
// as skipped.
type MergeFunc func(ctx context.Context, db DBTX, existingID string, rec Record) (bool, error)

// AliasFunc returns extra IDMap entries a record should be reachable by
// once stored, e.g. an account by its number.
type AliasFunc func(rec Record) map[EntityType]string

// TableDefinition contains everything needed to import one entity type.
type TableDefinition struct {
	Info       TableInfo
	FieldSpecs []FieldSpec
	Decode     DecodeFunc
	Key        KeyFunc
	Resolve    ResolveFunc // Optional: tables without references leave it nil
	Insert     InsertFunc
	Merge      MergeFunc // Optional
	Aliases    AliasFunc // Optional
	Assets     []AssetSlot
}

// FileName returns the archive entry holding this table.
func (t TableDefinition) FileName() string {
	if t.Info.File != "" {
		return t.Info.File
	}
	return string(t.Info.Key) + ".csv"
}

// TableName returns the destination table.
func (t TableDefinition) TableName() string {
	if t.Info.Table != "" {
		return t.Info.Table
	}
	return string(t.Info.Key)
}

// Status summarises how an import run ended.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusPartial   Status = "partial"
	StatusTimedOut  Status = "timed_out"
)

// Counts holds the per-entity outcome counters of a run.
type Counts struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
	Merged   int `json:"merged,omitempty"` // Duplicates folded into the stored row
	Failed   int `json:"failed"`
}

// Total returns the number of rows seen.
func (c Counts) Total() int {
	return c.Imported + c.Skipped + c.Merged + c.Failed
}

// ResolutionCounts separates how optional references were resolved.
type ResolutionCounts struct {
	Explicit  int `json:"explicit"`  // Resolved through a stored relation
	Heuristic int `json:"heuristic"` // Accepted a soft match
	None      int `json:"none"`      // A reference was present but left null
}

// AssetCounts holds attachment migration outcomes. These never affect Status.
type AssetCounts struct {
	Migrated int `json:"migrated"`
	Fallback int `json:"fallback"` // Upload failed, original reference kept
	Missing  int `json:"missing"`  // No file in the archive for the slot
}

// FailedRow contains information about a row that could not be imported.
type FailedRow struct {
	Entity EntityType `json:"entity"`
	Line   int        `json:"line"`
	OldID  string     `json:"oldId,omitempty"`
	Reason string     `json:"reason"`
	Code   string     `json:"code"`
}

// ImportResult is the outcome of one import run.
type ImportResult struct {
	RunID      string                `json:"runId"`
	OwnerID    string                `json:"ownerId"`
	Status     Status                `json:"status"`
	Success    bool                  `json:"success"`
	TimedOut   bool                  `json:"timedOut"`
	Entities   map[EntityType]Counts `json:"entities"`
	Totals     Counts                `json:"totals"`
	Resolution ResolutionCounts      `json:"resolution"`
	Assets     AssetCounts           `json:"assets"`
	FailedRows []FailedRow           `json:"failedRows,omitempty"`
	Manifest   archive.Manifest      `json:"manifest"`
	StartedAt  time.Time             `json:"startedAt"`
	Duration   time.Duration         `json:"durationNs"`
}
