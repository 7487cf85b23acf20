package tables

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/tradejournal/internal/core"
)

func init() {
	registerBacktestTrades()
	registerDailyNotes()
	registerDashboardTemplates()
}

// BacktestTrade is a simulated trade from replaying a strategy.
type BacktestTrade struct {
	ID         string
	Pair       string
	Direction  string
	Outcome    sql.NullString
	EntryPrice decimal.Decimal
	StopLoss   decimal.NullDecimal
	TakeProfit decimal.NullDecimal
	ExitPrice  decimal.NullDecimal
	PnL        decimal.NullDecimal
	ExecutedAt time.Time
	Tags       []string
	Notes      sql.NullString
	ImageChart sql.NullString
}

func (b *BacktestTrade) OldID() string { return b.ID }

func registerBacktestTrades() {
	core.Register(core.TableDefinition{
		Info: core.TableInfo{
			Key:       core.EntityBacktestTrade,
			Label:     "Backtest Trades",
			Stage:     core.StageBacktests,
			AssetKind: "backtests",
		},
		FieldSpecs: []core.FieldSpec{
			{Name: "id", Type: core.FieldText},
			{Name: "pair", Type: core.FieldText, Required: true, Normalizer: NormalizeInstrument},
			{Name: "direction", Type: core.FieldEnum, Required: true, EnumValues: []string{"long", "short"}, Normalizer: NormalizeDirection},
			{Name: "outcome", Type: core.FieldText, Normalizer: lowerTrim},
			{Name: "entry_price", Type: core.FieldNumeric, Required: true},
			{Name: "stop_loss", Type: core.FieldNumeric},
			{Name: "take_profit", Type: core.FieldNumeric},
			{Name: "exit_price", Type: core.FieldNumeric},
			{Name: "pnl", Type: core.FieldNumeric},
			{Name: "executed_at", Type: core.FieldTime, Required: true},
			{Name: "tags", Type: core.FieldJSON},
			{Name: "notes", Type: core.FieldText},
			{Name: "image_chart", Type: core.FieldText},
		},
		Decode: func(row core.Row, specs []core.FieldSpec) (core.Record, error) {
			f := core.NewFieldReader(row, specs)
			b := &BacktestTrade{
				ID:         f.Text("id"),
				Pair:       f.Text("pair"),
				Direction:  f.Enum("direction"),
				Outcome:    f.NullText("outcome"),
				EntryPrice: f.Decimal("entry_price"),
				StopLoss:   f.NullDecimal("stop_loss"),
				TakeProfit: f.NullDecimal("take_profit"),
				ExitPrice:  f.NullDecimal("exit_price"),
				PnL:        f.NullDecimal("pnl"),
				ExecutedAt: f.Time("executed_at"),
				Tags:       f.List("tags"),
				Notes:      f.NullText("notes"),
				ImageChart: f.NullText("image_chart"),
			}
			return b, f.Err()
		},
		Key: func(ownerID string, rec core.Record) []core.KeyPart {
			b := rec.(*BacktestTrade)
			return []core.KeyPart{
				{Column: "owner_id", Value: ownerID},
				{Column: "pair", Value: b.Pair},
				{Column: "executed_at", Value: b.ExecutedAt},
				{Column: "entry_price", Value: b.EntryPrice},
				{Column: "direction", Value: b.Direction},
			}
		},
		Insert: func(ctx context.Context, db core.DBTX, ownerID, newID string, rec core.Record) (string, error) {
			b := rec.(*BacktestTrade)
			return insertNew(ctx, db, "backtest_trades", newID, core.Columns{}.
				Add("id", newID).
				Add("owner_id", ownerID).
				Add("pair", b.Pair).
				Add("direction", b.Direction).
				Add("outcome", b.Outcome).
				Add("entry_price", b.EntryPrice).
				Add("stop_loss", b.StopLoss).
				Add("take_profit", b.TakeProfit).
				Add("exit_price", b.ExitPrice).
				Add("pnl", b.PnL).
				Add("executed_at", b.ExecutedAt).
				Add("tags", jsonList(b.Tags)).
				Add("notes", b.Notes).
				Add("image_chart", b.ImageChart))
		},
		Assets: []core.AssetSlot{
			{Slot: "chart", Column: "image_chart", Ref: func(rec core.Record) string { return text(rec.(*BacktestTrade).ImageChart) }},
		},
	})
}

// DailyNote is the journal entry of one day, for one account or for all.
type DailyNote struct {
	ID            string
	AccountRef    string
	AccountNumber string
	NoteDate      string
	Content       string

	AccountID sql.NullString // Resolved
}

func (n *DailyNote) OldID() string { return n.ID }

// scope is the account the note belongs to, or "" for a global note.
func (n *DailyNote) scope() string {
	return text(n.AccountID)
}

func registerDailyNotes() {
	core.Register(core.TableDefinition{
		Info: core.TableInfo{
			Key:       core.EntityDailyNote,
			Label:     "Daily Notes",
			Stage:     core.StageNotes,
			DependsOn: []core.EntityType{core.EntityAccount},
		},
		FieldSpecs: []core.FieldSpec{
			{Name: "id", Type: core.FieldText},
			{Name: "account_id", Type: core.FieldText},
			{Name: "account_number", Type: core.FieldText},
			{Name: "note_date", Type: core.FieldDate, Required: true},
			{Name: "content", Type: core.FieldText, Required: true},
		},
		Decode: func(row core.Row, specs []core.FieldSpec) (core.Record, error) {
			f := core.NewFieldReader(row, specs)
			n := &DailyNote{
				ID:            f.Text("id"),
				AccountRef:    f.Text("account_id"),
				AccountNumber: f.Text("account_number"),
				NoteDate:      f.Date("note_date"),
				Content:       f.Text("content"),
			}
			return n, f.Err()
		},
		// One note per day and scope. A second note for the same day is
		// folded into the stored one by mergeDailyNote.
		Key: func(ownerID string, rec core.Record) []core.KeyPart {
			n := rec.(*DailyNote)
			return []core.KeyPart{
				{Column: "owner_id", Value: ownerID},
				{Column: "account_scope", Value: n.scope()},
				{Column: "note_date", Value: n.NoteDate},
			}
		},
		Resolve: func(rec core.Record, res *core.Resolver) error {
			n := rec.(*DailyNote)
			n.AccountID = res.Lookup(core.EntityAccount, n.AccountRef, core.AliasAccountNumber, n.AccountNumber)
			return nil
		},
		Insert: insertDailyNote,
		Merge:  mergeDailyNote,
	})
}

// noteSeparator joins the paragraphs of a merged note.
const noteSeparator = "\n\n"

// insertDailyNote upserts by (owner, account, date). When another run stored
// the day's note first, the record is merged into it and that row's id is
// returned.
func insertDailyNote(ctx context.Context, db core.DBTX, ownerID, newID string, rec core.Record) (string, error) {
	n := rec.(*DailyNote)
	var id string
	err := db.QueryRowContext(ctx, `
		INSERT INTO daily_notes (id, owner_id, account_id, account_scope, note_date, content)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (owner_id, account_scope, note_date) DO NOTHING
		RETURNING id`,
		newID, ownerID, core.SQLValue(n.AccountID), n.scope(), n.NoteDate, n.Content,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("insert daily_notes: %w", err)
	}

	err = db.QueryRowContext(ctx,
		`SELECT id FROM daily_notes WHERE owner_id = $1 AND account_scope = $2 AND note_date = $3`,
		ownerID, n.scope(), n.NoteDate,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("find daily_notes: %w", err)
	}
	if _, err := mergeDailyNote(ctx, db, id, rec); err != nil {
		return "", err
	}
	return id, nil
}

// mergeDailyNote appends the record's content to the stored note unless the
// note already holds it, so importing the same notes again changes nothing.
func mergeDailyNote(ctx context.Context, db core.DBTX, existingID string, rec core.Record) (bool, error) {
	n := rec.(*DailyNote)
	var stored string
	err := db.QueryRowContext(ctx, `SELECT content FROM daily_notes WHERE id = $1`, existingID).Scan(&stored)
	if err != nil {
		return false, fmt.Errorf("load daily_notes: %w", err)
	}

	merged, changed := mergeNoteContent(stored, n.Content)
	if !changed {
		return false, nil
	}
	_, err = db.ExecContext(ctx,
		`UPDATE daily_notes SET content = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2`,
		merged, existingID,
	)
	if err != nil {
		return false, fmt.Errorf("merge daily_notes: %w", err)
	}
	return true, nil
}

// mergeNoteContent returns stored with incoming appended as a new paragraph.
// It reports false when incoming is empty or already one of the paragraphs.
func mergeNoteContent(stored, incoming string) (string, bool) {
	incoming = strings.TrimSpace(incoming)
	switch {
	case incoming == "":
		return stored, false
	case strings.TrimSpace(stored) == "":
		return incoming, true
	case stored == incoming,
		strings.HasPrefix(stored, incoming+noteSeparator),
		strings.HasSuffix(stored, noteSeparator+incoming),
		strings.Contains(stored, noteSeparator+incoming+noteSeparator):
		return stored, false
	}
	return stored + noteSeparator + incoming, true
}

// DashboardTemplate is a saved dashboard layout.
type DashboardTemplate struct {
	ID        string
	Name      string
	Layout    sql.NullString
	IsDefault bool
	IsActive  bool
}

func (d *DashboardTemplate) OldID() string { return d.ID }

func registerDashboardTemplates() {
	core.Register(core.TableDefinition{
		Info: core.TableInfo{
			Key:   core.EntityDashboardTemplate,
			Label: "Dashboard Templates",
			Stage: core.StageTemplates,
		},
		FieldSpecs: []core.FieldSpec{
			{Name: "id", Type: core.FieldText},
			{Name: "name", Type: core.FieldText, Required: true},
			{Name: "layout", Type: core.FieldJSON},
			{Name: "is_default", Type: core.FieldBool},
			{Name: "is_active", Type: core.FieldBool},
		},
		Decode: func(row core.Row, specs []core.FieldSpec) (core.Record, error) {
			f := core.NewFieldReader(row, specs)
			d := &DashboardTemplate{
				ID:        f.Text("id"),
				Name:      f.Text("name"),
				Layout:    f.JSON("layout"),
				IsDefault: f.Bool("is_default"),
				IsActive:  f.Bool("is_active"),
			}
			return d, f.Err()
		},
		Key: func(ownerID string, rec core.Record) []core.KeyPart {
			d := rec.(*DashboardTemplate)
			return []core.KeyPart{{Column: "owner_id", Value: ownerID}, {Column: "name", Value: d.Name}}
		},
		Insert: func(ctx context.Context, db core.DBTX, ownerID, newID string, rec core.Record) (string, error) {
			d := rec.(*DashboardTemplate)
			return insertNew(ctx, db, "dashboard_templates", newID, core.Columns{}.
				Add("id", newID).
				Add("owner_id", ownerID).
				Add("name", d.Name).
				Add("layout", d.Layout).
				Add("is_default", d.IsDefault).
				Add("is_active", d.IsActive))
		},
	})
}
