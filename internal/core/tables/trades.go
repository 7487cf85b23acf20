package tables

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/tradejournal/internal/core"
)

func init() {
	registerTrades()
}

// Trade is one executed trade of a broker account.
type Trade struct {
	ID            string
	AccountRef    string
	PhaseRef      string
	ModelRef      string
	ModelName     string
	AccountNumber string
	Instrument    string
	Side          string
	Quantity      decimal.Decimal
	EntryPrice    decimal.Decimal
	ClosePrice    decimal.NullDecimal
	EntryTime     time.Time
	CloseTime     sql.NullTime
	PnL           decimal.NullDecimal
	Commission    decimal.NullDecimal
	Swap          decimal.NullDecimal
	Tags          []string
	Notes         sql.NullString
	ImageBefore   sql.NullString
	ImageAfter    sql.NullString

	// Resolved
	AccountID sql.NullString
	PhaseID   sql.NullString
	ModelID   sql.NullString
}

func (t *Trade) OldID() string { return t.ID }

func registerTrades() {
	core.Register(core.TableDefinition{
		Info: core.TableInfo{
			Key:   core.EntityTrade,
			Label: "Trades",
			Stage: core.StageTrades,
			DependsOn: []core.EntityType{
				core.EntityAccount,
				core.EntityPhaseAccount,
				core.EntityTradingModel,
			},
			AssetKind: "trades",
		},
		FieldSpecs: []core.FieldSpec{
			{Name: "id", Type: core.FieldText},
			{Name: "account_id", Type: core.FieldText},
			{Name: "phase_account_id", Type: core.FieldText},
			{Name: "trading_model_id", Type: core.FieldText},
			{Name: "model", Type: core.FieldText},
			{Name: "account_number", Type: core.FieldText, Required: true},
			{Name: "instrument", Type: core.FieldText, Required: true, Normalizer: NormalizeInstrument},
			{Name: "side", Type: core.FieldEnum, Required: true, EnumValues: []string{"buy", "sell"}, Normalizer: NormalizeSide},
			{Name: "quantity", Type: core.FieldNumeric, Required: true},
			{Name: "entry_price", Type: core.FieldNumeric, Required: true},
			{Name: "close_price", Type: core.FieldNumeric},
			{Name: "entry_time", Type: core.FieldTime, Required: true},
			{Name: "close_time", Type: core.FieldTime},
			{Name: "pnl", Type: core.FieldNumeric},
			{Name: "commission", Type: core.FieldNumeric},
			{Name: "swap", Type: core.FieldNumeric},
			{Name: "tags", Type: core.FieldJSON},
			{Name: "notes", Type: core.FieldText},
			{Name: "image_before", Type: core.FieldText},
			{Name: "image_after", Type: core.FieldText},
		},
		Decode: decodeTrade,
		Key: func(ownerID string, rec core.Record) []core.KeyPart {
			t := rec.(*Trade)
			return []core.KeyPart{
				{Column: "owner_id", Value: ownerID},
				{Column: "account_number", Value: t.AccountNumber},
				{Column: "instrument", Value: t.Instrument},
				{Column: "entry_time", Value: t.EntryTime},
				{Column: "entry_price", Value: t.EntryPrice},
				{Column: "side", Value: t.Side},
				{Column: "quantity", Value: t.Quantity},
			}
		},
		Resolve: func(rec core.Record, res *core.Resolver) error {
			t := rec.(*Trade)
			t.AccountID = res.Lookup(core.EntityAccount, t.AccountRef, core.AliasAccountNumber, t.AccountNumber)
			t.PhaseID = res.PhaseForTrade(t.PhaseRef, t.AccountNumber)
			t.ModelID = res.Lookup(core.EntityTradingModel, t.ModelRef, core.AliasTradingModelByName, t.ModelName)
			return nil
		},
		Insert: insertTrade,
		Assets: []core.AssetSlot{
			{Slot: "before", Column: "image_before", Ref: func(rec core.Record) string { return text(rec.(*Trade).ImageBefore) }},
			{Slot: "after", Column: "image_after", Ref: func(rec core.Record) string { return text(rec.(*Trade).ImageAfter) }},
		},
	})
}

func decodeTrade(row core.Row, specs []core.FieldSpec) (core.Record, error) {
	f := core.NewFieldReader(row, specs)
	t := &Trade{
		ID:            f.Text("id"),
		AccountRef:    f.Text("account_id"),
		PhaseRef:      f.Text("phase_account_id"),
		ModelRef:      f.Text("trading_model_id"),
		ModelName:     f.Text("model"),
		AccountNumber: f.Text("account_number"),
		Instrument:    f.Text("instrument"),
		Side:          f.Enum("side"),
		Quantity:      f.Decimal("quantity"),
		EntryPrice:    f.Decimal("entry_price"),
		ClosePrice:    f.NullDecimal("close_price"),
		EntryTime:     f.Time("entry_time"),
		CloseTime:     f.NullTime("close_time"),
		PnL:           f.NullDecimal("pnl"),
		Commission:    f.NullDecimal("commission"),
		Swap:          f.NullDecimal("swap"),
		Tags:          f.List("tags"),
		Notes:         f.NullText("notes"),
		ImageBefore:   f.NullText("image_before"),
		ImageAfter:    f.NullText("image_after"),
	}
	return t, f.Err()
}

// insertTrade stores the trade with the attachment references it came
// with; migrated attachments are patched in once uploaded.
func insertTrade(ctx context.Context, db core.DBTX, ownerID, newID string, rec core.Record) (string, error) {
	t := rec.(*Trade)
	return insertNew(ctx, db, "trades", newID, core.Columns{}.
		Add("id", newID).
		Add("owner_id", ownerID).
		Add("account_id", t.AccountID).
		Add("phase_account_id", t.PhaseID).
		Add("trading_model_id", t.ModelID).
		Add("account_number", t.AccountNumber).
		Add("instrument", t.Instrument).
		Add("side", t.Side).
		Add("quantity", t.Quantity).
		Add("entry_price", t.EntryPrice).
		Add("close_price", t.ClosePrice).
		Add("entry_time", t.EntryTime).
		Add("close_time", t.CloseTime).
		Add("pnl", t.PnL).
		Add("commission", t.Commission).
		Add("swap", t.Swap).
		Add("tags", jsonList(t.Tags)).
		Add("notes", t.Notes).
		Add("image_before", t.ImageBefore).
		Add("image_after", t.ImageAfter))
}
