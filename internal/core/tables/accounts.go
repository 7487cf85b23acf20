package tables

import (
	"context"
	"database/sql"

	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/tradejournal/internal/core"
)

func init() {
	registerAccountGroups()
	registerAccounts()
	registerTradingModels()
	registerTradeTags()
}

// AccountGroup is a named folder of broker accounts.
type AccountGroup struct {
	ID    string
	Name  string
	Color sql.NullString
}

func (g *AccountGroup) OldID() string { return g.ID }

func registerAccountGroups() {
	core.Register(core.TableDefinition{
		Info: core.TableInfo{
			Key:   core.EntityAccountGroup,
			Label: "Account Groups",
			Stage: core.StageAccounts,
			Order: 1,
		},
		FieldSpecs: []core.FieldSpec{
			{Name: "id", Type: core.FieldText},
			{Name: "name", Type: core.FieldText, Required: true},
			{Name: "color", Type: core.FieldText, Normalizer: NormalizeColor},
		},
		Decode: func(row core.Row, specs []core.FieldSpec) (core.Record, error) {
			f := core.NewFieldReader(row, specs)
			g := &AccountGroup{
				ID:    f.Text("id"),
				Name:  f.Text("name"),
				Color: f.NullText("color"),
			}
			return g, f.Err()
		},
		Key: func(ownerID string, rec core.Record) []core.KeyPart {
			g := rec.(*AccountGroup)
			return []core.KeyPart{{Column: "owner_id", Value: ownerID}, {Column: "name", Value: g.Name}}
		},
		Insert: func(ctx context.Context, db core.DBTX, ownerID, newID string, rec core.Record) (string, error) {
			g := rec.(*AccountGroup)
			return insertNew(ctx, db, "account_groups", newID, core.Columns{}.
				Add("id", newID).
				Add("owner_id", ownerID).
				Add("name", g.Name).
				Add("color", g.Color))
		},
	})
}

// Account is a broker account trades are booked against.
type Account struct {
	ID              string
	GroupRef        string
	AccountNumber   string
	Name            sql.NullString
	Broker          sql.NullString
	Currency        sql.NullString
	StartingBalance decimal.NullDecimal
	Archived        bool

	GroupID sql.NullString // Resolved
}

func (a *Account) OldID() string { return a.ID }

func registerAccounts() {
	core.Register(core.TableDefinition{
		Info: core.TableInfo{
			Key:       core.EntityAccount,
			Label:     "Accounts",
			Stage:     core.StageAccounts,
			Order:     2,
			DependsOn: []core.EntityType{core.EntityAccountGroup},
		},
		FieldSpecs: []core.FieldSpec{
			{Name: "id", Type: core.FieldText},
			{Name: "group_id", Type: core.FieldText},
			{Name: "account_number", Type: core.FieldText, Required: true},
			{Name: "name", Type: core.FieldText},
			{Name: "broker", Type: core.FieldText},
			{Name: "currency", Type: core.FieldText},
			{Name: "starting_balance", Type: core.FieldNumeric},
			{Name: "is_archived", Type: core.FieldBool},
		},
		Decode: func(row core.Row, specs []core.FieldSpec) (core.Record, error) {
			f := core.NewFieldReader(row, specs)
			a := &Account{
				ID:              f.Text("id"),
				GroupRef:        f.Text("group_id"),
				AccountNumber:   f.Text("account_number"),
				Name:            f.NullText("name"),
				Broker:          f.NullText("broker"),
				Currency:        f.NullText("currency"),
				StartingBalance: f.NullDecimal("starting_balance"),
				Archived:        f.Bool("is_archived"),
			}
			return a, f.Err()
		},
		Key: func(ownerID string, rec core.Record) []core.KeyPart {
			a := rec.(*Account)
			return []core.KeyPart{
				{Column: "owner_id", Value: ownerID},
				{Column: "account_number", Value: a.AccountNumber},
			}
		},
		Resolve: func(rec core.Record, res *core.Resolver) error {
			a := rec.(*Account)
			a.GroupID = res.Optional(core.EntityAccountGroup, a.GroupRef)
			return nil
		},
		Insert: func(ctx context.Context, db core.DBTX, ownerID, newID string, rec core.Record) (string, error) {
			a := rec.(*Account)
			return insertNew(ctx, db, "accounts", newID, core.Columns{}.
				Add("id", newID).
				Add("owner_id", ownerID).
				Add("group_id", a.GroupID).
				Add("account_number", a.AccountNumber).
				Add("name", a.Name).
				Add("broker", a.Broker).
				Add("currency", a.Currency).
				Add("starting_balance", a.StartingBalance).
				Add("is_archived", a.Archived))
		},
		// Trades carry the account number even when the account id is lost.
		Aliases: func(rec core.Record) map[core.EntityType]string {
			return map[core.EntityType]string{core.AliasAccountNumber: rec.(*Account).AccountNumber}
		},
	})
}

// TradingModel is a named setup with its rule list.
type TradingModel struct {
	ID    string
	Name  string
	Rules []string
	Notes sql.NullString
}

func (m *TradingModel) OldID() string { return m.ID }

func registerTradingModels() {
	core.Register(core.TableDefinition{
		Info: core.TableInfo{
			Key:   core.EntityTradingModel,
			Label: "Trading Models",
			Stage: core.StageAccounts,
			Order: 3,
		},
		FieldSpecs: []core.FieldSpec{
			{Name: "id", Type: core.FieldText},
			{Name: "name", Type: core.FieldText, Required: true},
			{Name: "rules", Type: core.FieldJSON},
			{Name: "notes", Type: core.FieldText},
		},
		Decode: func(row core.Row, specs []core.FieldSpec) (core.Record, error) {
			f := core.NewFieldReader(row, specs)
			m := &TradingModel{
				ID:    f.Text("id"),
				Name:  f.Text("name"),
				Rules: f.List("rules"),
				Notes: f.NullText("notes"),
			}
			return m, f.Err()
		},
		Key: func(ownerID string, rec core.Record) []core.KeyPart {
			m := rec.(*TradingModel)
			return []core.KeyPart{{Column: "owner_id", Value: ownerID}, {Column: "name", Value: m.Name}}
		},
		Insert: func(ctx context.Context, db core.DBTX, ownerID, newID string, rec core.Record) (string, error) {
			m := rec.(*TradingModel)
			return insertNew(ctx, db, "trading_models", newID, core.Columns{}.
				Add("id", newID).
				Add("owner_id", ownerID).
				Add("name", m.Name).
				Add("rules", jsonList(m.Rules)).
				Add("notes", m.Notes))
		},
		Aliases: func(rec core.Record) map[core.EntityType]string {
			return map[core.EntityType]string{core.AliasTradingModelByName: rec.(*TradingModel).Name}
		},
	})
}

// TradeTag is a label that can be attached to trades.
type TradeTag struct {
	ID    string
	Name  string
	Color sql.NullString
}

func (t *TradeTag) OldID() string { return t.ID }

func registerTradeTags() {
	core.Register(core.TableDefinition{
		Info: core.TableInfo{
			Key:   core.EntityTradeTag,
			Label: "Trade Tags",
			Stage: core.StageAccounts,
			Order: 4,
		},
		FieldSpecs: []core.FieldSpec{
			{Name: "id", Type: core.FieldText},
			{Name: "name", Type: core.FieldText, Required: true},
			{Name: "color", Type: core.FieldText, Normalizer: NormalizeColor},
		},
		Decode: func(row core.Row, specs []core.FieldSpec) (core.Record, error) {
			f := core.NewFieldReader(row, specs)
			t := &TradeTag{
				ID:    f.Text("id"),
				Name:  f.Text("name"),
				Color: f.NullText("color"),
			}
			return t, f.Err()
		},
		Key: func(ownerID string, rec core.Record) []core.KeyPart {
			t := rec.(*TradeTag)
			return []core.KeyPart{{Column: "owner_id", Value: ownerID}, {Column: "name", Value: t.Name}}
		},
		Insert: func(ctx context.Context, db core.DBTX, ownerID, newID string, rec core.Record) (string, error) {
			t := rec.(*TradeTag)
			return insertNew(ctx, db, "trade_tags", newID, core.Columns{}.
				Add("id", newID).
				Add("owner_id", ownerID).
				Add("name", t.Name).
				Add("color", t.Color))
		},
	})
}
