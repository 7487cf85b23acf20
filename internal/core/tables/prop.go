package tables

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/tradejournal/internal/core"
)

// Prop firm evaluation state: a master account (the program bought from a
// firm), its phases, and the per-phase and per-program records.

func init() {
	registerMasterAccounts()
	registerPhaseAccounts()
	registerDailyAnchors()
	registerBreachRecords()
	registerPayouts()
}

// MasterAccount is an evaluation program at a prop firm.
type MasterAccount struct {
	ID             string
	AccountName    string
	FirmName       sql.NullString
	AccountSize    decimal.NullDecimal
	EvaluationType sql.NullString
	CurrentPhase   sql.NullInt64
	Status         sql.NullString
}

func (m *MasterAccount) OldID() string { return m.ID }

func registerMasterAccounts() {
	core.Register(core.TableDefinition{
		Info: core.TableInfo{
			Key:   core.EntityMasterAccount,
			Label: "Master Accounts",
			Stage: core.StageMasterAccounts,
		},
		FieldSpecs: []core.FieldSpec{
			{Name: "id", Type: core.FieldText},
			{Name: "account_name", Type: core.FieldText, Required: true},
			{Name: "firm_name", Type: core.FieldText},
			{Name: "account_size", Type: core.FieldNumeric},
			{Name: "evaluation_type", Type: core.FieldText, Normalizer: lowerTrim},
			{Name: "current_phase", Type: core.FieldInt},
			{Name: "status", Type: core.FieldText, Normalizer: lowerTrim},
		},
		Decode: func(row core.Row, specs []core.FieldSpec) (core.Record, error) {
			f := core.NewFieldReader(row, specs)
			m := &MasterAccount{
				ID:             f.Text("id"),
				AccountName:    f.Text("account_name"),
				FirmName:       f.NullText("firm_name"),
				AccountSize:    f.NullDecimal("account_size"),
				EvaluationType: f.NullText("evaluation_type"),
				CurrentPhase:   f.NullInt("current_phase"),
				Status:         f.NullText("status"),
			}
			return m, f.Err()
		},
		Key: func(ownerID string, rec core.Record) []core.KeyPart {
			m := rec.(*MasterAccount)
			return []core.KeyPart{
				{Column: "owner_id", Value: ownerID},
				{Column: "account_name", Value: m.AccountName},
			}
		},
		Insert: func(ctx context.Context, db core.DBTX, ownerID, newID string, rec core.Record) (string, error) {
			m := rec.(*MasterAccount)
			return insertNew(ctx, db, "master_accounts", newID, core.Columns{}.
				Add("id", newID).
				Add("owner_id", ownerID).
				Add("account_name", m.AccountName).
				Add("firm_name", m.FirmName).
				Add("account_size", m.AccountSize).
				Add("evaluation_type", m.EvaluationType).
				Add("current_phase", m.CurrentPhase).
				Add("status", m.Status))
		},
	})
}

// PhaseAccount is one phase of a program: evaluation, verification or
// funded, each with its own risk limits.
type PhaseAccount struct {
	ID               string
	MasterRef        string
	PhaseNumber      int64
	ExternalID       sql.NullString
	ProfitTargetPct  decimal.NullDecimal
	DailyDrawdownPct decimal.NullDecimal
	MaxDrawdownPct   decimal.NullDecimal
	Status           sql.NullString
	StartedAt        sql.NullTime
	EndedAt          sql.NullTime

	MasterID string // Resolved
}

func (p *PhaseAccount) OldID() string { return p.ID }

func registerPhaseAccounts() {
	core.Register(core.TableDefinition{
		Info: core.TableInfo{
			Key:       core.EntityPhaseAccount,
			Label:     "Phase Accounts",
			Stage:     core.StagePhaseAccounts,
			DependsOn: []core.EntityType{core.EntityMasterAccount},
		},
		FieldSpecs: []core.FieldSpec{
			{Name: "id", Type: core.FieldText},
			{Name: "master_account_id", Type: core.FieldText},
			{Name: "phase_number", Type: core.FieldInt, Required: true},
			{Name: "phase_external_id", Type: core.FieldText},
			{Name: "profit_target_pct", Type: core.FieldNumeric},
			{Name: "daily_drawdown_pct", Type: core.FieldNumeric},
			{Name: "max_drawdown_pct", Type: core.FieldNumeric},
			{Name: "status", Type: core.FieldText, Normalizer: lowerTrim},
			{Name: "started_at", Type: core.FieldTime},
			{Name: "ended_at", Type: core.FieldTime},
		},
		Decode: func(row core.Row, specs []core.FieldSpec) (core.Record, error) {
			f := core.NewFieldReader(row, specs)
			p := &PhaseAccount{
				ID:               f.Text("id"),
				MasterRef:        f.Text("master_account_id"),
				PhaseNumber:      f.Int("phase_number"),
				ExternalID:       f.NullText("phase_external_id"),
				ProfitTargetPct:  f.NullDecimal("profit_target_pct"),
				DailyDrawdownPct: f.NullDecimal("daily_drawdown_pct"),
				MaxDrawdownPct:   f.NullDecimal("max_drawdown_pct"),
				Status:           f.NullText("status"),
				StartedAt:        f.NullTime("started_at"),
				EndedAt:          f.NullTime("ended_at"),
			}
			return p, f.Err()
		},
		Key: func(_ string, rec core.Record) []core.KeyPart {
			p := rec.(*PhaseAccount)
			return []core.KeyPart{
				{Column: "master_account_id", Value: p.MasterID},
				{Column: "phase_number", Value: p.PhaseNumber},
			}
		},
		Resolve: func(rec core.Record, res *core.Resolver) error {
			p := rec.(*PhaseAccount)
			id, err := res.Required(core.EntityMasterAccount, p.MasterRef)
			p.MasterID = id
			return err
		},
		Insert: func(ctx context.Context, db core.DBTX, _, newID string, rec core.Record) (string, error) {
			p := rec.(*PhaseAccount)
			return insertNew(ctx, db, "phase_accounts", newID, core.Columns{}.
				Add("id", newID).
				Add("master_account_id", p.MasterID).
				Add("phase_number", p.PhaseNumber).
				Add("phase_external_id", p.ExternalID).
				Add("profit_target_pct", p.ProfitTargetPct).
				Add("daily_drawdown_pct", p.DailyDrawdownPct).
				Add("max_drawdown_pct", p.MaxDrawdownPct).
				Add("status", p.Status).
				Add("started_at", p.StartedAt).
				Add("ended_at", p.EndedAt))
		},
		// The broker login of a phase, matched against trade account numbers
		// when heuristic phase matching is on.
		Aliases: func(rec core.Record) map[core.EntityType]string {
			return map[core.EntityType]string{core.AliasPhaseExternalID: text(rec.(*PhaseAccount).ExternalID)}
		},
	})
}

// DailyAnchor is the equity a phase's daily drawdown is measured from.
type DailyAnchor struct {
	ID           string
	PhaseRef     string
	AnchorDate   string
	AnchorEquity decimal.Decimal

	PhaseID string // Resolved
}

func (a *DailyAnchor) OldID() string { return a.ID }

func registerDailyAnchors() {
	core.Register(core.TableDefinition{
		Info: core.TableInfo{
			Key:       core.EntityDailyAnchor,
			Label:     "Daily Anchors",
			Stage:     core.StagePhaseState,
			Order:     1,
			DependsOn: []core.EntityType{core.EntityPhaseAccount},
		},
		FieldSpecs: []core.FieldSpec{
			{Name: "id", Type: core.FieldText},
			{Name: "phase_account_id", Type: core.FieldText},
			{Name: "anchor_date", Type: core.FieldDate, Required: true},
			{Name: "anchor_equity", Type: core.FieldNumeric, Required: true},
		},
		Decode: func(row core.Row, specs []core.FieldSpec) (core.Record, error) {
			f := core.NewFieldReader(row, specs)
			a := &DailyAnchor{
				ID:           f.Text("id"),
				PhaseRef:     f.Text("phase_account_id"),
				AnchorDate:   f.Date("anchor_date"),
				AnchorEquity: f.Decimal("anchor_equity"),
			}
			return a, f.Err()
		},
		Key: func(_ string, rec core.Record) []core.KeyPart {
			a := rec.(*DailyAnchor)
			return []core.KeyPart{
				{Column: "phase_account_id", Value: a.PhaseID},
				{Column: "anchor_date", Value: a.AnchorDate},
			}
		},
		Resolve: func(rec core.Record, res *core.Resolver) error {
			a := rec.(*DailyAnchor)
			id, err := res.Required(core.EntityPhaseAccount, a.PhaseRef)
			a.PhaseID = id
			return err
		},
		Insert: func(ctx context.Context, db core.DBTX, _, newID string, rec core.Record) (string, error) {
			a := rec.(*DailyAnchor)
			return insertNew(ctx, db, "daily_anchors", newID, core.Columns{}.
				Add("id", newID).
				Add("phase_account_id", a.PhaseID).
				Add("anchor_date", a.AnchorDate).
				Add("anchor_equity", a.AnchorEquity))
		},
	})
}

// BreachRecord is a rule violation of a phase.
type BreachRecord struct {
	ID         string
	PhaseRef   string
	BreachType string
	BreachedAt time.Time
	Threshold  decimal.NullDecimal
	Equity     decimal.NullDecimal
	Notes      sql.NullString

	PhaseID string // Resolved
}

func (b *BreachRecord) OldID() string { return b.ID }

func registerBreachRecords() {
	core.Register(core.TableDefinition{
		Info: core.TableInfo{
			Key:       core.EntityBreachRecord,
			Label:     "Breach Records",
			Stage:     core.StagePhaseState,
			Order:     2,
			DependsOn: []core.EntityType{core.EntityPhaseAccount},
		},
		FieldSpecs: []core.FieldSpec{
			{Name: "id", Type: core.FieldText},
			{Name: "phase_account_id", Type: core.FieldText},
			{Name: "breach_type", Type: core.FieldText, Required: true, Normalizer: lowerTrim},
			{Name: "breached_at", Type: core.FieldTime, Required: true},
			{Name: "threshold", Type: core.FieldNumeric},
			{Name: "equity", Type: core.FieldNumeric},
			{Name: "notes", Type: core.FieldText},
		},
		Decode: func(row core.Row, specs []core.FieldSpec) (core.Record, error) {
			f := core.NewFieldReader(row, specs)
			b := &BreachRecord{
				ID:         f.Text("id"),
				PhaseRef:   f.Text("phase_account_id"),
				BreachType: f.Text("breach_type"),
				BreachedAt: f.Time("breached_at"),
				Threshold:  f.NullDecimal("threshold"),
				Equity:     f.NullDecimal("equity"),
				Notes:      f.NullText("notes"),
			}
			return b, f.Err()
		},
		Key: func(_ string, rec core.Record) []core.KeyPart {
			b := rec.(*BreachRecord)
			return []core.KeyPart{
				{Column: "phase_account_id", Value: b.PhaseID},
				{Column: "breach_type", Value: b.BreachType},
				{Column: "breached_at", Value: b.BreachedAt},
			}
		},
		Resolve: func(rec core.Record, res *core.Resolver) error {
			b := rec.(*BreachRecord)
			id, err := res.Required(core.EntityPhaseAccount, b.PhaseRef)
			b.PhaseID = id
			return err
		},
		Insert: func(ctx context.Context, db core.DBTX, _, newID string, rec core.Record) (string, error) {
			b := rec.(*BreachRecord)
			return insertNew(ctx, db, "breach_records", newID, core.Columns{}.
				Add("id", newID).
				Add("phase_account_id", b.PhaseID).
				Add("breach_type", b.BreachType).
				Add("breached_at", b.BreachedAt).
				Add("threshold", b.Threshold).
				Add("equity", b.Equity).
				Add("notes", b.Notes))
		},
	})
}

// Payout is a profit withdrawal from a funded program.
type Payout struct {
	ID          string
	MasterRef   string
	Amount      decimal.Decimal
	RequestedAt time.Time
	PaidAt      sql.NullTime
	Status      sql.NullString

	MasterID string // Resolved
}

func (p *Payout) OldID() string { return p.ID }

func registerPayouts() {
	core.Register(core.TableDefinition{
		Info: core.TableInfo{
			Key:       core.EntityPayout,
			Label:     "Payouts",
			Stage:     core.StagePhaseState,
			Order:     3,
			DependsOn: []core.EntityType{core.EntityMasterAccount},
		},
		FieldSpecs: []core.FieldSpec{
			{Name: "id", Type: core.FieldText},
			{Name: "master_account_id", Type: core.FieldText},
			{Name: "amount", Type: core.FieldNumeric, Required: true},
			{Name: "requested_at", Type: core.FieldTime, Required: true},
			{Name: "paid_at", Type: core.FieldTime},
			{Name: "status", Type: core.FieldText, Normalizer: lowerTrim},
		},
		Decode: func(row core.Row, specs []core.FieldSpec) (core.Record, error) {
			f := core.NewFieldReader(row, specs)
			p := &Payout{
				ID:          f.Text("id"),
				MasterRef:   f.Text("master_account_id"),
				Amount:      f.Decimal("amount"),
				RequestedAt: f.Time("requested_at"),
				PaidAt:      f.NullTime("paid_at"),
				Status:      f.NullText("status"),
			}
			return p, f.Err()
		},
		Key: func(_ string, rec core.Record) []core.KeyPart {
			p := rec.(*Payout)
			return []core.KeyPart{
				{Column: "master_account_id", Value: p.MasterID},
				{Column: "amount", Value: p.Amount},
				{Column: "requested_at", Value: p.RequestedAt},
			}
		},
		Resolve: func(rec core.Record, res *core.Resolver) error {
			p := rec.(*Payout)
			id, err := res.Required(core.EntityMasterAccount, p.MasterRef)
			p.MasterID = id
			return err
		},
		Insert: func(ctx context.Context, db core.DBTX, _, newID string, rec core.Record) (string, error) {
			p := rec.(*Payout)
			return insertNew(ctx, db, "payouts", newID, core.Columns{}.
				Add("id", newID).
				Add("master_account_id", p.MasterID).
				Add("amount", p.Amount).
				Add("requested_at", p.RequestedAt).
				Add("paid_at", p.PaidAt).
				Add("status", p.Status))
		},
	})
}
