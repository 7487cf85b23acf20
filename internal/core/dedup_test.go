package core

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/tradejournal/internal/testutil"
)

func TestCacheKey_CanonicalValues(t *testing.T) {
	at := time.Date(2024, 3, 5, 9, 30, 0, 0, time.UTC)
	local := at.In(time.FixedZone("CET", 3600))

	a := CacheKey("trades", []KeyPart{
		{Column: "entry_price", Value: decimal.RequireFromString("1.50")},
		{Column: "entry_time", Value: at},
		{Column: "account_scope", Value: ""},
	})
	b := CacheKey("trades", []KeyPart{
		{Column: "entry_price", Value: decimal.RequireFromString("1.5")},
		{Column: "entry_time", Value: local},
		{Column: "account_scope", Value: ""},
	})
	if a != b {
		t.Errorf("equal keys render differently:\n%s\n%s", a, b)
	}

	null := CacheKey("trades", []KeyPart{{Column: "pnl", Value: decimal.NullDecimal{}}})
	empty := CacheKey("trades", []KeyPart{{Column: "pnl", Value: ""}})
	if null == empty {
		t.Error("NULL and empty string must differ")
	}
	if CacheKey("trades", nil) == CacheKey("backtest_trades", nil) {
		t.Error("table is part of the key")
	}
}

func TestDeduper_ExistsInDestination(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	owner := testutil.CreateOwner(t, db, "u1")

	_, err := db.ExecContext(ctx,
		`INSERT INTO accounts (id, owner_id, account_number, starting_balance) VALUES ($1, $2, $3, $4)`,
		"acc-1", owner, "ACC1", 10000.0)
	if err != nil {
		t.Fatalf("seed account: %v", err)
	}

	d := NewDeduper()
	key := []KeyPart{{Column: "owner_id", Value: owner}, {Column: "account_number", Value: "ACC1"}}

	id, found, err := d.Exists(ctx, db, "accounts", key)
	if err != nil || !found || id != "acc-1" {
		t.Fatalf("Exists = %q, %v, %v; want acc-1", id, found, err)
	}
	if d.Len() != 1 {
		t.Errorf("found keys are cached, Len = %d", d.Len())
	}

	other := []KeyPart{{Column: "owner_id", Value: "someone-else"}, {Column: "account_number", Value: "ACC1"}}
	if _, found, _ := d.Exists(ctx, db, "accounts", other); found {
		t.Error("lookups must be owner scoped")
	}
}

func TestDeduper_NumericComparedAsNumbers(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	owner := testutil.CreateOwner(t, db, "u1")
	at := time.Date(2024, 3, 5, 9, 30, 0, 0, time.UTC)

	cols := Columns{}.
		Add("id", "bt-1").
		Add("owner_id", owner).
		Add("pair", "EURUSD").
		Add("direction", "long").
		Add("entry_price", decimal.RequireFromString("1.0850")).
		Add("executed_at", at)
	if err := InsertRow(ctx, db, "backtest_trades", cols); err != nil {
		t.Fatalf("InsertRow: %v", err)
	}

	d := NewDeduper()
	key := []KeyPart{
		{Column: "owner_id", Value: owner},
		{Column: "pair", Value: "EURUSD"},
		{Column: "executed_at", Value: at},
		{Column: "entry_price", Value: decimal.RequireFromString("1.085")},
		{Column: "direction", Value: "long"},
	}
	id, found, err := d.Exists(ctx, db, "backtest_trades", key)
	if err != nil || !found || id != "bt-1" {
		t.Errorf("Exists = %q, %v, %v; \"1.0850\" and \"1.085\" are the same price", id, found, err)
	}
}

func TestDeduper_NullKeyParts(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	owner := testutil.CreateOwner(t, db, "u1")

	if err := InsertRow(ctx, db, "trade_tags", Columns{}.Add("id", "tag-1").Add("owner_id", owner).Add("name", "news")); err != nil {
		t.Fatalf("InsertRow: %v", err)
	}

	d := NewDeduper()
	key := []KeyPart{
		{Column: "owner_id", Value: owner},
		{Column: "name", Value: "news"},
		{Column: "color", Value: sql.NullString{}},
	}
	if _, found, err := d.Exists(ctx, db, "trade_tags", key); err != nil || !found {
		t.Errorf("NULL key part should match IS NULL: found=%v err=%v", found, err)
	}
}

func TestDeduper_RememberAndForget(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	d := NewDeduper()
	key := []KeyPart{{Column: "owner_id", Value: "u1"}, {Column: "name", Value: "Breakout"}}

	if _, found, _ := d.Exists(ctx, db, "trading_models", key); found {
		t.Fatal("empty destination should have no match")
	}

	d.Remember("trading_models", key, "m-1")
	id, found, err := d.Exists(ctx, db, "trading_models", key)
	if err != nil || !found || id != "m-1" {
		t.Errorf("in-run key = %q, %v, %v; want m-1", id, found, err)
	}

	d.Forget("m-1")
	if _, found, _ := d.Exists(ctx, db, "trading_models", key); found {
		t.Error("forgotten key should no longer match")
	}
}
