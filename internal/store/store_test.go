package store

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenMemory_AppliesSchema(t *testing.T) {
	ctx := context.Background()
	db, err := OpenMemory(ctx)
	require.NoError(t, err)
	defer db.Close()

	for _, table := range []string{
		"users", "account_groups", "accounts", "trading_models", "trade_tags",
		"master_accounts", "phase_accounts", "daily_anchors", "breach_records", "payouts",
		"trades", "backtest_trades", "daily_notes", "dashboard_templates", "import_runs",
	} {
		var n int
		err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n)
		assert.NoError(t, err, table)
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "x", Options{})
	assert.ErrorIs(t, err, ErrUnknownDriver)
}

func TestOwners(t *testing.T) {
	ctx := context.Background()
	db, err := OpenMemory(ctx)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, CreateOwner(ctx, db, Owner{ID: "u1", Email: "a@example.com"}))

	o, err := GetOwner(ctx, db, "u1")
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", o.Email)

	_, err = GetOwner(ctx, db, "nobody")
	assert.ErrorIs(t, err, ErrOwnerNotFound)

	err = CreateOwner(ctx, db, Owner{ID: "u1", Email: "b@example.com"})
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err), "got %v", err)
	assert.Equal(t, "unique", ConstraintKind(err))
}

func TestForeignKeysEnforced(t *testing.T) {
	ctx := context.Background()
	db, err := OpenMemory(ctx)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.ExecContext(ctx,
		`INSERT INTO trade_tags (id, owner_id, name) VALUES ($1, $2, $3)`, "t1", "ghost", "scalp")
	require.Error(t, err)
	assert.True(t, IsForeignKeyViolation(err), "got %v", err)
}

func TestConstraintKind_Postgres(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"unique", &pgconn.PgError{Code: "23505"}, "unique"},
		{"foreign key", &pgconn.PgError{Code: "23503"}, "foreign_key"},
		{"other pg", &pgconn.PgError{Code: "22P02"}, ""},
		{"plain", errors.New("boom"), ""},
		{"nil", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ConstraintKind(tt.err))
		})
	}
}

func TestRedactDSN(t *testing.T) {
	assert.Equal(t, "postgres://***@db:5432/journal", RedactDSN("postgres://user:secret@db:5432/journal"))
	assert.Equal(t, "file:journal.db", RedactDSN("file:journal.db"))
}
