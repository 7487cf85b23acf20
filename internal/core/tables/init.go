// Package tables registers all table definitions with the core registry.
// Import this package to ensure all tables are registered.
package tables

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/JonMunkholm/tradejournal/internal/core"
)

// Each table file uses init() to register its tables.

// insertNew inserts cols into table and returns newID as the stored id.
func insertNew(ctx context.Context, db core.DBTX, table, newID string, cols core.Columns) (string, error) {
	if err := core.InsertRow(ctx, db, table, cols); err != nil {
		return "", err
	}
	return newID, nil
}

// jsonList stores a list as a JSON array, or NULL when empty.
func jsonList(items []string) sql.NullString {
	if len(items) == 0 {
		return sql.NullString{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

// text returns a nullable string's value, or "".
func text(s sql.NullString) string {
	if !s.Valid {
		return ""
	}
	return s.String
}
