package core

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// SQLValue converts a record field to the value bound for it. Numbers are
// stored as DOUBLE PRECISION and times in UTC, so the same conversion is
// used for inserts and for natural key lookups.
func SQLValue(v any) any {
	switch x := v.(type) {
	case decimal.Decimal:
		return x.InexactFloat64()
	case decimal.NullDecimal:
		if !x.Valid {
			return nil
		}
		return x.Decimal.InexactFloat64()
	case time.Time:
		return x.UTC()
	case sql.NullTime:
		if !x.Valid {
			return nil
		}
		return x.Time.UTC()
	case sql.NullString:
		if !x.Valid {
			return nil
		}
		return x.String
	case sql.NullInt64:
		if !x.Valid {
			return nil
		}
		return x.Int64
	default:
		return v
	}
}

// Columns is an ordered list of column/value pairs for one insert.
type Columns []KeyPart

// Add appends a column.
func (c Columns) Add(column string, value any) Columns {
	return append(c, KeyPart{Column: column, Value: value})
}

// InsertRow inserts one row into table.
func InsertRow(ctx context.Context, db DBTX, table string, cols Columns) error {
	names := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		names[i] = c.Column
		args[i] = SQLValue(c.Value)
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(names, ", "), placeholders(len(cols), 1))

	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	return nil
}

// UpdateColumn sets one column of the row with the given id.
func UpdateColumn(ctx context.Context, db DBTX, table, column, id string, value any) error {
	query := fmt.Sprintf("UPDATE %s SET %s = $1 WHERE id = $2", table, column)
	if _, err := db.ExecContext(ctx, query, SQLValue(value), id); err != nil {
		return fmt.Errorf("update %s.%s: %w", table, column, err)
	}
	return nil
}

// placeholders returns "$start, $start+1, ..." for n values.
func placeholders(n, start int) string {
	var b strings.Builder
	for i := range n {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "$%d", start+i)
	}
	return b.String()
}

// whereKey builds "c1 = $1 AND c2 IS NULL AND ..." for a natural key.
func whereKey(key []KeyPart) (string, []any) {
	conds := make([]string, 0, len(key))
	args := make([]any, 0, len(key))
	for _, part := range key {
		v := SQLValue(part.Value)
		if v == nil {
			conds = append(conds, part.Column+" IS NULL")
			continue
		}
		args = append(args, v)
		conds = append(conds, fmt.Sprintf("%s = $%d", part.Column, len(args)))
	}
	return strings.Join(conds, " AND "), args
}
