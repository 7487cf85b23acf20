package core

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Deduper answers whether a natural key already exists for an owner.
//
// It checks an in-run cache of keys accepted earlier in the same import
// first, then the destination table. The cache only saves queries; the
// destination's unique indexes remain the backstop against concurrent runs.
type Deduper struct {
	seen map[string]string // cache key -> destination id
}

// NewDeduper returns a deduper with an empty cache.
func NewDeduper() *Deduper {
	return &Deduper{seen: make(map[string]string)}
}

// Exists looks up key in table. It returns the id of the existing row.
func (d *Deduper) Exists(ctx context.Context, db DBTX, table string, key []KeyPart) (string, bool, error) {
	ck := CacheKey(table, key)
	if id, ok := d.seen[ck]; ok {
		return id, true, nil
	}

	where, args := whereKey(key)
	query := fmt.Sprintf("SELECT id FROM %s WHERE %s LIMIT 1", table, where)

	var id string
	err := db.QueryRowContext(ctx, query, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("dedup %s: %w", table, err)
	}

	d.seen[ck] = id
	return id, true, nil
}

// Remember caches a key accepted during this run.
func (d *Deduper) Remember(table string, key []KeyPart, id string) {
	d.seen[CacheKey(table, key)] = id
}

// Forget drops cached keys that point at one of ids.
func (d *Deduper) Forget(ids ...string) {
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	for k, id := range d.seen {
		if _, ok := drop[id]; ok {
			delete(d.seen, k)
		}
	}
}

// Len returns the number of cached keys.
func (d *Deduper) Len() int {
	return len(d.seen)
}

// CacheKey renders a natural key canonically: numbers compare by value
// ("1.50" and "1.5" are equal) and times in UTC.
func CacheKey(table string, key []KeyPart) string {
	var b strings.Builder
	b.WriteString(table)
	for _, part := range key {
		b.WriteByte('|')
		b.WriteString(part.Column)
		b.WriteByte('=')
		b.WriteString(canonical(part.Value))
	}
	return b.String()
}

func canonical(v any) string {
	switch x := v.(type) {
	case nil:
		return "\x00"
	case decimal.Decimal:
		return x.String()
	case decimal.NullDecimal:
		if !x.Valid {
			return "\x00"
		}
		return x.Decimal.String()
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case sql.NullTime:
		if !x.Valid {
			return "\x00"
		}
		return x.Time.UTC().Format(time.RFC3339Nano)
	case sql.NullString:
		if !x.Valid {
			return "\x00"
		}
		return x.String
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}
