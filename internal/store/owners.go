package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Owner is a journal user. Every imported row belongs to exactly one owner.
type Owner struct {
	ID    string
	Email string
}

// ErrOwnerNotFound is returned when an owner id does not resolve.
var ErrOwnerNotFound = errors.New("owner not found")

// GetOwner loads an owner by id.
func GetOwner(ctx context.Context, q Querier, id string) (Owner, error) {
	var o Owner
	err := q.QueryRowContext(ctx, `SELECT id, email FROM users WHERE id = $1`, id).Scan(&o.ID, &o.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return Owner{}, fmt.Errorf("%w: %s", ErrOwnerNotFound, id)
	}
	if err != nil {
		return Owner{}, fmt.Errorf("get owner: %w", err)
	}
	return o, nil
}

// CreateOwner inserts an owner.
func CreateOwner(ctx context.Context, q Querier, o Owner) error {
	_, err := q.ExecContext(ctx, `INSERT INTO users (id, email) VALUES ($1, $2)`, o.ID, o.Email)
	if err != nil {
		return fmt.Errorf("create owner: %w", err)
	}
	return nil
}
