package core

import (
	"database/sql"
	"fmt"
)

// UnresolvedParentError is returned when a row's required parent was not
// imported in this run and does not exist at the destination.
type UnresolvedParentError struct {
	Entity EntityType
	OldID  string
}

func (e *UnresolvedParentError) Error() string {
	if e.OldID == "" {
		return fmt.Sprintf("unresolved parent %s: no reference", e.Entity)
	}
	return fmt.Sprintf("unresolved parent %s %q", e.Entity, e.OldID)
}

// Resolver rewrites old references of one row to destination ids.
//
// Optional references that cannot be resolved become NULL. Every lookup is
// classified as explicit, heuristic or none; the counts of a row are only
// added to the run totals once the row is stored.
type Resolver struct {
	ids            *IDMap
	heuristicPhase bool

	pending    ResolutionCounts
	total      ResolutionCounts
	unresolved []string
}

// NewResolver returns a resolver over ids. heuristicPhase enables matching a
// trade's account number against phase external ids.
func NewResolver(ids *IDMap, heuristicPhase bool) *Resolver {
	return &Resolver{ids: ids, heuristicPhase: heuristicPhase}
}

// Optional resolves oldID of entity, or returns NULL.
func (r *Resolver) Optional(entity EntityType, oldID string) sql.NullString {
	return r.Lookup(entity, oldID, "", "")
}

// Lookup resolves oldID of entity, falling back to value in the alias
// namespace. Both are stored relations, so a hit counts as explicit.
func (r *Resolver) Lookup(entity EntityType, oldID string, alias EntityType, value string) sql.NullString {
	if oldID == "" && value == "" {
		return sql.NullString{}
	}
	if newID, ok := r.ids.Get(entity, oldID); ok {
		r.pending.Explicit++
		return sql.NullString{String: newID, Valid: true}
	}
	if alias != "" {
		if newID, ok := r.ids.Get(alias, value); ok {
			r.pending.Explicit++
			return sql.NullString{String: newID, Valid: true}
		}
	}
	r.miss(entity, oldID, value)
	return sql.NullString{}
}

// Required resolves a parent reference the row cannot exist without.
func (r *Resolver) Required(entity EntityType, oldID string) (string, error) {
	newID, ok := r.ids.Get(entity, oldID)
	if !ok {
		return "", &UnresolvedParentError{Entity: entity, OldID: oldID}
	}
	r.pending.Explicit++
	return newID, nil
}

// PhaseForTrade resolves a trade's phase account. An explicit phase id is
// used when it resolves. Otherwise, when enabled, the trade's account number
// is matched against phase external ids and the match is counted as
// heuristic.
func (r *Resolver) PhaseForTrade(oldPhaseID, accountNumber string) sql.NullString {
	if newID, ok := r.ids.Get(EntityPhaseAccount, oldPhaseID); ok {
		r.pending.Explicit++
		return sql.NullString{String: newID, Valid: true}
	}

	attempted := oldPhaseID != ""
	if r.heuristicPhase && accountNumber != "" {
		attempted = true
		if newID, ok := r.ids.Get(AliasPhaseExternalID, accountNumber); ok {
			r.pending.Heuristic++
			return sql.NullString{String: newID, Valid: true}
		}
	}

	if attempted {
		r.miss(EntityPhaseAccount, oldPhaseID, accountNumber)
	}
	return sql.NullString{}
}

// Unresolved describes the references of the current row that were left
// NULL, for logging.
func (r *Resolver) Unresolved() []string {
	return r.unresolved
}

// Totals returns the counts of all settled rows.
func (r *Resolver) Totals() ResolutionCounts {
	return r.total
}

func (r *Resolver) miss(entity EntityType, oldID, value string) {
	r.pending.None++
	ref := oldID
	if ref == "" {
		ref = value
	}
	r.unresolved = append(r.unresolved, fmt.Sprintf("%s %q", entity, ref))
}

// begin starts a new row.
func (r *Resolver) begin() {
	r.pending = ResolutionCounts{}
	r.unresolved = r.unresolved[:0]
}

// settle adds the current row's counts to the totals.
func (r *Resolver) settle() {
	r.total.Explicit += r.pending.Explicit
	r.total.Heuristic += r.pending.Heuristic
	r.total.None += r.pending.None
	r.pending = ResolutionCounts{}
}
