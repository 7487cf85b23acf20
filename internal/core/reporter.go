package core

import (
	"maps"
	"slices"
	"sync"
)

// Reporter accumulates the outcome counters of one import run. Counters are
// updated as rows are processed, so Snapshot always matches the work done so
// far, even when the run is cut short.
type Reporter struct {
	mu        sync.Mutex
	entities  map[EntityType]Counts
	failed    []FailedRow
	maxFailed int
	dropped   int
	assets    AssetCounts
	timedOut  bool
}

// NewReporter returns a reporter keeping at most maxFailed failed rows
// (0 keeps none; counters are always exact).
func NewReporter(maxFailed int) *Reporter {
	return &Reporter{
		entities:  make(map[EntityType]Counts),
		maxFailed: maxFailed,
	}
}

// Track makes entity appear in the result even if it has no rows.
func (r *Reporter) Track(entity EntityType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entities[entity]; !ok {
		r.entities[entity] = Counts{}
	}
}

// Imported counts a stored row.
func (r *Reporter) Imported(entity EntityType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.entities[entity]
	c.Imported++
	r.entities[entity] = c
}

// Skipped counts a duplicate row.
func (r *Reporter) Skipped(entity EntityType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.entities[entity]
	c.Skipped++
	r.entities[entity] = c
}

// Merged counts a duplicate row that changed the stored row.
func (r *Reporter) Merged(entity EntityType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.entities[entity]
	c.Merged++
	r.entities[entity] = c
}

// Failed counts a row that could not be stored and keeps its details.
func (r *Reporter) Failed(row FailedRow) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.entities[row.Entity]
	c.Failed++
	r.entities[row.Entity] = c
	r.keep(row)
}

// Reclassify moves rows counted as imported to failed. It is used when the
// transaction holding them could not be committed.
func (r *Reporter) Reclassify(entity EntityType, rows []FailedRow) {
	r.reclassify(entity, rows, func(c *Counts) *int { return &c.Imported })
}

// ReclassifyMerged moves rows counted as merged to failed.
func (r *Reporter) ReclassifyMerged(entity EntityType, rows []FailedRow) {
	r.reclassify(entity, rows, func(c *Counts) *int { return &c.Merged })
}

func (r *Reporter) reclassify(entity EntityType, rows []FailedRow, counter func(*Counts) *int) {
	if len(rows) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.entities[entity]
	from := counter(&c)
	n := min(len(rows), *from)
	*from -= n
	c.Failed += n
	r.entities[entity] = c
	for _, row := range rows[:n] {
		r.keep(row)
	}
}

func (r *Reporter) keep(row FailedRow) {
	if len(r.failed) < r.maxFailed {
		r.failed = append(r.failed, row)
		return
	}
	r.dropped++
}

// AddAssets adds attachment outcomes.
func (r *Reporter) AddAssets(a AssetCounts) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assets.Migrated += a.Migrated
	r.assets.Fallback += a.Fallback
	r.assets.Missing += a.Missing
}

// TimedOut marks the run as stopped by its time budget.
func (r *Reporter) TimedOut() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timedOut = true
}

// Counts returns the counters of one entity.
func (r *Reporter) Counts(entity EntityType) Counts {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entities[entity]
}

// DroppedFailures returns how many failed rows exceeded the kept list.
func (r *Reporter) DroppedFailures() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Snapshot returns a copy of the counters as an ImportResult. The caller
// fills in the run metadata.
func (r *Reporter) Snapshot() ImportResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := ImportResult{
		Entities:   maps.Clone(r.entities),
		FailedRows: slices.Clone(r.failed),
		Assets:     r.assets,
		TimedOut:   r.timedOut,
	}
	for _, c := range r.entities {
		res.Totals.Imported += c.Imported
		res.Totals.Skipped += c.Skipped
		res.Totals.Merged += c.Merged
		res.Totals.Failed += c.Failed
	}

	switch {
	case r.timedOut:
		res.Status = StatusTimedOut
	case res.Totals.Failed > 0:
		res.Status = StatusPartial
	default:
		res.Status = StatusSucceeded
	}
	res.Success = res.Status == StatusSucceeded
	return res
}
