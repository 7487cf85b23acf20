package core

import (
	"sync"
	"testing"
)

func TestReporter_Snapshot(t *testing.T) {
	tests := []struct {
		name   string
		record func(r *Reporter)
		want   Status
	}{
		{
			name: "all imported",
			record: func(r *Reporter) {
				r.Imported(EntityTrade)
				r.Skipped(EntityTrade)
			},
			want: StatusSucceeded,
		},
		{
			name: "some failed",
			record: func(r *Reporter) {
				r.Imported(EntityTrade)
				r.Failed(FailedRow{Entity: EntityTrade, Line: 3, Reason: "bad"})
			},
			want: StatusPartial,
		},
		{
			name: "timed out wins",
			record: func(r *Reporter) {
				r.Failed(FailedRow{Entity: EntityTrade, Line: 3})
				r.TimedOut()
			},
			want: StatusTimedOut,
		},
		{
			name:   "empty run",
			record: func(r *Reporter) {},
			want:   StatusSucceeded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReporter(10)
			tt.record(r)
			res := r.Snapshot()
			if res.Status != tt.want {
				t.Errorf("Status = %s, want %s", res.Status, tt.want)
			}
			if res.Success != (tt.want == StatusSucceeded) {
				t.Errorf("Success = %v for status %s", res.Success, res.Status)
			}
			if res.TimedOut != (tt.want == StatusTimedOut) {
				t.Errorf("TimedOut = %v", res.TimedOut)
			}
		})
	}
}

func TestReporter_TotalsAndTrack(t *testing.T) {
	r := NewReporter(10)
	r.Track(EntityDailyNote)
	for range 9 {
		r.Imported(EntityTrade)
	}
	r.Failed(FailedRow{Entity: EntityTrade, Line: 11, Reason: "invalid number"})
	r.Skipped(EntityAccount)

	res := r.Snapshot()
	if c := res.Entities[EntityTrade]; c != (Counts{Imported: 9, Failed: 1}) {
		t.Errorf("trades = %+v", c)
	}
	if _, ok := res.Entities[EntityDailyNote]; !ok {
		t.Error("tracked entity missing from result")
	}
	if res.Totals != (Counts{Imported: 9, Skipped: 1, Failed: 1}) {
		t.Errorf("Totals = %+v", res.Totals)
	}
	if res.Totals.Total() != 11 {
		t.Errorf("Total() = %d", res.Totals.Total())
	}
	if len(res.FailedRows) != 1 || res.FailedRows[0].Line != 11 {
		t.Errorf("FailedRows = %+v", res.FailedRows)
	}
}

func TestReporter_FailedRowsCapped(t *testing.T) {
	r := NewReporter(2)
	for i := range 5 {
		r.Failed(FailedRow{Entity: EntityTrade, Line: i + 2})
	}

	res := r.Snapshot()
	if len(res.FailedRows) != 2 {
		t.Errorf("kept %d failed rows, want 2", len(res.FailedRows))
	}
	if res.Entities[EntityTrade].Failed != 5 {
		t.Errorf("Failed = %d, counters must stay exact", res.Entities[EntityTrade].Failed)
	}
	if r.DroppedFailures() != 3 {
		t.Errorf("DroppedFailures() = %d, want 3", r.DroppedFailures())
	}
}

func TestReporter_Reclassify(t *testing.T) {
	r := NewReporter(10)
	r.Imported(EntityPayout)
	r.Imported(EntityPayout)
	r.Skipped(EntityPayout)

	r.Reclassify(EntityPayout, []FailedRow{
		{Entity: EntityPayout, Line: 2, Code: "DB000"},
		{Entity: EntityPayout, Line: 3, Code: "DB000"},
	})

	c := r.Counts(EntityPayout)
	if c != (Counts{Imported: 0, Skipped: 1, Failed: 2}) {
		t.Errorf("Counts = %+v", c)
	}
	if got := r.Snapshot().Status; got != StatusPartial {
		t.Errorf("Status = %s, want partial", got)
	}
}

func TestReporter_Merged(t *testing.T) {
	r := NewReporter(10)
	r.Imported(EntityDailyNote)
	r.Merged(EntityDailyNote)
	r.Merged(EntityDailyNote)

	res := r.Snapshot()
	if res.Totals != (Counts{Imported: 1, Merged: 2}) {
		t.Errorf("Totals = %+v", res.Totals)
	}
	if res.Status != StatusSucceeded {
		t.Errorf("Status = %s, merges are not failures", res.Status)
	}

	r.ReclassifyMerged(EntityDailyNote, []FailedRow{{Entity: EntityDailyNote, Line: 3, Code: "DB004"}})
	if c := r.Counts(EntityDailyNote); c != (Counts{Imported: 1, Merged: 1, Failed: 1}) {
		t.Errorf("Counts = %+v", c)
	}
}

func TestReporter_AssetsDoNotAffectStatus(t *testing.T) {
	r := NewReporter(10)
	r.Imported(EntityTrade)
	r.AddAssets(AssetCounts{Migrated: 1, Fallback: 2})
	r.AddAssets(AssetCounts{Missing: 1})

	res := r.Snapshot()
	if res.Assets != (AssetCounts{Migrated: 1, Fallback: 2, Missing: 1}) {
		t.Errorf("Assets = %+v", res.Assets)
	}
	if res.Status != StatusSucceeded {
		t.Errorf("Status = %s, attachment fallbacks must not fail a run", res.Status)
	}
}

func TestReporter_Concurrent(t *testing.T) {
	r := NewReporter(0)
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				r.Imported(EntityTrade)
				r.Snapshot()
			}
		}()
	}
	wg.Wait()

	if got := r.Counts(EntityTrade).Imported; got != 800 {
		t.Errorf("Imported = %d, want 800", got)
	}
}
