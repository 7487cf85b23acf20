package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/tradejournal/internal/logging"
)

// mapSource is an in-memory Source keyed by full entry path.
type mapSource map[string][]byte

func (s mapSource) Find(dir, stem string, exts []string) (string, bool) {
	for _, ext := range exts {
		p := dir + "/" + stem + "." + ext
		if _, ok := s[p]; ok {
			return p, true
		}
	}
	return "", false
}

func (s mapSource) ReadBinary(p string) ([]byte, error) {
	b, ok := s[p]
	if !ok {
		return nil, fmt.Errorf("no entry %s", p)
	}
	return b, nil
}

// flakyStore fails the first n Puts, then delegates.
type flakyStore struct {
	*MemStore
	failures atomic.Int32
}

func (f *flakyStore) Put(ctx context.Context, key string, data []byte, ct string) (string, error) {
	if f.failures.Add(-1) >= 0 {
		return "", errors.New("transient")
	}
	return f.MemStore.Put(ctx, key, data, ct)
}

// blockingStore never completes a Put until ctx ends.
type blockingStore struct{ *MemStore }

func (blockingStore) Put(ctx context.Context, _ string, _ []byte, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

// failingStore rejects every Put.
type failingStore struct{ *MemStore }

func (failingStore) Put(context.Context, string, []byte, string) (string, error) {
	return "", errors.New("bucket unavailable")
}

func fastOpts() Options {
	return Options{Workers: 2, Timeout: time.Second, RetryMaxElapsed: 5 * time.Second}
}

func TestFSStore_PutGet(t *testing.T) {
	s, err := NewFSStore(t.TempDir(), "/blobs/")
	require.NoError(t, err)
	ctx := context.Background()

	url, err := s.Put(ctx, "owner/trades/t1_before.png", []byte("img"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "/blobs/owner/trades/t1_before.png", url)

	got, err := s.Get(ctx, url)
	require.NoError(t, err)
	assert.Equal(t, []byte("img"), got)

	_, err = s.Get(ctx, "/blobs/owner/none.png")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFSStore_RejectsEscapingKeys(t *testing.T) {
	s, err := NewFSStore(t.TempDir(), "/blobs")
	require.NoError(t, err)

	for _, key := range []string{"../x.png", "a/../../x.png", "", "/abs.png"} {
		_, err := s.Put(context.Background(), key, []byte("x"), "")
		assert.Error(t, err, "key %q", key)
	}
}

func TestMigrate_UploadsFirstMatchingExtension(t *testing.T) {
	src := mapSource{
		"images/trades/old1_before.jpg":  []byte("jpg"),
		"images/trades/old1_before.webp": []byte("webp"),
	}
	store := NewMemStore()
	m := NewMigrator(store, fastOpts())

	att := Attachment{OwnerID: "o1", Kind: "trades", OldID: "old1", NewID: "new1", Slot: "before"}
	url, ok := m.Migrate(context.Background(), src, att)
	require.True(t, ok)
	assert.Equal(t, "mem://o1/trades/new1_before.jpg", url)
	assert.Equal(t, "image/jpeg", store.ContentType("o1/trades/new1_before.jpg"))
}

func TestMigrate_MissingFile(t *testing.T) {
	m := NewMigrator(NewMemStore(), fastOpts())
	_, ok := m.Migrate(context.Background(), mapSource{}, Attachment{OwnerID: "o", Kind: "trades", OldID: "x", NewID: "y", Slot: "after"})
	assert.False(t, ok)
}

func TestMigrate_RetriesTransientFailures(t *testing.T) {
	store := &flakyStore{MemStore: NewMemStore()}
	store.failures.Store(2)
	m := NewMigrator(store, fastOpts())
	src := mapSource{"images/backtests/b1_chart.png": []byte("png")}

	url, ok := m.Migrate(context.Background(), src, Attachment{OwnerID: "o", Kind: "backtests", OldID: "b1", NewID: "n1", Slot: "chart"})
	require.True(t, ok)
	assert.Equal(t, "mem://o/backtests/n1_chart.png", url)
}

func TestBatch_CountsOutcomes(t *testing.T) {
	src := mapSource{}
	for i := range 10 {
		src[fmt.Sprintf("images/trades/t%d_before.png", i)] = []byte("x")
	}
	store := NewMemStore()
	b := NewMigrator(store, fastOpts()).Start(context.Background(), src)

	for i := range 10 {
		b.Submit(Attachment{OwnerID: "o", Kind: "trades", OldID: fmt.Sprintf("t%d", i), NewID: fmt.Sprintf("n%d", i), Slot: "before"})
	}
	b.Submit(Attachment{OwnerID: "o", Kind: "trades", OldID: "gone", NewID: "n", Slot: "after"})

	results, stats := b.Wait(context.Background())
	assert.Len(t, results, 11)
	assert.Equal(t, Stats{Migrated: 10, Missing: 1}, stats)
	assert.Equal(t, 10, store.Len())

	for _, r := range results {
		if r.Outcome == Migrated {
			assert.True(t, strings.HasPrefix(r.URL, "mem://o/trades/n"))
		}
	}
}

func TestBatch_WaitDeadlineFallsBack(t *testing.T) {
	src := mapSource{
		"images/trades/a_before.png": []byte("x"),
		"images/trades/b_before.png": []byte("x"),
		"images/trades/c_before.png": []byte("x"),
	}
	m := NewMigrator(blockingStore{NewMemStore()}, Options{Workers: 1, Timeout: time.Minute, RetryMaxElapsed: time.Minute})
	b := m.Start(context.Background(), src)
	for _, id := range []string{"a", "b", "c"} {
		b.Submit(Attachment{OwnerID: "o", Kind: "trades", OldID: id, NewID: id, Slot: "before"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	results, stats := b.Wait(ctx)

	assert.Len(t, results, 3)
	assert.Equal(t, Stats{Fallback: 3}, stats)
	for _, r := range results {
		assert.Error(t, r.Err)
		assert.Empty(t, r.URL)
	}
}

func TestBatch_ConcurrentSubmit(t *testing.T) {
	src := mapSource{}
	for i := range 50 {
		src[fmt.Sprintf("images/trades/t%d_after.gif", i)] = []byte("g")
	}
	b := NewMigrator(NewMemStore(), Options{Workers: 3}).Start(context.Background(), src)

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Submit(Attachment{OwnerID: "o", Kind: "trades", OldID: fmt.Sprintf("t%d", i), NewID: fmt.Sprintf("n%d", i), Slot: "after"})
		}()
	}
	wg.Wait()

	_, stats := b.Wait(context.Background())
	assert.Equal(t, 50, stats.Migrated)
}

func TestBatch_LogsWithRunContext(t *testing.T) {
	saved := slog.Default()
	t.Cleanup(func() { slog.SetDefault(saved) })
	var buf bytes.Buffer
	logging.Setup("debug", "json", &buf)

	src := mapSource{"images/trades/t1_before.png": []byte("x")}
	m := NewMigrator(failingStore{NewMemStore()}, Options{Workers: 1, Timeout: 100 * time.Millisecond, RetryMaxElapsed: 50 * time.Millisecond})

	ctx := logging.WithRunID(context.Background(), "01HRUN")
	b := m.Start(ctx, src)
	b.Submit(Attachment{OwnerID: "o", Kind: "trades", OldID: "t1", NewID: "n1", Slot: "before"})

	_, stats := b.Wait(context.Background())
	require.Equal(t, Stats{Fallback: 1}, stats)

	out := buf.String()
	assert.Contains(t, out, `"msg":"attachment upload failed"`)
	assert.Contains(t, out, `"run_id":"01HRUN"`)
}
