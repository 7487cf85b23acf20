package blob

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/tradejournal/internal/logging"
)

// Extensions are tried in order when looking up an attachment.
var Extensions = []string{"png", "jpg", "jpeg", "webp", "gif"}

// Source is where attachments are read from. *archive.Reader satisfies it.
type Source interface {
	Find(dir, stem string, exts []string) (string, bool)
	ReadBinary(p string) ([]byte, error)
}

// Attachment identifies one file to migrate.
type Attachment struct {
	OwnerID string
	Kind    string // "trades", "backtests"
	OldID   string
	NewID   string
	Slot    string // "before", "after", "chart"
}

// SourceDir is the archive directory holding attachments of a kind.
func (a Attachment) SourceDir() string { return "images/" + a.Kind }

// Stem is the file name without extension in the archive.
func (a Attachment) Stem() string { return a.OldID + "_" + a.Slot }

// Key is the destination key for a file with extension ext.
func (a Attachment) Key(ext string) string {
	return a.OwnerID + "/" + a.Kind + "/" + a.NewID + "_" + a.Slot + "." + ext
}

// Outcome is what happened to one attachment.
type Outcome string

const (
	Migrated Outcome = "migrated"
	Fallback Outcome = "fallback" // upload failed, original reference kept
	Missing  Outcome = "missing"  // not present in the archive
)

// Result of one attachment job.
type Result struct {
	Attachment Attachment
	URL        string
	Outcome    Outcome
	Err        error
}

// Stats counts outcomes.
type Stats struct {
	Migrated int
	Fallback int
	Missing  int
}

func (s *Stats) add(o Outcome) {
	switch o {
	case Migrated:
		s.Migrated++
	case Fallback:
		s.Fallback++
	case Missing:
		s.Missing++
	}
}

// Options tune a Migrator.
type Options struct {
	Workers         int           // concurrent uploads per batch (default 4)
	Timeout         time.Duration // per attempt (default 10s)
	RetryMaxElapsed time.Duration // total retry budget per upload (default 30s)
}

// Migrator copies attachments from a Source to a Store.
type Migrator struct {
	store Store
	opts  Options
}

func NewMigrator(store Store, opts Options) *Migrator {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RetryMaxElapsed <= 0 {
		opts.RetryMaxElapsed = 30 * time.Second
	}
	return &Migrator{store: store, opts: opts}
}

// Store returns the destination store.
func (m *Migrator) Store() Store { return m.store }

// Migrate copies one attachment synchronously. It reports ok=false when the
// file is absent or could not be stored; the caller keeps its original
// reference in that case.
func (m *Migrator) Migrate(ctx context.Context, src Source, att Attachment) (string, bool) {
	p, found := src.Find(att.SourceDir(), att.Stem(), Extensions)
	if !found {
		return "", false
	}
	res := m.upload(ctx, src, att, p)
	return res.URL, res.Outcome == Migrated
}

func (m *Migrator) upload(ctx context.Context, src Source, att Attachment, p string) Result {
	res := Result{Attachment: att, Outcome: Fallback}

	data, err := src.ReadBinary(p)
	if err != nil {
		res.Err = fmt.Errorf("read %s: %w", p, err)
		return res
	}

	ext := strings.TrimPrefix(strings.ToLower(path.Ext(p)), ".")
	key := att.Key(ext)
	contentType := mime.TypeByExtension("." + ext)
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = m.opts.RetryMaxElapsed

	var url string
	err = backoff.Retry(func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		attemptCtx, cancel := context.WithTimeout(ctx, m.opts.Timeout)
		defer cancel()

		u, err := m.store.Put(attemptCtx, key, data, contentType)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		url = u
		return nil
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		res.Err = fmt.Errorf("upload %s: %w", key, err)
		return res
	}

	res.URL = url
	res.Outcome = Migrated
	return res
}

// Batch is a set of attachment jobs sharing a worker pool. Submit queues
// jobs as rows are committed; Wait collects the results.
type Batch struct {
	m   *Migrator
	src Source

	ctx    context.Context
	cancel context.CancelFunc
	g      *errgroup.Group
	log    *slog.Logger

	mu      sync.Mutex
	pending []job
	results []Result
	stats   Stats
}

type job struct {
	att  Attachment
	path string
}

// Start begins a batch reading from src. Uploads stop when ctx is canceled.
func (m *Migrator) Start(ctx context.Context, src Source) *Batch {
	bctx, cancel := context.WithCancel(ctx)
	g := new(errgroup.Group)
	g.SetLimit(m.opts.Workers)
	return &Batch{m: m, src: src, ctx: bctx, cancel: cancel, g: g, log: logging.FromContext(ctx)}
}

// Submit queues one attachment. A file missing from the source is recorded
// immediately and never uploaded.
func (b *Batch) Submit(att Attachment) {
	p, found := b.src.Find(att.SourceDir(), att.Stem(), Extensions)

	b.mu.Lock()
	if !found {
		b.record(Result{Attachment: att, Outcome: Missing})
		b.mu.Unlock()
		return
	}
	b.pending = append(b.pending, job{att: att, path: p})
	b.mu.Unlock()

	// A full pool is fine: running workers pick the job up before exiting.
	b.g.TryGo(b.work)
}

func (b *Batch) work() error {
	for {
		j, ok := b.next()
		if !ok {
			return nil
		}
		res := b.m.upload(b.ctx, b.src, j.att, j.path)
		if res.Err != nil {
			b.log.Debug("attachment upload failed",
				"kind", j.att.Kind, "id", j.att.NewID, "slot", j.att.Slot, "error", res.Err)
		}
		b.mu.Lock()
		b.record(res)
		b.mu.Unlock()
	}
}

func (b *Batch) next() (job, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.pending) == 0 {
		return job{}, false
	}
	j := b.pending[0]
	b.pending = b.pending[1:]
	return j, true
}

// record must be called with mu held.
func (b *Batch) record(res Result) {
	b.results = append(b.results, res)
	b.stats.add(res.Outcome)
}

// Wait blocks until every submitted job has finished or ctx is done. Jobs
// that never ran are reported as Fallback. The batch cannot be reused.
func (b *Batch) Wait(ctx context.Context) ([]Result, Stats) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_ = b.g.Wait()
			b.mu.Lock()
			left := len(b.pending)
			b.mu.Unlock()
			if left == 0 || b.ctx.Err() != nil {
				return
			}
			// Jobs queued while the last worker was exiting.
			b.g.Go(b.work)
		}
	}()

	select {
	case <-done:
	case <-ctx.Done():
		b.cancel()
		<-done
	}
	b.cancel()

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, j := range b.pending {
		b.record(Result{Attachment: j.att, Outcome: Fallback, Err: errors.Join(errors.New("upload not started"), ctx.Err())})
	}
	b.pending = nil
	return b.results, b.stats
}
