package core

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// TextSource reads archive entries. *archive.Reader satisfies it.
type TextSource interface {
	HasEntry(p string) bool
	ReadText(p string) (string, error)
}

// decoded is one table read ahead of the importer.
type decoded struct {
	table   *Table
	present bool
	err     error
}

type prefetchSlot struct {
	done     chan struct{}
	acquired bool
	decoded
}

// prefetcher inflates and header-parses up to `ahead` tables while the
// importer is still committing an earlier one. Tables are handed out in
// definition order; commit order never changes.
type prefetcher struct {
	sem   *semaphore.Weighted
	slots []*prefetchSlot
	next  int
}

func newPrefetcher(ctx context.Context, src TextSource, defs []TableDefinition, ahead int) *prefetcher {
	if ahead < 1 {
		ahead = 1
	}
	p := &prefetcher{
		sem:   semaphore.NewWeighted(int64(ahead)),
		slots: make([]*prefetchSlot, len(defs)),
	}
	for i := range p.slots {
		p.slots[i] = &prefetchSlot{done: make(chan struct{})}
	}

	go func() {
		for i, def := range defs {
			slot := p.slots[i]
			if err := p.sem.Acquire(ctx, 1); err != nil {
				// Run aborted; unblock any Take still waiting.
				for _, s := range p.slots[i:] {
					s.err = err
					close(s.done)
				}
				return
			}
			slot.acquired = true
			slot.decoded = readTable(src, def)
			close(slot.done)
		}
	}()
	return p
}

func readTable(src TextSource, def TableDefinition) decoded {
	name := def.FileName()
	if !src.HasEntry(name) {
		return decoded{}
	}
	text, err := src.ReadText(name)
	if err != nil {
		return decoded{present: true, err: fmt.Errorf("unreadable table %s: %w", name, err)}
	}
	t, err := DecodeTable(name, text)
	if err != nil {
		return decoded{present: true, err: fmt.Errorf("unreadable table %s: %w", name, err)}
	}
	return decoded{table: t, present: true}
}

// take returns the next table in order, waiting for it to be decoded, and
// frees its read-ahead slot.
func (p *prefetcher) take() decoded {
	slot := p.slots[p.next]
	p.next++

	// The producer closes every remaining slot when ctx ends, so this
	// never blocks past the run.
	<-slot.done
	if slot.acquired {
		p.sem.Release(1)
	}
	return slot.decoded
}
