package store

import (
	"context"
	"sync"
	"time"

	"github.com/ItsCrafted/blooket-hacks/internal/trace"
)

// saveTimeout bounds one background write.
const saveTimeout = 10 * time.Second

// flusher writes a set's latest snapshot behind its mutations. Pending requests
// coalesce: at most one write is queued at a time and it reads the snapshot when it
// runs, so the last write always carries the newest contents.
type flusher struct {
	name      string
	persister Persister
	snapshot  func() []string
	delay     time.Duration

	mu      sync.Mutex // guards pending, timer, closed
	pending bool
	timer   *time.Timer
	closed  bool

	writeMu sync.Mutex // serializes writes
	wg      sync.WaitGroup
}

func newFlusher(name string, p Persister, snapshot func() []string, delay time.Duration) *flusher {
	return &flusher{
		name:      name,
		persister: p,
		snapshot:  snapshot,
		delay:     delay,
	}
}

// schedule requests a write of the current contents.
func (f *flusher) schedule() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed || f.pending {
		return
	}
	f.pending = true
	f.wg.Add(1)

	if f.delay > 0 {
		f.timer = time.AfterFunc(f.delay, f.background)
		return
	}
	go f.background()
}

func (f *flusher) background() {
	defer f.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	ctx, span := trace.StartSpan(ctx, "store_flush")
	defer span.End()
	span.SetAttr("store", f.name)

	if err := f.write(ctx); err != nil {
		span.RecordError(err)
		trace.Logger(ctx).Warn("store persist failed", "store", f.name, "error", err)
	}
}

// write takes the snapshot only after acquiring writeMu; clearing pending first lets
// mutations that land during the write queue a follow-up.
func (f *flusher) write(ctx context.Context) error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	f.mu.Lock()
	f.pending = false
	f.timer = nil
	f.mu.Unlock()

	entries := f.snapshot()
	return f.persister.Save(ctx, entries)
}

func (f *flusher) flush(ctx context.Context) error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	return f.persister.Save(ctx, f.snapshot())
}

// close cancels a delayed write, waits for in-flight ones and flushes once more.
func (f *flusher) close(ctx context.Context) error {
	f.mu.Lock()
	f.closed = true
	if f.timer != nil && f.timer.Stop() {
		f.timer = nil
		f.pending = false
		f.wg.Done()
	}
	f.mu.Unlock()

	f.wg.Wait()
	return f.flush(ctx)
}
