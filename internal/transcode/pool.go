// Package transcode implements C4 from spec.md §4.4: a bounded-concurrency
// pool for CPU-bound image/video work (decode, resize, frame extraction),
// kept isolated from the async I/O paths so a slow transcode can't starve
// HTTP request handling. Grounded on perkeep-perkeep's golang.org/x/sync
// dependency and the bounded-worker shape used throughout the pack
// (link270-shrinkray's browse.go semaphore-channel pattern), expressed here
// with golang.org/x/sync/semaphore's weighted semaphore as the shared
// limiter instead of a raw channel.
package transcode

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Pool caps the number of CPU-bound jobs running at once across every
// caller sharing it.
type Pool struct {
	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

// New creates a pool sized by n (spec.md §6 TRANSCODING_THREADS). n <= 0
// is clamped to 1 so the pool never deadlocks.
func New(n int) *Pool {
	if n <= 0 {
		n = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(n))}
}

// Scope runs fn synchronously, blocking until a slot is free and then
// until fn returns. Use this at call sites that need the result before
// continuing (on-demand thumbnail generation in the file service).
func (p *Pool) Scope(ctx context.Context, fn func() error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	return fn()
}

// Spawn runs fn on a background goroutine once a slot is free, without
// waiting for it to complete. Wait blocks until every spawned job (and
// any job still waiting for a slot) has finished. Used for fire-and-forget
// work like warming a cache entry after serving a request.
func (p *Pool) Spawn(ctx context.Context, fn func()) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return
		}
		defer p.sem.Release(1)
		fn()
	}()
}

// Wait blocks until all jobs started via Spawn have completed.
func (p *Pool) Wait() {
	p.wg.Wait()
}
