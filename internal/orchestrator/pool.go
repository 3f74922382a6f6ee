// Package orchestrator schedules the recurring pipeline jobs and drives
// on-demand research tasks through their stages.
package orchestrator

import (
	"context"
	"log"
	"sync"
)

// Pool runs submitted work with bounded concurrency and a per-key in-flight
// lease. A second submission for a key already running is dropped; the next
// pending scan will pick the work up again, so duplicates are harmless.
type Pool struct {
	sem      chan struct{}
	mu       sync.Mutex
	inflight map[string]bool
	wg       sync.WaitGroup
	logger   *log.Logger
}

func NewPool(size int) *Pool {
	if size <= 0 {
		size = 4
	}
	return &Pool{
		sem:      make(chan struct{}, size),
		inflight: make(map[string]bool),
		logger:   log.New(log.Writer(), "[ORCH] ", log.LstdFlags),
	}
}

// Submit runs fn on the pool under key. Returns false when the key is
// already in flight and the work was dropped.
func (p *Pool) Submit(ctx context.Context, key string, fn func(ctx context.Context)) bool {
	p.mu.Lock()
	if p.inflight[key] {
		p.mu.Unlock()
		return false
	}
	p.inflight[key] = true
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			p.mu.Lock()
			delete(p.inflight, key)
			p.mu.Unlock()
		}()
		select {
		case p.sem <- struct{}{}:
		case <-ctx.Done():
			return
		}
		defer func() { <-p.sem }()
		fn(ctx)
	}()
	return true
}

// Acquire takes the lease for key without scheduling work. Callers running
// inline (the per-pair pipeline loops) pair it with Release.
func (p *Pool) Acquire(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inflight[key] {
		return false
	}
	p.inflight[key] = true
	return true
}

// Release drops a lease taken with Acquire.
func (p *Pool) Release(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inflight, key)
}

// InFlight reports whether key currently holds a lease.
func (p *Pool) InFlight(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inflight[key]
}

// Wait blocks until all submitted work has finished.
func (p *Pool) Wait() {
	p.wg.Wait()
}
