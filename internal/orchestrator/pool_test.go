package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolDropsDuplicateKey(t *testing.T) {
	pool := NewPool(2)
	release := make(chan struct{})
	var runs int32

	ok := pool.Submit(context.Background(), "pair:a1:TCS", func(context.Context) {
		atomic.AddInt32(&runs, 1)
		<-release
	})
	if !ok {
		t.Fatal("first submit dropped")
	}
	// Wait until the lease is visibly held.
	deadline := time.Now().Add(time.Second)
	for !pool.InFlight("pair:a1:TCS") && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	if pool.Submit(context.Background(), "pair:a1:TCS", func(context.Context) {
		atomic.AddInt32(&runs, 1)
	}) {
		t.Fatal("second arrival for an in-flight key must be dropped")
	}
	close(release)
	pool.Wait()
	if got := atomic.LoadInt32(&runs); got != 1 {
		t.Fatalf("runs = %d, want 1", got)
	}
}

func TestPoolKeyReusableAfterCompletion(t *testing.T) {
	pool := NewPool(1)
	var runs int32
	for i := 0; i < 3; i++ {
		if !pool.Submit(context.Background(), "alpha:INFY", func(context.Context) {
			atomic.AddInt32(&runs, 1)
		}) {
			t.Fatalf("submit %d dropped", i)
		}
		pool.Wait()
	}
	if got := atomic.LoadInt32(&runs); got != 3 {
		t.Fatalf("runs = %d, want 3", got)
	}
}

func TestPoolBoundsConcurrency(t *testing.T) {
	pool := NewPool(2)
	var mu sync.Mutex
	active, peak := 0, 0
	for i := 0; i < 8; i++ {
		pool.Submit(context.Background(), string(rune('a'+i)), func(context.Context) {
			mu.Lock()
			active++
			if active > peak {
				peak = active
			}
			mu.Unlock()
			time.Sleep(10 * time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
		})
	}
	pool.Wait()
	if peak > 2 {
		t.Fatalf("peak concurrency = %d, want <= 2", peak)
	}
}

func TestPoolAcquireRelease(t *testing.T) {
	pool := NewPool(1)
	if !pool.Acquire("source:markets") {
		t.Fatal("first acquire failed")
	}
	if pool.Acquire("source:markets") {
		t.Fatal("second acquire must fail while held")
	}
	pool.Release("source:markets")
	if !pool.Acquire("source:markets") {
		t.Fatal("acquire after release failed")
	}
}
