package vibe

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mizchi/vibe-lang-sub001/pkg/lang"
)

func TestCacheComputesOnce(t *testing.T) {
	cache := newQueryCache("test")
	hash := lang.Hash{1}

	var calls int64
	release := make(chan struct{})
	compute := func(ctx context.Context) (interface{}, error) {
		atomic.AddInt64(&calls, 1)
		<-release
		return "result", nil
	}

	const workers = 8
	var wg sync.WaitGroup
	results := make([]interface{}, workers)
	errs := make([]error, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			results[w], errs[w] = cache.compute(context.Background(), hash, compute)
		}(w)
	}

	// Let everyone pile up on the cell, then finish the computation.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := atomic.LoadInt64(&calls); n != 1 {
		t.Fatalf("computed %d times; want 1", n)
	}
	for w := 0; w < workers; w++ {
		if errs[w] != nil {
			t.Fatalf("worker %d: %v", w, errs[w])
		}
		if results[w] != "result" {
			t.Fatalf("worker %d got %v", w, results[w])
		}
	}
	if cache.len() != 1 {
		t.Fatalf("cache holds %d cells; want 1", cache.len())
	}
}

func TestCacheDetectsCycles(t *testing.T) {
	cache := newQueryCache("test")
	a := lang.Hash{1}
	b := lang.Hash{2}

	// a needs b needs a.
	var computeA, computeB func(ctx context.Context) (interface{}, error)
	computeA = func(ctx context.Context) (interface{}, error) {
		return cache.compute(ctx, b, computeB)
	}
	computeB = func(ctx context.Context) (interface{}, error) {
		return cache.compute(ctx, a, computeA)
	}

	_, err := cache.compute(context.Background(), a, computeA)
	cycle, ok := err.(*DependencyCycle)
	if !ok {
		t.Fatalf("expected DependencyCycle; got %v", err)
	}
	if cycle.Hash != a {
		t.Fatalf("cycle reported at %s; want the re-entered hash", cycle.Hash.Short())
	}
}

func TestCacheCompletedCellIsNotACycle(t *testing.T) {
	cache := newQueryCache("test")
	leaf := lang.Hash{1}
	root := lang.Hash{2}

	computeLeaf := func(ctx context.Context) (interface{}, error) {
		return "leaf", nil
	}
	if _, err := cache.compute(context.Background(), leaf, computeLeaf); err != nil {
		t.Fatal(err)
	}

	// root asks for leaf twice along the same chain; the second ask
	// must hit the finished cell, not trip the cycle check.
	computeRoot := func(ctx context.Context) (interface{}, error) {
		if _, err := cache.compute(ctx, leaf, computeLeaf); err != nil {
			return nil, err
		}
		return cache.compute(ctx, leaf, computeLeaf)
	}
	result, err := cache.compute(context.Background(), root, computeRoot)
	if err != nil {
		t.Fatal(err)
	}
	if result != "leaf" {
		t.Fatalf("got %v", result)
	}
}

func TestCacheErrorsAreNotCached(t *testing.T) {
	cache := newQueryCache("test")
	hash := lang.Hash{1}

	var calls int
	compute := func(ctx context.Context) (interface{}, error) {
		calls++
		if calls == 1 {
			return nil, fmt.Errorf("transient failure")
		}
		return "ok", nil
	}

	if _, err := cache.compute(context.Background(), hash, compute); err == nil {
		t.Fatalf("expected the failure to surface")
	}
	if cache.len() != 0 {
		t.Fatalf("a failed computation shouldn't leave a cell behind")
	}

	result, err := cache.compute(context.Background(), hash, compute)
	if err != nil {
		t.Fatal(err)
	}
	if result != "ok" || calls != 2 {
		t.Fatalf("retry didn't recompute: result=%v calls=%d", result, calls)
	}
}

func TestCacheWaiterHonorsCancellation(t *testing.T) {
	cache := newQueryCache("test")
	hash := lang.Hash{1}

	started := make(chan struct{})
	release := make(chan struct{})
	go cache.compute(context.Background(), hash, func(ctx context.Context) (interface{}, error) {
		close(started)
		<-release
		return "slow", nil
	})
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := cache.compute(ctx, hash, func(ctx context.Context) (interface{}, error) {
		t.Error("a waiter shouldn't recompute")
		return nil, nil
	})
	if err != context.Canceled {
		t.Fatalf("expected context.Canceled; got %v", err)
	}
	close(release)
}
