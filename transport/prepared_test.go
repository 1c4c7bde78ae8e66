package transport

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestPreparedCache_GetOrPrepareCachesResult(t *testing.T) {
	t.Parallel()
	c := NewPreparedCache(10)
	var calls int32

	prepare := func() (Statement, error) {
		atomic.AddInt32(&calls, 1)
		return Statement{Content: "SELECT 1"}, nil
	}

	for i := 0; i < 3; i++ {
		stmt, err := c.GetOrPrepare("ks", "SELECT 1", prepare)
		if err != nil {
			t.Fatalf("GetOrPrepare() error = %v", err)
		}
		if stmt.Content != "SELECT 1" {
			t.Fatalf("GetOrPrepare() = %+v, want Content SELECT 1", stmt)
		}
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("prepare() called %d times, want exactly 1", got)
	}
}

func TestPreparedCache_ConcurrentCallersShareOnePrepare(t *testing.T) {
	t.Parallel()
	c := NewPreparedCache(10)
	var calls int32
	release := make(chan struct{})

	prepare := func() (Statement, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return Statement{Content: "SELECT 2"}, nil
	}

	const n = 20
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, _ = c.GetOrPrepare("ks", "SELECT 2", prepare)
		}()
	}

	close(release)
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("prepare() called %d times across %d concurrent callers, want exactly 1", got, n)
	}
}

func TestPreparedCache_FailedPrepareIsNotCached(t *testing.T) {
	t.Parallel()
	c := NewPreparedCache(10)
	var calls int32
	wantErr := errors.New("boom")

	prepare := func() (Statement, error) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			return Statement{}, wantErr
		}
		return Statement{Content: "ok"}, nil
	}

	_, err := c.GetOrPrepare("ks", "SELECT 3", prepare)
	if !errors.Is(err, wantErr) {
		t.Fatalf("first GetOrPrepare() error = %v, want %v", err, wantErr)
	}

	stmt, err := c.GetOrPrepare("ks", "SELECT 3", prepare)
	if err != nil {
		t.Fatalf("second GetOrPrepare() error = %v, want nil (retry after failure)", err)
	}
	if stmt.Content != "ok" {
		t.Fatalf("second GetOrPrepare() = %+v, want the retried statement", stmt)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("prepare() called %d times, want exactly 2 (one failure, one retry)", got)
	}
}

func TestPreparedCache_DistinctKeyspacesAreDistinctKeys(t *testing.T) {
	t.Parallel()
	c := NewPreparedCache(10)
	var calls int32
	prepare := func() (Statement, error) {
		atomic.AddInt32(&calls, 1)
		return Statement{}, nil
	}

	c.GetOrPrepare("ks1", "SELECT 1", prepare)
	c.GetOrPrepare("ks2", "SELECT 1", prepare)
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("prepare() called %d times for two distinct keyspaces, want 2", got)
	}
	if got := c.Len(); got != 2 {
		t.Fatalf("Len() = %d, want 2", got)
	}
}

func TestPreparedCache_EvictsOldestBeyondCapacity(t *testing.T) {
	t.Parallel()
	c := NewPreparedCache(2)
	prepare := func() (Statement, error) { return Statement{}, nil }

	c.GetOrPrepare("ks", "Q1", prepare)
	c.GetOrPrepare("ks", "Q2", prepare)
	c.GetOrPrepare("ks", "Q3", prepare)

	if got := c.Len(); got != 2 {
		t.Fatalf("Len() = %d, want 2 after exceeding capacity", got)
	}

	var calls int32
	recountingPrepare := func() (Statement, error) {
		atomic.AddInt32(&calls, 1)
		return Statement{}, nil
	}
	c.GetOrPrepare("ks", "Q1", recountingPrepare)
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("Q1 should have been evicted and re-prepared, prepare() called %d times, want 1", got)
	}
}

func TestPreparedCache_Invalidate(t *testing.T) {
	t.Parallel()
	c := NewPreparedCache(10)
	var calls int32
	prepare := func() (Statement, error) {
		atomic.AddInt32(&calls, 1)
		return Statement{}, nil
	}

	c.GetOrPrepare("ks", "SELECT 1", prepare)
	c.Invalidate("ks", "SELECT 1")
	c.GetOrPrepare("ks", "SELECT 1", prepare)

	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("prepare() called %d times after Invalidate, want 2", got)
	}
}
