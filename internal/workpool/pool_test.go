package workpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func TestSubmitDoesNotBlock(t *testing.T) {
	p := New(1, zaptest.NewLogger(t))
	release := make(chan struct{})

	start := time.Now()
	for i := 0; i < 50; i++ {
		if err := p.Submit(func() { <-release }); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Submit blocked for %v with a saturated pool", elapsed)
	}
	close(release)
	p.Close()
}

func TestPoolBoundsConcurrency(t *testing.T) {
	const workers = 3
	p := New(workers, zaptest.NewLogger(t))

	var running, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		_ = p.Submit(func() {
			defer wg.Done()
			n := running.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			running.Add(-1)
		})
	}
	wg.Wait()
	p.Close()

	if got := peak.Load(); got > workers {
		t.Errorf("peak concurrency = %d, want <= %d", got, workers)
	}
}

func TestSubmitAfterClose(t *testing.T) {
	p := New(2, nil)
	p.Close()
	if err := p.Submit(func() {}); !errors.Is(err, ErrClosed) {
		t.Errorf("Submit after Close = %v, want ErrClosed", err)
	}
	f := Go(context.Background(), p, func(context.Context) (int, error) { return 1, nil })
	if _, err := f.Result(); !errors.Is(err, ErrClosed) {
		t.Errorf("Go after Close result = %v, want ErrClosed", err)
	}
}

func TestFutureLifecycle(t *testing.T) {
	p := New(2, zaptest.NewLogger(t))
	defer p.Close()

	gate := make(chan struct{})
	f := Go(context.Background(), p, func(context.Context) (string, error) {
		<-gate
		return "river", nil
	})

	if f.Ready() {
		t.Fatal("future ready before task ran")
	}
	if _, err := f.Result(); !errors.Is(err, ErrPending) {
		t.Fatalf("Result() before completion = %v, want ErrPending", err)
	}

	close(gate)
	got, err := f.Wait(context.Background())
	if err != nil || got != "river" {
		t.Fatalf("Wait() = %q, %v; want river, nil", got, err)
	}
	if !f.Ready() {
		t.Error("future not ready after Wait")
	}
}

func TestFutureWaitHonoursContext(t *testing.T) {
	p := New(1, zaptest.NewLogger(t))
	gate := make(chan struct{})
	defer func() {
		close(gate)
		p.Close()
	}()

	f := Go(context.Background(), p, func(context.Context) (int, error) {
		<-gate
		return 0, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := f.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() = %v, want DeadlineExceeded", err)
	}
}

func TestPanicBecomesError(t *testing.T) {
	p := New(1, zaptest.NewLogger(t))
	defer p.Close()

	f := Go(context.Background(), p, func(context.Context) (int, error) {
		panic("bad tile")
	})
	if _, err := f.Wait(context.Background()); !errors.Is(err, ErrPanic) {
		t.Errorf("Wait() = %v, want ErrPanic", err)
	}
}
