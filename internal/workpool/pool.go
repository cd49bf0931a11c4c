// Package workpool runs tasks on a bounded number of goroutines and exposes
// their results as futures.
package workpool

import (
	"errors"
	"runtime"
	"sync"

	"go.uber.org/zap"
)

var ErrClosed = errors.New("workpool: pool is closed")

// Pool bounds how many submitted tasks run at once. Submitting never blocks:
// each task gets its own goroutine that waits for a free slot.
type Pool struct {
	slots  chan struct{}
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
	logger *zap.Logger
}

// New creates a pool running at most workers tasks concurrently. A
// non-positive value means one worker per CPU.
func New(workers int, logger *zap.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		slots:  make(chan struct{}, workers),
		logger: logger,
	}
}

func (p *Pool) Workers() int {
	return cap(p.slots)
}

// Submit schedules fn and returns immediately.
func (p *Pool) Submit(fn func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrClosed
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		p.slots <- struct{}{} // Acquire worker slot
		defer func() { <-p.slots }()

		fn()
	}()
	return nil
}

// Close stops accepting tasks and waits for the submitted ones to finish.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.logger.Debug("Waiting for pool tasks to drain", zap.Int("workers", p.Workers()))
	p.wg.Wait()
}
