package workpool

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrPanic   = errors.New("workpool: task panicked")
	ErrPending = errors.New("workpool: result not ready")
)

// Future holds the result of one asynchronous computation. It is written
// exactly once and is safe for any number of concurrent readers.
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

func (f *Future[T]) complete(value T, err error) {
	f.value = value
	f.err = err
	close(f.done)
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

func (f *Future[T]) Ready() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Result returns the outcome without blocking, or ErrPending.
func (f *Future[T]) Result() (T, error) {
	if !f.Ready() {
		var zero T
		return zero, ErrPending
	}
	return f.value, f.err
}

// Wait blocks until the result is available or ctx ends.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Go schedules fn on p and returns its future. If p is closed the future is
// already failed with ErrClosed.
func Go[T any](ctx context.Context, p *Pool, fn func(context.Context) (T, error)) *Future[T] {
	f := newFuture[T]()
	err := p.Submit(func() {
		f.complete(Call(ctx, fn))
	})
	if err != nil {
		var zero T
		f.complete(zero, err)
	}
	return f
}

// Call runs fn, turning a panic into an error wrapping ErrPanic.
func Call[T any](ctx context.Context, fn func(context.Context) (T, error)) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			value, err = zero, fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return fn(ctx)
}
