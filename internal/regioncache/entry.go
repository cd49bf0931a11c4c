package regioncache

import (
	"context"
	"sync/atomic"
	"time"

	"rivermap/internal/tile"
	"rivermap/internal/workpool"
)

type State int

const (
	Pending State = iota
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Entry is one scheduled or finished region computation. Once it leaves
// Pending its value never changes.
type Entry[T any] struct {
	coord      tile.Coord
	id         uint64
	created    time.Time
	lastAccess atomic.Int64
	future     *workpool.Future[T]
}

func (e *Entry[T]) Coord() tile.Coord { return e.coord }

func (e *Entry[T]) ID() uint64 { return e.id }

func (e *Entry[T]) Created() time.Time { return e.created }

func (e *Entry[T]) LastAccess() time.Time {
	return time.Unix(0, e.lastAccess.Load())
}

func (e *Entry[T]) touch(now time.Time) {
	e.lastAccess.Store(now.UnixNano())
}

func (e *Entry[T]) State() State {
	if !e.future.Ready() {
		return Pending
	}
	if _, err := e.future.Result(); err != nil {
		return Failed
	}
	return Ready
}

// IsDone reports whether the entry is Ready or Failed.
func (e *Entry[T]) IsDone() bool {
	return e.future.Ready()
}

// Done is closed once the entry leaves Pending.
func (e *Entry[T]) Done() <-chan struct{} {
	return e.future.Done()
}

// Value returns the artifact or generation error without blocking. A pending
// entry yields workpool.ErrPending.
func (e *Entry[T]) Value() (T, error) {
	return e.future.Result()
}

// Wait blocks until the entry is done or ctx ends.
func (e *Entry[T]) Wait(ctx context.Context) (T, error) {
	return e.future.Wait(ctx)
}
