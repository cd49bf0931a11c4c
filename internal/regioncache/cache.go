// Package regioncache maps tile coordinates to asynchronously generated
// artifacts. Concurrent first requests for a tile share one computation, and
// tiles nobody has asked for within the idle TTL are dropped.
package regioncache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"rivermap/internal/tile"
	"rivermap/internal/workpool"
)

const (
	DefaultTTL           = 120 * time.Second
	DefaultSweepInterval = 60 * time.Second
)

// Func generates the artifact for one tile.
type Func[T any] func(ctx context.Context) (T, error)

type config struct {
	ttl     time.Duration
	sweep   time.Duration
	timeout time.Duration
	seed    int64
	logger  *zap.Logger
	now     func() time.Time
}

type Option func(*config)

// WithTTL sets how long an unused entry survives.
func WithTTL(d time.Duration) Option {
	return func(c *config) { c.ttl = d }
}

func WithSweepInterval(d time.Duration) Option {
	return func(c *config) { c.sweep = d }
}

// WithTimeout bounds each generation task. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

func WithSeed(seed int64) Option {
	return func(c *config) { c.seed = seed }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *config) { c.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(c *config) { c.now = now }
}

type Stats struct {
	Entries   int    `json:"entries"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
	Generated uint64 `json:"generated"`
	Failed    uint64 `json:"failed"`
}

type Cache[T any] struct {
	cfg  config
	pool *workpool.Pool

	mu      sync.Mutex
	entries map[uint64]*Entry[T]

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
	generated atomic.Uint64
	failed    atomic.Uint64
}

// New creates a cache that schedules generation on pool.
func New[T any](pool *workpool.Pool, opts ...Option) *Cache[T] {
	cfg := config{
		ttl:    DefaultTTL,
		sweep:  DefaultSweepInterval,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Cache[T]{
		cfg:     cfg,
		pool:    pool,
		entries: make(map[uint64]*Entry[T]),
	}
}

// GetOrCreate returns the entry for c, scheduling fn when there is none.
// It never waits for generation.
func (c *Cache[T]) GetOrCreate(coord tile.Coord, fn Func[T]) *Entry[T] {
	id := tile.Identity(coord.X, coord.Z, c.cfg.seed)
	now := c.cfg.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[id]; ok {
		if !c.idle(e, now) {
			e.touch(now)
			c.hits.Add(1)
			return e
		}
		// Expired but not yet swept: treat as a fresh miss.
		c.evictions.Add(1)
		c.cfg.logger.Debug("Evicted idle region on access", zap.Stringer("tile", coord))
	}

	c.misses.Add(1)
	e := &Entry[T]{coord: coord, id: id, created: now}
	e.touch(now)
	e.future = workpool.Go(context.Background(), c.pool, c.task(coord, fn))
	c.entries[id] = e

	c.cfg.logger.Debug("Scheduled region generation", zap.Stringer("tile", coord), zap.Uint64("id", id))
	return e
}

// Peek returns the entry for c without creating it or refreshing its access
// time.
func (c *Cache[T]) Peek(coord tile.Coord) (*Entry[T], bool) {
	id := tile.Identity(coord.X, coord.Z, c.cfg.seed)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	return e, ok
}

func (c *Cache[T]) task(coord tile.Coord, fn Func[T]) func(context.Context) (T, error) {
	return func(ctx context.Context) (T, error) {
		if c.cfg.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.cfg.timeout)
			defer cancel()
		}

		start := time.Now()
		value, err := workpool.Call[T](ctx, fn)
		if err != nil {
			c.failed.Add(1)
			c.cfg.logger.Warn("Region generation failed", zap.Stringer("tile", coord), zap.Error(err))
			var zero T
			return zero, fmt.Errorf("generate region %s: %w", coord, err)
		}

		c.generated.Add(1)
		c.cfg.logger.Debug("Generated region",
			zap.Stringer("tile", coord),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
		return value, nil
	}
}

// idle reports whether e can be evicted. Pending entries never are.
func (c *Cache[T]) idle(e *Entry[T], now time.Time) bool {
	if !e.IsDone() {
		return false
	}
	return now.Sub(e.LastAccess()) > c.cfg.ttl
}

// Sweep removes every idle entry and returns how many it removed.
func (c *Cache[T]) Sweep() int {
	now := c.cfg.now()

	c.mu.Lock()
	removed := 0
	for id, e := range c.entries {
		if c.idle(e, now) {
			delete(c.entries, id)
			removed++
		}
	}
	remaining := len(c.entries)
	c.mu.Unlock()

	if removed > 0 {
		c.evictions.Add(uint64(removed))
		c.cfg.logger.Debug("Swept idle regions", zap.Int("removed", removed), zap.Int("remaining", remaining))
	}
	return removed
}

// Run sweeps at the configured interval until ctx is done.
func (c *Cache[T]) Run(ctx context.Context) {
	if c.cfg.sweep <= 0 {
		return
	}
	ticker := time.NewTicker(c.cfg.sweep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache[T]) Stats() Stats {
	return Stats{
		Entries:   c.Len(),
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Generated: c.generated.Load(),
		Failed:    c.failed.Load(),
	}
}
