// Package rivermap answers river queries for the terrain pipeline by joining
// the cached regions around a position.
package rivermap

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"rivermap/internal/regioncache"
	"rivermap/internal/tile"
	"rivermap/internal/workpool"
)

var (
	ErrRegionFailed  = errors.New("river region unavailable")
	ErrSampleTimeout = errors.New("timed out waiting for river regions")
)

// Entry is a cached, possibly still generating, region.
type Entry = regioncache.Entry[Region]

// RegionList is an ordered set of region entries relevant to one query.
type RegionList []*Entry

func (l RegionList) Coords() []tile.Coord {
	out := make([]tile.Coord, len(l))
	for i, e := range l {
		out[i] = e.Coord()
	}
	return out
}

// Ready reports whether every entry has finished, successfully or not.
func (l RegionList) Ready() bool {
	for _, e := range l {
		if !e.IsDone() {
			return false
		}
	}
	return true
}

// Wait blocks until every entry is done and returns the regions in list
// order. The first failed entry aborts the wait.
func (l RegionList) Wait(ctx context.Context) ([]Region, error) {
	out := make([]Region, len(l))
	for i, e := range l {
		r, err := wait(ctx, e)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}

func wait(ctx context.Context, e *Entry) (Region, error) {
	select {
	case <-e.Done():
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: tile %s: %w", ErrSampleTimeout, e.Coord(), ctx.Err())
	}
	r, err := e.Value()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRegionFailed, err)
	}
	return r, nil
}

type settings struct {
	logger    *zap.Logger
	radius    float64
	hasRadius bool
	cacheOpts []regioncache.Option
}

type Option func(*settings)

func WithLogger(l *zap.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithQueryRadius narrows point queries to neighbours within radius blocks of
// a tile edge. The default is half a tile. A radius below the world's content
// reach is raised to it, otherwise neighbour content would be cut off at the
// tile border.
func WithQueryRadius(radius float64) Option {
	return func(s *settings) {
		s.radius = radius
		s.hasRadius = true
	}
}

func WithCacheOptions(opts ...regioncache.Option) Option {
	return func(s *settings) { s.cacheOpts = append(s.cacheOpts, opts...) }
}

type RiverMap struct {
	world     World
	generator Generator
	resolver  tile.Resolver
	cache     *regioncache.Cache[Region]
	logger    *zap.Logger
}

// New wires a river map over gen. Generation runs on pool, which the caller
// owns and closes.
func New(world World, gen Generator, pool *workpool.Pool, opts ...Option) *RiverMap {
	s := settings{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&s)
	}

	resolver := tile.NewResolver(world.Scale)
	if s.hasRadius {
		radius := s.radius
		if reach := world.ContentReach(); radius < reach {
			s.logger.Warn("Query radius below region content reach, raising it",
				zap.Float64("radius", radius),
				zap.Float64("reach", reach),
			)
			radius = reach
		}
		resolver = resolver.WithRadius(radius)
	}

	cacheOpts := append([]regioncache.Option{
		regioncache.WithSeed(world.Seed),
		regioncache.WithLogger(s.logger.Named("regions")),
	}, s.cacheOpts...)

	return &RiverMap{
		world:     world,
		generator: gen,
		resolver:  resolver,
		cache:     regioncache.New[Region](pool, cacheOpts...),
		logger:    s.logger,
	}
}

func (m *RiverMap) World() World { return m.world }

func (m *RiverMap) Resolver() tile.Resolver { return m.resolver }

// Region returns the cache entry for c, scheduling generation on a miss.
func (m *RiverMap) Region(c tile.Coord) *Entry {
	return m.cache.GetOrCreate(c, func(ctx context.Context) (Region, error) {
		return m.generator.Generate(ctx, c, m.world)
	})
}

// Rivers returns the regions around block (x, z) without waiting for them.
func (m *RiverMap) Rivers(x, z int) RegionList {
	n := m.resolver.Point(float64(x), float64(z))
	list := make(RegionList, n.Len())
	for i := range list {
		list[i] = m.Region(n.At(i))
	}
	return list
}

// TilesForArea returns every region a point query inside a could touch,
// without waiting for them.
func (m *RiverMap) TilesForArea(a tile.Area) RegionList {
	coords := m.resolver.Area(a)
	list := make(RegionList, len(coords))
	for i, c := range coords {
		list[i] = m.Region(c)
	}
	return list
}

// Sample blends the regions around (x, z) into cell. Regions are applied in
// row-major tile order once all of them are ready, later tiles painting over
// earlier ones. On error the cell is left untouched.
func (m *RiverMap) Sample(ctx context.Context, cell *Cell, x, z float64) error {
	if err := m.resolver.Check(x, z); err != nil {
		return err
	}
	n := m.resolver.Point(x, z)

	var entries [tile.MaxNeighbors]*Entry
	for i := 0; i < n.Len(); i++ {
		entries[i] = m.Region(n.At(i))
	}

	if m.world.SampleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.world.SampleTimeout)
		defer cancel()
	}

	var regions [tile.MaxNeighbors]Region
	for i := 0; i < n.Len(); i++ {
		r, err := wait(ctx, entries[i])
		if err != nil {
			m.logger.Debug("Sample failed", zap.Float64("x", x), zap.Float64("z", z), zap.Error(err))
			return err
		}
		regions[i] = r
	}

	for i := 0; i < n.Len(); i++ {
		regions[i].Apply(cell, x, z)
	}
	return nil
}

// Run evicts idle regions until ctx is done.
func (m *RiverMap) Run(ctx context.Context) {
	m.cache.Run(ctx)
}

func (m *RiverMap) Stats() regioncache.Stats {
	return m.cache.Stats()
}
