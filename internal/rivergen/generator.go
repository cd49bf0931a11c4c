// Package rivergen is the reference river generator. Each tile gets a
// handful of straight river reaches and sometimes a lake, all seeded from the
// tile identity so regeneration after eviction reproduces them exactly.
package rivergen

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"go.uber.org/zap"

	"rivermap/internal/rivermap"
	"rivermap/internal/tile"
)

type Generator struct {
	logger *zap.Logger
}

func New(logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{logger: logger}
}

func (g *Generator) Generate(ctx context.Context, c tile.Coord, w rivermap.World) (rivermap.Region, error) {
	size := float64(w.Size())
	ox, oz := float64(c.X)*size, float64(c.Z)*size
	margin := w.ContentReach()

	rng := rand.New(rand.NewPCG(tile.Identity(c.X, c.Z, w.Seed), uint64(w.Seed)))

	r := &Region{
		coord:  c,
		minX:   ox - margin,
		minZ:   oz - margin,
		maxX:   ox + size + margin,
		maxZ:   oz + size + margin,
		levels: w.Levels,
	}

	lk := w.Rivers.Lake
	if lk.Chance > 0 && rng.Float64() < lk.Chance {
		r.lake = &lake{
			x:      ox + rng.Float64()*size,
			z:      oz + rng.Float64()*size,
			radius: lk.MinRadius + rng.Float64()*(lk.MaxRadius-lk.MinRadius),
			shore:  lk.ShoreWidth,
			depth:  lk.Depth,
		}
	}

	for _, tier := range []rivermap.RiverTier{w.Rivers.Tertiary, w.Rivers.Secondary, w.Rivers.Primary} {
		count := int(math.Round(float64(tier.Count) * w.Rivers.Frequency))
		lo, hi := -margin+tier.Reach(), size+margin-tier.Reach()
		for i := 0; i < count; i++ {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("region %s: %w", c, err)
			}

			sx, sz := rng.Float64()*size, rng.Float64()*size
			angle := rng.Float64() * 2 * math.Pi
			length := tier.Length * (0.5 + 0.5*rng.Float64())
			ex := clamp(sx+math.Cos(angle)*length, lo, hi)
			ez := clamp(sz+math.Sin(angle)*length, lo, hi)

			r.rivers = append(r.rivers, river{
				x0: ox + sx, z0: oz + sz,
				x1: ox + ex, z1: oz + ez,
				tier:       tier,
				bankHeight: tier.MinBankHeight + rng.Float32()*(tier.MaxBankHeight-tier.MinBankHeight),
			})
		}
	}

	g.logger.Debug("Generated river region",
		zap.Stringer("tile", c),
		zap.Int("rivers", len(r.rivers)),
		zap.Bool("lake", r.lake != nil),
	)
	return r, nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
