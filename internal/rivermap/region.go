package rivermap

import (
	"context"

	"rivermap/internal/tile"
)

type Terrain string

const (
	TerrainLand      Terrain = "land"
	TerrainRiverBank Terrain = "river_bank"
	TerrainRiver     Terrain = "river"
	TerrainLake      Terrain = "lake"
)

// Cell is the terrain value at one column that regions carve into.
type Cell struct {
	Height    float32 `json:"height"`
	RiverMask float32 `json:"river_mask"`
	LakeMask  float32 `json:"lake_mask"`
	Terrain   Terrain `json:"terrain"`
}

// Region is the generated river content of one tile. Implementations must be
// immutable once returned by a Generator.
type Region interface {
	Coord() tile.Coord
	// Apply writes the region's contribution at (x, z) over whatever the
	// cell already holds.
	Apply(cell *Cell, x, z float64)
}

// Generator builds the Region for one tile. It must be deterministic for a
// given world and coordinate, and safe to call concurrently.
type Generator interface {
	Generate(ctx context.Context, c tile.Coord, w World) (Region, error)
}

type GeneratorFunc func(ctx context.Context, c tile.Coord, w World) (Region, error)

func (f GeneratorFunc) Generate(ctx context.Context, c tile.Coord, w World) (Region, error) {
	return f(ctx, c, w)
}
