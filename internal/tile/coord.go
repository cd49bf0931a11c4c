package tile

import (
	"errors"
	"fmt"
	"math"
)

// Tile indices stay one step inside the int32 range so that a neighbour offset
// never wraps.
const (
	MinTile = math.MinInt32 + 1
	MaxTile = math.MaxInt32 - 1
)

var ErrOutOfRange = errors.New("position outside the tile grid")

// Coord identifies one region tile in the infinite 2D grid.
type Coord struct {
	X int32 `json:"x"`
	Z int32 `json:"z"`
}

// Identity returns the cache identity of c under the given world seed.
func (c Coord) Identity(seed int64) uint64 {
	return Identity(c.X, c.Z, seed)
}

func (c Coord) String() string {
	return fmt.Sprintf("%d,%d", c.X, c.Z)
}

// Area is an axis-aligned rectangle in world (block) space. Both corners are
// inclusive.
type Area struct {
	MinX float64 `json:"min_x"`
	MinZ float64 `json:"min_z"`
	MaxX float64 `json:"max_x"`
	MaxZ float64 `json:"max_z"`
}

// PointArea returns the degenerate area covering a single point.
func PointArea(x, z float64) Area {
	return Area{MinX: x, MinZ: z, MaxX: x, MaxZ: z}
}

func (a Area) normalized() Area {
	if a.MinX > a.MaxX {
		a.MinX, a.MaxX = a.MaxX, a.MinX
	}
	if a.MinZ > a.MaxZ {
		a.MinZ, a.MaxZ = a.MaxZ, a.MinZ
	}
	return a
}

// floorDiv returns the tile index of v, saturated to [MinTile, MaxTile].
func floorDiv(v, size float64) int32 {
	f := math.Floor(v / size)
	switch {
	case math.IsNaN(f):
		return 0
	case f < MinTile:
		return MinTile
	case f > MaxTile:
		return MaxTile
	}
	return int32(f)
}
