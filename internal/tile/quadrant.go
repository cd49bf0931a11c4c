package tile

import (
	"fmt"
	"math"
)

// MaxNeighbors is the largest number of tiles a point query can touch.
const MaxNeighbors = 4

// Neighbors is the fixed-capacity result of a point query, in row-major
// order (z outer, x inner).
type Neighbors struct {
	n      int
	coords [MaxNeighbors]Coord
}

func (n Neighbors) Len() int { return n.n }

func (n Neighbors) At(i int) Coord { return n.coords[i] }

// Slice copies the neighbours into a new slice.
func (n Neighbors) Slice() []Coord {
	out := make([]Coord, n.n)
	copy(out, n.coords[:n.n])
	return out
}

func (n *Neighbors) add(c Coord) {
	n.coords[n.n] = c
	n.n++
}

// Resolver maps world positions to the region tiles whose content can reach
// them. Region content bleeds across tile edges, so a point close to an edge
// also needs the tile on the other side of it.
type Resolver struct {
	scale  uint
	size   float64
	radius float64
}

// NewResolver returns a resolver for tiles of edge length 1<<scale. Its
// query radius is half a tile, which means every point resolves to the 2x2
// block of tiles around its nearest tile corner.
func NewResolver(scale uint) Resolver {
	size := float64(int64(1) << scale)
	return Resolver{scale: scale, size: size, radius: size / 2}
}

// WithRadius returns a copy of r that only includes a neighbour when the
// point lies within radius of the shared edge. radius is clamped to
// [0, size/2]; at 0 every point resolves to its owning tile alone.
func (r Resolver) WithRadius(radius float64) Resolver {
	switch {
	case radius < 0:
		radius = 0
	case radius > r.size/2:
		radius = r.size / 2
	}
	r.radius = radius
	return r
}

func (r Resolver) Scale() uint { return r.scale }

func (r Resolver) Size() int { return int(r.size) }

func (r Resolver) Radius() float64 { return r.radius }

// Owner returns the tile containing (x, z).
func (r Resolver) Owner(x, z float64) Coord {
	return Coord{X: floorDiv(x, r.size), Z: floorDiv(z, r.size)}
}

// Check rejects positions whose tile, or one of its neighbours, has no int32
// index. Queries outside that range saturate at the grid edge instead of
// wrapping, so callers that need exact answers check first.
func (r Resolver) Check(x, z float64) error {
	if !r.inRange(x) || !r.inRange(z) {
		return fmt.Errorf("%w: (%g, %g)", ErrOutOfRange, x, z)
	}
	return nil
}

// CheckArea applies Check to both corners of a.
func (r Resolver) CheckArea(a Area) error {
	if err := r.Check(a.MinX, a.MinZ); err != nil {
		return err
	}
	return r.Check(a.MaxX, a.MaxZ)
}

func (r Resolver) inRange(v float64) bool {
	f := math.Floor(v / r.size)
	return f >= MinTile && f <= MaxTile
}

// Origin returns the world position of the tile's minimum corner.
func (r Resolver) Origin(c Coord) (float64, float64) {
	return float64(c.X) * r.size, float64(c.Z) * r.size
}

// axis returns the owning tile index along one axis and the direction of the
// neighbour the position leans towards: -1, +1, or 0 when it is interior.
func (r Resolver) axis(v float64) (int32, int32) {
	t := floorDiv(v, r.size)
	local := v - float64(t)*r.size
	switch {
	case local < r.radius:
		return t, -1
	case local >= r.size-r.radius:
		return t, 1
	default:
		return t, 0
	}
}

// Point returns the tiles needed to answer a query at (x, z).
func (r Resolver) Point(x, z float64) Neighbors {
	tx, qx := r.axis(x)
	tz, qz := r.axis(z)

	var out Neighbors
	for dz := min(0, qz); dz <= max(0, qz); dz++ {
		for dx := min(0, qx); dx <= max(0, qx); dx++ {
			out.add(Coord{X: tx + dx, Z: tz + dz})
		}
	}
	return out
}

// Area returns every tile any point query inside a could need, in row-major
// order. The result never contains duplicates.
func (r Resolver) Area(a Area) []Coord {
	a = a.normalized()

	minX, minQX := r.axis(a.MinX)
	maxX, maxQX := r.axis(a.MaxX)
	minZ, minQZ := r.axis(a.MinZ)
	maxZ, maxQZ := r.axis(a.MaxZ)

	// int64 bounds: x1 may be math.MaxInt32, where an int32 counter wraps.
	x0, x1 := int64(minX+min(0, minQX)), int64(maxX+max(0, maxQX))
	z0, z1 := int64(minZ+min(0, minQZ)), int64(maxZ+max(0, maxQZ))

	out := make([]Coord, 0, (x1-x0+1)*(z1-z0+1))
	for z := z0; z <= z1; z++ {
		for x := x0; x <= x1; x++ {
			out = append(out, Coord{X: int32(x), Z: int32(z)})
		}
	}
	return out
}
