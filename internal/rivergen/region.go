package rivergen

import (
	"math"

	"rivermap/internal/rivermap"
	"rivermap/internal/tile"
)

type river struct {
	x0, z0, x1, z1 float64
	tier           rivermap.RiverTier
	bankHeight     float32
}

// distance from (x, z) to the river's centre line.
func (r river) distance(x, z float64) float64 {
	dx, dz := r.x1-r.x0, r.z1-r.z0
	lenSq := dx*dx + dz*dz
	t := 0.0
	if lenSq > 0 {
		t = ((x-r.x0)*dx + (z-r.z0)*dz) / lenSq
		t = math.Max(0, math.Min(1, t))
	}
	return math.Hypot(x-(r.x0+t*dx), z-(r.z0+t*dz))
}

type lake struct {
	x, z   float64
	radius float64
	shore  float64
	depth  float32
}

// Region is the river network generated for one tile. Nothing in it changes
// after Generate returns.
type Region struct {
	coord                  tile.Coord
	minX, minZ, maxX, maxZ float64
	levels                 rivermap.Levels
	lake                   *lake
	// rivers are painted in slice order, smallest tier first.
	rivers []river
}

func (r *Region) Coord() tile.Coord { return r.coord }

func (r *Region) Rivers() int { return len(r.rivers) }

func (r *Region) HasLake() bool { return r.lake != nil }

func (r *Region) Apply(cell *rivermap.Cell, x, z float64) {
	// Half-open bounds: a point exactly one reach inside the neighbour is
	// not queried against this tile.
	if x < r.minX || x >= r.maxX || z < r.minZ || z >= r.maxZ {
		return
	}
	if r.lake != nil {
		r.applyLake(cell, x, z)
	}
	for i := range r.rivers {
		r.applyRiver(cell, &r.rivers[i], x, z)
	}
}

func (r *Region) applyLake(cell *rivermap.Cell, x, z float64) {
	l := r.lake
	d := math.Hypot(x-l.x, z-l.z)
	switch {
	case d <= l.radius:
		cell.Height = min(cell.Height, r.levels.Water-l.depth)
		cell.LakeMask = 1
		cell.Terrain = rivermap.TerrainLake
	case d <= l.radius+l.shore:
		t := (d - l.radius) / l.shore
		cell.Height = min(cell.Height, lerp(r.levels.Water, cell.Height, smoothstep(t)))
		cell.LakeMask = max(cell.LakeMask, float32(1-t))
	}
}

func (r *Region) applyRiver(cell *rivermap.Cell, rv *river, x, z float64) {
	half := rv.tier.BedWidth / 2
	d := rv.distance(x, z)
	switch {
	case d <= half:
		// Parabolic bed, deepest on the centre line.
		f := 1.0
		if half > 0 {
			f = 1 - (d/half)*(d/half)
		}
		cell.Height = r.levels.Water - rv.tier.BedDepth*float32(f)
		cell.RiverMask = 1
		cell.Terrain = rivermap.TerrainRiver
	case d <= half+rv.tier.BankWidth:
		t := (d - half) / rv.tier.BankWidth
		bank := r.levels.Water + rv.bankHeight*float32(t)
		h := lerp(bank, cell.Height, smoothstep(t))
		if h < cell.Height {
			cell.Height = h
		}
		cell.RiverMask = max(cell.RiverMask, float32((1-t)*rv.tier.Fade))
		if cell.Terrain != rivermap.TerrainRiver && cell.Terrain != rivermap.TerrainLake {
			cell.Terrain = rivermap.TerrainRiverBank
		}
	}
}

func smoothstep(t float64) float64 {
	t = math.Max(0, math.Min(1, t))
	return t * t * (3 - 2*t)
}

func lerp(a, b float32, t float64) float32 {
	return a + (b-a)*float32(t)
}
