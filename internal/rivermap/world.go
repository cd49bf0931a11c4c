package rivermap

import (
	"errors"
	"fmt"
	"hash/fnv"
	"time"
)

// Levels are normalised terrain heights shared by all generators.
type Levels struct {
	Ground float32 `yaml:"ground" json:"ground"`
	Water  float32 `yaml:"water" json:"water"`
}

// RiverTier configures one class of river (primary, secondary, tertiary).
// Widths and lengths are in blocks; heights and depths are normalised.
type RiverTier struct {
	MinBankHeight float32 `yaml:"min_bank_height" json:"min_bank_height"`
	MaxBankHeight float32 `yaml:"max_bank_height" json:"max_bank_height"`
	BankWidth     float64 `yaml:"bank_width" json:"bank_width"`
	BedWidth      float64 `yaml:"bed_width" json:"bed_width"`
	BedDepth      float32 `yaml:"bed_depth" json:"bed_depth"`
	Fade          float64 `yaml:"fade" json:"fade"`
	Length        float64 `yaml:"length" json:"length"`
	Count         int     `yaml:"count" json:"count"`
}

// Reach is the furthest distance from a river's centre line it affects.
func (t RiverTier) Reach() float64 {
	return t.BedWidth/2 + t.BankWidth
}

type LakeSettings struct {
	Chance     float64 `yaml:"chance" json:"chance"`
	MinRadius  float64 `yaml:"min_radius" json:"min_radius"`
	MaxRadius  float64 `yaml:"max_radius" json:"max_radius"`
	Depth      float32 `yaml:"depth" json:"depth"`
	ShoreWidth float64 `yaml:"shore_width" json:"shore_width"`
}

func (l LakeSettings) Reach() float64 {
	return l.MaxRadius + l.ShoreWidth
}

type RiverSettings struct {
	Frequency float64      `yaml:"frequency" json:"frequency"`
	Primary   RiverTier    `yaml:"primary" json:"primary"`
	Secondary RiverTier    `yaml:"secondary" json:"secondary"`
	Tertiary  RiverTier    `yaml:"tertiary" json:"tertiary"`
	Lake      LakeSettings `yaml:"lake" json:"lake"`
}

// World is the generation context handed to every Generator call.
type World struct {
	Seed int64 `yaml:"seed" json:"seed"`
	// Scale is log2 of the region edge length in blocks.
	Scale         uint          `yaml:"scale" json:"scale"`
	SampleTimeout time.Duration `yaml:"sample_timeout" json:"sample_timeout"`
	Levels        Levels        `yaml:"levels" json:"levels"`
	Rivers        RiverSettings `yaml:"rivers" json:"rivers"`
}

const (
	MinScale = 4
	MaxScale = 20
)

func DefaultWorld() World {
	return World{
		Seed:          0,
		Scale:         10,
		SampleTimeout: 30 * time.Second,
		Levels:        Levels{Ground: 0.5, Water: 0.3},
		Rivers: RiverSettings{
			Frequency: 1,
			Primary: RiverTier{
				MinBankHeight: 0.02, MaxBankHeight: 0.06,
				BankWidth: 15, BedWidth: 6, BedDepth: 0.04,
				Fade: 0.6, Length: 250, Count: 1,
			},
			Secondary: RiverTier{
				MinBankHeight: 0.015, MaxBankHeight: 0.04,
				BankWidth: 8, BedWidth: 4, BedDepth: 0.03,
				Fade: 0.5, Length: 180, Count: 2,
			},
			Tertiary: RiverTier{
				MinBankHeight: 0.01, MaxBankHeight: 0.03,
				BankWidth: 5, BedWidth: 2, BedDepth: 0.02,
				Fade: 0.4, Length: 120, Count: 4,
			},
			Lake: LakeSettings{
				Chance: 0.3, MinRadius: 20, MaxRadius: 60,
				Depth: 0.05, ShoreWidth: 10,
			},
		},
	}
}

// Size is the region edge length in blocks.
func (w World) Size() int {
	return 1 << w.Scale
}

// ContentReach is how far region content may extend past its tile's edges.
// Generators must stay inside it.
func (w World) ContentReach() float64 {
	return float64(w.Size()) / 4
}

// Fingerprint hashes every setting that shapes generated content. Caches of
// derived artefacts key on it so an edited world file never serves stale data.
func (w World) Fingerprint() uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d/%d/%+v/%+v", w.Seed, w.Scale, w.Levels, w.Rivers)
	return h.Sum64()
}

var ErrInvalidWorld = errors.New("invalid world settings")

// Validate checks the settings. Content generated for a tile must stay within
// a quarter tile of its edges, otherwise a point query could miss it.
func (w World) Validate() error {
	if w.Scale < MinScale || w.Scale > MaxScale {
		return fmt.Errorf("%w: scale %d outside [%d, %d]", ErrInvalidWorld, w.Scale, MinScale, MaxScale)
	}
	if w.Levels.Water > w.Levels.Ground {
		return fmt.Errorf("%w: water level %.3f above ground level %.3f", ErrInvalidWorld, w.Levels.Water, w.Levels.Ground)
	}
	if w.Rivers.Frequency < 0 {
		return fmt.Errorf("%w: negative river frequency", ErrInvalidWorld)
	}

	limit := w.ContentReach()
	for _, tier := range []struct {
		name string
		t    RiverTier
	}{
		{"primary", w.Rivers.Primary},
		{"secondary", w.Rivers.Secondary},
		{"tertiary", w.Rivers.Tertiary},
	} {
		name, t := tier.name, tier.t
		if t.BedWidth < 0 || t.BankWidth < 0 || t.Length < 0 || t.Count < 0 {
			return fmt.Errorf("%w: %s rivers have negative dimensions", ErrInvalidWorld, name)
		}
		if t.MinBankHeight > t.MaxBankHeight {
			return fmt.Errorf("%w: %s rivers min bank height above max", ErrInvalidWorld, name)
		}
		if t.Reach() >= limit {
			return fmt.Errorf("%w: %s river reach %.1f must be below %.1f", ErrInvalidWorld, name, t.Reach(), limit)
		}
	}

	lake := w.Rivers.Lake
	if lake.MinRadius > lake.MaxRadius || lake.MinRadius < 0 {
		return fmt.Errorf("%w: lake radius range [%.1f, %.1f]", ErrInvalidWorld, lake.MinRadius, lake.MaxRadius)
	}
	if lake.Chance > 0 && lake.Reach() >= limit {
		return fmt.Errorf("%w: lake reach %.1f must be below %.1f", ErrInvalidWorld, lake.Reach(), limit)
	}
	return nil
}
