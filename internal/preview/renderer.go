// Package preview renders region tiles to images for inspection.
package preview

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"image/color"
	"sort"

	"go.uber.org/zap"

	"rivermap/internal/cache"
	"rivermap/internal/rivermap"
	"rivermap/internal/tile"
)

var ErrUnsupportedFormat = errors.New("unsupported preview format")

// Encoder turns a rasterised region into image bytes of size x size pixels.
type Encoder interface {
	Format() string
	ContentType() string
	// Oversample is the raster resolution multiplier the encoder expects; it
	// downsamples to size itself.
	Oversample() int
	Encode(img image.Image, size int) ([]byte, error)
}

// Rivers is the part of the river map the renderer needs.
type Rivers interface {
	World() rivermap.World
	Resolver() tile.Resolver
	TilesForArea(a tile.Area) rivermap.RegionList
}

type Renderer struct {
	rivers      Rivers
	cache       cache.Cache
	size        int
	fingerprint uint64
	encoders    map[string]Encoder
	logger      *zap.Logger
}

type Result struct {
	Data        []byte
	ETag        string
	Size        int
	ContentType string
}

func New(rivers Rivers, previewCache cache.Cache, size int, logger *zap.Logger, encoders ...Encoder) *Renderer {
	if size <= 0 {
		size = 256
	}
	r := &Renderer{
		rivers:      rivers,
		cache:       previewCache,
		size:        size,
		fingerprint: rivers.World().Fingerprint(),
		encoders:    make(map[string]Encoder, len(encoders)),
		logger:      logger,
	}
	for _, e := range encoders {
		r.encoders[e.Format()] = e
	}
	return r
}

// Formats lists the registered output formats.
func (r *Renderer) Formats() []string {
	out := make([]string, 0, len(r.encoders))
	for f := range r.encoders {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func (r *Renderer) Render(ctx context.Context, c tile.Coord, format string) (*Result, error) {
	enc, ok := r.encoders[format]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	world := r.rivers.World()
	key := cache.PreviewKey{
		Seed:   world.Seed,
		Scale:  world.Scale,
		World:  r.fingerprint,
		X:      c.X,
		Z:      c.Z,
		Size:   r.size,
		Format: enc.Format(),
	}

	if cached, ok := r.cache.Get(key); ok {
		return r.result(key, enc, cached), nil
	}

	img, err := r.Rasterize(ctx, c, r.size*max(1, enc.Oversample()))
	if err != nil {
		return nil, err
	}

	data, err := enc.Encode(img, r.size)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s preview: %w", enc.Format(), err)
	}

	r.cache.Set(key, data)
	r.logger.Debug("Rendered region preview",
		zap.Stringer("tile", c),
		zap.String("format", enc.Format()),
		zap.Int("bytes", len(data)),
	)
	return r.result(key, enc, data), nil
}

func (r *Renderer) result(key cache.PreviewKey, enc Encoder, data []byte) *Result {
	return &Result{
		Data:        data,
		ETag:        generateETag(key),
		Size:        len(data),
		ContentType: enc.ContentType(),
	}
}

// Rasterize renders the blended river map over tile c at px x px
// resolution. The regions around the tile are resolved and waited for once;
// each pixel then blends its own neighbours in point-query order, exactly as
// a per-pixel Sample would.
func (r *Renderer) Rasterize(ctx context.Context, c tile.Coord, px int) (*image.RGBA, error) {
	world := r.rivers.World()
	resolver := r.rivers.Resolver()
	ox, oz := resolver.Origin(c)
	step := float64(resolver.Size()) / float64(px)

	// Pixel centres, first and last.
	area := tile.Area{
		MinX: ox + 0.5*step,
		MinZ: oz + 0.5*step,
		MaxX: ox + (float64(px)-0.5)*step,
		MaxZ: oz + (float64(px)-0.5)*step,
	}
	if err := resolver.CheckArea(area); err != nil {
		return nil, fmt.Errorf("failed to sample region %s: %w", c, err)
	}

	if world.SampleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, world.SampleTimeout)
		defer cancel()
	}

	list := r.rivers.TilesForArea(area)
	regions, err := list.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to sample region %s: %w", c, err)
	}
	byCoord := make(map[tile.Coord]rivermap.Region, len(regions))
	for i, c := range list.Coords() {
		byCoord[c] = regions[i]
	}

	img := image.NewRGBA(image.Rect(0, 0, px, px))
	for py := 0; py < px; py++ {
		z := oz + (float64(py)+0.5)*step
		for pxi := 0; pxi < px; pxi++ {
			x := ox + (float64(pxi)+0.5)*step
			cell := rivermap.Cell{Height: world.Levels.Ground, Terrain: rivermap.TerrainLand}
			n := resolver.Point(x, z)
			for i := 0; i < n.Len(); i++ {
				byCoord[n.At(i)].Apply(&cell, x, z)
			}
			img.SetRGBA(pxi, py, shade(cell, world.Levels))
		}
	}
	return img, nil
}

func shade(cell rivermap.Cell, levels rivermap.Levels) color.RGBA {
	// Brightness follows height relative to the ground level.
	light := 0.6 + 0.8*float64(cell.Height-levels.Water)
	light = max(0.2, min(1, light))

	switch cell.Terrain {
	case rivermap.TerrainRiver:
		return color.RGBA{R: 30, G: uint8(90 * light), B: uint8(220 * light), A: 255}
	case rivermap.TerrainLake:
		return color.RGBA{R: 20, G: uint8(70 * light), B: uint8(180 * light), A: 255}
	case rivermap.TerrainRiverBank:
		return color.RGBA{R: uint8(170 * light), G: uint8(150 * light), B: uint8(100 * light), A: 255}
	default:
		g := uint8(150 * light)
		if cell.LakeMask > 0 {
			g = uint8(float64(g) * (1 - 0.3*float64(cell.LakeMask)))
		}
		return color.RGBA{R: uint8(80 * light), G: g, B: uint8(60 * light), A: 255}
	}
}

func generateETag(key cache.PreviewKey) string {
	keyStr := fmt.Sprintf("%d_%d_%016x_%d/%d/%d.%s", key.Seed, key.Scale, key.World, key.Size, key.X, key.Z, key.Format)
	hash := sha256.Sum256([]byte(keyStr))
	return hex.EncodeToString(hash[:])[:16]
}
