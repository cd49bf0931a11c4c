package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"rivermap/internal/config"
	"rivermap/internal/preview"
	"rivermap/internal/regioncache"
	"rivermap/internal/rivermap"
	"rivermap/internal/tile"
)

// maxAreaTiles caps how many regions one /tiles request may schedule.
const maxAreaTiles = 1024

// Rivers is the river map surface served over HTTP.
type Rivers interface {
	World() rivermap.World
	Resolver() tile.Resolver
	Sample(ctx context.Context, cell *rivermap.Cell, x, z float64) error
	TilesForArea(a tile.Area) rivermap.RegionList
	Stats() regioncache.Stats
}

type Previewer interface {
	Render(ctx context.Context, c tile.Coord, format string) (*preview.Result, error)
}

type Handlers struct {
	config   *config.Config
	logger   *zap.Logger
	rivers   Rivers
	previews Previewer
	limiter  *rate.Limiter
}

func New(config *config.Config, logger *zap.Logger, rivers Rivers, previews Previewer) *Handlers {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if config.PreviewRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.PreviewRPS), max(1, int(config.PreviewRPS*2)))
	}
	return &Handlers{
		config:   config,
		logger:   logger,
		rivers:   rivers,
		previews: previews,
		limiter:  limiter,
	}
}

func (h *Handlers) RequestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()
		start := time.Now()

		w.Header().Set("X-Request-Id", requestID)
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		h.logger.Info("request",
			zap.String("request_id", requestID),
			zap.String("ip", h.extractIP(r)),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("query", r.URL.RawQuery),
			zap.Int("status", wrapped.statusCode),
			zap.Int64("bytes", wrapped.bytesWritten),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (h *Handlers) CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowedOrigin := h.config.AllowedOrigin
		if allowedOrigin == "" {
			allowedOrigin = "*"
		}

		w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type sampleResponse struct {
	X     float64       `json:"x"`
	Z     float64       `json:"z"`
	Tiles []tile.Coord  `json:"tiles"`
	Cell  rivermap.Cell `json:"cell"`
}

// HandleSample serves GET /api/rivers/sample?x=..&z=..
func (h *Handlers) HandleSample(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	x, err := queryFloat(r, "x")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	z, err := queryFloat(r, "z")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	levels := h.rivers.World().Levels
	cell := rivermap.Cell{Height: levels.Ground, Terrain: rivermap.TerrainLand}
	if err := h.rivers.Sample(r.Context(), &cell, x, z); err != nil {
		h.logger.Warn("Failed to sample rivers", zap.Float64("x", x), zap.Float64("z", z), zap.Error(err))
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	writeJSON(w, sampleResponse{
		X:     x,
		Z:     z,
		Tiles: h.rivers.Resolver().Point(x, z).Slice(),
		Cell:  cell,
	})
}

type tileStatus struct {
	X     int32             `json:"x"`
	Z     int32             `json:"z"`
	ID    string            `json:"id"`
	State regioncache.State `json:"state"`
}

// HandleTiles serves GET /api/rivers/tiles with either x,z or
// minX,minZ,maxX,maxZ. It schedules missing regions but never waits.
func (h *Handlers) HandleTiles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	area, err := parseArea(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.rivers.Resolver().CheckArea(area); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if n := areaTiles(h.rivers.Resolver(), area); n > maxAreaTiles {
		http.Error(w, fmt.Sprintf("area covers up to %.0f tiles (max %d)", n, maxAreaTiles), http.StatusBadRequest)
		return
	}

	list := h.rivers.TilesForArea(area)
	out := make([]tileStatus, len(list))
	for i, e := range list {
		c := e.Coord()
		out[i] = tileStatus{
			X:     c.X,
			Z:     c.Z,
			ID:    strconv.FormatUint(e.ID(), 16),
			State: e.State(),
		}
	}
	writeJSON(w, out)
}

func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	world := h.rivers.World()
	writeJSON(w, map[string]interface{}{
		"cache":     h.rivers.Stats(),
		"seed":      world.Seed,
		"tile_size": world.Size(),
	})
}

// HandleRegionRoutes serves GET /api/rivers/regions/{x}/{z}.{jpg|webp}
func (h *Handlers) HandleRegionRoutes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/rivers/regions/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 2 {
		http.NotFound(w, r)
		return
	}

	x, err := strconv.ParseInt(parts[0], 10, 32)
	if err != nil {
		http.Error(w, "Invalid x coordinate", http.StatusBadRequest)
		return
	}

	ext := filepath.Ext(parts[1])
	z, err := strconv.ParseInt(strings.TrimSuffix(parts[1], ext), 10, 32)
	if err != nil {
		http.Error(w, "Invalid z coordinate", http.StatusBadRequest)
		return
	}

	format := strings.TrimPrefix(ext, ".")
	if format == "jpg" {
		format = "jpeg"
	}

	if !h.limiter.Allow() {
		http.Error(w, "Too many preview requests", http.StatusTooManyRequests)
		return
	}

	result, err := h.previews.Render(r.Context(), tile.Coord{X: int32(x), Z: int32(z)}, format)
	if err != nil {
		if errors.Is(err, preview.ErrUnsupportedFormat) {
			http.Error(w, "Invalid format", http.StatusBadRequest)
			return
		}
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("Failed to render region preview", zap.Error(err))
		}
		http.Error(w, err.Error(), status)
		return
	}

	if match := r.Header.Get("If-None-Match"); match == `"`+result.ETag+`"` {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("ETag", `"`+result.ETag+`"`)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Header().Set("Content-Length", strconv.Itoa(result.Size))
	w.Header().Set("Content-Type", result.ContentType)

	// HEAD request doesn't send body
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}

	w.Write(result.Data)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, tile.ErrOutOfRange):
		return http.StatusBadRequest
	case errors.Is(err, rivermap.ErrSampleTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, rivermap.ErrRegionFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// areaTiles bounds the number of tiles an area query touches without
// enumerating them.
func areaTiles(res tile.Resolver, a tile.Area) float64 {
	size := float64(res.Size())
	return (math.Abs(a.MaxX-a.MinX)/size + 2) * (math.Abs(a.MaxZ-a.MinZ)/size + 2)
}

func parseArea(r *http.Request) (tile.Area, error) {
	q := r.URL.Query()
	if q.Has("x") || q.Has("z") {
		x, err := queryFloat(r, "x")
		if err != nil {
			return tile.Area{}, err
		}
		z, err := queryFloat(r, "z")
		if err != nil {
			return tile.Area{}, err
		}
		return tile.PointArea(x, z), nil
	}

	var vals [4]float64
	for i, name := range []string{"minX", "minZ", "maxX", "maxZ"} {
		v, err := queryFloat(r, name)
		if err != nil {
			return tile.Area{}, err
		}
		vals[i] = v
	}
	return tile.Area{MinX: vals[0], MinZ: vals[1], MaxX: vals[2], MaxZ: vals[3]}, nil
}

func queryFloat(r *http.Request, name string) (float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, fmt.Errorf("missing %s", name)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return v, nil
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// Not for real production use due to potential spoofing
func (h *Handlers) extractIP(r *http.Request) string {
	if ip := r.Header.Get("X-Real-Ip"); ip != "" {
		return strings.Split(ip, ":")[0]
	}
	if addr := r.RemoteAddr; addr != "" {
		return strings.Split(addr, ":")[0]
	}
	return "unknown"
}

type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}
