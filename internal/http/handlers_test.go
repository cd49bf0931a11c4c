package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"rivermap/internal/config"
	"rivermap/internal/preview"
	"rivermap/internal/rivermap"
	"rivermap/internal/tile"
	"rivermap/internal/workpool"
)

type riverRegion struct{ coord tile.Coord }

func (r riverRegion) Coord() tile.Coord { return r.coord }

func (r riverRegion) Apply(cell *rivermap.Cell, x, z float64) {
	cell.RiverMask = 1
	cell.Terrain = rivermap.TerrainRiver
}

type fakePreviews struct {
	calls  int
	coord  tile.Coord
	format string
}

func (f *fakePreviews) Render(ctx context.Context, c tile.Coord, format string) (*preview.Result, error) {
	f.calls++
	f.coord = c
	f.format = format
	if format != "jpeg" {
		return nil, preview.ErrUnsupportedFormat
	}
	data := []byte("jpeg-bytes")
	return &preview.Result{Data: data, ETag: "abc123", Size: len(data), ContentType: "image/jpeg"}, nil
}

func newTestHandlers(t *testing.T, cfg *config.Config) (*Handlers, *fakePreviews) {
	t.Helper()
	log := zaptest.NewLogger(t)
	pool := workpool.New(4, log)
	t.Cleanup(pool.Close)

	world := rivermap.DefaultWorld()
	world.Scale = 6
	gen := rivermap.GeneratorFunc(func(ctx context.Context, c tile.Coord, _ rivermap.World) (rivermap.Region, error) {
		if c.X == 5 {
			return nil, errors.New("boom")
		}
		return riverRegion{coord: c}, nil
	})
	rivers := rivermap.New(world, gen, pool, rivermap.WithLogger(log))

	if cfg == nil {
		cfg = &config.Config{}
	}
	previews := &fakePreviews{}
	return New(cfg, log, rivers, previews), previews
}

func serve(h http.HandlerFunc, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestHandleSample(t *testing.T) {
	h, _ := newTestHandlers(t, nil)

	rec := serve(h.HandleSample, http.MethodGet, "/api/rivers/sample?x=10&z=10")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %q", rec.Code, rec.Body.String())
	}

	var got sampleResponse
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Cell.Terrain != rivermap.TerrainRiver || got.Cell.RiverMask != 1 {
		t.Errorf("cell = %+v, want river", got.Cell)
	}
	if len(got.Tiles) != 4 {
		t.Errorf("tiles = %v, want 4", got.Tiles)
	}
}

func TestHandleSampleErrors(t *testing.T) {
	h, _ := newTestHandlers(t, nil)

	tests := []struct {
		name   string
		method string
		target string
		want   int
	}{
		{"missing z", http.MethodGet, "/api/rivers/sample?x=1", http.StatusBadRequest},
		{"not a number", http.MethodGet, "/api/rivers/sample?x=a&z=1", http.StatusBadRequest},
		{"not finite", http.MethodGet, "/api/rivers/sample?x=NaN&z=1", http.StatusBadRequest},
		{"failed region", http.MethodGet, "/api/rivers/sample?x=352&z=32", http.StatusBadGateway},
		{"off grid", http.MethodGet, "/api/rivers/sample?x=1e15&z=0", http.StatusBadRequest},
		{"wrong method", http.MethodPost, "/api/rivers/sample?x=1&z=1", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(h.HandleSample, tt.method, tt.target)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestHandleTiles(t *testing.T) {
	h, _ := newTestHandlers(t, nil)

	rec := serve(h.HandleTiles, http.MethodGet, "/api/rivers/tiles?minX=0&minZ=0&maxX=10&maxZ=10")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %q", rec.Code, rec.Body.String())
	}

	var got []struct {
		X     int32  `json:"x"`
		Z     int32  `json:"z"`
		ID    string `json:"id"`
		State string `json:"state"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	want := []tile.Coord{{X: -1, Z: -1}, {X: 0, Z: -1}, {X: -1, Z: 0}, {X: 0, Z: 0}}
	if len(got) != len(want) {
		t.Fatalf("got %d tiles, want %d", len(got), len(want))
	}
	for i, tt := range got {
		if (tile.Coord{X: tt.X, Z: tt.Z}) != want[i] {
			t.Errorf("tile %d = (%d,%d), want %v", i, tt.X, tt.Z, want[i])
		}
		if tt.ID == "" {
			t.Errorf("tile %d has no id", i)
		}
		switch tt.State {
		case "pending", "ready":
		default:
			t.Errorf("tile %d state = %q", i, tt.State)
		}
	}
}

func TestHandleTilesPoint(t *testing.T) {
	h, _ := newTestHandlers(t, nil)

	rec := serve(h.HandleTiles, http.MethodGet, "/api/rivers/tiles?x=40&z=40")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got []map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 4 {
		t.Errorf("got %d tiles, want 4", len(got))
	}
}

func TestHandleTilesRejectsHugeArea(t *testing.T) {
	h, _ := newTestHandlers(t, nil)

	rec := serve(h.HandleTiles, http.MethodGet, "/api/rivers/tiles?minX=-1e9&minZ=-1e9&maxX=1e9&maxZ=1e9")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if n := h.rivers.Stats().Entries; n != 0 {
		t.Errorf("rejected query scheduled %d regions", n)
	}
}

func TestHandleTilesAtGridEdge(t *testing.T) {
	h, _ := newTestHandlers(t, nil)
	const size = 64

	// Tile math.MaxInt32 has no upper neighbour.
	past := fmt.Sprintf("/api/rivers/tiles?x=%.0f&z=0", float64(math.MaxInt32)*size+10)
	done := make(chan *httptest.ResponseRecorder, 1)
	go func() { done <- serve(h.HandleTiles, http.MethodGet, past) }()
	select {
	case rec := <-done:
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("handler did not return")
	}

	// The last addressable tile still resolves, including its upper neighbour.
	last := fmt.Sprintf("/api/rivers/tiles?x=%.0f&z=0", float64(tile.MaxTile)*size+40)
	rec := serve(h.HandleTiles, http.MethodGet, last)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %q", rec.Code, rec.Body.String())
	}
	var got []struct{ X, Z int32 }
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 4 || got[1].X != math.MaxInt32 {
		t.Errorf("tiles = %v", got)
	}
}

func TestHandleRegionRoutes(t *testing.T) {
	h, previews := newTestHandlers(t, nil)

	rec := serve(h.HandleRegionRoutes, http.MethodGet, "/api/rivers/regions/1/-2.jpg")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %q", rec.Code, rec.Body.String())
	}
	if previews.coord != (tile.Coord{X: 1, Z: -2}) || previews.format != "jpeg" {
		t.Errorf("rendered %v as %q", previews.coord, previews.format)
	}
	if got := rec.Header().Get("Content-Type"); got != "image/jpeg" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := rec.Header().Get("ETag"); got != `"abc123"` {
		t.Errorf("ETag = %q", got)
	}
	if rec.Body.String() != "jpeg-bytes" {
		t.Errorf("body = %q", rec.Body.String())
	}

	head := serve(h.HandleRegionRoutes, http.MethodHead, "/api/rivers/regions/1/-2.jpeg")
	if head.Code != http.StatusOK || head.Body.Len() != 0 {
		t.Errorf("HEAD status = %d, body %d bytes", head.Code, head.Body.Len())
	}
	if got := head.Header().Get("Content-Length"); got != "10" {
		t.Errorf("HEAD Content-Length = %q", got)
	}
}

func TestHandleRegionRoutesNotModified(t *testing.T) {
	h, _ := newTestHandlers(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/rivers/regions/0/0.jpg", nil)
	req.Header.Set("If-None-Match", `"abc123"`)
	rec := httptest.NewRecorder()
	h.HandleRegionRoutes(rec, req)

	if rec.Code != http.StatusNotModified {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotModified)
	}
}

func TestHandleRegionRoutesErrors(t *testing.T) {
	h, _ := newTestHandlers(t, nil)

	tests := []struct {
		name   string
		target string
		want   int
	}{
		{"bad x", "/api/rivers/regions/a/0.jpg", http.StatusBadRequest},
		{"bad z", "/api/rivers/regions/0/b.jpg", http.StatusBadRequest},
		{"format", "/api/rivers/regions/0/0.gif", http.StatusBadRequest},
		{"too deep", "/api/rivers/regions/0/0/0.jpg", http.StatusNotFound},
		{"out of range", "/api/rivers/regions/9999999999/0.jpg", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(h.HandleRegionRoutes, http.MethodGet, tt.target)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestPreviewRateLimit(t *testing.T) {
	h, previews := newTestHandlers(t, &config.Config{PreviewRPS: 0.001})

	first := serve(h.HandleRegionRoutes, http.MethodGet, "/api/rivers/regions/0/0.jpg")
	second := serve(h.HandleRegionRoutes, http.MethodGet, "/api/rivers/regions/0/0.jpg")

	if first.Code != http.StatusOK {
		t.Errorf("first status = %d", first.Code)
	}
	if second.Code != http.StatusTooManyRequests {
		t.Errorf("second status = %d, want %d", second.Code, http.StatusTooManyRequests)
	}
	if previews.calls != 1 {
		t.Errorf("rendered %d times, want 1", previews.calls)
	}
}

func TestHandleStats(t *testing.T) {
	h, _ := newTestHandlers(t, nil)
	serve(h.HandleSample, http.MethodGet, "/api/rivers/sample?x=10&z=10")

	rec := serve(h.HandleStats, http.MethodGet, "/api/rivers/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got struct {
		Cache    struct{ Entries int } `json:"cache"`
		TileSize int                   `json:"tile_size"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Cache.Entries != 4 || got.TileSize != 64 {
		t.Errorf("stats = %+v", got)
	}
}

func TestMiddleware(t *testing.T) {
	h, _ := newTestHandlers(t, &config.Config{AllowedOrigin: "https://example.org"})
	handler := h.CORSMiddleware(h.RequestLoggingMiddleware(http.HandlerFunc(h.HandleHealthz)))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("healthz = %d %q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Error("missing X-Request-Id")
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://example.org" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}

	opt := httptest.NewRecorder()
	handler.ServeHTTP(opt, httptest.NewRequest(http.MethodOptions, "/api/rivers/stats", nil))
	if opt.Code != http.StatusOK {
		t.Errorf("OPTIONS status = %d", opt.Code)
	}
}
