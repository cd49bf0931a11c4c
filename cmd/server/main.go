package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cshum/vipsgen/vips"
	"go.uber.org/zap"

	"rivermap/internal/cache"
	"rivermap/internal/config"
	httphandlers "rivermap/internal/http"
	"rivermap/internal/logger"
	"rivermap/internal/preview"
	"rivermap/internal/regioncache"
	"rivermap/internal/rivergen"
	"rivermap/internal/rivermap"
	"rivermap/internal/tile"
	"rivermap/internal/vipsenc"
	"rivermap/internal/workpool"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync()

	world, err := config.LoadWorld(cfg.WorldConfig)
	if err != nil {
		log.Fatal("Failed to load world settings", zap.Error(err))
	}

	vipsConfig := &vips.Config{
		ConcurrencyLevel: cfg.VipsConcurrency,
		MaxCacheMem:      cfg.VipsMaxCacheMB * 1024 * 1024, // Convert MB to bytes
		MaxCacheFiles:    0,                                // Disable disk cache
		MaxCacheSize:     0,                                // Disable disk cache
		ReportLeaks:      false,
		CacheTrace:       false,
		VectorEnabled:    true,
	}

	vips.SetLogging(func(domain string, level vips.LogLevel, message string) {
		if level >= vips.LogLevelError {
			log.Error("vips", zap.String("domain", domain), zap.Int("level", int(level)), zap.String("message", message))
		} else if level >= vips.LogLevelWarning {
			log.Warn("vips", zap.String("domain", domain), zap.Int("level", int(level)), zap.String("message", message))
		}
	}, vips.LogLevelError)

	vips.Startup(vipsConfig)
	defer vips.Shutdown()

	log.Info("VIPS initialized",
		zap.Int("max_cache_mb", cfg.VipsMaxCacheMB),
		zap.Int("concurrency", cfg.VipsConcurrency),
	)

	pool := workpool.New(cfg.GenWorkers, log.Named("workpool"))
	defer pool.Close()

	log.Info("Starting rivermap server",
		zap.Int("port", cfg.Port),
		zap.Int64("seed", world.Seed),
		zap.Int("tile_size", world.Size()),
		zap.Int("workers", pool.Workers()),
	)

	opts := []rivermap.Option{
		rivermap.WithLogger(log),
		rivermap.WithCacheOptions(
			regioncache.WithTTL(cfg.CacheTTL),
			regioncache.WithSweepInterval(cfg.CacheSweep),
			regioncache.WithTimeout(cfg.GenTimeout),
		),
	}
	if cfg.QueryRadius > 0 {
		opts = append(opts, rivermap.WithQueryRadius(cfg.QueryRadius))
	}
	rivers := rivermap.New(world, rivergen.New(log.Named("rivergen")), pool, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rivers.Run(ctx)

	previewCache, err := cache.NewCache(cfg.PreviewCache, cfg.PreviewCacheDir, cfg.PreviewCacheTiles, log)
	if err != nil {
		log.Fatal("Failed to initialize preview cache", zap.Error(err))
	}
	previews := preview.New(rivers, previewCache, cfg.PreviewSize, log,
		vipsenc.NewJPEGEncoder(82),
		preview.NewWebPEncoder(85),
	)

	handlers := httphandlers.New(cfg, log, rivers, previews)

	mux := http.NewServeMux()

	mux.HandleFunc("/api/rivers/sample", handlers.HandleSample)
	mux.HandleFunc("/api/rivers/tiles", handlers.HandleTiles)
	mux.HandleFunc("/api/rivers/regions/", handlers.HandleRegionRoutes)
	mux.HandleFunc("/api/rivers/stats", handlers.HandleStats)
	mux.HandleFunc("/healthz", handlers.HandleHealthz)

	handler := handlers.CORSMiddleware(handlers.RequestLoggingMiddleware(mux))

	if cfg.WarmupRadius > 0 {
		go warmupRegions(ctx, cfg.WarmupRadius, cfg.WarmupWorkers, rivers, log)
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: handler,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	log.Info("Server started", zap.Int("port", cfg.Port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	cancel()

	log.Info("Server stopped", zap.Any("cache", rivers.Stats()))
}

// warmupRegions generates the regions around the world origin so the first
// samples near spawn don't wait on generation.
func warmupRegions(ctx context.Context, radius int, workerLimit int, rivers *rivermap.RiverMap, log *zap.Logger) {
	log.Info("Starting region warmup", zap.Int("radius", radius))

	if workerLimit <= 0 {
		workerLimit = 1
	}

	workerChan := make(chan struct{}, workerLimit)
	var wg sync.WaitGroup
	start := time.Now()

	for x := -radius; x <= radius; x++ {
		for z := -radius; z <= radius; z++ {
			select {
			case workerChan <- struct{}{}: // Acquire worker slot
			case <-ctx.Done():
				wg.Wait()
				return
			}
			wg.Add(1)

			go func(c tile.Coord) {
				defer wg.Done()
				defer func() { <-workerChan }() // Release worker slot

				if _, err := rivers.Region(c).Wait(ctx); err != nil {
					log.Debug("Warmup region failed", zap.Stringer("tile", c), zap.Error(err))
				}
			}(tile.Coord{X: int32(x), Z: int32(z)})
		}
	}

	wg.Wait()
	log.Info("Region warmup completed", zap.Duration("took", time.Since(start)))
}
