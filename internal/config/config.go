package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"rivermap/internal/rivermap"
)

type Config struct {
	Port              int
	LogLevel          string
	LogFormat         string
	WorldConfig       string
	GenWorkers        int
	GenTimeout        time.Duration
	CacheTTL          time.Duration
	CacheSweep        time.Duration
	QueryRadius       float64
	WarmupRadius      int
	WarmupWorkers     int
	PreviewCache      string
	PreviewCacheTiles int
	PreviewCacheDir   string
	PreviewSize       int
	PreviewRPS        float64
	VipsMaxCacheMB    int
	VipsConcurrency   int
	AllowedOrigin     string
}

func Load() *Config {
	dataDir := getEnv("DATA_DIR", "/data")

	cfg := &Config{
		Port:              getEnvInt("PORT", 8080),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         getEnv("LOG_FORMAT", "json"),
		WorldConfig:       getEnv("WORLD_CONFIG", ""),
		GenWorkers:        getEnvInt("GEN_WORKERS", 0),
		GenTimeout:        getEnvDuration("GEN_TIMEOUT", 0),
		CacheTTL:          getEnvDuration("CACHE_TTL", 120*time.Second),
		CacheSweep:        getEnvDuration("CACHE_SWEEP", 60*time.Second),
		QueryRadius:       getEnvFloat("QUERY_RADIUS", 0),
		WarmupRadius:      getEnvInt("WARMUP_RADIUS", 1),
		WarmupWorkers:     getEnvInt("WARMUP_WORKERS", 4),
		PreviewCache:      getEnv("PREVIEW_CACHE", "memory"),
		PreviewCacheTiles: getEnvInt("PREVIEW_CACHE_TILES", 512),
		PreviewCacheDir:   getEnv("PREVIEW_CACHE_DIR", filepath.Join(dataDir, "previews")),
		PreviewSize:       getEnvInt("PREVIEW_SIZE", 256),
		PreviewRPS:        getEnvFloat("PREVIEW_RPS", 10),
		VipsMaxCacheMB:    getEnvInt("VIPS_MAX_CACHE_MB", 64),
		VipsConcurrency:   getEnvInt("VIPS_CONCURRENCY", 1),
		AllowedOrigin:     getEnv("ALLOWED_ORIGIN", ""),
	}

	return cfg
}

// LoadWorld reads the world settings. Values missing from the YAML file keep
// their defaults, and WORLD_SEED, TILE_SCALE and SAMPLE_TIMEOUT override the
// file.
func LoadWorld(path string) (rivermap.World, error) {
	world := rivermap.DefaultWorld()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return world, fmt.Errorf("failed to read world config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &world); err != nil {
			return world, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
	}

	if v := os.Getenv("WORLD_SEED"); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return world, fmt.Errorf("invalid WORLD_SEED %q: %w", v, err)
		}
		world.Seed = seed
	}
	world.Scale = uint(getEnvInt("TILE_SCALE", int(world.Scale)))
	world.SampleTimeout = getEnvDuration("SAMPLE_TIMEOUT", world.SampleTimeout)

	if err := world.Validate(); err != nil {
		return world, err
	}
	return world, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("90s") or plain seconds ("90").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func (c *Config) IsPreviewCacheEnabled() bool {
	return c.PreviewCache != "disabled"
}
