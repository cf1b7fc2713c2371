package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Provider formats understood by the metadata client
const (
	ProviderFormatPanoids = "panoids"
	ProviderFormatGoogle  = "google"
)

// Config 应用配置
type Config struct {
	// Pipeline files
	DataDir      string
	BoundaryPath string
	GridPath     string
	MetadataPath string
	CleanedPath  string
	SummaryPath  string
	TagsPath     string
	OSMDir       string
	ReportPath   string
	GeoJSONPath  string

	// Grid
	GridSpacingM   float64 // Lattice spacing
	CellHalfWidthM float64 // Half-width of the square footprint used for OSM joins

	// Fetch
	BatchSize  int // Grid points with results per flush
	FetchLimit int // 0 = all grid points

	// Provider
	ProviderFormat  string
	ProviderURL     string
	ProviderAPIKey  string
	ProviderRadiusM int
	ProviderQPS     float64 // 0 = unthrottled
	ProviderTimeout time.Duration

	// Results store and API
	DBPath    string // Empty disables SQLite persistence
	Port      string
	JWTSecret string // Empty disables bearer auth

	APIRateLimit float64 // Requests per second per client IP, 0 = unlimited
	APIRateBurst int
}

// Load 加载配置
func Load() *Config {
	dataDir := getEnv("SVI_DATA_DIR", "./data")
	results := filepath.Join(dataDir, "results")

	return &Config{
		DataDir:      dataDir,
		BoundaryPath: getEnv("SVI_BOUNDARY_PATH", filepath.Join(dataDir, "boundary", "boundary.geojson")),
		GridPath:     getEnv("SVI_GRID_PATH", filepath.Join(results, "grid_20m.csv")),
		MetadataPath: getEnv("SVI_METADATA_PATH", filepath.Join(results, "streetview_metadata_grid_20m.csv")),
		CleanedPath:  getEnv("SVI_CLEANED_PATH", filepath.Join(results, "streetview_metadata_grid_20m_cleaned.csv")),
		SummaryPath:  getEnv("SVI_SUMMARY_PATH", filepath.Join(results, "grid_temporal_summary.csv")),
		TagsPath:     getEnv("SVI_TAGS_PATH", filepath.Join(results, "grid_with_osm_tags_roads.csv")),
		OSMDir:       getEnv("SVI_OSM_DIR", filepath.Join(dataDir, "osm")),
		ReportPath:   getEnv("SVI_REPORT_PATH", filepath.Join(results, "coverage_report.json")),
		GeoJSONPath:  getEnv("SVI_GEOJSON_PATH", filepath.Join(results, "grid_coverage.geojson")),

		GridSpacingM:   getEnvFloat("SVI_GRID_SPACING_M", 20),
		CellHalfWidthM: getEnvFloat("SVI_CELL_HALF_WIDTH_M", 10),

		BatchSize:  getEnvInt("SVI_BATCH_SIZE", 50),
		FetchLimit: getEnvInt("SVI_FETCH_LIMIT", 0),

		ProviderFormat:  getEnv("SVI_PROVIDER_FORMAT", ProviderFormatPanoids),
		ProviderURL:     os.Getenv("SVI_PROVIDER_URL"),
		ProviderAPIKey:  os.Getenv("SVI_PROVIDER_API_KEY"),
		ProviderRadiusM: getEnvInt("SVI_PROVIDER_RADIUS_M", 0),
		ProviderQPS:     getEnvFloat("SVI_PROVIDER_QPS", 5),
		ProviderTimeout: getEnvDuration("SVI_PROVIDER_TIMEOUT", 30*time.Second),

		DBPath:    os.Getenv("DB_PATH"),
		Port:      getEnv("PORT", ":8080"),
		JWTSecret: os.Getenv("JWT_SECRET"),

		APIRateLimit: getEnvFloat("API_RATE_LIMIT", 20),
		APIRateBurst: getEnvInt("API_RATE_BURST", 40),
	}
}

// Validate checks that numeric settings are usable
func (c *Config) Validate() error {
	if c.GridSpacingM <= 0 {
		return fmt.Errorf("SVI_GRID_SPACING_M must be positive, got %v", c.GridSpacingM)
	}
	if c.CellHalfWidthM <= 0 {
		return fmt.Errorf("SVI_CELL_HALF_WIDTH_M must be positive, got %v", c.CellHalfWidthM)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("SVI_BATCH_SIZE must be positive, got %d", c.BatchSize)
	}
	if c.FetchLimit < 0 {
		return fmt.Errorf("SVI_FETCH_LIMIT must not be negative, got %d", c.FetchLimit)
	}
	if c.ProviderQPS < 0 {
		return fmt.Errorf("SVI_PROVIDER_QPS must not be negative, got %v", c.ProviderQPS)
	}
	if c.APIRateLimit < 0 {
		return fmt.Errorf("API_RATE_LIMIT must not be negative, got %v", c.APIRateLimit)
	}
	switch c.ProviderFormat {
	case ProviderFormatPanoids, ProviderFormatGoogle:
	default:
		return fmt.Errorf("unknown SVI_PROVIDER_FORMAT %q", c.ProviderFormat)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
