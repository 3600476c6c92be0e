// Package config loads pipeline settings from the environment, with an
// optional .env file for local runs.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Gemini layout oracle
	GeminiAPIKey     string
	GeminiModel      string
	APIRetryAttempts int

	// Directory layout
	InputDir  string
	OutputDir string
	ConfigDir string
	LogsDir   string
	ReviewDir string

	// Annotation
	MinLinkConfidence float64
	DebugRects        bool

	// Profiling knobs; zero means the profiler picks a document-sized default.
	ClusterScanLimit int
	TopoScanLimit    int

	// Typographic page-vector thresholds, as multiples of the body size.
	VectorGiantThreshold  float64
	VectorLargeThreshold  float64
	VectorMediumThreshold float64
	ClusterDistance       float64
}

func Load() Config {
	// Missing .env is the normal case outside local development.
	_ = godotenv.Load()

	cfg := Config{
		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		GeminiModel:      envOr("GEMINI_MODEL", "gemini-2.0-flash"),
		APIRetryAttempts: envInt("API_RETRY_ATTEMPTS", 1),

		InputDir:  envOr("INPUT_DIR", "input"),
		OutputDir: envOr("OUTPUT_DIR", "output"),
		ConfigDir: envOr("CONFIG_DIR", "config"),
		LogsDir:   envOr("LOGS_DIR", "logs"),
		ReviewDir: envOr("REVIEW_DIR", filepath.Join("config", "manual_review")),

		MinLinkConfidence: envFloat("MIN_LINK_CONFIDENCE", 0.75),
		DebugRects:        envBool("DEBUG_RECTS", false),

		ClusterScanLimit: envInt("CLUSTER_SCAN_LIMIT", 0),
		TopoScanLimit:    envInt("TOPO_SCAN_LIMIT", 0),

		VectorGiantThreshold:  envFloat("VECTOR_GIANT_THRESHOLD", 3.0),
		VectorLargeThreshold:  envFloat("VECTOR_LARGE_THRESHOLD", 1.8),
		VectorMediumThreshold: envFloat("VECTOR_MEDIUM_THRESHOLD", 1.1),
		ClusterDistance:       envFloat("CLUSTER_DISTANCE", 0.10),
	}

	if cfg.APIRetryAttempts < 0 {
		cfg.APIRetryAttempts = 1
	}
	if cfg.MinLinkConfidence < 0 || cfg.MinLinkConfidence > 1 {
		cfg.MinLinkConfidence = 0.75
	}
	if cfg.ClusterDistance <= 0 {
		cfg.ClusterDistance = 0.10
	}

	return cfg
}

// RequireAPIKey validates the Gemini credential for modes that consult the
// oracle; offline modes never call it.
func (c Config) RequireAPIKey() error {
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required for this mode")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
