// Package reliability stresses stackz under hostile usage and saturation.
//
// Tests run only when STACKZ_RELIABILITY_LEVEL is set:
//
//	basic:  CI-safe validation
//	stress: production-level pressure
package reliability

import (
	"os"
	"strconv"
	"testing"
	"time"
)

// Config holds settings for reliability runs.
type Config struct {
	Level         string
	Duration      time.Duration
	MaxGoroutines int
	// FailureThreshold is the tolerated share of broken lineages (0.0-1.0).
	FailureThreshold float64
}

func loadConfig() Config {
	return Config{
		Level:            os.Getenv("STACKZ_RELIABILITY_LEVEL"),
		Duration:         parseDuration(os.Getenv("STACKZ_RELIABILITY_DURATION"), 5*time.Second),
		MaxGoroutines:    parseInt(os.Getenv("STACKZ_RELIABILITY_MAX_GOROUTINES"), 100),
		FailureThreshold: parseFloat(os.Getenv("STACKZ_RELIABILITY_FAILURE_THRESHOLD"), 0.0),
	}
}

// requireLevel skips t unless the configured level is enabled. Stress runs
// include the basic suite.
func requireLevel(t *testing.T, level string) Config {
	t.Helper()
	cfg := loadConfig()
	switch {
	case cfg.Level == "":
		t.Skip("STACKZ_RELIABILITY_LEVEL not set, skipping reliability tests")
	case level == "stress" && cfg.Level != "stress":
		t.Skip("stress level not enabled")
	}
	return cfg
}

// scale picks the basic or stress value for the configured level.
func (c Config) scale(basic, stress int) int {
	if c.Level == "stress" {
		return stress
	}
	return basic
}

func parseInt(s string, def int) int {
	if v, err := strconv.Atoi(s); err == nil && v > 0 {
		return v
	}
	return def
}

func parseFloat(s string, def float64) float64 {
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v
	}
	return def
}

func parseDuration(s string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}
