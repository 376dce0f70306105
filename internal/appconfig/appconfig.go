// Package appconfig loads the engine's runtime configuration: the
// canonical Go tool's environment variables (GOMODCACHE, GOPROXY) plus
// the timeouts, cache locations, and worker-pool width every component
// needs.
package appconfig

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config aggregates every environment-derived setting the engine reads,
// grouped by concern.
type Config struct {
	Go      GoConfig
	Cache   CacheConfig
	Verify  VerifyConfig
	Network NetworkConfig
	Logging LoggingConfig
}

// GoConfig captures the environment variables the canonical Go tool reads.
type GoConfig struct {
	// ModCache is GOMODCACHE, overridden per-run to a private location so
	// discovery runs never pollute (or depend on) the ambient module cache.
	ModCache string
	// Proxy is GOPROXY, defaulted to the public proxy if unset.
	Proxy string
}

// CacheConfig controls where the on-disk JSON caches live.
type CacheConfig struct {
	Dir string
}

// VerifyConfig controls commit-verification behavior.
type VerifyConfig struct {
	// MaxAge is how long a verification cache entry is trusted before the
	// commit is re-tested (default: 30 days).
	MaxAge time.Duration
	// Workers is the bounded thread-pool width for verification (default
	// 10, 0 means sequential).
	Workers int
}

// NetworkConfig controls per-command timeouts.
type NetworkConfig struct {
	LsRemote  time.Duration
	Fetch     time.Duration
	Unshallow time.Duration
	Clone     time.Duration
	Download  time.Duration
	Log       time.Duration
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level  string
	Format string
}

const publicProxy = "https://proxy.golang.org"

// Load reads the process environment and returns a fully defaulted Config.
// It never fails: every field has a safe fallback, degrading rather
// than aborting.
func Load() *Config {
	cfg := &Config{
		Go: GoConfig{
			ModCache: envOr("GOMODCACHE", defaultModCache()),
			Proxy:    envOr("GOPROXY", publicProxy),
		},
		Cache: CacheConfig{
			Dir: envOr("MODVCS_CACHE_DIR", defaultCacheDir()),
		},
		Verify: VerifyConfig{
			MaxAge:  envDurationDaysOr("MODVCS_VERIFY_MAX_AGE_DAYS", 30),
			Workers: envIntOr("MODVCS_WORKERS", 10),
		},
		Network: NetworkConfig{
			LsRemote:  envSecondsOr("MODVCS_TIMEOUT_LSREMOTE", 90),
			Fetch:     envSecondsOr("MODVCS_TIMEOUT_FETCH", 90),
			Unshallow: envSecondsOr("MODVCS_TIMEOUT_UNSHALLOW", 450),
			Clone:     envSecondsOr("MODVCS_TIMEOUT_CLONE", 300),
			Download:  envSecondsOr("MODVCS_TIMEOUT_DOWNLOAD", 180),
			Log:       envSecondsOr("MODVCS_TIMEOUT_LOG", 30),
		},
		Logging: LoggingConfig{
			Level:  envOr("MODVCS_LOG_LEVEL", "info"),
			Format: envOr("MODVCS_LOG_FORMAT", "text"),
		},
	}
	return cfg
}

// GitEnv returns the environment entries every spawned git process must
// carry so a prompt for credentials never blocks a run.
func GitEnv() []string {
	return []string{
		"GIT_TERMINAL_PROMPT=0",
		"GIT_ASKPASS=true",
	}
}

func defaultModCache() string {
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, "modvcs", "gomodcache")
}

func defaultCacheDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, "modvcs", "caches")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envSecondsOr(key string, fallbackSeconds int) time.Duration {
	seconds := envIntOr(key, fallbackSeconds)
	return time.Duration(seconds) * time.Second
}

func envDurationDaysOr(key string, fallbackDays int) time.Duration {
	days := envIntOr(key, fallbackDays)
	return time.Duration(days) * 24 * time.Hour
}
