// Package config loads service configuration from the environment, with
// optional .env support for local development.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config carries everything cmd/api needs to start.
type Config struct {
	Addr         string // listen address
	PostgresDSN  string // empty selects the in-memory store
	RateBurst    int    // per-IP token bucket burst
	RatePerSec   int    // per-IP sustained requests per second
	MaxBodyBytes int64  // request body cap
}

// Load reads LENDCORE_* variables, after loading a .env file if one is
// present in the working directory.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Addr:         getenv("LENDCORE_ADDR", ":8080"),
		PostgresDSN:  os.Getenv("LENDCORE_PG_DSN"),
		RateBurst:    20,
		RatePerSec:   10,
		MaxBodyBytes: 1 << 20,
	}

	var err error
	if cfg.RateBurst, err = getenvInt("LENDCORE_RATE_BURST", cfg.RateBurst); err != nil {
		return Config{}, err
	}
	if cfg.RatePerSec, err = getenvInt("LENDCORE_RATE_PER_SEC", cfg.RatePerSec); err != nil {
		return Config{}, err
	}
	body, err := getenvInt("LENDCORE_MAX_BODY_BYTES", int(cfg.MaxBodyBytes))
	if err != nil {
		return Config{}, err
	}
	cfg.MaxBodyBytes = int64(body)

	if cfg.RateBurst <= 0 || cfg.RatePerSec <= 0 {
		return Config{}, fmt.Errorf("rate limit settings must be positive")
	}
	if cfg.MaxBodyBytes <= 0 {
		return Config{}, fmt.Errorf("LENDCORE_MAX_BODY_BYTES must be positive")
	}
	return cfg, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
