// Package config loads server settings from an optional YAML file with
// environment overrides. Environment always wins so container deploys can
// tweak a single knob without shipping a new file.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Optimizer holds server-wide solver defaults. Per-tenant config and
// per-request fields override these at run time.
type Optimizer struct {
	CostPerMile      float64 `yaml:"cost_per_mile"`
	IncludeReturnLeg bool    `yaml:"include_return_leg"`
	MoveBudget       int     `yaml:"move_budget"`
	TimeBudgetMs     int     `yaml:"time_budget_ms"`
	DistanceWeight   float64 `yaml:"distance_weight"`
	TimeWeight       float64 `yaml:"time_weight"`
	FallbackSpeedMph float64 `yaml:"fallback_speed_mph"`
	PrefetchWorkers  int     `yaml:"prefetch_workers"`
}

type Config struct {
	Port        string    `yaml:"port"`
	DatabaseURL string    `yaml:"database_url"`
	RedisURL    string    `yaml:"redis_url"`
	OSRMURL     string    `yaml:"osrm_url"`
	RateRPS     float64   `yaml:"rate_rps"`
	RateBurst   int       `yaml:"rate_burst"`
	Optimizer   Optimizer `yaml:"optimizer"`
}

// Load reads CONFIG_FILE (if set) and applies environment overrides.
func Load() (Config, error) {
	var cfg Config
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
	}
	applyEnv(&cfg)
	cfg.applyDefaults()
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}
	if v := os.Getenv("OSRM_URL"); v != "" {
		cfg.OSRMURL = v
	}
	if v := os.Getenv("RATE_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RateRPS = f
		}
	}
	if v := os.Getenv("RATE_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateBurst = n
		}
	}
	envFloat("OPT_COST_PER_MILE", &cfg.Optimizer.CostPerMile)
	envFloat("OPT_DISTANCE_WEIGHT", &cfg.Optimizer.DistanceWeight)
	envFloat("OPT_TIME_WEIGHT", &cfg.Optimizer.TimeWeight)
	envFloat("OPT_FALLBACK_SPEED_MPH", &cfg.Optimizer.FallbackSpeedMph)
	envInt("OPT_MOVE_BUDGET", &cfg.Optimizer.MoveBudget)
	envInt("OPT_TIME_BUDGET_MS", &cfg.Optimizer.TimeBudgetMs)
	envInt("OPT_PREFETCH_WORKERS", &cfg.Optimizer.PrefetchWorkers)
	if v := os.Getenv("OPT_INCLUDE_RETURN_LEG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Optimizer.IncludeReturnLeg = b
		}
	}
}

func envFloat(name string, dst *float64) {
	if v := os.Getenv(name); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func envInt(name string, dst *int) {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Port == "" {
		c.Port = "8080"
	}
	if c.RateRPS <= 0 {
		c.RateRPS = 50
	}
	if c.RateBurst <= 0 {
		c.RateBurst = 100
	}
}

// Addr returns the listen address for the HTTP server.
func (c Config) Addr() string { return ":" + c.Port }
