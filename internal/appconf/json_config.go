package appconf

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// JSONConfig is the on-disk shape of the server configuration.
type JSONConfig struct {
	Port      int      `json:"port" validate:"gte=0,lte=65535"`
	Env       string   `json:"env" validate:"omitempty,oneof=development test production"`
	ApiKeys   []string `json:"api-keys"`
	Verbose   bool     `json:"verbose"`
	RateLimit int      `json:"rate-limit" validate:"gte=0"`

	CacheTTLSeconds       int `json:"cache-ttl-seconds" validate:"gte=0"`
	RunThresholdSeconds   int `json:"run-threshold-seconds" validate:"gte=0"`
	ProviderTimeoutMillis int `json:"provider-timeout-ms" validate:"gte=0"`

	StationsFile   string `json:"stations-file" validate:"required"`
	ScheduleFile   string `json:"schedule-file"`
	ScheduleDBPath string `json:"schedule-db-path"`
	Timezone       string `json:"timezone"`

	Providers []ProviderConfig `json:"providers" validate:"dive"`
}

// LoadFromFile reads and validates a JSON config file.
func LoadFromFile(path string) (*JSONConfig, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to stat config file %s: %w", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg JSONConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse JSON config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks field constraints and that provider prefixes are unique.
func (c *JSONConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	seen := make(map[string]bool, len(c.Providers))
	for _, p := range c.Providers {
		if seen[p.Prefix] {
			return fmt.Errorf("duplicate provider prefix %q", p.Prefix)
		}
		seen[p.Prefix] = true
	}
	return nil
}

// ToAppConfig converts the file representation into a Config, filling
// defaults for zero values.
func (c *JSONConfig) ToAppConfig() Config {
	cfg := Config{
		Port:            c.Port,
		Env:             EnvFlagToEnvironment(c.Env),
		ApiKeys:         c.ApiKeys,
		Verbose:         c.Verbose,
		RateLimit:       c.RateLimit,
		CacheTTL:        time.Duration(c.CacheTTLSeconds) * time.Second,
		RunThreshold:    time.Duration(c.RunThresholdSeconds) * time.Second,
		ProviderTimeout: time.Duration(c.ProviderTimeoutMillis) * time.Millisecond,
		StationsFile:    c.StationsFile,
		ScheduleFile:    c.ScheduleFile,
		ScheduleDBPath:  c.ScheduleDBPath,
		Timezone:        c.Timezone,
		Providers:       make([]ProviderConfig, len(c.Providers)),
	}
	for i, p := range c.Providers {
		p.AuthHeaderValue = os.ExpandEnv(p.AuthHeaderValue)
		cfg.Providers[i] = p
	}
	if cfg.ApiKeys == nil {
		cfg.ApiKeys = []string{}
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = DefaultRateLimit
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.RunThreshold == 0 {
		cfg.RunThreshold = DefaultRunThreshold
	}
	if cfg.ProviderTimeout == 0 {
		cfg.ProviderTimeout = DefaultProviderTimeout
	}
	if cfg.ScheduleDBPath == "" {
		cfg.ScheduleDBPath = ":memory:"
	}
	if cfg.Timezone == "" {
		cfg.Timezone = DefaultTimezone
	}
	return cfg
}

// LoadDotEnv loads variables from the given .env files into the process
// environment. Missing files are ignored; variables already set win.
func LoadDotEnv(paths ...string) error {
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
}

// ApplyEnvOverrides overrides cfg with BUS_PORT, BUS_ENV, BUS_RATE_LIMIT and
// BUS_API_KEYS when they are set.
func ApplyEnvOverrides(cfg *Config, getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}
	if v := getenv("BUS_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port < 0 || port > 65535 {
			return fmt.Errorf("invalid BUS_PORT %q", v)
		}
		cfg.Port = port
	}
	if v := getenv("BUS_ENV"); v != "" {
		cfg.Env = EnvFlagToEnvironment(v)
	}
	if v := getenv("BUS_RATE_LIMIT"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			return fmt.Errorf("invalid BUS_RATE_LIMIT %q", v)
		}
		cfg.RateLimit = limit
	}
	if v := getenv("BUS_API_KEYS"); v != "" {
		cfg.ApiKeys = ParseAPIKeys(v)
	}
	return nil
}

// ParseAPIKeys splits a comma separated list, dropping blanks.
func ParseAPIKeys(s string) []string {
	keys := []string{}
	for _, k := range strings.Split(s, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}
