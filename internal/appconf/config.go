package appconf

import "time"

const (
	DefaultPort            = 4000
	DefaultRateLimit       = 100
	DefaultCacheTTL        = 30 * time.Second
	DefaultRunThreshold    = 3 * time.Minute
	DefaultProviderTimeout = 3 * time.Second
	DefaultTimezone        = "Asia/Seoul"
)

// Provider kinds understood by the provider factory.
const (
	ProviderGGBus   = "ggbus"
	ProviderTownBus = "townbus"
	ProviderShuttle = "shuttle"
)

// Config is the runtime configuration of the server.
type Config struct {
	Port      int
	Env       Environment
	ApiKeys   []string
	Verbose   bool
	RateLimit int

	CacheTTL        time.Duration
	RunThreshold    time.Duration
	ProviderTimeout time.Duration

	StationsFile   string
	ScheduleFile   string
	ScheduleDBPath string
	Timezone       string

	Providers []ProviderConfig
}

// ProviderConfig describes one upstream arrival source.
type ProviderConfig struct {
	Kind              string  `json:"kind" validate:"required,oneof=ggbus townbus shuttle"`
	Prefix            string  `json:"prefix" validate:"required"`
	URL               string  `json:"url" validate:"required,url"`
	AuthHeaderKey     string  `json:"auth-header-key"`
	AuthHeaderValue   string  `json:"auth-header-value"`
	RequestsPerSecond float64 `json:"requests-per-second" validate:"gte=0"`
}

// Location resolves Timezone, falling back to DefaultTimezone when empty.
func (c Config) Location() (*time.Location, error) {
	name := c.Timezone
	if name == "" {
		name = DefaultTimezone
	}
	return time.LoadLocation(name)
}
