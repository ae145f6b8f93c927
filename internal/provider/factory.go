package provider

import (
	"fmt"
	"log/slog"
	"net/http"

	"busarrival.dkucouncil.org/internal/appconf"
	"busarrival.dkucouncil.org/internal/bus"
	"busarrival.dkucouncil.org/internal/clock"
)

// StationMapper supplies the upstream station ids of one provider prefix.
type StationMapper interface {
	UpstreamIDs(prefix string) map[bus.Station]string
}

// FromConfig builds one adapter per configured provider, in configuration
// order, sharing client.
func FromConfig(configs []appconf.ProviderConfig, mapper StationMapper, client *http.Client, c clock.Clock, logger *slog.Logger) ([]bus.Provider, error) {
	providers := make([]bus.Provider, 0, len(configs))
	for _, cfg := range configs {
		opts := Options{
			Prefix:            cfg.Prefix,
			BaseURL:           cfg.URL,
			Stations:          mapper.UpstreamIDs(cfg.Prefix),
			Client:            client,
			RequestsPerSecond: cfg.RequestsPerSecond,
			Logger:            logger,
		}
		if cfg.AuthHeaderKey != "" && cfg.AuthHeaderValue != "" {
			opts.Headers = map[string]string{cfg.AuthHeaderKey: cfg.AuthHeaderValue}
		}

		var (
			p   bus.Provider
			err error
		)
		switch cfg.Kind {
		case appconf.ProviderGGBus:
			p, err = NewGGBus(opts)
		case appconf.ProviderTownBus:
			p, err = NewTownBus(opts, c)
		case appconf.ProviderShuttle:
			p, err = NewShuttle(opts)
		default:
			err = fmt.Errorf("unknown provider kind %q", cfg.Kind)
		}
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", cfg.Prefix, err)
		}
		providers = append(providers, p)
	}
	return providers, nil
}
