package bus

import (
	"context"
	"errors"
	"time"
)

// ErrUnknownStation is returned for a station the directory does not know.
var ErrUnknownStation = errors.New("unknown bus station")

// Provider fetches raw readings for a station from one upstream source.
type Provider interface {
	// Prefix is a short, stable tag for the source, e.g. "GG_". It is used to
	// tell apart providers whose bus numbering collides and is never shown to
	// clients.
	Prefix() string
	Fetch(ctx context.Context, station Station) ([]Reading, error)
}

// Estimator predicts the time until the next arrival of a route from its
// timetable. ok is false, with a nil error, when the route has no further
// service today. A non-nil error means no estimate is available.
type Estimator interface {
	Estimate(ctx context.Context, busNo string, station Station, now time.Time) (remaining time.Duration, ok bool, err error)
}

// StationInfo is the aggregation configuration of one station.
type StationInfo struct {
	ID Station
	// Routes is the allow-list. An entry is either a bare bus number, accepted
	// from any provider, or a provider prefix followed by a bus number, accepted
	// only from that provider.
	Routes []string
	// Providers lists the prefixes of the providers serving the station.
	// Empty means every configured provider.
	Providers []string
}

// StationDirectory resolves station configuration.
type StationDirectory interface {
	StationInfo(id Station) (StationInfo, bool)
}
