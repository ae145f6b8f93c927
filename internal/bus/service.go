package bus

import (
	"context"

	"busarrival.dkucouncil.org/internal/clock"
)

// QueryService is the read side used by request handlers.
type QueryService struct {
	cache *ArrivalCache
	clock clock.Clock
}

// NewQueryService creates a QueryService reading through cache.
func NewQueryService(cache *ArrivalCache, c clock.Clock) *QueryService {
	if c == nil {
		c = clock.RealClock{}
	}
	return &QueryService{cache: cache, clock: c}
}

// ListArrivals returns the station's arrivals as of now. CapturedAt is the
// capture time of the underlying snapshot; ETAs are decayed to now.
func (s *QueryService) ListArrivals(ctx context.Context, station Station) (Snapshot, error) {
	now := s.clock.Now()
	snap, err := s.cache.GetOrRefresh(ctx, station, now)
	if err != nil {
		return Snapshot{}, err
	}
	return Decay(snap, now), nil
}

// Cache exposes the underlying cache for diagnostics.
func (s *QueryService) Cache() *ArrivalCache {
	return s.cache
}
