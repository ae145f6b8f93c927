package bus

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"busarrival.dkucouncil.org/internal/metrics"
)

// DefaultCacheTTL bounds how stale a served snapshot can be.
const DefaultCacheTTL = 30 * time.Second

// Refresher produces a fresh arrival list for a station.
type Refresher interface {
	Aggregate(ctx context.Context, station Station, now time.Time) ([]Arrival, error)
}

// ArrivalCache holds one snapshot per station. A snapshot is served while
// now - CapturedAt < TTL; after that the next caller refreshes it. Concurrent
// callers that observe the same expired station share a single refresh.
type ArrivalCache struct {
	ttl       time.Duration
	refresher Refresher
	logger    *slog.Logger
	metrics   *metrics.Metrics

	mu    sync.RWMutex
	slots map[Station]Snapshot
	group singleflight.Group
}

// NewArrivalCache creates an ArrivalCache. A non-positive ttl selects DefaultCacheTTL.
func NewArrivalCache(refresher Refresher, ttl time.Duration, logger *slog.Logger, m *metrics.Metrics) *ArrivalCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ArrivalCache{
		ttl:       ttl,
		refresher: refresher,
		logger:    logger.With(slog.String("component", "arrival_cache")),
		metrics:   m,
		slots:     make(map[Station]Snapshot),
	}
}

// TTL returns the snapshot time-to-live.
func (c *ArrivalCache) TTL() time.Duration {
	return c.ttl
}

// GetOrRefresh returns the station's snapshot, refreshing it first when it is
// missing or expired. The returned snapshot is a copy.
func (c *ArrivalCache) GetOrRefresh(ctx context.Context, station Station, now time.Time) (Snapshot, error) {
	if snap, ok := c.fresh(station, now); ok {
		c.metrics.ObserveCacheHit(string(station))
		return snap.Clone(), nil
	}

	// The refresh outlives any single caller's cancellation because other
	// callers may be waiting on it; provider timeouts still bound it.
	refreshCtx := context.WithoutCancel(ctx)
	v, err, _ := c.group.Do(string(station), func() (any, error) {
		// Another flight may have stored a snapshot while this caller waited.
		if snap, ok := c.fresh(station, now); ok {
			return snap, nil
		}

		start := time.Now()
		arrivals, err := c.refresher.Aggregate(refreshCtx, station, now)
		if err != nil {
			return Snapshot{}, err
		}
		snap := Snapshot{CapturedAt: now, Arrivals: arrivals}

		c.mu.Lock()
		c.slots[station] = snap
		c.mu.Unlock()

		c.metrics.ObserveRefresh(string(station), time.Since(start), len(arrivals))
		c.logger.Debug("refreshed station snapshot",
			slog.String("station", string(station)),
			slog.Int("arrivals", len(arrivals)))
		return snap, nil
	})
	if err != nil {
		return Snapshot{}, err
	}
	return v.(Snapshot).Clone(), nil
}

// Peek returns the station's current snapshot, fresh or not, without refreshing.
func (c *ArrivalCache) Peek(station Station) (Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap, ok := c.slots[station]
	if !ok {
		return Snapshot{}, false
	}
	return snap.Clone(), true
}

// Snapshots returns a copy of every held snapshot.
func (c *ArrivalCache) Snapshots() map[Station]Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[Station]Snapshot, len(c.slots))
	for station, snap := range c.slots {
		out[station] = snap.Clone()
	}
	return out
}

func (c *ArrivalCache) fresh(station Station, now time.Time) (Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap, ok := c.slots[station]
	if !ok || now.Sub(snap.CapturedAt) >= c.ttl {
		return Snapshot{}, false
	}
	return snap, true
}
