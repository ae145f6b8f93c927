package provider

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/OneBusAway/go-gtfs"

	"busarrival.dkucouncil.org/internal/bus"
	"busarrival.dkucouncil.org/internal/clock"
)

// TownBus reads a GTFS-Realtime TripUpdates feed. The route id of a trip is
// its bus number and the provider's station id is a GTFS stop id.
type TownBus struct {
	upstream
	clock clock.Clock
}

var _ bus.Provider = (*TownBus)(nil)

func NewTownBus(opts Options, c clock.Clock) (*TownBus, error) {
	u, err := newUpstream(opts, "townbus_provider")
	if err != nil {
		return nil, err
	}
	if c == nil {
		c = clock.RealClock{}
	}
	return &TownBus{upstream: u, clock: c}, nil
}

func (p *TownBus) Fetch(ctx context.Context, station bus.Station) ([]bus.Reading, error) {
	stopID, err := p.upstreamID(station)
	if err != nil {
		return nil, err
	}

	body, err := p.get(ctx, nil)
	if err != nil {
		return nil, err
	}

	feed, err := gtfs.ParseRealtime(body, &gtfs.ParseRealtimeOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s feed: %w", p.prefix, err)
	}

	return readingsForStop(feed.Trips, stopID, p.clock.Now()), nil
}

// readingsForStop collects, per route, the seconds until each trip reaches
// stopID. Trips that already passed the stop are ignored.
func readingsForStop(trips []gtfs.Trip, stopID string, now time.Time) []bus.Reading {
	var order []string
	etas := make(map[string][]int)

	for _, trip := range trips {
		routeID := trip.ID.RouteID
		if routeID == "" {
			continue
		}
		for _, update := range trip.StopTimeUpdates {
			if update.StopID == nil || *update.StopID != stopID {
				continue
			}
			at, ok := eventTime(update.Arrival)
			if !ok {
				at, ok = eventTime(update.Departure)
			}
			if !ok || at.Before(now) {
				continue
			}
			if _, seen := etas[routeID]; !seen {
				order = append(order, routeID)
			}
			etas[routeID] = append(etas[routeID], int(at.Sub(now)/time.Second))
			break
		}
	}

	readings := make([]bus.Reading, 0, len(order))
	for _, routeID := range order {
		seconds := etas[routeID]
		slices.Sort(seconds)
		readings = append(readings, bus.NewReading(routeID, seconds...))
	}
	return readings
}

func eventTime(e *gtfs.StopTimeEvent) (time.Time, bool) {
	if e == nil || e.Time == nil || e.Time.IsZero() {
		return time.Time{}, false
	}
	return *e.Time, true
}
