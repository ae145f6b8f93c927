package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"slices"

	"busarrival.dkucouncil.org/internal/bus"
)

// Shuttle reads the campus shuttle tracker, which reports ETAs in seconds.
type Shuttle struct {
	upstream
}

var _ bus.Provider = (*Shuttle)(nil)

func NewShuttle(opts Options) (*Shuttle, error) {
	u, err := newUpstream(opts, "shuttle_provider")
	if err != nil {
		return nil, err
	}
	return &Shuttle{upstream: u}, nil
}

type shuttleResponse struct {
	Arrivals []struct {
		BusNo      string `json:"busNo"`
		EtaSeconds []int  `json:"etaSeconds"`
	} `json:"arrivals"`
}

func (p *Shuttle) Fetch(ctx context.Context, station bus.Station) ([]bus.Reading, error) {
	stopID, err := p.upstreamID(station)
	if err != nil {
		return nil, err
	}

	body, err := p.get(ctx, url.Values{"stop": {stopID}})
	if err != nil {
		return nil, err
	}

	var resp shuttleResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse %s response: %w", p.prefix, err)
	}

	readings := make([]bus.Reading, 0, len(resp.Arrivals))
	for _, a := range resp.Arrivals {
		if a.BusNo == "" || len(a.EtaSeconds) == 0 {
			continue
		}
		etas := slices.Clone(a.EtaSeconds)
		slices.Sort(etas)
		readings = append(readings, bus.NewReading(a.BusNo, etas...))
	}
	return readings, nil
}
