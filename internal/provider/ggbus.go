package provider

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"busarrival.dkucouncil.org/internal/bus"
)

// GGBus reads the Gyeonggi-style XML arrival list, which reports the next two
// arrivals of each route in whole minutes.
type GGBus struct {
	upstream
}

var _ bus.Provider = (*GGBus)(nil)

func NewGGBus(opts Options) (*GGBus, error) {
	u, err := newUpstream(opts, "ggbus_provider")
	if err != nil {
		return nil, err
	}
	return &GGBus{upstream: u}, nil
}

type ggResponse struct {
	XMLName xml.Name `xml:"response"`
	Header  struct {
		ResultCode    string `xml:"resultCode"`
		ResultMessage string `xml:"resultMessage"`
	} `xml:"msgHeader"`
	Arrivals []ggArrival `xml:"msgBody>busArrivalList"`
}

type ggArrival struct {
	RouteName    string `xml:"routeName"`
	PredictTime1 string `xml:"predictTime1"`
	PredictTime2 string `xml:"predictTime2"`
}

const (
	ggResultOK       = "0"
	ggResultNoResult = "4"
)

func (p *GGBus) Fetch(ctx context.Context, station bus.Station) ([]bus.Reading, error) {
	stationID, err := p.upstreamID(station)
	if err != nil {
		return nil, err
	}

	body, err := p.get(ctx, url.Values{"stationId": {stationID}})
	if err != nil {
		return nil, err
	}

	var resp ggResponse
	if err := xml.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse %s response: %w", p.prefix, err)
	}
	switch resp.Header.ResultCode {
	case ggResultOK, "":
	case ggResultNoResult:
		return []bus.Reading{}, nil
	default:
		return nil, fmt.Errorf("%s upstream error %s: %s", p.prefix, resp.Header.ResultCode, resp.Header.ResultMessage)
	}

	readings := make([]bus.Reading, 0, len(resp.Arrivals))
	for _, a := range resp.Arrivals {
		busNo := strings.TrimSpace(a.RouteName)
		first, ok := parseMinutes(a.PredictTime1)
		if busNo == "" || !ok {
			continue
		}
		if second, ok := parseMinutes(a.PredictTime2); ok {
			readings = append(readings, bus.NewReading(busNo, first, second))
		} else {
			readings = append(readings, bus.NewReading(busNo, first))
		}
	}
	return readings, nil
}

// parseMinutes converts a minute count into seconds. Blank means no arrival.
func parseMinutes(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, false
	}
	return n * 60, true
}
