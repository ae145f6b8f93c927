// Package stations loads the fixed set of bus stations served by the
// aggregator: their route allow-lists, the upstream station id each provider
// uses for them, and their location for nearby lookups.
package stations

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/tidwall/rtree"
	"gopkg.in/yaml.v3"

	"busarrival.dkucouncil.org/internal/bus"
)

// Station is one configured stop.
type Station struct {
	ID   string  `yaml:"id" json:"id" validate:"required"`
	Name string  `yaml:"name" json:"name" validate:"required"`
	Lat  float64 `yaml:"lat" json:"lat" validate:"gte=-90,lte=90"`
	Lon  float64 `yaml:"lon" json:"lon" validate:"gte=-180,lte=180"`
	// Routes is the allow-list. See bus.StationInfo.Routes.
	Routes []string `yaml:"routes" json:"routes" validate:"required,min=1,dive,required"`
	// Providers maps a provider prefix to the id that provider uses for this stop.
	Providers map[string]string `yaml:"providers" json:"-" validate:"omitempty,dive,keys,required,endkeys,required"`
}

type file struct {
	Stations []Station `yaml:"stations" validate:"required,min=1,dive"`
}

// Registry is an immutable, indexed set of stations.
type Registry struct {
	stations []Station
	byID     map[string]int
	index    rtree.RTreeG[int]
}

// LoadFile reads and validates a stations YAML file.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading stations file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates stations YAML.
func Parse(data []byte) (*Registry, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing stations file: %w", err)
	}
	if err := validator.New().Struct(f); err != nil {
		return nil, fmt.Errorf("invalid stations file: %w", err)
	}
	return New(f.Stations)
}

// New builds a Registry. Station ids must be unique.
func New(list []Station) (*Registry, error) {
	r := &Registry{
		stations: make([]Station, 0, len(list)),
		byID:     make(map[string]int, len(list)),
	}
	for _, s := range list {
		if s.ID == "" {
			return nil, errors.New("station without id")
		}
		if _, dup := r.byID[s.ID]; dup {
			return nil, fmt.Errorf("duplicate station id %q", s.ID)
		}
		i := len(r.stations)
		r.stations = append(r.stations, s)
		r.byID[s.ID] = i
		point := [2]float64{s.Lon, s.Lat}
		r.index.Insert(point, point, i)
	}
	return r, nil
}

// StationInfo implements bus.StationDirectory.
func (r *Registry) StationInfo(id bus.Station) (bus.StationInfo, bool) {
	s, ok := r.Lookup(string(id))
	if !ok {
		return bus.StationInfo{}, false
	}
	prefixes := make([]string, 0, len(s.Providers))
	for prefix := range s.Providers {
		prefixes = append(prefixes, prefix)
	}
	sort.Strings(prefixes)
	return bus.StationInfo{
		ID:        id,
		Routes:    slices.Clone(s.Routes),
		Providers: prefixes,
	}, true
}

// Lookup returns the station with the given id.
func (r *Registry) Lookup(id string) (Station, bool) {
	i, ok := r.byID[id]
	if !ok {
		return Station{}, false
	}
	return r.stations[i], true
}

// All returns every station in file order.
func (r *Registry) All() []Station {
	return slices.Clone(r.stations)
}

// UpstreamIDs returns, for one provider prefix, the provider's own id of every
// station it serves.
func (r *Registry) UpstreamIDs(prefix string) map[bus.Station]string {
	out := make(map[bus.Station]string)
	for _, s := range r.stations {
		if id, ok := s.Providers[prefix]; ok {
			out[bus.Station(s.ID)] = id
		}
	}
	return out
}

// NearbyStation is a station with its distance from a query point.
type NearbyStation struct {
	Station
	DistanceMeters float64 `json:"distanceMeters"`
}

// Nearby returns stations within radius meters of (lat, lon), closest first.
// limit <= 0 means no limit.
func (r *Registry) Nearby(lat, lon, radius float64, limit int) []NearbyStation {
	lo, hi := boundingBox(lat, lon, radius)
	var out []NearbyStation
	r.index.Search(lo, hi, func(_, _ [2]float64, i int) bool {
		s := r.stations[i]
		if d := distanceMeters(lat, lon, s.Lat, s.Lon); d <= radius {
			out = append(out, NearbyStation{Station: s, DistanceMeters: d})
		}
		return true
	})
	sort.Slice(out, func(a, b int) bool {
		return out[a].DistanceMeters < out[b].DistanceMeters
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
