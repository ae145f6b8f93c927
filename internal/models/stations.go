package models

import (
	"math"

	"busarrival.dkucouncil.org/internal/stations"
)

type StationEntry struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Lat    float64  `json:"lat"`
	Lon    float64  `json:"lon"`
	Routes []string `json:"routes"`
}

type NearbyStationEntry struct {
	StationEntry
	DistanceMeters float64 `json:"distanceMeters"`
}

type StationsResponse struct {
	Stations []StationEntry `json:"stations"`
}

type NearbyStationsResponse struct {
	Stations []NearbyStationEntry `json:"stations"`
}

// NewStationEntry exposes a station without its provider mapping, which is
// internal configuration.
func NewStationEntry(s stations.Station) StationEntry {
	routes := make([]string, len(s.Routes))
	copy(routes, s.Routes)
	return StationEntry{
		ID:     s.ID,
		Name:   s.Name,
		Lat:    s.Lat,
		Lon:    s.Lon,
		Routes: routes,
	}
}

func NewStationsResponse(list []stations.Station) StationsResponse {
	entries := make([]StationEntry, 0, len(list))
	for _, s := range list {
		entries = append(entries, NewStationEntry(s))
	}
	return StationsResponse{Stations: entries}
}

func NewNearbyStationsResponse(list []stations.NearbyStation) NearbyStationsResponse {
	entries := make([]NearbyStationEntry, 0, len(list))
	for _, n := range list {
		entries = append(entries, NearbyStationEntry{
			StationEntry:   NewStationEntry(n.Station),
			DistanceMeters: math.Round(n.DistanceMeters*10) / 10,
		})
	}
	return NearbyStationsResponse{Stations: entries}
}
