package models

import (
	"time"

	"busarrival.dkucouncil.org/internal/bus"
)

type ArrivalEntry struct {
	BusNumber           string `json:"busNumber"`
	EtaPrimarySeconds   int    `json:"etaPrimarySeconds"`
	EtaSecondarySeconds *int   `json:"etaSecondarySeconds,omitempty"`
	Status              string `json:"status"`
}

type ArrivalsResponse struct {
	StationID  string         `json:"stationId"`
	CapturedAt string         `json:"capturedAt"`
	Arrivals   []ArrivalEntry `json:"arrivals"`
}

// NewArrivalsResponse renders a station snapshot. Arrivals is never null.
func NewArrivalsResponse(station bus.Station, snap bus.Snapshot) ArrivalsResponse {
	entries := make([]ArrivalEntry, 0, len(snap.Arrivals))
	for _, a := range snap.Arrivals {
		entry := ArrivalEntry{
			BusNumber:         a.BusNo,
			EtaPrimarySeconds: a.FirstETA,
			Status:            string(a.Status),
		}
		if a.HasSecond {
			second := a.SecondETA
			entry.EtaSecondarySeconds = &second
		}
		entries = append(entries, entry)
	}
	return ArrivalsResponse{
		StationID:  string(station),
		CapturedAt: snap.CapturedAt.Format(time.RFC3339),
		Arrivals:   entries,
	}
}
