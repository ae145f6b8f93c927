// Package bus aggregates live bus arrival readings from several upstream
// providers into per-station snapshots, classifies every bus, and serves the
// snapshots through a short-lived cache whose ETAs count down between refreshes.
package bus

import (
	"time"
)

// Station identifies a physical stop. The set of stations is fixed by the
// station registry at startup.
type Station string

// Status is the operational classification of a bus at a station.
type Status string

const (
	// StatusRun is a bus at or approaching the stop.
	StatusRun Status = "RUN"
	// StatusPredict is an estimate, live or timetable based, that is not imminent.
	StatusPredict Status = "PREDICT"
	// StatusStop means the route ran today but has no further service.
	StatusStop Status = "STOP"
)

// Reading is one upstream sighting. BusNo is provider-local and may collide
// with another provider's numbering.
type Reading struct {
	BusNo     string
	FirstETA  int
	SecondETA int
	HasSecond bool
}

// NewReading builds a Reading from one or two ETAs in seconds. Extra values
// are ignored; negative values are clamped to zero.
func NewReading(busNo string, etas ...int) Reading {
	r := Reading{BusNo: busNo}
	if len(etas) > 0 {
		r.FirstETA = max(etas[0], 0)
	}
	if len(etas) > 1 {
		r.SecondETA = max(etas[1], 0)
		r.HasSecond = true
	}
	return r
}

// Arrival is one aggregated bus in a station snapshot.
type Arrival struct {
	BusNo     string
	FirstETA  int
	SecondETA int
	HasSecond bool
	Status    Status
}

// Snapshot is one timestamped aggregation result for a station.
type Snapshot struct {
	CapturedAt time.Time
	Arrivals   []Arrival
}

// Clone returns a copy that shares no memory with s.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{CapturedAt: s.CapturedAt}
	if s.Arrivals != nil {
		out.Arrivals = make([]Arrival, len(s.Arrivals))
		copy(out.Arrivals, s.Arrivals)
	}
	return out
}
