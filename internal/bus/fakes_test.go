package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

type fakeProvider struct {
	prefix   string
	readings map[Station][]Reading
	err      error
	delay    time.Duration
	calls    atomic.Int32
}

func (f *fakeProvider) Prefix() string { return f.prefix }

func (f *fakeProvider) Fetch(ctx context.Context, station Station) ([]Reading, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.readings[station], nil
}

// fakeEstimator answers from a per-bus table, with a fallback for unlisted buses.
type fakeEstimator struct {
	mu       sync.Mutex
	byBus    map[string]estimate
	fallback estimate
	calls    []string
}

func newFakeEstimator(fallback time.Duration) *fakeEstimator {
	return &fakeEstimator{byBus: map[string]estimate{}, fallback: estimate{remaining: fallback, ok: true}}
}

func (f *fakeEstimator) noService(busNo string) *fakeEstimator {
	f.byBus[busNo] = estimate{ok: false}
	return f
}

func (f *fakeEstimator) failing(busNo string) *fakeEstimator {
	f.byBus[busNo] = estimate{err: errors.New("no timetable")}
	return f
}

func (f *fakeEstimator) returning(busNo string, d time.Duration) *fakeEstimator {
	f.byBus[busNo] = estimate{remaining: d, ok: true}
	return f
}

func (f *fakeEstimator) Estimate(_ context.Context, busNo string, _ Station, _ time.Time) (time.Duration, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, busNo)
	est, ok := f.byBus[busNo]
	if !ok {
		est = f.fallback
	}
	return est.remaining, est.ok, est.err
}

type fakeDirectory map[Station]StationInfo

func (d fakeDirectory) StationInfo(id Station) (StationInfo, bool) {
	info, ok := d[id]
	return info, ok
}

const gate Station = "DKU_GATE"

func byBusNo(arrivals []Arrival) map[string]Arrival {
	out := make(map[string]Arrival, len(arrivals))
	for _, a := range arrivals {
		out[a.BusNo] = a
	}
	return out
}
