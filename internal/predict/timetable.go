// Package predict estimates arrivals of routes that report no live position
// from the imported timetable.
package predict

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"busarrival.dkucouncil.org/internal/bus"
	"busarrival.dkucouncil.org/scheduledb"
)

// ErrNoSchedule means the timetable has no entry at all for the route at the
// station.
var ErrNoSchedule = errors.New("no timetable for route at station")

const secondsPerDay = 24 * 60 * 60

// Timetable implements bus.Estimator over a scheduledb database.
type Timetable struct {
	queries *scheduledb.Queries
	loc     *time.Location
	logger  *slog.Logger
}

var _ bus.Estimator = (*Timetable)(nil)

// NewTimetable creates a Timetable that evaluates service days in loc.
func NewTimetable(queries *scheduledb.Queries, loc *time.Location, logger *slog.Logger) *Timetable {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Timetable{
		queries: queries,
		loc:     loc,
		logger:  logger.With(slog.String("component", "timetable_estimator")),
	}
}

// Estimate returns the time from now until the next scheduled pass of busNo at
// station. Trips of the previous service day that run past midnight count.
func (t *Timetable) Estimate(ctx context.Context, busNo string, station bus.Station, now time.Time) (time.Duration, bool, error) {
	local := now.In(t.loc)
	current := SecondsSinceMidnight(local)

	days := []struct {
		dayType string
		after   int64
	}{
		{DayType(local), current},
		{DayType(local.AddDate(0, 0, -1)), current + secondsPerDay},
	}

	best := int64(-1)
	for _, d := range days {
		next, found, err := t.nextPass(ctx, busNo, string(station), d.dayType, d.after)
		if err != nil {
			return 0, false, err
		}
		if !found {
			continue
		}
		if wait := next - d.after; best < 0 || wait < best {
			best = wait
		}
	}

	if best >= 0 {
		// Subtract the sub-second part so the estimate is exact relative to now.
		remaining := time.Duration(best)*time.Second - time.Duration(local.Nanosecond())
		return max(remaining, 0), true, nil
	}

	exists, err := t.queries.HasSchedule(ctx, busNo, string(station))
	if err != nil {
		return 0, false, fmt.Errorf("timetable lookup for %s at %s: %w", busNo, station, err)
	}
	if !exists {
		return 0, false, fmt.Errorf("%w: %s at %s", ErrNoSchedule, busNo, station)
	}
	t.logger.Debug("no further service today",
		slog.String("bus", busNo),
		slog.String("station", string(station)),
		slog.String("day_type", days[0].dayType))
	return 0, false, nil
}

// nextPass finds the earliest explicit departure or headway slot at or after
// the given second of a service day.
func (t *Timetable) nextPass(ctx context.Context, busNo, station, dayType string, after int64) (int64, bool, error) {
	next, found := int64(0), false

	dep, err := t.queries.NextDeparture(ctx, scheduledb.NextDepartureParams{
		BusNo:   busNo,
		Station: station,
		DayType: dayType,
		After:   after,
	})
	switch {
	case err == nil:
		next, found = dep, true
	case !errors.Is(err, sql.ErrNoRows):
		return 0, false, fmt.Errorf("timetable lookup for %s at %s: %w", busNo, station, err)
	}

	windows, err := t.queries.ListServiceWindows(ctx, scheduledb.ListServiceWindowsParams{
		BusNo:   busNo,
		Station: station,
		DayType: dayType,
	})
	if err != nil {
		return 0, false, fmt.Errorf("timetable lookup for %s at %s: %w", busNo, station, err)
	}
	for _, w := range windows {
		slot, ok := nextSlot(w, after)
		if ok && (!found || slot < next) {
			next, found = slot, true
		}
	}
	return next, found, nil
}

// nextSlot returns the first headway slot of w at or after the given second.
func nextSlot(w scheduledb.ServiceWindow, after int64) (int64, bool) {
	if w.HeadwaySeconds <= 0 {
		return 0, false
	}
	if after <= w.FirstSeconds {
		return w.FirstSeconds, true
	}
	steps := (after - w.FirstSeconds + w.HeadwaySeconds - 1) / w.HeadwaySeconds
	slot := w.FirstSeconds + steps*w.HeadwaySeconds
	if slot > w.LastSeconds {
		return 0, false
	}
	return slot, true
}

// DayType classifies the service day of t.
func DayType(t time.Time) string {
	switch t.Weekday() {
	case time.Saturday:
		return scheduledb.Saturday
	case time.Sunday:
		return scheduledb.Sunday
	default:
		return scheduledb.Weekday
	}
}

// SecondsSinceMidnight returns the wall clock seconds elapsed since midnight
// in t's location.
func SecondsSinceMidnight(t time.Time) int64 {
	return int64(t.Hour()*3600 + t.Minute()*60 + t.Second())
}
