package scheduledb

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Day types stored in the day_type column.
const (
	Weekday  = "weekday"
	Saturday = "saturday"
	Sunday   = "sunday"
)

// ScheduleFile is the YAML timetable document.
type ScheduleFile struct {
	Schedules []ScheduleEntry `yaml:"schedules" validate:"required,dive"`
}

// ScheduleEntry gives the times bus Bus passes Station on Days, either as an
// explicit list of departures or as a headway window.
type ScheduleEntry struct {
	Bus        string   `yaml:"bus" validate:"required"`
	Station    string   `yaml:"station" validate:"required"`
	Days       []string `yaml:"days" validate:"required,min=1,dive,oneof=weekday saturday sunday"`
	Departures []string `yaml:"departures" validate:"dive,clocktime"`
	First      string   `yaml:"first" validate:"required_without=Departures,omitempty,clocktime"`
	Last       string   `yaml:"last" validate:"required_without=Departures,omitempty,clocktime"`
	Every      string   `yaml:"every" validate:"required_without=Departures,omitempty,headway"`
}

// ParseScheduleFile decodes and validates a timetable document.
func ParseScheduleFile(data []byte) (*ScheduleFile, error) {
	var f ScheduleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse schedule file: %w", err)
	}

	validate, err := newScheduleValidator()
	if err != nil {
		return nil, err
	}
	if err := validate.Struct(&f); err != nil {
		return nil, fmt.Errorf("invalid schedule file: %w", err)
	}

	for i, e := range f.Schedules {
		if len(e.Departures) > 0 || e.First == "" {
			continue
		}
		first, _ := ParseClock(e.First)
		last, _ := ParseClock(e.Last)
		if last < first {
			return nil, fmt.Errorf("invalid schedule file: entry %d (%s at %s) ends before it starts", i, e.Bus, e.Station)
		}
	}
	return &f, nil
}

// ParseClock converts "HH:MM" or "HH:MM:SS" into seconds since midnight.
// Hours past 23 denote service after midnight of the same service day.
func ParseClock(s string) (int64, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	var fields [3]int64
	for i, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid clock time %q", s)
		}
		fields[i] = n
	}
	h, m, sec := fields[0], fields[1], fields[2]
	if h > 47 || m > 59 || sec > 59 {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	return h*3600 + m*60 + sec, nil
}

// rows expands the document into table rows.
func (f *ScheduleFile) rows() ([]Departure, []ServiceWindow) {
	var departures []Departure
	var windows []ServiceWindow
	for _, e := range f.Schedules {
		for _, day := range e.Days {
			for _, d := range e.Departures {
				seconds, _ := ParseClock(d)
				departures = append(departures, Departure{
					BusNo:   e.Bus,
					Station: e.Station,
					DayType: day,
					Seconds: seconds,
				})
			}
			if e.First == "" {
				continue
			}
			first, _ := ParseClock(e.First)
			last, _ := ParseClock(e.Last)
			every, _ := time.ParseDuration(e.Every)
			windows = append(windows, ServiceWindow{
				BusNo:          e.Bus,
				Station:        e.Station,
				DayType:        day,
				FirstSeconds:   first,
				LastSeconds:    last,
				HeadwaySeconds: int64(every / time.Second),
			})
		}
	}
	return departures, windows
}

// newScheduleValidator registers the clocktime and headway tags used by
// ScheduleEntry.
func newScheduleValidator() (*validator.Validate, error) {
	validate := validator.New()
	err := validate.RegisterValidation("clocktime", func(fl validator.FieldLevel) bool {
		_, err := ParseClock(fl.Field().String())
		return err == nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register clocktime validation: %w", err)
	}
	err = validate.RegisterValidation("headway", func(fl validator.FieldLevel) bool {
		d, err := time.ParseDuration(fl.Field().String())
		return err == nil && d >= time.Second
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register headway validation: %w", err)
	}
	return validate, nil
}
