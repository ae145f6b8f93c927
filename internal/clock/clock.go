// Package clock abstracts "now" so that snapshot capture times, cache expiry
// and ETA decay can be driven deterministically in tests and demos.
package clock

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// Clock provides the current time.
type Clock interface {
	Now() time.Time
	NowUnixMilli() int64
}

// RealClock reads the system clock.
type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now()
}

func (RealClock) NowUnixMilli() int64 {
	return time.Now().UnixMilli()
}

// MockClock is a thread-safe, manually driven clock for tests.
type MockClock struct {
	currentTime time.Time
	mu          sync.Mutex
}

// NewMockClock creates a MockClock set to t.
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{currentTime: t}
}

func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentTime
}

func (m *MockClock) NowUnixMilli() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentTime.UnixMilli()
}

// Set moves the clock to t.
func (m *MockClock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentTime = t
}

// Advance moves the clock by d. Negative values move it backwards.
func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentTime = m.currentTime.Add(d)
}

// PinnedClock reports a wall time pinned through an environment variable or a
// file, which lets a demo deployment replay a fixed service day against the
// timetable. The pinned instant keeps ticking from the moment it was first
// read, so cache expiry and decay still behave normally.
//
// Sources are checked in order: environment variable, file, system time.
type PinnedClock struct {
	envVar   string
	filePath string
	location *time.Location

	mu       sync.Mutex
	pinned   time.Time
	pinnedAt time.Time
	source   string
}

// NewPinnedClock creates a PinnedClock. With no sources configured it behaves
// like RealClock.
func NewPinnedClock(envVar string, filePath string, location *time.Location) *PinnedClock {
	return &PinnedClock{
		envVar:   envVar,
		filePath: filePath,
		location: location,
	}
}

func (p *PinnedClock) Now() time.Time {
	raw, source, err := p.read()
	if err != nil {
		slog.Warn("pinned clock unavailable, using system time",
			slog.String("envVar", p.envVar), slog.String("filePath", p.filePath), slog.String("error", err.Error()))
		return time.Now()
	}
	if raw == "" {
		return time.Now()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if source != p.source {
		t, err := p.parseTime(raw)
		if err != nil {
			slog.Warn("pinned clock value invalid, using system time", slog.String("value", raw), slog.String("error", err.Error()))
			return time.Now()
		}
		p.pinned = t
		p.pinnedAt = time.Now()
		p.source = source
	}
	return p.pinned.Add(time.Since(p.pinnedAt))
}

func (p *PinnedClock) NowUnixMilli() int64 {
	return p.Now().UnixMilli()
}

// read returns the raw pinned value and a key identifying it, so a changed
// value re-pins the clock. An empty value means nothing is pinned.
func (p *PinnedClock) read() (string, string, error) {
	if p.envVar != "" {
		if v := strings.TrimSpace(os.Getenv(p.envVar)); v != "" {
			return v, "env:" + v, nil
		}
	}
	if p.filePath != "" {
		data, err := os.ReadFile(p.filePath)
		if err != nil {
			return "", "", err
		}
		v := strings.TrimSpace(string(data))
		if v == "" {
			return "", "", errors.New("pinned time file is empty: " + p.filePath)
		}
		return v, "file:" + v, nil
	}
	return "", "", nil
}

func (p *PinnedClock) parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if p.location == nil {
		return time.Time{}, errors.New("timezone not configured")
	}
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02 15:04"} {
		if t, err := time.ParseInLocation(layout, s, p.location); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse time %q: expected RFC3339 or YYYY-MM-DD HH:MM[:SS]", s)
}
