package restapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"busarrival.dkucouncil.org/internal/app"
	"busarrival.dkucouncil.org/internal/appconf"
	"busarrival.dkucouncil.org/internal/bus"
	"busarrival.dkucouncil.org/internal/clock"
	"busarrival.dkucouncil.org/internal/metrics"
	"busarrival.dkucouncil.org/internal/predict"
	"busarrival.dkucouncil.org/internal/stations"
	"busarrival.dkucouncil.org/scheduledb"
)

var kst = time.FixedZone("KST", 9*60*60)

// testNow is a Wednesday morning.
var testNow = time.Date(2024, time.May, 8, 8, 0, 0, 0, kst)

type stubProvider struct {
	prefix   string
	readings map[bus.Station][]bus.Reading
}

func (p stubProvider) Prefix() string { return p.prefix }

func (p stubProvider) Fetch(_ context.Context, station bus.Station) ([]bus.Reading, error) {
	return p.readings[station], nil
}

func defaultProviders() []bus.Provider {
	return []bus.Provider{
		stubProvider{prefix: "GG_", readings: map[bus.Station][]bus.Reading{
			"DKU_GATE": {bus.NewReading("720-3", 60, 600)},
		}},
		stubProvider{prefix: "DKU_", readings: map[bus.Station][]bus.Reading{
			"DKU_GATE": {bus.NewReading("shuttle-bus", 400)},
		}},
	}
}

// createTestApi builds a RestAPI over the testdata stations and timetable with
// stub providers and a mock clock. configure may adjust the config first.
func createTestApi(t *testing.T, configure ...func(*appconf.Config)) (*RestAPI, *clock.MockClock) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := appconf.Config{Env: appconf.Test, RateLimit: 100, ApiKeys: []string{}}
	for _, fn := range configure {
		fn(&cfg)
	}

	registry, err := stations.LoadFile(filepath.Join("..", "..", "testdata", "stations.yaml"))
	require.NoError(t, err)

	schedule, err := scheduledb.NewClient(scheduledb.NewConfig(":memory:", appconf.Test, false))
	require.NoError(t, err)
	t.Cleanup(func() { _ = schedule.Close() })
	require.NoError(t, schedule.ImportFromFile(context.Background(), filepath.Join("..", "..", "testdata", "schedule.yaml")))

	mockClock := clock.NewMockClock(testNow)
	m := metrics.New()
	estimator := predict.NewTimetable(schedule.Queries, kst, logger)
	aggregator := bus.NewAggregator(registry, defaultProviders(), estimator, bus.AggregatorConfig{}, logger, m)
	cache := bus.NewArrivalCache(aggregator, 30*time.Second, logger, m)

	api := NewRestAPI(&app.Application{
		Config:   cfg,
		Logger:   logger,
		Clock:    mockClock,
		Metrics:  m,
		Stations: registry,
		Schedule: schedule,
		Arrivals: bus.NewQueryService(cache, mockClock),
	})
	t.Cleanup(api.Shutdown)
	return api, mockClock
}

func serveApi(t *testing.T, api *RestAPI) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	api.SetRoutes(mux)
	server := httptest.NewServer(WrapHandler(mux, api.Logger))
	t.Cleanup(server.Close)
	return server
}

// getJSON performs a GET and decodes the body into out when out is non-nil.
func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}
