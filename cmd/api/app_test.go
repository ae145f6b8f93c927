package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	gtfsrt "github.com/OneBusAway/go-gtfs/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"

	"busarrival.dkucouncil.org/internal/appconf"
	"busarrival.dkucouncil.org/internal/models"
)

func testConfig() appconf.Config {
	return appconf.Config{
		Port:           8080,
		Env:            appconf.Test,
		ApiKeys:        []string{"test"},
		RateLimit:      100,
		StationsFile:   filepath.Join("..", "..", "testdata", "stations.yaml"),
		ScheduleFile:   filepath.Join("..", "..", "testdata", "schedule.yaml"),
		ScheduleDBPath: ":memory:",
		Timezone:       "Asia/Seoul",
	}
}

func buildTestApplication(t *testing.T, cfg appconf.Config) (*http.Server, func()) {
	t.Helper()
	coreApp, err := BuildApplication(cfg)
	require.NoError(t, err)

	srv, api := CreateServer(coreApp, cfg)
	return srv, func() {
		api.Shutdown()
		coreApp.Metrics.Shutdown()
		_ = coreApp.Schedule.Close()
	}
}

func TestBuildApplication(t *testing.T) {
	cfg := testConfig()
	coreApp, err := BuildApplication(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		coreApp.Metrics.Shutdown()
		_ = coreApp.Schedule.Close()
	})

	assert.NotNil(t, coreApp.Logger, "Logger should be initialized")
	assert.NotNil(t, coreApp.Clock)
	assert.NotNil(t, coreApp.Arrivals)
	assert.Equal(t, cfg, coreApp.Config, "Config should match input")
	assert.Len(t, coreApp.Stations.All(), 3)

	counts, err := coreApp.Schedule.TableCounts()
	require.NoError(t, err)
	assert.Positive(t, counts["departures"])
	assert.Positive(t, counts["service_windows"])
}

func TestBuildApplicationErrorHandling(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*appconf.Config)
		message string
	}{
		{
			name:    "missing stations file",
			modify:  func(c *appconf.Config) { c.StationsFile = "/nonexistent/stations.yaml" },
			message: "failed to load stations",
		},
		{
			name:    "missing schedule file",
			modify:  func(c *appconf.Config) { c.ScheduleFile = "/nonexistent/schedule.yaml" },
			message: "failed to import timetable",
		},
		{
			name:    "unknown timezone",
			modify:  func(c *appconf.Config) { c.Timezone = "Mars/Olympus_Mons" },
			message: "failed to load timezone",
		},
		{
			name: "unknown provider kind",
			modify: func(c *appconf.Config) {
				c.Providers = []appconf.ProviderConfig{{Kind: "tram", Prefix: "TR_", URL: "http://example.test"}}
			},
			message: "failed to configure providers",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.modify(&cfg)

			_, err := BuildApplication(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestCreateServer(t *testing.T) {
	srv, cleanup := buildTestApplication(t, testConfig())
	defer cleanup()

	assert.Equal(t, ":8080", srv.Addr, "Server address should match port")
	assert.NotNil(t, srv.Handler, "Server handler should be set")
	assert.Equal(t, time.Minute, srv.IdleTimeout, "IdleTimeout should be 1 minute")
	assert.Equal(t, 5*time.Second, srv.ReadTimeout, "ReadTimeout should be 5 seconds")
	assert.Equal(t, 10*time.Second, srv.WriteTimeout, "WriteTimeout should be 10 seconds")
}

func TestCreateServerHandlerResponds(t *testing.T) {
	srv, cleanup := buildTestApplication(t, testConfig())
	defer cleanup()

	tests := []struct {
		path   string
		status int
	}{
		{"/api/bus/stations?key=test", http.StatusOK},
		{"/api/bus/stations", http.StatusUnauthorized},
		{"/api/bus/arrivals/NOWHERE?key=test", http.StatusNotFound},
		{"/healthz", http.StatusOK},
		{"/metrics", http.StatusOK},
		{"/debug/?dataType=stations", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, tt.status, rec.Code)
			assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
		})
	}
}

func TestDebugPageHiddenInProduction(t *testing.T) {
	cfg := testConfig()
	cfg.Env = appconf.Production
	srv, cleanup := buildTestApplication(t, cfg)
	defer cleanup()

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestArrivalsFallBackToTimetableWhenProvidersFail(t *testing.T) {
	t.Setenv(pinnedTimeEnvVar, "2024-05-08 08:00")
	t.Setenv("BUS_TEST_GGBUS_KEY", "abc")

	cfg, err := loadConfig(filepath.Join("..", "..", "testdata", "config_valid.json"), 0)
	require.NoError(t, err)
	cfg.Env = appconf.Test
	srv, cleanup := buildTestApplication(t, cfg)
	defer cleanup()

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/bus/arrivals/DKU_GATE?key=test", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body models.ArrivalsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))

	var busNumbers []string
	for _, a := range body.Arrivals {
		busNumbers = append(busNumbers, a.BusNumber)
		assert.Equal(t, "PREDICT", a.Status)
		assert.Nil(t, a.EtaSecondarySeconds)
	}
	assert.Equal(t, []string{"24", "102", "1101", "8100", "shuttle-bus"}, busNumbers,
		"720-3 has neither live data nor a timetable")
	assert.Contains(t, body.CapturedAt, "2024-05-08T08:00:")
}

func TestServeShutsDownOnCancel(t *testing.T) {
	cfg := testConfig()
	cfg.Port = 0
	coreApp, err := BuildApplication(cfg)
	require.NoError(t, err)

	srv, api := CreateServer(coreApp, cfg)
	srv.Addr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, srv, coreApp, api)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err, "Server should shutdown cleanly")
	case <-time.After(10 * time.Second):
		t.Fatal("Test timeout - server did not shutdown")
	}
	assert.Error(t, coreApp.Schedule.DB.Ping(), "timetable database should be closed")
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join("..", "..", "testdata", "config_valid.json")

	t.Run("file values", func(t *testing.T) {
		t.Setenv("BUS_TEST_GGBUS_KEY", "secret-key")

		cfg, err := loadConfig(path, 0)
		require.NoError(t, err)

		assert.Equal(t, 3000, cfg.Port)
		assert.Equal(t, appconf.Development, cfg.Env)
		assert.Equal(t, []string{"test"}, cfg.ApiKeys)
		assert.Equal(t, 50, cfg.RateLimit)
		assert.True(t, cfg.Verbose)
		assert.Equal(t, 20*time.Second, cfg.CacheTTL)
		assert.Equal(t, 2*time.Minute, cfg.RunThreshold)
		assert.Equal(t, 1500*time.Millisecond, cfg.ProviderTimeout)
		require.Len(t, cfg.Providers, 3)
		assert.Equal(t, "secret-key", cfg.Providers[0].AuthHeaderValue)
	})

	t.Run("environment overrides file", func(t *testing.T) {
		t.Setenv("BUS_PORT", "4100")
		t.Setenv("BUS_API_KEYS", "a, b")

		cfg, err := loadConfig(path, 0)
		require.NoError(t, err)
		assert.Equal(t, 4100, cfg.Port)
		assert.Equal(t, []string{"a", "b"}, cfg.ApiKeys)
	})

	t.Run("flag overrides environment", func(t *testing.T) {
		t.Setenv("BUS_PORT", "4100")

		cfg, err := loadConfig(path, 5000)
		require.NoError(t, err)
		assert.Equal(t, 5000, cfg.Port)
	})

	t.Run("invalid environment value", func(t *testing.T) {
		t.Setenv("BUS_RATE_LIMIT", "lots")

		_, err := loadConfig(path, 0)
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := loadConfig("/nonexistent/config.json", 0)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to stat config file")
	})
}

// townBusFeed serves a GTFS-RT feed with one route 24 trip reaching stop
// "gate" at arrival.
func townBusFeed(t *testing.T, arrival time.Time) *httptest.Server {
	t.Helper()
	incrementality := gtfsrt.FeedHeader_FULL_DATASET
	data, err := proto.Marshal(&gtfsrt.FeedMessage{
		Header: &gtfsrt.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Incrementality:      &incrementality,
			Timestamp:           proto.Uint64(uint64(time.Now().Unix())),
		},
		Entity: []*gtfsrt.FeedEntity{{
			Id: proto.String("trip-1"),
			TripUpdate: &gtfsrt.TripUpdate{
				Trip: &gtfsrt.TripDescriptor{
					TripId:  proto.String("trip-1"),
					RouteId: proto.String("24"),
				},
				StopTimeUpdate: []*gtfsrt.TripUpdate_StopTimeUpdate{{
					StopSequence: proto.Uint32(1),
					StopId:       proto.String("gate"),
					Arrival:      &gtfsrt.TripUpdate_StopTimeEvent{Time: proto.Int64(arrival.Unix())},
				}},
			},
		}},
	})
	require.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-protobuf")
		_, _ = w.Write(data)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestLiveFeedIgnoresPinnedClock(t *testing.T) {
	t.Setenv(pinnedTimeEnvVar, "2024-05-08 08:00")
	feed := townBusFeed(t, time.Now().Add(2*time.Minute))

	cfg := testConfig()
	cfg.ProviderTimeout = 2 * time.Second
	cfg.Providers = []appconf.ProviderConfig{{Kind: appconf.ProviderTownBus, Prefix: "T_", URL: feed.URL}}
	srv, cleanup := buildTestApplication(t, cfg)
	defer cleanup()

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/bus/arrivals/DKU_GATE?key=test", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body models.ArrivalsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.NotEmpty(t, body.Arrivals)

	first := body.Arrivals[0]
	assert.Equal(t, "24", first.BusNumber)
	assert.Equal(t, "RUN", first.Status)
	assert.InDelta(t, 120, first.EtaPrimarySeconds, 5)
	assert.Contains(t, body.CapturedAt, "2024-05-08T08:00:", "timetable side still follows the pinned clock")
}
