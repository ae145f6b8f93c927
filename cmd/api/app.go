package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"busarrival.dkucouncil.org/internal/app"
	"busarrival.dkucouncil.org/internal/appconf"
	"busarrival.dkucouncil.org/internal/bus"
	"busarrival.dkucouncil.org/internal/clock"
	"busarrival.dkucouncil.org/internal/logging"
	"busarrival.dkucouncil.org/internal/metrics"
	"busarrival.dkucouncil.org/internal/predict"
	"busarrival.dkucouncil.org/internal/provider"
	"busarrival.dkucouncil.org/internal/restapi"
	"busarrival.dkucouncil.org/internal/stations"
	"busarrival.dkucouncil.org/internal/webui"
	"busarrival.dkucouncil.org/scheduledb"
)

const (
	// pinnedTimeEnvVar pins the service clock for demos, e.g. "2024-05-08 08:00".
	pinnedTimeEnvVar = "BUS_PINNED_TIME"

	dbStatsInterval = 15 * time.Second
	shutdownTimeout = 10 * time.Second
)

// BuildApplication wires every long-lived dependency from cfg. On error,
// everything opened so far is closed.
func BuildApplication(cfg appconf.Config) (*app.Application, error) {
	logger := logging.NewLogger(os.Stdout, cfg.Env == appconf.Production, cfg.Verbose)
	slog.SetDefault(logger)

	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", cfg.Timezone, err)
	}
	appClock := clock.NewPinnedClock(pinnedTimeEnvVar, "", loc)

	registry, err := stations.LoadFile(cfg.StationsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load stations: %w", err)
	}

	schedule, err := scheduledb.NewClient(scheduledb.NewConfig(cfg.ScheduleDBPath, cfg.Env, cfg.Verbose))
	if err != nil {
		return nil, fmt.Errorf("failed to open timetable database: %w", err)
	}
	if cfg.ScheduleFile != "" {
		if err := schedule.ImportFromFile(context.Background(), cfg.ScheduleFile); err != nil {
			logging.SafeCloseWithLogging(schedule, logger, "timetable database")
			return nil, fmt.Errorf("failed to import timetable: %w", err)
		}
	}

	m := metrics.NewWithLogger(logger)
	m.StartDBStatsCollector(schedule.DB, dbStatsInterval)

	// Live feeds carry absolute timestamps and are always read against system
	// time, even when appClock is pinned.
	providers, err := provider.FromConfig(cfg.Providers, registry, provider.NewHTTPClient(cfg.ProviderTimeout), clock.RealClock{}, logger)
	if err != nil {
		m.Shutdown()
		logging.SafeCloseWithLogging(schedule, logger, "timetable database")
		return nil, fmt.Errorf("failed to configure providers: %w", err)
	}

	estimator := predict.NewTimetable(schedule.Queries, loc, logger)
	aggregator := bus.NewAggregator(registry, providers, estimator, bus.AggregatorConfig{
		RunThreshold:    cfg.RunThreshold,
		ProviderTimeout: cfg.ProviderTimeout,
	}, logger, m)
	cache := bus.NewArrivalCache(aggregator, cfg.CacheTTL, logger, m)

	logging.LogOperation(logger, "application_built",
		slog.Int("stations", len(registry.All())),
		slog.Int("providers", len(providers)),
		slog.String("timezone", loc.String()),
		slog.String("env", cfg.Env.String()))

	return &app.Application{
		Config:   cfg,
		Logger:   logger,
		Clock:    appClock,
		Metrics:  m,
		Stations: registry,
		Schedule: schedule,
		Arrivals: bus.NewQueryService(cache, appClock),
	}, nil
}

// CreateServer builds the HTTP server with every route and middleware. The
// returned RestAPI must be shut down by the caller.
func CreateServer(coreApp *app.Application, cfg appconf.Config) (*http.Server, *restapi.RestAPI) {
	api := restapi.NewRestAPI(coreApp)
	webUI := &webui.WebUI{Application: coreApp}

	mux := http.NewServeMux()
	api.SetRoutes(mux)
	webUI.SetWebUIRoutes(mux)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      restapi.WrapHandler(mux, coreApp.Logger),
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		ErrorLog:     slog.NewLogLogger(coreApp.Logger.Handler(), slog.LevelError),
	}
	return srv, api
}

// Run serves until SIGINT or SIGTERM, then drains in-flight requests and
// releases every resource owned by coreApp.
func Run(srv *http.Server, coreApp *app.Application, api *restapi.RestAPI) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return serve(ctx, srv, coreApp, api)
}

func serve(ctx context.Context, srv *http.Server, coreApp *app.Application, api *restapi.RestAPI) error {
	logger := coreApp.Logger
	defer func() {
		api.Shutdown()
		coreApp.Metrics.Shutdown()
		if coreApp.Schedule != nil {
			logging.SafeCloseWithLogging(coreApp.Schedule, logger, "timetable database")
		}
	}()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("addr", srv.Addr), slog.String("env", coreApp.Config.Env.String()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err, ok := <-serverErr:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
