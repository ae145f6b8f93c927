package app

import (
	"log/slog"

	"busarrival.dkucouncil.org/internal/appconf"
	"busarrival.dkucouncil.org/internal/bus"
	"busarrival.dkucouncil.org/internal/clock"
	"busarrival.dkucouncil.org/internal/metrics"
	"busarrival.dkucouncil.org/internal/stations"
	"busarrival.dkucouncil.org/scheduledb"
)

// Application holds the dependencies shared by HTTP handlers, helpers and
// middleware.
type Application struct {
	Config   appconf.Config
	Logger   *slog.Logger
	Clock    clock.Clock
	Metrics  *metrics.Metrics
	Stations *stations.Registry
	Schedule *scheduledb.Client
	Arrivals *bus.QueryService
}
