package restapi

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Cache-Control max-age per endpoint tier, in seconds.
const (
	liveDataCacheSeconds   = 0
	staticDataCacheSeconds = 300
)

// SetRoutes registers every API endpoint on mux.
func (api *RestAPI) SetRoutes(mux *http.ServeMux) {
	mux.Handle("GET /api/bus/arrivals/{station}", api.protected(liveDataCacheSeconds, api.arrivalsHandler))
	mux.Handle("GET /api/bus/stations", api.protected(staticDataCacheSeconds, api.stationsHandler))
	mux.Handle("GET /api/bus/stations/nearby", api.protected(staticDataCacheSeconds, api.nearbyStationsHandler))

	mux.Handle("GET /healthz", MetricsHandler(api.Metrics)(http.HandlerFunc(api.healthHandler)))
	if api.Metrics != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(api.Metrics.Registry, promhttp.HandlerOpts{}))
	}
}

// protected wraps an API handler with metrics, rate limiting, key checks and
// Cache-Control, outermost first.
func (api *RestAPI) protected(cacheSeconds int, h http.HandlerFunc) http.Handler {
	var handler http.Handler = CacheControlMiddleware(cacheSeconds, h)
	handler = api.apiKeyMiddleware(handler)
	handler = api.rateLimiter.Handler()(handler)
	return MetricsHandler(api.Metrics)(handler)
}

func (api *RestAPI) apiKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if api.RequestHasInvalidAPIKey(r) {
			api.sendUnauthorized(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
