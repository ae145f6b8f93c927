package restapi

import (
	"encoding/json"
	"net/http"

	"busarrival.dkucouncil.org/internal/logging"
)

// HealthResponse represents the JSON response from the health endpoint.
type HealthResponse struct {
	Status   string `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Stations int    `json:"stations,omitempty"`
}

// healthHandler reports whether the station registry and timetable database
// are ready. Upstream providers are not probed.
func (api *RestAPI) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if api.Application == nil || api.Arrivals == nil || api.Stations == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(HealthResponse{
			Status: "unavailable",
			Detail: "application not initialized",
		})
		return
	}

	if api.Schedule != nil && api.Schedule.DB != nil {
		if err := api.Schedule.DB.PingContext(r.Context()); err != nil {
			logging.LogError(api.Logger, "timetable DB ping failed", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(HealthResponse{
				Status: "unavailable",
				Detail: "database connection failed",
			})
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(HealthResponse{
		Status:   "ok",
		Stations: len(api.Stations.All()),
	})
}
