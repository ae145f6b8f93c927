package restapi

import (
	"math"
	"net/http"
	"strconv"

	"busarrival.dkucouncil.org/internal/models"
)

const (
	defaultNearbyRadius = 500.0
	maxNearbyRadius     = 5000.0
	defaultNearbyLimit  = 10
	maxNearbyLimit      = 50
)

func (api *RestAPI) stationsHandler(w http.ResponseWriter, r *http.Request) {
	api.sendResponse(w, r, models.NewStationsResponse(api.Stations.All()))
}

func (api *RestAPI) nearbyStationsHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	lat, err := parseFloatParam(query.Get("lat"), -90, 90)
	if err != nil {
		api.sendError(w, r, http.StatusBadRequest, "lat must be a number between -90 and 90")
		return
	}
	lon, err := parseFloatParam(query.Get("lon"), -180, 180)
	if err != nil {
		api.sendError(w, r, http.StatusBadRequest, "lon must be a number between -180 and 180")
		return
	}

	radius := defaultNearbyRadius
	if v := query.Get("radius"); v != "" {
		radius, err = parseFloatParam(v, 1, maxNearbyRadius)
		if err != nil {
			api.sendError(w, r, http.StatusBadRequest, "radius must be between 1 and 5000 meters")
			return
		}
	}

	limit := defaultNearbyLimit
	if v := query.Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 1 || limit > maxNearbyLimit {
			api.sendError(w, r, http.StatusBadRequest, "limit must be between 1 and 50")
			return
		}
	}

	nearby := api.Stations.Nearby(lat, lon, radius, limit)
	api.sendResponse(w, r, models.NewNearbyStationsResponse(nearby))
}

func parseFloatParam(s string, lo, hi float64) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || v < lo || v > hi {
		return 0, strconv.ErrRange
	}
	return v, nil
}
