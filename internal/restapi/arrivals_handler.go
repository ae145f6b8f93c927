package restapi

import (
	"errors"
	"net/http"
	"strings"

	"busarrival.dkucouncil.org/internal/bus"
	"busarrival.dkucouncil.org/internal/models"
)

func (api *RestAPI) arrivalsHandler(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("station"))
	if id == "" {
		api.sendNotFound(w, r)
		return
	}
	station := bus.Station(id)

	snap, err := api.Arrivals.ListArrivals(r.Context(), station)
	if errors.Is(err, bus.ErrUnknownStation) {
		api.sendNotFound(w, r)
		return
	}
	if err != nil {
		api.serverErrorResponse(w, r, err)
		return
	}

	api.sendResponse(w, r, models.NewArrivalsResponse(station, snap))
}
