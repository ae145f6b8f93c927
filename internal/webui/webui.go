package webui

import (
	"net/http"

	"busarrival.dkucouncil.org/internal/app"
)

// WebUI serves the human-facing pages: the landing page with its assets and
// the debug dump.
type WebUI struct {
	*app.Application
}

func (webUI *WebUI) SetWebUIRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", webUI.indexHandler)
	mux.HandleFunc("GET /static/", webUI.staticHandler)
	mux.HandleFunc("GET /debug/{$}", webUI.debugIndexHandler)
}
