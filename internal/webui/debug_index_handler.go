package webui

import (
	"embed"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/davecgh/go-spew/spew"

	"busarrival.dkucouncil.org/internal/appconf"
)

//go:embed debug_index.html
var templateFS embed.FS

var debugTemplate = template.Must(template.ParseFS(templateFS, "debug_index.html"))

type debugData struct {
	Title string
	Pre   string
}

func writeDebugData(w http.ResponseWriter, title string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")

	err := debugTemplate.Execute(w, debugData{
		Title: title,
		Pre:   spew.Sdump(data),
	})
	if err != nil {
		slog.Error("failed to execute debug template", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

func (webUI *WebUI) debugIndexHandler(w http.ResponseWriter, r *http.Request) {
	if webUI.Application == nil || webUI.Config.Env == appconf.Production {
		http.NotFound(w, r)
		return
	}

	var data any
	var title string

	switch r.URL.Query().Get("dataType") {
	case "snapshots":
		title = "Arrival cache - Snapshots"
		if webUI.Arrivals != nil {
			data = webUI.Arrivals.Cache().Snapshots()
		}
	case "stations":
		title = "Station registry"
		if webUI.Stations != nil {
			data = webUI.Stations.All()
		}
	case "schedule":
		title = "Timetable - Table counts"
		if webUI.Schedule != nil {
			counts, err := webUI.Schedule.TableCounts()
			if err != nil {
				data = map[string]string{"error": err.Error()}
			} else {
				data = map[string]any{
					"path":          webUI.Schedule.GetDBPath(),
					"importRuntime": webUI.Schedule.ImportRuntime().String(),
					"tables":        counts,
				}
			}
		}
	case "config":
		title = "Configuration"
		data = redactConfig(webUI.Config)
	default:
		title = "Choose a data type"
		data = map[string]string{
			"error": "Please use one of the following: snapshots, stations, schedule, config.",
		}
	}

	writeDebugData(w, title, data)
}

// redactConfig hides API keys and provider credentials.
func redactConfig(cfg appconf.Config) appconf.Config {
	if len(cfg.ApiKeys) > 0 {
		cfg.ApiKeys = []string{"[redacted]"}
	}
	providers := make([]appconf.ProviderConfig, len(cfg.Providers))
	for i, p := range cfg.Providers {
		if p.AuthHeaderValue != "" {
			p.AuthHeaderValue = "[redacted]"
		}
		providers[i] = p
	}
	cfg.Providers = providers
	return cfg
}
