package restapi

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"busarrival.dkucouncil.org/internal/appconf"
	"busarrival.dkucouncil.org/internal/models"
)

func TestAPIKeyRequiredWhenConfigured(t *testing.T) {
	api, _ := createTestApi(t, func(cfg *appconf.Config) {
		cfg.ApiKeys = []string{"secret"}
	})
	server := serveApi(t, api)

	tests := []struct {
		name   string
		query  string
		status int
	}{
		{"missing key", "", http.StatusUnauthorized},
		{"wrong key", "?key=guess", http.StatusUnauthorized},
		{"valid key", "?key=secret", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := getJSON(t, server.URL+"/api/bus/stations"+tt.query, nil)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestAPIKeyErrorBody(t *testing.T) {
	api, _ := createTestApi(t, func(cfg *appconf.Config) {
		cfg.ApiKeys = []string{"secret"}
	})
	server := serveApi(t, api)

	var body models.ResponseModel
	resp := getJSON(t, server.URL+"/api/bus/arrivals/DKU_GATE", &body)

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "permission denied", body.Text)
	assert.Equal(t, testNow.UnixMilli(), body.CurrentTime)
}

func TestHealthDoesNotRequireAPIKey(t *testing.T) {
	api, _ := createTestApi(t, func(cfg *appconf.Config) {
		cfg.ApiKeys = []string{"secret"}
	})
	server := serveApi(t, api)

	resp := getJSON(t, server.URL+"/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
