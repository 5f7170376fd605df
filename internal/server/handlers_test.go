package server_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/roomrelay/internal/metrics"
	"github.com/Tyrowin/roomrelay/internal/server"
)

func TestHealthHandler(t *testing.T) {
	for _, path := range []string{"/", "/health"} {
		t.Run(path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, path, http.NoBody)
			rr := httptest.NewRecorder()

			server.SetupRoutes(server.NewHub(nil), nil).ServeHTTP(rr, req)

			assert.Equal(t, http.StatusOK, rr.Code)
			assert.Equal(t, "text/plain", rr.Header().Get("Content-Type"))
			assert.Equal(t, "Room relay is running!", rr.Body.String())
		})
	}
}

func TestServeWS_RejectsNonGET(t *testing.T) {
	hub := server.NewHub(nil)

	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete} {
		t.Run(method, func(t *testing.T) {
			req := httptest.NewRequest(method, "/ws", http.NoBody)
			rr := httptest.NewRecorder()

			hub.ServeWS(rr, req)

			assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
		})
	}
}

func TestServeWS_RejectsPlainHTTP(t *testing.T) {
	hub, ts, _ := startRelay(t, nil)

	resp, err := http.Get(ts.URL + "/ws")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, 0, hub.ClientCount())
}

func TestSetupRoutes_Metrics(t *testing.T) {
	registry := metrics.NewRegistry()
	hub := server.NewHub(nil, server.WithMetrics(metrics.NewRelay(registry)))
	ts := httptest.NewServer(server.SetupRoutes(hub, metrics.Handler(registry)))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), "roomrelay_websocket_active_connections"), "metrics body lists relay gauges")
}

func TestSetupRoutes_WithoutMetrics(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody)
	rr := httptest.NewRecorder()

	server.SetupRoutes(server.NewHub(nil), nil).ServeHTTP(rr, req)

	// Falls through to the catch-all health route.
	assert.Equal(t, "Room relay is running!", rr.Body.String())
}
