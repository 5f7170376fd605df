package server_test

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/roomrelay/internal/server"
)

func TestNewHTTPServer_UsesConfiguredPort(t *testing.T) {
	cfg := server.NewConfig()
	cfg.Port = "18080"

	srv := server.NewHTTPServer(cfg, http.NotFoundHandler())

	assert.Equal(t, ":18080", srv.Addr)
	assert.Positive(t, srv.ReadHeaderTimeout)
	assert.Zero(t, srv.WriteTimeout)
}

func TestServe_ClosesClientsOnCancel(t *testing.T) {
	cfg := server.NewConfig()
	cfg.AllowedOrigins = testOrigin
	cfg.ShutdownTimeout = frameWait
	hub := server.NewHub(cfg)
	server.StartHub(hub)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := server.NewHTTPServer(cfg, server.SetupRoutes(hub, nil))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx, srv, ln, hub) }()

	base := "http://" + ln.Addr().String()
	resp, err := http.Get(base + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "Room relay is running!", string(body))

	alice := connect(t, "ws://"+ln.Addr().String()+"/ws")

	cancel()

	err = alice.expectClosed()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * frameWait):
		t.Fatal("Serve did not return after cancel")
	}
	assert.Equal(t, 0, hub.ClientCount())

	_, err = http.Get(base + "/health")
	assert.Error(t, err, "listener is closed")
}

func TestServe_ListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := server.NewConfig()
	hub := server.NewHub(cfg)
	srv := &http.Server{Addr: ln.Addr().String(), Handler: http.NotFoundHandler()}

	err = server.Serve(context.Background(), srv, nil, hub)
	assert.Error(t, err)
}
