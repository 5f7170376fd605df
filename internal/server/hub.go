// Package server coordinates client registration, inbound frame dispatch,
// and connection cleanup for the relay via the Hub type.
package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/Tyrowin/roomrelay/internal/logging"
	"github.com/Tyrowin/roomrelay/internal/metrics"
	"github.com/Tyrowin/roomrelay/internal/relay"
)

// inboundFrame is one text frame read from a client.
type inboundFrame struct {
	client  *Client
	payload []byte
}

// Hub owns the set of live clients and feeds their frames to the relay from
// a single goroutine, so requests from all clients form one ordered stream.
// The heartbeat monitor runs beside it and shares the relay's lock.
type Hub struct {
	cfg        *Config
	manager    *relay.Manager
	monitor    *relay.Monitor
	metrics    *metrics.Relay
	log        *slog.Logger
	upgrader   websocket.Upgrader
	clients    map[*Client]struct{}
	mutex      sync.RWMutex
	register   chan *Client
	unregister chan *Client
	inbound    chan inboundFrame
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// HubOption customizes a Hub.
type HubOption func(*hubOptions)

type hubOptions struct {
	clock   clockwork.Clock
	metrics *metrics.Relay
	log     *slog.Logger
}

// WithClock sets the clock driving the heartbeat monitor.
func WithClock(clock clockwork.Clock) HubOption {
	return func(o *hubOptions) { o.clock = clock }
}

func WithMetrics(m *metrics.Relay) HubOption {
	return func(o *hubOptions) { o.metrics = m }
}

func WithLogger(log *slog.Logger) HubOption {
	return func(o *hubOptions) { o.log = log }
}

// NewHub creates a Hub for cfg. A nil cfg uses NewConfig defaults.
func NewHub(cfg *Config, opts ...HubOption) *Hub {
	if cfg == nil {
		cfg = NewConfig()
	}
	sanitizeConfig(cfg)

	o := hubOptions{clock: clockwork.NewRealClock(), log: logging.Discard()}
	for _, opt := range opts {
		opt(&o)
	}

	manager := relay.NewManager(
		relay.WithLogger(o.log),
		relay.WithMetrics(o.metrics),
		relay.WithLimits(cfg.Limits()),
	)
	origins := newOriginPolicy(cfg.Origins(), o.log)

	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		cfg:     cfg,
		manager: manager,
		monitor: relay.NewMonitor(manager, o.clock, cfg.HeartbeatInterval),
		metrics: o.metrics,
		log:     o.log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.checkOrigin,
		},
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inboundFrame),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Manager returns the relay state behind the hub.
func (h *Hub) Manager() *relay.Manager {
	return h.manager
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Run starts the heartbeat monitor and the hub's event loop. It blocks until
// Shutdown is called.
func (h *Hub) Run() {
	defer close(h.done)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.monitor.Run(h.ctx)
	}()

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			h.handleRegister(client)

		case client := <-h.unregister:
			h.handleUnregister(client)

		case frame := <-h.inbound:
			h.manager.Handle(frame.client.id, frame.payload)
		}
	}
}

func (h *Hub) handleRegister(client *Client) {
	if client == nil {
		h.log.Warn("Received nil client registration; skipping")
		return
	}

	if err := h.manager.Connect(client.id, client); err != nil {
		client.log.Error("Failed to register connection", "error", err)
		client.Terminate()
		return
	}

	h.mutex.Lock()
	h.clients[client] = struct{}{}
	clientCount := len(h.clients)
	h.mutex.Unlock()
	client.log.Info("Client registered", "clients", clientCount)

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
}

func (h *Hub) handleUnregister(client *Client) {
	h.mutex.Lock()
	_, ok := h.clients[client]
	delete(h.clients, client)
	clientCount := len(h.clients)
	h.mutex.Unlock()

	if !ok {
		return
	}
	h.manager.Disconnect(client.id)
	client.stop()
	client.log.Info("Client unregistered", "clients", clientCount)
}

// dispatch hands a frame to the event loop. It returns false once the hub is
// shutting down.
func (h *Hub) dispatch(c *Client, payload []byte) bool {
	select {
	case h.inbound <- inboundFrame{client: c, payload: payload}:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// release schedules disconnect cleanup for c. After shutdown has begun the
// cleanup runs inline, since the event loop is no longer reading.
func (h *Hub) release(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.ctx.Done():
		h.handleUnregister(c)
	}
}

// shutdownClients asks every connected client to close.
func (h *Hub) shutdownClients() {
	h.log.Info("Shutting down all client connections...")

	h.mutex.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.RUnlock()

	for _, client := range clients {
		client.Close(websocket.CloseGoingAway, "server shutting down")
	}

	h.log.Info("Closed client connections", "count", len(clients))
}

// Shutdown initiates graceful shutdown of the hub and waits for all goroutines to complete.
// It returns after all client connections are closed and goroutines have finished,
// or when the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info("Initiating hub shutdown...")

	h.cancel()

	select {
	case <-h.done:
	case <-time.After(timeout):
		h.log.Warn("Hub event loop did not stop before timeout")
		return context.DeadlineExceeded
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		h.log.Warn("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
