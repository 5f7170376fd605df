// Package server manages individual WebSocket clients, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package server

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const writeWait = 10 * time.Second

// outbound is one queued frame for the write pump.
type outbound struct {
	messageType int
	payload     []byte
}

// Client is one WebSocket connection. It implements relay.Transport: every
// method only queues work for the write pump or closes the socket, so the
// relay never waits on a peer.
type Client struct {
	id          string
	conn        *websocket.Conn
	send        chan outbound
	hub         *Hub
	addr        string
	done        chan struct{}
	stopOnce    sync.Once
	readLimit   int64
	pongWait    time.Duration
	rateLimiter *rate.Limiter
	log         *slog.Logger
}

// NewClient creates a Client for conn with a fresh connection ID. The send
// queue is buffered so broadcasts never block on a slow reader.
func NewClient(conn *websocket.Conn, hub *Hub, addr string) *Client {
	cfg := hub.cfg
	id := uuid.NewString()

	var limiter *rate.Limiter
	if cfg.RateLimit.Burst > 0 {
		perSecond := float64(cfg.RateLimit.Burst) / cfg.RateLimit.RefillInterval.Seconds()
		limiter = rate.NewLimiter(rate.Limit(perSecond), cfg.RateLimit.Burst)
	}

	if conn != nil && cfg.MaxMessageSize > 0 {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	return &Client{
		id:          id,
		conn:        conn,
		send:        make(chan outbound, cfg.SendBufferSize),
		hub:         hub,
		addr:        addr,
		done:        make(chan struct{}),
		readLimit:   cfg.MaxMessageSize,
		pongWait:    2*cfg.HeartbeatInterval + writeWait,
		rateLimiter: limiter,
		log:         hub.log.With("conn_id", id, "remote_addr", addr),
	}
}

// ID returns the connection ID announced to the client in its hello frame.
func (c *Client) ID() string {
	return c.id
}

func (c *Client) enqueue(msg outbound) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// Deliver queues a text frame. It returns false when the client is gone or
// its queue is full.
func (c *Client) Deliver(payload []byte) bool {
	return c.enqueue(outbound{messageType: websocket.TextMessage, payload: payload})
}

// Probe queues a ping.
func (c *Client) Probe() bool {
	return c.enqueue(outbound{messageType: websocket.PingMessage})
}

// Close queues a close frame behind any pending frames. If the queue is full
// the socket is dropped instead.
func (c *Client) Close(code int, reason string) {
	msg := outbound{
		messageType: websocket.CloseMessage,
		payload:     websocket.FormatCloseMessage(code, reason),
	}
	if !c.enqueue(msg) {
		c.Terminate()
	}
}

// Terminate closes the socket without a closing handshake. The read pump
// then fails and the hub runs disconnect cleanup.
func (c *Client) Terminate() {
	if c.conn == nil {
		return
	}
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		c.log.Warn("Error terminating connection", "error", err)
	}
}

// stop ends the write pump. Safe to call more than once.
func (c *Client) stop() {
	c.stopOnce.Do(func() { close(c.done) })
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.pongWait)); err != nil {
		c.log.Warn("Error setting initial read deadline", "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		c.hub.manager.MarkAlive(c.id)
		if err := c.conn.SetReadDeadline(time.Now().Add(c.pongWait)); err != nil {
			c.log.Warn("Error setting read deadline in pong handler", "error", err)
		}
		return nil
	})
}

// handleReadError logs appropriate messages based on the error type.
func (c *Client) handleReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Info("Frame exceeded maximum size", "limit", c.readLimit)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseNoStatusReceived):
		c.log.Debug("Client disconnected", "reason", err)
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.log.Debug("Client connection closed", "reason", err)
	case websocket.IsUnexpectedCloseError(err):
		c.log.Info("Unexpected WebSocket close", "error", err)
	default:
		c.log.Info("WebSocket read error", "error", err)
	}
}

// checkRateLimit reports whether the next frame may be processed.
func (c *Client) checkRateLimit() bool {
	if c.rateLimiter != nil && !c.rateLimiter.Allow() {
		c.hub.metrics.FrameRateLimited()
		c.log.Debug("Rate limit exceeded; discarding frame")
		return false
	}
	return true
}

func (c *Client) readPump() {
	defer func() {
		c.hub.release(c)
		c.Terminate()
	}()

	c.setupReadConnection()

	for {
		messageType, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		if !c.checkRateLimit() {
			continue
		}
		if !c.hub.dispatch(c, raw) {
			return
		}
	}
}

func (c *Client) writePump() {
	defer c.Terminate()

	for {
		select {
		case msg := <-c.send:
			if !c.write(msg) {
				return
			}
		case <-c.done:
			return
		}
	}
}

// write sends one queued frame and returns false when the pump should stop.
func (c *Client) write(msg outbound) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Debug("Error setting write deadline", "error", err)
		return false
	}

	if err := c.conn.WriteMessage(msg.messageType, msg.payload); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Info("Error writing frame", "error", err)
		}
		return false
	}

	// A close frame ends the connection.
	return msg.messageType != websocket.CloseMessage
}
