package server_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/roomrelay/internal/server"
)

const (
	testOrigin  = "http://localhost:10000"
	frameWait   = 2 * time.Second
	quietPeriod = 200 * time.Millisecond
)

// startRelay runs a hub behind an httptest server and returns the hub and
// the WebSocket URL. customize may adjust the configuration before the hub
// is built.
func startRelay(t *testing.T, customize func(*server.Config), opts ...server.HubOption) (*server.Hub, *httptest.Server, string) {
	t.Helper()

	cfg := server.NewConfig()
	cfg.AllowedOrigins = testOrigin
	if customize != nil {
		customize(cfg)
	}

	hub := server.NewHub(cfg, opts...)
	server.StartHub(hub)

	ts := httptest.NewServer(server.SetupRoutes(hub, nil))
	t.Cleanup(func() {
		_ = hub.Shutdown(frameWait)
		ts.Close()
	})

	return hub, ts, "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

// peer is a test WebSocket client. A background goroutine reads every frame
// so control frames such as pings are answered while the test waits.
type peer struct {
	t      *testing.T
	conn   *websocket.Conn
	id     string
	frames chan map[string]any
	err    chan error
}

func dialWithOrigin(url, origin string) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}
	return dialer.Dial(url, headers)
}

// connect dials url, starts the reader and consumes the hello frame.
func connect(t *testing.T, url string) *peer {
	t.Helper()

	conn, resp, err := dialWithOrigin(url, testOrigin)
	if resp != nil {
		_ = resp.Body.Close()
	}
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	p := &peer{
		t:      t,
		conn:   conn,
		frames: make(chan map[string]any, 64),
		err:    make(chan error, 1),
	}
	go p.readLoop()

	hello := p.expect("hello")
	id, ok := hello["id"].(string)
	require.True(t, ok, "hello carries an id")
	require.NotEmpty(t, id)
	p.id = id
	return p
}

func (p *peer) readLoop() {
	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			p.err <- err
			return
		}
		var frame map[string]any
		if err := json.Unmarshal(data, &frame); err != nil {
			p.err <- err
			return
		}
		p.frames <- frame
	}
}

func (p *peer) send(v any) {
	p.t.Helper()
	require.NoError(p.t, p.conn.WriteJSON(v))
}

func (p *peer) sendRaw(raw string) {
	p.t.Helper()
	require.NoError(p.t, p.conn.WriteMessage(websocket.TextMessage, []byte(raw)))
}

// next returns the next frame, failing the test if none arrives in time.
func (p *peer) next() map[string]any {
	p.t.Helper()
	select {
	case frame := <-p.frames:
		return frame
	case err := <-p.err:
		p.t.Fatalf("connection ended while waiting for a frame: %v", err)
	case <-time.After(frameWait):
		p.t.Fatal("timed out waiting for a frame")
	}
	return nil
}

// expect reads the next frame and checks its type.
func (p *peer) expect(frameType string) map[string]any {
	p.t.Helper()
	frame := p.next()
	require.Equal(p.t, frameType, frame["type"], "frame: %v", frame)
	return frame
}

// expectEvent reads an event frame and its following presence snapshot.
func (p *peer) expectEvent(event string) (map[string]any, []any) {
	p.t.Helper()
	ev := p.expect("event")
	require.Equal(p.t, event, ev["event"])
	users := p.expect("users")
	list, ok := users["users"].([]any)
	require.True(p.t, ok, "users frame carries a list")
	return ev, list
}

// expectQuiet fails if a frame arrives within the quiet period.
func (p *peer) expectQuiet() {
	p.t.Helper()
	select {
	case frame := <-p.frames:
		p.t.Fatalf("unexpected frame: %v", frame)
	case <-time.After(quietPeriod):
	}
}

// expectClosed waits for the connection to end and returns the read error.
func (p *peer) expectClosed() error {
	p.t.Helper()
	for {
		select {
		case <-p.frames:
		case err := <-p.err:
			return err
		case <-time.After(frameWait):
			p.t.Fatal("timed out waiting for the connection to close")
			return nil
		}
	}
}

func userIDs(list []any) []string {
	ids := make([]string, 0, len(list))
	for _, u := range list {
		if m, ok := u.(map[string]any); ok {
			if id, ok := m["id"].(string); ok {
				ids = append(ids, id)
			}
		}
	}
	return ids
}
