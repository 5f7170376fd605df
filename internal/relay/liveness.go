package relay

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultHeartbeatInterval is the time between liveness sweeps.
const DefaultHeartbeatInterval = 30 * time.Second

// MarkAlive records a heartbeat response from id.
func (m *Manager) MarkAlive(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[id]; ok {
		s.alive = true
	}
}

// Sweep runs one heartbeat round. Sessions that did not answer the previous
// probe are terminated; their cleanup arrives later through Disconnect. The
// rest are marked unanswered and probed again.
func (m *Manager) Sweep() (probed, terminated int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, s := range m.sessions {
		if !s.alive {
			if !s.terminated {
				s.terminated = true
				m.metrics.HeartbeatTerminated()
				m.log.Info("Terminating unresponsive connection", "conn_id", id)
			}
			s.transport.Terminate()
			terminated++
			continue
		}

		s.alive = false
		if !s.transport.Probe() {
			m.log.Debug("Heartbeat probe not queued", "conn_id", id)
		}
		probed++
	}
	return probed, terminated
}

// Monitor drives Manager.Sweep on a fixed interval.
type Monitor struct {
	manager  *Manager
	clock    clockwork.Clock
	interval time.Duration
}

// NewMonitor creates a monitor. A non-positive interval selects
// DefaultHeartbeatInterval; a nil clock selects the real clock.
func NewMonitor(m *Manager, clock clockwork.Clock, interval time.Duration) *Monitor {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	return &Monitor{manager: m, clock: clock, interval: interval}
}

// Interval returns the time between sweeps.
func (mon *Monitor) Interval() time.Duration { return mon.interval }

// Run sweeps once per interval until ctx is cancelled.
func (mon *Monitor) Run(ctx context.Context) {
	ticker := mon.clock.NewTicker(mon.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			probed, terminated := mon.manager.Sweep()
			mon.manager.log.Debug("Heartbeat sweep", "probed", probed, "terminated", terminated)
		}
	}
}
