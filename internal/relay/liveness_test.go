package relay

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/roomrelay/internal/metrics"
)

func (f *fakeTransport) counts() (probes, terminated int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.probes, f.terminated
}

func TestSweep_ProbesThenTerminatesSilentConnections(t *testing.T) {
	rm := metrics.NewRelay(prometheus.NewRegistry())
	m := NewManager(WithMetrics(rm))
	quiet := connect(t, m, "quiet")
	chatty := connect(t, m, "chatty")

	probed, terminated := m.Sweep()
	assert.Equal(t, 2, probed)
	assert.Equal(t, 0, terminated)

	m.MarkAlive("chatty")

	probed, terminated = m.Sweep()
	assert.Equal(t, 1, probed)
	assert.Equal(t, 1, terminated)

	p, term := quiet.counts()
	assert.Equal(t, 1, p)
	assert.Equal(t, 1, term)

	p, term = chatty.counts()
	assert.Equal(t, 2, p)
	assert.Equal(t, 0, term)

	info, ok := m.Session("chatty")
	require.True(t, ok)
	assert.False(t, info.Alive, "flag is cleared until the next pong")

	// Termination is reported once even if cleanup has not arrived yet.
	m.MarkAlive("chatty")
	m.Sweep()
	assert.Equal(t, 1.0, testutil.ToFloat64(rm.HeartbeatTerminations))
}

func TestSweep_TerminationFollowedByCleanupReleasesRooms(t *testing.T) {
	m := NewManager()
	connect(t, m, "dead")
	peer := connect(t, m, "peer")
	require.NoError(t, m.Create("peer", "r1", nil))
	require.NoError(t, m.Join("dead", "r1", nil))
	peer.take(t)

	m.Sweep()
	m.MarkAlive("peer")
	m.Sweep()

	// The transport reports the closed channel, which ends in Disconnect.
	m.Disconnect("dead")

	members, ok := m.Members("r1")
	require.True(t, ok)
	assert.Equal(t, []string{"peer"}, members)
	assert.Equal(t, []string{"event", "users"}, types(peer.take(t)))
}

func TestMarkAlive_UnknownIsNoop(t *testing.T) {
	m := NewManager()
	assert.NotPanics(t, func() { m.MarkAlive("nobody") })
}

func TestNewMonitor_Defaults(t *testing.T) {
	mon := NewMonitor(NewManager(), nil, 0)
	assert.Equal(t, DefaultHeartbeatInterval, mon.Interval())
}

func TestMonitor_SweepsOnEveryTick(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m := NewManager()
	ft := connect(t, m, "c1")

	mon := NewMonitor(m, clock, 30*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		mon.Run(ctx)
		close(done)
	}()

	waitCtx, waitCancel := context.WithTimeout(ctx, 2*time.Second)
	defer waitCancel()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))

	clock.Advance(29 * time.Second)
	p, _ := ft.counts()
	assert.Equal(t, 0, p)

	clock.Advance(time.Second)
	assert.Eventually(t, func() bool {
		p, _ := ft.counts()
		return p == 1
	}, time.Second, 10*time.Millisecond)

	// No pong arrives: the next tick reclaims the connection.
	clock.Advance(30 * time.Second)
	assert.Eventually(t, func() bool {
		_, term := ft.counts()
		return term == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop after cancel")
	}
}
