package hub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSupervisor_SweepEndsIdleSessions(t *testing.T) {
	r := NewRegistry()

	now := time.Now()
	r.clock = func() time.Time { return now }

	_, err := r.Register("stale", "desc", "conn-1")
	require.NoError(t, err)

	sv := NewSupervisor(r, 30*time.Minute, time.Minute)

	// Not idle long enough yet.
	now = now.Add(10 * time.Minute)
	sv.SweepNow()
	assert.Equal(t, 1, r.Count())

	// Past the threshold.
	now = now.Add(25 * time.Minute)
	sv.SweepNow()
	assert.Equal(t, 0, r.Count())
}

func TestSupervisor_ActivityRefreshesDeadline(t *testing.T) {
	r := NewRegistry()

	now := time.Now()
	r.clock = func() time.Time { return now }

	_, err := r.Register("alpha", "desc", "conn-1")
	require.NoError(t, err)

	sv := NewSupervisor(r, 30*time.Minute, time.Minute)

	// A connect refreshes lastActivity, so the session survives the sweep.
	now = now.Add(25 * time.Minute)
	require.NoError(t, r.Connect("alpha", "intent", "bob", "conn-2"))
	now = now.Add(25 * time.Minute)
	sv.SweepNow()
	assert.Equal(t, 1, r.Count())

	now = now.Add(31 * time.Minute)
	sv.SweepNow()
	assert.Equal(t, 0, r.Count())
}

func TestSupervisor_ReleasesBlockedWaiterWithTimeout(t *testing.T) {
	r := NewRegistry()
	s, err := r.Register("alpha", "desc", "conn-1")
	require.NoError(t, err)

	sv := NewSupervisor(r, 100*time.Millisecond, time.Minute)

	done := make(chan error, 1)
	go func() {
		_, err := r.WaitInbound(context.Background(), s, 10*time.Second)
		done <- err
	}()

	// Blocking is not activity: the parked session still ages out.
	time.Sleep(200 * time.Millisecond)
	sv.SweepNow()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrTimeout)
	case <-time.After(2 * time.Second):
		t.Fatal("blocked waiter was left hanging after idle reclaim")
	}
}

func TestSupervisor_StartStop(t *testing.T) {
	r := NewRegistry()
	sv := NewSupervisor(r, time.Minute, time.Minute)

	require.NoError(t, sv.Start())
	assert.True(t, sv.IsRunning())
	assert.Error(t, sv.Start())

	require.NoError(t, sv.Stop())
	assert.False(t, sv.IsRunning())
	assert.Error(t, sv.Stop())
}

func TestSupervisor_Defaults(t *testing.T) {
	sv := NewSupervisor(NewRegistry(), 0, 0)
	assert.Equal(t, DefaultIdleTimeout, sv.IdleTimeout())
	assert.Equal(t, DefaultSweepInterval, sv.sweepInterval)
}
