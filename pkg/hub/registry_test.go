package hub

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterDuplicateName(t *testing.T) {
	r := NewRegistry()

	_, err := r.Register("alpha", "auth expert", "conn-1")
	require.NoError(t, err)

	// A different connection cannot take an active name.
	_, err = r.Register("alpha", "impostor", "conn-2")
	assert.ErrorIs(t, err, ErrNameTaken)

	// After the session ends, the name is available again.
	r.End("alpha", "alpha", ReasonExplicit)
	_, err = r.Register("alpha", "fresh", "conn-2")
	assert.NoError(t, err)
}

func TestRegistry_RegisterReentry(t *testing.T) {
	r := NewRegistry()

	first, err := r.Register("alpha", "desc", "conn-1")
	require.NoError(t, err)

	// Same connection listening again gets the same session back, with the
	// description refreshed.
	again, err := r.Register("alpha", "updated desc", "conn-1")
	require.NoError(t, err)
	assert.Same(t, first, again)
	assert.Equal(t, "updated desc", again.Description)
	assert.Equal(t, 1, r.Count())
}

func TestRegistry_ConnectNotFound(t *testing.T) {
	r := NewRegistry()

	err := r.Connect("ghost", "intent", "bob", "conn-2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_ConnectAlreadyConnected(t *testing.T) {
	r := NewRegistry()

	_, err := r.Register("alpha", "desc", "conn-1")
	require.NoError(t, err)

	require.NoError(t, r.Connect("alpha", "fix X", "bob", "conn-2"))

	err = r.Connect("alpha", "steal focus", "carol", "conn-3")
	assert.ErrorIs(t, err, ErrNotListening)
}

func TestRegistry_ConnectRace(t *testing.T) {
	r := NewRegistry()

	_, err := r.Register("alpha", "desc", "conn-1")
	require.NoError(t, err)

	const racers = 8
	errs := make([]error, racers)
	var wg sync.WaitGroup
	var start sync.WaitGroup
	start.Add(1)

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			start.Wait()
			errs[i] = r.Connect("alpha", "intent", "caller", "conn-x")
		}(i)
	}
	start.Done()
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, ErrNotListening)
		}
	}
	assert.Equal(t, 1, winners)
}

func TestRegistry_ListSnapshot(t *testing.T) {
	r := NewRegistry()

	_, err := r.Register("beta", "second", "conn-2")
	require.NoError(t, err)
	_, err = r.Register("alpha", "first", "conn-1")
	require.NoError(t, err)
	require.NoError(t, r.Connect("beta", "intent", "bob", "conn-3"))

	infos := r.List()
	require.Len(t, infos, 2)

	// Sorted by name for stable output.
	assert.Equal(t, "alpha", infos[0].Name)
	assert.Equal(t, "first", infos[0].Description)
	assert.Equal(t, "listening", infos[0].State)
	assert.False(t, infos[0].Busy)

	assert.Equal(t, "beta", infos[1].Name)
	assert.Equal(t, "connected", infos[1].State)
	assert.True(t, infos[1].Busy)
}

func TestRegistry_Refocus(t *testing.T) {
	r := NewRegistry()

	_, err := r.Register("alpha", "desc", "conn-1")
	require.NoError(t, err)

	// Refocus before anyone connects fails.
	_, err = r.Refocus("alpha", "new focus")
	assert.ErrorIs(t, err, ErrNotConnected)

	require.NoError(t, r.Connect("alpha", "old focus", "bob", "conn-2"))

	// By session name.
	old, err := r.Refocus("alpha", "new focus")
	require.NoError(t, err)
	assert.Equal(t, "old focus", old)

	// By caller name.
	old, err = r.Refocus("bob", "newer focus")
	require.NoError(t, err)
	assert.Equal(t, "new focus", old)

	_, err = r.Refocus("ghost", "whatever")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_EndIdempotent(t *testing.T) {
	r := NewRegistry()

	_, err := r.Register("alpha", "desc", "conn-1")
	require.NoError(t, err)

	r.End("alpha", "alpha", ReasonExplicit)
	assert.Equal(t, 0, r.Count())

	// Ending again, or ending an unknown name, is a no-op.
	r.End("alpha", "alpha", ReasonExplicit)
	r.End("ghost", "ghost", ReasonExplicit)
	assert.Equal(t, 0, r.Count())
}

func TestRegistry_EndClearsCallerIndex(t *testing.T) {
	r := NewRegistry()

	_, err := r.Register("alpha", "desc", "conn-1")
	require.NoError(t, err)
	require.NoError(t, r.Connect("alpha", "intent", "bob", "conn-2"))

	r.End("alpha", "alpha", ReasonExplicit)

	// bob no longer resolves to a session.
	_, err = r.WaitOutbound(context.Background(), "bob", 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_ReleaseConn(t *testing.T) {
	r := NewRegistry()

	// conn-1 listens on two sessions, conn-2 calls into one of them.
	_, err := r.Register("alpha", "desc", "conn-1")
	require.NoError(t, err)
	_, err = r.Register("beta", "desc", "conn-1")
	require.NoError(t, err)
	require.NoError(t, r.Connect("alpha", "intent", "bob", "conn-2"))

	// Caller disconnect ends only the session it was party to.
	r.ReleaseConn("conn-2")
	assert.Equal(t, 1, r.Count())

	// Listener disconnect ends the rest.
	r.ReleaseConn("conn-1")
	assert.Equal(t, 0, r.Count())
}

func TestRegistry_EndBy(t *testing.T) {
	r := NewRegistry()

	s, err := r.Register("alpha", "desc", "conn-1")
	require.NoError(t, err)
	require.NoError(t, r.Connect("alpha", "intent", "bob", "conn-2"))

	// Ended from the caller's connection, the end is attributed to the caller.
	r.EndBy("alpha", "conn-2")
	assert.Equal(t, 0, r.Count())
	assert.Equal(t, "bob", s.endInitiator)
}
