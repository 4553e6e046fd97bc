package game

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresenceAddIdempotentPreservesOrder(t *testing.T) {
	p := NewPresence()

	assert.True(t, p.Add("alice"))
	assert.True(t, p.Add("bob"))
	assert.False(t, p.Add("alice"))

	assert.Equal(t, []string{"alice", "bob"}, p.Order())
}

func TestPresenceReconnectPredicate(t *testing.T) {
	p := NewPresence()
	p.Add("alice")

	// Online participant: a second connection is not a reconnect.
	assert.False(t, p.IsReconnectAttempt("alice"))
	// Unknown participant: new join.
	assert.False(t, p.IsReconnectAttempt("bob"))

	p.MarkOffline("alice", time.Hour, nil)
	assert.True(t, p.IsReconnectAttempt("alice"))

	p.MarkOnline("alice")
	assert.False(t, p.IsReconnectAttempt("alice"))
}

func TestPresenceGraceExpiryRemoves(t *testing.T) {
	p := NewPresence()
	p.Add("alice")
	p.Add("bob")

	var mu sync.Mutex
	var gone []string
	var wasEmpty bool
	done := make(chan struct{})

	p.MarkOffline("alice", 10*time.Millisecond, func(name string, empty bool) {
		mu.Lock()
		gone = append(gone, name)
		wasEmpty = empty
		mu.Unlock()
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("removal timer never fired")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"alice"}, gone)
	assert.False(t, wasEmpty)
	assert.Equal(t, []string{"bob"}, p.Order())
}

func TestPresenceLastExpiryReportsEmpty(t *testing.T) {
	p := NewPresence()
	p.Add("alice")

	done := make(chan bool, 1)
	p.MarkOffline("alice", 10*time.Millisecond, func(_ string, empty bool) {
		done <- empty
	})

	select {
	case empty := <-done:
		assert.True(t, empty)
	case <-time.After(time.Second):
		t.Fatal("removal timer never fired")
	}
	assert.True(t, p.Empty())
}

func TestPresenceReconnectCancelsRemoval(t *testing.T) {
	p := NewPresence()
	p.Add("alice")

	fired := make(chan string, 1)
	p.MarkOffline("alice", 30*time.Millisecond, func(name string, _ bool) {
		fired <- name
	})
	p.MarkOnline("alice")

	select {
	case name := <-fired:
		t.Fatalf("removal fired for %s after reconnect", name)
	case <-time.After(100 * time.Millisecond):
	}
	require.True(t, p.Contains("alice"))
	assert.True(t, p.Online("alice"))
}

func TestPresenceExpiryRechecksOnlineFlag(t *testing.T) {
	// Even if the timer outlives cancellation, a participant that came
	// back online must survive the fire-time recheck.
	p := NewPresence()
	p.Add("alice")

	fired := make(chan struct{}, 1)
	p.MarkOffline("alice", 5*time.Millisecond, func(string, bool) {
		fired <- struct{}{}
	})
	// Flip straight back; a lost Stop race must still be harmless.
	p.MarkOnline("alice")

	select {
	case <-fired:
		t.Fatal("expiry acted on an online participant")
	case <-time.After(50 * time.Millisecond):
	}
	assert.True(t, p.Contains("alice"))
}

func TestPresenceReofflineReplacesTimer(t *testing.T) {
	p := NewPresence()
	p.Add("alice")

	var calls sync.WaitGroup
	calls.Add(1)
	p.MarkOffline("alice", time.Hour, func(string, bool) { t.Error("stale timer fired") })
	p.MarkOffline("alice", 10*time.Millisecond, func(string, bool) { calls.Done() })

	calls.Wait()
	assert.False(t, p.Contains("alice"))
}
