package tts

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capturePlayer records Speak calls and keeps the done callbacks so tests can
// signal completion explicitly, or never.
type capturePlayer struct {
	mu    sync.Mutex
	items []Item
	dones []func(error)
}

func (p *capturePlayer) Speak(_ string, item Item, done func(error)) {
	p.mu.Lock()
	p.items = append(p.items, item)
	p.dones = append(p.dones, done)
	p.mu.Unlock()
}

func (p *capturePlayer) spoken() []Item {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Item(nil), p.items...)
}

func (p *capturePlayer) done(i int, err error) {
	p.mu.Lock()
	fn := p.dones[i]
	p.mu.Unlock()
	fn(err)
}

func TestEnqueueSerializesPlayback(t *testing.T) {
	player := &capturePlayer{}
	c := NewCoordinator(player, 10, 15, time.Hour, nil)

	c.Enqueue("sess1", "first announcement", "", 0, 0)
	c.Enqueue("sess1", "second announcement", "", 0, 0)
	c.Enqueue("sess1", "third announcement", "", 0, 0)

	// Only the head plays; the rest wait for completion.
	require.Len(t, player.spoken(), 1)
	assert.Equal(t, "first announcement", player.spoken()[0].Text)
	assert.Equal(t, 2, c.QueueDepth("sess1"))

	player.done(0, nil)
	require.Len(t, player.spoken(), 2)
	assert.Equal(t, "second announcement", player.spoken()[1].Text)

	player.done(1, nil)
	require.Len(t, player.spoken(), 3)
	assert.Equal(t, "third announcement", player.spoken()[2].Text)
	assert.Equal(t, 0, c.QueueDepth("sess1"))
}

func TestOverflowDropsOldestWaiting(t *testing.T) {
	player := &capturePlayer{}
	c := NewCoordinator(player, 2, 15, time.Hour, nil)

	c.Enqueue("sess1", "playing now", "", 0, 0)
	c.Enqueue("sess1", "waiting one", "", 0, 0)
	c.Enqueue("sess1", "waiting two", "", 0, 0)
	c.Enqueue("sess1", "waiting three", "", 0, 0)

	assert.Equal(t, 2, c.QueueDepth("sess1"))

	player.done(0, nil)
	player.done(1, nil)
	player.done(2, nil)

	var texts []string
	for _, it := range player.spoken() {
		texts = append(texts, it.Text)
	}
	// "waiting one" was the oldest waiting item and got dropped.
	assert.Equal(t, []string{"playing now", "waiting two", "waiting three"}, texts)
}

func TestFallbackTimerAdvancesSilentEngine(t *testing.T) {
	player := &capturePlayer{}
	// Short estimate so the fallback fires quickly; done is never called.
	c := NewCoordinator(player, 10, 1000, 10*time.Millisecond, nil)

	c.Enqueue("sess1", "a", "", 0, 0)
	c.Enqueue("sess1", "b", "", 0, 0)

	require.Eventually(t, func() bool {
		return len(player.spoken()) == 2
	}, 5*time.Second, 10*time.Millisecond, "fallback timer should start the next item")
	assert.Equal(t, "b", player.spoken()[1].Text)
}

func TestDoubleCompletionAdvancesOnce(t *testing.T) {
	player := &capturePlayer{}
	c := NewCoordinator(player, 10, 15, time.Hour, nil)

	first := c.Enqueue("sess1", "one", "", 0, 0)
	c.Enqueue("sess1", "two", "", 0, 0)
	c.Enqueue("sess1", "three", "", 0, 0)

	// Engine signals twice for the same item: the second must not skip "two".
	c.Complete("sess1", first.ID)
	c.Complete("sess1", first.ID)

	spoken := player.spoken()
	require.Len(t, spoken, 2)
	assert.Equal(t, "two", spoken[1].Text)
}

func TestCompletionForUnknownItemIgnored(t *testing.T) {
	player := &capturePlayer{}
	c := NewCoordinator(player, 10, 15, time.Hour, nil)

	c.Enqueue("sess1", "one", "", 0, 0)
	c.Enqueue("sess1", "two", "", 0, 0)

	c.Complete("sess1", "no-such-item")
	c.Complete("sess2", "no-such-session")

	require.Len(t, player.spoken(), 1)
	assert.Equal(t, 1, c.QueueDepth("sess1"))
}

func TestEngineErrorStillAdvances(t *testing.T) {
	player := &capturePlayer{}
	c := NewCoordinator(player, 10, 15, time.Hour, nil)

	c.Enqueue("sess1", "one", "", 0, 0)
	c.Enqueue("sess1", "two", "", 0, 0)

	player.done(0, assert.AnError)

	spoken := player.spoken()
	require.Len(t, spoken, 2)
	assert.Equal(t, "two", spoken[1].Text)
}

func TestSessionsQueueIndependently(t *testing.T) {
	player := &capturePlayer{}
	c := NewCoordinator(player, 10, 15, time.Hour, nil)

	c.Enqueue("sess1", "for session one", "", 0, 0)
	c.Enqueue("sess2", "for session two", "", 0, 0)

	// Both sessions play immediately; neither waits on the other.
	require.Len(t, player.spoken(), 2)
}
