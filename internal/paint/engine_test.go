package paint

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock drives Engine.now deterministically.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time            { return c.now }
func (c *fakeClock) Advance(d time.Duration)   { c.now = c.now.Add(d) }

func newTestEngine(t *testing.T) (*Engine, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	e := NewEngine(60 * time.Second)
	e.now = clock.Now
	return e, clock
}

func TestApplyFillAndCooldown(t *testing.T) {
	e, clock := newTestEngine(t)
	tpl, ok := LookupTemplate("heart")
	require.True(t, ok)
	st := e.NewState(tpl)

	// Alice paints region 3 red.
	changed := e.Apply(tpl, st, "alice", Command{RegionID: 3, Color: "#ff0000"})
	require.True(t, changed)
	fill := st.Fills[3]
	require.NotNil(t, fill)
	assert.True(t, fill.Filled)
	assert.Equal(t, "alice", fill.FilledBy)
	assert.Equal(t, "#ff0000", fill.Color)
	assert.False(t, fill.FilledAt.IsZero())

	// Bob tries the same region within the cooldown: silently rejected.
	clock.Advance(time.Second)
	changed = e.Apply(tpl, st, "bob", Command{RegionID: 3, Color: "#0000ff"})
	assert.False(t, changed)
	assert.Equal(t, "alice", st.Fills[3].FilledBy)
	assert.Equal(t, "#ff0000", st.Fills[3].Color)

	// Alice repainting inside her own cooldown is also a no-op.
	changed = e.Apply(tpl, st, "alice", Command{RegionID: 3, Color: "#0000ff"})
	assert.False(t, changed)
	assert.Equal(t, "#ff0000", st.Fills[3].Color)

	// After the cooldown elapses Alice may recolor.
	clock.Advance(65 * time.Second)
	changed = e.Apply(tpl, st, "alice", Command{RegionID: 3, Color: "#0000ff"})
	require.True(t, changed)
	assert.Equal(t, "#0000ff", st.Fills[3].Color)
	assert.Equal(t, "alice", st.Fills[3].FilledBy)
}

func TestApplyUnknownRegionIgnored(t *testing.T) {
	e, _ := newTestEngine(t)
	tpl, _ := LookupTemplate("heart")
	st := e.NewState(tpl)

	assert.False(t, e.Apply(tpl, st, "alice", Command{RegionID: 999}))
	assert.Empty(t, st.Fills)
}

func TestApplyDefaultColorWhenNoneGiven(t *testing.T) {
	e, _ := newTestEngine(t)
	tpl, _ := LookupTemplate("heart")
	st := e.NewState(tpl)

	require.True(t, e.Apply(tpl, st, "alice", Command{RegionID: 1}))
	assert.Equal(t, tpl.Regions[1].DefaultColor, st.Fills[1].Color)
}

func TestCompletionMonotonic(t *testing.T) {
	e, clock := newTestEngine(t)
	tpl, _ := LookupTemplate("heart")
	st := e.NewState(tpl)

	ids := tpl.RegionIDs()
	for _, id := range ids {
		require.True(t, e.Apply(tpl, st, "alice", Command{RegionID: id}))
	}
	require.NotNil(t, st.CompletedAt)
	completedAt := *st.CompletedAt

	// A later same-user recolor does not move the completion timestamp.
	clock.Advance(2 * time.Minute)
	require.True(t, e.Apply(tpl, st, "alice", Command{RegionID: ids[0], Color: "#123456"}))
	require.NotNil(t, st.CompletedAt)
	assert.Equal(t, completedAt, *st.CompletedAt)
}

func TestCompletionSetAtTransitionInstant(t *testing.T) {
	e, clock := newTestEngine(t)
	tpl, _ := LookupTemplate("star")
	st := e.NewState(tpl)

	ids := tpl.RegionIDs()
	for _, id := range ids[:len(ids)-1] {
		e.Apply(tpl, st, "alice", Command{RegionID: id})
		assert.Nil(t, st.CompletedAt)
		clock.Advance(time.Second)
	}
	e.Apply(tpl, st, "alice", Command{RegionID: ids[len(ids)-1]})
	require.NotNil(t, st.CompletedAt)
	assert.Equal(t, clock.Now(), *st.CompletedAt)
}

func TestFillAllBypassesCooldown(t *testing.T) {
	e, clock := newTestEngine(t)
	tpl, _ := LookupTemplate("heart")
	st := e.NewState(tpl)

	require.True(t, e.Apply(tpl, st, "alice", Command{RegionID: 3, Color: "#ff0000"}))
	clock.Advance(time.Second)

	e.FillAll(tpl, st, "broadcaster")
	for _, id := range tpl.RegionIDs() {
		fill := st.Fills[id]
		require.NotNil(t, fill)
		assert.True(t, fill.Filled)
		assert.Equal(t, "broadcaster", fill.FilledBy)
		assert.Equal(t, clock.Now(), fill.FilledAt)
	}
	// An existing override color survives the administrative fill.
	assert.Equal(t, "#ff0000", st.Fills[3].Color)
	require.NotNil(t, st.CompletedAt)
}

func TestFilledRegionAlwaysCarriesIdentity(t *testing.T) {
	e, _ := newTestEngine(t)
	tpl, _ := LookupTemplate("heart")
	st := e.NewState(tpl)

	for _, id := range tpl.RegionIDs() {
		e.Apply(tpl, st, "carol", Command{RegionID: id})
	}
	for _, fill := range st.Fills {
		if fill.Filled {
			assert.NotEmpty(t, fill.FilledBy)
			assert.False(t, fill.FilledAt.IsZero())
		}
	}
}
