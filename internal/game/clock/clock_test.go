package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNow struct{ t time.Time }

func (f *fakeNow) now() time.Time          { return f.t }
func (f *fakeNow) advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestClock(seconds int) (*Clock, *fakeNow) {
	f := &fakeNow{t: time.Date(2026, 1, 1, 19, 0, 0, 0, time.UTC)}
	return New(seconds, WithNow(f.now)), f
}

func TestClockCountsWallTime(t *testing.T) {
	c, f := newTestClock(720)
	c.Start()

	f.advance(1500 * time.Millisecond)
	assert.False(t, c.Tick())
	assert.Equal(t, 719, c.SecondsRemaining(), "partial seconds round up")

	// Irregular polling neither loses nor double counts time.
	f.advance(250 * time.Millisecond)
	c.Tick()
	f.advance(250 * time.Millisecond)
	c.Tick()
	assert.Equal(t, 718, c.SecondsRemaining())

	c.Pause()
	f.advance(time.Minute)
	c.Tick()
	assert.Equal(t, 718, c.SecondsRemaining(), "paused clock does not move")
	assert.False(t, c.Running())
}

func TestClockPeriodEndFiresOnce(t *testing.T) {
	c, f := newTestClock(2)
	var ended []int
	c.OnPeriodEnd = func(q int) { ended = append(ended, q) }
	require.NoError(t, c.SetQuarter(3))

	c.Start()
	f.advance(5 * time.Second)
	assert.True(t, c.Tick())
	assert.False(t, c.Tick())
	assert.Equal(t, []int{3}, ended)
	assert.True(t, c.Expired())
	assert.Equal(t, Snapshot{Quarter: 3, SecondsRemaining: 0}, c.Snapshot())

	c.Start()
	assert.False(t, c.Running(), "expired clock stays stopped")
}

func TestClockSetAndReset(t *testing.T) {
	c, f := newTestClock(0)
	assert.True(t, c.Expired())

	require.NoError(t, c.Reset(300))
	assert.False(t, c.Expired())
	c.Start()
	f.advance(10 * time.Second)
	require.NoError(t, c.SetTime(100))
	assert.True(t, c.Running(), "set keeps the clock running")
	f.advance(time.Second)
	c.Tick()
	assert.Equal(t, 99, c.SecondsRemaining())

	require.NoError(t, c.Reset(300))
	assert.False(t, c.Running())
	assert.Error(t, c.SetTime(-1))
	assert.Error(t, c.SetQuarter(0))
}
