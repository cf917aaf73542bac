package audio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time      { return c.t }
func (c *clock) add(d time.Duration) { c.t = c.t.Add(d) }

func newTestPlayer() (*Player, *clock) {
	c := &clock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	return newPlayer("1", c.now), c
}

func track(title string, length time.Duration) Track {
	return Track{Title: title, URL: "https://example.com/" + title, Requester: "alice", Length: length}
}

func TestEnqueueStartsPlayback(t *testing.T) {
	p, _ := newTestPlayer()

	assert.Equal(t, StatusPlaying, p.Enqueue(track("a", time.Minute), track("b", time.Minute)))
	assert.Equal(t, StatusAdded, p.Enqueue(track("c", 0)))

	s := p.Snapshot()
	require.NotNil(t, s.Current)
	assert.Equal(t, "a", s.Current.Title)
	assert.Len(t, s.Queue, 2)
	assert.Empty(t, s.History)
}

func TestPositionClockPauseResume(t *testing.T) {
	p, c := newTestPlayer()
	p.Enqueue(track("a", 10*time.Minute))

	c.add(30 * time.Second)
	require.NoError(t, p.Pause())
	c.add(time.Hour)
	s := p.Snapshot()
	assert.True(t, s.Paused)
	assert.Equal(t, 30*time.Second, s.Position)

	require.NoError(t, p.Resume())
	c.add(15 * time.Second)
	s = p.Snapshot()
	assert.False(t, s.Paused)
	assert.Equal(t, 45*time.Second, s.Position)
}

func TestTogglePause(t *testing.T) {
	p, _ := newTestPlayer()
	_, err := p.TogglePause()
	assert.ErrorIs(t, err, ErrNoTrackPlaying)

	p.Enqueue(track("a", time.Minute))
	st, err := p.TogglePause()
	require.NoError(t, err)
	assert.Equal(t, StatusPaused, st)
	st, err = p.TogglePause()
	require.NoError(t, err)
	assert.Equal(t, StatusResumed, st)
}

func TestSkipAndPrevious(t *testing.T) {
	p, _ := newTestPlayer()
	assert.ErrorIs(t, p.Skip(), ErrNoTrackPlaying)
	assert.ErrorIs(t, p.Previous(), ErrNoHistory)

	p.Enqueue(track("a", time.Minute), track("b", time.Minute))
	require.NoError(t, p.Skip())
	s := p.Snapshot()
	assert.Equal(t, "b", s.Current.Title)
	require.Len(t, s.History, 1)
	assert.Equal(t, "a", s.History[0].Title)

	require.NoError(t, p.Previous())
	s = p.Snapshot()
	assert.Equal(t, "a", s.Current.Title)
	require.Len(t, s.Queue, 1)
	assert.Equal(t, "b", s.Queue[0].Title)
	assert.Empty(t, s.History)

	require.NoError(t, p.Skip())
	require.NoError(t, p.Skip())
	assert.Nil(t, p.Snapshot().Current)
}

func TestStopClearsQueue(t *testing.T) {
	p, _ := newTestPlayer()
	assert.ErrorIs(t, p.Stop(), ErrNoTrackPlaying)

	p.Enqueue(track("a", time.Minute), track("b", time.Minute))
	require.NoError(t, p.Stop())
	s := p.Snapshot()
	assert.Nil(t, s.Current)
	assert.Empty(t, s.Queue)
	assert.Len(t, s.History, 1)
}

func TestTracksAdvanceWhenFinished(t *testing.T) {
	p, c := newTestPlayer()
	p.Enqueue(track("a", time.Minute), track("b", 2*time.Minute), Track{Title: "radio", Stream: true})

	c.add(70 * time.Second)
	s := p.Snapshot()
	require.NotNil(t, s.Current)
	assert.Equal(t, "b", s.Current.Title)
	assert.Equal(t, 10*time.Second, s.Position)

	c.add(3 * time.Minute)
	s = p.Snapshot()
	assert.Equal(t, "radio", s.Current.Title)

	c.add(24 * time.Hour)
	s = p.Snapshot()
	assert.Equal(t, "radio", s.Current.Title, "streams never finish on their own")
	assert.Len(t, s.History, 2)
}

func TestManager(t *testing.T) {
	m := NewManager()
	_, ok := m.Player("1")
	assert.False(t, ok)

	p := m.GetOrCreatePlayer("2")
	assert.Same(t, p, m.GetOrCreatePlayer("2"))
	m.GetOrCreatePlayer("1")
	assert.Equal(t, []string{"1", "2"}, m.Guilds())
}
