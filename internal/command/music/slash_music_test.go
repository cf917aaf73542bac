package music

import (
	"testing"
	"time"

	"github.com/keshon/memoria/internal/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLength(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"3:25", 205 * time.Second, true},
		{"1:02:03", time.Hour + 2*time.Minute + 3*time.Second, true},
		{"90", 90 * time.Second, true},
		{"1:75", 0, false},
		{"a:10", 0, false},
		{"0:00", 0, false},
		{"1:2:3:4", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseLength(tt.in)
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseTrack(t *testing.T) {
	tr, err := parseTrack("https://example.com/song.mp3", "Song", "2:00")
	require.NoError(t, err)
	assert.Equal(t, audio.Track{Title: "Song", URL: "https://example.com/song.mp3", Length: 2 * time.Minute}, tr)

	tr, err = parseTrack("Lofi radio", "", "")
	require.NoError(t, err)
	assert.Equal(t, "Lofi radio", tr.Title)
	assert.Empty(t, tr.URL)
	assert.True(t, tr.Stream)

	_, err = parseTrack("  ", "", "")
	assert.ErrorIs(t, err, errEmptyInput)
}

func TestControl(t *testing.T) {
	p := audio.NewPlayer("1")
	_, err := control(p, "pause")
	assert.ErrorIs(t, err, audio.ErrNoTrackPlaying)

	p.Enqueue(audio.Track{Title: "one"})
	embed, err := control(p, "pause")
	require.NoError(t, err)
	assert.Equal(t, "⏸️ Playback Paused", embed.Description)

	embed, err = control(p, "next")
	require.NoError(t, err)
	assert.Equal(t, "⏩ Skipped. The queue is empty.", embed.Description)

	_, err = control(p, "prev")
	require.NoError(t, err)
	assert.Equal(t, "one", p.Snapshot().Current.Title)

	_, err = control(p, "shuffle")
	assert.Error(t, err)
}

func TestStatusEmbed(t *testing.T) {
	e := statusEmbed(audio.StatusPlaying, audio.Track{Title: "Song", URL: "https://x.test/a"})
	assert.Equal(t, "▶️ Now Playing", e.Title)
	assert.Equal(t, "🎶 [Song](https://x.test/a)", e.Description)

	e = statusEmbed(audio.StatusAdded, audio.Track{Title: "Song"})
	assert.Equal(t, "🎶 Track(s) Added", e.Title)
	assert.Equal(t, "🎶 Song\nAdded to queue", e.Description)
}
