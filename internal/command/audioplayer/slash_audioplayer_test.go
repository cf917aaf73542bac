package audioplayer

import (
	"testing"

	"github.com/keshon/memoria/internal/audio"
	"github.com/keshon/memoria/internal/nowplaying"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelReply(t *testing.T) {
	assert.Equal(t, "The player will appear in <#5> while audio is playing.", channelReply("", "5"))
	assert.Equal(t, "AudioPlayer is not set to any channel. The player will not appear in this server.", channelReply("", ""))
	assert.Equal(t, "AudioPlayer channel cleared. The player will not appear in this server.", channelReply("5", ""))
}

func TestPressButtons(t *testing.T) {
	_, err := press(nil, nowplaying.ButtonSkip)
	assert.ErrorIs(t, err, audio.ErrNoTrackPlaying)

	p := audio.NewPlayer("1")
	p.Enqueue(audio.Track{Title: "one"}, audio.Track{Title: "two"})

	res, err := press(p, nowplaying.ButtonPause)
	require.NoError(t, err)
	assert.True(t, res.ephemeral)
	assert.Equal(t, "⏸️ Playback Paused", res.text)
	assert.True(t, p.Snapshot().Paused)

	res, err = press(p, nowplaying.ButtonPause)
	require.NoError(t, err)
	assert.Equal(t, "▶️ Playback Resumed", res.text)

	res, err = press(p, nowplaying.ButtonSkip)
	require.NoError(t, err)
	assert.False(t, res.ephemeral)
	assert.Equal(t, "two", p.Snapshot().Current.Title)

	_, err = press(p, nowplaying.ButtonPrevious)
	require.NoError(t, err)
	assert.Equal(t, "one", p.Snapshot().Current.Title)

	_, err = press(p, nowplaying.ButtonStop)
	require.NoError(t, err)
	assert.Nil(t, p.Snapshot().Current)

	_, err = press(p, nowplaying.ButtonStop)
	assert.Equal(t, "Nothing is playing.", buttonError(err))

	_, err = press(p, "audioplayer:dance")
	assert.ErrorIs(t, err, errUnknownButton)
	assert.Equal(t, "Oops! Try again.", buttonError(err))
}
