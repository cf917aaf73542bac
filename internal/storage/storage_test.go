package storage

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/keshon/memoria/datastore"
	"github.com/keshon/memoria/internal/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	ds, err := datastore.NewWithConfig(&datastore.Config{
		FilePath: filepath.Join(t.TempDir(), "db.json"),
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { ds.Close() })
	return NewWithDatastore(ds)
}

func TestSettingsDefaultsAndUpdate(t *testing.T) {
	s := newTestStorage(t)

	got, err := s.Settings("1")
	require.NoError(t, err)
	assert.Equal(t, config.DefaultGuildSettings(), got)

	err = s.UpdateSettings("1", func(g *config.GuildSettings) error {
		g.Responder.Model = "gpt-5-mini"
		g.Channels = append(g.Channels, "42")
		return nil
	})
	require.NoError(t, err)

	got, err = s.Settings("1")
	require.NoError(t, err)
	assert.Equal(t, "gpt-5-mini", got.Responder.Model)
	assert.Equal(t, []string{"42"}, got.Channels)
	assert.Equal(t, config.PromptMemorizer, got.Memorizer.Prompt)
}

func TestUpdateMemoryRollsBackOnError(t *testing.T) {
	s := newTestStorage(t)

	require.NoError(t, s.UpdateMemory("1", func(m map[string]string) error {
		m["Alice"] = "likes tea"
		return nil
	}))

	err := s.UpdateMemory("1", func(m map[string]string) error {
		delete(m, "Alice")
		return errors.New("abort")
	})
	require.Error(t, err)

	mem, err := s.Memory("1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Alice": "likes tea"}, mem)
}

func TestCredentials(t *testing.T) {
	s := newTestStorage(t)

	_, err := s.Credential("serper", "api_key")
	assert.ErrorIs(t, err, ErrNoCredential)

	require.NoError(t, s.SetCredential("serper", "api_key", "runtime"))
	require.NoError(t, s.SeedCredentials(map[string]map[string]string{
		"serper": {"api_key": "env"},
		"openai": {"api_key": "sk"},
	}))

	v, err := s.Credential("serper", "api_key")
	require.NoError(t, err)
	assert.Equal(t, "runtime", v)

	v, err = s.Credential("openai", "api_key")
	require.NoError(t, err)
	assert.Equal(t, "sk", v)

	require.NoError(t, s.ClearCredential("openai", "api_key"))
	_, err = s.Credential("openai", "api_key")
	assert.ErrorIs(t, err, ErrNoCredential)
}

func TestGuildIDsSkipInternalKeys(t *testing.T) {
	s := newTestStorage(t)
	require.NoError(t, s.SetCredential("openai", "api_key", "sk"))
	require.NoError(t, s.SetPlayerChannel("2", "chan"))
	require.NoError(t, s.SetPlayerChannel("1", ""))

	assert.Equal(t, []string{"1", "2"}, s.GuildIDs())

	chans, err := s.PlayerChannels()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"2": "chan"}, chans)
}

func TestCommandHistoryIsCapped(t *testing.T) {
	s := newTestStorage(t)
	for i := 0; i < commandHistoryLimit+5; i++ {
		require.NoError(t, s.AppendCommandToHistory("1", CommandHistoryRecord{Command: "memory"}))
	}
	h, err := s.FetchCommandHistory("1")
	require.NoError(t, err)
	assert.Len(t, h, commandHistoryLimit)
}
