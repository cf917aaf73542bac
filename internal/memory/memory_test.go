package memory

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/keshon/memoria/datastore"
	"github.com/keshon/memoria/internal/storage"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const guild = "1"

func newTestStore(t *testing.T, seed map[string]map[string]string) (*Store, *storage.Storage) {
	t.Helper()
	ds, err := datastore.NewWithConfig(&datastore.Config{
		FilePath: filepath.Join(t.TempDir(), "db.json"),
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { ds.Close() })

	st := storage.NewWithDatastore(ds)
	for g, mem := range seed {
		require.NoError(t, st.UpdateMemory(g, func(m map[string]string) error {
			for k, v := range mem {
				m[k] = v
			}
			return nil
		}))
	}
	s := NewStore(st)
	require.NoError(t, s.Load())
	return s, st
}

func assertInSync(t *testing.T, s *Store, st *storage.Storage, g string) {
	t.Helper()
	durable, err := st.Memory(g)
	require.NoError(t, err)
	assert.Equal(t, durable, s.Snapshot(g))
}

func TestLoad(t *testing.T) {
	s, _ := newTestStore(t, map[string]map[string]string{
		guild: {"Bob": "likes coffee", "Alice": "likes tea"},
		"2":   {"Zed": "z"},
	})
	assert.Equal(t, []string{"Alice", "Bob"}, s.Names(guild))
	v, ok := s.Get("2", "Zed")
	assert.True(t, ok)
	assert.Equal(t, "z", v)
	assert.Empty(t, s.Names("3"))
}

func TestApplyAppend(t *testing.T) {
	s, st := newTestStore(t, map[string]map[string]string{guild: {"Alice": "likes tea"}})

	applied, err := s.Apply(guild, []Change{{Action: ActionAppend, Name: "Alice", Content: "also likes scones"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice"}, applied)

	v, _ := s.Get(guild, "Alice")
	assert.Equal(t, "likes tea ... also likes scones", v)
	assertInSync(t, s, st, guild)
}

func TestApplyCreateIsNoopWhenPresent(t *testing.T) {
	s, st := newTestStore(t, map[string]map[string]string{guild: {"Alice": "likes tea"}})

	applied, err := s.Apply(guild, []Change{
		{Action: ActionCreate, Name: "Alice", Content: "replaced"},
		{Action: ActionCreate, Name: "Carol", Content: "new here"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Carol"}, applied)

	v, _ := s.Get(guild, "Alice")
	assert.Equal(t, "likes tea", v)
	v, _ = s.Get(guild, "Carol")
	assert.Equal(t, "new here", v)
	assertInSync(t, s, st, guild)
}

func TestApplyModifyAndDelete(t *testing.T) {
	s, st := newTestStore(t, map[string]map[string]string{guild: {"Alice": "likes tea", "Bob": "likes coffee"}})

	applied, err := s.Apply(guild, []Change{
		{Action: ActionModify, Name: "Alice", Content: "prefers green tea"},
		{Action: ActionDelete, Name: "Bob"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice", "Bob"}, applied)

	v, _ := s.Get(guild, "Alice")
	assert.Equal(t, "prefers green tea", v)
	_, ok := s.Get(guild, "Bob")
	assert.False(t, ok)

	durable, err := st.Memory(guild)
	require.NoError(t, err)
	assert.NotContains(t, durable, "Bob")
	assertInSync(t, s, st, guild)
}

func TestApplyFuzzyName(t *testing.T) {
	s, st := newTestStore(t, map[string]map[string]string{guild: {"Alice": "likes tea", "Bob": "likes coffee"}})

	applied, err := s.Apply(guild, []Change{
		{Action: ActionAppend, Name: "Alicee", Content: "and cake"},
		{Action: ActionAppend, Name: "Zzyzx", Content: "dropped"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice"}, applied)

	v, _ := s.Get(guild, "Alice")
	assert.Equal(t, "likes tea ... and cake", v)
	_, ok := s.Get(guild, "Zzyzx")
	assert.False(t, ok)
	assertInSync(t, s, st, guild)
}

func TestApplyExactNameWinsOverFuzzy(t *testing.T) {
	s, _ := newTestStore(t, map[string]map[string]string{guild: {"Ann": "a", "Anna": "b"}})

	_, err := s.Apply(guild, []Change{{Action: ActionModify, Name: "Ann", Content: "c"}})
	require.NoError(t, err)

	v, _ := s.Get(guild, "Ann")
	assert.Equal(t, "c", v)
	v, _ = s.Get(guild, "Anna")
	assert.Equal(t, "b", v)
}

func TestSetDelete(t *testing.T) {
	s, st := newTestStore(t, nil)

	require.NoError(t, s.Set(guild, "topic", "rules"))
	assert.Equal(t, 1, s.Len(guild))
	assertInSync(t, s, st, guild)

	require.NoError(t, s.Delete(guild, "topic"))
	assert.ErrorIs(t, s.Delete(guild, "topic"), ErrNotFound)
	assertInSync(t, s, st, guild)
}

func TestRename(t *testing.T) {
	s, st := newTestStore(t, map[string]map[string]string{
		guild: {"old": "one"},
		"2":   {"old": "two", "other": "x"},
		"3":   {"other": "y"},
	})

	moved, err := s.Rename("old", "new")
	require.NoError(t, err)
	assert.Equal(t, []string{guild, "2"}, moved)

	for _, g := range []string{guild, "2"} {
		_, ok := s.Get(g, "old")
		assert.False(t, ok)
		_, ok = s.Get(g, "new")
		assert.True(t, ok)
		assertInSync(t, s, st, g)
	}
}

type failingDurable struct{ *storage.Storage }

func (f failingDurable) UpdateMemory(string, func(map[string]string) error) error {
	return errors.New("disk full")
}

func TestFailedWriteLeavesCacheUntouched(t *testing.T) {
	_, st := newTestStore(t, map[string]map[string]string{guild: {"Alice": "likes tea"}})
	s := NewStore(failingDurable{st})
	require.NoError(t, s.Load())

	_, err := s.Apply(guild, []Change{{Action: ActionDelete, Name: "Alice"}})
	require.Error(t, err)

	v, ok := s.Get(guild, "Alice")
	assert.True(t, ok)
	assert.Equal(t, "likes tea", v)
}

func TestClosestMatch(t *testing.T) {
	names := []string{"Alice", "Bob", "Charlotte"}
	tests := []struct {
		in    string
		want  string
		found bool
	}{
		{"alice", "Alice", true},
		{"Charlote", "Charlotte", true},
		{"Bobby", "Bob", true},
		{"xyz", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ClosestMatch(tt.in, names)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
