package core

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/keshon/memoria/internal/audio"
	"github.com/keshon/memoria/internal/bot"
	"github.com/keshon/memoria/internal/command"
	"github.com/keshon/memoria/internal/memory"
	"github.com/keshon/memoria/internal/nowplaying"
	"github.com/keshon/memoria/internal/storage"
	"github.com/keshon/memoria/pkg/cmd"
	"github.com/keshon/memoria/pkg/jobmgr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCommand struct {
	name, group, category string
}

func (s *stubCommand) Name() string             { return s.name }
func (s *stubCommand) Description() string      { return s.name + " things" }
func (s *stubCommand) Group() string            { return s.group }
func (s *stubCommand) Category() string         { return s.category }
func (s *stubCommand) UserPermissions() []int64 { return nil }
func (s *stubCommand) Run(interface{}) error    { return nil }

func TestHelpOrdersCategoriesByWeight(t *testing.T) {
	reg := cmd.NewRegistry()
	for _, c := range []*stubCommand{
		{"maintenance", "core", "🛠️ Maintenance"},
		{"memory", "memory", "🧠 Memory"},
		{"help", "core", "🕯️ Information"},
	} {
		reg.Register(cmd.Apply(&command.DiscordAdapter{Cmd: c}))
	}
	h := &HelpCommand{Registry: reg}
	entries := h.entries()

	byCategory := buildHelp(entries, func(e helpEntry) string { return e.category }, func(a, b string) bool { return a < b })
	assert.Contains(t, byCategory, "**🧠 Memory**\n`memory` - memory things\n")

	flat := buildFlat(entries)
	assert.Equal(t, "`help` - help things\n`maintenance` - maintenance things\n`memory` - memory things\n", flat)
}

type noDurable struct{}

func (noDurable) GuildIDs() []string                                       { return nil }
func (noDurable) Memory(string) (map[string]string, error)                 { return map[string]string{}, nil }
func (noDurable) UpdateMemory(string, func(map[string]string) error) error { return nil }

func TestStatus(t *testing.T) {
	players := audio.NewManager()
	players.GetOrCreatePlayer("1").Enqueue(audio.Track{Title: "Song"}, audio.Track{Title: "Next"})

	jm := jobmgr.NewManager(context.Background())
	c := &MaintenanceCommand{
		Memory:  memory.NewStore(noDurable{}),
		Players: players,
		Panel:   nowplaying.New(nil, nil, players),
		Jobs:    jm,
	}

	history := make([]storage.CommandHistoryRecord, 7)
	for i := range history {
		history[i] = storage.CommandHistoryRecord{Command: "memory", Username: "ann", Datetime: time.Unix(int64(i), 0)}
	}
	out := c.status("1", history)
	require.NotEmpty(t, out)
	assert.Contains(t, out, "**Memories:** 0\n")
	assert.Contains(t, out, "**Playing:** Song (1 queued)\n")
	assert.Contains(t, out, "**Player channel:** not set\n")
	assert.Contains(t, out, "**Jobs:** No jobs are running.\n")
	assert.Equal(t, recentCommands, strings.Count(out, "`/memory` by ann"))
}

func TestRequestCommandRefresh(t *testing.T) {
	for _, tc := range []struct{ target, want string }{
		{"", "all"},
		{" memory ", "memory"},
	} {
		reply := requestCommandRefresh("7", tc.target)
		assert.Equal(t, "Command update requested. It may take some time to apply.", reply)

		select {
		case evt := <-bot.SystemEvents():
			assert.Equal(t, bot.SystemEventRefreshCommands, evt.Type)
			assert.Equal(t, "7", evt.GuildID)
			assert.Equal(t, tc.want, evt.Target)
		case <-time.After(time.Second):
			t.Fatal("no refresh event published")
		}
	}
}
