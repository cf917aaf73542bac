package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/memoria/datastore"
	"github.com/keshon/memoria/internal/budget"
	"github.com/keshon/memoria/internal/chat/chattest"
	"github.com/keshon/memoria/internal/config"
	"github.com/keshon/memoria/internal/history"
	"github.com/keshon/memoria/internal/llm"
	"github.com/keshon/memoria/internal/memory"
	"github.com/keshon/memoria/internal/normalize"
	"github.com/keshon/memoria/internal/storage"
	"github.com/keshon/memoria/internal/tools"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	guildID   = "10"
	channelID = "11"
)

var (
	bot   = &discordgo.User{ID: "bot", Username: "Holo"}
	alice = &discordgo.User{ID: "a", Username: "alice"}
	bob   = &discordgo.User{ID: "b", Username: "bob"}
)

type stage string

const (
	stageRecaller  stage = "recaller"
	stageResponder stage = "responder"
	stageFollowUp  stage = "followup"
	stageMemorizer stage = "memorizer"
)

// scripted answers each stage with a canned completion and records the
// requests it saw.
type scripted struct {
	mu      sync.Mutex
	replies map[stage]openai.ChatCompletionMessage
	fail    map[stage]error
	calls   map[stage]openai.ChatCompletionNewParams
}

func newScripted() *scripted {
	return &scripted{
		replies: map[stage]openai.ChatCompletionMessage{},
		fail:    map[stage]error{},
		calls:   map[stage]openai.ChatCompletionNewParams{},
	}
}

func instruction(p openai.ChatCompletionNewParams) string {
	m := p.Messages[0]
	switch {
	case m.OfSystem != nil:
		return m.OfSystem.Content.OfString.Value
	case m.OfDeveloper != nil:
		return m.OfDeveloper.Content.OfString.Value
	}
	return ""
}

func classify(p openai.ChatCompletionNewParams) stage {
	switch {
	case p.ResponseFormat.OfJSONSchema != nil:
		return stageMemorizer
	case strings.Contains(instruction(p), "must extract a list of entries"):
		return stageRecaller
	case p.Messages[len(p.Messages)-1].OfTool != nil:
		return stageFollowUp
	default:
		return stageResponder
	}
}

func (s *scripted) New(_ context.Context, p openai.ChatCompletionNewParams, _ ...option.RequestOption) (*openai.ChatCompletion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := classify(p)
	s.calls[st] = p
	if err := s.fail[st]; err != nil {
		return nil, err
	}
	return &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{{Message: s.replies[st]}},
		Usage:   openai.CompletionUsage{CompletionTokens: 5},
	}, nil
}

func (s *scripted) call(st stage) (openai.ChatCompletionNewParams, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.calls[st]
	return p, ok
}

type echoTool struct{}

func (echoTool) Descriptor() tools.Descriptor {
	return tools.Descriptor{Name: "echo", Description: "echo", Parameters: map[string]any{"type": "object"}}
}

func (echoTool) Run(_ context.Context, args map[string]any) (string, error) {
	return "  echo: " + args["q"].(string) + " and more text  ", nil
}

type fixture struct {
	p     *Pipeline
	plat  *chattest.Platform
	store *storage.Storage
	mem   *memory.Store
	llm   *scripted
}

func newFixture(t *testing.T, edit func(g *config.GuildSettings)) *fixture {
	t.Helper()
	ds, err := datastore.NewWithConfig(&datastore.Config{
		FilePath: filepath.Join(t.TempDir(), "db.json"),
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { ds.Close() })
	store := storage.NewWithDatastore(ds)
	require.NoError(t, store.UpdateSettings(guildID, func(g *config.GuildSettings) error {
		g.Channels = []string{channelID}
		if edit != nil {
			edit(g)
		}
		return nil
	}))

	mem := memory.NewStore(store)
	require.NoError(t, mem.Load())
	require.NoError(t, mem.Set(guildID, "alice", "likes cats"))
	require.NoError(t, mem.Set(guildID, "bob", "plays chess"))
	require.NoError(t, mem.Set(guildID, "carol", "vegan"))

	plat := chattest.NewPlatform()
	dir := &chattest.Directory{
		Bot:       bot,
		Guilds:    map[string]string{guildID: "Wolf Den"},
		Channels:  map[string]string{channelID: "general"},
		ChannelOf: map[string]string{channelID: guildID},
		Usernames: []string{"alice", "bob"},
	}
	reg := tools.NewRegistryWith(echoTool{})
	reg.Refresh(nil)
	fake := newScripted()

	p := New(Deps{
		Platform:  plat,
		Directory: dir,
		Settings:  store,
		Assembler: history.NewAssembler(plat, dir, normalize.New(dir, plat, nil), nil, budget.HeuristicCounter{}),
		Memory:    mem,
		LLM:       llm.NewProviderWith(fake),
		Tools:     tools.NewDispatcher(reg),
	})
	p.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	p.embedWait = time.Millisecond
	return &fixture{p: p, plat: plat, store: store, mem: mem, llm: fake}
}

func (f *fixture) conversation() *discordgo.Message {
	f.plat.Add(&discordgo.Message{ID: "1", ChannelID: channelID, Author: bob, Content: "hi all"})
	f.plat.Add(&discordgo.Message{ID: "2", ChannelID: channelID, Author: bot, Content: "hello"})
	return f.plat.Add(&discordgo.Message{
		ID:        "3",
		GuildID:   guildID,
		ChannelID: channelID,
		Author:    alice,
		Mentions:  []*discordgo.User{bot},
		Content:   "<@bot> remember I want a pet. What should I get?",
	})
}

func TestRunRecallRespondMemorize(t *testing.T) {
	f := newFixture(t, nil)
	trigger := f.conversation()
	f.llm.replies[stageRecaller] = openai.ChatCompletionMessage{Content: "nothing relevant"}
	f.llm.replies[stageResponder] = openai.ChatCompletionMessage{Content: "[Holo] You should get a cat!"}
	f.llm.replies[stageMemorizer] = openai.ChatCompletionMessage{
		Content: `{"memory_changes":[{"action_type":"append","memory_name":"alice","memory_content":"wants a pet"}]}`,
	}

	res, err := f.p.Run(context.Background(), trigger)
	require.NoError(t, err)

	sent, replies := f.plat.Snapshot()
	assert.Equal(t, []string{"You should get a cat!"}, replies)
	assert.Equal(t, []string{"-# Revised memories: alice"}, sent)
	assert.Equal(t, []string{"alice", "bob"}, res.Recalled)
	assert.Equal(t, []string{"alice"}, res.Revised)
	assert.Equal(t, 3, res.Messages)

	got, ok := f.mem.Get(guildID, "alice")
	require.True(t, ok)
	assert.Equal(t, "likes cats ... wants a pet", got)

	recall, ok := f.llm.call(stageRecaller)
	require.True(t, ok)
	assert.Contains(t, instruction(recall), "The available entries are:\ncarol\n")

	resp, ok := f.llm.call(stageResponder)
	require.True(t, ok)
	sys := instruction(resp)
	assert.NotNil(t, resp.Messages[0].OfSystem)
	assert.Contains(t, sys, "[Memory of alice:] likes cats\n[Memory of bob:] plays chess")
	assert.NotContains(t, sys, "vegan")
	assert.Contains(t, sys, "called Wolf Den")
	assert.Contains(t, sys, "#general")
	assert.Contains(t, sys, "2024-05-01 12:00:00 UTC+0000")
	assert.Contains(t, sys, "emotes: [None]")
	assert.Equal(t, int64(1000), resp.MaxTokens.Value)
	assert.Len(t, resp.Tools, 1)
	assert.Len(t, resp.Messages, 4)

	mz, ok := f.llm.call(stageMemorizer)
	require.True(t, ok)
	assert.Contains(t, instruction(mz), "The available entries are: alice, bob, carol\n")
	assert.Contains(t, instruction(mz), "[Memory of alice:] likes cats\n[Memory of bob:] plays chess")
}

func TestRunToolRoundTrip(t *testing.T) {
	f := newFixture(t, func(g *config.GuildSettings) {
		g.Responder.Model = "gpt-5-mini"
		g.MaxTool = 12
		g.AllowMemorizer = false
	})
	trigger := f.conversation()
	f.llm.replies[stageResponder] = openai.ChatCompletionMessage{
		ToolCalls: []openai.ChatCompletionMessageToolCall{{
			ID:       "c1",
			Function: openai.ChatCompletionMessageToolCallFunction{Name: "echo", Arguments: `{"q":"hi"}`},
		}},
	}
	f.llm.replies[stageFollowUp] = openai.ChatCompletionMessage{Content: "Final answer"}

	res, err := f.p.Run(context.Background(), trigger)
	require.NoError(t, err)
	_, replies := f.plat.Snapshot()
	assert.Equal(t, []string{"Final answer"}, replies)
	assert.Equal(t, 5, res.AfterToolsTokens)

	first, ok := f.llm.call(stageResponder)
	require.True(t, ok)
	assert.NotNil(t, first.Messages[0].OfDeveloper)
	assert.True(t, first.MaxCompletionTokens.Valid())
	assert.False(t, first.MaxTokens.Valid())

	follow, ok := f.llm.call(stageFollowUp)
	require.True(t, ok)
	assert.Empty(t, follow.Tools)
	assert.Equal(t, "low", string(follow.ReasoningEffort))
	n := len(follow.Messages)
	require.NotNil(t, follow.Messages[n-2].OfAssistant)
	tool := follow.Messages[n-1].OfTool
	require.NotNil(t, tool)
	assert.Equal(t, "c1", tool.ToolCallID)
	assert.Equal(t, "echo: hi ...", tool.Content.OfString.Value)

	_, ok = f.llm.call(stageMemorizer)
	assert.False(t, ok)
}

func TestRunStageFailureKeepsSibling(t *testing.T) {
	memorized := openai.ChatCompletionMessage{
		Content: `{"memory_changes":[{"action_type":"append","memory_name":"alice","memory_content":"wants a pet"}]}`,
	}

	t.Run("responder fails", func(t *testing.T) {
		f := newFixture(t, nil)
		trigger := f.conversation()
		f.llm.fail[stageResponder] = errors.New("upstream unavailable")
		f.llm.replies[stageMemorizer] = memorized

		res, err := f.p.Run(context.Background(), trigger)
		require.NoError(t, err)

		sent, replies := f.plat.Snapshot()
		assert.Empty(t, replies)
		assert.Equal(t, []string{"-# Revised memories: alice"}, sent)
		assert.Equal(t, []string{"alice"}, res.Revised)
		got, _ := f.mem.Get(guildID, "alice")
		assert.Equal(t, "likes cats ... wants a pet", got)
	})

	t.Run("memorizer fails", func(t *testing.T) {
		f := newFixture(t, nil)
		trigger := f.conversation()
		f.llm.replies[stageResponder] = openai.ChatCompletionMessage{Content: "Get a cat"}
		f.llm.fail[stageMemorizer] = errors.New("upstream unavailable")

		res, err := f.p.Run(context.Background(), trigger)
		require.NoError(t, err)

		sent, replies := f.plat.Snapshot()
		assert.Equal(t, []string{"Get a cat"}, replies)
		assert.Empty(t, sent)
		assert.Empty(t, res.Revised)
		got, _ := f.mem.Get(guildID, "alice")
		assert.Equal(t, "likes cats", got)
	})
}

func TestRunDisabledToolIsRefused(t *testing.T) {
	f := newFixture(t, func(g *config.GuildSettings) {
		g.DisabledFunctions = []string{"echo"}
		g.AllowMemorizer = false
	})
	trigger := f.conversation()
	f.llm.replies[stageResponder] = openai.ChatCompletionMessage{
		ToolCalls: []openai.ChatCompletionMessageToolCall{{
			ID:       "c1",
			Function: openai.ChatCompletionMessageToolCallFunction{Name: "echo", Arguments: `{"q":"hi"}`},
		}},
	}
	f.llm.replies[stageFollowUp] = openai.ChatCompletionMessage{Content: "Sorry"}

	_, err := f.p.Run(context.Background(), trigger)
	require.NoError(t, err)

	first, ok := f.llm.call(stageResponder)
	require.True(t, ok)
	assert.Empty(t, first.Tools)

	follow, ok := f.llm.call(stageFollowUp)
	require.True(t, ok)
	tool := follow.Messages[len(follow.Messages)-1].OfTool
	require.NotNil(t, tool)
	assert.Equal(t, tools.ErrorResult, tool.Content.OfString.Value)
}

func TestMemorizerRefusalAndUserFilter(t *testing.T) {
	f := newFixture(t, func(g *config.GuildSettings) {
		g.MemorizerUserOnly = true
	})
	trigger := f.conversation()
	f.llm.replies[stageResponder] = openai.ChatCompletionMessage{Content: "ok"}
	f.llm.replies[stageMemorizer] = openai.ChatCompletionMessage{Refusal: "no"}

	res, err := f.p.Run(context.Background(), trigger)
	require.NoError(t, err)
	sent, _ := f.plat.Snapshot()
	assert.Empty(t, sent)
	assert.Empty(t, res.Revised)

	mz, ok := f.llm.call(stageMemorizer)
	require.True(t, ok)
	assert.Contains(t, instruction(mz), "The available entries are: alice, bob\n")
}

func TestIsTrigger(t *testing.T) {
	f := newFixture(t, nil)
	base := func() *discordgo.Message {
		return &discordgo.Message{ID: "9", GuildID: guildID, ChannelID: channelID, Author: alice, Mentions: []*discordgo.User{bot}}
	}
	tests := []struct {
		name string
		edit func(m *discordgo.Message)
		want bool
	}{
		{"valid", func(*discordgo.Message) {}, true},
		{"no mention", func(m *discordgo.Message) { m.Mentions = nil }, false},
		{"bot author", func(m *discordgo.Message) { m.Author = &discordgo.User{ID: "x", Bot: true} }, false},
		{"direct message", func(m *discordgo.Message) { m.GuildID = "" }, false},
		{"channel not listed", func(m *discordgo.Message) { m.ChannelID = "99" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := base()
			tt.edit(m)
			assert.Equal(t, tt.want, f.p.IsTrigger(m))
		})
	}

	f.p.llm = llm.NewProviderWith(nil)
	assert.False(t, f.p.IsTrigger(base()))
}

func TestWaitForEmbeds(t *testing.T) {
	f := newFixture(t, nil)
	f.plat.Add(&discordgo.Message{ID: "5", ChannelID: channelID, Content: "look https://example.org/a", Embeds: []*discordgo.MessageEmbed{{Title: "A"}}})
	f.plat.Add(&discordgo.Message{ID: "6", ChannelID: channelID, Content: "look <https://example.org/b>", Embeds: []*discordgo.MessageEmbed{{Title: "B"}}})
	ctx := context.Background()

	got := f.p.WaitForEmbeds(ctx, &discordgo.Message{ID: "5", GuildID: guildID, ChannelID: channelID, Content: "look https://example.org/a"})
	require.Len(t, got.Embeds, 1)
	assert.Equal(t, guildID, got.GuildID)

	got = f.p.WaitForEmbeds(ctx, &discordgo.Message{ID: "6", GuildID: guildID, ChannelID: channelID, Content: "look <https://example.org/b>"})
	assert.Empty(t, got.Embeds)
}

func TestCleanup(t *testing.T) {
	assert.Equal(t, "Hi there", cleanupRe.ReplaceAllString("[Username: Holo] [said:] Hi there", ""))
	assert.Equal(t, "Text  end", cleanupRe.ReplaceAllString("Text [[[ Replying to: x ]]] end", ""))
}
