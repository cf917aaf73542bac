package history

import (
	"context"
	"fmt"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/memoria/internal/chat/chattest"
	"github.com/keshon/memoria/internal/images"
	"github.com/keshon/memoria/internal/normalize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedCounter int

func (c fixedCounter) Count(string) int { return int(c) }

// oneImage yields a single image for messages listed in ids.
type oneImage struct {
	ids   map[string]bool
	calls int
}

func (o *oneImage) Extract(_ context.Context, msg, _ *discordgo.Message, limit, _ int, _ images.Seen) []string {
	o.calls++
	if !o.ids[msg.ID] || limit <= 0 {
		return nil
	}
	return []string{"data:image/png;base64,AAAA"}
}

const channelID = "11"

var bot = &discordgo.User{ID: "bot", Username: "Holo"}

func setup(n int) (*chattest.Platform, *chattest.Directory, *discordgo.Message) {
	p := chattest.NewPlatform()
	dir := &chattest.Directory{Bot: bot}
	var last *discordgo.Message
	for i := 1; i <= n; i++ {
		author := &discordgo.User{ID: "u", Username: "alice"}
		if i%2 == 0 {
			author = bot
		}
		last = p.Add(&discordgo.Message{
			ID:        fmt.Sprint(i),
			ChannelID: channelID,
			Author:    author,
			Content:   fmt.Sprintf("message %d", i),
		})
	}
	return p, dir, last
}

func settings() Settings {
	return Settings{
		BackreadMessages: 20,
		BackreadTokens:   1000,
		ImagesPerMessage: 2,
		MaxImages:        4,
		ImageResolution:  1024,
		MaxQuote:         20,
		MaxTextFile:      4000,
		ImageCost:        425,
	}
}

func TestAssembleChronologicalWithRoles(t *testing.T) {
	p, dir, trigger := setup(5)
	a := NewAssembler(p, dir, normalize.New(dir, p, nil), nil, fixedCounter(10))

	msgs, stats := a.Assemble(context.Background(), "10", trigger, settings())

	require.Len(t, msgs, 5)
	assert.Equal(t, 5, stats.Messages)
	assert.Equal(t, 50, stats.Tokens)
	assert.Equal(t, "[Username: alice] [said:] message 1", msgs[0].Text)
	assert.Equal(t, RoleUser, msgs[0].Role)
	assert.Equal(t, RoleAssistant, msgs[1].Role)
	assert.Equal(t, "[Username: alice] [said:] message 5", msgs[4].Text)
}

func TestAssembleStopsAfterCrossingBudget(t *testing.T) {
	p, dir, trigger := setup(6)
	a := NewAssembler(p, dir, normalize.New(dir, p, nil), nil, fixedCounter(10))

	s := settings()
	s.BackreadTokens = 25
	msgs, stats := a.Assemble(context.Background(), "10", trigger, s)

	require.Len(t, msgs, 3)
	assert.Equal(t, 30, stats.Tokens)
	assert.Contains(t, msgs[2].Text, "message 6")
	assert.Contains(t, msgs[0].Text, "message 4")
}

func TestAssembleAlwaysIncludesTrigger(t *testing.T) {
	p, dir, trigger := setup(1)
	a := NewAssembler(p, dir, normalize.New(dir, p, nil), nil, fixedCounter(5000))

	s := settings()
	s.BackreadTokens = 100
	msgs, _ := a.Assemble(context.Background(), "10", trigger, s)

	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Text, "message 1")
}

func TestAssembleImagesMakeUserTurns(t *testing.T) {
	p, dir, trigger := setup(4)
	src := &oneImage{ids: map[string]bool{"2": true, "3": true, "4": true}}
	a := NewAssembler(p, dir, normalize.New(dir, p, nil), src, fixedCounter(1))

	s := settings()
	s.MaxImages = 2
	msgs, stats := a.Assemble(context.Background(), "10", trigger, s)

	require.Len(t, msgs, 4)
	assert.Equal(t, 2, stats.Images)
	// message 4 is from the bot but carries an image
	assert.Equal(t, RoleUser, msgs[3].Role)
	assert.Len(t, msgs[3].Images, 1)
	assert.Len(t, msgs[2].Images, 1)
	// budget exhausted: message 2 keeps its assistant role with no images
	assert.Empty(t, msgs[1].Images)
	assert.Equal(t, RoleAssistant, msgs[1].Role)
	assert.Equal(t, 2, src.calls)
}

func TestAssembleImageSurcharge(t *testing.T) {
	p, dir, trigger := setup(1)
	src := &twoImages{}
	a := NewAssembler(p, dir, normalize.New(dir, p, nil), src, fixedCounter(7))

	_, stats := a.Assemble(context.Background(), "10", trigger, settings())
	assert.Equal(t, 7+425*2, stats.Tokens)
}

type twoImages struct{}

func (twoImages) Extract(context.Context, *discordgo.Message, *discordgo.Message, int, int, images.Seen) []string {
	return []string{"a", "b"}
}

// limitImages yields as many images as it is allowed and records the limits.
type limitImages struct {
	limits []int
}

func (l *limitImages) Extract(_ context.Context, _, _ *discordgo.Message, limit, _ int, _ images.Seen) []string {
	l.limits = append(l.limits, limit)
	out := make([]string, limit)
	for i := range out {
		out[i] = "img"
	}
	return out
}

func TestAssembleImagesPerMessage(t *testing.T) {
	p, dir, trigger := setup(4)
	src := &limitImages{}
	a := NewAssembler(p, dir, normalize.New(dir, p, nil), src, fixedCounter(1))

	s := settings()
	s.ImagesPerMessage = 3
	s.MaxImages = 5
	s.ImageCost = 0
	msgs, stats := a.Assemble(context.Background(), "10", trigger, s)

	require.Len(t, msgs, 4)
	assert.Equal(t, []int{3, 2}, src.limits)
	assert.Equal(t, 5, stats.Images)
	assert.Len(t, msgs[3].Images, 3)
	assert.Len(t, msgs[2].Images, 2)

	src.limits = nil
	s.ImagesPerMessage = 0
	_, stats = a.Assemble(context.Background(), "10", trigger, s)
	assert.Equal(t, []int{5}, src.limits, "zero per-message cap leaves the context cap")
	assert.Equal(t, 5, stats.Images)
}

func TestAssembleQuoteTrimming(t *testing.T) {
	p := chattest.NewPlatform()
	dir := &chattest.Directory{Bot: bot}
	long := "a quoted message that is rather long"

	outside := &discordgo.Message{ID: "1", ChannelID: channelID, Author: &discordgo.User{Username: "carol"}, Content: long}
	p.Add(outside)
	for i := 2; i <= 4; i++ {
		p.Add(&discordgo.Message{ID: fmt.Sprint(i), ChannelID: channelID, Author: &discordgo.User{Username: "dave"}, Content: "filler"})
	}
	inside := p.Add(&discordgo.Message{ID: "5", ChannelID: channelID, Author: &discordgo.User{Username: "erin"}, Content: long})
	p.Add(&discordgo.Message{
		ID: "6", ChannelID: channelID, Author: &discordgo.User{Username: "bob"}, Content: "reply one",
		MessageReference: &discordgo.MessageReference{MessageID: "1", ChannelID: channelID},
	})
	p.Add(&discordgo.Message{
		ID: "7", ChannelID: channelID, Author: &discordgo.User{Username: "bob"}, Content: "reply two",
		MessageReference:  &discordgo.MessageReference{MessageID: "5"},
		ReferencedMessage: inside,
	})
	p.FailGets["404"] = true
	trigger := p.Add(&discordgo.Message{
		ID: "8", ChannelID: channelID, Author: &discordgo.User{Username: "bob"}, Content: "reply three",
		MessageReference: &discordgo.MessageReference{MessageID: "404"},
	})

	a := NewAssembler(p, dir, normalize.New(dir, p, nil), nil, fixedCounter(1))
	s := settings()
	s.BackreadMessages = 3
	msgs, _ := a.Assemble(context.Background(), "10", trigger, s)

	require.Len(t, msgs, 4)
	// message 1 is outside the window, so its quote is trimmed
	assert.Contains(t, msgs[1].Text, "[[[ Replying to: [Username: carol]... ]]]")
	// message 5 is in the window, so it is quoted in full
	assert.Contains(t, msgs[2].Text, "[[[ Replying to: [Username: erin] [said:] "+long+" ]]]")
	// a failed fetch degrades to no quote
	assert.Equal(t, "[Username: bob] [said:] reply three", msgs[3].Text)
}

func TestFlatten(t *testing.T) {
	in := []Message{
		{Role: RoleAssistant, Text: "hi"},
		{Role: RoleUser, Text: "look", Images: []string{"x"}},
	}
	out := Flatten(in)
	assert.Equal(t, []Message{{Role: RoleUser, Text: "hi"}, {Role: RoleUser, Text: "look"}}, out)
	assert.Len(t, in[1].Images, 1)
}
