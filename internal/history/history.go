// Package history assembles the token-budgeted transcript the language
// model sees for one trigger.
package history

import (
	"context"
	"slices"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/memoria/internal/budget"
	"github.com/keshon/memoria/internal/chat"
	"github.com/keshon/memoria/internal/images"
	"github.com/keshon/memoria/internal/normalize"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one transcript turn. With images it is multimodal: the text
// segment comes first, then the images in order.
type Message struct {
	Role   Role
	Text   string
	Images []string
}

// Settings bound one assembly pass.
type Settings struct {
	BackreadMessages int
	BackreadTokens   int
	ImagesPerMessage int // 0 leaves only MaxImages in effect
	MaxImages        int
	ImageResolution  int
	MaxQuote         int
	MaxTextFile      int
	ImageCost        int
}

// imageLimit returns how many images the next message may carry after used
// were already embedded.
func (s Settings) imageLimit(used int) int {
	left := s.MaxImages - used
	if s.ImagesPerMessage > 0 {
		left = min(left, s.ImagesPerMessage)
	}
	return left
}

type Stats struct {
	Messages int
	Images   int
	Tokens   int
}

type ImageSource interface {
	Extract(ctx context.Context, msg, quote *discordgo.Message, limit, maxSide int, seen images.Seen) []string
}

type Assembler struct {
	platform chat.Platform
	dir      chat.Directory
	norm     *normalize.Normalizer
	images   ImageSource
	counter  budget.Counter
	log      zerolog.Logger
}

func NewAssembler(platform chat.Platform, dir chat.Directory, norm *normalize.Normalizer, imgs ImageSource, counter budget.Counter) *Assembler {
	return &Assembler{
		platform: platform,
		dir:      dir,
		norm:     norm,
		images:   imgs,
		counter:  counter,
		log:      log.With().Str("component", "history").Logger(),
	}
}

// Assemble walks back from trigger and returns the transcript in
// chronological order. The trigger is always part of it; older messages are
// added until the token estimate passes the budget, the message crossing it
// included.
func (a *Assembler) Assemble(ctx context.Context, guildID string, trigger *discordgo.Message, s Settings) ([]Message, Stats) {
	backread, err := a.platform.ChannelMessages(ctx, trigger.ChannelID, s.BackreadMessages, trigger.ID)
	if err != nil {
		a.log.Warn().Err(err).Str("channel", trigger.ChannelID).Msg("history fetch failed")
		backread = nil
	}
	window := append([]*discordgo.Message{trigger}, backread...)
	inWindow := make(map[string]bool, len(window))
	for _, m := range window {
		inWindow[m.ID] = true
	}

	var (
		out   []Message
		stats Stats
		seen  = images.Seen{}
	)
	for n, msg := range window {
		quote := a.resolveQuote(ctx, msg)

		var imgs []string
		if left := s.imageLimit(stats.Images); left > 0 && a.images != nil {
			imgs = a.images.Extract(ctx, msg, quote, left, s.ImageResolution, seen)
			stats.Images += len(imgs)
		}

		text := a.norm.Normalize(ctx, msg, quote, normalize.Options{
			GuildID:     guildID,
			ChannelID:   trigger.ChannelID,
			TrimQuote:   quote != nil && !inWindow[quote.ID],
			MaxQuote:    s.MaxQuote,
			MaxTextFile: s.MaxTextFile,
		})

		turn := Message{Role: RoleUser, Text: text, Images: imgs}
		if len(imgs) == 0 && msg.Author != nil && msg.Author.ID == a.dir.BotID() {
			turn.Role = RoleAssistant
		}
		out = append(out, turn)

		stats.Tokens += a.counter.Count(text) + budget.ImageSurcharge(len(imgs)+1, s.ImageCost)
		if n > 0 && stats.Tokens > s.BackreadTokens {
			break
		}
	}

	slices.Reverse(out)
	stats.Messages = len(out)
	return out, stats
}

// resolveQuote returns the message msg replies to, or nil when there is
// none or it cannot be fetched.
func (a *Assembler) resolveQuote(ctx context.Context, msg *discordgo.Message) *discordgo.Message {
	ref := msg.MessageReference
	if ref == nil || ref.MessageID == "" {
		return nil
	}
	if msg.ReferencedMessage != nil {
		return msg.ReferencedMessage
	}
	channelID := ref.ChannelID
	if channelID == "" {
		channelID = msg.ChannelID
	}
	quote, err := a.platform.ChannelMessage(ctx, channelID, ref.MessageID)
	if err != nil {
		a.log.Debug().Err(err).Str("message", ref.MessageID).Msg("quote unavailable")
		return nil
	}
	return quote
}

// Flatten returns text-only user turns, keeping only the text segment of
// multimodal turns.
func Flatten(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = Message{Role: RoleUser, Text: m.Text}
	}
	return out
}
