package pipeline

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

var urlRe = regexp.MustCompile(`https?://[^\s<>]+`)

// IsTrigger reports whether msg should get an answer: it mentions the bot,
// comes from a human in a guild channel the guild allows, and a language
// model client is configured.
func (p *Pipeline) IsTrigger(msg *discordgo.Message) bool {
	botID := p.dir.BotID()
	mentioned := false
	for _, u := range msg.Mentions {
		if u != nil && u.ID == botID {
			mentioned = true
			break
		}
	}
	if !mentioned || msg.Author == nil || msg.Author.Bot || msg.GuildID == "" {
		return false
	}
	g, err := p.settings.Settings(msg.GuildID)
	if err != nil {
		p.log.Warn().Err(err).Str("guild", msg.GuildID).Msg("settings unavailable")
		return false
	}
	if !g.ChannelAllowed(msg.ChannelID) {
		return false
	}
	_, err = p.llm.Get()
	return err == nil
}

// WaitForEmbeds gives the platform a moment to attach link previews to msg
// when it contains an unsuppressed link. It returns the freshest copy.
func (p *Pipeline) WaitForEmbeds(ctx context.Context, msg *discordgo.Message) *discordgo.Message {
	link := urlRe.FindString(msg.Content)
	if link == "" || strings.Contains(msg.Content, "<"+link+">") {
		return msg
	}
	for range 2 {
		if len(msg.Embeds) > 0 {
			return msg
		}
		select {
		case <-ctx.Done():
			return msg
		case <-time.After(p.embedWait):
		}
		fresh, err := p.platform.ChannelMessage(ctx, msg.ChannelID, msg.ID)
		if err != nil {
			p.log.Debug().Err(err).Str("message", msg.ID).Msg("refetch failed")
			return msg
		}
		if fresh.GuildID == "" {
			fresh.GuildID = msg.GuildID
		}
		msg = fresh
	}
	return msg
}
