package discord

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/memoria/internal/bot"
	"github.com/keshon/memoria/internal/command"
	"github.com/keshon/memoria/pkg/cmd"
)

// onInteractionCreate routes slash commands by name and component presses by
// the command prefix of their custom ID.
func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	var (
		c    cmd.Command
		name string
		data interface{}
	)
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		name = i.ApplicationCommandData().Name
		c = b.registry.Get(name)
		data = &command.SlashInteractionContext{Ctx: b.ctx, Session: s, Event: i, Storage: b.storage}
	case discordgo.InteractionMessageComponent:
		name = componentCommand(i.MessageComponentData().CustomID)
		c = b.registry.Get(name)
		data = &command.ComponentInteractionContext{Ctx: b.ctx, Session: s, Event: i, Storage: b.storage}
	default:
		return
	}
	if c == nil {
		b.log.Warn().Str("command", name).Str("guild", i.GuildID).Msg("no handler for interaction")
		return
	}

	if err := c.Run(b.ctx, &cmd.Invocation{Data: data}); err != nil {
		b.log.Error().Err(err).Str("command", name).Str("guild", i.GuildID).Msg("error running command")
		if rerr := bot.RespondEmbedEphemeral(s, i, bot.ErrorEmbed(fmt.Sprintf("Error running command: %v", err))); rerr != nil {
			b.log.Debug().Err(rerr).Str("command", name).Msg("error reply not delivered")
		}
	}
}

// componentCommand returns the command owning customID, the part before the
// first colon.
func componentCommand(customID string) string {
	name, _, _ := strings.Cut(customID, ":")
	return name
}
