// Package middleware holds the cmd.Middleware wrappers applied to every
// Discord command: guild-only, permission and developer checks, and command
// logging.
package middleware

import (
	"github.com/bwmarrin/discordgo"
	"github.com/keshon/memoria/internal/bot"
	"github.com/keshon/memoria/internal/command"
)

// interaction extracts the session and event from a Discord invocation.
func interaction(data interface{}) (*discordgo.Session, *discordgo.InteractionCreate, bool) {
	switch v := data.(type) {
	case *command.SlashInteractionContext:
		return v.Session, v.Event, true
	case *command.ComponentInteractionContext:
		return v.Session, v.Event, true
	}
	return nil, nil, false
}

// deny answers the interaction with an ephemeral refusal.
var deny = func(s *discordgo.Session, e *discordgo.InteractionCreate, msg string) {
	_ = bot.RespondEmbedEphemeral(s, e, &discordgo.MessageEmbed{Description: msg})
}
