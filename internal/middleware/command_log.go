package middleware

import (
	"context"
	"time"

	"github.com/keshon/memoria/internal/bot"
	"github.com/keshon/memoria/internal/command"
	"github.com/keshon/memoria/pkg/cmd"
	"github.com/rs/zerolog/log"
)

// WithCommandLogger logs every execution and records slash commands in the
// guild's command history.
func WithCommandLogger() cmd.Middleware {
	return func(c cmd.Command) cmd.Command {
		return cmd.Wrap(c, func(ctx context.Context, inv *cmd.Invocation) error {
			start := time.Now()
			err := c.Run(ctx, inv)

			_, e, ok := interaction(inv.Data)
			if !ok {
				return err
			}
			user := command.InteractionUser(e)
			ev := log.Info()
			if err != nil {
				ev = log.Warn().Err(err)
			}
			ev.Str("component", "command").
				Str("command", c.Name()).
				Str("guild", e.GuildID).
				Str("user", user.Username).
				Dur("took", time.Since(start)).
				Msg("command executed")

			if v, ok := inv.Data.(*command.SlashInteractionContext); ok && v.Storage != nil && e.GuildID != "" {
				if lerr := bot.LogCommand(v.Session, v.Storage, e.GuildID, e.ChannelID, user.ID, user.Username, c.Name()); lerr != nil {
					log.Warn().Err(lerr).Str("command", c.Name()).Msg("failed to record command")
				}
			}
			return err
		})
	}
}
