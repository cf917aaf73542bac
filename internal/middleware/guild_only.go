package middleware

import (
	"context"

	"github.com/keshon/memoria/pkg/cmd"
)

// WithGuildOnly rejects interactions that do not come from a guild.
func WithGuildOnly() cmd.Middleware {
	return func(c cmd.Command) cmd.Command {
		return cmd.Wrap(c, func(ctx context.Context, inv *cmd.Invocation) error {
			s, e, ok := interaction(inv.Data)
			if ok && e.GuildID == "" {
				deny(s, e, "You must be in a guild to use this command.")
				return nil
			}
			return c.Run(ctx, inv)
		})
	}
}
