package middleware

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/memoria/internal/command"
	"github.com/keshon/memoria/pkg/cmd"
)

var PermissionNames = map[int64]string{
	discordgo.PermissionAdministrator:    "Administrator",
	discordgo.PermissionManageChannels:   "Manage Channels",
	discordgo.PermissionManageServer:     "Manage Server",
	discordgo.PermissionManageMessages:   "Manage Messages",
	discordgo.PermissionManageRoles:      "Manage Roles",
	discordgo.PermissionModerateMembers:  "Moderate Members",
	discordgo.PermissionSendMessages:     "Send Messages",
	discordgo.PermissionVoiceConnect:     "Connect to Voice Channel",
	discordgo.PermissionVoiceMoveMembers: "Move Members",
}

// WithUserPermissionCheck requires at least one of the command's
// UserPermissions. Administrators and the developer always pass.
func WithUserPermissionCheck(developerID string) cmd.Middleware {
	return func(c cmd.Command) cmd.Command {
		return cmd.Wrap(c, func(ctx context.Context, inv *cmd.Invocation) error {
			s, e, ok := interaction(inv.Data)
			if !ok || e.GuildID == "" || e.Member == nil || e.Member.User == nil {
				return c.Run(ctx, inv)
			}

			meta, ok := cmd.Root(c).(command.DiscordMeta)
			if !ok || len(meta.UserPermissions()) == 0 {
				return c.Run(ctx, inv)
			}
			if developerID != "" && e.Member.User.ID == developerID {
				return c.Run(ctx, inv)
			}

			perms := e.Member.Permissions
			if perms == 0 && s != nil {
				p, err := s.UserChannelPermissions(e.Member.User.ID, e.ChannelID)
				if err != nil {
					return fmt.Errorf("failed to get user permissions: %w", err)
				}
				perms = p
			}
			if perms&discordgo.PermissionAdministrator != 0 {
				return c.Run(ctx, inv)
			}

			required := meta.UserPermissions()
			for _, p := range required {
				if perms&p != 0 {
					return c.Run(ctx, inv)
				}
			}
			deny(s, e, missingPermissions(required))
			return nil
		})
	}
}

func missingPermissions(required []int64) string {
	allowed := make([]string, 0, len(required))
	for _, p := range required {
		name := PermissionNames[p]
		if name == "" {
			name = fmt.Sprintf("0x%x", p)
		}
		allowed = append(allowed, name)
	}
	return fmt.Sprintf(
		"You need at least one of the following permissions to run this command:\n`%s`",
		strings.Join(allowed, "`, `"),
	)
}

// WithDeveloperOnly restricts a command to the configured developer.
func WithDeveloperOnly(developerID string) cmd.Middleware {
	return func(c cmd.Command) cmd.Command {
		return cmd.Wrap(c, func(ctx context.Context, inv *cmd.Invocation) error {
			s, e, ok := interaction(inv.Data)
			if !ok {
				return c.Run(ctx, inv)
			}
			if developerID == "" || command.InteractionUser(e).ID != developerID {
				deny(s, e, "This command is reserved for the bot developer.")
				return nil
			}
			return c.Run(ctx, inv)
		})
	}
}
