package middleware

import (
	"context"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/memoria/internal/command"
	"github.com/keshon/memoria/pkg/cmd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingCommand struct {
	perms []int64
	runs  int
}

func (p *recordingCommand) Name() string             { return "record" }
func (p *recordingCommand) Description() string      { return "record" }
func (p *recordingCommand) Group() string            { return "test" }
func (p *recordingCommand) Category() string         { return "test" }
func (p *recordingCommand) UserPermissions() []int64 { return p.perms }
func (p *recordingCommand) Run(ctx interface{}) error {
	p.runs++
	return nil
}

func captureDenials(t *testing.T) *[]string {
	t.Helper()
	var denied []string
	orig := deny
	deny = func(_ *discordgo.Session, _ *discordgo.InteractionCreate, msg string) {
		denied = append(denied, msg)
	}
	t.Cleanup(func() { deny = orig })
	return &denied
}

func slash(guildID, userID string, perms int64) *cmd.Invocation {
	return &cmd.Invocation{Data: &command.SlashInteractionContext{
		Event: &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
			GuildID: guildID,
			Member:  &discordgo.Member{User: &discordgo.User{ID: userID, Username: "u" + userID}, Permissions: perms},
		}},
	}}
}

func TestWithGuildOnly(t *testing.T) {
	denied := captureDenials(t)
	p := &recordingCommand{}
	c := cmd.Apply(&command.DiscordAdapter{Cmd: p}, WithGuildOnly())

	require.NoError(t, c.Run(context.Background(), slash("", "1", 0)))
	assert.Equal(t, 0, p.runs)
	assert.Len(t, *denied, 1)

	require.NoError(t, c.Run(context.Background(), slash("9", "1", 0)))
	assert.Equal(t, 1, p.runs)
}

func TestWithUserPermissionCheck(t *testing.T) {
	tests := []struct {
		name    string
		userID  string
		perms   int64
		allowed bool
	}{
		{"has manage server", "1", discordgo.PermissionManageServer, true},
		{"administrator", "1", discordgo.PermissionAdministrator | discordgo.PermissionSendMessages, true},
		{"developer", "dev", discordgo.PermissionSendMessages, true},
		{"plain member", "1", discordgo.PermissionSendMessages, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			denied := captureDenials(t)
			p := &recordingCommand{perms: []int64{discordgo.PermissionManageServer}}
			c := cmd.Apply(&command.DiscordAdapter{Cmd: p}, WithUserPermissionCheck("dev"))

			require.NoError(t, c.Run(context.Background(), slash("9", tt.userID, tt.perms)))
			if tt.allowed {
				assert.Equal(t, 1, p.runs)
				assert.Empty(t, *denied)
			} else {
				assert.Equal(t, 0, p.runs)
				require.Len(t, *denied, 1)
				assert.Contains(t, (*denied)[0], "`Manage Server`")
			}
		})
	}
}

func TestWithDeveloperOnly(t *testing.T) {
	denied := captureDenials(t)
	p := &recordingCommand{}
	c := cmd.Apply(&command.DiscordAdapter{Cmd: p}, WithDeveloperOnly("dev"))

	require.NoError(t, c.Run(context.Background(), slash("9", "1", discordgo.PermissionAdministrator)))
	assert.Equal(t, 0, p.runs)
	require.NoError(t, c.Run(context.Background(), slash("9", "dev", 0)))
	assert.Equal(t, 1, p.runs)
	assert.Len(t, *denied, 1)

	nobody := cmd.Apply(&command.DiscordAdapter{Cmd: p}, WithDeveloperOnly(""))
	require.NoError(t, nobody.Run(context.Background(), slash("9", "dev", 0)))
	assert.Equal(t, 1, p.runs, "no developer configured means nobody")
}

func TestWithCommandLoggerPassesErrorsThrough(t *testing.T) {
	p := &recordingCommand{}
	c := cmd.Apply(&command.DiscordAdapter{Cmd: p}, WithCommandLogger())
	require.NoError(t, c.Run(context.Background(), slash("", "1", 0)))
	assert.Equal(t, 1, p.runs)
	assert.Equal(t, "record", c.Name())
}
