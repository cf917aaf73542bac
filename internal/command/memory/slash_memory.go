package memory

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/memoria/internal/bot"
	"github.com/keshon/memoria/internal/budget"
	"github.com/keshon/memoria/internal/command"
	"github.com/keshon/memoria/internal/memory"
	"github.com/rs/zerolog/log"
)

// messageLimit is Discord's cap on message content.
const messageLimit = 2000

type MemoryCommand struct {
	Memory *memory.Store
}

func (c *MemoryCommand) Name() string             { return "memory" }
func (c *MemoryCommand) Description() string      { return "View or edit the bot's memories" }
func (c *MemoryCommand) Group() string            { return "memory" }
func (c *MemoryCommand) Category() string         { return "🧠 Memory" }
func (c *MemoryCommand) UserPermissions() []int64 { return []int64{} }

func (c *MemoryCommand) SlashDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        c.Name(),
		Description: c.Description(),
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "view",
				Description: "List all memories or show one",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "name",
						Description: "Memory to show",
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "set",
				Description: "Overwrite a memory",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "name",
						Description: "Memory name",
						Required:    true,
					},
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "content",
						Description: "New content",
						Required:    true,
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "delete",
				Description: "Delete a memory",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "name",
						Description: "Memory name",
						Required:    true,
					},
				},
			},
		},
	}
}

func (c *MemoryCommand) Run(ctx interface{}) error {
	context, ok := ctx.(*command.SlashInteractionContext)
	if !ok {
		return nil
	}
	s := context.Session
	e := context.Event

	sub, opts := command.Subcommand(e.ApplicationCommandData())
	name := strings.TrimSpace(command.StringOption(opts, "name"))

	switch sub {
	case "view":
		return bot.RespondText(s, e, c.view(e.GuildID, name))
	case "set", "delete":
		if !command.HasPermission(e, discordgo.PermissionManageServer) {
			return bot.RespondTextEphemeral(s, e, "You need the `Manage Server` permission to edit memories.")
		}
		var (
			reply string
			err   error
		)
		if sub == "set" {
			reply, err = c.set(e.GuildID, name, command.StringOption(opts, "content"))
		} else {
			reply, err = c.delete(e.GuildID, name)
		}
		if err != nil {
			log.Error().Err(err).Str("component", "command").Str("guild", e.GuildID).Msg("memory update failed")
			return bot.RespondEmbedEphemeral(s, e, bot.ErrorEmbed("Failed to save the memory."))
		}
		return bot.RespondText(s, e, reply)
	default:
		return bot.RespondTextEphemeral(s, e, fmt.Sprintf("Unknown subcommand: %s", sub))
	}
}

func (c *MemoryCommand) view(guildID, name string) string {
	if name == "" {
		names := c.Memory.Names(guildID)
		if len(names) == 0 {
			return "No memories..."
		}
		quoted := make([]string, len(names))
		for i, n := range names {
			quoted[i] = "`" + n + "`"
		}
		return budget.Truncate(strings.Join(quoted, ", "), messageLimit)
	}

	content, ok := c.Memory.Get(guildID, name)
	if !ok {
		if match, found := memory.ClosestMatch(name, c.Memory.Names(guildID)); found {
			name = match
			content, ok = c.Memory.Get(guildID, name)
		}
	}
	if !ok {
		return budget.Truncate(fmt.Sprintf("No memory of %s", name), messageLimit)
	}
	return budget.Truncate(fmt.Sprintf("`[Memory of %s]`\n>>> %s", name, content), messageLimit)
}

func (c *MemoryCommand) set(guildID, name, content string) (string, error) {
	content = strings.TrimSpace(content)
	if name == "" || content == "" {
		return "A memory needs a name and some content.", nil
	}
	if err := c.Memory.Set(guildID, name, content); err != nil {
		return "", err
	}
	return "Memory set", nil
}

func (c *MemoryCommand) delete(guildID, name string) (string, error) {
	err := c.Memory.Delete(guildID, name)
	switch {
	case err == nil:
		return "Memory deleted", nil
	case errors.Is(err, memory.ErrNotFound):
		return "A memory by that name doesn't exist.", nil
	default:
		return "", err
	}
}
