package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/memoria/internal/audio"
	"github.com/keshon/memoria/internal/bot"
	"github.com/keshon/memoria/internal/command"
	"github.com/keshon/memoria/internal/memory"
	"github.com/keshon/memoria/internal/nowplaying"
	"github.com/keshon/memoria/internal/storage"
	"github.com/keshon/memoria/pkg/jobmgr"
)

type MaintenanceCommand struct {
	Memory  *memory.Store
	Players *audio.Manager
	Panel   *nowplaying.Panel
	Jobs    *jobmgr.Manager
}

func (c *MaintenanceCommand) Name() string        { return "maintenance" }
func (c *MaintenanceCommand) Description() string { return "Bot maintenance commands" }
func (c *MaintenanceCommand) Group() string       { return "core" }
func (c *MaintenanceCommand) Category() string    { return "🛠️ Maintenance" }
func (c *MaintenanceCommand) UserPermissions() []int64 {
	return []int64{discordgo.PermissionAdministrator}
}

func (c *MaintenanceCommand) SlashDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        c.Name(),
		Description: c.Description(),
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "ping",
				Description: "Check bot latency",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "download-db",
				Description: "Download this server's stored record as a JSON file",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "commands",
				Description: "Re-register slash commands in this server",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "target",
						Description: "A command name to update, or 'all'",
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "status",
				Description: "Show memory, player and job statistics",
			},
		},
	}
}

func (c *MaintenanceCommand) Run(ctx interface{}) error {
	context, ok := ctx.(*command.SlashInteractionContext)
	if !ok {
		return nil
	}
	s := context.Session
	e := context.Event

	sub, opts := command.Subcommand(e.ApplicationCommandData())
	switch sub {
	case "ping":
		return bot.RespondEmbedEphemeral(s, e, &discordgo.MessageEmbed{
			Title:       "Pong! 🏓",
			Description: fmt.Sprintf("Latency: %dms", s.HeartbeatLatency().Milliseconds()),
		})
	case "download-db":
		return runGetDB(s, e, context.Storage)
	case "commands":
		return bot.RespondEmbedEphemeral(s, e, &discordgo.MessageEmbed{
			Description: requestCommandRefresh(e.GuildID, command.StringOption(opts, "target")),
		})
	case "status":
		history, err := context.Storage.FetchCommandHistory(e.GuildID)
		if err != nil {
			return bot.RespondEmbedEphemeral(s, e, bot.ErrorEmbed(fmt.Sprintf("Failed to read command history: %v", err)))
		}
		return bot.RespondEmbedEphemeral(s, e, &discordgo.MessageEmbed{
			Title:       "📊 Status",
			Description: c.status(e.GuildID, history),
		})
	default:
		return bot.RespondEmbedEphemeral(s, e, &discordgo.MessageEmbed{
			Description: fmt.Sprintf("Unknown subcommand: %s", sub),
		})
	}
}

func runGetDB(s *discordgo.Session, e *discordgo.InteractionCreate, store *storage.Storage) error {
	record, err := store.GuildRecord(e.GuildID)
	if err != nil {
		return bot.RespondEmbedEphemeral(s, e, bot.ErrorEmbed(fmt.Sprintf("Failed to fetch record: ```%v```", err)))
	}
	jsonBytes, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return bot.RespondEmbedEphemeral(s, e, bot.ErrorEmbed(fmt.Sprintf("JSON encode failed: ```%v```", err)))
	}

	embed := &discordgo.MessageEmbed{
		Title:       "🧠 Database Dump",
		Description: "Here's the stored record of this server.",
	}
	fileName := fmt.Sprintf("%s_database_dump.json", e.GuildID)
	return bot.RespondEmbedEphemeralWithFile(s, e, embed, bytes.NewReader(jsonBytes), fileName)
}

// requestCommandRefresh asks the gateway layer to sync slash commands.
func requestCommandRefresh(guildID, target string) string {
	target = strings.TrimSpace(target)
	if target == "" {
		target = "all"
	}
	bot.PublishSystemEvent(bot.SystemEvent{
		Type:    bot.SystemEventRefreshCommands,
		GuildID: guildID,
		Target:  target,
	})
	return "Command update requested. It may take some time to apply."
}

// recentCommands is how many history entries the status shows.
const recentCommands = 5

func (c *MaintenanceCommand) status(guildID string, history []storage.CommandHistoryRecord) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "**Memories:** %d\n", c.Memory.Len(guildID))

	queued := 0
	playing := "nothing"
	if p, ok := c.Players.Player(guildID); ok {
		snap := p.Snapshot()
		queued = len(snap.Queue)
		if snap.Current != nil {
			playing = snap.Current.Title
		}
	}
	fmt.Fprintf(&sb, "**Playing:** %s (%d queued)\n", playing, queued)

	if ch := c.Panel.Channel(guildID); ch != "" {
		fmt.Fprintf(&sb, "**Player channel:** <#%s>\n", ch)
	} else {
		sb.WriteString("**Player channel:** not set\n")
	}

	fmt.Fprintf(&sb, "**Jobs:** %s\n", c.Jobs.Status())

	if n := len(history); n > 0 {
		sb.WriteString("**Recent commands:**\n")
		for _, h := range history[max(0, n-recentCommands):] {
			fmt.Fprintf(&sb, "- `/%s` by %s <t:%d:R>\n", h.Command, h.Username, h.Datetime.Unix())
		}
	}
	return sb.String()
}
