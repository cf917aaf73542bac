package core

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/memoria/internal/bot"
	"github.com/keshon/memoria/internal/command"
	"github.com/keshon/memoria/internal/config"
	"github.com/keshon/memoria/pkg/cmd"
)

const AppName = "Memoria"

type HelpCommand struct {
	// Registry defaults to cmd.DefaultRegistry.
	Registry *cmd.Registry
}

func (c *HelpCommand) Name() string             { return "help" }
func (c *HelpCommand) Description() string      { return "Get a list of available commands" }
func (c *HelpCommand) Group() string            { return "core" }
func (c *HelpCommand) Category() string         { return "🕯️ Information" }
func (c *HelpCommand) UserPermissions() []int64 { return []int64{} }

func (c *HelpCommand) SlashDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        c.Name(),
		Description: c.Description(),
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "category",
				Description: "View commands grouped by category",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "group",
				Description: "View commands grouped by group",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "flat",
				Description: "View all commands as a flat list",
			},
		},
	}
}

func (c *HelpCommand) Run(ctx interface{}) error {
	context, ok := ctx.(*command.SlashInteractionContext)
	if !ok {
		return nil
	}

	sub, _ := command.Subcommand(context.Event.ApplicationCommandData())
	entries := c.entries()

	var output string
	switch sub {
	case "group":
		output = buildHelp(entries, func(e helpEntry) string { return e.group }, func(a, b string) bool { return a < b })
	case "flat":
		output = buildFlat(entries)
	default:
		output = buildHelp(entries, func(e helpEntry) string { return e.category }, func(a, b string) bool {
			wa, wb := config.CategoryWeights[a], config.CategoryWeights[b]
			if wa != wb {
				return wa < wb
			}
			return a < b
		})
	}

	return bot.RespondEmbedEphemeral(context.Session, context.Event, &discordgo.MessageEmbed{
		Title:       AppName + " Help",
		Description: output,
		Color:       bot.EmbedColor,
	})
}

type helpEntry struct {
	name, description, group, category string
}

func (c *HelpCommand) entries() []helpEntry {
	reg := c.Registry
	if reg == nil {
		reg = cmd.DefaultRegistry
	}
	var out []helpEntry
	for _, rc := range reg.GetAll() {
		e := helpEntry{name: rc.Name(), description: rc.Description()}
		if meta, ok := cmd.Root(rc).(command.DiscordMeta); ok {
			e.group, e.category = meta.Group(), meta.Category()
		}
		out = append(out, e)
	}
	return out
}

func buildHelp(entries []helpEntry, key func(helpEntry) string, less func(a, b string) bool) string {
	sections := make(map[string][]helpEntry)
	for _, e := range entries {
		sections[key(e)] = append(sections[key(e)], e)
	}
	names := make([]string, 0, len(sections))
	for name := range sections {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return less(names[i], names[j]) })

	var sb strings.Builder
	for _, name := range names {
		sb.WriteString(fmt.Sprintf("**%s**\n", name))
		sb.WriteString(buildFlat(sections[name]))
		sb.WriteString("\n")
	}
	return sb.String()
}

func buildFlat(entries []helpEntry) string {
	sorted := append([]helpEntry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].name < sorted[j].name })

	var sb strings.Builder
	for _, e := range sorted {
		sb.WriteString(fmt.Sprintf("`%s` - %s\n", e.name, e.description))
	}
	return sb.String()
}
