package credentials

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/memoria/internal/bot"
	"github.com/keshon/memoria/internal/command"
	"github.com/rs/zerolog/log"
)

// Store holds the shared API secrets.
type Store interface {
	Credentials() (map[string]map[string]string, error)
	SetCredential(service, key, value string) error
	ClearCredential(service, key string) error
}

// CredentialsCommand edits the shared secrets used by the OpenAI client and
// the responder's functions. It is registered for the developer only.
type CredentialsCommand struct {
	Store Store
}

func (c *CredentialsCommand) Name() string             { return "credentials" }
func (c *CredentialsCommand) Description() string      { return "Manage shared API keys" }
func (c *CredentialsCommand) Group() string            { return "core" }
func (c *CredentialsCommand) Category() string         { return "🛠️ Maintenance" }
func (c *CredentialsCommand) UserPermissions() []int64 { return []int64{} }

func (c *CredentialsCommand) SlashDefinition() *discordgo.ApplicationCommand {
	service := &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "service",
		Description: "Service name, such as openai or serper",
		Required:    true,
	}
	key := &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "key",
		Description: "Key name, such as api_key",
		Required:    true,
	}
	return &discordgo.ApplicationCommand{
		Name:        c.Name(),
		Description: c.Description(),
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "set",
				Description: "Store a secret",
				Options: []*discordgo.ApplicationCommandOption{
					service,
					key,
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "value",
						Description: "Secret value",
						Required:    true,
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "clear",
				Description: "Remove a secret",
				Options:     []*discordgo.ApplicationCommandOption{service, key},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "list",
				Description: "List stored secrets without their values",
			},
		},
	}
}

func (c *CredentialsCommand) Run(ctx interface{}) error {
	context, ok := ctx.(*command.SlashInteractionContext)
	if !ok {
		return nil
	}
	s := context.Session
	e := context.Event

	sub, opts := command.Subcommand(e.ApplicationCommandData())
	reply, err := c.handle(sub,
		strings.ToLower(strings.TrimSpace(command.StringOption(opts, "service"))),
		strings.TrimSpace(command.StringOption(opts, "key")),
		strings.TrimSpace(command.StringOption(opts, "value")),
	)
	if err != nil {
		log.Error().Err(err).Str("component", "command").Str("subcommand", sub).Msg("credentials update failed")
		return bot.RespondEmbedEphemeral(s, e, bot.ErrorEmbed(fmt.Sprintf("Failed to update credentials: %v", err)))
	}
	return bot.RespondEmbedEphemeral(s, e, &discordgo.MessageEmbed{Description: reply, Color: bot.EmbedColor})
}

func (c *CredentialsCommand) handle(sub, service, key, value string) (string, error) {
	switch sub {
	case "set":
		if service == "" || key == "" || value == "" {
			return "Service, key and value are required.", nil
		}
		if err := c.Store.SetCredential(service, key, value); err != nil {
			return "", err
		}
		bot.PublishSystemEvent(bot.SystemEvent{Type: bot.SystemEventCredentialsChanged, Target: service})
		return fmt.Sprintf("Stored `%s %s`.", service, key), nil
	case "clear":
		if err := c.Store.ClearCredential(service, key); err != nil {
			return "", err
		}
		bot.PublishSystemEvent(bot.SystemEvent{Type: bot.SystemEventCredentialsChanged, Target: service})
		return fmt.Sprintf("Cleared `%s %s`.", service, key), nil
	case "list":
		creds, err := c.Store.Credentials()
		if err != nil {
			return "", err
		}
		return listCredentials(creds), nil
	}
	return fmt.Sprintf("Unknown subcommand: %s", sub), nil
}

func listCredentials(creds map[string]map[string]string) string {
	var lines []string
	for service, kv := range creds {
		for key, v := range kv {
			if v != "" {
				lines = append(lines, fmt.Sprintf("`%s %s`: %s", service, key, mask(v)))
			}
		}
	}
	if len(lines) == 0 {
		return "No credentials stored."
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n")
}

// mask keeps the last four characters of long secrets.
func mask(v string) string {
	if len(v) <= 8 {
		return "****"
	}
	return "****" + v[len(v)-4:]
}
