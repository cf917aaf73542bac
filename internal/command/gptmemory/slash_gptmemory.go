package gptmemory

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/memoria/internal/bot"
	"github.com/keshon/memoria/internal/command"
	"github.com/keshon/memoria/internal/config"
	"github.com/keshon/memoria/internal/tools"
	"github.com/rs/zerolog/log"
)

const messageLimit = 2000

// maxPromptFile bounds uploaded prompt files.
const maxPromptFile = 64 << 10

type SettingsStore interface {
	Settings(guildID string) (config.GuildSettings, error)
	UpdateSettings(guildID string, fn func(g *config.GuildSettings) error) error
}

type GptMemoryCommand struct {
	Settings    SettingsStore
	Tools       *tools.Registry
	Credentials tools.Credentials
	HTTPClient  *http.Client
}

func (c *GptMemoryCommand) Name() string        { return "gptmemory" }
func (c *GptMemoryCommand) Description() string { return "Configure the memory agent" }
func (c *GptMemoryCommand) Group() string       { return "gptmemory" }
func (c *GptMemoryCommand) Category() string    { return "⚙️ Settings" }
func (c *GptMemoryCommand) UserPermissions() []int64 {
	return []int64{discordgo.PermissionManageServer}
}

func (c *GptMemoryCommand) SlashDefinition() *discordgo.ApplicationCommand {
	stage := &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "stage",
		Description: "Pipeline stage",
		Required:    true,
		Choices:     stageChoices(),
	}
	channel := &discordgo.ApplicationCommandOption{
		Type:         discordgo.ApplicationCommandOptionChannel,
		Name:         "channel",
		Description:  "Text channel",
		Required:     true,
		ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText},
	}

	return &discordgo.ApplicationCommand{
		Name:        c.Name(),
		Description: c.Description(),
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommandGroup,
				Name:        "channels",
				Description: "Channels the bot answers in",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionSubCommand,
						Name:        "mode",
						Description: "Whether the channel list is a whitelist or a blacklist",
						Options: []*discordgo.ApplicationCommandOption{
							{
								Type:        discordgo.ApplicationCommandOptionString,
								Name:        "mode",
								Description: "Channel mode",
								Required:    true,
								Choices: []*discordgo.ApplicationCommandOptionChoice{
									{Name: string(config.ChannelWhitelist), Value: string(config.ChannelWhitelist)},
									{Name: string(config.ChannelBlacklist), Value: string(config.ChannelBlacklist)},
								},
							},
						},
					},
					{
						Type:        discordgo.ApplicationCommandOptionSubCommand,
						Name:        "add",
						Description: "Add a channel to the list",
						Options:     []*discordgo.ApplicationCommandOption{channel},
					},
					{
						Type:        discordgo.ApplicationCommandOptionSubCommand,
						Name:        "remove",
						Description: "Remove a channel from the list",
						Options:     []*discordgo.ApplicationCommandOption{channel},
					},
					{
						Type:        discordgo.ApplicationCommandOptionSubCommand,
						Name:        "list",
						Description: "Show the channel mode and list",
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "model",
				Description: "View or change the model of a stage",
				Options: []*discordgo.ApplicationCommandOption{
					stage,
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "name",
						Description: "Model name",
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "effort",
				Description: "View or change the reasoning effort of a stage",
				Options: []*discordgo.ApplicationCommandOption{
					stage,
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "value",
						Description: "Reasoning effort",
						Choices:     stringChoices(config.EffortValues),
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommandGroup,
				Name:        "prompt",
				Description: "View or edit the stage prompts",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionSubCommand,
						Name:        "show",
						Description: "Show a stage prompt",
						Options:     []*discordgo.ApplicationCommandOption{stage},
					},
					{
						Type:        discordgo.ApplicationCommandOptionSubCommand,
						Name:        "set",
						Description: "Replace a stage prompt with text or a .md file",
						Options: []*discordgo.ApplicationCommandOption{
							stage,
							{
								Type:        discordgo.ApplicationCommandOptionString,
								Name:        "text",
								Description: "New prompt",
							},
							{
								Type:        discordgo.ApplicationCommandOptionAttachment,
								Name:        "file",
								Description: "Markdown file (.md) containing the prompt",
							},
						},
					},
					{
						Type:        discordgo.ApplicationCommandOptionSubCommand,
						Name:        "reset",
						Description: "Restore the default prompt of a stage",
						Options:     []*discordgo.ApplicationCommandOption{stage},
					},
				},
			},
			intSubcommand("tokens", "Token limits of the responder", "response", "backread"),
			intSubcommand("backread", "How many messages each stage reads", "responder", "memorizer"),
			intSubcommand("images", "Image limits", "per_message", "per_context", "resolution"),
			intSubcommand("limits", "Length limits of quotes, tool results and text files", "quote", "tool", "textfile"),
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "memorizer",
				Description: "Memorizer switches",
				Options: []*discordgo.ApplicationCommandOption{
					kindOption("enable", "alerts", "useronly"),
					{
						Type:        discordgo.ApplicationCommandOptionBoolean,
						Name:        "value",
						Description: "New value",
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "emotes",
				Description: "View or set the emotes shown to the responder",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "value",
						Description: "Emotes",
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommandGroup,
				Name:        "functions",
				Description: "Functions the responder may call",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionSubCommand,
						Name:        "list",
						Description: "Show every function and whether it is active",
					},
					{
						Type:        discordgo.ApplicationCommandOptionSubCommand,
						Name:        "toggle",
						Description: "Enable or disable a function",
						Options: []*discordgo.ApplicationCommandOption{
							{
								Type:        discordgo.ApplicationCommandOptionString,
								Name:        "name",
								Description: "Function name",
								Required:    true,
								Choices:     stringChoices(c.functionNames()),
							},
						},
					},
				},
			},
		},
	}
}

func (c *GptMemoryCommand) Run(ctx interface{}) error {
	context, ok := ctx.(*command.SlashInteractionContext)
	if !ok {
		return nil
	}
	s := context.Session
	e := context.Event
	data := e.ApplicationCommandData()
	sub, opts := command.Subcommand(data)

	var upload string
	if sub == "prompt set" {
		if id := command.StringOption(opts, "file"); id != "" {
			body, err := c.downloadPrompt(context.Ctx, data.Resolved, id)
			if err != nil {
				return bot.RespondEmbedEphemeral(s, e, bot.ErrorEmbed(fmt.Sprintf("Invalid file: %v", err)))
			}
			upload = body
		}
	}

	r, err := c.handle(e.GuildID, sub, opts, upload)
	if err != nil {
		log.Error().Err(err).Str("component", "command").Str("guild", e.GuildID).Str("subcommand", sub).Msg("gptmemory failed")
		return bot.RespondEmbedEphemeral(s, e, bot.ErrorEmbed("Failed to update the settings."))
	}
	return r.send(s, e)
}

// reply is a response that falls back to an attachment when too long.
type reply struct {
	content  string
	fileName string
	fileBody string
}

func text(format string, args ...any) reply {
	return reply{content: fmt.Sprintf(format, args...)}
}

func (r reply) send(s *discordgo.Session, e *discordgo.InteractionCreate) error {
	if r.fileName == "" {
		return bot.RespondText(s, e, r.content)
	}
	return s.InteractionRespond(e.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content:         r.content,
			AllowedMentions: &discordgo.MessageAllowedMentions{},
			Files: []*discordgo.File{{
				Name:        r.fileName,
				ContentType: "text/markdown",
				Reader:      strings.NewReader(r.fileBody),
			}},
		},
	})
}

func (c *GptMemoryCommand) downloadPrompt(ctx context.Context, resolved *discordgo.ApplicationCommandInteractionDataResolved, id string) (string, error) {
	if resolved == nil || resolved.Attachments[id] == nil {
		return "", fmt.Errorf("failed to get the uploaded file")
	}
	att := resolved.Attachments[id]
	if !strings.HasSuffix(strings.ToLower(att.Filename), ".md") {
		return "", fmt.Errorf("uploaded file must have `.md` extension")
	}

	if ctx == nil {
		ctx = context.Background()
	}
	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, att.URL, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download the file")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPromptFile+1))
	if err != nil || len(body) == 0 {
		return "", fmt.Errorf("failed to read the uploaded file or file is empty")
	}
	if len(body) > maxPromptFile {
		return "", fmt.Errorf("file is larger than %d KiB", maxPromptFile>>10)
	}
	return validatePrompt(body)
}

func validatePrompt(body []byte) (string, error) {
	if !utf8.Valid(body) {
		return "", fmt.Errorf("file contains invalid UTF-8 encoding")
	}
	for i, b := range body {
		if b < 0x09 && b != '\n' && b != '\r' && b != '\t' {
			return "", fmt.Errorf("file contains non-text binary data at byte %d", i)
		}
	}
	return string(body), nil
}

func stageChoices() []*discordgo.ApplicationCommandOptionChoice {
	names := make([]string, len(config.Stages))
	for i, st := range config.Stages {
		names[i] = string(st)
	}
	return stringChoices(names)
}

func stringChoices(values []string) []*discordgo.ApplicationCommandOptionChoice {
	out := make([]*discordgo.ApplicationCommandOptionChoice, len(values))
	for i, v := range values {
		out[i] = &discordgo.ApplicationCommandOptionChoice{Name: v, Value: v}
	}
	return out
}

func kindOption(kinds ...string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "setting",
		Description: "Setting to view or change",
		Required:    true,
		Choices:     stringChoices(kinds),
	}
}

func intSubcommand(name, description string, kinds ...string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionSubCommand,
		Name:        name,
		Description: description,
		Options: []*discordgo.ApplicationCommandOption{
			kindOption(kinds...),
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "value",
				Description: "New value",
			},
		},
	}
}
