package gptmemory

import (
	"fmt"
	"slices"
	"strings"

	"github.com/keshon/memoria/internal/command"
	"github.com/keshon/memoria/internal/config"
	"github.com/keshon/memoria/internal/tools"
)

type intSetting struct {
	key    string
	lo, hi int
	field  func(g *config.GuildSettings) *int
}

// intSettings maps subcommand and setting name to a bounded integer field.
var intSettings = map[string]map[string]intSetting{
	"tokens": {
		"response": {"response_tokens", config.MinTokens, config.MaxTokens, func(g *config.GuildSettings) *int { return &g.ResponseTokens }},
		"backread": {"backread_tokens", config.MinTokens, config.MaxTokens, func(g *config.GuildSettings) *int { return &g.BackreadTokens }},
	},
	"backread": {
		"responder": {"backread_messages", 0, config.MaxBackread, func(g *config.GuildSettings) *int { return &g.BackreadMessages }},
		"memorizer": {"backread_memorizer", 0, config.MaxBackread, func(g *config.GuildSettings) *int { return &g.BackreadMemorizer }},
	},
	"images": {
		"per_message": {"images_per_message", 1, 10, func(g *config.GuildSettings) *int { return &g.ImagesPerMessage }},
		"per_context": {"max_images", 0, 20, func(g *config.GuildSettings) *int { return &g.MaxImages }},
		"resolution":  {"image_resolution", 256, 2048, func(g *config.GuildSettings) *int { return &g.ImageResolution }},
	},
	"limits": {
		"quote":    {"max_quote", 10, 2000, func(g *config.GuildSettings) *int { return &g.MaxQuote }},
		"tool":     {"max_tool", 100, 20000, func(g *config.GuildSettings) *int { return &g.MaxTool }},
		"textfile": {"max_text_file", 100, 20000, func(g *config.GuildSettings) *int { return &g.MaxTextFile }},
	},
}

type boolSetting struct {
	key   string
	field func(g *config.GuildSettings) *bool
}

var memorizerSettings = map[string]boolSetting{
	"enable":   {"allow_memorizer", func(g *config.GuildSettings) *bool { return &g.AllowMemorizer }},
	"alerts":   {"memorizer_alerts", func(g *config.GuildSettings) *bool { return &g.MemorizerAlerts }},
	"useronly": {"memorizer_user_only", func(g *config.GuildSettings) *bool { return &g.MemorizerUserOnly }},
}

// handle executes one subcommand against the guild settings. upload holds
// the content of an attached prompt file, if any.
func (c *GptMemoryCommand) handle(guildID, sub string, opts map[string]*command.Option, upload string) (reply, error) {
	switch sub {
	case "channels mode":
		mode := config.ChannelMode(command.StringOption(opts, "mode"))
		if mode != config.ChannelWhitelist && mode != config.ChannelBlacklist {
			return text("Invalid mode!\nValid modes are `whitelist`, `blacklist`"), nil
		}
		return c.update(guildID, func(g *config.GuildSettings) reply {
			g.ChannelMode = mode
			return channelsReply(g)
		})
	case "channels add":
		id := command.StringOption(opts, "channel")
		return c.update(guildID, func(g *config.GuildSettings) reply {
			if !slices.Contains(g.Channels, id) {
				g.Channels = append(g.Channels, id)
			}
			return channelsReply(g)
		})
	case "channels remove":
		id := command.StringOption(opts, "channel")
		return c.update(guildID, func(g *config.GuildSettings) reply {
			g.Channels = slices.DeleteFunc(g.Channels, func(ch string) bool { return ch == id })
			return channelsReply(g)
		})
	case "channels list":
		return c.view(guildID, channelsReply)

	case "model":
		return c.model(guildID, config.Stage(command.StringOption(opts, "stage")), command.StringOption(opts, "name"))
	case "effort":
		return c.effort(guildID, config.Stage(command.StringOption(opts, "stage")), command.StringOption(opts, "value"))

	case "prompt show":
		st, ok := stage(opts)
		if !ok {
			return invalidStage(), nil
		}
		return c.view(guildID, func(g *config.GuildSettings) reply {
			return promptReply(st, "", g.Stage(st).Prompt)
		})
	case "prompt set":
		st, ok := stage(opts)
		if !ok {
			return invalidStage(), nil
		}
		prompt := strings.TrimSpace(upload)
		if prompt == "" {
			prompt = strings.TrimSpace(command.StringOption(opts, "text"))
		}
		if prompt == "" {
			return text("Invalid prompt"), nil
		}
		return c.update(guildID, func(g *config.GuildSettings) reply {
			g.Stage(st).Prompt = prompt
			return promptReply(st, "New ", prompt)
		})
	case "prompt reset":
		st, ok := stage(opts)
		if !ok {
			return invalidStage(), nil
		}
		def := config.DefaultGuildSettings()
		prompt := def.Stage(st).Prompt
		return c.update(guildID, func(g *config.GuildSettings) reply {
			g.Stage(st).Prompt = prompt
			return promptReply(st, "Default ", prompt)
		})

	case "tokens", "backread", "images", "limits":
		setting, ok := intSettings[sub][command.StringOption(opts, "setting")]
		if !ok {
			return text("Unknown setting"), nil
		}
		value, set := command.IntOption(opts, "value")
		if !set {
			return c.view(guildID, func(g *config.GuildSettings) reply {
				return text("`[%s:]` %d", setting.key, *setting.field(g))
			})
		}
		if value < setting.lo || value > setting.hi {
			return text("Value must be between %d and %d", setting.lo, setting.hi), nil
		}
		return c.update(guildID, func(g *config.GuildSettings) reply {
			*setting.field(g) = value
			return text("`[%s:]` %d", setting.key, value)
		})

	case "memorizer":
		setting, ok := memorizerSettings[command.StringOption(opts, "setting")]
		if !ok {
			return text("Unknown setting"), nil
		}
		value, set := command.BoolOption(opts, "value")
		if !set {
			return c.view(guildID, func(g *config.GuildSettings) reply {
				return text("`[%s:]` %t", setting.key, *setting.field(g))
			})
		}
		return c.update(guildID, func(g *config.GuildSettings) reply {
			*setting.field(g) = value
			return text("`[%s:]` %t", setting.key, value)
		})

	case "emotes":
		emotes := strings.TrimSpace(command.StringOption(opts, "value"))
		if emotes == "" {
			return c.view(guildID, func(g *config.GuildSettings) reply {
				return quoted("`[emotes]`", g.Emotes)
			})
		}
		return c.update(guildID, func(g *config.GuildSettings) reply {
			g.Emotes = emotes
			return quoted("`[emotes]`", emotes)
		})

	case "functions list":
		return c.view(guildID, c.functionsReply)
	case "functions toggle":
		name := command.StringOption(opts, "name")
		names := c.functionNames()
		if !slices.Contains(names, name) {
			return text("Function not found, valid values are: %s", backticked(names)), nil
		}
		return c.update(guildID, func(g *config.GuildSettings) reply {
			enabled := g.FunctionEnabled(name)
			if enabled {
				g.DisabledFunctions = append(g.DisabledFunctions, name)
			} else {
				g.DisabledFunctions = slices.DeleteFunc(g.DisabledFunctions, func(n string) bool { return n == name })
			}
			return text("`%s`: %s", name, enabledWord(!enabled))
		})
	}
	return text("Unknown subcommand: %s", sub), nil
}

func (c *GptMemoryCommand) model(guildID string, st config.Stage, model string) (reply, error) {
	if !slices.Contains(config.Stages, st) {
		return invalidStage(), nil
	}
	model = strings.ToLower(strings.TrimSpace(model))
	if model == "" {
		return c.view(guildID, func(g *config.GuildSettings) reply {
			return text("Current model for the %s is %s", st, g.Stage(st).Model)
		})
	}
	if err := config.ValidateModel(model); err != nil {
		return text("Invalid model!\nValid models are %s or any `gpt-5` model", backticked(config.VisionModels)), nil
	}
	return c.update(guildID, func(g *config.GuildSettings) reply {
		g.Stage(st).Model = model
		return text("Model changed")
	})
}

func (c *GptMemoryCommand) effort(guildID string, st config.Stage, effort string) (reply, error) {
	if !slices.Contains(config.Stages, st) {
		return invalidStage(), nil
	}
	effort = strings.ToLower(strings.TrimSpace(effort))
	if effort == "" {
		return c.view(guildID, func(g *config.GuildSettings) reply {
			return text("Current effort for the %s is %s", st, g.Stage(st).Effort)
		})
	}
	if err := config.ValidateEffort(effort); err != nil {
		return text("Invalid value!\nValid values are %s", backticked(config.EffortValues)), nil
	}
	return c.update(guildID, func(g *config.GuildSettings) reply {
		g.Stage(st).Effort = effort
		return text("Reasoning effort changed")
	})
}

func (c *GptMemoryCommand) view(guildID string, fn func(g *config.GuildSettings) reply) (reply, error) {
	g, err := c.Settings.Settings(guildID)
	if err != nil {
		return reply{}, fmt.Errorf("load settings: %w", err)
	}
	return fn(&g), nil
}

func (c *GptMemoryCommand) update(guildID string, fn func(g *config.GuildSettings) reply) (reply, error) {
	var r reply
	err := c.Settings.UpdateSettings(guildID, func(g *config.GuildSettings) error {
		r = fn(g)
		return nil
	})
	if err != nil {
		return reply{}, fmt.Errorf("update settings: %w", err)
	}
	return r, nil
}

func (c *GptMemoryCommand) functionNames() []string {
	if c.Tools == nil {
		return nil
	}
	all := c.Tools.All()
	names := make([]string, len(all))
	for i, t := range all {
		names[i] = t.Descriptor().Name
	}
	return names
}

func (c *GptMemoryCommand) functionsReply(g *config.GuildSettings) reply {
	if c.Tools == nil || len(c.Tools.All()) == 0 {
		return text("No functions available.")
	}
	lines := make([]string, 0, len(c.Tools.All()))
	for _, t := range c.Tools.All() {
		d := t.Descriptor()
		line := fmt.Sprintf("`%s`: %s", d.Name, enabledWord(g.FunctionEnabled(d.Name)))
		for _, ref := range d.Credentials {
			if !c.hasCredential(ref) {
				line += fmt.Sprintf(" (API not set: %s %s)", ref.Service, ref.Key)
			}
		}
		if cfg, ok := t.(tools.Configurable); ok && !cfg.Configured() {
			line += " (not configured)"
		}
		lines = append(lines, line)
	}
	return text(">>> %s", strings.Join(lines, "\n"))
}

func (c *GptMemoryCommand) hasCredential(ref tools.CredentialRef) bool {
	if c.Credentials == nil {
		return false
	}
	v, err := c.Credentials.Credential(ref.Service, ref.Key)
	return err == nil && v != ""
}

func channelsReply(g *config.GuildSettings) reply {
	lines := make([]string, len(g.Channels))
	for i, id := range g.Channels {
		lines[i] = "<#" + id + ">"
	}
	return quoted(fmt.Sprintf("`[channel_mode:]` %s\n`[channels]`", g.ChannelMode), strings.Join(lines, "\n"))
}

// promptReply shows a prompt inline, or as a file when it does not fit in
// a message.
func promptReply(st config.Stage, prefix, prompt string) reply {
	header := fmt.Sprintf("`[%s%s prompt]`", prefix, st)
	r := quoted(header, prompt)
	if len(r.content) <= messageLimit {
		return r
	}
	return reply{content: header, fileName: string(st) + "_prompt.md", fileBody: prompt}
}

func quoted(header, body string) reply {
	if body == "" {
		body = "*None*"
	}
	return reply{content: header + "\n>>> " + body}
}

func stage(opts map[string]*command.Option) (config.Stage, bool) {
	st := config.Stage(command.StringOption(opts, "stage"))
	return st, slices.Contains(config.Stages, st)
}

func invalidStage() reply {
	return text("Invalid stage!\nValid stages are %s", backticked([]string{
		string(config.StageRecaller), string(config.StageResponder), string(config.StageMemorizer),
	}))
}

func backticked(values []string) string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = "`" + v + "`"
	}
	return strings.Join(out, ", ")
}

func enabledWord(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}
