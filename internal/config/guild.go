package config

import (
	"fmt"
	"slices"
	"strings"
)

// Stage names a pipeline stage with its own model, effort and prompt.
type Stage string

const (
	StageRecaller  Stage = "recaller"
	StageResponder Stage = "responder"
	StageMemorizer Stage = "memorizer"
)

var Stages = []Stage{StageRecaller, StageResponder, StageMemorizer}

// ChannelMode decides how the channel list gates triggers.
type ChannelMode string

const (
	ChannelWhitelist ChannelMode = "whitelist"
	ChannelBlacklist ChannelMode = "blacklist"
)

// VisionModels are the models accepted by /gptmemory model in addition to the gpt-5 family.
var VisionModels = []string{
	"gpt-4o",
	"gpt-4o-mini",
	"gpt-4.1",
	"gpt-4.1-mini",
	"gpt-4.1-nano",
}

var EffortValues = []string{"minimal", "low", "medium", "high"}

// Limits on numeric guild settings.
const (
	MinTokens   = 100
	MaxTokens   = 10000
	MaxBackread = 100
)

// StageSettings is the model configuration of one stage.
type StageSettings struct {
	Model  string `json:"model"`
	Effort string `json:"effort"`
	Prompt string `json:"prompt"`
}

// GuildSettings is the per-guild agent configuration.
type GuildSettings struct {
	ChannelMode ChannelMode `json:"channel_mode"`
	Channels    []string    `json:"channels"`

	Recaller  StageSettings `json:"recaller"`
	Responder StageSettings `json:"responder"`
	Memorizer StageSettings `json:"memorizer"`

	ResponseTokens    int `json:"response_tokens"`
	BackreadTokens    int `json:"backread_tokens"`
	BackreadMessages  int `json:"backread_messages"`
	BackreadMemorizer int `json:"backread_memorizer"`

	ImagesPerMessage int `json:"images_per_message"`
	MaxImages        int `json:"max_images"`
	ImageResolution  int `json:"image_resolution"`

	MaxQuote    int `json:"max_quote"`
	MaxTool     int `json:"max_tool"`
	MaxTextFile int `json:"max_text_file"`

	AllowMemorizer    bool     `json:"allow_memorizer"`
	MemorizerAlerts   bool     `json:"memorizer_alerts"`
	MemorizerUserOnly bool     `json:"memorizer_user_only"`
	DisabledFunctions []string `json:"disabled_functions"`
	Emotes            string   `json:"emotes"`
}

// DefaultGuildSettings returns the settings a guild starts with.
func DefaultGuildSettings() GuildSettings {
	return GuildSettings{
		ChannelMode: ChannelWhitelist,
		Channels:    []string{},
		Recaller:    StageSettings{Model: "gpt-4.1", Effort: "minimal", Prompt: PromptRecaller},
		Responder:   StageSettings{Model: "gpt-4.1", Effort: "low", Prompt: PromptResponder},
		Memorizer:   StageSettings{Model: "gpt-4.1", Effort: "medium", Prompt: PromptMemorizer},

		ResponseTokens:    1000,
		BackreadTokens:    1000,
		BackreadMessages:  20,
		BackreadMemorizer: 10,

		ImagesPerMessage: 2,
		MaxImages:        4,
		ImageResolution:  1024,

		MaxQuote:    300,
		MaxTool:     8000,
		MaxTextFile: 4000,

		AllowMemorizer:    true,
		MemorizerAlerts:   true,
		DisabledFunctions: []string{},
	}
}

// Stage returns the settings of stage st.
func (g *GuildSettings) Stage(st Stage) *StageSettings {
	switch st {
	case StageRecaller:
		return &g.Recaller
	case StageMemorizer:
		return &g.Memorizer
	default:
		return &g.Responder
	}
}

// ChannelAllowed applies the channel mode to channelID.
func (g *GuildSettings) ChannelAllowed(channelID string) bool {
	listed := slices.Contains(g.Channels, channelID)
	if g.ChannelMode == ChannelBlacklist {
		return !listed
	}
	return listed
}

// FunctionEnabled reports whether a tool has not been disabled in this guild.
func (g *GuildSettings) FunctionEnabled(name string) bool {
	return !slices.Contains(g.DisabledFunctions, name)
}

// Normalize fills zero values left by older records with defaults.
func (g *GuildSettings) Normalize() {
	def := DefaultGuildSettings()
	if g.ChannelMode == "" {
		g.ChannelMode = def.ChannelMode
	}
	for _, st := range Stages {
		cur, d := g.Stage(st), def.Stage(st)
		if cur.Model == "" {
			cur.Model = d.Model
		}
		if cur.Effort == "" {
			cur.Effort = d.Effort
		}
		if cur.Prompt == "" {
			cur.Prompt = d.Prompt
		}
	}
	fill := func(v *int, d int) {
		if *v == 0 {
			*v = d
		}
	}
	fill(&g.ResponseTokens, def.ResponseTokens)
	fill(&g.BackreadTokens, def.BackreadTokens)
	fill(&g.ImagesPerMessage, def.ImagesPerMessage)
	fill(&g.ImageResolution, def.ImageResolution)
	fill(&g.MaxQuote, def.MaxQuote)
	fill(&g.MaxTool, def.MaxTool)
	fill(&g.MaxTextFile, def.MaxTextFile)
}

// IsReasoningModel reports whether model accepts reasoning effort and
// max_completion_tokens instead of max_tokens.
func IsReasoningModel(model string) bool {
	return strings.Contains(model, "gpt-5")
}

// ValidateModel rejects models that cannot read images.
func ValidateModel(model string) error {
	if slices.Contains(VisionModels, model) || IsReasoningModel(model) {
		return nil
	}
	return fmt.Errorf("model must be one of %s or a gpt-5 model", strings.Join(VisionModels, ", "))
}

// ValidateEffort rejects unknown reasoning efforts.
func ValidateEffort(effort string) error {
	if slices.Contains(EffortValues, effort) {
		return nil
	}
	return fmt.Errorf("effort must be one of %s", strings.Join(EffortValues, ", "))
}
