package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/memoria/internal/config"
	"github.com/keshon/memoria/internal/history"
	"github.com/keshon/memoria/internal/llm"
	"github.com/keshon/memoria/internal/memory"
	"github.com/openai/openai-go"
)

type memoryChangeList struct {
	MemoryChanges []memory.Change `json:"memory_changes"`
}

func memoryChangesSchema() map[string]any {
	actions := make([]string, len(memory.Actions))
	for i, a := range memory.Actions {
		actions[i] = string(a)
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"memory_changes": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"action_type":    map[string]any{"type": "string", "enum": actions},
						"memory_name":    map[string]any{"type": "string"},
						"memory_content": map[string]any{"type": "string"},
					},
					"required":             []string{"action_type", "memory_name", "memory_content"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []string{"memory_changes"},
		"additionalProperties": false,
	}
}

// memorize lets the model revise memory entries when a user asks it to
// remember or forget something.
func (p *Pipeline) memorize(ctx context.Context, c llm.Completer, trigger *discordgo.Message, g *config.GuildSettings, msgs []history.Message, names []string, recalled map[string]string, res *Result) error {
	if !g.AllowMemorizer {
		return nil
	}
	guildID := trigger.GuildID

	if g.MemorizerUserOnly {
		members := p.dir.MemberUsernames(guildID)
		names = slices.DeleteFunc(slices.Clone(names), func(n string) bool {
			return !slices.Contains(members, n)
		})
	}
	prompt := config.RenderPrompt(g.Memorizer.Prompt,
		config.PromptVars{"botname": p.dir.BotName()},
		strings.Join(names, ", "),
		memoryLines(recalled, func(k string) bool { return slices.Contains(names, k) }),
	)

	flat := history.Flatten(msgs)
	if n := g.BackreadMemorizer; n > 0 && len(flat) > n {
		flat = flat[len(flat)-n:]
	}

	out, err := llm.Complete(ctx, c, llm.Request{
		Model:    g.Memorizer.Model,
		Effort:   g.Memorizer.Effort,
		Messages: append([]openai.ChatCompletionMessageParamUnion{openai.SystemMessage(prompt)}, llm.Transcript(flat)...),
		Format:   llm.JSONSchemaFormat("memory_change_list", memoryChangesSchema()),
	})
	if err != nil {
		return fmt.Errorf("memorizer completion: %w", err)
	}
	res.MemorizerTokens = out.Tokens
	if out.Message.Refusal != "" {
		p.log.Warn().Str("guild", guildID).Str("refusal", out.Message.Refusal).Msg("memorizer refused")
		return nil
	}
	if strings.TrimSpace(out.Message.Content) == "" {
		return nil
	}
	var parsed memoryChangeList
	if err := json.Unmarshal([]byte(out.Message.Content), &parsed); err != nil {
		return fmt.Errorf("decode memory changes: %w", err)
	}
	if len(parsed.MemoryChanges) == 0 {
		return nil
	}

	revised, err := p.mem.Apply(guildID, parsed.MemoryChanges)
	if err != nil {
		return fmt.Errorf("apply memory changes: %w", err)
	}
	res.Revised = revised
	if len(revised) > 0 && g.MemorizerAlerts {
		if _, err := p.platform.Send(ctx, trigger.ChannelID, "-# Revised memories: "+strings.Join(revised, ", ")); err != nil {
			return fmt.Errorf("send memory alert: %w", err)
		}
	}
	return nil
}
