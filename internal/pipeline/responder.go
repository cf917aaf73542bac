package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/memoria/internal/budget"
	"github.com/keshon/memoria/internal/config"
	"github.com/keshon/memoria/internal/history"
	"github.com/keshon/memoria/internal/llm"
	"github.com/openai/openai-go"
)

const datetimeLayout = "2006-01-02 15:04:05 MST-0700"

// cleanupRe strips leading bracket tags the model copies from the
// transcript format, and triple-bracket blocks.
var cleanupRe = regexp.MustCompile(`(^(\[[^\[\]]+\]\s?)+|\[\[\[.+\]\]\])`)

func (p *Pipeline) respond(ctx context.Context, c llm.Completer, trigger *discordgo.Message, g *config.GuildSettings, msgs []history.Message, recalled map[string]string, res *Result) error {
	guildID := trigger.GuildID
	model := g.Responder.Model

	emotes := g.Emotes
	if emotes == "" {
		emotes = "[None]"
	}
	channel, _ := p.dir.ChannelName(trigger.ChannelID)
	system := config.RenderPrompt(g.Responder.Prompt, config.PromptVars{
		"botname":         p.dir.BotName(),
		"servername":      p.dir.GuildName(guildID),
		"channelname":     channel,
		"emotes":          emotes,
		"currentdatetime": p.now().Format(datetimeLayout),
		"memories":        memoryLines(recalled, nil),
	})
	res.SystemTokens = p.counter.Count(system)

	conversation := append([]openai.ChatCompletionMessageParamUnion{llm.Instruction(model, system)}, llm.Transcript(msgs)...)
	req := llm.Request{
		Model:     model,
		Effort:    g.Responder.Effort,
		MaxTokens: g.ResponseTokens,
		Messages:  conversation,
		Tools:     p.tools.Schemas(g.DisabledFunctions),
	}
	out, err := llm.Complete(ctx, c, req)
	if err != nil {
		return fmt.Errorf("responder completion: %w", err)
	}
	res.ResponderTokens = out.Tokens

	if calls := out.Message.ToolCalls; len(calls) > 0 {
		req.Messages = append(req.Messages, out.Message.ToParam())
		for _, call := range calls {
			result := strings.TrimSpace(p.tools.Execute(ctx, call.Function.Name, call.Function.Arguments, g.DisabledFunctions))
			result = budget.Truncate(result, g.MaxTool)
			req.Messages = append(req.Messages, openai.ToolMessage(result, call.ID))
		}
		req.Tools = nil
		out, err = llm.Complete(ctx, c, req)
		if err != nil {
			return fmt.Errorf("responder follow-up completion: %w", err)
		}
		res.AfterToolsTokens = out.Tokens
	}

	reply := cleanupRe.ReplaceAllString(out.Message.Content, "")
	if strings.TrimSpace(reply) == "" {
		return nil
	}
	return p.send(ctx, trigger, reply)
}

// send delivers text in chunks: the first as a reply, the rest as plain
// messages.
func (p *Pipeline) send(ctx context.Context, trigger *discordgo.Message, text string) error {
	for i, chunk := range Chunk(text, ChunkLimit) {
		var err error
		if i == 0 {
			_, err = p.platform.Reply(ctx, trigger, chunk)
		} else {
			_, err = p.platform.Send(ctx, trigger.ChannelID, chunk)
		}
		if err != nil {
			return fmt.Errorf("send chunk %d: %w", i, err)
		}
	}
	return nil
}
