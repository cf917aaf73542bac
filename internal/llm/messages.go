package llm

import (
	"github.com/keshon/memoria/internal/config"
	"github.com/keshon/memoria/internal/history"
	"github.com/openai/openai-go"
)

// Instruction is the leading prompt turn. Reasoning models take it as a
// developer message.
func Instruction(model, content string) openai.ChatCompletionMessageParamUnion {
	if config.IsReasoningModel(model) {
		return openai.DeveloperMessage(content)
	}
	return openai.SystemMessage(content)
}

// Transcript converts assembled turns into request messages.
func Transcript(msgs []history.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch {
		case len(m.Images) > 0:
			parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(m.Images)+1)
			parts = append(parts, openai.TextContentPart(m.Text))
			for _, img := range m.Images {
				parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL:    img,
					Detail: "auto",
				}))
			}
			out = append(out, openai.UserMessage(parts))
		case m.Role == history.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Text))
		default:
			out = append(out, openai.UserMessage(m.Text))
		}
	}
	return out
}
