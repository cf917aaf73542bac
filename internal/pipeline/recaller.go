package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/keshon/memoria/internal/config"
	"github.com/keshon/memoria/internal/history"
	"github.com/keshon/memoria/internal/llm"
	"github.com/openai/openai-go"
)

// recall picks the memory entries relevant to msgs. Entries of users who
// speak in the transcript are always included.
func (p *Pipeline) recall(ctx context.Context, c llm.Completer, guildID string, g *config.GuildSettings, msgs []history.Message, names []string, res *Result) (map[string]string, error) {
	if len(names) == 0 {
		return map[string]string{}, nil
	}
	flat := history.Flatten(msgs)
	var transcript strings.Builder
	for _, m := range flat {
		transcript.WriteString(m.Text)
		transcript.WriteByte('\n')
	}

	chosen := map[string]bool{}
	var rest []string
	for _, n := range names {
		if strings.Contains(transcript.String(), "[Username: "+n+"]") {
			chosen[n] = true
		} else {
			rest = append(rest, n)
		}
	}

	var err error
	if len(rest) > 0 {
		prompt := config.RenderPrompt(g.Recaller.Prompt, nil, strings.Join(rest, ", "))
		var out llm.Result
		out, err = llm.Complete(ctx, c, llm.Request{
			Model:    g.Recaller.Model,
			Effort:   g.Recaller.Effort,
			Messages: append([]openai.ChatCompletionMessageParamUnion{openai.SystemMessage(prompt)}, llm.Transcript(flat)...),
		})
		if err == nil {
			res.RecallerTokens = out.Tokens
			completion := strings.ToLower(out.Message.Content)
			for _, n := range rest {
				if strings.Contains(completion, strings.ToLower(n)) {
					chosen[n] = true
				}
			}
		} else {
			err = fmt.Errorf("recaller completion: %w", err)
		}
	}

	recalled := make(map[string]string, len(chosen))
	for n := range chosen {
		if v, ok := p.mem.Get(guildID, n); ok {
			recalled[n] = v
			res.Recalled = append(res.Recalled, n)
		}
	}
	sort.Strings(res.Recalled)
	return recalled, err
}

// memoryLines renders entries as "[Memory of k:] v" lines ordered by name.
// keep may be nil.
func memoryLines(entries map[string]string, keep func(string) bool) string {
	names := make([]string, 0, len(entries))
	for k := range entries {
		if keep == nil || keep(k) {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	lines := make([]string, len(names))
	for i, k := range names {
		lines[i] = fmt.Sprintf("[Memory of %s:] %s", k, entries[k])
	}
	return strings.Join(lines, "\n")
}
