package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"
	"github.com/rs/zerolog/log"
)

// ErrorResult is what the model sees when a call could not be completed.
const ErrorResult = "[Error]"

type Dispatcher struct {
	reg *Registry
}

func NewDispatcher(reg *Registry) *Dispatcher {
	return &Dispatcher{reg: reg}
}

// Schemas returns the available tools minus the disabled ones.
func (d *Dispatcher) Schemas(disabled []string) []openai.ChatCompletionToolParam {
	var out []openai.ChatCompletionToolParam
	for _, t := range d.reg.Available() {
		desc := t.Descriptor()
		if slices.Contains(disabled, desc.Name) {
			continue
		}
		out = append(out, openai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        desc.Name,
				Description: openai.String(desc.Description),
				Parameters:  shared.FunctionParameters(desc.Parameters),
			},
		})
	}
	return out
}

// Execute runs one call and always returns a string for the tool turn.
// Tools named in disabled are refused like unknown ones.
func (d *Dispatcher) Execute(ctx context.Context, name, rawArgs string, disabled []string) (result string) {
	logger := log.With().Str("component", "tools").Str("tool", name).Logger()
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("tool panicked")
			result = ErrorResult
		}
	}()

	if slices.Contains(disabled, name) {
		logger.Warn().Msg("disabled tool requested")
		return ErrorResult
	}
	t, ok := d.reg.Lookup(name)
	if !ok {
		logger.Warn().Msg("unknown tool requested")
		return ErrorResult
	}
	args := map[string]any{}
	if rawArgs != "" {
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			logger.Warn().Err(err).Str("args", rawArgs).Msg("invalid tool arguments")
			return ErrorResult
		}
	}
	logger.Info().Str("args", rawArgs).Msg("calling tool")
	out, err := t.Run(ctx, args)
	if err != nil {
		logger.Warn().Err(err).Msg("tool failed")
		return ErrorResult
	}
	return out
}

func requireArg(args map[string]any, name string) (string, error) {
	s := stringArg(args, name)
	if s == "" {
		return "", fmt.Errorf("missing argument %q", name)
	}
	return s, nil
}
