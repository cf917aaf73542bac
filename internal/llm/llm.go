// Package llm wraps the OpenAI chat completion client and converts
// transcripts into request parameters.
package llm

import (
	"context"
	"errors"
	"sync"

	"github.com/keshon/memoria/internal/config"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

var (
	ErrNoClient  = errors.New("openai client not configured")
	ErrNoChoices = errors.New("completion returned no choices")
)

// Completer is the chat completion endpoint.
type Completer interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

type Credentials interface {
	Credential(service, key string) (string, error)
}

// Provider holds the current client, which is rebuilt whenever the API key
// changes.
type Provider struct {
	creds   Credentials
	baseURL string

	mu        sync.RWMutex
	completer Completer
}

func NewProvider(creds Credentials, baseURL string) *Provider {
	return &Provider{creds: creds, baseURL: baseURL}
}

// NewProviderWith wraps a fixed completer.
func NewProviderWith(c Completer) *Provider {
	return &Provider{completer: c}
}

// Reload rebuilds the client from the stored API key. Without a key the
// provider is left empty.
func (p *Provider) Reload() bool {
	if p.creds == nil {
		return p.completer != nil
	}
	key, err := p.creds.Credential("openai", "api_key")
	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil || key == "" {
		p.completer = nil
		return false
	}
	opts := []option.RequestOption{option.WithAPIKey(key), option.WithMaxRetries(2)}
	if p.baseURL != "" {
		opts = append(opts, option.WithBaseURL(p.baseURL))
	}
	client := openai.NewClient(opts...)
	p.completer = &client.Chat.Completions
	return true
}

// Get returns the client, loading it lazily on first use.
func (p *Provider) Get() (Completer, error) {
	p.mu.RLock()
	c := p.completer
	p.mu.RUnlock()
	if c != nil {
		return c, nil
	}
	if !p.Reload() {
		return nil, ErrNoClient
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.completer == nil {
		return nil, ErrNoClient
	}
	return p.completer, nil
}

// Request is one chat completion call.
type Request struct {
	Model     string
	Effort    string
	MaxTokens int
	Messages  []openai.ChatCompletionMessageParamUnion
	Tools     []openai.ChatCompletionToolParam
	Format    *openai.ChatCompletionNewParamsResponseFormatUnion
}

// Params builds the API parameters. Reasoning models get the effort hint
// and max_completion_tokens, the others get max_tokens.
func (r Request) Params() openai.ChatCompletionNewParams {
	p := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(r.Model),
		Messages: r.Messages,
	}
	reasoning := config.IsReasoningModel(r.Model)
	if reasoning && r.Effort != "" {
		p.ReasoningEffort = shared.ReasoningEffort(r.Effort)
	}
	if r.MaxTokens > 0 {
		if reasoning {
			p.MaxCompletionTokens = openai.Int(int64(r.MaxTokens))
		} else {
			p.MaxTokens = openai.Int(int64(r.MaxTokens))
		}
	}
	if len(r.Tools) > 0 {
		p.Tools = r.Tools
	}
	if r.Format != nil {
		p.ResponseFormat = *r.Format
	}
	return p
}

// Result is the first choice of a completion with its output token count.
type Result struct {
	Message openai.ChatCompletionMessage
	Tokens  int
}

// Complete runs req and returns the first choice.
func Complete(ctx context.Context, c Completer, req Request) (Result, error) {
	resp, err := c.New(ctx, req.Params())
	if err != nil {
		return Result{}, err
	}
	if len(resp.Choices) == 0 {
		return Result{}, ErrNoChoices
	}
	return Result{
		Message: resp.Choices[0].Message,
		Tokens:  int(resp.Usage.CompletionTokens),
	}, nil
}

// JSONSchemaFormat requests strict structured output matching schema.
func JSONSchemaFormat(name string, schema map[string]any) *openai.ChatCompletionNewParamsResponseFormatUnion {
	return &openai.ChatCompletionNewParamsResponseFormatUnion{
		OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
			JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
				Name:   name,
				Schema: schema,
				Strict: openai.Bool(true),
			},
		},
	}
}
