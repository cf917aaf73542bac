package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/keshon/memoria/internal/history"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCompleter struct {
	got  openai.ChatCompletionNewParams
	resp *openai.ChatCompletion
	err  error
}

func (f *fakeCompleter) New(_ context.Context, p openai.ChatCompletionNewParams, _ ...option.RequestOption) (*openai.ChatCompletion, error) {
	f.got = p
	return f.resp, f.err
}

type credMap map[string]string

func (c credMap) Credential(service, key string) (string, error) {
	v, ok := c[service+"."+key]
	if !ok {
		return "", errors.New("missing")
	}
	return v, nil
}

func TestParamsTokenLimitByModel(t *testing.T) {
	p := Request{Model: "gpt-4.1", Effort: "low", MaxTokens: 500}.Params()
	assert.True(t, p.MaxTokens.Valid())
	assert.Equal(t, int64(500), p.MaxTokens.Value)
	assert.False(t, p.MaxCompletionTokens.Valid())
	assert.Empty(t, string(p.ReasoningEffort))

	p = Request{Model: "gpt-5-mini", Effort: "minimal", MaxTokens: 500}.Params()
	assert.False(t, p.MaxTokens.Valid())
	assert.Equal(t, int64(500), p.MaxCompletionTokens.Value)
	assert.Equal(t, "minimal", string(p.ReasoningEffort))
}

func TestInstructionRole(t *testing.T) {
	assert.NotNil(t, Instruction("gpt-5", "x").OfDeveloper)
	assert.NotNil(t, Instruction("gpt-4o", "x").OfSystem)
}

func TestTranscript(t *testing.T) {
	msgs := Transcript([]history.Message{
		{Role: history.RoleUser, Text: "hi"},
		{Role: history.RoleAssistant, Text: "hello"},
		{Role: history.RoleUser, Text: "look", Images: []string{"data:image/png;base64,AAAA"}},
	})
	require.Len(t, msgs, 3)
	require.NotNil(t, msgs[0].OfUser)
	assert.Equal(t, "hi", msgs[0].OfUser.Content.OfString.Value)
	assert.NotNil(t, msgs[1].OfAssistant)
	require.NotNil(t, msgs[2].OfUser)
	assert.Len(t, msgs[2].OfUser.Content.OfArrayOfContentParts, 2)
}

func TestComplete(t *testing.T) {
	f := &fakeCompleter{resp: &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: "ok"}}},
		Usage:   openai.CompletionUsage{CompletionTokens: 7},
	}}
	res, err := Complete(context.Background(), f, Request{Model: "gpt-4.1"})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Message.Content)
	assert.Equal(t, 7, res.Tokens)
	assert.Equal(t, "gpt-4.1", string(f.got.Model))

	f.resp = &openai.ChatCompletion{}
	_, err = Complete(context.Background(), f, Request{Model: "gpt-4.1"})
	assert.ErrorIs(t, err, ErrNoChoices)
}

func TestProviderReload(t *testing.T) {
	creds := credMap{}
	p := NewProvider(creds, "")
	_, err := p.Get()
	assert.ErrorIs(t, err, ErrNoClient)

	creds["openai.api_key"] = "sk-test"
	c, err := p.Get()
	require.NoError(t, err)
	assert.NotNil(t, c)

	delete(creds, "openai.api_key")
	assert.False(t, p.Reload())
	_, err = p.Get()
	assert.ErrorIs(t, err, ErrNoClient)
}

func TestJSONSchemaFormat(t *testing.T) {
	f := JSONSchemaFormat("memory_changes", map[string]any{"type": "object"})
	require.NotNil(t, f.OfJSONSchema)
	assert.Equal(t, "memory_changes", f.OfJSONSchema.JSONSchema.Name)
	assert.True(t, f.OfJSONSchema.JSONSchema.Strict.Value)
}
