package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

const serperEndpoint = "https://google.serper.dev/search"

const searchFailed = "An error occured while searching Google."

// Search queries Google through serper.dev.
type Search struct {
	creds    Credentials
	f        *fetcher
	endpoint string
}

func NewSearch(creds Credentials, f *fetcher) *Search {
	return &Search{creds: creds, f: f, endpoint: serperEndpoint}
}

func (s *Search) Descriptor() Descriptor {
	return Descriptor{
		Name:        "search_google",
		Description: "Googles a query for any unknown information or for updates on old information.",
		Parameters:  schema([]string{"query"}, [2]string{"query", "The search query"}),
		Credentials: []CredentialRef{{Service: "serper", Key: "api_key"}},
	}
}

type serperResult struct {
	AnswerBox struct {
		Title   string `json:"title"`
		Answer  string `json:"answer"`
		Source  string `json:"source"`
		Snippet string `json:"snippet"`
	} `json:"answerBox"`
	KnowledgeGraph struct {
		Title       string            `json:"title"`
		Type        string            `json:"type"`
		Description string            `json:"description"`
		Website     string            `json:"website"`
		Attributes  map[string]string `json:"attributes"`
	} `json:"knowledgeGraph"`
	Organic []struct {
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic"`
}

func (s *Search) Run(ctx context.Context, args map[string]any) (string, error) {
	query, err := requireArg(args, "query")
	if err != nil {
		return "", err
	}
	logger := log.With().Str("component", "tools").Str("tool", "search_google").Logger()

	key, err := s.creds.Credential("serper", "api_key")
	if err != nil || key == "" {
		logger.Error().Msg("serper api_key not set")
		return searchFailed, nil
	}
	payload, err := json.Marshal(map[string]string{"q": query})
	if err != nil {
		return "", err
	}
	resp, err := s.f.do(ctx, request{
		method:  http.MethodPost,
		url:     s.endpoint,
		headers: map[string]string{"X-API-KEY": key, "Content-Type": "application/json"},
		body:    func() io.Reader { return bytes.NewReader(payload) },
	})
	if err != nil {
		logger.Warn().Err(err).Msg("serper request failed")
		return searchFailed, nil
	}
	var data serperResult
	if err := json.Unmarshal(resp.body, &data); err != nil {
		logger.Warn().Err(err).Msg("decode serper response")
		return searchFailed, nil
	}
	return formatSearch(data), nil
}

func formatSearch(data serperResult) string {
	var b strings.Builder
	b.WriteString("[Google Search result] ")

	ab := data.AnswerBox
	if ab.Title != "" && ab.Answer != "" {
		fmt.Fprintf(&b, "[Title: %s] [Answer: %s] ", ab.Title, ab.Answer)
	}
	if ab.Source != "" {
		fmt.Fprintf(&b, "[Source: %s] ", ab.Source)
	}
	if ab.Snippet != "" {
		fmt.Fprintf(&b, "[snippet:] %s ", ab.Snippet)
	}

	kg := data.KnowledgeGraph
	for _, f := range [][2]string{{"Title", kg.Title}, {"Type", kg.Type}, {"Description", kg.Description}, {"Website", kg.Website}} {
		if f[1] != "" {
			fmt.Fprintf(&b, "[%s: %s] ", f[0], f[1])
		}
	}
	attrs := make([]string, 0, len(kg.Attributes))
	for k := range kg.Attributes {
		attrs = append(attrs, k)
	}
	sort.Strings(attrs)
	for _, k := range attrs {
		fmt.Fprintf(&b, "[%s: %s] ", k, kg.Attributes[k])
	}

	if len(data.Organic) > 0 {
		first := data.Organic[0]
		fmt.Fprintf(&b, "[First result URL: %s] [First result snippet:] %s", first.Link, first.Snippet)
	}

	out := b.String()
	if len(out) < 25 {
		out += "Nothing relevant."
	}
	return out
}
