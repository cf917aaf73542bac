package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

const (
	arcencielBase      = "https://arcenciel.io"
	arcencielUserAgent = "holo-cogs/v1 (https://github.com/hollowstrawberry/holo-cogs);"
)

// Arcenciel searches stable diffusion models on arcenciel.io.
type Arcenciel struct {
	f    *fetcher
	base string
}

func NewArcenciel(f *fetcher) *Arcenciel {
	return &Arcenciel{f: f, base: arcencielBase}
}

func (a *Arcenciel) Descriptor() Descriptor {
	return Descriptor{
		Name:        "search_models_arcenciel",
		Description: "Searches stable diffusion models on Arc en Ciel.",
		Parameters: schema([]string{"query"},
			[2]string{"query", "Search in model titles. Leave empty if searching all models from a user."},
			[2]string{"user", "Name of a user to search, if included, only models by this user will be shown."},
		),
	}
}

type arcencielModel struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Type     string `json:"type"`
	Uploader struct {
		Username string `json:"username"`
	} `json:"uploader"`
	Versions []struct {
		ID          int64  `json:"id"`
		PublishedAt string `json:"publishedAt"`
		BaseModel   string `json:"baseModel"`
	} `json:"versions"`
}

func (a *Arcenciel) Run(ctx context.Context, args map[string]any) (string, error) {
	query := stringArg(args, "query")
	user := stringArg(args, "user")
	logger := log.With().Str("component", "tools").Str("tool", "search_models_arcenciel").Logger()

	search := url.Values{"search": {query}}
	if user != "" {
		var users []struct {
			ID int64 `json:"id"`
		}
		if err := a.getJSON(ctx, "/api/users/search?"+url.Values{"q": {user}}.Encode(), &users); err != nil {
			logger.Warn().Err(err).Msg("user lookup failed")
			return "Error trying to grab user from Arc en Ciel", nil
		}
		if len(users) == 0 {
			return "[User not found]", nil
		}
		search.Set("userId", fmt.Sprint(users[0].ID))
	}

	var page struct {
		Data []arcencielModel `json:"data"`
	}
	if err := a.getJSON(ctx, "/api/models/search?"+search.Encode(), &page); err != nil {
		logger.Warn().Err(err).Msg("model search failed")
		return "Error trying to grab model from Arc en Ciel", nil
	}
	if len(page.Data) == 0 {
		return "[No results]", nil
	}
	lines := make([]string, 0, len(page.Data))
	for _, m := range page.Data {
		if line, ok := a.formatModel(m); ok {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n"), nil
}

func (a *Arcenciel) getJSON(ctx context.Context, path string, out any) error {
	resp, err := a.f.do(ctx, request{
		method:  http.MethodGet,
		url:     a.base + path,
		headers: map[string]string{"User-Agent": arcencielUserAgent},
	})
	if err != nil {
		return err
	}
	return json.Unmarshal(resp.body, out)
}

func (a *Arcenciel) formatModel(m arcencielModel) (string, bool) {
	if len(m.Versions) == 0 {
		return "", false
	}
	latest := m.Versions[0]
	bases := map[string]struct{}{}
	for _, v := range m.Versions {
		if v.ID > latest.ID {
			latest = v
		}
		bases[v.BaseModel] = struct{}{}
	}
	names := make([]string, 0, len(bases))
	for b := range bases {
		names = append(names, b)
	}
	sort.Strings(names)

	return fmt.Sprintf("[[[ [Model URL: %s/models/%d] [Model type: %s] [Model uploader: %s][Date updated: %s][Versions: %s] [Model name:] %s ]]]",
		a.base, m.ID, m.Type, m.Uploader.Username, latest.PublishedAt, strings.Join(names, "/"), m.Title), true
}
