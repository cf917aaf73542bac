package tools

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/rs/zerolog/log"
	"github.com/sahilm/fuzzy"
	"gopkg.in/yaml.v3"
)

const booruFuzzyCutoff = 0.8

// Booru searches a local index of booru tag groups.
type Booru struct {
	path string

	once   sync.Once
	groups map[string][]string
	tags   []string
	err    error
}

func NewBooru(path string) *Booru {
	return &Booru{path: path}
}

func (b *Booru) Descriptor() Descriptor {
	return Descriptor{
		Name: "search_booru_tags",
		Description: "Searches booru tags and tag groups. Tag groups may include many types of clothes like hat or legwear, " +
			"as well as gestures, actions, expressions, locations, styles, body parts, animals, positions, composition, etc.",
		Parameters: schema([]string{"query"}, [2]string{"query", "A short term to search for matches among booru tags and tag groups."}),
	}
}

func (b *Booru) Configured() bool {
	return b.path != ""
}

func (b *Booru) Run(_ context.Context, args map[string]any) (string, error) {
	query, err := requireArg(args, "query")
	if err != nil {
		return "", err
	}
	b.once.Do(b.load)
	if b.err != nil {
		return "", b.err
	}
	res := b.Search(query)
	if len(res) == 0 {
		return "(No results)", nil
	}
	return strings.Join(res, ", "), nil
}

func (b *Booru) load() {
	data, err := os.ReadFile(b.path)
	if err != nil {
		b.err = fmt.Errorf("read tag groups: %w", err)
		return
	}
	var raw map[string]map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		b.err = fmt.Errorf("parse tag groups: %w", err)
		return
	}
	b.index(raw)
	log.Info().Str("component", "tools").Int("groups", len(b.groups)).Int("tags", len(b.tags)).Msg("booru tag index loaded")
}

// index flattens group → subgroup → tags. A subgroup is either a list of
// tags or a map whose values are tags or lists of tags.
func (b *Booru) index(raw map[string]map[string]any) {
	b.groups = map[string][]string{}
	b.tags = nil
	for _, subgroups := range raw {
		for name, content := range subgroups {
			var tags []string
			switch c := content.(type) {
			case []any:
				tags = collectTags(c)
			case map[string]any:
				for _, v := range c {
					switch vv := v.(type) {
					case []any:
						tags = append(tags, collectTags(vv)...)
					case string:
						tags = append(tags, normalizeTag(vv))
					}
				}
			default:
				continue
			}
			b.groups[normalizeTag(name)] = tags
			b.tags = append(b.tags, tags...)
		}
	}
}

func collectTags(items []any) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, normalizeTag(s))
		}
	}
	return out
}

func normalizeTag(tag string) string {
	tag = strings.ToLower(tag)
	if len(tag) > 3 {
		tag = strings.ReplaceAll(tag, "_", " ")
	}
	return tag
}

// Search returns the sorted union of every group whose name contains the
// query and every tag that closely matches it.
func (b *Booru) Search(query string) []string {
	query = normalizeTag(query)
	found := map[string]struct{}{}
	for name, tags := range b.groups {
		if strings.Contains(name, query) {
			for _, t := range tags {
				found[t] = struct{}{}
			}
		}
	}
	for _, m := range fuzzy.Find(query, b.tags) {
		if strings.Contains(m.Str, query) || similarity(query, m.Str) >= booruFuzzyCutoff {
			found[m.Str] = struct{}{}
		}
	}
	out := make([]string, 0, len(found))
	for t := range found {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func similarity(a, b string) float64 {
	return difflib.NewMatcher(strings.Split(a, ""), strings.Split(b, "")).Ratio()
}
