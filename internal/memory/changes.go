package memory

import (
	"slices"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

type Action string

const (
	ActionCreate Action = "create"
	ActionAppend Action = "append"
	ActionModify Action = "modify"
	ActionDelete Action = "delete"
)

var Actions = []Action{ActionCreate, ActionAppend, ActionModify, ActionDelete}

const appendSeparator = " ... "

// closeMatchCutoff is the minimum similarity for a fuzzy name substitution.
const closeMatchCutoff = 0.6

// Change is one memory mutation proposed by the memorizer.
type Change struct {
	Action  Action `json:"action_type"`
	Name    string `json:"memory_name"`
	Content string `json:"memory_content"`
}

// Apply performs changes in order within one transaction and returns the
// names of the entries that changed. A change naming a missing entry is
// redirected to the closest existing name, or dropped if there is none,
// unless it creates the entry.
func (s *Store) Apply(guildID string, changes []Change) ([]string, error) {
	var applied []string
	err := s.mutate(guildID, func(mem map[string]string) error {
		applied = applied[:0]
		for _, c := range changes {
			name := c.Name
			if _, ok := mem[name]; !ok && c.Action != ActionCreate {
				match, found := ClosestMatch(name, keys(mem))
				if !found {
					s.log.Debug().Str("guild", guildID).Str("name", name).Msg("no entry to change")
					continue
				}
				name = match
			}

			switch c.Action {
			case ActionDelete:
				delete(mem, name)
			case ActionCreate:
				if _, exists := mem[name]; exists {
					continue
				}
				mem[name] = c.Content
			case ActionModify:
				mem[name] = c.Content
			default:
				mem[name] += appendSeparator + c.Content
			}
			s.log.Info().Str("guild", guildID).Str("action", string(c.Action)).Str("name", name).Msg("memory changed")
			applied = append(applied, name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return applied, nil
}

// ClosestMatch returns the name most similar to name, character by
// character, provided the similarity reaches the cutoff.
func ClosestMatch(name string, names []string) (string, bool) {
	target := strings.Split(name, "")
	var (
		best      string
		bestScore float64
		found     bool
	)
	for _, candidate := range names {
		m := difflib.NewMatcher(strings.Split(candidate, ""), target)
		if m.RealQuickRatio() < closeMatchCutoff || m.QuickRatio() < closeMatchCutoff {
			continue
		}
		score := m.Ratio()
		if score < closeMatchCutoff {
			continue
		}
		if !found || score > bestScore || (score == bestScore && candidate > best) {
			best, bestScore, found = candidate, score, true
		}
	}
	return best, found
}

func keys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
