// Package tools holds the functions the responder can call and the
// dispatcher that runs them.
package tools

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/keshon/memoria/pkg/retrylimit"
	"github.com/rs/zerolog/log"
)

// CredentialRef names a shared secret a tool needs.
type CredentialRef struct {
	Service string
	Key     string
}

// Descriptor describes a tool to the model.
type Descriptor struct {
	Name        string
	Description string
	Parameters  map[string]any
	Credentials []CredentialRef
}

type Tool interface {
	Descriptor() Descriptor
	Run(ctx context.Context, args map[string]any) (string, error)
}

// Configurable is implemented by tools that can be unavailable for reasons
// other than missing credentials.
type Configurable interface {
	Configured() bool
}

type Credentials interface {
	Credential(service, key string) (string, error)
}

// Deps are the shared dependencies of the built-in tools.
type Deps struct {
	Credentials   Credentials
	HTTPClient    *http.Client
	TagGroupsPath string
}

// Registry is the fixed set of tools plus the subset currently usable.
type Registry struct {
	all []Tool

	mu        sync.RWMutex
	available map[string]Tool
}

// NewRegistry builds the built-in tools.
func NewRegistry(d Deps) *Registry {
	if d.HTTPClient == nil {
		d.HTTPClient = &http.Client{Timeout: 25 * time.Second}
	}
	f := newFetcher(d.HTTPClient)
	return NewRegistryWith(
		NewSearch(d.Credentials, f),
		NewScrape(d.HTTPClient),
		NewWolfram(d.Credentials, f),
		NewBooru(d.TagGroupsPath),
		NewArcenciel(f),
	)
}

func NewRegistryWith(tools ...Tool) *Registry {
	return &Registry{all: tools, available: map[string]Tool{}}
}

// Refresh recomputes which tools have everything they need.
func (r *Registry) Refresh(creds Credentials) {
	avail := make(map[string]Tool, len(r.all))
	for _, t := range r.all {
		d := t.Descriptor()
		if !hasCredentials(creds, d.Credentials) {
			continue
		}
		if c, ok := t.(Configurable); ok && !c.Configured() {
			continue
		}
		avail[d.Name] = t
	}

	r.mu.Lock()
	r.available = avail
	r.mu.Unlock()

	log.Info().Str("component", "tools").Int("available", len(avail)).Int("total", len(r.all)).Msg("tool availability refreshed")
}

func hasCredentials(creds Credentials, refs []CredentialRef) bool {
	for _, ref := range refs {
		if creds == nil {
			return false
		}
		v, err := creds.Credential(ref.Service, ref.Key)
		if err != nil || v == "" {
			return false
		}
	}
	return true
}

// Available returns the usable tools ordered by name.
func (r *Registry) Available() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.available))
	for _, t := range r.available {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Descriptor().Name < out[j].Descriptor().Name })
	return out
}

// All returns every built-in tool, usable or not.
func (r *Registry) All() []Tool {
	return r.all
}

func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.available[name]
	return t, ok
}

// fetcher is the throttled HTTP client shared by the API-backed tools.
type fetcher struct {
	client *http.Client
	lim    *retrylimit.AdaptiveLimiter
}

func newFetcher(c *http.Client) *fetcher {
	return &fetcher{client: c, lim: retrylimit.NewAdaptiveLimiter(2, 0.5, 5, 0.5, 0.5)}
}

// schema builds an object schema of string properties.
func schema(required []string, props ...[2]string) map[string]any {
	p := make(map[string]any, len(props))
	for _, kv := range props {
		p[kv[0]] = map[string]any{"type": "string", "description": kv[1]}
	}
	if required == nil {
		required = []string{}
	}
	return map[string]any{
		"type":       "object",
		"properties": p,
		"required":   required,
	}
}

func stringArg(args map[string]any, name string) string {
	s, _ := args[name].(string)
	return s
}
