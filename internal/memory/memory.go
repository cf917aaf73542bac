// Package memory keeps an in-process mirror of every guild's memory entries
// in lockstep with durable storage.
package memory

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var ErrNotFound = errors.New("memory not found")

// Durable is the persistent side of the store.
type Durable interface {
	GuildIDs() []string
	Memory(guildID string) (map[string]string, error)
	UpdateMemory(guildID string, fn func(mem map[string]string) error) error
}

type Store struct {
	durable Durable
	log     zerolog.Logger

	mu     sync.RWMutex
	guilds map[string]map[string]string
	locks  map[string]*sync.Mutex
}

func NewStore(durable Durable) *Store {
	return &Store{
		durable: durable,
		log:     log.With().Str("component", "memory").Logger(),
		guilds:  map[string]map[string]string{},
		locks:   map[string]*sync.Mutex{},
	}
}

// Load reads every guild's entries from durable storage.
func (s *Store) Load() error {
	loaded := map[string]map[string]string{}
	for _, id := range s.durable.GuildIDs() {
		mem, err := s.durable.Memory(id)
		if err != nil {
			return fmt.Errorf("load memory of guild %s: %w", id, err)
		}
		loaded[id] = mem
	}

	s.mu.Lock()
	s.guilds = loaded
	s.mu.Unlock()
	s.log.Info().Int("guilds", len(loaded)).Msg("memory loaded")
	return nil
}

// Names returns the entry names of a guild in sorted order.
func (s *Store) Names(guildID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.guilds[guildID]))
}

func (s *Store) Get(guildID, name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.guilds[guildID][name]
	return v, ok
}

// Snapshot returns a copy of a guild's entries.
func (s *Store) Snapshot(guildID string) map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := maps.Clone(s.guilds[guildID])
	if out == nil {
		out = map[string]string{}
	}
	return out
}

func (s *Store) Len(guildID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.guilds[guildID])
}

// Set creates or overwrites an entry.
func (s *Store) Set(guildID, name, content string) error {
	return s.mutate(guildID, func(mem map[string]string) error {
		mem[name] = content
		return nil
	})
}

// Delete removes an entry, returning ErrNotFound if it does not exist.
func (s *Store) Delete(guildID, name string) error {
	return s.mutate(guildID, func(mem map[string]string) error {
		if _, ok := mem[name]; !ok {
			return ErrNotFound
		}
		delete(mem, name)
		return nil
	})
}

// Rename moves the entry oldName to newName in every guild that has one and
// returns those guilds. An existing newName entry is overwritten.
func (s *Store) Rename(oldName, newName string) ([]string, error) {
	if oldName == newName {
		return nil, nil
	}
	s.mu.RLock()
	var targets []string
	for id, mem := range s.guilds {
		if _, ok := mem[oldName]; ok {
			targets = append(targets, id)
		}
	}
	s.mu.RUnlock()
	slices.Sort(targets)

	var (
		moved []string
		errs  []error
	)
	for _, id := range targets {
		err := s.mutate(id, func(mem map[string]string) error {
			v, ok := mem[oldName]
			if !ok {
				return ErrNotFound
			}
			mem[newName] = v
			delete(mem, oldName)
			return nil
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("guild %s: %w", id, err))
			continue
		}
		moved = append(moved, id)
		s.log.Info().Str("guild", id).Str("from", oldName).Str("to", newName).Msg("moved user memory")
	}
	return moved, errors.Join(errs...)
}

// mutate runs fn inside the guild's critical section: the durable
// transaction commits first and the cache then takes the committed state.
func (s *Store) mutate(guildID string, fn func(mem map[string]string) error) error {
	lock := s.guildLock(guildID)
	lock.Lock()
	defer lock.Unlock()

	var committed map[string]string
	err := s.durable.UpdateMemory(guildID, func(mem map[string]string) error {
		if err := fn(mem); err != nil {
			return err
		}
		committed = maps.Clone(mem)
		return nil
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.guilds[guildID] = committed
	s.mu.Unlock()
	return nil
}

func (s *Store) guildLock(guildID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[guildID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[guildID] = l
	}
	return l
}
