package audio

import (
	"sort"
	"sync"
	"time"
)

// Manager owns one Player per guild.
type Manager struct {
	mu      sync.Mutex
	players map[string]*Player
	now     func() time.Time
}

func NewManager() *Manager {
	return &Manager{players: make(map[string]*Player), now: time.Now}
}

// GetOrCreatePlayer returns the guild's player, creating an idle one.
func (m *Manager) GetOrCreatePlayer(guildID string) *Player {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.players[guildID]; ok {
		return p
	}
	p := newPlayer(guildID, m.now)
	m.players[guildID] = p
	return p
}

// Player returns the guild's player if one was ever created.
func (m *Manager) Player(guildID string) (*Player, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[guildID]
	return p, ok
}

// Guilds lists the guilds with a player, sorted.
func (m *Manager) Guilds() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.players))
	for id := range m.players {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
