// Package nowplaying keeps a live "now playing" embed at the bottom of a
// configured channel while audio plays in that guild.
package nowplaying

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/keshon/memoria/internal/audio"
	"github.com/keshon/memoria/internal/chat"
	"github.com/keshon/memoria/pkg/jobmgr"
	"github.com/keshon/memoria/pkg/util"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	JobName      = "nowplaying"
	tickInterval = time.Second
	// Interval is the minimum time between two refreshes of an unchanged panel.
	Interval = 9500 * time.Millisecond
)

// ChannelStore persists the panel channel of each guild.
type ChannelStore interface {
	PlayerChannels() (map[string]string, error)
	SetPlayerChannel(guildID, channelID string) error
}

// Players looks up a guild's player.
type Players interface {
	Player(guildID string) (*audio.Player, bool)
}

type guildState struct {
	mu          sync.Mutex
	messageID   string
	lastTrack   *audio.Track
	lastUpdated time.Time
}

// Panel drives the panels of every configured guild.
type Panel struct {
	mu       sync.Mutex
	channels map[string]string
	guilds   map[string]*guildState

	msgs    chat.Panels
	store   ChannelStore
	players Players
	now     func() time.Time
	log     zerolog.Logger
}

func New(msgs chat.Panels, store ChannelStore, players Players) *Panel {
	return &Panel{
		channels: make(map[string]string),
		guilds:   make(map[string]*guildState),
		msgs:     msgs,
		store:    store,
		players:  players,
		now:      time.Now,
		log:      log.With().Str("component", "nowplaying").Logger(),
	}
}

// Load reads the configured channels from the store.
func (p *Panel) Load() error {
	channels, err := p.store.PlayerChannels()
	if err != nil {
		return fmt.Errorf("load panel channels: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for g, ch := range channels {
		p.channels[g] = ch
	}
	p.log.Info().Int("guilds", len(channels)).Msg("panel channels loaded")
	return nil
}

// Start runs the refresh loop as a job of jm.
func (p *Panel) Start(jm *jobmgr.Manager) error {
	return jm.Every(JobName, tickInterval, p.Tick)
}

// Channel returns the panel channel of a guild, or "".
func (p *Panel) Channel(guildID string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channels[guildID]
}

// SetChannel moves the panel to channelID; an empty ID disables it. The old
// panel message is removed. It returns the previously configured channel.
func (p *Panel) SetChannel(ctx context.Context, guildID, channelID string) (string, error) {
	if err := p.store.SetPlayerChannel(guildID, channelID); err != nil {
		return "", fmt.Errorf("save panel channel: %w", err)
	}

	p.mu.Lock()
	prev := p.channels[guildID]
	if channelID == "" {
		delete(p.channels, guildID)
	} else {
		p.channels[guildID] = channelID
	}
	st := p.state(guildID)
	p.mu.Unlock()

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.messageID != "" && prev != "" {
		if err := p.msgs.Delete(ctx, prev, st.messageID); err != nil {
			p.log.Warn().Err(err).Str("guild", guildID).Msg("failed to delete old panel")
		}
	}
	st.messageID = ""
	st.lastTrack = nil
	st.lastUpdated = time.Time{}
	return prev, nil
}

// Tick refreshes every panel that is due or whose track changed.
func (p *Panel) Tick(ctx context.Context) error {
	p.mu.Lock()
	guildIDs := make([]string, 0, len(p.channels))
	for g := range p.channels {
		guildIDs = append(guildIDs, g)
	}
	p.mu.Unlock()
	sort.Strings(guildIDs)

	var tasks []func(context.Context) error
	for _, guildID := range guildIDs {
		if fn := p.due(guildID); fn != nil {
			tasks = append(tasks, fn)
		}
	}

	var failed []error
	for _, err := range util.Gather(ctx, tasks...) {
		if err != nil {
			p.log.Error().Err(err).Msg("panel update failed")
			failed = append(failed, err)
		}
	}
	return errors.Join(failed...)
}

// due returns the update to run for a guild, or nil when nothing is due.
func (p *Panel) due(guildID string) func(context.Context) error {
	p.mu.Lock()
	channelID := p.channels[guildID]
	st := p.state(guildID)
	p.mu.Unlock()

	snap := p.snapshot(guildID)

	st.mu.Lock()
	defer st.mu.Unlock()
	changed := !sameTrack(snap.Current, st.lastTrack)
	if !changed && p.now().Sub(st.lastUpdated) < Interval {
		return nil
	}
	st.lastUpdated = p.now()
	st.lastTrack = snap.Current
	return func(ctx context.Context) error {
		return p.update(ctx, guildID, channelID, snap)
	}
}

// Refresh redraws a guild's panel immediately, used after a button press.
func (p *Panel) Refresh(ctx context.Context, guildID string) error {
	p.mu.Lock()
	channelID, ok := p.channels[guildID]
	st := p.state(guildID)
	p.mu.Unlock()
	if !ok {
		return nil
	}

	snap := p.snapshot(guildID)
	st.mu.Lock()
	st.lastUpdated = p.now()
	st.lastTrack = snap.Current
	st.mu.Unlock()
	return p.update(ctx, guildID, channelID, snap)
}

// Close deletes every panel message.
func (p *Panel) Close(ctx context.Context) {
	p.mu.Lock()
	type panelMsg struct{ channelID, messageID string }
	var msgs []panelMsg
	for g, st := range p.guilds {
		st.mu.Lock()
		if st.messageID != "" && p.channels[g] != "" {
			msgs = append(msgs, panelMsg{p.channels[g], st.messageID})
		}
		st.messageID = ""
		st.mu.Unlock()
	}
	p.mu.Unlock()

	for _, m := range msgs {
		if err := p.msgs.Delete(ctx, m.channelID, m.messageID); err != nil {
			p.log.Warn().Err(err).Str("channel", m.channelID).Msg("failed to delete panel on close")
		}
	}
}

func (p *Panel) update(ctx context.Context, guildID, channelID string, snap audio.Snapshot) error {
	p.mu.Lock()
	st := p.state(guildID)
	p.mu.Unlock()

	st.mu.Lock()
	defer st.mu.Unlock()

	if snap.Current == nil {
		if st.messageID == "" {
			return nil
		}
		id := st.messageID
		st.messageID = ""
		st.lastTrack = nil
		if err := p.msgs.Delete(ctx, channelID, id); err != nil {
			return fmt.Errorf("delete orphan panel in %s: %w", guildID, err)
		}
		return nil
	}

	embed := Render(snap)
	components := Components(snap.Paused)

	latest, err := p.msgs.LatestMessageID(ctx, channelID)
	if err != nil {
		return fmt.Errorf("read latest message in %s: %w", channelID, err)
	}
	if st.messageID != "" && latest == st.messageID {
		if err := p.msgs.EditEmbed(ctx, channelID, st.messageID, embed, components); err != nil {
			return fmt.Errorf("edit panel in %s: %w", channelID, err)
		}
		return nil
	}

	if st.messageID != "" {
		if err := p.msgs.Delete(ctx, channelID, st.messageID); err != nil {
			p.log.Debug().Err(err).Str("guild", guildID).Msg("old panel already gone")
		}
		st.messageID = ""
	}
	id, err := p.msgs.SendEmbed(ctx, channelID, embed, components)
	if err != nil {
		return fmt.Errorf("send panel in %s: %w", channelID, err)
	}
	st.messageID = id
	return nil
}

func (p *Panel) snapshot(guildID string) audio.Snapshot {
	if pl, ok := p.players.Player(guildID); ok {
		return pl.Snapshot()
	}
	return audio.Snapshot{}
}

// state returns the guild's state, creating it. Caller holds p.mu.
func (p *Panel) state(guildID string) *guildState {
	st, ok := p.guilds[guildID]
	if !ok {
		st = &guildState{}
		p.guilds[guildID] = st
	}
	return st
}

func sameTrack(a, b *audio.Track) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
