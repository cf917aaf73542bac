// Package discord connects the gateway session to the command registry and
// the answering pipeline.
package discord

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/memoria/internal/bot"
	"github.com/keshon/memoria/internal/config"
	"github.com/keshon/memoria/internal/llm"
	"github.com/keshon/memoria/internal/memory"
	"github.com/keshon/memoria/internal/pipeline"
	"github.com/keshon/memoria/internal/storage"
	"github.com/keshon/memoria/internal/tools"
	"github.com/keshon/memoria/pkg/cmd"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Deps are the services the gateway handlers hand events to.
type Deps struct {
	Config   *config.Config
	Storage  *storage.Storage
	Memory   *memory.Store
	Pipeline *pipeline.Pipeline
	Tools    *tools.Registry
	LLM      *llm.Provider
	// Registry defaults to cmd.DefaultRegistry.
	Registry *cmd.Registry
}

// Bot is a Discord bot
type Bot struct {
	dg       *discordgo.Session
	cfg      *config.Config
	storage  *storage.Storage
	memory   *memory.Store
	pipeline *pipeline.Pipeline
	tools    *tools.Registry
	llm      *llm.Provider
	registry *cmd.Registry
	hashDir  string

	ctx context.Context
	wg  sync.WaitGroup

	// usernames maps user IDs to the last username seen, to detect renames.
	usersMu   sync.Mutex
	usernames map[string]string

	log zerolog.Logger
}

// NewSession creates a session with the intents the bot relies on.
func NewSession(token string) (*discordgo.Session, error) {
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent
	dg.State.TrackMembers = true
	return dg, nil
}

func NewBot(dg *discordgo.Session, d Deps) *Bot {
	if d.Registry == nil {
		d.Registry = cmd.DefaultRegistry
	}
	return &Bot{
		dg:        dg,
		cfg:       d.Config,
		storage:   d.Storage,
		memory:    d.Memory,
		pipeline:  d.Pipeline,
		tools:     d.Tools,
		llm:       d.LLM,
		registry:  d.Registry,
		hashDir:   filepath.Join(filepath.Dir(d.Config.StoragePath), "commands"),
		ctx:       context.Background(),
		usernames: make(map[string]string),
		log:       log.With().Str("component", "discord").Logger(),
	}
}

// Run opens the gateway and serves events until ctx is cancelled. Answers
// still being generated are waited for before the session closes.
func (b *Bot) Run(ctx context.Context) error {
	b.ctx = ctx

	b.dg.AddHandler(b.onReady)
	b.dg.AddHandler(b.onGuildCreate)
	b.dg.AddHandler(b.onGuildMemberAdd)
	b.dg.AddHandler(b.onGuildMemberUpdate)
	b.dg.AddHandler(b.onUserUpdate)
	b.dg.AddHandler(b.onMessageCreate)
	b.dg.AddHandler(b.onInteractionCreate)

	if err := b.dg.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}
	defer b.dg.Close()

	go b.consumeSystemEvents(ctx)

	<-ctx.Done()
	b.log.Info().Msg("shutdown signal received, waiting for pending answers")
	b.wg.Wait()
	return nil
}

func (b *Bot) consumeSystemEvents(ctx context.Context) {
	events := bot.SystemEvents()
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-events:
			switch evt.Type {
			case bot.SystemEventRefreshCommands:
				go b.handleRefreshCommands(evt)
			case bot.SystemEventCredentialsChanged:
				b.reloadCredentials(evt.Target)
			}
		}
	}
}

// reloadCredentials recomputes tool availability and rebuilds the OpenAI
// client after a shared secret changed.
func (b *Bot) reloadCredentials(service string) {
	b.tools.Refresh(b.storage)
	ok := b.llm.Reload()
	b.log.Info().Str("service", service).Bool("openai", ok).Msg("credentials reloaded")
}

func (b *Bot) isGuildBlacklisted(guildID string) bool {
	return slices.Contains(b.cfg.DiscordGuildBlacklist, guildID)
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.log.Info().Str("user", r.User.Username).Int("guilds", len(r.Guilds)).Msg("connected to gateway")

	for _, g := range r.Guilds {
		if b.isGuildBlacklisted(g.ID) {
			b.leaveGuild(s, g.ID)
			continue
		}
		if !b.cfg.InitSlashCommands {
			continue
		}
		if err := b.registerCommands(g.ID); err != nil {
			b.log.Error().Err(err).Str("guild", g.ID).Msg("failed to register slash commands")
		}
	}
	if !b.cfg.InitSlashCommands {
		b.log.Info().Msg("slash command registration skipped")
	}
}

// onGuildCreate covers guilds joined after startup and fills the username
// cache from the initial member list.
func (b *Bot) onGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	if b.isGuildBlacklisted(g.ID) {
		b.leaveGuild(s, g.ID)
		return
	}
	b.usersMu.Lock()
	for _, m := range g.Members {
		if m.User != nil && !m.User.Bot {
			b.usernames[m.User.ID] = m.User.Username
		}
	}
	b.usersMu.Unlock()
}

func (b *Bot) leaveGuild(s *discordgo.Session, guildID string) {
	b.log.Info().Str("guild", guildID).Msg("leaving blacklisted guild")
	if err := s.GuildLeave(guildID); err != nil {
		b.log.Error().Err(err).Str("guild", guildID).Msg("failed to leave guild")
	}
}

// onMessageCreate answers mentions. Generation runs off the gateway goroutine.
func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == s.State.User.ID {
		return
	}
	if !b.pipeline.IsTrigger(m.Message) {
		return
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ctx := context.WithoutCancel(b.ctx)
		msg := b.pipeline.WaitForEmbeds(ctx, m.Message)
		res, err := b.pipeline.Run(ctx, msg)
		if err != nil {
			b.log.Error().Err(err).Str("guild", m.GuildID).Str("channel", m.ChannelID).Msg("failed to answer")
			return
		}
		b.log.Info().Str("guild", m.GuildID).Object("result", res).Msg("answered")
	}()
}
