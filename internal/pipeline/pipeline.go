// Package pipeline answers a mention with the recall, respond and memorize
// stages.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/memoria/internal/budget"
	"github.com/keshon/memoria/internal/chat"
	"github.com/keshon/memoria/internal/config"
	"github.com/keshon/memoria/internal/history"
	"github.com/keshon/memoria/internal/llm"
	"github.com/keshon/memoria/internal/memory"
	"github.com/keshon/memoria/internal/tools"
	"github.com/keshon/memoria/pkg/util"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const typingInterval = 8 * time.Second

type SettingsSource interface {
	Settings(guildID string) (config.GuildSettings, error)
}

type Deps struct {
	Platform  chat.Platform
	Directory chat.Directory
	Settings  SettingsSource
	Assembler *history.Assembler
	Memory    *memory.Store
	LLM       *llm.Provider
	Tools     *tools.Dispatcher
	Counter   budget.Counter
	ImageCost int
}

type Pipeline struct {
	platform  chat.Platform
	dir       chat.Directory
	settings  SettingsSource
	assembler *history.Assembler
	mem       *memory.Store
	llm       *llm.Provider
	tools     *tools.Dispatcher
	counter   budget.Counter
	imageCost int

	now            func() time.Time
	typingInterval time.Duration
	embedWait      time.Duration
	log            zerolog.Logger
}

func New(d Deps) *Pipeline {
	if d.Counter == nil {
		d.Counter = budget.HeuristicCounter{}
	}
	if d.ImageCost <= 0 {
		d.ImageCost = budget.DefaultImageCost
	}
	return &Pipeline{
		platform:       d.Platform,
		dir:            d.Directory,
		settings:       d.Settings,
		assembler:      d.Assembler,
		mem:            d.Memory,
		llm:            d.LLM,
		tools:          d.Tools,
		counter:        d.Counter,
		imageCost:      d.ImageCost,
		now:            time.Now,
		typingInterval: typingInterval,
		embedWait:      time.Second,
		log:            log.With().Str("component", "pipeline").Logger(),
	}
}

// Run answers trigger. Stage failures after assembly are logged and do not
// affect the sibling stage; only setup failures are returned.
func (p *Pipeline) Run(ctx context.Context, trigger *discordgo.Message) (Result, error) {
	var res Result
	guildID := trigger.GuildID

	g, err := p.settings.Settings(guildID)
	if err != nil {
		return res, fmt.Errorf("load settings: %w", err)
	}
	client, err := p.llm.Get()
	if err != nil {
		return res, err
	}

	typingCtx, stopTyping := context.WithCancel(ctx)
	defer stopTyping()
	go p.keepTyping(typingCtx, trigger.ChannelID)

	msgs, stats := p.assembler.Assemble(ctx, guildID, trigger, history.Settings{
		BackreadMessages: g.BackreadMessages,
		BackreadTokens:   g.BackreadTokens,
		ImagesPerMessage: g.ImagesPerMessage,
		MaxImages:        g.MaxImages,
		ImageResolution:  g.ImageResolution,
		MaxQuote:         g.MaxQuote,
		MaxTextFile:      g.MaxTextFile,
		ImageCost:        p.imageCost,
	})
	res.Messages, res.Images, res.BackreadTokens = stats.Messages, stats.Images, stats.Tokens

	names := p.mem.Names(guildID)
	recalled, err := p.recall(ctx, client, guildID, &g, msgs, names, &res)
	if err != nil {
		p.log.Error().Err(err).Str("stage", "recaller").Str("guild", guildID).Msg("stage failed")
		recalled = map[string]string{}
	}

	stages := []string{"responder", "memorizer"}
	errs := util.Gather(ctx,
		func(ctx context.Context) error { return p.respond(ctx, client, trigger, &g, msgs, recalled, &res) },
		func(ctx context.Context) error {
			return p.memorize(ctx, client, trigger, &g, msgs, names, recalled, &res)
		},
	)
	for i, err := range errs {
		if err != nil {
			p.log.Error().Err(err).Str("stage", stages[i]).Str("guild", guildID).Msg("stage failed")
		}
	}

	p.log.Info().Str("guild", guildID).Str("channel", trigger.ChannelID).Object("result", res).Msg("response finished")
	return res, nil
}

// keepTyping refreshes the typing indicator until ctx ends.
func (p *Pipeline) keepTyping(ctx context.Context, channelID string) {
	ticker := time.NewTicker(p.typingInterval)
	defer ticker.Stop()
	for {
		if err := p.platform.Typing(ctx, channelID); err != nil && ctx.Err() == nil {
			p.log.Debug().Err(err).Msg("typing indicator failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
