// cmd/discord/main.go
package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/keshon/memoria/internal/audio"
	"github.com/keshon/memoria/internal/budget"
	"github.com/keshon/memoria/internal/chat"
	"github.com/keshon/memoria/internal/command"
	"github.com/keshon/memoria/internal/command/audioplayer"
	"github.com/keshon/memoria/internal/command/core"
	"github.com/keshon/memoria/internal/command/credentials"
	"github.com/keshon/memoria/internal/command/gptmemory"
	memorycmd "github.com/keshon/memoria/internal/command/memory"
	"github.com/keshon/memoria/internal/command/music"
	"github.com/keshon/memoria/internal/config"
	"github.com/keshon/memoria/internal/discord"
	"github.com/keshon/memoria/internal/history"
	"github.com/keshon/memoria/internal/images"
	"github.com/keshon/memoria/internal/llm"
	"github.com/keshon/memoria/internal/memory"
	"github.com/keshon/memoria/internal/middleware"
	"github.com/keshon/memoria/internal/normalize"
	"github.com/keshon/memoria/internal/nowplaying"
	"github.com/keshon/memoria/internal/pipeline"
	"github.com/keshon/memoria/internal/storage"
	"github.com/keshon/memoria/internal/tools"
	"github.com/keshon/memoria/pkg/cmd"
	"github.com/keshon/memoria/pkg/jobmgr"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// downloadCacheTTL keeps attachments around long enough for one answer.
const downloadCacheTTL = 10 * time.Minute

func main() {
	cfg, err := config.New()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read configuration")
	}
	setupLogger(cfg)
	log.Info().Msgf("starting %s bot...", core.AppName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx, cancel, cfg); err != nil {
		log.Fatal().Err(err).Msg("bot stopped")
	}
	log.Info().Msg("discord bot exited cleanly")
}

func run(ctx context.Context, cancel context.CancelFunc, cfg *config.Config) error {
	store, err := storage.New(cfg.StoragePath)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close storage")
		}
	}()
	if err := store.SeedCredentials(cfg.Credentials()); err != nil {
		return err
	}

	mem := memory.NewStore(store)
	if err := mem.Load(); err != nil {
		return err
	}

	dg, err := discord.NewSession(cfg.DiscordToken)
	if err != nil {
		return err
	}
	platform := chat.NewDiscord(dg)

	httpClient := &http.Client{Timeout: 25 * time.Second}
	counter := budget.NewCounter(budget.DefaultEncoding)
	downloads := images.NewCachedDownloader(platform, downloadCacheTTL)
	norm := normalize.New(platform, downloads, images.NewPromptReader(downloads))
	assembler := history.NewAssembler(platform, platform, norm, images.NewExtractor(downloads), counter)

	registry := tools.NewRegistry(tools.Deps{
		Credentials:   store,
		HTTPClient:    httpClient,
		TagGroupsPath: cfg.TagGroupsPath,
	})
	registry.Refresh(store)

	provider := llm.NewProvider(store, cfg.OpenAIBaseURL)
	if !provider.Reload() {
		log.Warn().Msg("no OpenAI API key stored, mentions are ignored until one is set")
	}

	pipe := pipeline.New(pipeline.Deps{
		Platform:  platform,
		Directory: platform,
		Settings:  store,
		Assembler: assembler,
		Memory:    mem,
		LLM:       provider,
		Tools:     tools.NewDispatcher(registry),
		Counter:   counter,
		ImageCost: cfg.ImageTokenCost,
	})

	jm := jobmgr.NewManager(ctx)
	players := audio.NewManager()
	panel := nowplaying.New(platform, store, players)
	if err := panel.Load(); err != nil {
		return err
	}
	if err := panel.Start(jm); err != nil {
		return err
	}

	registerCommands(cfg, store, mem, registry, httpClient, players, panel, jm)

	bot := discord.NewBot(dg, discord.Deps{
		Config:   cfg,
		Storage:  store,
		Memory:   mem,
		Pipeline: pipe,
		Tools:    registry,
		LLM:      provider,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- bot.Run(ctx)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case s := <-sig:
		log.Info().Str("signal", s.String()).Msg("shutting down")
		cancel()
		runErr = <-errCh
	case runErr = <-errCh:
		cancel()
	}

	closeCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	panel.Close(closeCtx)
	jm.Wait()
	return runErr
}

func registerCommands(cfg *config.Config, store *storage.Storage, mem *memory.Store, registry *tools.Registry, httpClient *http.Client, players *audio.Manager, panel *nowplaying.Panel, jm *jobmgr.Manager) {
	guarded := []cmd.Middleware{
		middleware.WithGuildOnly(),
		middleware.WithUserPermissionCheck(cfg.DeveloperID),
		middleware.WithCommandLogger(),
	}

	command.RegisterCommand(&core.HelpCommand{}, guarded...)
	command.RegisterCommand(&memorycmd.MemoryCommand{Memory: mem}, guarded...)
	command.RegisterCommand(&gptmemory.GptMemoryCommand{
		Settings:    store,
		Tools:       registry,
		Credentials: store,
		HTTPClient:  httpClient,
	}, guarded...)
	command.RegisterCommand(&music.MusicCommand{Players: players, Panel: panel}, guarded...)
	command.RegisterCommand(&audioplayer.AudioPlayerCommand{Panel: panel, Players: players}, guarded...)
	command.RegisterCommand(&core.MaintenanceCommand{
		Memory:  mem,
		Players: players,
		Panel:   panel,
		Jobs:    jm,
	}, guarded...)
	command.RegisterCommand(&credentials.CredentialsCommand{Store: store},
		middleware.WithDeveloperOnly(cfg.DeveloperID),
		middleware.WithCommandLogger(),
	)
}

// setupLogger writes human-readable logs to stderr and, when LOG_FILE is set,
// JSON lines to a rotating file.
func setupLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var out io.Writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.DateTime}
	if cfg.LogFile != "" {
		out = zerolog.MultiLevelWriter(out, &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.LogMaxSizeMB,
			MaxBackups: cfg.LogMaxBackups,
		})
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
}
