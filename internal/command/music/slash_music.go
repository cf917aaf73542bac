package music

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/memoria/internal/audio"
	"github.com/keshon/memoria/internal/bot"
	"github.com/keshon/memoria/internal/command"
	"github.com/keshon/memoria/internal/nowplaying"
	"github.com/rs/zerolog/log"
)

type MusicCommand struct {
	Players *audio.Manager
	Panel   *nowplaying.Panel
}

func (c *MusicCommand) Name() string             { return "music" }
func (c *MusicCommand) Description() string      { return "Control music playback" }
func (c *MusicCommand) Group() string            { return "music" }
func (c *MusicCommand) Category() string         { return "🎵 Music" }
func (c *MusicCommand) UserPermissions() []int64 { return []int64{} }

func (c *MusicCommand) SlashDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        c.Name(),
		Description: c.Description(),
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "play",
				Description: "Queue a track",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "input",
						Description: "Link or title",
						Required:    true,
					},
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "title",
						Description: "Display title when the input is a link",
					},
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "length",
						Description: "Track length as mm:ss or h:mm:ss. Leave empty for streams",
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "next",
				Description: "Skip to the next track",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "prev",
				Description: "Play the previous track again",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "pause",
				Description: "Pause playback",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "resume",
				Description: "Resume playback",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "stop",
				Description: "Stop playback and clear queue",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "queue",
				Description: "Show the queue",
			},
		},
	}
}

func (c *MusicCommand) Run(ctx interface{}) error {
	context, ok := ctx.(*command.SlashInteractionContext)
	if !ok {
		return nil
	}
	s := context.Session
	e := context.Event

	sub, opts := command.Subcommand(e.ApplicationCommandData())
	if sub == "" {
		return bot.RespondEmbedEphemeral(s, e, &discordgo.MessageEmbed{
			Description: "Missing subcommand.",
		})
	}

	if sub == "queue" {
		var snap audio.Snapshot
		if p, ok := c.Players.Player(e.GuildID); ok {
			snap = p.Snapshot()
		}
		return bot.RespondEmbed(s, e, nowplaying.QueueList(snap))
	}

	var embed *discordgo.MessageEmbed
	if sub == "play" {
		track, err := parseTrack(
			command.StringOption(opts, "input"),
			command.StringOption(opts, "title"),
			command.StringOption(opts, "length"),
		)
		if err != nil {
			return bot.RespondEmbedEphemeral(s, e, &discordgo.MessageEmbed{
				Title:       "🎵 Error",
				Description: err.Error(),
			})
		}
		track.Requester = requester(e)
		status := c.Players.GetOrCreatePlayer(e.GuildID).Enqueue(track)
		embed = statusEmbed(status, track)
	} else {
		player, ok := c.Players.Player(e.GuildID)
		if !ok {
			return bot.RespondEmbedEphemeral(s, e, &discordgo.MessageEmbed{Description: "Nothing is playing."})
		}
		var err error
		embed, err = control(player, sub)
		if err != nil {
			return bot.RespondEmbedEphemeral(s, e, &discordgo.MessageEmbed{
				Title:       "🎵 Error",
				Description: err.Error(),
			})
		}
	}

	if err := bot.RespondEmbed(s, e, embed); err != nil {
		return err
	}
	if c.Panel != nil {
		if err := c.Panel.Refresh(context.Ctx, e.GuildID); err != nil {
			log.Warn().Err(err).Str("component", "nowplaying").Str("guild", e.GuildID).Msg("failed to refresh panel")
		}
	}
	return nil
}

// control runs a playback subcommand other than play and queue.
func control(p *audio.Player, sub string) (*discordgo.MessageEmbed, error) {
	var (
		desc string
		err  error
	)
	switch sub {
	case "next":
		err = p.Skip()
		desc = "⏩ Skipped"
		if snap := p.Snapshot(); err == nil && snap.Current == nil {
			desc = "⏩ Skipped. The queue is empty."
		}
	case "prev":
		err = p.Previous()
		desc = "⏪ Playing the previous track"
	case "pause":
		err = p.Pause()
		desc = audio.StatusPaused.StringEmoji() + " " + string(audio.StatusPaused)
	case "resume":
		err = p.Resume()
		desc = audio.StatusResumed.StringEmoji() + " " + string(audio.StatusResumed)
	case "stop":
		err = p.Stop()
		desc = audio.StatusStopped.StringEmoji() + " Playback stopped. Queue cleared."
	default:
		return nil, fmt.Errorf("unknown subcommand: %s", sub)
	}
	if err != nil {
		return nil, err
	}
	return &discordgo.MessageEmbed{Description: desc, Color: bot.EmbedColor}, nil
}

func statusEmbed(status audio.PlayerStatus, t audio.Track) *discordgo.MessageEmbed {
	var desc string
	switch {
	case t.URL != "" && t.Title != t.URL:
		desc = fmt.Sprintf("🎶 [%s](%s)", t.Title, t.URL)
	case t.Title != "":
		desc = "🎶 " + t.Title
	default:
		desc = "🎶 Unknown track"
	}
	title := status.StringEmoji() + " Now Playing"
	if status == audio.StatusAdded {
		title = status.StringEmoji() + " " + string(status)
		desc += "\nAdded to queue"
	}
	return &discordgo.MessageEmbed{Title: title, Description: desc, Color: bot.EmbedColor}
}

var errEmptyInput = errors.New("input is required")

// parseTrack builds a track from the play options. A track without a length
// is treated as a stream.
func parseTrack(input, title, length string) (audio.Track, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return audio.Track{}, errEmptyInput
	}
	t := audio.Track{Title: strings.TrimSpace(title)}
	if u, err := url.Parse(input); err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
		t.URL = input
	}
	if t.Title == "" {
		t.Title = input
	}

	length = strings.TrimSpace(length)
	if length == "" {
		t.Stream = true
		return t, nil
	}
	d, err := parseLength(length)
	if err != nil {
		return audio.Track{}, err
	}
	t.Length = d
	return t, nil
}

// parseLength reads [h:]mm:ss or a plain number of seconds.
func parseLength(s string) (time.Duration, error) {
	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("invalid length %q, expected mm:ss or h:mm:ss", s)
	}
	total := 0
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || (i > 0 && n >= 60) {
			return 0, fmt.Errorf("invalid length %q, expected mm:ss or h:mm:ss", s)
		}
		total = total*60 + n
	}
	if total == 0 {
		return 0, fmt.Errorf("length must be positive")
	}
	return time.Duration(total) * time.Second, nil
}

func requester(e *discordgo.InteractionCreate) string {
	if e.Member != nil && e.Member.Nick != "" {
		return e.Member.Nick
	}
	u := command.InteractionUser(e)
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}
