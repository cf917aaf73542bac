package audioplayer

import (
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/memoria/internal/audio"
	"github.com/keshon/memoria/internal/bot"
	"github.com/keshon/memoria/internal/command"
	"github.com/keshon/memoria/internal/nowplaying"
	"github.com/rs/zerolog/log"
)

// AudioPlayerCommand configures the now playing panel and answers its
// buttons.
type AudioPlayerCommand struct {
	Panel   *nowplaying.Panel
	Players *audio.Manager
}

func (c *AudioPlayerCommand) Name() string        { return "audioplayer" }
func (c *AudioPlayerCommand) Description() string { return "Now playing panel settings" }
func (c *AudioPlayerCommand) Group() string       { return "music" }
func (c *AudioPlayerCommand) Category() string    { return "🎵 Music" }

// UserPermissions is empty so that anyone may press the panel buttons; the
// channel subcommand checks Manage Server itself.
func (c *AudioPlayerCommand) UserPermissions() []int64 { return []int64{} }

func (c *AudioPlayerCommand) SlashDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        c.Name(),
		Description: c.Description(),
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "channel",
				Description: "Set the panel channel. Passing no channel disables the panel in this server",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:         discordgo.ApplicationCommandOptionChannel,
						Name:         "channel",
						Description:  "Text channel for the panel",
						ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText},
					},
				},
			},
		},
	}
}

func (c *AudioPlayerCommand) Run(ctx interface{}) error {
	context, ok := ctx.(*command.SlashInteractionContext)
	if !ok {
		return nil
	}
	s := context.Session
	e := context.Event

	sub, opts := command.Subcommand(e.ApplicationCommandData())
	if sub != "channel" {
		return bot.RespondTextEphemeral(s, e, fmt.Sprintf("Unknown subcommand: %s", sub))
	}
	if !command.HasPermission(e, discordgo.PermissionManageServer) {
		return bot.RespondTextEphemeral(s, e, "You need the `Manage Server` permission to move the player.")
	}

	channelID := command.StringOption(opts, "channel")
	prev, err := c.Panel.SetChannel(context.Ctx, e.GuildID, channelID)
	if err != nil {
		log.Error().Err(err).Str("component", "command").Str("guild", e.GuildID).Msg("failed to set panel channel")
		return bot.RespondEmbedEphemeral(s, e, bot.ErrorEmbed("Failed to save the player channel."))
	}
	return bot.RespondText(s, e, channelReply(prev, channelID))
}

func channelReply(prev, channelID string) string {
	switch {
	case channelID != "":
		return fmt.Sprintf("The player will appear in <#%s> while audio is playing.", channelID)
	case prev == "":
		return "AudioPlayer is not set to any channel. The player will not appear in this server."
	default:
		return "AudioPlayer channel cleared. The player will not appear in this server."
	}
}

// Component handles the panel buttons.
func (c *AudioPlayerCommand) Component(ctx *command.ComponentInteractionContext) error {
	s := ctx.Session
	e := ctx.Event
	customID := e.MessageComponentData().CustomID

	player, _ := c.Players.Player(e.GuildID)
	if customID == nowplaying.ButtonQueue {
		var snap audio.Snapshot
		if player != nil {
			snap = player.Snapshot()
		}
		return bot.RespondEmbedEphemeral(s, e, nowplaying.QueueList(snap))
	}

	res, err := press(player, customID)
	if err != nil {
		return bot.RespondEmbedEphemeral(s, e, &discordgo.MessageEmbed{Description: buttonError(err)})
	}

	if res.ephemeral {
		err = bot.RespondEmbedEphemeral(s, e, &discordgo.MessageEmbed{Description: res.text, Color: bot.EmbedColor})
	} else {
		err = s.InteractionRespond(e.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Content:         fmt.Sprintf("-# <@%s> pressed a button", command.InteractionUser(e).ID),
				Embeds:          []*discordgo.MessageEmbed{{Description: res.text, Color: bot.EmbedColor}},
				AllowedMentions: &discordgo.MessageAllowedMentions{},
			},
		})
	}
	if err != nil {
		return err
	}

	if rerr := c.Panel.Refresh(ctx.Ctx, e.GuildID); rerr != nil {
		log.Warn().Err(rerr).Str("component", "nowplaying").Str("guild", e.GuildID).Msg("failed to refresh panel after button")
	}
	return nil
}

var errUnknownButton = errors.New("unknown button")

type buttonResult struct {
	text      string
	ephemeral bool
}

// press applies a panel button to the player.
func press(p *audio.Player, customID string) (buttonResult, error) {
	if p == nil {
		return buttonResult{}, audio.ErrNoTrackPlaying
	}
	switch customID {
	case nowplaying.ButtonPrevious:
		if err := p.Previous(); err != nil {
			return buttonResult{}, err
		}
		return buttonResult{text: "⏪ Playing the previous track"}, nil
	case nowplaying.ButtonPause:
		status, err := p.TogglePause()
		if err != nil {
			return buttonResult{}, err
		}
		return buttonResult{text: status.StringEmoji() + " " + string(status), ephemeral: true}, nil
	case nowplaying.ButtonSkip:
		if err := p.Skip(); err != nil {
			return buttonResult{}, err
		}
		return buttonResult{text: "⏩ Skipped"}, nil
	case nowplaying.ButtonStop:
		if err := p.Stop(); err != nil {
			return buttonResult{}, err
		}
		return buttonResult{text: audio.StatusStopped.StringEmoji() + " Playback stopped. Queue cleared."}, nil
	}
	return buttonResult{}, errUnknownButton
}

func buttonError(err error) string {
	switch {
	case errors.Is(err, audio.ErrNoTrackPlaying):
		return "Nothing is playing."
	case errors.Is(err, audio.ErrNoHistory):
		return "There is no previous track."
	case errors.Is(err, audio.ErrNoTracksInQueue):
		return "The queue is empty."
	default:
		return "Oops! Try again."
	}
}
