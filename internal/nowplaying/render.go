package nowplaying

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/memoria/internal/audio"
	"github.com/keshon/memoria/internal/bot"
)

const (
	playerWidth   = 19
	lineSymbol    = "⎯"
	markerSymbol  = "💠"
	unknownLength = 180 * time.Second
)

// Button custom IDs. The prefix routes presses to the audioplayer command.
const (
	ButtonQueue    = "audioplayer:queue"
	ButtonPrevious = "audioplayer:previous"
	ButtonPause    = "audioplayer:pause"
	ButtonSkip     = "audioplayer:skip"
	ButtonStop     = "audioplayer:stop"
)

// Render builds the panel embed for a snapshot with a current track.
func Render(s audio.Snapshot) *discordgo.MessageEmbed {
	cur := s.Current
	icon := audio.StatusPlaying.StringEmoji()
	if s.Paused {
		icon = audio.StatusPaused.StringEmoji()
	}

	embed := &discordgo.MessageEmbed{
		Title: icon + " " + cur.Title,
		URL:   cur.URL,
		Color: bot.EmbedColor,
	}

	var desc strings.Builder
	if cur.Requester != "" {
		fmt.Fprintf(&desc, "\n-# Requested by %s\n\n", cur.Requester)
	}

	pos := seconds(s.Position)
	length := 0
	if !cur.Stream && cur.Length > 0 {
		length = seconds(cur.Length)
		ratio := s.Position.Seconds() / cur.Length.Seconds()
		filled := int(math.RoundToEven(playerWidth * ratio))
		line := strings.Repeat(lineSymbol, max(filled, 0)) + markerSymbol +
			strings.Repeat(lineSymbol, max(playerWidth-1-filled, 0))
		fmt.Fprintf(&desc, "`%s%s%s`", clock(pos), line, clock(length))
	} else {
		line := strings.Repeat(lineSymbol, playerWidth/2) + markerSymbol + strings.Repeat(lineSymbol, playerWidth/2)
		fmt.Fprintf(&desc, "`%s%sunknown`", clock(pos), line)
	}

	if len(s.Queue) > 0 {
		var total time.Duration
		for _, t := range s.Queue {
			if t.Length > 0 {
				total += t.Length
			} else {
				total += unknownLength
			}
		}
		remaining := seconds(total)
		if length > 0 {
			remaining += length - pos
		}
		fmt.Fprintf(&desc, "\n\n%d more in queue (%s)", len(s.Queue), longClock(remaining))
	} else {
		desc.WriteString("\n\nNo more in queue")
	}
	embed.Description = desc.String()

	if cur.Thumbnail != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: cur.Thumbnail}
	}
	return embed
}

// Components returns the control row. The pause button shows the action it
// would take.
func Components(paused bool) []discordgo.MessageComponent {
	pause := "⏸️"
	if paused {
		pause = "▶️"
	}
	button := func(id, emoji string) discordgo.MessageComponent {
		return discordgo.Button{
			CustomID: id,
			Style:    discordgo.SecondaryButton,
			Emoji:    &discordgo.ComponentEmoji{Name: emoji},
		}
	}
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			button(ButtonQueue, "🔽"),
			button(ButtonPrevious, "⏪"),
			button(ButtonPause, pause),
			button(ButtonSkip, "⏩"),
			button(ButtonStop, "⏹️"),
		}},
	}
}

// QueueList renders the queue for the ephemeral queue button reply.
func QueueList(s audio.Snapshot) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{Title: "Queue", Color: bot.EmbedColor}
	if s.Current == nil && len(s.Queue) == 0 {
		embed.Description = "Nothing is playing."
		return embed
	}

	var b strings.Builder
	if s.Current != nil {
		fmt.Fprintf(&b, "**Now:** %s\n", trackLine(*s.Current))
	}
	const shown = 10
	for i, t := range s.Queue {
		if i == shown {
			fmt.Fprintf(&b, "-# ...and %d more\n", len(s.Queue)-shown)
			break
		}
		fmt.Fprintf(&b, "`%d.` %s\n", i+1, trackLine(t))
	}
	embed.Description = strings.TrimSpace(b.String())
	return embed
}

func trackLine(t audio.Track) string {
	title := t.Title
	if t.URL != "" {
		title = fmt.Sprintf("[%s](%s)", t.Title, t.URL)
	}
	if t.Stream || t.Length <= 0 {
		return title
	}
	return fmt.Sprintf("%s `%s`", title, longClock(seconds(t.Length)))
}

func seconds(d time.Duration) int {
	return int(math.RoundToEven(d.Seconds()))
}

// clock formats mm:ss; minutes are not wrapped into hours.
func clock(sec int) string {
	return fmt.Sprintf("%02d:%02d", sec/60, sec%60)
}

// longClock formats [h:]mm:ss.
func longClock(sec int) string {
	if h := sec / 3600; h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, sec/60%60, sec%60)
	}
	return fmt.Sprintf("%02d:%02d", sec/60%60, sec%60)
}
