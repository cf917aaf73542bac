// Package normalize renders chat messages as the single text lines the
// language model reads.
package normalize

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/memoria/internal/budget"
	"github.com/keshon/memoria/internal/chat"
	"github.com/rs/zerolog/log"
)

// maxInlinedText stops inlining text files once their combined length passes it.
const maxInlinedText = 4000

var (
	channelMention = regexp.MustCompile(`<#(\d+)>`)
	messageLink    = regexp.MustCompile(`https://(?:(?:ptb|canary)\.)?discord(?:app)?\.com/channels/(\d+)/(\d+)/(\d+)`)
	bracketStrip   = strings.NewReplacer("[", "", "]", "")
)

type Downloader interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

// PromptSource recognizes generated images by their embedded prompt.
type PromptSource interface {
	Prompt(ctx context.Context, att *discordgo.MessageAttachment) (string, bool)
}

type Options struct {
	// GuildID and ChannelID locate the message; fetched history lacks a guild ID.
	GuildID   string
	ChannelID string
	// TrimQuote shortens the quoted parent to MaxQuote.
	TrimQuote   bool
	MaxQuote    int
	MaxTextFile int
}

type Normalizer struct {
	dir     chat.Directory
	files   Downloader
	prompts PromptSource
}

func New(dir chat.Directory, files Downloader, prompts PromptSource) *Normalizer {
	return &Normalizer{dir: dir, files: files, prompts: prompts}
}

// Normalize renders msg, with quote appended as a reply annotation when set.
func (n *Normalizer) Normalize(ctx context.Context, msg, quote *discordgo.Message, opt Options) string {
	return n.render(ctx, msg, quote, opt, true)
}

func (n *Normalizer) render(ctx context.Context, msg, quote *discordgo.Message, opt Options, withQuote bool) string {
	var b strings.Builder

	b.WriteString("[Username: " + sanitize(authorName(msg)) + "]")
	if nick := n.nick(msg, opt.GuildID); nick != "" {
		b.WriteString(" [Alias: " + sanitize(nick) + "]")
	}
	start := b.Len()

	if desc, ok := systemDescription(msg); ok {
		b.WriteString(" " + desc)
	} else if msg.Content != "" {
		b.WriteString(" [said:] " + msg.Content)
	}

	generated := false
	if len(msg.Attachments) == 1 && n.prompts != nil {
		if prompt, ok := n.prompts.Prompt(ctx, msg.Attachments[0]); ok {
			generated = true
			if msg.Author != nil && msg.Author.ID == n.dir.BotID() {
				fmt.Fprintf(&b, " [[ [Generated image filename: %s] [Generated image prompt:] %s ]]", msg.Attachments[0].Filename, prompt)
			} else {
				fmt.Fprintf(&b, " [[ [Image with prompt:] %s ]]", prompt)
			}
		}
	}
	if !generated {
		for _, att := range msg.Attachments {
			b.WriteString(" [Attachment: " + att.Filename + "]")
		}
	}

	for _, st := range msg.StickerItems {
		b.WriteString(" [Sticker: " + st.Name + "]")
	}
	for _, em := range msg.Embeds {
		if em.Title != "" {
			b.WriteString(" [Embed Title: " + sanitize(em.Title) + "]")
		}
		if em.Description != "" {
			b.WriteString(" [Embed Content: " + sanitize(em.Description) + "]")
		}
	}

	n.inlineTextFiles(ctx, &b, msg, opt.MaxTextFile)

	if quote != nil && withQuote {
		q := n.render(ctx, quote, nil, opt, false)
		q = strings.ReplaceAll(q, "\n", " ")
		if opt.TrimQuote {
			q = budget.Truncate(q, opt.MaxQuote)
		}
		b.WriteString("\n[[[ Replying to: " + q + " ]]]")
	}

	if b.Len() == start {
		b.WriteString(" [Message empty or not supported]")
	}

	out := n.rewriteMentions(b.String(), msg, opt.GuildID)
	out = n.rewriteLinks(out, opt)
	return strings.TrimSpace(out)
}

func (n *Normalizer) inlineTextFiles(ctx context.Context, b *strings.Builder, msg *discordgo.Message, limit int) {
	if n.files == nil {
		return
	}
	total := 0
	for _, att := range msg.Attachments {
		if !strings.HasPrefix(att.ContentType, "text") {
			continue
		}
		data, err := n.files.Download(ctx, att.URL)
		if err != nil || !utf8.Valid(data) {
			log.Warn().Err(err).Str("component", "normalize").Str("file", att.Filename).Msg("skipping text attachment")
			continue
		}
		content := budget.HeadTail(string(data), limit)
		total += len(content)
		fmt.Fprintf(b, "\n[[[ Content of %s: %s ]]]", att.Filename, content)
		if total > maxInlinedText {
			break
		}
	}
}

func (n *Normalizer) nick(msg *discordgo.Message, guildID string) string {
	if msg.Member != nil && msg.Member.Nick != "" {
		return msg.Member.Nick
	}
	if msg.Author == nil || guildID == "" {
		return ""
	}
	return n.dir.MemberNick(guildID, msg.Author.ID)
}

func (n *Normalizer) rewriteMentions(s string, msg *discordgo.Message, guildID string) string {
	for _, u := range msg.Mentions {
		name := "@" + u.Username
		s = strings.ReplaceAll(s, "<@"+u.ID+">", name)
		s = strings.ReplaceAll(s, "<@!"+u.ID+">", name)
	}
	for _, id := range msg.MentionRoles {
		if name, ok := n.dir.RoleName(guildID, id); ok {
			s = strings.ReplaceAll(s, "<@&"+id+">", "@"+name)
		}
	}
	return channelMention.ReplaceAllStringFunc(s, func(m string) string {
		id := channelMention.FindStringSubmatch(m)[1]
		if name, ok := n.dir.ChannelName(id); ok {
			return "#" + name
		}
		return m
	})
}

func (n *Normalizer) rewriteLinks(s string, opt Options) string {
	return messageLink.ReplaceAllStringFunc(s, func(m string) string {
		parts := messageLink.FindStringSubmatch(m)
		guildID, channelID := parts[1], parts[2]
		switch {
		case guildID != opt.GuildID:
			return "[Link to message outside server]"
		case channelID != opt.ChannelID:
			if name, ok := n.dir.ChannelName(channelID); ok {
				return "[Link to message in #" + name + "]"
			}
			return "[Link to message]"
		default:
			return "[Link to message]"
		}
	})
}

func authorName(msg *discordgo.Message) string {
	if msg.Author == nil {
		return "Unknown"
	}
	return msg.Author.Username
}

func sanitize(s string) string {
	return bracketStrip.Replace(s)
}

// systemDescription describes platform generated messages. Ordinary
// messages, replies and command invocations report false.
func systemDescription(msg *discordgo.Message) (string, bool) {
	switch msg.Type {
	case discordgo.MessageTypeDefault, discordgo.MessageTypeReply,
		discordgo.MessageTypeChatInputCommand, discordgo.MessageTypeContextMenuCommand:
		return "", false
	case discordgo.MessageTypeGuildMemberJoin:
		return "[Joined the server]", true
	case discordgo.MessageTypeChannelPinnedMessage:
		return "[Pinned a message]", true
	case discordgo.MessageTypeUserPremiumGuildSubscription,
		discordgo.MessageTypeUserPremiumGuildSubscriptionTierOne,
		discordgo.MessageTypeUserPremiumGuildSubscriptionTierTwo,
		discordgo.MessageTypeUserPremiumGuildSubscriptionTierThree:
		return "[Boosted the server]", true
	case discordgo.MessageTypeThreadCreated:
		return "[Started a thread: " + msg.Content + "]", true
	default:
		return "[System message]", true
	}
}
