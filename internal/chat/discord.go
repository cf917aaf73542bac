package chat

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/bwmarrin/discordgo"
)

// maxDownload caps attachment and image downloads.
const maxDownload = 25 << 20

// Discord implements Platform and Directory over a discordgo session.
type Discord struct {
	s *discordgo.Session
}

func NewDiscord(s *discordgo.Session) *Discord {
	return &Discord{s: s}
}

func (d *Discord) ChannelMessages(ctx context.Context, channelID string, limit int, beforeID string) ([]*discordgo.Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	if limit > 100 {
		limit = 100
	}
	return d.s.ChannelMessages(channelID, limit, beforeID, "", "", discordgo.WithContext(ctx))
}

func (d *Discord) ChannelMessage(ctx context.Context, channelID, messageID string) (*discordgo.Message, error) {
	return d.s.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx))
}

func (d *Discord) Download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := d.s.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download %s: status %d", url, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxDownload))
}

func (d *Discord) Send(ctx context.Context, channelID, content string) (*discordgo.Message, error) {
	return d.s.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content:         content,
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	}, discordgo.WithContext(ctx))
}

func (d *Discord) Reply(ctx context.Context, to *discordgo.Message, content string) (*discordgo.Message, error) {
	return d.s.ChannelMessageSendComplex(to.ChannelID, &discordgo.MessageSend{
		Content:         content,
		Reference:       to.Reference(),
		AllowedMentions: &discordgo.MessageAllowedMentions{RepliedUser: false},
	}, discordgo.WithContext(ctx))
}

func (d *Discord) Typing(ctx context.Context, channelID string) error {
	return d.s.ChannelTyping(channelID, discordgo.WithContext(ctx))
}

func (d *Discord) BotID() string {
	if d.s.State == nil || d.s.State.User == nil {
		return ""
	}
	return d.s.State.User.ID
}

func (d *Discord) BotName() string {
	if d.s.State == nil || d.s.State.User == nil {
		return ""
	}
	return d.s.State.User.Username
}

func (d *Discord) GuildName(guildID string) string {
	if g, err := d.s.State.Guild(guildID); err == nil {
		return g.Name
	}
	return ""
}

func (d *Discord) ChannelName(channelID string) (string, bool) {
	ch, err := d.s.State.Channel(channelID)
	if err != nil {
		return "", false
	}
	return ch.Name, true
}

func (d *Discord) ChannelGuildID(channelID string) (string, bool) {
	ch, err := d.s.State.Channel(channelID)
	if err != nil {
		return "", false
	}
	return ch.GuildID, true
}

func (d *Discord) RoleName(guildID, roleID string) (string, bool) {
	r, err := d.s.State.Role(guildID, roleID)
	if err != nil {
		return "", false
	}
	return r.Name, true
}

func (d *Discord) MemberNick(guildID, userID string) string {
	m, err := d.s.State.Member(guildID, userID)
	if err != nil {
		return ""
	}
	return m.Nick
}

func (d *Discord) MemberUsernames(guildID string) []string {
	g, err := d.s.State.Guild(guildID)
	if err != nil {
		return nil
	}
	d.s.State.RLock()
	defer d.s.State.RUnlock()
	names := make([]string, 0, len(g.Members))
	for _, m := range g.Members {
		if m.User != nil {
			names = append(names, m.User.Username)
		}
	}
	return names
}

func (d *Discord) LatestMessageID(ctx context.Context, channelID string) (string, error) {
	msgs, err := d.s.ChannelMessages(channelID, 1, "", "", "", discordgo.WithContext(ctx))
	if err != nil {
		return "", err
	}
	if len(msgs) == 0 {
		return "", nil
	}
	return msgs[0].ID, nil
}

func (d *Discord) SendEmbed(ctx context.Context, channelID string, embed *discordgo.MessageEmbed, components []discordgo.MessageComponent) (string, error) {
	msg, err := d.s.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Embeds:          []*discordgo.MessageEmbed{embed},
		Components:      components,
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", err
	}
	return msg.ID, nil
}

func (d *Discord) EditEmbed(ctx context.Context, channelID, messageID string, embed *discordgo.MessageEmbed, components []discordgo.MessageComponent) error {
	edit := discordgo.NewMessageEdit(channelID, messageID)
	edit.Embeds = &[]*discordgo.MessageEmbed{embed}
	edit.Components = &components
	_, err := d.s.ChannelMessageEditComplex(edit, discordgo.WithContext(ctx))
	return err
}

func (d *Discord) Delete(ctx context.Context, channelID, messageID string) error {
	return d.s.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx))
}
