// Package chat defines the narrow view of the chat platform that the agent
// pipeline depends on, together with its discordgo implementation.
package chat

import (
	"context"

	"github.com/bwmarrin/discordgo"
)

// Platform is what the pipeline needs from the chat client.
type Platform interface {
	// ChannelMessages returns up to limit messages before beforeID, newest first.
	ChannelMessages(ctx context.Context, channelID string, limit int, beforeID string) ([]*discordgo.Message, error)
	ChannelMessage(ctx context.Context, channelID, messageID string) (*discordgo.Message, error)
	Download(ctx context.Context, url string) ([]byte, error)
	Send(ctx context.Context, channelID, content string) (*discordgo.Message, error)
	Reply(ctx context.Context, to *discordgo.Message, content string) (*discordgo.Message, error)
	Typing(ctx context.Context, channelID string) error
}

// Directory resolves names from the client's cached state.
type Directory interface {
	BotID() string
	BotName() string
	GuildName(guildID string) string
	ChannelName(channelID string) (string, bool)
	ChannelGuildID(channelID string) (string, bool)
	RoleName(guildID, roleID string) (string, bool)
	MemberNick(guildID, userID string) string
	MemberUsernames(guildID string) []string
}

// Panels is what the now-playing panel needs to keep one embed message at the
// bottom of a channel.
type Panels interface {
	// LatestMessageID returns the newest message of the channel, or "".
	LatestMessageID(ctx context.Context, channelID string) (string, error)
	SendEmbed(ctx context.Context, channelID string, embed *discordgo.MessageEmbed, components []discordgo.MessageComponent) (string, error)
	EditEmbed(ctx context.Context, channelID, messageID string, embed *discordgo.MessageEmbed, components []discordgo.MessageComponent) error
	Delete(ctx context.Context, channelID, messageID string) error
}
