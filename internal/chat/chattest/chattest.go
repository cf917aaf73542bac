// Package chattest provides in-memory fakes of the chat interfaces.
package chattest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
)

var ErrNotFound = errors.New("not found")

// Directory is a static name directory.
type Directory struct {
	Bot       *discordgo.User
	Guilds    map[string]string
	Channels  map[string]string // id -> name
	ChannelOf map[string]string // channel id -> guild id
	Roles     map[string]string
	Nicks     map[string]string // user id -> nick
	Usernames []string
}

func (d *Directory) BotID() string {
	if d.Bot == nil {
		return ""
	}
	return d.Bot.ID
}

func (d *Directory) BotName() string {
	if d.Bot == nil {
		return ""
	}
	return d.Bot.Username
}

func (d *Directory) GuildName(id string) string { return d.Guilds[id] }

func (d *Directory) ChannelName(id string) (string, bool) {
	n, ok := d.Channels[id]
	return n, ok
}

func (d *Directory) ChannelGuildID(id string) (string, bool) {
	g, ok := d.ChannelOf[id]
	return g, ok
}

func (d *Directory) RoleName(_, id string) (string, bool) {
	n, ok := d.Roles[id]
	return n, ok
}

func (d *Directory) MemberNick(_, userID string) string { return d.Nicks[userID] }

func (d *Directory) MemberUsernames(string) []string { return d.Usernames }

// Platform keeps channel histories in memory, oldest first, and records
// everything sent through it.
type Platform struct {
	mu       sync.Mutex
	History  map[string][]*discordgo.Message
	Files    map[string][]byte
	Sent     []string
	Replies  []string
	Typings  int
	FailGets map[string]bool
	nextID   int
}

func NewPlatform() *Platform {
	return &Platform{
		History:  map[string][]*discordgo.Message{},
		Files:    map[string][]byte{},
		FailGets: map[string]bool{},
	}
}

// Add appends msg to its channel history.
func (p *Platform) Add(msg *discordgo.Message) *discordgo.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.History[msg.ChannelID] = append(p.History[msg.ChannelID], msg)
	return msg
}

func (p *Platform) ChannelMessages(_ context.Context, channelID string, limit int, beforeID string) ([]*discordgo.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	h := p.History[channelID]
	end := len(h)
	for i, m := range h {
		if m.ID == beforeID {
			end = i
			break
		}
	}
	var out []*discordgo.Message
	for i := end - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, h[i])
	}
	return out, nil
}

func (p *Platform) ChannelMessage(_ context.Context, channelID, messageID string) (*discordgo.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.FailGets[messageID] {
		return nil, fmt.Errorf("fetch %s: %w", messageID, ErrNotFound)
	}
	for _, m := range p.History[channelID] {
		if m.ID == messageID {
			return m, nil
		}
	}
	return nil, ErrNotFound
}

func (p *Platform) Download(_ context.Context, url string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if b, ok := p.Files[url]; ok {
		return b, nil
	}
	return nil, ErrNotFound
}

func (p *Platform) Send(_ context.Context, channelID, content string) (*discordgo.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Sent = append(p.Sent, content)
	p.nextID++
	return &discordgo.Message{ID: fmt.Sprintf("sent-%d", p.nextID), ChannelID: channelID, Content: content}, nil
}

func (p *Platform) Reply(_ context.Context, to *discordgo.Message, content string) (*discordgo.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Replies = append(p.Replies, content)
	p.nextID++
	return &discordgo.Message{ID: fmt.Sprintf("sent-%d", p.nextID), ChannelID: to.ChannelID, Content: content}, nil
}

func (p *Platform) Typing(context.Context, string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Typings++
	return nil
}

// Snapshot returns copies of the sent messages and replies.
func (p *Platform) Snapshot() (sent, replies []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.Sent...), append([]string(nil), p.Replies...)
}
