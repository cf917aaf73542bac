package discord

import (
	"github.com/bwmarrin/discordgo"
)

func (b *Bot) onGuildMemberAdd(_ *discordgo.Session, m *discordgo.GuildMemberAdd) {
	if m.Member != nil {
		b.trackUser(m.User)
	}
}

func (b *Bot) onGuildMemberUpdate(_ *discordgo.Session, m *discordgo.GuildMemberUpdate) {
	if m.Member != nil {
		b.trackUser(m.User)
	}
}

func (b *Bot) onUserUpdate(_ *discordgo.Session, u *discordgo.UserUpdate) {
	b.trackUser(u.User)
}

// trackUser records u's username and moves its memories when the name
// changed since it was last seen.
func (b *Bot) trackUser(u *discordgo.User) {
	old, changed := b.observeUsername(u)
	if !changed {
		return
	}
	guilds, err := b.memory.Rename(old, u.Username)
	if err != nil {
		b.log.Error().Err(err).Str("from", old).Str("to", u.Username).Msg("failed to move user memory")
	}
	if len(guilds) > 0 {
		b.log.Info().Str("from", old).Str("to", u.Username).Strs("guilds", guilds).Msg("user renamed")
	}
}

// observeUsername stores the username of u and returns the previous one when
// it differs.
func (b *Bot) observeUsername(u *discordgo.User) (string, bool) {
	if u == nil || u.Bot || u.Username == "" {
		return "", false
	}
	b.usersMu.Lock()
	defer b.usersMu.Unlock()
	old, seen := b.usernames[u.ID]
	b.usernames[u.ID] = u.Username
	return old, seen && old != u.Username
}
