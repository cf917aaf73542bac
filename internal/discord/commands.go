package discord

import (
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/memoria/internal/bot"
	"github.com/keshon/memoria/internal/command"
	"github.com/keshon/memoria/pkg/cmd"
)

// registerCommands syncs slash commands for a guild with Discord:
// deletes obsolete ones, creates/updates commands whose definition has changed.
func (b *Bot) registerCommands(guildID string) error {
	appID, err := b.appID()
	if err != nil {
		return err
	}

	remote, err := b.dg.ApplicationCommands(appID, guildID)
	if err != nil {
		b.log.Warn().Err(err).Str("guild", guildID).Msg("failed to list registered commands")
	}
	remoteByName := make(map[string]*discordgo.ApplicationCommand, len(remote))
	for _, c := range remote {
		remoteByName[c.Name] = c
	}

	local := commandDefinitions(b.registry)
	hashes := loadCommandHashes(b.hashDir, guildID)

	b.deleteObsoleteCommands(appID, guildID, remoteByName, local, hashes)
	b.upsertChangedCommands(appID, guildID, local, hashes)
	return nil
}

// commandDefinitions returns the definitions of every registered command.
func commandDefinitions(reg *cmd.Registry) []*discordgo.ApplicationCommand {
	var defs []*discordgo.ApplicationCommand
	for _, c := range reg.GetAll() {
		if def := commandDefinition(c); def != nil {
			defs = append(defs, def)
		}
	}
	return defs
}

// deleteObsoleteCommands removes commands from Discord that are no longer in the local registry.
func (b *Bot) deleteObsoleteCommands(appID, guildID string, remote map[string]*discordgo.ApplicationCommand, local []*discordgo.ApplicationCommand, hashes map[string]string) {
	localNames := make(map[string]struct{}, len(local))
	for _, d := range local {
		localNames[d.Name] = struct{}{}
	}

	for name, rc := range remote {
		if _, exists := localNames[name]; exists {
			continue
		}
		b.log.Info().Str("guild", guildID).Str("command", name).Msg("deleting obsolete command")
		if err := b.dg.ApplicationCommandDelete(appID, guildID, rc.ID); err != nil {
			b.log.Error().Err(err).Str("guild", guildID).Str("command", name).Msg("failed to delete command")
			continue
		}
		delete(hashes, name)
	}
}

// upsertChangedCommands creates or updates commands whose hash differs from the cached value.
func (b *Bot) upsertChangedCommands(appID, guildID string, defs []*discordgo.ApplicationCommand, hashes map[string]string) {
	changed, fresh := changedCommands(defs, hashes)
	if len(changed) > 0 {
		b.log.Info().Str("guild", guildID).Int("count", len(changed)).Msg("registering changed commands")
	}
	for _, d := range changed {
		if _, err := b.dg.ApplicationCommandCreate(appID, guildID, d); err != nil {
			b.log.Error().Err(err).Str("guild", guildID).Str("command", d.Name).Msg("failed to register command")
			delete(fresh, d.Name)
		} else {
			b.log.Debug().Str("guild", guildID).Str("command", d.Name).Msg("registered command")
		}
		time.Sleep(25 * time.Millisecond) // stay well under Discord's rate limit
	}

	maps.Copy(hashes, fresh)
	if err := saveCommandHashes(b.hashDir, guildID, hashes); err != nil {
		b.log.Warn().Err(err).Str("guild", guildID).Msg("failed to save command hashes")
	}
}

// changedCommands returns the definitions whose hash differs from cached,
// along with the hashes of all definitions.
func changedCommands(defs []*discordgo.ApplicationCommand, cached map[string]string) ([]*discordgo.ApplicationCommand, map[string]string) {
	var changed []*discordgo.ApplicationCommand
	fresh := make(map[string]string, len(defs))
	for _, d := range defs {
		h := hashCommand(d)
		fresh[d.Name] = h
		if cached[d.Name] != h {
			changed = append(changed, d)
		}
	}
	return changed, fresh
}

// handleRefreshCommands processes a SystemEventRefreshCommands event.
func (b *Bot) handleRefreshCommands(evt bot.SystemEvent) {
	appID, err := b.appID()
	if err != nil {
		b.log.Error().Err(err).Str("guild", evt.GuildID).Msg("failed to resolve app ID")
		return
	}

	if b.isGuildBlacklisted(evt.GuildID) {
		b.removeAllCommands(appID, evt.GuildID)
		return
	}

	if evt.Target == "" || strings.EqualFold(evt.Target, "all") {
		if err := b.registerCommands(evt.GuildID); err != nil {
			b.log.Error().Err(err).Str("guild", evt.GuildID).Msg("failed to register slash commands")
		}
		return
	}
	b.refreshSingle(appID, evt.GuildID, evt.Target)
}

func (b *Bot) removeAllCommands(appID, guildID string) {
	b.log.Info().Str("guild", guildID).Msg("removing all commands from blacklisted guild")
	existing, _ := b.dg.ApplicationCommands(appID, guildID)
	for _, c := range existing {
		if err := b.dg.ApplicationCommandDelete(appID, guildID, c.ID); err != nil {
			b.log.Error().Err(err).Str("guild", guildID).Str("command", c.Name).Msg("failed to delete command")
		}
	}
	if err := os.Remove(commandHashPath(b.hashDir, guildID)); err != nil && !os.IsNotExist(err) {
		b.log.Warn().Err(err).Str("guild", guildID).Msg("failed to drop command hashes")
	}
}

func (b *Bot) refreshSingle(appID, guildID, name string) {
	for _, c := range b.registry.GetAll() {
		if !strings.EqualFold(c.Name(), name) {
			continue
		}
		if def := commandDefinition(c); def != nil {
			if _, err := b.dg.ApplicationCommandCreate(appID, guildID, def); err != nil {
				b.log.Error().Err(err).Str("guild", guildID).Str("command", def.Name).Msg("failed to register command")
			}
		}
		return
	}
	b.log.Warn().Str("guild", guildID).Str("target", name).Msg("no command found for refresh target")
}

// commandDefinition extracts the ApplicationCommand definition from a registered command,
// walking through middleware wrappers via cmd.Root.
func commandDefinition(c cmd.Command) *discordgo.ApplicationCommand {
	slash, ok := cmd.Root(c).(command.SlashProvider)
	if !ok {
		return nil
	}
	def := slash.SlashDefinition()
	if def != nil && def.Type == 0 {
		def.Type = discordgo.ChatApplicationCommand
	}
	return def
}

// appID returns the bot's application ID, fetching from Discord if not cached in State.
func (b *Bot) appID() (string, error) {
	if b.dg.State.User != nil && b.dg.State.User.ID != "" {
		return b.dg.State.User.ID, nil
	}
	u, err := b.dg.User("@me")
	if err != nil {
		return "", fmt.Errorf("failed to fetch bot user: %w", err)
	}
	return u.ID, nil
}

// --- Command hash cache ---

func commandHashPath(dir, guildID string) string {
	return filepath.Join(dir, guildID+".json")
}

func loadCommandHashes(dir, guildID string) map[string]string {
	out := make(map[string]string)
	if data, err := os.ReadFile(commandHashPath(dir, guildID)); err == nil {
		_ = json.Unmarshal(data, &out)
	}
	return out
}

func saveCommandHashes(dir, guildID string, hashes map[string]string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(hashes, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(commandHashPath(dir, guildID), data, 0o644)
}

// --- Command hashing ---

// hashCommand returns a deterministic SHA-1 of a command's stable fields.
// Used to skip re-registration when nothing has changed.
func hashCommand(c *discordgo.ApplicationCommand) string {
	stable := map[string]interface{}{
		"name":        c.Name,
		"description": c.Description,
		"type":        c.Type,
	}
	if len(c.Options) > 0 {
		stable["options"] = normalizeOptions(c.Options)
	}
	data, _ := json.Marshal(stable)
	sum := sha1.Sum(data)
	return fmt.Sprintf("%x", sum)
}

func normalizeOptions(opts []*discordgo.ApplicationCommandOption) []map[string]interface{} {
	out := make([]map[string]interface{}, len(opts))
	for i, o := range opts {
		entry := map[string]interface{}{
			"name":        o.Name,
			"description": o.Description,
			"type":        o.Type,
			"required":    o.Required,
		}
		if len(o.Choices) > 0 {
			choices := make([]map[string]interface{}, len(o.Choices))
			for j, ch := range o.Choices {
				choices[j] = map[string]interface{}{"name": ch.Name, "value": ch.Value}
			}
			entry["choices"] = choices
		}
		if len(o.ChannelTypes) > 0 {
			entry["channel_types"] = o.ChannelTypes
		}
		if o.MinValue != nil {
			entry["min_value"] = *o.MinValue
		}
		if o.MaxValue != 0 {
			entry["max_value"] = o.MaxValue
		}
		if len(o.Options) > 0 {
			entry["options"] = normalizeOptions(o.Options)
		}
		out[i] = entry
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i]["name"].(string) < out[j]["name"].(string)
	})
	return out
}
