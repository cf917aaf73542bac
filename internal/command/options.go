package command

import (
	"strings"

	"github.com/bwmarrin/discordgo"
)

type Option = discordgo.ApplicationCommandInteractionDataOption

// Subcommand walks subcommand groups and returns the invoked path, such as
// "channels add", with the leaf options keyed by name.
func Subcommand(data discordgo.ApplicationCommandInteractionData) (string, map[string]*Option) {
	var path []string
	opts := data.Options
	for len(opts) == 1 &&
		(opts[0].Type == discordgo.ApplicationCommandOptionSubCommandGroup ||
			opts[0].Type == discordgo.ApplicationCommandOptionSubCommand) {
		path = append(path, opts[0].Name)
		opts = opts[0].Options
	}
	return strings.Join(path, " "), OptionMap(opts)
}

func OptionMap(opts []*Option) map[string]*Option {
	m := make(map[string]*Option, len(opts))
	for _, o := range opts {
		m[o.Name] = o
	}
	return m
}

// StringOption returns the named string, channel, user or role option, or "".
func StringOption(opts map[string]*Option, name string) string {
	if o, ok := opts[name]; ok {
		if v, ok := o.Value.(string); ok {
			return v
		}
	}
	return ""
}

// IntOption returns the named integer option.
func IntOption(opts map[string]*Option, name string) (int, bool) {
	if o, ok := opts[name]; ok {
		if v, ok := o.Value.(float64); ok {
			return int(v), true
		}
	}
	return 0, false
}

// BoolOption returns the named boolean option.
func BoolOption(opts map[string]*Option, name string) (bool, bool) {
	if o, ok := opts[name]; ok {
		if v, ok := o.Value.(bool); ok {
			return v, true
		}
	}
	return false, false
}

// InteractionUser returns whoever triggered the interaction.
func InteractionUser(e *discordgo.InteractionCreate) *discordgo.User {
	if e.Member != nil && e.Member.User != nil {
		return e.Member.User
	}
	if e.User != nil {
		return e.User
	}
	return &discordgo.User{ID: "unknown", Username: "Unknown"}
}

// HasPermission reports whether the invoking member holds perm in the
// channel. Administrators hold every permission.
func HasPermission(e *discordgo.InteractionCreate, perm int64) bool {
	if e.Member == nil {
		return false
	}
	p := e.Member.Permissions
	return p&discordgo.PermissionAdministrator != 0 || p&perm != 0
}
