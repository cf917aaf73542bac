package storage

import (
	"fmt"
	"strings"
	"time"

	"github.com/keshon/memoria/datastore"
	"github.com/keshon/memoria/internal/config"
)

const commandHistoryLimit int = 20

// credentialsKey holds the shared credentials. Guild IDs are numeric
// snowflakes so it cannot collide with a guild record.
const credentialsKey = "_credentials"

type Storage struct {
	ds *datastore.DataStore
}

type CommandHistoryRecord struct {
	ChannelID   string    `json:"channel_id"`
	ChannelName string    `json:"channel_name"`
	GuildName   string    `json:"guild_name"`
	UserID      string    `json:"user_id"`
	Username    string    `json:"username"`
	Command     string    `json:"command"`
	Datetime    time.Time `json:"datetime"`
}

// Record is everything persisted for one guild.
type Record struct {
	Settings            *config.GuildSettings  `json:"settings,omitempty"`
	Memory              map[string]string      `json:"memory"`
	PlayerChannel       string                 `json:"player_channel,omitempty"`
	CommandsHistoryList []CommandHistoryRecord `json:"cmd_history"`
}

func New(filePath string) (*Storage, error) {
	ds, err := datastore.New(filePath)
	if err != nil {
		return nil, err
	}
	return &Storage{ds: ds}, nil
}

// NewWithDatastore wraps an already opened datastore.
func NewWithDatastore(ds *datastore.DataStore) *Storage {
	return &Storage{ds: ds}
}

func (s *Storage) Close() error {
	return s.ds.Close()
}

func normalizeRecord(r *Record) {
	if r.Memory == nil {
		r.Memory = map[string]string{}
	}
	if r.CommandsHistoryList == nil {
		r.CommandsHistoryList = []CommandHistoryRecord{}
	}
	if len(r.CommandsHistoryList) > commandHistoryLimit {
		r.CommandsHistoryList = r.CommandsHistoryList[len(r.CommandsHistoryList)-commandHistoryLimit:]
	}
}

// getGuildRecord returns a copy of the guild record, or an empty one.
func (s *Storage) getGuildRecord(guildID string) (*Record, error) {
	var record Record
	if _, err := s.ds.Get(guildID, &record); err != nil {
		return nil, fmt.Errorf("error reading guild %s: %w", guildID, err)
	}
	normalizeRecord(&record)
	return &record, nil
}

// GuildRecord returns a copy of everything stored for a guild.
func (s *Storage) GuildRecord(guildID string) (*Record, error) {
	return s.getGuildRecord(guildID)
}

// updateGuildRecord runs fn on the guild record inside one datastore transaction.
func (s *Storage) updateGuildRecord(guildID string, fn func(r *Record) error) error {
	return datastore.Update(s.ds, guildID, func(r *Record) error {
		normalizeRecord(r)
		return fn(r)
	})
}

// GuildIDs lists the guilds that have a stored record.
func (s *Storage) GuildIDs() []string {
	var ids []string
	for _, k := range s.ds.Keys() {
		if strings.HasPrefix(k, "_") {
			continue
		}
		ids = append(ids, k)
	}
	return ids
}

// AppendCommandToHistory appends a command history record for a guild
func (s *Storage) AppendCommandToHistory(guildID string, command CommandHistoryRecord) error {
	return s.updateGuildRecord(guildID, func(r *Record) error {
		r.CommandsHistoryList = append(r.CommandsHistoryList, command)
		if len(r.CommandsHistoryList) > commandHistoryLimit {
			r.CommandsHistoryList = r.CommandsHistoryList[len(r.CommandsHistoryList)-commandHistoryLimit:]
		}
		return nil
	})
}

func (s *Storage) FetchCommandHistory(guildID string) ([]CommandHistoryRecord, error) {
	record, err := s.getGuildRecord(guildID)
	if err != nil {
		return nil, err
	}
	return record.CommandsHistoryList, nil
}
