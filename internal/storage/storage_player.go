package storage

// PlayerChannel returns the channel hosting the now-playing panel, or "".
func (s *Storage) PlayerChannel(guildID string) (string, error) {
	record, err := s.getGuildRecord(guildID)
	if err != nil {
		return "", err
	}
	return record.PlayerChannel, nil
}

// SetPlayerChannel sets the panel channel; an empty ID disables the panel.
func (s *Storage) SetPlayerChannel(guildID, channelID string) error {
	return s.updateGuildRecord(guildID, func(r *Record) error {
		r.PlayerChannel = channelID
		return nil
	})
}

// PlayerChannels maps every guild with a panel to its channel.
func (s *Storage) PlayerChannels() (map[string]string, error) {
	out := map[string]string{}
	for _, id := range s.GuildIDs() {
		ch, err := s.PlayerChannel(id)
		if err != nil {
			return nil, err
		}
		if ch != "" {
			out[id] = ch
		}
	}
	return out, nil
}
