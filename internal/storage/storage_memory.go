package storage

import "maps"

// Memory returns a copy of the guild's memory entries.
func (s *Storage) Memory(guildID string) (map[string]string, error) {
	record, err := s.getGuildRecord(guildID)
	if err != nil {
		return nil, err
	}
	return record.Memory, nil
}

// UpdateMemory runs fn against the stored memory map in a single transaction.
// Changes are kept only when fn returns nil.
func (s *Storage) UpdateMemory(guildID string, fn func(mem map[string]string) error) error {
	return s.updateGuildRecord(guildID, func(r *Record) error {
		mem := maps.Clone(r.Memory)
		if err := fn(mem); err != nil {
			return err
		}
		r.Memory = mem
		return nil
	})
}
