package db

import "context"

// Stats summarizes the store for the status service.
type Stats struct {
	ActiveSessions int64 `json:"active_sessions"`
	Sessions       int64 `json:"sessions"`
	Conversations  int64 `json:"conversations"`
	Messages       int64 `json:"messages"`
	Templates      int64 `json:"templates"`
	SchemaVersion  int   `json:"schema_version"`
}

// Stats counts the main tables and reports the applied schema version.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	if err := s.DB.WithContext(ctx).Model(&Session{}).
		Where("status = ?", SessionActive).
		Count(&stats.ActiveSessions).Error; err != nil {
		return nil, err
	}
	if err := s.DB.WithContext(ctx).Model(&Session{}).Count(&stats.Sessions).Error; err != nil {
		return nil, err
	}
	if err := s.DB.WithContext(ctx).Model(&Conversation{}).Count(&stats.Conversations).Error; err != nil {
		return nil, err
	}
	if err := s.DB.WithContext(ctx).Model(&Message{}).Count(&stats.Messages).Error; err != nil {
		return nil, err
	}
	if err := s.DB.WithContext(ctx).Model(&Template{}).Count(&stats.Templates).Error; err != nil {
		return nil, err
	}

	version, err := s.SchemaVersion()
	if err != nil {
		return nil, err
	}
	stats.SchemaVersion = version

	return stats, nil
}
