package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/HexSleeves/Review-Gate/pkg/wire"
)

// SessionStore provides session-related database operations.
type SessionStore struct {
	store *Store
}

// NewSessionStore creates a new session store.
func NewSessionStore(store *Store) *SessionStore {
	return &SessionStore{store: store}
}

// Create inserts a new active session. An empty uuid generates one. The
// expiry defaults to five minutes out.
func (s *SessionStore) Create(ctx context.Context, sessionUUID string, expiry time.Duration) (*Session, error) {
	if expiry <= 0 {
		expiry = 5 * time.Minute
	}
	sess := &Session{
		UUID:      sessionUUID,
		ExpiresAt: wire.Format(time.Now().Add(expiry)),
	}
	if err := s.store.DB.WithContext(ctx).Create(sess).Error; err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// Get returns a session by uuid, or (nil, nil) when it does not exist.
func (s *SessionStore) Get(ctx context.Context, sessionUUID string) (*Session, error) {
	var sess Session
	err := s.store.DB.WithContext(ctx).First(&sess, "uuid = ?", sessionUUID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &sess, nil
}

// Heartbeat refreshes a session's liveness timestamps.
func (s *SessionStore) Heartbeat(ctx context.Context, sessionUUID string) error {
	now := wire.Now()
	err := s.store.DB.WithContext(ctx).Model(&Session{}).
		Where("uuid = ?", sessionUUID).
		Updates(map[string]any{"heartbeat_at": now, "updated_at": now}).Error
	if err != nil {
		return fmt.Errorf("heartbeat session: %w", err)
	}
	return nil
}

// ListActive returns sessions still marked active, newest first.
func (s *SessionStore) ListActive(ctx context.Context) ([]Session, error) {
	var sessions []Session
	err := s.store.DB.WithContext(ctx).
		Where("status = ?", SessionActive).
		Order("updated_at DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	return sessions, nil
}

// CleanupStale marks active sessions stale when their heartbeat is older
// than timeout, and returns how many were marked.
func (s *SessionStore) CleanupStale(ctx context.Context, timeout time.Duration) (int64, error) {
	cutoff := wire.Format(time.Now().Add(-timeout))
	res := s.store.DB.WithContext(ctx).Model(&Session{}).
		Where("status = ? AND heartbeat_at < ?", SessionActive, cutoff).
		Updates(map[string]any{"status": SessionStale, "updated_at": wire.Now()})
	if res.Error != nil {
		return 0, fmt.Errorf("cleanup stale sessions: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// CleanupOld hard-deletes sessions created before the age window. The
// delete does not cascade: conversation history under a purged session is
// retained on purpose.
func (s *SessionStore) CleanupOld(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := wire.Format(time.Now().Add(-age))
	res := s.store.DB.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&Session{})
	if res.Error != nil {
		return 0, fmt.Errorf("cleanup old sessions: %w", res.Error)
	}
	return res.RowsAffected, nil
}
