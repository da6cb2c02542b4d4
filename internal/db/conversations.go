package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"gorm.io/gorm"

	json "github.com/goccy/go-json"

	"github.com/HexSleeves/Review-Gate/pkg/wire"
)

// ConversationStore provides conversation, message and checkpoint
// operations.
type ConversationStore struct {
	store *Store
}

// NewConversationStore creates a new conversation store.
func NewConversationStore(store *Store) *ConversationStore {
	return &ConversationStore{store: store}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Create inserts a new active conversation under a session.
func (s *ConversationStore) Create(ctx context.Context, sessionUUID, title, contextText string) (*Conversation, error) {
	conv := &Conversation{
		SessionUUID: sessionUUID,
		Title:       nullString(title),
		Context:     nullString(contextText),
	}
	if err := s.store.DB.WithContext(ctx).Create(conv).Error; err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return conv, nil
}

// Get returns a conversation by id, or (nil, nil) when absent.
func (s *ConversationStore) Get(ctx context.Context, id string) (*Conversation, error) {
	var conv Conversation
	err := s.store.DB.WithContext(ctx).First(&conv, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return &conv, nil
}

// GetActiveBySession returns the session's active conversation, or
// (nil, nil). At most one should exist; the newest wins if the invariant
// was ever broken.
func (s *ConversationStore) GetActiveBySession(ctx context.Context, sessionUUID string) (*Conversation, error) {
	var conv Conversation
	err := s.store.DB.WithContext(ctx).
		Where("session_uuid = ? AND status = ?", sessionUUID, ConversationActive).
		Order("updated_at DESC").
		First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active conversation: %w", err)
	}
	return &conv, nil
}

// List returns conversations newest first. Empty status means all.
func (s *ConversationStore) List(ctx context.Context, limit, offset int, status string) ([]Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	q := s.store.DB.WithContext(ctx).Order("updated_at DESC").Limit(limit).Offset(offset)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var convs []Conversation
	if err := q.Find(&convs).Error; err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return convs, nil
}

// UpdateStatus moves a conversation to a new status.
func (s *ConversationStore) UpdateStatus(ctx context.Context, id, status string) error {
	err := s.store.DB.WithContext(ctx).Model(&Conversation{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": status, "updated_at": wire.Now()}).Error
	if err != nil {
		return fmt.Errorf("update conversation status: %w", err)
	}
	return nil
}

// AddMessage appends an immutable message and touches the conversation's
// updated_at so listings order by recent activity.
func (s *ConversationStore) AddMessage(ctx context.Context, conversationID, role, content string, attachments []wire.Attachment) (*Message, error) {
	msg := &Message{
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Attachments:    attachments,
	}
	err := s.store.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		return tx.Model(&Conversation{}).
			Where("id = ?", conversationID).
			Update("updated_at", msg.Timestamp).Error
	})
	if err != nil {
		return nil, fmt.Errorf("add message: %w", err)
	}
	return msg, nil
}

// GetMessages returns a conversation's messages ordered by timestamp
// ascending for replay.
func (s *ConversationStore) GetMessages(ctx context.Context, conversationID string, limit, offset int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	var msgs []Message
	err := s.store.DB.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("timestamp ASC").
		Limit(limit).Offset(offset).
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	return msgs, nil
}

// CreateCheckpoint stores an immutable snapshot of a conversation.
func (s *ConversationStore) CreateCheckpoint(ctx context.Context, conversationID, name string, snapshot map[string]any) (*Checkpoint, error) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	cp := &Checkpoint{
		ConversationID: conversationID,
		Name:           name,
		SnapshotData:   string(data),
	}
	if err := s.store.DB.WithContext(ctx).Create(cp).Error; err != nil {
		return nil, fmt.Errorf("create checkpoint: %w", err)
	}
	return cp, nil
}

// GetCheckpoint returns a checkpoint by id, or (nil, nil).
func (s *ConversationStore) GetCheckpoint(ctx context.Context, id string) (*Checkpoint, error) {
	var cp Checkpoint
	err := s.store.DB.WithContext(ctx).First(&cp, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get checkpoint: %w", err)
	}
	return &cp, nil
}

// ListCheckpoints returns a conversation's checkpoints, newest first.
func (s *ConversationStore) ListCheckpoints(ctx context.Context, conversationID string) ([]Checkpoint, error) {
	var cps []Checkpoint
	err := s.store.DB.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC").
		Find(&cps).Error
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	return cps, nil
}
