package db

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	json "github.com/goccy/go-json"

	"github.com/HexSleeves/Review-Gate/pkg/wire"
)

// TemplateStore provides template, config and progress operations.
type TemplateStore struct {
	store *Store
}

// NewTemplateStore creates a new template store.
func NewTemplateStore(store *Store) *TemplateStore {
	return &TemplateStore{store: store}
}

// CreateTemplate inserts a named prompt template. Name must be unique.
func (s *TemplateStore) CreateTemplate(ctx context.Context, t *Template) error {
	if err := s.store.DB.WithContext(ctx).Create(t).Error; err != nil {
		return fmt.Errorf("create template: %w", err)
	}
	return nil
}

// GetTemplate returns a template by name, or (nil, nil).
func (s *TemplateStore) GetTemplate(ctx context.Context, name string) (*Template, error) {
	var t Template
	err := s.store.DB.WithContext(ctx).First(&t, "name = ?", name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	return &t, nil
}

// ListTemplates returns templates ordered by name. Empty category means all.
func (s *TemplateStore) ListTemplates(ctx context.Context, category string) ([]Template, error) {
	q := s.store.DB.WithContext(ctx).Order("name")
	if category != "" {
		q = q.Where("category = ?", category)
	}
	var templates []Template
	if err := q.Find(&templates).Error; err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return templates, nil
}

// SeedDefaults inserts the built-in review templates that do not already
// exist. Idempotent.
func (s *TemplateStore) SeedDefaults(ctx context.Context) error {
	for _, t := range defaultTemplates() {
		existing, err := s.GetTemplate(ctx, t.Name)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		if err := s.CreateTemplate(ctx, &t); err != nil {
			return err
		}
	}
	return nil
}

// SetConfig stores a typed configuration value. Structured values must use
// the json type; everything else stores its string form.
func (s *TemplateStore) SetConfig(ctx context.Context, key string, value any, valueType string) error {
	var encoded string
	switch valueType {
	case ConfigJSON:
		data, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("encode config %s: %w", key, err)
		}
		encoded = string(data)
	case ConfigString, ConfigNumber, ConfigBoolean:
		encoded = fmt.Sprintf("%v", value)
	default:
		return fmt.Errorf("unknown config type %q", valueType)
	}

	entry := ConfigEntry{Key: key, Value: encoded, Type: valueType, UpdatedAt: wire.Now()}
	err := s.store.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "type", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("set config %s: %w", key, err)
	}
	return nil
}

// GetConfig returns a decoded configuration value, or (nil, nil).
func (s *TemplateStore) GetConfig(ctx context.Context, key string) (any, error) {
	var entry ConfigEntry
	err := s.store.DB.WithContext(ctx).First(&entry, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get config %s: %w", key, err)
	}
	return decodeConfig(entry)
}

// AllConfig returns every configuration value decoded into a map.
func (s *TemplateStore) AllConfig(ctx context.Context) (map[string]any, error) {
	var entries []ConfigEntry
	if err := s.store.DB.WithContext(ctx).Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("list config: %w", err)
	}
	out := make(map[string]any, len(entries))
	for _, entry := range entries {
		v, err := decodeConfig(entry)
		if err != nil {
			return nil, err
		}
		out[entry.Key] = v
	}
	return out, nil
}

func decodeConfig(entry ConfigEntry) (any, error) {
	switch entry.Type {
	case ConfigJSON:
		var v any
		if err := json.Unmarshal([]byte(entry.Value), &v); err != nil {
			return nil, fmt.Errorf("decode config %s: %w", entry.Key, err)
		}
		return v, nil
	case ConfigNumber:
		f, err := strconv.ParseFloat(entry.Value, 64)
		if err != nil {
			return nil, fmt.Errorf("decode config %s: %w", entry.Key, err)
		}
		return f, nil
	case ConfigBoolean:
		return entry.Value == "true", nil
	default:
		return entry.Value, nil
	}
}

// UpdateProgress upserts the single progress row for a conversation.
// Last write wins.
func (s *TemplateStore) UpdateProgress(ctx context.Context, conversationID string, percent int, statusMessage, stepName string) error {
	row := Progress{
		ConversationID: conversationID,
		Percent:        percent,
		StatusMessage:  nullString(statusMessage),
		StepName:       nullString(stepName),
		UpdatedAt:      wire.Now(),
	}
	err := s.store.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "conversation_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"percent", "status_message", "step_name", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}

// GetProgress returns the progress row for a conversation, or (nil, nil).
func (s *TemplateStore) GetProgress(ctx context.Context, conversationID string) (*Progress, error) {
	var row Progress
	err := s.store.DB.WithContext(ctx).First(&row, "conversation_id = ?", conversationID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get progress: %w", err)
	}
	return &row, nil
}
