// Package db provides the GORM-backed persistence layer for review gate
// sessions, conversations, messages, checkpoints, templates, config and
// progress rows.
package db

import (
	"database/sql"
	"database/sql/driver"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	json "github.com/goccy/go-json"

	"github.com/HexSleeves/Review-Gate/pkg/wire"
)

// Session statuses.
const (
	SessionActive = "active"
	SessionStale  = "stale"
)

// Conversation statuses.
const (
	ConversationActive    = "active"
	ConversationCompleted = "completed"
	ConversationTimeout   = "timeout"
)

// Message roles.
const (
	RoleAssistant = "assistant"
	RoleUser      = "user"
)

// Config value types.
const (
	ConfigString  = "string"
	ConfigNumber  = "number"
	ConfigBoolean = "boolean"
	ConfigJSON    = "json"
)

// AttachmentList stores message attachments as a JSON TEXT column.
type AttachmentList []wire.Attachment

// Scan implements sql.Scanner.
func (a *AttachmentList) Scan(value any) error {
	if value == nil {
		*a = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("scan attachments: unsupported type %T", value)
	}
	if len(data) == 0 {
		*a = nil
		return nil
	}
	return json.Unmarshal(data, a)
}

// Value implements driver.Valuer. Empty lists store as NULL.
func (a AttachmentList) Value() (driver.Value, error) {
	if len(a) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// SchemaMigration records one applied migration.
type SchemaMigration struct {
	Version     int    `gorm:"primaryKey"`
	AppliedAt   string `gorm:"not null"`
	Description string
}

func (SchemaMigration) TableName() string { return "schema_migrations" }

// Session tracks a logical caller session. Other entities refer to it by
// uuid only; there is no enforced foreign key from conversations.
type Session struct {
	UUID        string `gorm:"primaryKey"`
	CreatedAt   string `gorm:"not null"`
	UpdatedAt   string `gorm:"not null"`
	Status      string `gorm:"type:text;check:status IN ('active', 'stale');default:'active';index:idx_sessions_status"`
	ExpiresAt   string `gorm:"index:idx_sessions_expires"`
	HeartbeatAt string
}

func (Session) TableName() string { return "sessions" }

// BeforeCreate hook to ensure id and timestamps are set.
func (s *Session) BeforeCreate(tx *gorm.DB) error {
	if s.UUID == "" {
		s.UUID = uuid.NewString()
	}
	now := wire.Now()
	if s.CreatedAt == "" {
		s.CreatedAt = now
	}
	if s.UpdatedAt == "" {
		s.UpdatedAt = now
	}
	if s.HeartbeatAt == "" {
		s.HeartbeatAt = now
	}
	if s.Status == "" {
		s.Status = SessionActive
	}
	return nil
}

// Conversation is one review exchange under a session. At most one active
// conversation per session, enforced by lookup-before-create.
type Conversation struct {
	ID          string `gorm:"primaryKey"`
	SessionUUID string `gorm:"index:idx_conversations_session;not null"`
	CreatedAt   string `gorm:"not null"`
	UpdatedAt   string `gorm:"not null"`
	Status      string `gorm:"type:text;check:status IN ('active', 'completed', 'timeout');default:'active';index:idx_conversations_status"`
	Title       sql.NullString
	Context     sql.NullString
}

func (Conversation) TableName() string { return "conversations" }

// BeforeCreate hook to ensure id and timestamps are set.
func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := wire.Now()
	if c.CreatedAt == "" {
		c.CreatedAt = now
	}
	if c.UpdatedAt == "" {
		c.UpdatedAt = now
	}
	if c.Status == "" {
		c.Status = ConversationActive
	}
	return nil
}

// Message is one immutable exchange entry, ordered by timestamp.
type Message struct {
	ID             string         `gorm:"primaryKey"`
	ConversationID string         `gorm:"index:idx_messages_conversation;not null"`
	Role           string         `gorm:"type:text;check:role IN ('assistant', 'user');not null"`
	Content        string         `gorm:"type:text;not null"`
	Timestamp      string         `gorm:"index:idx_messages_timestamp,sort:desc;not null"`
	Attachments    AttachmentList `gorm:"type:text"`
}

func (Message) TableName() string { return "messages" }

// BeforeCreate hook to ensure id and timestamp are set.
func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Timestamp == "" {
		m.Timestamp = wire.Now()
	}
	return nil
}

// Checkpoint is an immutable point-in-time copy of a conversation.
type Checkpoint struct {
	ID             string `gorm:"primaryKey"`
	ConversationID string `gorm:"index:idx_checkpoints_conversation;not null"`
	Name           string `gorm:"not null"`
	SnapshotData   string `gorm:"type:text;not null"`
	CreatedAt      string `gorm:"not null"`
}

func (Checkpoint) TableName() string { return "checkpoints" }

// BeforeCreate hook to ensure id and timestamp are set.
func (c *Checkpoint) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt == "" {
		c.CreatedAt = wire.Now()
	}
	return nil
}

// Snapshot decodes the stored snapshot payload. Corrupt snapshots decode to
// an empty map rather than failing the read.
func (c *Checkpoint) Snapshot() map[string]any {
	out := map[string]any{}
	if c.SnapshotData == "" {
		return out
	}
	if err := json.Unmarshal([]byte(c.SnapshotData), &out); err != nil {
		return map[string]any{}
	}
	return out
}

// Template is a named prompt template with {{var}} markers.
type Template struct {
	ID              string `gorm:"primaryKey"`
	Name            string `gorm:"uniqueIndex;not null"`
	Title           string `gorm:"not null"`
	Description     sql.NullString
	Category        sql.NullString `gorm:"index:idx_templates_category"`
	PromptTemplate  string         `gorm:"type:text;not null"`
	ArgumentsSchema sql.NullString `gorm:"type:text"`
	CreatedAt       string         `gorm:"not null"`
	UpdatedAt       string         `gorm:"not null"`
}

func (Template) TableName() string { return "templates" }

// BeforeCreate hook to ensure id and timestamps are set.
func (t *Template) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := wire.Now()
	if t.CreatedAt == "" {
		t.CreatedAt = now
	}
	if t.UpdatedAt == "" {
		t.UpdatedAt = now
	}
	return nil
}

// ConfigEntry is a typed key/value row.
type ConfigEntry struct {
	Key       string `gorm:"primaryKey"`
	Value     string `gorm:"type:text;not null"`
	Type      string `gorm:"type:text;check:type IN ('string', 'number', 'boolean', 'json');not null"`
	UpdatedAt string `gorm:"not null"`
}

func (ConfigEntry) TableName() string { return "config" }

// Progress is a single last-write-wins row per conversation.
type Progress struct {
	ConversationID string `gorm:"primaryKey"`
	Percent        int    `gorm:"default:0;not null"`
	StatusMessage  sql.NullString
	StepName       sql.NullString
	UpdatedAt      string `gorm:"not null"`
}

func (Progress) TableName() string { return "progress" }
