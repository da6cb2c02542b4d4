package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"gorm.io/gorm/logger"

	"github.com/HexSleeves/Review-Gate/pkg/wire"
)

type StoreSuite struct {
	suite.Suite
	ctx      context.Context
	store    *Store
	sessions *SessionStore
	convs    *ConversationStore
	tmpl     *TemplateStore
	path     string
}

func (s *StoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.path = filepath.Join(s.T().TempDir(), "review_gate.db")

	store, err := NewStore(Config{Path: s.path, LogLevel: logger.Silent})
	s.Require().NoError(err)
	s.store = store
	s.sessions = NewSessionStore(store)
	s.convs = NewConversationStore(store)
	s.tmpl = NewTemplateStore(store)
}

func (s *StoreSuite) TearDownTest() {
	s.Require().NoError(s.store.Close())
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) TestMigrationsIdempotent() {
	version, err := s.store.SchemaVersion()
	s.Require().NoError(err)
	s.Equal(len(migrations), version)

	// Opening the same file again must not re-apply anything.
	second, err := NewStore(Config{Path: s.path, LogLevel: logger.Silent})
	s.Require().NoError(err)
	defer second.Close()

	again, err := second.SchemaVersion()
	s.Require().NoError(err)
	s.Equal(version, again)
}

func (s *StoreSuite) TestSessionLifecycle() {
	sess, err := s.sessions.Create(s.ctx, "", 0)
	s.Require().NoError(err)
	s.NotEmpty(sess.UUID)
	s.Equal(SessionActive, sess.Status)
	s.NotEmpty(sess.ExpiresAt)

	got, err := s.sessions.Get(s.ctx, sess.UUID)
	s.Require().NoError(err)
	s.Require().NotNil(got)
	s.Equal(sess.UUID, got.UUID)

	s.Require().NoError(s.sessions.Heartbeat(s.ctx, sess.UUID))

	missing, err := s.sessions.Get(s.ctx, "no-such-session")
	s.Require().NoError(err)
	s.Nil(missing)
}

func (s *StoreSuite) TestCleanupStale() {
	old, err := s.sessions.Create(s.ctx, "stale-one", 0)
	s.Require().NoError(err)
	fresh, err := s.sessions.Create(s.ctx, "fresh-one", 0)
	s.Require().NoError(err)

	// Backdate one heartbeat to 40s ago, the other to 10s ago.
	s.Require().NoError(s.store.DB.Model(&Session{}).
		Where("uuid = ?", old.UUID).
		Update("heartbeat_at", wire.Format(time.Now().Add(-40*time.Second))).Error)
	s.Require().NoError(s.store.DB.Model(&Session{}).
		Where("uuid = ?", fresh.UUID).
		Update("heartbeat_at", wire.Format(time.Now().Add(-10*time.Second))).Error)

	count, err := s.sessions.CleanupStale(s.ctx, 30*time.Second)
	s.Require().NoError(err)
	s.Equal(int64(1), count)

	got, err := s.sessions.Get(s.ctx, old.UUID)
	s.Require().NoError(err)
	s.Equal(SessionStale, got.Status)

	got, err = s.sessions.Get(s.ctx, fresh.UUID)
	s.Require().NoError(err)
	s.Equal(SessionActive, got.Status)
}

func (s *StoreSuite) TestCleanupOld() {
	aged, err := s.sessions.Create(s.ctx, "aged", 0)
	s.Require().NoError(err)
	recent, err := s.sessions.Create(s.ctx, "recent", 0)
	s.Require().NoError(err)

	s.Require().NoError(s.store.DB.Model(&Session{}).
		Where("uuid = ?", aged.UUID).
		Update("created_at", wire.Format(time.Now().Add(-2*time.Hour))).Error)

	count, err := s.sessions.CleanupOld(s.ctx, time.Hour)
	s.Require().NoError(err)
	s.Equal(int64(1), count)

	got, err := s.sessions.Get(s.ctx, aged.UUID)
	s.Require().NoError(err)
	s.Nil(got)

	got, err = s.sessions.Get(s.ctx, recent.UUID)
	s.Require().NoError(err)
	s.NotNil(got)
}

func (s *StoreSuite) TestSessionPurgeKeepsHistory() {
	sess, err := s.sessions.Create(s.ctx, "purged", 0)
	s.Require().NoError(err)
	conv, err := s.convs.Create(s.ctx, sess.UUID, "kept", "")
	s.Require().NoError(err)

	s.Require().NoError(s.store.DB.Model(&Session{}).
		Where("uuid = ?", sess.UUID).
		Update("created_at", wire.Format(time.Now().Add(-2*time.Hour))).Error)
	_, err = s.sessions.CleanupOld(s.ctx, time.Hour)
	s.Require().NoError(err)

	// Session references are soft: purging the session leaves history.
	got, err := s.convs.Get(s.ctx, conv.ID)
	s.Require().NoError(err)
	s.NotNil(got)
}

func (s *StoreSuite) TestConversationReuse() {
	sess, err := s.sessions.Create(s.ctx, "", 0)
	s.Require().NoError(err)

	none, err := s.convs.GetActiveBySession(s.ctx, sess.UUID)
	s.Require().NoError(err)
	s.Nil(none)

	conv, err := s.convs.Create(s.ctx, sess.UUID, "Review", "some context")
	s.Require().NoError(err)
	s.Equal(ConversationActive, conv.Status)

	active, err := s.convs.GetActiveBySession(s.ctx, sess.UUID)
	s.Require().NoError(err)
	s.Require().NotNil(active)
	s.Equal(conv.ID, active.ID)

	s.Require().NoError(s.convs.UpdateStatus(s.ctx, conv.ID, ConversationCompleted))

	afterClose, err := s.convs.GetActiveBySession(s.ctx, sess.UUID)
	s.Require().NoError(err)
	s.Nil(afterClose)
}

func (s *StoreSuite) TestListConversationsByStatus() {
	sess, err := s.sessions.Create(s.ctx, "", 0)
	s.Require().NoError(err)

	a, err := s.convs.Create(s.ctx, sess.UUID, "a", "")
	s.Require().NoError(err)
	_, err = s.convs.Create(s.ctx, sess.UUID, "b", "")
	s.Require().NoError(err)
	s.Require().NoError(s.convs.UpdateStatus(s.ctx, a.ID, ConversationTimeout))

	timedOut, err := s.convs.List(s.ctx, 10, 0, ConversationTimeout)
	s.Require().NoError(err)
	s.Require().Len(timedOut, 1)
	s.Equal(a.ID, timedOut[0].ID)

	all, err := s.convs.List(s.ctx, 10, 0, "")
	s.Require().NoError(err)
	s.Len(all, 2)
}

func (s *StoreSuite) TestMessagesOrderedWithAttachments() {
	sess, err := s.sessions.Create(s.ctx, "", 0)
	s.Require().NoError(err)
	conv, err := s.convs.Create(s.ctx, sess.UUID, "", "")
	s.Require().NoError(err)

	_, err = s.convs.AddMessage(s.ctx, conv.ID, RoleAssistant, "What do you think?", nil)
	s.Require().NoError(err)

	attachments := []wire.Attachment{
		{MimeType: "image/png", FileName: "a.png", Base64Data: "aGVsbG8="},
		{MimeType: "image/jpeg", FileName: "b.jpg", Base64Data: "d29ybGQ="},
	}
	_, err = s.convs.AddMessage(s.ctx, conv.ID, RoleUser, "Looks good", attachments)
	s.Require().NoError(err)

	msgs, err := s.convs.GetMessages(s.ctx, conv.ID, 50, 0)
	s.Require().NoError(err)
	s.Require().Len(msgs, 2)
	s.Equal(RoleAssistant, msgs[0].Role)
	s.Equal(RoleUser, msgs[1].Role)
	s.LessOrEqual(msgs[0].Timestamp, msgs[1].Timestamp)
	s.Nil(msgs[0].Attachments)
	s.Require().Len(msgs[1].Attachments, 2)
	s.Equal(attachments, []wire.Attachment(msgs[1].Attachments))

	// Conversation updated_at tracks the latest message.
	got, err := s.convs.Get(s.ctx, conv.ID)
	s.Require().NoError(err)
	s.Equal(msgs[1].Timestamp, got.UpdatedAt)
}

func (s *StoreSuite) TestCheckpointRoundTrip() {
	sess, err := s.sessions.Create(s.ctx, "", 0)
	s.Require().NoError(err)
	conv, err := s.convs.Create(s.ctx, sess.UUID, "", "")
	s.Require().NoError(err)

	snapshot := map[string]any{
		"messages": []any{map[string]any{"role": "user", "content": "hi"}},
		"count":    float64(1),
	}
	cp, err := s.convs.CreateCheckpoint(s.ctx, conv.ID, "before-edit", snapshot)
	s.Require().NoError(err)

	got, err := s.convs.GetCheckpoint(s.ctx, cp.ID)
	s.Require().NoError(err)
	s.Require().NotNil(got)
	s.Equal("before-edit", got.Name)
	s.Equal(snapshot, got.Snapshot())

	list, err := s.convs.ListCheckpoints(s.ctx, conv.ID)
	s.Require().NoError(err)
	s.Len(list, 1)
}

func (s *StoreSuite) TestTemplateSeedingIdempotent() {
	s.Require().NoError(s.tmpl.SeedDefaults(s.ctx))
	s.Require().NoError(s.tmpl.SeedDefaults(s.ctx))

	templates, err := s.tmpl.ListTemplates(s.ctx, "")
	s.Require().NoError(err)
	s.Len(templates, 5)

	got, err := s.tmpl.GetTemplate(s.ctx, "code_review")
	s.Require().NoError(err)
	s.Require().NotNil(got)
	s.Equal("Code Review", got.Title)
	s.Contains(got.PromptTemplate, "{{#if focus_areas}}")

	byCategory, err := s.tmpl.ListTemplates(s.ctx, "review")
	s.Require().NoError(err)
	s.Len(byCategory, 5)
}

func (s *StoreSuite) TestConfigRoundTrips() {
	tests := []struct {
		name      string
		key       string
		value     any
		valueType string
		expected  any
	}{
		{name: "string", key: "theme", value: "dark", valueType: ConfigString, expected: "dark"},
		{name: "number", key: "timeout", value: 42.5, valueType: ConfigNumber, expected: 42.5},
		{name: "boolean", key: "enabled", value: true, valueType: ConfigBoolean, expected: true},
		{name: "json", key: "features", value: map[string]any{"speech": true}, valueType: ConfigJSON, expected: map[string]any{"speech": true}},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.Require().NoError(s.tmpl.SetConfig(s.ctx, tt.key, tt.value, tt.valueType))
			got, err := s.tmpl.GetConfig(s.ctx, tt.key)
			s.Require().NoError(err)
			s.Equal(tt.expected, got)
		})
	}

	all, err := s.tmpl.AllConfig(s.ctx)
	s.Require().NoError(err)
	s.Len(all, 4)

	missing, err := s.tmpl.GetConfig(s.ctx, "absent")
	s.Require().NoError(err)
	s.Nil(missing)
}

func (s *StoreSuite) TestConfigOverwrite() {
	s.Require().NoError(s.tmpl.SetConfig(s.ctx, "mode", "fast", ConfigString))
	s.Require().NoError(s.tmpl.SetConfig(s.ctx, "mode", "careful", ConfigString))

	got, err := s.tmpl.GetConfig(s.ctx, "mode")
	s.Require().NoError(err)
	s.Equal("careful", got)
}

func (s *StoreSuite) TestProgressLastWriteWins() {
	sess, err := s.sessions.Create(s.ctx, "", 0)
	s.Require().NoError(err)
	conv, err := s.convs.Create(s.ctx, sess.UUID, "", "")
	s.Require().NoError(err)

	s.Require().NoError(s.tmpl.UpdateProgress(s.ctx, conv.ID, 10, "starting", "init"))
	s.Require().NoError(s.tmpl.UpdateProgress(s.ctx, conv.ID, 80, "almost there", "finalize"))

	got, err := s.tmpl.GetProgress(s.ctx, conv.ID)
	s.Require().NoError(err)
	s.Require().NotNil(got)
	s.Equal(80, got.Percent)
	s.Equal("almost there", got.StatusMessage.String)
	s.Equal("finalize", got.StepName.String)

	none, err := s.tmpl.GetProgress(s.ctx, "missing")
	s.Require().NoError(err)
	s.Nil(none)
}

func TestLocalFilesystem(t *testing.T) {
	tests := []struct {
		path  string
		local bool
	}{
		{"/home/user/.review-gate/review_gate.db", true},
		{"/Volumes/Share/review_gate.db", false},
		{"/mnt/nfs/data/review_gate.db", false},
		{"/srv/smb/review_gate.db", false},
	}
	for _, tt := range tests {
		if got := localFilesystem(tt.path); got != tt.local {
			t.Errorf("localFilesystem(%q) = %v, want %v", tt.path, got, tt.local)
		}
	}
}
