package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm/logger"

	"github.com/HexSleeves/Review-Gate/internal/db"
	"github.com/HexSleeves/Review-Gate/internal/docstore"
	"github.com/HexSleeves/Review-Gate/internal/rendezvous"
	"github.com/HexSleeves/Review-Gate/pkg/wire"
)

type OrchestratorSuite struct {
	suite.Suite
	ctx      context.Context
	store    *db.Store
	sessions *db.SessionStore
	convs    *db.ConversationStore
	orch     *Orchestrator
}

func (s *OrchestratorSuite) SetupTest() {
	s.ctx = context.Background()

	store, err := db.NewStore(db.Config{
		Path:     filepath.Join(s.T().TempDir(), "review_gate.db"),
		LogLevel: logger.Silent,
	})
	s.Require().NoError(err)
	s.store = store
	s.sessions = db.NewSessionStore(store)
	s.convs = db.NewConversationStore(store)
	s.orch = NewOrchestrator(s.sessions, s.convs)
}

func (s *OrchestratorSuite) TearDownTest() {
	s.Require().NoError(s.store.Close())
}

func TestOrchestratorSuite(t *testing.T) {
	suite.Run(t, new(OrchestratorSuite))
}

func (s *OrchestratorSuite) TestResolveSessionCreates() {
	id := s.orch.ResolveSession(s.ctx, "")
	s.Require().NotEmpty(id)

	sess, err := s.sessions.Get(s.ctx, id)
	s.Require().NoError(err)
	s.Require().NotNil(sess)
	s.Equal(db.SessionActive, sess.Status)
}

func (s *OrchestratorSuite) TestResolveSessionRefreshesHeartbeat() {
	id := s.orch.ResolveSession(s.ctx, "")
	before, err := s.sessions.Get(s.ctx, id)
	s.Require().NoError(err)

	time.Sleep(5 * time.Millisecond)
	again := s.orch.ResolveSession(s.ctx, id)
	s.Equal(id, again)

	after, err := s.sessions.Get(s.ctx, id)
	s.Require().NoError(err)
	s.Greater(after.HeartbeatAt, before.HeartbeatAt)
}

func (s *OrchestratorSuite) TestResolveSessionAdoptsUnknownUUID() {
	supplied := uuid.NewString()
	got := s.orch.ResolveSession(s.ctx, supplied)
	s.Equal(supplied, got)

	sess, err := s.sessions.Get(s.ctx, supplied)
	s.Require().NoError(err)
	s.NotNil(sess)
}

func (s *OrchestratorSuite) TestResolveSessionEphemeralOnStoreFailure() {
	s.Require().NoError(s.store.Close())

	id := s.orch.ResolveSession(s.ctx, "")
	s.NotEmpty(id)

	// Reopen so teardown can close cleanly.
	store, err := db.NewStore(db.Config{
		Path:     filepath.Join(s.T().TempDir(), "reopened.db"),
		LogLevel: logger.Silent,
	})
	s.Require().NoError(err)
	s.store = store
}

func (s *OrchestratorSuite) TestResolveConversationReusesActive() {
	sessionID := s.orch.ResolveSession(s.ctx, "")

	first := s.orch.ResolveConversation(s.ctx, sessionID, "Review", "ctx")
	second := s.orch.ResolveConversation(s.ctx, sessionID, "ignored", "")
	s.Equal(first, second)

	s.Require().NoError(s.convs.UpdateStatus(s.ctx, first, db.ConversationCompleted))
	third := s.orch.ResolveConversation(s.ctx, sessionID, "Next", "")
	s.NotEqual(first, third)
}

func (s *OrchestratorSuite) TestRecordExchangeAnswered() {
	sessionID := s.orch.ResolveSession(s.ctx, "")
	convID := s.orch.ResolveConversation(s.ctx, sessionID, "Review", "")

	attachments := []wire.Attachment{{MimeType: "image/png", FileName: "shot.png", Base64Data: "QUJD"}}
	s.orch.RecordExchange(s.ctx, convID, "Please review", "Looks fine", attachments, true)

	msgs, err := s.convs.GetMessages(s.ctx, convID, 50, 0)
	s.Require().NoError(err)
	s.Require().Len(msgs, 2)
	s.Equal(db.RoleAssistant, msgs[0].Role)
	s.Equal("Please review", msgs[0].Content)
	s.Equal(db.RoleUser, msgs[1].Role)
	s.Len(msgs[1].Attachments, 1)

	conv, err := s.convs.Get(s.ctx, convID)
	s.Require().NoError(err)
	s.Equal(db.ConversationCompleted, conv.Status)
}

func (s *OrchestratorSuite) TestRecordExchangeTimeout() {
	sessionID := s.orch.ResolveSession(s.ctx, "")
	convID := s.orch.ResolveConversation(s.ctx, sessionID, "Review", "")

	s.orch.RecordExchange(s.ctx, convID, "Please review", "", nil, false)

	msgs, err := s.convs.GetMessages(s.ctx, convID, 50, 0)
	s.Require().NoError(err)
	s.Require().Len(msgs, 1)
	s.Equal(db.RoleAssistant, msgs[0].Role)

	conv, err := s.convs.Get(s.ctx, convID)
	s.Require().NoError(err)
	s.Equal(db.ConversationTimeout, conv.Status)
}

func TestReaperSweep(t *testing.T) {
	ctx := context.Background()

	store, err := db.NewStore(db.Config{
		Path:     filepath.Join(t.TempDir(), "review_gate.db"),
		LogLevel: logger.Silent,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	sessions := db.NewSessionStore(store)
	docs := docstore.New(t.TempDir())
	rdv := rendezvous.New(docs, rendezvous.Options{})

	sess, err := sessions.Create(ctx, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.DB.Model(&db.Session{}).
		Where("uuid = ?", sess.UUID).
		Update("heartbeat_at", wire.Format(time.Now().Add(-time.Minute))).Error; err != nil {
		t.Fatal(err)
	}
	if err := docs.WriteRaw(rendezvous.TriggerFile, []byte("{}")); err != nil {
		t.Fatal(err)
	}

	r := NewReaper(sessions, rdv)
	r.sweep(ctx)

	got, err := sessions.Get(ctx, sess.UUID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != db.SessionStale {
		t.Errorf("expected stale session, got %s", got.Status)
	}
	if docs.Exists(rendezvous.TriggerFile) {
		t.Error("expected trigger file swept")
	}
}
