package mcp

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/suite"

	"github.com/HexSleeves/Review-Gate/internal/config"
	"github.com/HexSleeves/Review-Gate/internal/db"
	"github.com/HexSleeves/Review-Gate/internal/docstore"
	"github.com/HexSleeves/Review-Gate/internal/rendezvous"
	"github.com/HexSleeves/Review-Gate/internal/session"
	"github.com/HexSleeves/Review-Gate/internal/speech"
	"github.com/HexSleeves/Review-Gate/internal/worker/sse"
	"github.com/HexSleeves/Review-Gate/pkg/wire"
)

type HandlersSuite struct {
	suite.Suite

	ctx      context.Context
	docs     *docstore.Store
	store    *db.Store
	handlers *Handlers
}

func (s *HandlersSuite) SetupTest() {
	s.ctx = context.Background()

	shareDir := s.T().TempDir()
	s.docs = docstore.New(shareDir)

	store, err := db.NewStore(db.Config{Path: filepath.Join(s.T().TempDir(), "test.db")})
	s.Require().NoError(err)
	s.store = store

	cfg := config.Default()
	cfg.ShareDir = shareDir
	cfg.AckTimeoutSeconds = 1

	rdv := rendezvous.New(s.docs, rendezvous.Options{PollInterval: 20 * time.Millisecond})
	orch := session.NewOrchestrator(db.NewSessionStore(store), db.NewConversationStore(store))

	s.handlers = NewHandlers(cfg, rdv, orch, store, speech.Unavailable("test"), sse.NewBroadcaster())
}

func (s *HandlersSuite) TearDownTest() {
	s.Require().NoError(s.store.Close())
}

func TestHandlersSuite(t *testing.T) {
	suite.Run(t, new(HandlersSuite))
}

func callRequest(name string, args map[string]any) mcpgo.CallToolRequest {
	req := mcpgo.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func textOf(s *HandlersSuite, result *mcpgo.CallToolResult) string {
	s.Require().NotEmpty(result.Content)
	text, ok := result.Content[0].(mcpgo.TextContent)
	s.Require().True(ok, "first content should be text")
	return text.Text
}

// respond plays the Cursor extension: it waits for the trigger document,
// optionally acknowledges it, then writes the response file.
func (s *HandlersSuite) respond(ack bool, resp wire.Response) {
	go func() {
		deadline := time.Now().Add(5 * time.Second)
		for time.Now().Before(deadline) {
			var trigger wire.Trigger
			if err := s.docs.ReadJSON(rendezvous.TriggerFile, &trigger); err == nil {
				triggerID, _ := trigger.Data["trigger_id"].(string)
				if ack {
					_ = s.docs.Write(rendezvous.AckFile(triggerID), wire.Ack{Acknowledged: true})
				}
				resp.TriggerID = triggerID
				_ = s.docs.Write("review_gate_response_"+triggerID+".json", resp)
				_ = s.docs.Delete(rendezvous.TriggerFile)
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	}()
}

func (s *HandlersSuite) TestReviewGateChat() {
	s.respond(true, wire.Response{
		UserInput: "Looks good, ship it",
		Attachments: []wire.Attachment{
			{MimeType: "image/png", FileName: "diff.png", Base64Data: "aGVsbG8="},
		},
	})

	result, err := s.handlers.ReviewGateChat(s.ctx, callRequest("review_gate_chat", map[string]any{
		"message": "Please review the diff",
	}))
	s.Require().NoError(err)

	text := textOf(s, result)
	s.Contains(text, "User Response: Looks good, ship it")
	s.Contains(text, "Attached: Image: diff.png")

	s.Require().Len(result.Content, 2)
	image, ok := result.Content[1].(mcpgo.ImageContent)
	s.Require().True(ok, "second content should be an image")
	s.Equal("image/png", image.MIMEType)
	s.Equal("aGVsbG8=", image.Data)

	// The whole exchange is recorded against one completed conversation.
	convs, err := db.NewConversationStore(s.store).List(s.ctx, 10, 0, db.ConversationCompleted)
	s.Require().NoError(err)
	s.Require().Len(convs, 1)

	messages, err := db.NewConversationStore(s.store).GetMessages(s.ctx, convs[0].ID, 10, 0)
	s.Require().NoError(err)
	s.Require().Len(messages, 2)
	s.Equal(db.RoleAssistant, messages[0].Role)
	s.Equal("Please review the diff", messages[0].Content)
	s.Equal(db.RoleUser, messages[1].Role)
}

func (s *HandlersSuite) TestQuickReviewReturnsRawInput() {
	s.respond(false, wire.Response{Response: "yes, proceed"})

	result, err := s.handlers.QuickReview(s.ctx, callRequest("quick_review", map[string]any{
		"prompt": "Proceed with the migration?",
	}))
	s.Require().NoError(err)
	s.Equal("yes, proceed", textOf(s, result))
}

func (s *HandlersSuite) TestFileReviewFormatsSelection() {
	s.respond(false, wire.Response{UserInput: "main.go, handlers.go"})

	result, err := s.handlers.FileReview(s.ctx, callRequest("file_review", map[string]any{
		"instruction": "Pick the files to audit",
		"file_types":  []any{".go"},
	}))
	s.Require().NoError(err)

	text := textOf(s, result)
	s.Contains(text, "File Review completed!")
	s.Contains(text, "**Selected Files:** main.go, handlers.go")
	s.Contains(text, "**Allowed Types:** .go")
}

func (s *HandlersSuite) TestIngestTextRequiresContent() {
	result, err := s.handlers.IngestText(s.ctx, callRequest("ingest_text", map[string]any{}))
	s.Require().NoError(err)
	s.True(result.IsError)
}

func (s *HandlersSuite) TestIngestTextCollectsFeedback() {
	s.respond(false, wire.Response{Message: "summarize it"})

	result, err := s.handlers.IngestText(s.ctx, callRequest("ingest_text", map[string]any{
		"text_content": "lorem ipsum",
		"source":       "clipboard",
	}))
	s.Require().NoError(err)

	text := textOf(s, result)
	s.Contains(text, "Text ingestion completed!")
	s.Contains(text, "Original Text: lorem ipsum")
	s.Contains(text, "User Response: summarize it")
	s.Contains(text, "Source: clipboard")
}

func (s *HandlersSuite) TestGetUserInputRetrieved() {
	s.Require().NoError(s.docs.Write("mcp_response.json", wire.Response{UserInput: "stashed answer"}))

	result, err := s.handlers.GetUserInput(s.ctx, callRequest("get_user_input", map[string]any{
		"timeout": 2,
	}))
	s.Require().NoError(err)

	text := textOf(s, result)
	s.Contains(text, "User Input Retrieved")
	s.Contains(text, "User Response: stashed answer")
	s.Contains(text, "Source File: mcp_response.json")
	s.False(s.docs.Exists("mcp_response.json"))
}

func (s *HandlersSuite) TestGetUserInputTimesOut() {
	result, err := s.handlers.GetUserInput(s.ctx, callRequest("get_user_input", map[string]any{
		"timeout": 1,
	}))
	s.Require().NoError(err)
	s.Contains(textOf(s, result), "No user input found within 1 seconds")
}

func (s *HandlersSuite) TestShutdownConfirmed() {
	s.respond(false, wire.Response{UserInput: "confirm"})

	result, err := s.handlers.ShutdownMCP(s.ctx, callRequest("shutdown_mcp", map[string]any{
		"reason": "done for the day",
	}))
	s.Require().NoError(err)

	s.Contains(textOf(s, result), "shutdown_mcp CONFIRMED!")
	select {
	case <-s.handlers.shutdown:
	default:
		s.Fail("shutdown channel should be closed")
	}
	s.Contains(s.handlers.ShutdownReason(), "User confirmed: confirm")
}

func (s *HandlersSuite) TestShutdownCancelledByAlternative() {
	s.respond(false, wire.Response{UserInput: "actually, fix the tests first"})

	result, err := s.handlers.ShutdownMCP(s.ctx, callRequest("shutdown_mcp", nil))
	s.Require().NoError(err)

	s.Contains(textOf(s, result), "shutdown_mcp CANCELLED")
	select {
	case <-s.handlers.shutdown:
		s.Fail("shutdown channel should stay open")
	default:
	}
}

func (s *HandlersSuite) TestSessionReusedAcrossCalls() {
	s.respond(false, wire.Response{Response: "first"})
	_, err := s.handlers.QuickReview(s.ctx, callRequest("quick_review", nil))
	s.Require().NoError(err)

	first := s.handlers.sessionUUID
	s.Require().NotEmpty(first)

	s.respond(false, wire.Response{Response: "second"})
	_, err = s.handlers.QuickReview(s.ctx, callRequest("quick_review", nil))
	s.Require().NoError(err)

	s.Equal(first, s.handlers.sessionUUID)
}
