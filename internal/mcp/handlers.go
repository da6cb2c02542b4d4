package mcp

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog/log"

	"github.com/HexSleeves/Review-Gate/internal/config"
	"github.com/HexSleeves/Review-Gate/internal/db"
	"github.com/HexSleeves/Review-Gate/internal/rendezvous"
	"github.com/HexSleeves/Review-Gate/internal/session"
	"github.com/HexSleeves/Review-Gate/internal/speech"
	"github.com/HexSleeves/Review-Gate/internal/worker/sse"
	"github.com/HexSleeves/Review-Gate/pkg/wire"
)

// Defaults shown when a tool call omits the optional arguments.
const (
	defaultChatMessage     = "Please provide your review or feedback:"
	defaultChatTitle       = "Review Gate V3 - ゲート"
	defaultQuickPrompt     = "Quick feedback needed:"
	defaultFileInstruction = "Please select file(s) for review:"
	defaultShutdownReason  = "Task completed successfully"
)

// confirmKeywords are the only responses that confirm a shutdown.
var confirmKeywords = map[string]bool{
	"CONFIRM":  true,
	"YES":      true,
	"Y":        true,
	"SHUTDOWN": true,
	"PROCEED":  true,
}

// Handlers implements the tool callbacks over the rendezvous and stores.
type Handlers struct {
	cfg       *config.Config
	rdv       *rendezvous.Rendezvous
	orch      *session.Orchestrator
	store     *db.Store
	sessions  *db.SessionStore
	convs     *db.ConversationStore
	templates *db.TemplateStore
	speech    speech.Availability
	broadcast *sse.Broadcaster

	mu          sync.Mutex
	sessionUUID string

	shutdown       chan struct{}
	shutdownOnce   sync.Once
	shutdownReason string
}

// NewHandlers builds the tool handler set.
func NewHandlers(cfg *config.Config, rdv *rendezvous.Rendezvous, orch *session.Orchestrator, store *db.Store, avail speech.Availability, broadcast *sse.Broadcaster) *Handlers {
	return &Handlers{
		cfg:       cfg,
		rdv:       rdv,
		orch:      orch,
		store:     store,
		sessions:  db.NewSessionStore(store),
		convs:     db.NewConversationStore(store),
		templates: db.NewTemplateStore(store),
		speech:    avail,
		broadcast: broadcast,
		shutdown:  make(chan struct{}),
	}
}

// ShutdownReason reports why the shutdown channel was closed.
func (h *Handlers) ShutdownReason() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.shutdownReason
}

func (h *Handlers) requestShutdown(reason string) {
	h.mu.Lock()
	h.shutdownReason = reason
	h.mu.Unlock()
	h.shutdownOnce.Do(func() { close(h.shutdown) })
}

// resolveSession keeps one session alive across tool calls, refreshing
// its heartbeat on every exchange.
func (h *Handlers) resolveSession(ctx context.Context) string {
	h.mu.Lock()
	current := h.sessionUUID
	h.mu.Unlock()

	resolved := h.orch.ResolveSession(ctx, current)

	h.mu.Lock()
	h.sessionUUID = resolved
	h.mu.Unlock()
	return resolved
}

func newTriggerID(prefix string) string {
	return fmt.Sprintf("%s_%d", prefix, time.Now().UnixMilli())
}

// reportProgress mirrors one progress update to the shared directory,
// the database and any connected status pages.
func (h *Handlers) reportProgress(ctx context.Context, conversationID, title string, percent int, step, status string) {
	if err := h.rdv.PublishProgress(title, float64(percent), step, status); err != nil {
		log.Warn().Err(err).Msg("progress document write failed")
	}
	if conversationID != "" {
		if err := h.templates.UpdateProgress(ctx, conversationID, percent, status, step); err != nil {
			log.Warn().Err(err).Str("conversation", conversationID).Msg("progress row update failed")
		}
	}
	if h.broadcast != nil {
		h.broadcast.Broadcast(map[string]any{
			"type":            "progress_update",
			"conversation_id": conversationID,
			"title":           title,
			"percentage":      percent,
			"step":            step,
			"status":          status,
		})
	}
}

// exchange publishes one trigger document and waits for the matching
// response, recording the whole round trip in the conversation log.
// The returned published flag distinguishes trigger failure from a
// response timeout.
func (h *Handlers) exchange(ctx context.Context, payload map[string]any, title, prompt string, timeout time.Duration, waitAck bool) (text string, attachments []wire.Attachment, answered, published bool) {
	triggerID, _ := payload["trigger_id"].(string)
	contextText, _ := payload["context"].(string)

	sessionUUID := h.resolveSession(ctx)
	conversationID := h.orch.ResolveConversation(ctx, sessionUUID, title, contextText)

	if err := h.rdv.Publish(ctx, payload); err != nil {
		log.Error().Err(err).Str("trigger_id", triggerID).Msg("trigger publish failed")
		return "", nil, false, false
	}

	h.reportProgress(ctx, conversationID, title, 0, "waiting", "Waiting for user input")

	if waitAck {
		if h.rdv.AwaitAck(ctx, triggerID, h.cfg.AckTimeout()) {
			log.Info().Str("trigger_id", triggerID).Msg("extension acknowledged popup activation")
		} else {
			log.Warn().Str("trigger_id", triggerID).Msg("no extension acknowledgement, popup may not have opened")
		}
	}

	text, attachments, answered = h.rdv.AwaitResponse(ctx, triggerID, timeout)

	if answered {
		h.reportProgress(ctx, conversationID, title, 100, "complete", "Response received")
	} else {
		h.reportProgress(ctx, conversationID, title, 100, "timeout", "No response received")
	}
	if err := h.rdv.ClearProgress(); err != nil {
		log.Debug().Err(err).Msg("progress document clear failed")
	}

	h.orch.RecordExchange(ctx, conversationID, prompt, text, attachments, answered)
	return text, attachments, answered, true
}

// ReviewGateChat opens the main review popup and waits up to five
// minutes for the reply, passing image attachments through to the
// client.
func (h *Handlers) ReviewGateChat(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	message := request.GetString("message", defaultChatMessage)
	title := request.GetString("title", defaultChatTitle)
	contextText := request.GetString("context", "")
	urgent := request.GetBool("urgent", false)

	triggerID := newTriggerID("review")
	log.Info().Str("trigger_id", triggerID).Str("title", title).Msg("activating review gate chat popup")

	text, attachments, answered, published := h.exchange(ctx, map[string]any{
		"tool":                 "review_gate_chat",
		"message":              message,
		"title":                title,
		"context":              contextText,
		"urgent":               urgent,
		"trigger_id":           triggerID,
		"timestamp":            wire.Now(),
		"immediate_activation": true,
	}, title, message, h.cfg.ResponseTimeout(), true)

	if !published {
		return mcp.NewToolResultText("ERROR: Failed to trigger Review Gate popup"), nil
	}
	if !answered {
		return mcp.NewToolResultText("TIMEOUT: No user input received for review gate within 5 minutes"), nil
	}

	content := []mcp.Content{mcp.TextContent{Type: "text", Text: "User Response: " + text}}
	for _, att := range attachments {
		if strings.HasPrefix(att.MimeType, "image/") {
			content = append(content, mcp.ImageContent{
				Type:     "image",
				Data:     att.Base64Data,
				MIMEType: att.MimeType,
			})
		}
	}
	return &mcp.CallToolResult{Content: content}, nil
}

// QuickReview opens a lightweight prompt and returns the raw reply.
func (h *Handlers) QuickReview(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	prompt := request.GetString("prompt", defaultQuickPrompt)
	contextText := request.GetString("context", "")

	triggerID := newTriggerID("quick")
	log.Info().Str("trigger_id", triggerID).Str("prompt", prompt).Msg("activating quick review popup")

	text, _, answered, published := h.exchange(ctx, map[string]any{
		"tool":                 "quick_review",
		"prompt":               prompt,
		"context":              contextText,
		"title":                "Quick Review - Review Gate v3",
		"trigger_id":           triggerID,
		"timestamp":            wire.Now(),
		"immediate_activation": true,
	}, "Quick Review - Review Gate v3", prompt, config.DefaultQuickTimeout, false)

	if !published {
		return mcp.NewToolResultText("ERROR: Failed to trigger quick review popup"), nil
	}
	if !answered {
		return mcp.NewToolResultText("TIMEOUT: No quick review input received within 1.5 minutes"), nil
	}
	return mcp.NewToolResultText(text), nil
}

// FileReview asks the user to pick files and reports the selection.
func (h *Handlers) FileReview(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	instruction := request.GetString("instruction", defaultFileInstruction)
	fileTypes := request.GetStringSlice("file_types", []string{"*"})

	triggerID := newTriggerID("file")
	log.Info().Str("trigger_id", triggerID).Str("instruction", instruction).Msg("activating file review popup")

	text, _, answered, published := h.exchange(ctx, map[string]any{
		"tool":                 "file_review",
		"instruction":          instruction,
		"file_types":           fileTypes,
		"title":                "File Review - Review Gate v3",
		"trigger_id":           triggerID,
		"timestamp":            wire.Now(),
		"immediate_activation": true,
	}, "File Review - Review Gate v3", instruction, config.DefaultQuickTimeout, false)

	var response string
	switch {
	case !published:
		response = "⚠️ File Review trigger failed. Manual activation may be needed."
	case answered:
		response = fmt.Sprintf("📁 File Review completed!\n\n**Selected Files:** %s\n\n**Instruction:** %s\n**Allowed Types:** %s\n\nYou can now proceed to analyze the selected files.",
			text, instruction, strings.Join(fileTypes, ", "))
	default:
		response = fmt.Sprintf("⏰ File Review timed out.\n\n**Instruction:** %s\n\nNo files selected within 1.5 minutes. Try again or proceed with current workspace files.", instruction)
	}
	return mcp.NewToolResultText(response), nil
}

// IngestText presents a block of text and collects feedback on it.
func (h *Handlers) IngestText(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	textContent, err := request.RequireString("text_content")
	if err != nil {
		return mcp.NewToolResultError("text_content argument is required and must be a string"), nil
	}
	source := request.GetString("source", "extension")
	contextText := request.GetString("context", "")
	processingMode := request.GetString("processing_mode", "immediate")

	triggerID := newTriggerID("ingest")
	log.Info().Str("trigger_id", triggerID).Str("source", source).Msg("activating text ingestion popup")

	text, _, answered, published := h.exchange(ctx, map[string]any{
		"tool":                 "ingest_text",
		"text_content":         textContent,
		"source":               source,
		"context":              contextText,
		"processing_mode":      processingMode,
		"title":                "Text Ingestion - Review Gate v3",
		"message":              "Text to process: " + textContent,
		"trigger_id":           triggerID,
		"timestamp":            wire.Now(),
		"immediate_activation": true,
	}, "Text Ingestion - Review Gate v3", "Text to process: "+textContent, config.DefaultIngestTimeout, false)

	var response string
	switch {
	case !published:
		response = fmt.Sprintf("⚠️ Text ingestion trigger failed.\n\n📝 Text Content: %s\nManual activation may be needed.", textContent)
	case answered:
		response = fmt.Sprintf("✅ Text ingestion completed!\n\n📝 Original Text: %s\n💬 User Response: %s\n📍 Source: %s\n💭 Context: %s\n⚙️ Processing Mode: %s\n\n🎯 The text has been processed and user feedback collected successfully.",
			textContent, text, source, contextText, processingMode)
	default:
		response = fmt.Sprintf("⏰ Text ingestion timed out.\n\n📝 Text Content: %s\n📍 Source: %s\n\nNo user response received within 2 minutes. The text content is noted but no additional processing occurred.",
			textContent, source)
	}
	return mcp.NewToolResultText(response), nil
}

// GetUserInput scans every response location for input that is already
// waiting, without opening a popup or filtering by trigger id.
func (h *Handlers) GetUserInput(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	timeout := request.GetInt("timeout", 10)
	if timeout <= 0 {
		timeout = 10
	}

	log.Info().Int("timeout_seconds", timeout).Msg("checking for user input")

	text, source, found := h.rdv.CollectAny(ctx, time.Duration(timeout)*time.Second)
	if found {
		message := fmt.Sprintf("✅ User Input Retrieved\n\n💬 User Response: %s\n📁 Source File: %s\n⏰ Retrieved at: %s\n\n🎯 User input successfully captured from Review Gate.",
			text, source, wire.Now())
		return mcp.NewToolResultText(message), nil
	}

	message := fmt.Sprintf("⏰ No user input found within %d seconds\n\n🔍 Checked patterns: %s\n💡 User may not have provided input yet, or the popup may not be active.\n\n🎯 Try calling this tool again after the user provides input.",
		timeout, strings.Join([]string{
			rendezvous.ResponseGlob,
			rendezvous.GenericResponseFile,
			rendezvous.MCPResponseGlob,
			rendezvous.GenericMCPResponseFile,
		}, ", "))
	return mcp.NewToolResultText(message), nil
}

// ShutdownMCP asks the user to confirm a graceful shutdown. Anything
// other than a confirmation keyword cancels it.
func (h *Handlers) ShutdownMCP(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	reason := request.GetString("reason", defaultShutdownReason)
	immediate := request.GetBool("immediate", false)
	cleanup := request.GetBool("cleanup", true)

	triggerID := newTriggerID("shutdown")
	log.Info().Str("trigger_id", triggerID).Str("reason", reason).Msg("activating shutdown confirmation popup")

	text, _, answered, published := h.exchange(ctx, map[string]any{
		"tool":                 "shutdown_mcp",
		"reason":               reason,
		"immediate":            immediate,
		"cleanup":              cleanup,
		"title":                "Shutdown - Review Gate v3",
		"trigger_id":           triggerID,
		"timestamp":            wire.Now(),
		"immediate_activation": true,
	}, "Shutdown - Review Gate v3", reason, config.DefaultShutdownTimeout, false)

	var response string
	switch {
	case !published:
		response = "⚠️ shutdown_mcp trigger failed. Manual activation may be needed."
	case answered && confirmKeywords[strings.ToUpper(strings.TrimSpace(text))]:
		h.requestShutdown("User confirmed: " + strings.TrimSpace(text))
		response = fmt.Sprintf("🛑 shutdown_mcp CONFIRMED!\n\n**User Confirmation:** %s\n\n**Reason:** %s\n**Immediate:** %t\n**Cleanup:** %t\n\n✅ MCP server will now shut down gracefully...",
			text, reason, immediate, cleanup)
	case answered:
		response = fmt.Sprintf("💡 shutdown_mcp CANCELLED - Alternative instructions received!\n\n**User Response:** %s\n\n**Original Reason:** %s\n\nShutdown cancelled. User provided alternative instructions instead of confirmation.",
			text, reason)
	default:
		response = fmt.Sprintf("⏰ shutdown_mcp timed out.\n\n**Reason:** %s\n\nNo response received within 1 minute. Shutdown cancelled due to timeout.", reason)
	}
	return mcp.NewToolResultText(response), nil
}
