package mcp

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	json "github.com/goccy/go-json"

	"github.com/HexSleeves/Review-Gate/internal/config"
	"github.com/HexSleeves/Review-Gate/internal/db"
	"github.com/HexSleeves/Review-Gate/pkg/wire"
)

const resourceScheme = "review-gate://"

// registerResources declares the read-only resource surface: the
// conversation log with its checkpoints, the active sessions, the prompt
// templates and the live configuration.
func (s *Server) registerResources() {
	s.mcp.AddResource(mcp.NewResource(
		resourceScheme+"conversations",
		"conversations",
		mcp.WithResourceDescription("List all Review Gate conversations (paginated, max 50)"),
		mcp.WithMIMEType("application/json"),
	), s.handlers.readConversations)

	s.mcp.AddResource(mcp.NewResource(
		resourceScheme+"conversations/active",
		"active_conversation",
		mcp.WithResourceDescription("Get the currently active conversation"),
		mcp.WithMIMEType("application/json"),
	), s.handlers.readActiveConversation)

	s.mcp.AddResource(mcp.NewResource(
		resourceScheme+"sessions",
		"sessions",
		mcp.WithResourceDescription("List all active Review Gate sessions"),
		mcp.WithMIMEType("application/json"),
	), s.handlers.readSessions)

	s.mcp.AddResource(mcp.NewResource(
		resourceScheme+"templates",
		"templates",
		mcp.WithResourceDescription("List all available prompt templates"),
		mcp.WithMIMEType("application/json"),
	), s.handlers.readTemplates)

	s.mcp.AddResource(mcp.NewResource(
		resourceScheme+"config",
		"config",
		mcp.WithResourceDescription("Current Review Gate configuration"),
		mcp.WithMIMEType("application/json"),
	), s.handlers.readConfig)

	s.mcp.AddResource(mcp.NewResource(
		resourceScheme+"status",
		"status",
		mcp.WithResourceDescription("Review Gate server status and statistics"),
		mcp.WithMIMEType("application/json"),
	), s.handlers.readStatus)

	s.mcp.AddResourceTemplate(mcp.NewResourceTemplate(
		resourceScheme+"conversations/{id}",
		"conversation",
		mcp.WithTemplateDescription("A single conversation with its messages"),
		mcp.WithTemplateMIMEType("application/json"),
	), s.handlers.readConversation)

	s.mcp.AddResourceTemplate(mcp.NewResourceTemplate(
		resourceScheme+"templates/{name}",
		"template",
		mcp.WithTemplateDescription("A single prompt template"),
		mcp.WithTemplateMIMEType("application/json"),
	), s.handlers.readTemplate)

	s.mcp.AddResourceTemplate(mcp.NewResourceTemplate(
		resourceScheme+"sessions/{uuid}",
		"session",
		mcp.WithTemplateDescription("A single session with its active conversation"),
		mcp.WithTemplateMIMEType("application/json"),
	), s.handlers.readSession)

	s.mcp.AddResourceTemplate(mcp.NewResourceTemplate(
		resourceScheme+"checkpoints/{conversation_id}",
		"checkpoints",
		mcp.WithTemplateDescription("Checkpoints saved for a conversation"),
		mcp.WithTemplateMIMEType("application/json"),
	), s.handlers.readCheckpoints)
}

func resourceJSON(uri string, payload any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{mcp.TextResourceContents{
		URI:      uri,
		MIMEType: "application/json",
		Text:     string(data),
	}}, nil
}

type conversationSummary struct {
	ID          string `json:"id"`
	SessionUUID string `json:"session_uuid"`
	Title       string `json:"title,omitempty"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

func summarize(c *db.Conversation) conversationSummary {
	return conversationSummary{
		ID:          c.ID,
		SessionUUID: c.SessionUUID,
		Title:       c.Title.String,
		Status:      c.Status,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

type messageView struct {
	ID          string            `json:"id"`
	Role        string            `json:"role"`
	Content     string            `json:"content"`
	Timestamp   string            `json:"timestamp"`
	Attachments db.AttachmentList `json:"attachments,omitempty"`
}

func conversationDetail(conv *db.Conversation, messages []db.Message) map[string]any {
	views := make([]messageView, 0, len(messages))
	for _, m := range messages {
		views = append(views, messageView{
			ID:          m.ID,
			Role:        m.Role,
			Content:     m.Content,
			Timestamp:   m.Timestamp,
			Attachments: m.Attachments,
		})
	}
	return map[string]any{
		"id":            conv.ID,
		"session_uuid":  conv.SessionUUID,
		"title":         conv.Title.String,
		"context":       conv.Context.String,
		"status":        conv.Status,
		"created_at":    conv.CreatedAt,
		"updated_at":    conv.UpdatedAt,
		"message_count": len(views),
		"messages":      views,
	}
}

func (h *Handlers) readConversations(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	conversations, err := h.convs.List(ctx, config.DefaultListLimit, 0, "")
	if err != nil {
		return nil, err
	}
	summaries := make([]conversationSummary, 0, len(conversations))
	for i := range conversations {
		summaries = append(summaries, summarize(&conversations[i]))
	}
	return resourceJSON(request.Params.URI, map[string]any{
		"count":         len(summaries),
		"conversations": summaries,
	})
}

func (h *Handlers) readActiveConversation(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	conversations, err := h.convs.List(ctx, 1, 0, db.ConversationActive)
	if err != nil {
		return nil, err
	}
	if len(conversations) == 0 {
		return resourceJSON(request.Params.URI, map[string]string{
			"error":   "No active conversation found",
			"message": "Start a new conversation using the review_gate_chat tool",
		})
	}

	conv := &conversations[0]
	messages, err := h.convs.GetMessages(ctx, conv.ID, 0, 0)
	if err != nil {
		return nil, err
	}
	return resourceJSON(request.Params.URI, conversationDetail(conv, messages))
}

func (h *Handlers) readConversation(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	id := strings.TrimPrefix(request.Params.URI, resourceScheme+"conversations/")

	conv, err := h.convs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return resourceJSON(request.Params.URI, map[string]string{
			"error": "Conversation not found",
			"id":    id,
		})
	}

	messages, err := h.convs.GetMessages(ctx, id, 0, 0)
	if err != nil {
		return nil, err
	}
	return resourceJSON(request.Params.URI, conversationDetail(conv, messages))
}

func (h *Handlers) readSessions(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	sessions, err := h.sessions.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	views := make([]map[string]any, 0, len(sessions))
	for _, sess := range sessions {
		views = append(views, map[string]any{
			"uuid":         sess.UUID,
			"created_at":   sess.CreatedAt,
			"updated_at":   sess.UpdatedAt,
			"expires_at":   sess.ExpiresAt,
			"heartbeat_at": sess.HeartbeatAt,
		})
	}
	return resourceJSON(request.Params.URI, map[string]any{
		"count":    len(views),
		"sessions": views,
	})
}

func (h *Handlers) readSession(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	sessionUUID := strings.TrimPrefix(request.Params.URI, resourceScheme+"sessions/")

	sess, err := h.sessions.Get(ctx, sessionUUID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return resourceJSON(request.Params.URI, map[string]string{
			"error":        "Session not found",
			"session_uuid": sessionUUID,
		})
	}

	conv, err := h.convs.GetActiveBySession(ctx, sessionUUID)
	if err != nil {
		return nil, err
	}
	var convView map[string]any
	if conv != nil {
		convView = map[string]any{
			"id":    conv.ID,
			"title": conv.Title.String,
		}
	}
	return resourceJSON(request.Params.URI, map[string]any{
		"uuid":         sess.UUID,
		"status":       sess.Status,
		"created_at":   sess.CreatedAt,
		"updated_at":   sess.UpdatedAt,
		"expires_at":   sess.ExpiresAt,
		"heartbeat_at": sess.HeartbeatAt,
		"conversation": convView,
	})
}

func (h *Handlers) readCheckpoints(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	conversationID := strings.TrimPrefix(request.Params.URI, resourceScheme+"checkpoints/")

	checkpoints, err := h.convs.ListCheckpoints(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	views := make([]map[string]any, 0, len(checkpoints))
	for _, cp := range checkpoints {
		views = append(views, map[string]any{
			"id":         cp.ID,
			"name":       cp.Name,
			"created_at": cp.CreatedAt,
		})
	}
	return resourceJSON(request.Params.URI, map[string]any{
		"conversation_id": conversationID,
		"count":           len(views),
		"checkpoints":     views,
	})
}

func (h *Handlers) readTemplates(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	templates, err := h.templates.ListTemplates(ctx, "")
	if err != nil {
		return nil, err
	}

	summaries := make([]map[string]any, 0, len(templates))
	for _, t := range templates {
		summaries = append(summaries, map[string]any{
			"name":        t.Name,
			"title":       t.Title,
			"description": t.Description.String,
			"category":    t.Category.String,
		})
	}
	return resourceJSON(request.Params.URI, map[string]any{
		"count":     len(summaries),
		"templates": summaries,
	})
}

func (h *Handlers) readTemplate(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	name := strings.TrimPrefix(request.Params.URI, resourceScheme+"templates/")

	tmpl, err := h.templates.GetTemplate(ctx, name)
	if err != nil {
		return nil, err
	}
	if tmpl == nil {
		return resourceJSON(request.Params.URI, map[string]string{
			"error": "Template not found",
			"name":  name,
		})
	}

	return resourceJSON(request.Params.URI, map[string]any{
		"name":             tmpl.Name,
		"title":            tmpl.Title,
		"description":      tmpl.Description.String,
		"category":         tmpl.Category.String,
		"prompt_template":  tmpl.PromptTemplate,
		"arguments_schema": tmpl.ArgumentsSchema.String,
		"created_at":       tmpl.CreatedAt,
		"updated_at":       tmpl.UpdatedAt,
	})
}

func (h *Handlers) readConfig(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	stored, err := h.templates.AllConfig(ctx)
	if err != nil {
		return nil, err
	}

	// Stored overrides win over the running defaults.
	merged := map[string]any{
		"share_dir":                h.cfg.ShareDir,
		"db_path":                  h.cfg.DBPath,
		"ack_timeout_seconds":      h.cfg.AckTimeoutSeconds,
		"response_timeout_seconds": h.cfg.ResponseTimeoutSeconds,
		"poll_interval_ms":         h.cfg.PollIntervalMillis,
		"stale_timeout_seconds":    h.cfg.StaleTimeoutSeconds,
		"session_max_age_minutes":  h.cfg.SessionMaxAgeMinutes,
		"speech_workers":           h.cfg.SpeechWorkers,
	}
	for key, value := range stored {
		merged[key] = value
	}

	return resourceJSON(request.Params.URI, map[string]any{
		"config":     merged,
		"updated_at": wire.Now(),
	})
}

func (h *Handlers) readStatus(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	stats, err := h.store.Stats(ctx)
	if err != nil {
		return nil, err
	}

	return resourceJSON(request.Params.URI, map[string]any{
		"status":    "active",
		"timestamp": wire.Now(),
		"statistics": map[string]any{
			"total_sessions":      stats.Sessions,
			"active_sessions":     stats.ActiveSessions,
			"total_conversations": stats.Conversations,
			"total_messages":      stats.Messages,
			"total_templates":     stats.Templates,
			"schema_version":      stats.SchemaVersion,
		},
		"features": map[string]any{
			"mcp_resources":     true,
			"mcp_prompts":       true,
			"session_management": true,
			"speech_to_text":    h.speech.OK(),
			"image_upload":      true,
			"checkpoints":       true,
			"progress_tracking": true,
		},
	})
}
