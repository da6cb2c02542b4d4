package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// registerTools declares the six Review Gate tools with their JSON
// schemas. Defaults mirror what the Cursor extension expects.
func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.Tool{
		Name:        "review_gate_chat",
		Description: "Open Review Gate chat popup in Cursor for feedback and reviews. Use this when you need user input, feedback, or review from the human user. The popup will appear in Cursor and wait for user response for up to 5 minutes.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"message": map[string]interface{}{
					"type":        "string",
					"description": "The message to display in the Review Gate popup - this is what the user will see",
					"default":     defaultChatMessage,
				},
				"title": map[string]interface{}{
					"type":        "string",
					"description": "Title for the Review Gate popup window",
					"default":     defaultChatTitle,
				},
				"context": map[string]interface{}{
					"type":        "string",
					"description": "Additional context about what needs review (code, implementation, etc.)",
					"default":     "",
				},
				"urgent": map[string]interface{}{
					"type":        "boolean",
					"description": "Whether this is an urgent review request",
					"default":     false,
				},
			},
		},
	}, s.handlers.ReviewGateChat)

	s.mcp.AddTool(mcp.Tool{
		Name:        "quick_review",
		Description: "Request a quick one-line review or confirmation from the user. Lighter weight than review_gate_chat with a shorter wait.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"prompt": map[string]interface{}{
					"type":        "string",
					"description": "The prompt shown to the user",
					"default":     defaultQuickPrompt,
				},
				"context": map[string]interface{}{
					"type":        "string",
					"description": "Additional context for the quick review",
					"default":     "",
				},
			},
		},
	}, s.handlers.QuickReview)

	s.mcp.AddTool(mcp.Tool{
		Name:        "file_review",
		Description: "Ask the user to select one or more files for review through the Cursor popup.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"instruction": map[string]interface{}{
					"type":        "string",
					"description": "Instruction shown above the file picker",
					"default":     defaultFileInstruction,
				},
				"file_types": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "string"},
					"description": "Allowed file extensions, * for any",
				},
			},
		},
	}, s.handlers.FileReview)

	s.mcp.AddTool(mcp.Tool{
		Name:        "ingest_text",
		Description: "Present a block of text to the user for processing and collect their feedback on it.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"text_content": map[string]interface{}{
					"type":        "string",
					"description": "The text to process",
				},
				"source": map[string]interface{}{
					"type":        "string",
					"description": "Where the text came from",
					"default":     "extension",
				},
				"context": map[string]interface{}{
					"type":        "string",
					"description": "Additional context for the ingestion",
					"default":     "",
				},
				"processing_mode": map[string]interface{}{
					"type":        "string",
					"description": "How to process the text",
					"default":     "immediate",
				},
			},
			Required: []string{"text_content"},
		},
	}, s.handlers.IngestText)

	s.mcp.AddTool(mcp.Tool{
		Name:        "get_user_input",
		Description: "Check every response location for user input that may already be waiting, without opening a popup.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"timeout": map[string]interface{}{
					"type":        "number",
					"description": "How many seconds to keep checking for input",
					"default":     10,
				},
			},
		},
	}, s.handlers.GetUserInput)

	s.mcp.AddTool(mcp.Tool{
		Name:        "shutdown_mcp",
		Description: "Request a graceful server shutdown. The user must confirm with CONFIRM, YES, Y, SHUTDOWN or PROCEED; any other response cancels the shutdown.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"reason": map[string]interface{}{
					"type":        "string",
					"description": "Why the shutdown is being requested",
					"default":     defaultShutdownReason,
				},
				"immediate": map[string]interface{}{
					"type":        "boolean",
					"description": "Whether to skip the grace period",
					"default":     false,
				},
				"cleanup": map[string]interface{}{
					"type":        "boolean",
					"description": "Whether to sweep temp files on exit",
					"default":     true,
				},
			},
		},
	}, s.handlers.ShutdownMCP)
}
