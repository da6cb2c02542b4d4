// Package mcp exposes the Review Gate tools, resources and prompts over
// the Model Context Protocol on stdio.
package mcp

import (
	"context"
	"os"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog/log"

	"github.com/HexSleeves/Review-Gate/internal/config"
	"github.com/HexSleeves/Review-Gate/internal/db"
	"github.com/HexSleeves/Review-Gate/internal/rendezvous"
	"github.com/HexSleeves/Review-Gate/internal/session"
	"github.com/HexSleeves/Review-Gate/internal/speech"
	"github.com/HexSleeves/Review-Gate/internal/worker/sse"
)

const serverName = "Review Gate"

// Server binds the tool handlers to an MCP stdio server.
type Server struct {
	mcp      *mcpserver.MCPServer
	handlers *Handlers
	version  string
}

// New wires the MCP surface over the rendezvous and the store handles.
func New(version string, cfg *config.Config, rdv *rendezvous.Rendezvous, orch *session.Orchestrator, store *db.Store, avail speech.Availability, broadcast *sse.Broadcaster) *Server {
	handlers := NewHandlers(cfg, rdv, orch, store, avail, broadcast)

	srv := mcpserver.NewMCPServer(
		serverName,
		version,
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithResourceCapabilities(false, false),
		mcpserver.WithPromptCapabilities(false),
	)

	s := &Server{
		mcp:      srv,
		handlers: handlers,
		version:  version,
	}
	s.registerTools()
	s.registerResources()
	return s
}

// RegisterPrompts publishes one MCP prompt per stored template. Called
// after the defaults are seeded so every template has a prompt.
func (s *Server) RegisterPrompts(ctx context.Context) error {
	return s.registerPrompts(ctx)
}

// ShutdownRequested is closed once the user confirms the shutdown tool.
func (s *Server) ShutdownRequested() <-chan struct{} {
	return s.handlers.shutdown
}

// Run serves MCP requests on stdio until the context is cancelled or a
// shutdown is confirmed. Trigger documents left behind are swept before
// returning.
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-s.handlers.shutdown:
			log.Info().Str("reason", s.handlers.ShutdownReason()).Msg("shutdown confirmed, stopping stdio server")
			cancel()
		case <-runCtx.Done():
		}
	}()

	log.Info().Str("version", s.version).Msg("mcp server listening on stdio")
	stdio := mcpserver.NewStdioServer(s.mcp)
	err := stdio.Listen(runCtx, os.Stdin, os.Stdout)

	s.handlers.rdv.CleanupTempFiles()

	if err != nil && runCtx.Err() == nil {
		return err
	}
	return nil
}
