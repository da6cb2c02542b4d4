package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog/log"

	json "github.com/goccy/go-json"

	"github.com/HexSleeves/Review-Gate/internal/db"
	"github.com/HexSleeves/Review-Gate/internal/template"
)

// argumentSchema is the JSON shape stored in templates.arguments_schema.
type argumentSchema struct {
	Properties map[string]struct {
		Description string `json:"description"`
	} `json:"properties"`
	Required []string `json:"required"`
}

// registerPrompts turns every stored template into an MCP prompt whose
// result is the rendered template text.
func (s *Server) registerPrompts(ctx context.Context) error {
	templates, err := s.handlers.templates.ListTemplates(ctx, "")
	if err != nil {
		return fmt.Errorf("list templates: %w", err)
	}

	for i := range templates {
		tmpl := templates[i]
		s.mcp.AddPrompt(promptFromTemplate(&tmpl), s.handlers.promptHandler(tmpl.Name))
	}

	log.Info().Int("prompts", len(templates)).Msg("template prompts registered")
	return nil
}

func promptFromTemplate(tmpl *db.Template) mcp.Prompt {
	description := tmpl.Description.String
	if description == "" {
		description = tmpl.Title
	}

	opts := []mcp.PromptOption{mcp.WithPromptDescription(description)}

	if tmpl.ArgumentsSchema.Valid && tmpl.ArgumentsSchema.String != "" {
		var schema argumentSchema
		if err := json.Unmarshal([]byte(tmpl.ArgumentsSchema.String), &schema); err != nil {
			log.Warn().Err(err).Str("template", tmpl.Name).Msg("unparseable arguments schema, prompt registered without arguments")
		} else {
			required := make(map[string]bool, len(schema.Required))
			for _, name := range schema.Required {
				required[name] = true
			}
			for name, prop := range schema.Properties {
				argOpts := []mcp.ArgumentOption{mcp.ArgumentDescription(prop.Description)}
				if required[name] {
					argOpts = append(argOpts, mcp.RequiredArgument())
				}
				opts = append(opts, mcp.WithArgument(name, argOpts...))
			}
		}
	}

	return mcp.NewPrompt(tmpl.Name, opts...)
}

// promptHandler renders the named template with the request arguments.
func (h *Handlers) promptHandler(name string) func(context.Context, mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	return func(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		tmpl, err := h.templates.GetTemplate(ctx, name)
		if err != nil {
			return nil, err
		}
		if tmpl == nil {
			return nil, fmt.Errorf("prompt not found: %s", name)
		}

		args := make(map[string]any, len(request.Params.Arguments))
		for key, value := range request.Params.Arguments {
			args[key] = value
		}

		rendered := template.Render(tmpl.PromptTemplate, args)

		description := tmpl.Description.String
		if description == "" {
			description = tmpl.Title
		}

		return mcp.NewGetPromptResult(description, []mcp.PromptMessage{
			mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(rendered)),
		}), nil
	}
}
