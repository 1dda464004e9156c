// Package mcpserver exposes the search pipeline as a single MCP tool over
// stdio.
package mcpserver

import (
	"context"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wangwingzero/huge-ai-search/internal/pipeline"
	"github.com/wangwingzero/huge-ai-search/internal/searcher"
)

// SearchInput is the search tool's input schema.
type SearchInput struct {
	Query       string `json:"query,omitempty" jsonschema:"the search query, in natural language"`
	Language    string `json:"language,omitempty" jsonschema:"answer language: zh-CN, en-US, ja-JP, ko-KR, de-DE or fr-FR, default zh-CN"`
	FollowUp    bool   `json:"follow_up,omitempty" jsonschema:"true to continue the session named by session_id instead of starting a new search"`
	SessionID   string `json:"session_id,omitempty" jsonschema:"session id returned by a prior call; only consulted when follow_up is true"`
	ImagePath   string `json:"image_path,omitempty" jsonschema:"local path to an image to search about; forces a fresh, non-follow-up search"`
	CreateImage bool   `json:"create_image,omitempty" jsonschema:"true to ask the browser subsystem to generate an image for the answer"`
}

// SearchOutput carries the single rendered Markdown document the pipeline
// produces; the tool has no structured fields beyond it.
type SearchOutput struct {
	Markdown string `json:"markdown" jsonschema:"the rendered Markdown search result, including any failure or cooldown notice"`
}

// Server wraps the MCP SDK server and the Request Pipeline it delegates to.
type Server struct {
	mcp *mcp.Server
	pl  *pipeline.Pipeline
	log *slog.Logger
}

// New builds a Server with the search tool already registered.
func New(pl *pipeline.Pipeline, version string, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		pl:  pl,
		log: log,
		mcp: mcp.NewServer(
			&mcp.Implementation{
				Name:    "huge-ai-search",
				Version: version,
			},
			nil,
		),
	}
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search",
		Description: "Runs an AI-assisted web search through a shared, human-supervised browser session. Handles CAPTCHA recovery and login-timeout cooldowns automatically. Pass follow_up=true with the session_id from a prior response to continue the same conversation instead of opening a new search.",
	}, s.mcpSearchHandler)
	s.log.Debug("registered mcp tool", slog.String("name", "search"))
}

func (s *Server) mcpSearchHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	req := pipeline.Request{
		Query:       input.Query,
		Language:    searcher.Language(input.Language),
		FollowUp:    input.FollowUp,
		SessionID:   input.SessionID,
		ImagePath:   input.ImagePath,
		CreateImage: input.CreateImage,
	}
	if !searcher.ValidLanguage(input.Language) {
		req.Language = searcher.DefaultLanguage
	}

	out := s.pl.Search(ctx, req)
	return nil, SearchOutput{Markdown: out}, nil
}

// Run serves the search tool over stdio until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.log.Info("starting mcp server", slog.String("transport", "stdio"))
	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && err != context.Canceled {
		s.log.Error("mcp server stopped with error", slog.String("error", err.Error()))
		return err
	}
	s.log.Info("mcp server stopped gracefully")
	return nil
}
