// Package mcpadapter exposes search and embedding maintenance as MCP tools.
package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog/log"

	"github.com/kirillkom/inbox-triage/internal/core/domain"
	"github.com/kirillkom/inbox-triage/internal/core/ports"
)

const (
	ToolSearchEmails       = "search_emails"
	ToolKeywordSearch      = "keyword_search"
	ToolGenerateEmbeddings = "generate_embeddings"
)

type Server struct {
	search      ports.EmailSearcher
	backfill    ports.EmbeddingBackfiller
	defaultUser string
}

// NewServer builds the tool handlers. defaultUser is used when a call does
// not carry user_id.
func NewServer(search ports.EmailSearcher, backfill ports.EmbeddingBackfiller, defaultUser string) *Server {
	return &Server{search: search, backfill: backfill, defaultUser: strings.TrimSpace(defaultUser)}
}

// MCPServer registers every tool on a fresh mcp-go server.
func (s *Server) MCPServer(name, version string) *server.MCPServer {
	srv := server.NewMCPServer(name, version, server.WithToolCapabilities(false), server.WithRecovery())

	srv.AddTool(mcp.NewTool(ToolSearchEmails,
		mcp.WithDescription("Search the mailbox with a natural-language query such as \"invoices from acme last month\"."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Free-text search query, at most 500 characters.")),
		mcp.WithString("user_id", mcp.Description("Mailbox owner. Defaults to the server's configured user.")),
	), s.handleSearch)

	srv.AddTool(mcp.NewTool(ToolKeywordSearch,
		mcp.WithDescription("Case-insensitive substring search over subject, sender and preview."),
		mcp.WithString("keyword", mcp.Required(), mcp.Description("Substring to look for.")),
		mcp.WithString("user_id", mcp.Description("Mailbox owner. Defaults to the server's configured user.")),
	), s.handleKeyword)

	srv.AddTool(mcp.NewTool(ToolGenerateEmbeddings,
		mcp.WithDescription("Embed messages that have no embedding yet."),
		mcp.WithNumber("batch_size", mcp.Description("Messages to embed in this run, 1..500. Defaults to 100."), mcp.Min(1), mcp.Max(500)),
		mcp.WithString("user_id", mcp.Description("Mailbox owner. Defaults to the server's configured user.")),
	), s.handleGenerateEmbeddings)

	return srv
}

func (s *Server) handleSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	userID, err := s.userID(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	result, err := s.search.SmartSearch(ctx, userID, query)
	if err != nil {
		return toolError(ToolSearchEmails, err), nil
	}
	return jsonResult(result)
}

func (s *Server) handleKeyword(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	keyword, err := req.RequireString("keyword")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	userID, err := s.userID(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	result, err := s.search.KeywordSearch(ctx, userID, keyword)
	if err != nil {
		return toolError(ToolKeywordSearch, err), nil
	}
	return jsonResult(result)
}

func (s *Server) handleGenerateEmbeddings(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := s.userID(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	report, err := s.backfill.GenerateMissing(ctx, userID, req.GetInt("batch_size", 0))
	if err != nil {
		return toolError(ToolGenerateEmbeddings, err), nil
	}
	return jsonResult(report)
}

func (s *Server) userID(req mcp.CallToolRequest) (string, error) {
	if userID := strings.TrimSpace(req.GetString("user_id", "")); userID != "" {
		return userID, nil
	}
	if s.defaultUser != "" {
		return s.defaultUser, nil
	}
	return "", errors.New("user_id is required")
}

// toolError reports a failed call to the client without leaking provider
// details.
func toolError(tool string, err error) *mcp.CallToolResult {
	log.Warn().Err(err).Str("tool", tool).Msg("mcp_tool_failed")

	switch {
	case domain.IsKind(err, domain.ErrInvalidInput), domain.IsKind(err, domain.ErrConflict):
		return mcp.NewToolResultError(err.Error())
	case domain.IsKind(err, domain.ErrQueryParse):
		return mcp.NewToolResultError("could not understand the search query")
	case domain.IsKind(err, domain.ErrProviderUnavailable):
		return mcp.NewToolResultError("search provider is temporarily unavailable")
	default:
		return mcp.NewToolResultError("internal error")
	}
}

func jsonResult(payload any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}
