package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/cinetrait/internal/analysis"
	"github.com/kalambet/cinetrait/internal/profile"
	"github.com/kalambet/cinetrait/internal/storage"
)

const analysisURIPrefix = "analysis://"

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store    *storage.Store
	Analyzer *analysis.Analyzer
	Profile  *profile.Manager
}

// MovieAnalysis is the get_user_movie_analysis payload.
type MovieAnalysis struct {
	storage.RatingStats
	Readiness analysis.Readiness `json:"readiness"`
}

// NewMCPServer creates an MCP server with the cinetrait tools and resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"cinetrait",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("cinetrait infers Big Five personality traits and personal values from a user's movie ratings."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("get_user_movie_analysis",
			mcp.WithDescription("Summarize a user's movie ratings: totals, per-genre averages, recent ratings and analysis readiness."),
			mcp.WithString("user_id", mcp.Description("User identifier"), mcp.Required()),
		),
		mcpMovieAnalysis(deps),
	)

	s.AddTool(
		mcp.NewTool("analyze_personality",
			mcp.WithDescription("Run the personality analysis for a user and return traits, values and confidence."),
			mcp.WithString("user_id", mcp.Description("User identifier"), mcp.Required()),
		),
		mcpAnalyzePersonality(deps),
	)

	s.AddTool(
		mcp.NewTool("analysis_readiness",
			mcp.WithDescription("Report whether a user has rated enough movies to be analyzed."),
			mcp.WithString("user_id", mcp.Description("User identifier"), mcp.Required()),
		),
		mcpReadiness(deps),
	)

	s.AddResourceTemplate(
		mcp.NewResourceTemplate(
			analysisURIPrefix+"{user_id}",
			"Personality Analysis",
			mcp.WithTemplateDescription("Latest stored analysis for a user as JSON"),
			mcp.WithTemplateMIMEType("application/json"),
		),
		mcpResourceAnalysis(deps),
	)

	return s
}

func mcpMovieAnalysis(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, err := req.RequireString("user_id")
		if err != nil {
			return mcpError("user_id is required"), nil
		}

		stats, err := deps.Store.RatingStats(ctx, userID)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to load ratings: %v", err)), nil
		}
		rd, err := deps.Analyzer.Readiness(ctx, userID)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to check readiness: %v", err)), nil
		}
		return mcpJSON(MovieAnalysis{RatingStats: stats, Readiness: rd}), nil
	}
}

func mcpAnalyzePersonality(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, err := req.RequireString("user_id")
		if err != nil {
			return mcpError("user_id is required"), nil
		}

		res, err := deps.Analyzer.Analyze(ctx, userID)
		if err != nil {
			var ide *analysis.InsufficientDataError
			if errors.As(err, &ide) {
				return mcpError(fmt.Sprintf("user %s has rated %d movies; at least %d are needed", userID, ide.Count, ide.Required)), nil
			}
			return mcpError(fmt.Sprintf("analysis failed: %v", err)), nil
		}
		return mcpJSON(profile.Build(res)), nil
	}
}

func mcpReadiness(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, err := req.RequireString("user_id")
		if err != nil {
			return mcpError("user_id is required"), nil
		}

		rd, err := deps.Analyzer.Readiness(ctx, userID)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to check readiness: %v", err)), nil
		}
		return mcpJSON(rd), nil
	}
}

func mcpResourceAnalysis(deps MCPDeps) server.ResourceTemplateHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		userID, err := userIDFromURI(req.Params.URI)
		if err != nil {
			return nil, err
		}

		p, err := deps.Profile.GetProfile(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to get analysis for %s: %w", userID, err)
		}

		b, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal analysis: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func userIDFromURI(uri string) (string, error) {
	raw, ok := strings.CutPrefix(uri, analysisURIPrefix)
	if !ok || raw == "" {
		return "", fmt.Errorf("invalid analysis URI %q", uri)
	}
	id, err := url.PathUnescape(raw)
	if err != nil {
		return "", fmt.Errorf("invalid analysis URI %q: %w", uri, err)
	}
	return id, nil
}

func mcpJSON(v any) *mcp.CallToolResult {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err))
	}
	return mcpText(string(b))
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
