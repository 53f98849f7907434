package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/southadmin/localvault/internal/token"
)

// TokenGetHandler returns the MCP tool handler for the "token-get" tool.
// A missing token is reported as empty text, not as an error.
func TokenGetHandler(tokens *token.Accessor) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tok, err := tokens.Get()
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(tok), nil
	}
}

func TokenSetHandler(tokens *token.Accessor) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		v, err := req.RequireString("token")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if err := tokens.Set(v); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText("Token stored."), nil
	}
}

func TokenRemoveHandler(tokens *token.Accessor) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if err := tokens.Remove(); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText("Token removed."), nil
	}
}
