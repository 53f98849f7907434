package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/southadmin/localvault/internal/local"
)

// LocalGetHandler returns the MCP tool handler for the "local-get" tool.
func LocalGetHandler(store *local.Store) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		key, err := req.RequireString("key")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		v, ok, err := local.Get[json.RawMessage](store, key)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if !ok {
			return mcp.NewToolResultText("Not found."), nil
		}
		return mcp.NewToolResultText(string(v)), nil
	}
}

// LocalSetHandler returns the MCP tool handler for the "local-set" tool.
// A value that is not valid JSON is stored as a JSON string.
func LocalSetHandler(store *local.Store) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		key, err := req.RequireString("key")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		raw, err := req.RequireString("value")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		var value any = raw
		if json.Valid([]byte(raw)) {
			value = json.RawMessage(raw)
		}

		ttl, hasTTL, err := ttlArg(req)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		persistent := req.GetBool("persistent", false)
		switch {
		case persistent && hasTTL:
			return mcp.NewToolResultError("persistent and ttl_seconds cannot be combined"), nil
		case persistent:
			err = store.SetForever(key, value)
		case hasTTL:
			err = store.SetTTL(key, value, ttl)
		default:
			err = store.Set(key, value)
		}
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Stored %q.", key)), nil
	}
}

// ttlArg reads the optional ttl_seconds argument. A null value counts as absent.
func ttlArg(req mcp.CallToolRequest) (time.Duration, bool, error) {
	if v, ok := req.GetArguments()["ttl_seconds"]; !ok || v == nil {
		return 0, false, nil
	}
	secs, err := req.RequireFloat("ttl_seconds")
	if err != nil {
		return 0, true, err
	}
	ns := secs * float64(time.Second)
	if math.IsNaN(secs) || secs < 0 || ns >= math.MaxInt64 {
		return 0, true, fmt.Errorf("ttl_seconds must be a non-negative duration below %.0f seconds, got %v", math.MaxInt64/float64(time.Second), secs)
	}
	return time.Duration(ns), true, nil
}

// LocalRemoveHandler returns the MCP tool handler for the "local-remove" tool.
func LocalRemoveHandler(store *local.Store) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		key, err := req.RequireString("key")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if err := store.Remove(key); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Removed %q.", key)), nil
	}
}

// LocalClearHandler returns the MCP tool handler for the "local-clear" tool.
// It refuses to run unless confirm is true, since it wipes the whole backing store.
func LocalClearHandler(store *local.Store) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if !req.GetBool("confirm", false) {
			return mcp.NewToolResultError("local-clear wipes every key in the backing store; pass confirm=true"), nil
		}
		if err := store.Clear(); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText("Cleared."), nil
	}
}
