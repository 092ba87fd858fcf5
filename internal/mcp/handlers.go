package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/wesm/chatvault/internal/engine"
	"github.com/wesm/chatvault/internal/msgerr"
	"github.com/wesm/chatvault/internal/search"
)

const maxLimit = 1000

type handlers struct {
	engine *engine.Engine
}

// getIDArg extracts a required positive integer ID from the arguments map.
func getIDArg(args map[string]any, key string) (int64, error) {
	v, ok := args[key].(float64)
	if !ok {
		return 0, fmt.Errorf("%s parameter is required", key)
	}
	if v != math.Trunc(v) || v < 1 || v > math.MaxInt64 {
		return 0, fmt.Errorf("%s must be a positive integer", key)
	}
	return int64(v), nil
}

// getDateArg extracts an optional date (YYYY-MM-DD) from the arguments map,
// returned as Unix milliseconds.
func getDateArg(args map[string]any, key string) (*int64, error) {
	v, ok := args[key].(string)
	if !ok || v == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return nil, fmt.Errorf("invalid %s date %q: expected YYYY-MM-DD", key, v)
	}
	ms := t.UnixMilli()
	return &ms, nil
}

// scopeFromArgs builds the engine scope from explicit tool arguments.
func scopeFromArgs(args map[string]any) (engine.Scope, error) {
	var scope engine.Scope
	if v, ok := args["chat_id"].(float64); ok && v >= 1 && v == math.Trunc(v) {
		id := int64(v)
		scope.ChatID = &id
	}
	if v, ok := args["participant"].(string); ok && v != "" {
		scope.Participant = v
	}
	var err error
	if scope.AfterMs, err = getDateArg(args, "after"); err != nil {
		return scope, err
	}
	if scope.BeforeMs, err = getDateArg(args, "before"); err != nil {
		return scope, err
	}
	return scope, nil
}

func (h *handlers) listChats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	chats, err := h.engine.ListChats(ctx, limitArg(args, "limit", 50))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list chats failed: %v", err)), nil
	}
	return jsonResult(chats)
}

func (h *handlers) getMessages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	scope, err := scopeFromArgs(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	msgs, err := h.engine.GetMessages(ctx, engine.MessagesRequest{
		Scope:  scope,
		Limit:  limitArg(args, "limit", 50),
		Offset: limitArg(args, "offset", 0),
	})
	if err != nil {
		if msgerr.IsScopeRequired(err) {
			return mcp.NewToolResultError("a scope is required: set chat_id, participant, after, or before"), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("get messages failed: %v", err)), nil
	}
	return jsonResult(msgs)
}

func (h *handlers) searchMessages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	queryStr, _ := args["query"].(string)
	if queryStr == "" {
		return mcp.NewToolResultError("query parameter is required"), nil
	}

	scope, err := scopeFromArgs(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	// Operators inside the query string refine the explicit arguments.
	q := search.Parse(queryStr)
	if q.ChatID != nil {
		scope.ChatID = q.ChatID
	}
	if len(q.Participants) > 0 {
		scope.Participant = q.Participants[0]
	}
	if q.AfterDate != nil {
		ms := q.AfterDate.UnixMilli()
		scope.AfterMs = &ms
	}
	if q.BeforeDate != nil {
		ms := q.BeforeDate.UnixMilli()
		scope.BeforeMs = &ms
	}

	res, err := h.engine.Search(ctx, engine.SearchRequest{
		Query: q.Text(),
		Scope: scope,
		Filters: engine.Filters{
			FromMe:        q.FromMe,
			HasAttachment: q.HasAttachment,
		},
		Limit:  limitArg(args, "limit", 20),
		Offset: limitArg(args, "offset", 0),
	})
	if err != nil {
		if msgerr.IsScopeRequired(err) {
			return mcp.NewToolResultError("a scope is required: add chat:, with:, before:, or after: to the query, or set chat_id, participant, after, or before"), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	return jsonResult(res)
}

func (h *handlers) messageContext(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	rowID, err := getIDArg(args, "row_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	res, err := h.engine.ContextAround(ctx, rowID,
		limitArg(args, "before", 5), limitArg(args, "after", 5))
	if err != nil {
		if msgerr.IsNotFound(err) {
			return mcp.NewToolResultError(fmt.Sprintf("message %d not found", rowID)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("context failed: %v", err)), nil
	}
	return jsonResult(res)
}

func (h *handlers) getAttachments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	raw, ok := args["row_ids"].([]any)
	if !ok || len(raw) == 0 {
		return mcp.NewToolResultError("row_ids parameter is required"), nil
	}
	rowIDs := make([]int64, 0, len(raw))
	for _, r := range raw {
		v, ok := r.(float64)
		if !ok || v < 1 || v != math.Trunc(v) {
			return mcp.NewToolResultError("row_ids must be positive integers"), nil
		}
		rowIDs = append(rowIDs, int64(v))
	}

	atts, err := h.engine.GetAttachments(ctx, rowIDs, limitArg(args, "per_row_cap", 10))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("get attachments failed: %v", err)), nil
	}
	return jsonResult(atts)
}

func (h *handlers) getStats(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := h.engine.Store().GetStats(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("stats failed: %v", err)), nil
	}
	return jsonResult(stats)
}

// limitArg extracts a non-negative integer limit from a map, with a default.
// JSON numbers arrive as float64. Clamps to maxLimit to prevent excessive
// result sets.
func limitArg(args map[string]any, key string, def int) int {
	v, ok := args[key].(float64)
	if !ok {
		return def
	}
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if math.IsInf(v, 1) || v > float64(maxLimit) {
		return maxLimit
	}
	return int(v)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshal error: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
