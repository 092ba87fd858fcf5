package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/wesm/chatvault/internal/appletime"
	"github.com/wesm/chatvault/internal/engine"
	"github.com/wesm/chatvault/internal/message"
	"github.com/wesm/chatvault/internal/richtext"
	"github.com/wesm/chatvault/internal/store"
	"github.com/wesm/chatvault/internal/testutil/chatdb"
)

// toolHandler is the function signature for MCP tool handler methods.
type toolHandler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)

// callToolDirect invokes a handler directly with the given arguments and returns the raw result.
func callToolDirect(t *testing.T, name string, fn toolHandler, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	result, err := fn(context.Background(), req)
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	return result
}

func resultText(t *testing.T, r *mcp.CallToolResult) string {
	t.Helper()
	if len(r.Content) == 0 {
		t.Fatal("empty content")
	}
	tc, ok := r.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", r.Content[0])
	}
	return tc.Text
}

// runTool invokes a handler, asserts no error, and unmarshals the JSON result into T.
func runTool[T any](t *testing.T, name string, fn toolHandler, args map[string]any) T {
	t.Helper()
	r := callToolDirect(t, name, fn, args)
	if r.IsError {
		t.Fatalf("unexpected error: %s", resultText(t, r))
	}
	var out T
	if err := json.Unmarshal([]byte(resultText(t, r)), &out); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	return out
}

// runToolExpectError invokes a handler and asserts it returns an error result.
func runToolExpectError(t *testing.T, name string, fn toolHandler, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	r := callToolDirect(t, name, fn, args)
	if !r.IsError {
		t.Fatal("expected error result")
	}
	return r
}

// 2023-06-01T00:00:00Z in Apple nanoseconds, i minutes in.
func nsAt(i int) int64 {
	return appletime.ToAppleUnits(1685577600000+int64(i)*60_000, appletime.ScaleNanoseconds)
}

// newHandlers builds handlers over a populated fixture: one chat between
// the local user and alice with three messages, one carrying an attachment.
func newHandlers(t *testing.T) (*handlers, map[string]int64) {
	t.Helper()
	db := chatdb.New(t)
	alice := db.Handle("alice@example.com", "", "")
	chat := db.Chat("chat-a", "Road Trip")
	db.Member(chat, alice)

	m1 := db.Insert(chatdb.Message{GUID: "g1", Text: "are we still on for dinner?", HandleID: alice, ChatID: chat, Date: nsAt(1)})
	m2 := db.Insert(chatdb.Message{GUID: "g2", Text: "yes! dinner at 7", FromMe: true, ChatID: chat, Date: nsAt(2)})
	m3 := db.Insert(chatdb.Message{GUID: "g3", Text: "map attached", HandleID: alice, ChatID: chat, Date: nsAt(3), HasAttachments: true})
	db.Attachment(m3, "/tmp/map.png", "image/png", "public.png", 2048)

	eng := engine.New(db.Open(), richtext.NewDecoder(richtext.NewCache()), engine.Options{})
	ids := map[string]int64{"chat": chat, "m1": m1, "m2": m2, "m3": m3}
	return &handlers{engine: eng}, ids
}

func TestListChatsTool(t *testing.T) {
	h, ids := newHandlers(t)

	chats := runTool[[]engine.ChatSummary](t, ToolListChats, h.listChats, map[string]any{})
	if len(chats) != 1 {
		t.Fatalf("got %d chats", len(chats))
	}
	if chats[0].ChatID != ids["chat"] || chats[0].DisplayName != "Road Trip" {
		t.Fatalf("unexpected chat: %+v", chats[0])
	}
	if chats[0].MessageCount != 3 {
		t.Errorf("message count = %d", chats[0].MessageCount)
	}
}

func TestGetMessagesTool(t *testing.T) {
	h, ids := newHandlers(t)

	t.Run("by chat", func(t *testing.T) {
		msgs := runTool[[]message.NormalizedMessage](t, ToolGetMessages, h.getMessages,
			map[string]any{"chat_id": float64(ids["chat"])})
		if len(msgs) != 3 {
			t.Fatalf("got %d messages", len(msgs))
		}
		if msgs[0].GUID != "g3" {
			t.Errorf("newest first expected, got %s", msgs[0].GUID)
		}
	})

	t.Run("by participant", func(t *testing.T) {
		msgs := runTool[[]message.NormalizedMessage](t, ToolGetMessages, h.getMessages,
			map[string]any{"participant": "alice@example.com"})
		if len(msgs) != 3 {
			t.Fatalf("got %d messages", len(msgs))
		}
	})

	t.Run("no scope", func(t *testing.T) {
		r := runToolExpectError(t, ToolGetMessages, h.getMessages, map[string]any{})
		if !strings.Contains(resultText(t, r), "scope is required") {
			t.Errorf("unexpected error text: %s", resultText(t, r))
		}
	})
}

func TestSearchMessagesTool(t *testing.T) {
	h, ids := newHandlers(t)

	t.Run("explicit chat scope", func(t *testing.T) {
		res := runTool[engine.SearchResult](t, ToolSearchMessages, h.searchMessages,
			map[string]any{"query": "dinner", "chat_id": float64(ids["chat"])})
		if len(res.Messages) != 2 {
			t.Fatalf("got %d matches: %+v", len(res.Messages), res.Messages)
		}
	})

	t.Run("operator scope", func(t *testing.T) {
		res := runTool[engine.SearchResult](t, ToolSearchMessages, h.searchMessages,
			map[string]any{"query": "with:alice@example.com dinner"})
		if len(res.Messages) != 2 {
			t.Fatalf("got %d matches", len(res.Messages))
		}
	})

	t.Run("has attachment operator", func(t *testing.T) {
		res := runTool[engine.SearchResult](t, ToolSearchMessages, h.searchMessages,
			map[string]any{"query": "has:attachment map", "chat_id": float64(ids["chat"])})
		if len(res.Messages) != 1 || res.Messages[0].GUID != "g3" {
			t.Fatalf("attachment filter: %+v", res.Messages)
		}
	})

	t.Run("missing query", func(t *testing.T) {
		runToolExpectError(t, ToolSearchMessages, h.searchMessages, map[string]any{})
	})

	t.Run("no scope anywhere", func(t *testing.T) {
		r := runToolExpectError(t, ToolSearchMessages, h.searchMessages,
			map[string]any{"query": "dinner"})
		if !strings.Contains(resultText(t, r), "scope is required") {
			t.Errorf("unexpected error text: %s", resultText(t, r))
		}
	})
}

func TestMessageContextTool(t *testing.T) {
	h, ids := newHandlers(t)

	res := runTool[engine.ContextResult](t, ToolMessageContext, h.messageContext,
		map[string]any{"row_id": float64(ids["m2"]), "before": float64(1), "after": float64(1)})
	if len(res.Messages) != 3 {
		t.Fatalf("got %d rows", len(res.Messages))
	}
	if res.Messages[1].RowID != ids["m2"] {
		t.Errorf("anchor not centered")
	}
	if res.Truncated {
		t.Error("full window must not report truncated")
	}

	clipped := runTool[engine.ContextResult](t, ToolMessageContext, h.messageContext,
		map[string]any{"row_id": float64(ids["m2"]), "before": float64(50), "after": float64(50)})
	if !clipped.Truncated {
		t.Error("clipped window must report truncated")
	}

	r := runToolExpectError(t, ToolMessageContext, h.messageContext,
		map[string]any{"row_id": float64(99999)})
	if !strings.Contains(resultText(t, r), "not found") {
		t.Errorf("unexpected error text: %s", resultText(t, r))
	}

	runToolExpectError(t, ToolMessageContext, h.messageContext, map[string]any{})
}

func TestGetAttachmentsTool(t *testing.T) {
	h, ids := newHandlers(t)

	atts := runTool[map[int64][]engine.Attachment](t, ToolGetAttachments, h.getAttachments,
		map[string]any{"row_ids": []any{float64(ids["m3"])}})
	if len(atts[ids["m3"]]) != 1 {
		t.Fatalf("attachments: %+v", atts)
	}
	if atts[ids["m3"]][0].MimeType != "image/png" {
		t.Errorf("mime = %q", atts[ids["m3"]][0].MimeType)
	}

	runToolExpectError(t, ToolGetAttachments, h.getAttachments, map[string]any{})
	runToolExpectError(t, ToolGetAttachments, h.getAttachments,
		map[string]any{"row_ids": []any{"not-a-number"}})
}

func TestGetStatsTool(t *testing.T) {
	h, _ := newHandlers(t)

	stats := runTool[store.Stats](t, ToolGetStats, h.getStats, map[string]any{})
	if stats.MessageCount != 3 {
		t.Errorf("messages = %d", stats.MessageCount)
	}
	if stats.ChatCount != 1 {
		t.Errorf("chats = %d", stats.ChatCount)
	}
}
