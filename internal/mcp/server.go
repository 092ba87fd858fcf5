package mcp

import (
	"context"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/wesm/chatvault/internal/engine"
)

// Tool name constants.
const (
	ToolListChats      = "list_chats"
	ToolGetMessages    = "get_messages"
	ToolSearchMessages = "search_messages"
	ToolMessageContext = "message_context"
	ToolGetAttachments = "get_attachments"
	ToolGetStats       = "get_stats"
)

// Common argument helpers for recurring tool option definitions.

func withLimit(defaultDesc string) mcp.ToolOption {
	return mcp.WithNumber("limit",
		mcp.Description("Maximum results to return (default "+defaultDesc+")"),
	)
}

func withOffset() mcp.ToolOption {
	return mcp.WithNumber("offset",
		mcp.Description("Number of results to skip for pagination (default 0)"),
	)
}

func withScope() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithNumber("chat_id",
			mcp.Description("Restrict to one chat (from list_chats)"),
		),
		mcp.WithString("participant",
			mcp.Description("Restrict to a participant: handle, phone number, or group chat name"),
		),
		mcp.WithString("after",
			mcp.Description("Only messages after this date (YYYY-MM-DD)"),
		),
		mcp.WithString("before",
			mcp.Description("Only messages before this date (YYYY-MM-DD)"),
		),
	}
}

// Serve creates an MCP server with message archive tools and serves over
// stdio. It blocks until stdin is closed or the context is cancelled.
func Serve(ctx context.Context, eng *engine.Engine) error {
	s := server.NewMCPServer(
		"chatvault",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	h := &handlers{engine: eng}

	s.AddTool(listChatsTool(), h.listChats)
	s.AddTool(getMessagesTool(), h.getMessages)
	s.AddTool(searchMessagesTool(), h.searchMessages)
	s.AddTool(messageContextTool(), h.messageContext)
	s.AddTool(getAttachmentsTool(), h.getAttachments)
	s.AddTool(getStatsTool(), h.getStats)

	stdio := server.NewStdioServer(s)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

func listChatsTool() mcp.Tool {
	return mcp.NewTool(ToolListChats,
		mcp.WithDescription("List conversations with participants, message counts, and last activity, most recent first."),
		mcp.WithReadOnlyHintAnnotation(true),
		withLimit("50"),
	)
}

func getMessagesTool() mcp.Tool {
	opts := []mcp.ToolOption{
		mcp.WithDescription("Get message history for a chat or participant, newest first. Requires at least one of chat_id, participant, after, or before."),
		mcp.WithReadOnlyHintAnnotation(true),
	}
	opts = append(opts, withScope()...)
	opts = append(opts, withLimit("50"), withOffset())
	return mcp.NewTool(ToolGetMessages, opts...)
}

func searchMessagesTool() mcp.Tool {
	opts := []mcp.ToolOption{
		mcp.WithDescription("Search message text. Supports operators inside the query: with:, from:, from:me, chat:, has:attachment, before:, after:, plus free text and \"quoted phrases\". A scope (chat, participant, or date bound) is required, either as an operator or an explicit argument. Matches rich-text-only messages too."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query (e.g. 'with:alice@example.com dinner after:2024-01-01')"),
		),
	}
	opts = append(opts, withScope()...)
	opts = append(opts, withLimit("20"), withOffset())
	return mcp.NewTool(ToolSearchMessages, opts...)
}

func messageContextTool() mcp.Tool {
	return mcp.NewTool(ToolMessageContext,
		mcp.WithDescription("Get the messages surrounding one message in its chat, in chronological order. Use after search_messages to see a match in context."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithNumber("row_id",
			mcp.Required(),
			mcp.Description("Message row id (from search or get_messages results)"),
		),
		mcp.WithNumber("before",
			mcp.Description("Messages to include before the anchor (default 5)"),
		),
		mcp.WithNumber("after",
			mcp.Description("Messages to include after the anchor (default 5)"),
		),
	)
}

func getAttachmentsTool() mcp.Tool {
	return mcp.NewTool(ToolGetAttachments,
		mcp.WithDescription("Get attachment metadata (filename, MIME type, size) for one or more messages."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithArray("row_ids",
			mcp.Required(),
			mcp.Description("Message row ids to fetch attachments for"),
		),
		mcp.WithNumber("per_row_cap",
			mcp.Description("Maximum attachments per message (default 10)"),
		),
	)
}

func getStatsTool() mcp.Tool {
	return mcp.NewTool(ToolGetStats,
		mcp.WithDescription("Get store overview: message, chat, handle, and attachment counts."),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}
