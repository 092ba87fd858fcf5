package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	mcpserver "github.com/wesm/chatvault/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run MCP server for Claude Desktop integration",
	Long: `Start an MCP (Model Context Protocol) server over stdio.

This allows Claude Desktop (or any MCP client) to query your message
archive using tools like list_chats, get_messages, search_messages,
message_context, get_attachments, and get_stats.

Add to Claude Desktop config:
  {
    "mcpServers": {
      "chatvault": {
        "command": "chatvault",
        "args": ["mcp"]
      }
    }
  }`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer s.Close()

		return mcpserver.Serve(cmd.Context(), newEngine(s))
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
