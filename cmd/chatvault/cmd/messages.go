package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wesm/chatvault/internal/engine"
	"github.com/wesm/chatvault/internal/message"
	"github.com/wesm/chatvault/internal/msgerr"
	"github.com/wesm/chatvault/internal/textutil"
)

var (
	messagesScope  scopeFlags
	messagesLimit  int
	messagesOffset int
	messagesJSON   bool
	messagesFromMe bool
)

var messagesCmd = &cobra.Command{
	Use:   "messages",
	Short: "Show message history for a chat or participant",
	Long: `Show message history, newest first. Requires a scope: --chat,
--with, --after, or --before.

Examples:
  chatvault messages --chat 12
  chatvault messages --with alice@example.com --limit 20
  chatvault messages --with "Family" --after 2024-01-01`,
	RunE: func(cmd *cobra.Command, args []string) error {
		scope, err := messagesScope.build()
		if err != nil {
			return err
		}

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		ctx, cancel := queryContext(cmd)
		defer cancel()

		req := engine.MessagesRequest{
			Scope:  scope,
			Limit:  messagesLimit,
			Offset: messagesOffset,
		}
		if cmd.Flags().Changed("from-me") {
			req.Filters.FromMe = &messagesFromMe
		}

		msgs, err := newEngine(s).GetMessages(ctx, req)
		if err != nil {
			if msgerr.IsScopeRequired(err) {
				return fmt.Errorf("a scope is required: pass --chat, --with, --after, or --before")
			}
			return fmt.Errorf("get messages: %w", err)
		}

		if len(msgs) == 0 {
			fmt.Println("No messages found.")
			return nil
		}

		if messagesJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(msgs)
		}
		printMessagesTable(msgs)
		return nil
	},
}

func printMessagesTable(msgs []message.NormalizedMessage) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDATE\tSENDER\tTYPE\tTEXT")
	for _, m := range msgs {
		sender := "me"
		if !m.FromMe {
			sender = "?"
			if m.Sender != nil {
				sender = *m.Sender
			}
		}
		text := ""
		if m.Text != nil {
			text = textutil.FirstLine(*m.Text)
		}
		kind := m.MessageType
		if m.Subtype != "" {
			kind += ":" + m.Subtype
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			m.RowID, m.DateUTC, textutil.TruncateRunes(sender, 28), kind, textutil.TruncateRunes(text, 60))
	}
	w.Flush()
	fmt.Printf("\nShowing %d messages\n", len(msgs))
}

func init() {
	rootCmd.AddCommand(messagesCmd)
	messagesScope.register(messagesCmd)
	messagesCmd.Flags().IntVar(&messagesLimit, "limit", 50, "maximum messages to return")
	messagesCmd.Flags().IntVar(&messagesOffset, "offset", 0, "messages to skip for pagination")
	messagesCmd.Flags().BoolVar(&messagesFromMe, "from-me", false, "only messages sent by the local user")
	messagesCmd.Flags().BoolVar(&messagesJSON, "json", false, "output JSON")
}
