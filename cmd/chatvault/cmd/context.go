package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/wesm/chatvault/internal/msgerr"
)

var (
	contextBefore int
	contextAfter  int
	contextJSON   bool
)

var contextCmd = &cobra.Command{
	Use:   "context <message-id>",
	Short: "Show the messages around one message in its chat",
	Long: `Show a chronological window of messages centered on one message,
drawn from the same chat. Useful after a search hit.

Example:
  chatvault context 48213 --before 3 --after 3`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rowID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || rowID < 1 {
			return fmt.Errorf("invalid message id %q", args[0])
		}

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		ctx, cancel := queryContext(cmd)
		defer cancel()

		res, err := newEngine(s).ContextAround(ctx, rowID, contextBefore, contextAfter)
		if err != nil {
			if msgerr.IsNotFound(err) {
				return fmt.Errorf("message %d not found", rowID)
			}
			return fmt.Errorf("context: %w", err)
		}

		if contextJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}
		printMessagesTable(res.Messages)
		if res.Truncated {
			fmt.Println("Window clipped at the conversation edge.")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(contextCmd)
	contextCmd.Flags().IntVar(&contextBefore, "before", 5, "messages to include before the anchor")
	contextCmd.Flags().IntVar(&contextAfter, "after", 5, "messages to include after the anchor")
	contextCmd.Flags().BoolVar(&contextJSON, "json", false, "output JSON")
}
