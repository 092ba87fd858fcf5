package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wesm/chatvault/internal/textutil"
)

var (
	chatsLimit int
	chatsJSON  bool
)

var chatsCmd = &cobra.Command{
	Use:   "chats",
	Short: "List conversations, most recent first",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		ctx, cancel := queryContext(cmd)
		defer cancel()

		chats, err := newEngine(s).ListChats(ctx, chatsLimit)
		if err != nil {
			return fmt.Errorf("list chats: %w", err)
		}

		if len(chats) == 0 {
			fmt.Println("No chats found.")
			return nil
		}

		if chatsJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(chats)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tPARTICIPANTS\tMESSAGES\tLAST ACTIVITY\tPREVIEW")
		for _, c := range chats {
			name := c.DisplayName
			if name == "" {
				name = c.Identifier
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%s\n",
				c.ChatID,
				textutil.TruncateRunes(name, 30),
				textutil.TruncateRunes(strings.Join(c.Participants, ", "), 40),
				c.MessageCount,
				c.LastActivityUTC,
				textutil.TruncateRunes(c.LastMessage, 40),
			)
		}
		w.Flush()
		fmt.Printf("\nShowing %d chats\n", len(chats))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(chatsCmd)
	chatsCmd.Flags().IntVar(&chatsLimit, "limit", 50, "maximum chats to list")
	chatsCmd.Flags().BoolVar(&chatsJSON, "json", false, "output JSON")
}
