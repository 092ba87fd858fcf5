package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wesm/chatvault/internal/textutil"
)

var (
	attachmentsCap  int
	attachmentsJSON bool
)

var attachmentsCmd = &cobra.Command{
	Use:   "attachments <message-id> [message-id...]",
	Short: "Show attachment metadata for messages",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rowIDs := make([]int64, 0, len(args))
		for _, a := range args {
			id, err := strconv.ParseInt(a, 10, 64)
			if err != nil || id < 1 {
				return fmt.Errorf("invalid message id %q", a)
			}
			rowIDs = append(rowIDs, id)
		}

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		ctx, cancel := queryContext(cmd)
		defer cancel()

		atts, err := newEngine(s).GetAttachments(ctx, rowIDs, attachmentsCap)
		if err != nil {
			return fmt.Errorf("get attachments: %w", err)
		}

		if len(atts) == 0 {
			fmt.Println("No attachments found.")
			return nil
		}

		if attachmentsJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(atts)
		}

		keys := make([]int64, 0, len(atts))
		for k := range atts {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "MESSAGE\tFILENAME\tMIME\tSIZE")
		total := 0
		for _, k := range keys {
			for _, a := range atts[k] {
				name := a.Filename
				if name == "" {
					name = a.TransferName
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n",
					a.MessageRowID, textutil.TruncateRunes(name, 50), a.MimeType, formatSize(a.TotalBytes))
				total++
			}
		}
		w.Flush()
		fmt.Printf("\nShowing %d attachments\n", total)
		return nil
	},
}

// formatSize renders a byte count in a human-readable unit.
func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func init() {
	rootCmd.AddCommand(attachmentsCmd)
	attachmentsCmd.Flags().IntVar(&attachmentsCap, "per-message", 10, "maximum attachments per message")
	attachmentsCmd.Flags().BoolVar(&attachmentsJSON, "json", false, "output JSON")
}
