package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show store statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		ctx, cancel := queryContext(cmd)
		defer cancel()

		stats, err := s.GetStats(ctx)
		if err != nil {
			return fmt.Errorf("get stats: %w", err)
		}
		scale, err := s.TimestampScale(ctx)
		if err != nil {
			return fmt.Errorf("detect timestamp scale: %w", err)
		}

		fmt.Printf("Store: %s\n", s.Path())
		fmt.Printf("  Messages:    %d\n", stats.MessageCount)
		fmt.Printf("  Chats:       %d\n", stats.ChatCount)
		fmt.Printf("  Handles:     %d\n", stats.HandleCount)
		fmt.Printf("  Attachments: %d\n", stats.AttachmentCount)
		fmt.Printf("  Size:        %.2f MB\n", float64(stats.DatabaseSize)/(1024*1024))
		fmt.Printf("  Timestamps:  %s since 2001-01-01\n", scale)

		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
