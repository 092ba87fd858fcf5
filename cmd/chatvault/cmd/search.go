package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/wesm/chatvault/internal/engine"
	"github.com/wesm/chatvault/internal/msgerr"
	"github.com/wesm/chatvault/internal/search"
)

var (
	searchScope  scopeFlags
	searchLimit  int
	searchOffset int
	searchJSON   bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search message text",
	Long: `Search message history, including messages whose text lives only in
the rich-text payload.

Supported operators inside the query:
  with:        Participant (handle, phone, or group chat name)
  from:        Participant; from:me matches your own messages
  is:          is:sent / is:received
  chat:        Numeric chat id
  has:         has:attachment - messages with attachments
  before:      Messages before date (YYYY-MM-DD)
  after:       Messages after date (YYYY-MM-DD)
  older_than:  Relative date (7d, 2w, 1m, 1y)
  newer_than:  Relative date

Bare words and "quoted phrases" match message text as a substring.
A scope is required: chat:, with:, a date bound, or the equivalent flags.

Examples:
  chatvault search with:alice@example.com dinner
  chatvault search --chat 12 "see you soon"
  chatvault search from:me has:attachment newer_than:30d`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		// Join all args to form the query (allows unquoted multi-term searches)
		queryStr := strings.Join(args, " ")

		q := search.Parse(queryStr)
		if q.IsEmpty() {
			return fmt.Errorf("empty search query")
		}

		scope, err := searchScope.build()
		if err != nil {
			return err
		}
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

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		ctx, cancel := queryContext(cmd)
		defer cancel()

		spinner := isatty.IsTerminal(os.Stderr.Fd())
		if spinner {
			fmt.Fprintf(os.Stderr, "Searching...")
		}
		res, err := newEngine(s).Search(ctx, engine.SearchRequest{
			Query: q.Text(),
			Scope: scope,
			Filters: engine.Filters{
				FromMe:        q.FromMe,
				HasAttachment: q.HasAttachment,
			},
			Limit:  searchLimit,
			Offset: searchOffset,
		})
		if spinner {
			fmt.Fprintf(os.Stderr, "\r            \r")
		}
		if err != nil {
			if msgerr.IsScopeRequired(err) {
				return fmt.Errorf("a scope is required: add chat:, with:, before:, or after: to the query, or pass --chat/--with/--after/--before")
			}
			return fmt.Errorf("search: %w", err)
		}

		if len(res.Messages) == 0 {
			fmt.Println("No messages found.")
			return nil
		}

		if searchJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}

		printMessagesTable(res.Messages)
		if res.Truncated {
			fmt.Println("More matches exist; raise --limit or use --offset to page.")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchScope.register(searchCmd)
	searchCmd.Flags().IntVar(&searchLimit, "limit", 20, "maximum results to return")
	searchCmd.Flags().IntVar(&searchOffset, "offset", 0, "results to skip for pagination")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output JSON")
}
