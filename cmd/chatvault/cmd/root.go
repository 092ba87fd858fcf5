package cmd

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/spf13/cobra"

	"github.com/wesm/chatvault/internal/config"
	"github.com/wesm/chatvault/internal/engine"
	"github.com/wesm/chatvault/internal/fileutil"
	"github.com/wesm/chatvault/internal/richtext"
	"github.com/wesm/chatvault/internal/store"
)

var (
	cfgFile   string
	storePath string
	verbose   bool
	cfg       *config.Config
	logger    *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "chatvault",
	Short: "Read-only Apple Messages archive query tool",
	Long: `chatvault reads a Messages database (chat.db) directly and exposes
normalized, searchable message history: conversations, participants,
rich-text messages, reactions, and attachments.

The store is opened read-only; chatvault never modifies it.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}

		// Set up logging
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		}))
		slog.SetDefault(logger)

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if storePath != "" {
			cfg.Store.Path = storePath
		}

		// Ensure home directory exists on first use
		if err := fileutil.SecureMkdirAll(cfg.HomeDir, 0700); err != nil {
			return fmt.Errorf("create data directory %s: %w", cfg.HomeDir, err)
		}

		return nil
	},
}

// Execute runs the root command with a background context.
// Prefer ExecuteContext for signal-aware execution.
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the root command with the given context,
// enabling graceful shutdown when the context is cancelled.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// openStore opens the configured chat.db read-only.
func openStore() (*store.Store, error) {
	s, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return s, nil
}

// newEngine builds the query engine over an open store, wiring the plutil
// converter into the decoder's legacy tier when the binary is available.
func newEngine(s *store.Store) *engine.Engine {
	opts := []richtext.Option{}
	if conv := plutilConverter(); conv != nil {
		timeout := time.Duration(cfg.Decode.ConverterTimeout) * time.Second
		opts = append(opts, richtext.WithConverter(conv, timeout))
	}
	decoder := richtext.NewDecoder(richtext.NewCache(), opts...)

	return engine.New(s, decoder, engine.Options{
		DefaultLimit:      cfg.Search.DefaultLimit,
		DecodeParallelism: cfg.Search.DecodeParallelism,
		PoolMultiplier:    cfg.Search.PoolMultiplier,
		PoolCap:           cfg.Search.PoolCap,
	})
}

// plutilConverter returns a typedstream-to-plist converter backed by the
// system plutil binary, or nil when it is not on PATH (non-macOS hosts).
func plutilConverter() richtext.Converter {
	path, err := exec.LookPath("plutil")
	if err != nil {
		return nil
	}
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		c := exec.CommandContext(ctx, path, "-convert", "xml1", "-o", "-", "-")
		c.Stdin = bytes.NewReader(payload)
		return c.Output()
	}
}

// queryContext derives a per-command timeout from the configuration.
func queryContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	timeout := time.Duration(cfg.Store.QueryTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return context.WithTimeout(cmd.Context(), timeout)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.chatvault/config.toml)")
	rootCmd.PersistentFlags().StringVar(&storePath, "store", "", "chat.db path (default: ~/Library/Messages/chat.db)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
