package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wesm/chatvault/internal/engine"
)

// scopeFlags collects the scope options shared by messages and search.
type scopeFlags struct {
	chatID      int64
	participant string
	after       string
	before      string
}

func (f *scopeFlags) register(cmd *cobra.Command) {
	cmd.Flags().Int64Var(&f.chatID, "chat", 0, "restrict to one chat id (see 'chatvault chats')")
	cmd.Flags().StringVar(&f.participant, "with", "", "restrict to a participant: handle, phone, or group name")
	cmd.Flags().StringVar(&f.after, "after", "", "only messages after this date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.before, "before", "", "only messages before this date (YYYY-MM-DD)")
}

func (f *scopeFlags) build() (engine.Scope, error) {
	var scope engine.Scope
	if f.chatID > 0 {
		id := f.chatID
		scope.ChatID = &id
	}
	scope.Participant = f.participant

	var err error
	if scope.AfterMs, err = parseDateFlag("after", f.after); err != nil {
		return scope, err
	}
	if scope.BeforeMs, err = parseDateFlag("before", f.before); err != nil {
		return scope, err
	}
	return scope, nil
}

func parseDateFlag(name, value string) (*int64, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s date %q: expected YYYY-MM-DD", name, value)
	}
	ms := t.UnixMilli()
	return &ms, nil
}
