package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/wesm/chatvault/internal/appletime"
	"github.com/wesm/chatvault/internal/identity"
	"github.com/wesm/chatvault/internal/msgerr"
	"github.com/wesm/chatvault/internal/store"
)

// Scope restricts which rows a query may examine. Search requires at least
// one field set; a store can hold years of history and an unscoped scan is
// never what the caller meant.
type Scope struct {
	ChatID      *int64
	Participant string

	// AfterMs / BeforeMs are inclusive Unix-millisecond bounds.
	AfterMs  *int64
	BeforeMs *int64
}

// Empty reports whether no scope field is set.
func (s Scope) Empty() bool {
	return s.ChatID == nil && s.Participant == "" && s.AfterMs == nil && s.BeforeMs == nil
}

// Filters narrows rows within a scope.
type Filters struct {
	FromMe        *bool
	HasAttachment *bool
}

// buildClause translates scope+filters into a bound RowClause. The chat
// join is always present so results carry their chat id.
func (e *Engine) buildClause(ctx context.Context, scope Scope, filters Filters) (store.RowClause, error) {
	clause := store.RowClause{
		Joins:      "LEFT JOIN chat_message_join cmj ON cmj.message_id = m.ROWID",
		ChatIDExpr: "cmj.chat_id",
	}
	var conds []string

	if scope.ChatID != nil {
		conds = append(conds, "cmj.chat_id = ?")
		clause.Args = append(clause.Args, *scope.ChatID)
	}

	if scope.Participant != "" {
		cond, args, err := e.participantCond(ctx, scope.Participant)
		if err != nil {
			return store.RowClause{}, err
		}
		conds = append(conds, cond)
		clause.Args = append(clause.Args, args...)
	}

	if scope.AfterMs != nil || scope.BeforeMs != nil {
		scale, err := e.store.TimestampScale(ctx)
		if err != nil {
			return store.RowClause{}, err
		}
		if scope.AfterMs != nil {
			conds = append(conds, "m.date >= ?")
			clause.Args = append(clause.Args, appletime.ToAppleUnits(*scope.AfterMs, scale))
		}
		if scope.BeforeMs != nil {
			conds = append(conds, "m.date <= ?")
			clause.Args = append(clause.Args, appletime.ToAppleUnits(*scope.BeforeMs, scale))
		}
	}

	if filters.FromMe != nil {
		fromMe := 0
		if *filters.FromMe {
			fromMe = 1
		}
		conds = append(conds, "COALESCE(m.is_from_me, 0) = ?")
		clause.Args = append(clause.Args, fromMe)
	}
	if filters.HasAttachment != nil {
		cond, err := e.attachmentCond(ctx, *filters.HasAttachment)
		if err != nil {
			return store.RowClause{}, err
		}
		conds = append(conds, cond)
	}

	clause.Where = strings.Join(conds, " AND ")
	return clause, nil
}

// participantCond matches messages the participant sent, plus the caller's
// own messages in chats the participant belongs to.
func (e *Engine) participantCond(ctx context.Context, participant string) (string, []interface{}, error) {
	handles, err := e.resolver.Resolve(ctx, participant)
	if err != nil {
		return "", nil, err
	}
	in, args := inClause(handles)
	cond := fmt.Sprintf(`(h.id IN (%s) OR (COALESCE(m.is_from_me, 0) = 1 AND cmj.chat_id IN (
		SELECT chj.chat_id FROM chat_handle_join chj
		JOIN handle hh ON hh.ROWID = chj.handle_id
		WHERE hh.id IN (%s))))`, in, in)
	both := append(append([]interface{}{}, args...), args...)
	return cond, both, nil
}

func (e *Engine) attachmentCond(ctx context.Context, want bool) (string, error) {
	caps, err := e.store.Capabilities(ctx)
	if err != nil {
		return "", err
	}
	if caps.CacheHasAttachments {
		if want {
			return "COALESCE(m.cache_has_attachments, 0) != 0", nil
		}
		return "COALESCE(m.cache_has_attachments, 0) = 0", nil
	}
	exists := "EXISTS (SELECT 1 FROM message_attachment_join maj WHERE maj.message_id = m.ROWID)"
	if want {
		return exists, nil
	}
	return "NOT " + exists, nil
}

func inClause(handles identity.HandleSet) (string, []interface{}) {
	placeholders := make([]string, len(handles))
	args := make([]interface{}, len(handles))
	for i, h := range handles {
		placeholders[i] = "?"
		args[i] = h
	}
	return strings.Join(placeholders, ","), args
}

// requireScope enforces the mandatory-scope invariant before any query.
func requireScope(scope Scope) error {
	if scope.Empty() {
		return msgerr.ScopeRequired()
	}
	return nil
}
