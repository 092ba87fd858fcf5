package engine

import (
	"context"
	"sort"

	"github.com/wesm/chatvault/internal/message"
	"github.com/wesm/chatvault/internal/msgerr"
	"github.com/wesm/chatvault/internal/store"
)

// MessagesRequest describes one history fetch. Scope is mandatory.
type MessagesRequest struct {
	Scope   Scope
	Filters Filters
	Limit   int
	Offset  int
}

// GetMessages returns scope-matching messages, newest first.
func (e *Engine) GetMessages(ctx context.Context, req MessagesRequest) ([]message.NormalizedMessage, error) {
	if err := requireScope(req.Scope); err != nil {
		return nil, err
	}
	clause, err := e.buildClause(ctx, req.Scope, req.Filters)
	if err != nil {
		return nil, err
	}
	caps, err := e.store.Capabilities(ctx)
	if err != nil {
		return nil, err
	}
	clause.Limit = e.limitOrDefault(req.Limit)
	clause.Offset = req.Offset

	rows, err := e.store.FetchMessages(ctx, caps, clause)
	if err != nil {
		return nil, err
	}
	return e.normalizeRows(rows), nil
}

// ContextResult is a window of messages around one anchor row, ascending by
// timestamp.
type ContextResult struct {
	Messages    []message.NormalizedMessage `json:"messages"`
	AnchorRowID int64                       `json:"anchor_row_id"`

	// TotalConsidered counts the rows in the window; Truncated reports a
	// clipped window, where fewer neighbors existed than were asked for on
	// at least one side of the anchor.
	TotalConsidered int  `json:"total_considered"`
	Truncated       bool `json:"truncated"`
}

// ContextAround returns up to before+1+after messages centered on rowID,
// drawn from the anchor's chat when it has one.
func (e *Engine) ContextAround(ctx context.Context, rowID int64, before, after int) (*ContextResult, error) {
	if before < 0 {
		before = 0
	}
	if after < 0 {
		after = 0
	}
	caps, err := e.store.Capabilities(ctx)
	if err != nil {
		return nil, err
	}

	anchor, err := e.fetchAnchor(ctx, caps, rowID)
	if err != nil {
		return nil, err
	}

	chatCond := "1=1"
	var chatArgs []interface{}
	if anchor.ChatID.Valid {
		chatCond = "cmj.chat_id = ?"
		chatArgs = []interface{}{anchor.ChatID.Int64}
	}
	anchorDate := int64(0)
	if anchor.Date.Valid {
		anchorDate = anchor.Date.Int64
	}

	// Neighbors tie-break on ROWID so rows sharing a timestamp with the
	// anchor land on a deterministic side.
	beforeRows, err := e.store.FetchMessages(ctx, caps, store.RowClause{
		Joins:      "LEFT JOIN chat_message_join cmj ON cmj.message_id = m.ROWID",
		ChatIDExpr: "cmj.chat_id",
		Where:      chatCond + " AND (m.date < ? OR (m.date = ? AND m.ROWID < ?))",
		Args:       append(append([]interface{}{}, chatArgs...), anchorDate, anchorDate, rowID),
		OrderBy:    "m.date DESC, m.ROWID DESC",
		Limit:      before,
	})
	if err != nil {
		return nil, err
	}
	afterRows, err := e.store.FetchMessages(ctx, caps, store.RowClause{
		Joins:      "LEFT JOIN chat_message_join cmj ON cmj.message_id = m.ROWID",
		ChatIDExpr: "cmj.chat_id",
		Where:      chatCond + " AND (m.date > ? OR (m.date = ? AND m.ROWID > ?))",
		Args:       append(append([]interface{}{}, chatArgs...), anchorDate, anchorDate, rowID),
		OrderBy:    "m.date ASC, m.ROWID ASC",
		Limit:      after,
	})
	if err != nil {
		return nil, err
	}

	rows := make([]store.RawRow, 0, len(beforeRows)+1+len(afterRows))
	rows = append(rows, beforeRows...)
	rows = append(rows, *anchor)
	rows = append(rows, afterRows...)

	msgs := e.normalizeRows(rows)
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].DateMs != msgs[j].DateMs {
			return msgs[i].DateMs < msgs[j].DateMs
		}
		return msgs[i].RowID < msgs[j].RowID
	})

	return &ContextResult{
		Messages:        msgs,
		AnchorRowID:     rowID,
		TotalConsidered: len(msgs),
		Truncated:       len(beforeRows) < before || len(afterRows) < after,
	}, nil
}

func (e *Engine) fetchAnchor(ctx context.Context, caps *store.SchemaCapabilities, rowID int64) (*store.RawRow, error) {
	rows, err := e.store.FetchMessages(ctx, caps, store.RowClause{
		Joins:      "LEFT JOIN chat_message_join cmj ON cmj.message_id = m.ROWID",
		ChatIDExpr: "cmj.chat_id",
		Where:      "m.ROWID = ?",
		Args:       []interface{}{rowID},
		Limit:      1,
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, msgerr.NotFound("message", rowID)
	}
	return &rows[0], nil
}
