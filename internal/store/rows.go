package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/wesm/chatvault/internal/msgerr"
)

// RawRow is an untyped projection of message columns for one row. Produced
// fresh per query, consumed by the normalizer, never retained. Optional
// columns the schema lacks scan as NULL.
type RawRow struct {
	RowID          int64
	GUID           string
	IsFromMe       bool
	Text           sql.NullString
	Payload        []byte // attributedBody archive, nil when absent
	Date           sql.NullInt64
	SenderHandle   sql.NullString
	HasAttachments bool

	Service             sql.NullString
	Account             sql.NullString
	Subject             sql.NullString
	AssociatedType      sql.NullInt64
	AssociatedGUID      sql.NullString
	ExpressiveStyle     sql.NullString
	ThreadOriginator    sql.NullString
	ReplyToGUID         sql.NullString
	ItemType            sql.NullInt64
	DestinationCallerID sql.NullString

	ChatID sql.NullInt64
}

// RowClause is a scoped, already-bound query description for one fetch.
// Joins and Where reference the message table as m and the handle join as h.
type RowClause struct {
	Joins   string
	Where   string
	Args    []interface{}
	OrderBy string // defaults to m.date DESC
	Limit   int
	Offset  int

	// ChatIDExpr selects the chat id column (e.g. "cmj.chat_id") when the
	// caller's Joins provide one; empty selects NULL.
	ChatIDExpr string
}

// optCol returns expr when the capability is present, else a typed NULL so
// the scan shape stays fixed across schema generations.
func optCol(ok bool, expr string) string {
	if ok {
		return expr
	}
	return "NULL"
}

// optFlag is optCol for boolean-ish columns, defaulting to 0.
func optFlag(ok bool, expr string) string {
	if ok {
		return "COALESCE(" + expr + ", 0)"
	}
	return "0"
}

// FetchMessages runs one scoped row fetch and returns the ordered RawRow
// projections. The select list is built from the store's capabilities so a
// column missing from an old schema degrades to NULL instead of failing.
func (s *Store) FetchMessages(ctx context.Context, caps *SchemaCapabilities, clause RowClause) ([]RawRow, error) {
	where := clause.Where
	if where == "" {
		where = "1=1"
	}
	orderBy := clause.OrderBy
	if orderBy == "" {
		orderBy = "m.date DESC"
	}
	chatID := clause.ChatIDExpr
	if chatID == "" {
		chatID = "NULL"
	}

	query := fmt.Sprintf(`
		SELECT
			m.ROWID,
			COALESCE(m.guid, ''),
			COALESCE(m.is_from_me, 0),
			m.text,
			%s,
			m.date,
			h.id,
			%s,
			%s, %s, %s,
			%s, %s, %s, %s, %s, %s, %s,
			%s
		FROM message m
		LEFT JOIN handle h ON h.ROWID = m.handle_id
		%s
		WHERE %s
		ORDER BY %s
		LIMIT ? OFFSET ?
	`,
		optCol(caps.AttributedBody, "m.attributedBody"),
		optFlag(caps.CacheHasAttachments, "m.cache_has_attachments"),
		optCol(caps.Service, "m.service"),
		optCol(caps.Account, "m.account"),
		optCol(caps.Subject, "m.subject"),
		optCol(caps.AssociatedMessageType, "m.associated_message_type"),
		optCol(caps.AssociatedMessageGUID, "m.associated_message_guid"),
		optCol(caps.ExpressiveSendStyleID, "m.expressive_send_style_id"),
		optCol(caps.ThreadOriginatorGUID, "m.thread_originator_guid"),
		optCol(caps.ReplyToGUID, "m.reply_to_guid"),
		optCol(caps.ItemType, "m.item_type"),
		optCol(caps.DestinationCallerID, "m.destination_caller_id"),
		chatID,
		clause.Joins,
		where,
		orderBy,
	)

	args := append(append([]interface{}{}, clause.Args...), clause.Limit, clause.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, msgerr.StoreUnavailable(s.path, fmt.Errorf("fetch messages: %w", err))
	}
	defer rows.Close()

	var out []RawRow
	for rows.Next() {
		var r RawRow
		var hasAtt int64
		if err := rows.Scan(
			&r.RowID,
			&r.GUID,
			&r.IsFromMe,
			&r.Text,
			&r.Payload,
			&r.Date,
			&r.SenderHandle,
			&hasAtt,
			&r.Service, &r.Account, &r.Subject,
			&r.AssociatedType, &r.AssociatedGUID, &r.ExpressiveStyle,
			&r.ThreadOriginator, &r.ReplyToGUID, &r.ItemType, &r.DestinationCallerID,
			&r.ChatID,
		); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		r.HasAttachments = hasAtt != 0
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, msgerr.StoreUnavailable(s.path, fmt.Errorf("iterate messages: %w", err))
	}
	return out, nil
}
