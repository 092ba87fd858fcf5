package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/wesm/chatvault/internal/appletime"
	"github.com/wesm/chatvault/internal/msgerr"
	"github.com/wesm/chatvault/internal/textutil"
)

// ChatSummary is one conversation with its participants and last activity.
type ChatSummary struct {
	ChatID       int64    `json:"chat_id"`
	Identifier   string   `json:"identifier"`
	DisplayName  string   `json:"display_name,omitempty"`
	Service      string   `json:"service,omitempty"`
	Participants []string `json:"participants,omitempty"`
	MessageCount int64    `json:"message_count"`

	LastActivityMs  int64  `json:"last_activity_ms,omitempty"`
	LastActivityUTC string `json:"last_activity_utc,omitempty"`
	LastMessage     string `json:"last_message,omitempty"`
}

const lastMessagePreviewRunes = 80

// ListChats returns conversations ordered by most recent activity.
func (e *Engine) ListChats(ctx context.Context, limit int) ([]ChatSummary, error) {
	caps, err := e.store.Capabilities(ctx)
	if err != nil {
		return nil, err
	}
	limit = e.limitOrDefault(limit)

	displayName := "NULL"
	if caps.ChatDisplayName {
		displayName = "c.display_name"
	}

	query := fmt.Sprintf(`
		SELECT
			c.ROWID,
			COALESCE(c.chat_identifier, ''),
			COALESCE(%s, ''),
			COALESCE(c.service_name, ''),
			(SELECT GROUP_CONCAT(h.id, char(31))
			   FROM chat_handle_join chj
			   JOIN handle h ON h.ROWID = chj.handle_id
			  WHERE chj.chat_id = c.ROWID),
			(SELECT COUNT(*) FROM chat_message_join x WHERE x.chat_id = c.ROWID),
			(SELECT MAX(m.date)
			   FROM chat_message_join x
			   JOIN message m ON m.ROWID = x.message_id
			  WHERE x.chat_id = c.ROWID),
			(SELECT m.text
			   FROM chat_message_join x
			   JOIN message m ON m.ROWID = x.message_id
			  WHERE x.chat_id = c.ROWID AND m.text IS NOT NULL AND m.text != ''
			  ORDER BY m.date DESC LIMIT 1)
		FROM chat c
		ORDER BY 7 DESC
		LIMIT ?
	`, displayName)

	rows, err := e.store.DB().QueryContext(ctx, query, limit)
	if err != nil {
		return nil, msgerr.StoreUnavailable(e.store.Path(), fmt.Errorf("list chats: %w", err))
	}
	defer rows.Close()

	var out []ChatSummary
	for rows.Next() {
		var c ChatSummary
		var participants, preview sql.NullString
		var lastDate sql.NullInt64
		if err := rows.Scan(&c.ChatID, &c.Identifier, &c.DisplayName, &c.Service,
			&participants, &c.MessageCount, &lastDate, &preview); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		if participants.Valid && participants.String != "" {
			c.Participants = strings.Split(participants.String, "\x1f")
		}
		if lastDate.Valid {
			c.LastActivityMs = appletime.ToUnixMs(lastDate.Int64)
			c.LastActivityUTC = appletime.ISOUTC(c.LastActivityMs)
		}
		if preview.Valid {
			c.LastMessage = textutil.TruncateRunes(
				textutil.FirstLine(textutil.CleanRecovered(preview.String)), lastMessagePreviewRunes)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, msgerr.StoreUnavailable(e.store.Path(), err)
	}
	return out, nil
}
