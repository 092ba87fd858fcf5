package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/wesm/chatvault/internal/msgerr"
)

// Attachment is one file record joined to a message.
type Attachment struct {
	MessageRowID int64  `json:"message_row_id"`
	Filename     string `json:"filename,omitempty"`
	TransferName string `json:"transfer_name,omitempty"`
	MimeType     string `json:"mime_type,omitempty"`
	UTI          string `json:"uti,omitempty"`
	TotalBytes   int64  `json:"total_bytes"`
}

// GetAttachments returns attachment records for the given message rows,
// keeping at most perRowCap per message. perRowCap <= 0 means no cap.
func (e *Engine) GetAttachments(ctx context.Context, rowIDs []int64, perRowCap int) (map[int64][]Attachment, error) {
	out := make(map[int64][]Attachment)
	if len(rowIDs) == 0 {
		return out, nil
	}

	placeholders := make([]string, len(rowIDs))
	args := make([]interface{}, len(rowIDs))
	for i, id := range rowIDs {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf(`
		SELECT
			maj.message_id,
			COALESCE(a.filename, ''),
			COALESCE(a.transfer_name, ''),
			COALESCE(a.mime_type, ''),
			COALESCE(a.uti, ''),
			COALESCE(a.total_bytes, 0)
		FROM message_attachment_join maj
		JOIN attachment a ON a.ROWID = maj.attachment_id
		WHERE maj.message_id IN (%s)
		ORDER BY maj.message_id, a.ROWID
	`, strings.Join(placeholders, ","))

	rows, err := e.store.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, msgerr.StoreUnavailable(e.store.Path(), fmt.Errorf("fetch attachments: %w", err))
	}
	defer rows.Close()

	for rows.Next() {
		var a Attachment
		if err := rows.Scan(&a.MessageRowID, &a.Filename, &a.TransferName,
			&a.MimeType, &a.UTI, &a.TotalBytes); err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		if perRowCap > 0 && len(out[a.MessageRowID]) >= perRowCap {
			continue
		}
		out[a.MessageRowID] = append(out[a.MessageRowID], a)
	}
	if err := rows.Err(); err != nil {
		return nil, msgerr.StoreUnavailable(e.store.Path(), err)
	}
	return out, nil
}
