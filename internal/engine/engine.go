// Package engine executes scoped queries against a Messages store and
// returns normalized records. It owns the two-phase search: an indexed pass
// over plain text, then a bounded decode pass over rich-text-only rows.
package engine

import (
	"log/slog"

	"github.com/wesm/chatvault/internal/identity"
	"github.com/wesm/chatvault/internal/message"
	"github.com/wesm/chatvault/internal/richtext"
	"github.com/wesm/chatvault/internal/store"
)

// Options tunes query behavior. Zero values take the defaults below.
type Options struct {
	// DefaultLimit applies when a request leaves Limit unset.
	DefaultLimit int

	// DecodeParallelism bounds concurrent payload decodes in search phase 2.
	DecodeParallelism int

	// PoolMultiplier scales the phase-2 candidate pool by the number of
	// results still needed; PoolCap is the hard ceiling.
	PoolMultiplier int
	PoolCap        int
}

func (o Options) withDefaults() Options {
	if o.DefaultLimit <= 0 {
		o.DefaultLimit = 50
	}
	if o.DecodeParallelism <= 0 {
		o.DecodeParallelism = 8
	}
	if o.PoolMultiplier <= 0 {
		o.PoolMultiplier = 20
	}
	if o.PoolCap <= 0 {
		o.PoolCap = 500
	}
	return o
}

// Engine runs operations against one open store.
type Engine struct {
	store    *store.Store
	resolver *identity.Resolver
	decoder  *richtext.Decoder
	opts     Options
	log      *slog.Logger
}

// New builds an Engine over s. decoder may carry a converter hook for the
// legacy decode tier; pass richtext.NewDecoder() for the default chain.
func New(s *store.Store, decoder *richtext.Decoder, opts Options) *Engine {
	return &Engine{
		store:    s,
		resolver: identity.NewResolver(s),
		decoder:  decoder,
		opts:     opts.withDefaults(),
		log:      slog.Default(),
	}
}

// Store exposes the underlying store for callers that need stats.
func (e *Engine) Store() *store.Store {
	return e.store
}

// limitOrDefault resolves a request limit.
func (e *Engine) limitOrDefault(limit int) int {
	if limit <= 0 {
		return e.opts.DefaultLimit
	}
	return limit
}

// decodeRow runs the tiered decoder over a row's payload, nil when there is
// nothing to decode. Decode failures are isolated: the row is returned
// without recovered text.
func (e *Engine) decodeRow(row store.RawRow) *richtext.Decoded {
	if len(row.Payload) == 0 {
		return nil
	}
	dec, err := e.decoder.Decode(row.Payload)
	if err != nil {
		e.log.Warn("rich text decode failed", "row", row.RowID, "error", err)
		return nil
	}
	return dec
}

// toMessage converts a store projection plus its decode result into the
// canonical record.
func toMessage(row store.RawRow, dec *richtext.Decoded) message.NormalizedMessage {
	m := message.RawRow{
		RowID:          row.RowID,
		GUID:           row.GUID,
		FromMe:         row.IsFromMe,
		Payload:        row.Payload,
		HasAttachments: row.HasAttachments,
	}
	if row.ChatID.Valid {
		m.ChatID = &row.ChatID.Int64
	}
	if row.Text.Valid {
		m.Text = &row.Text.String
	}
	if row.Date.Valid {
		m.DateRaw = &row.Date.Int64
	}
	if row.SenderHandle.Valid {
		m.Sender = &row.SenderHandle.String
	}
	if row.Service.Valid {
		m.Service = &row.Service.String
	}
	if row.Account.Valid {
		m.Account = &row.Account.String
	}
	if row.Subject.Valid {
		m.Subject = &row.Subject.String
	}
	if row.AssociatedType.Valid {
		m.AssociatedType = &row.AssociatedType.Int64
	}
	if row.AssociatedGUID.Valid {
		m.AssociatedGUID = &row.AssociatedGUID.String
	}
	if row.ExpressiveStyle.Valid {
		m.ExpressiveStyle = &row.ExpressiveStyle.String
	}
	if row.ThreadOriginator.Valid {
		m.ThreadOriginator = &row.ThreadOriginator.String
	}
	if row.ReplyToGUID.Valid {
		m.ReplyToGUID = &row.ReplyToGUID.String
	}
	if row.ItemType.Valid {
		m.ItemType = &row.ItemType.Int64
	}
	return message.Normalize(m, dec)
}

// normalizeRows maps and decodes a batch.
func (e *Engine) normalizeRows(rows []store.RawRow) []message.NormalizedMessage {
	out := make([]message.NormalizedMessage, 0, len(rows))
	for _, row := range rows {
		out = append(out, toMessage(row, e.decodeRow(row)))
	}
	return out
}
