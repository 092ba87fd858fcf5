// Package message merges a raw store row with its decoded rich text into
// one canonical record and assigns a message-type tag.
package message

import (
	"strings"

	"github.com/wesm/chatvault/internal/appletime"
	"github.com/wesm/chatvault/internal/richtext"
	"github.com/wesm/chatvault/internal/textutil"
)

// Message types, in classification precedence order.
const (
	TypeText            = "text"
	TypeReaction        = "reaction"
	TypeReactionRemoved = "reaction_removed"
	TypeEffect          = "effect"
	TypeAttachment      = "attachment"
	TypeUnknown         = "unknown"
)

// Text provenance values. The decoder's provenance tags are reused as-is
// for text recovered from the rich-text payload.
const (
	SourceText = "text"
	SourceNone = "none"
)

// Tapback codes. Adding a reaction stores the base code; removing it stores
// base + 1000.
const (
	tapbackBase        = 2000
	tapbackRemovedBase = 3000
)

var tapbackKinds = map[int64]string{
	0: "loved",
	1: "liked",
	2: "disliked",
	3: "laughed",
	4: "emphasized",
	5: "questioned",
}

// NormalizedMessage is the canonical output entity for every operation.
type NormalizedMessage struct {
	RowID  int64  `json:"row_id"`
	ChatID *int64 `json:"chat_id,omitempty"`
	GUID   string `json:"guid,omitempty"`
	FromMe bool   `json:"from_me"`

	Text       *string `json:"text,omitempty"`
	TextSource string  `json:"text_source"`

	Sender *string `json:"sender,omitempty"`

	DateMs    int64  `json:"date_ms"`
	DateUTC   string `json:"date_utc"`
	DateLocal string `json:"date_local"`

	HasAttachments  bool              `json:"has_attachments"`
	AttachmentHints []richtext.Entity `json:"attachment_hints,omitempty"`
	Mentions        []richtext.Entity `json:"mentions,omitempty"`
	Links           []richtext.Entity `json:"links,omitempty"`

	Service *string `json:"service,omitempty"`
	Account *string `json:"account,omitempty"`
	Subject *string `json:"subject,omitempty"`

	MessageType string `json:"message_type"`
	Subtype     string `json:"subtype,omitempty"`

	// Metadata preserves raw reaction/effect/threading fields verbatim so
	// classification never loses information.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// RawRow is the untyped projection of store columns this package consumes.
// It mirrors store.RawRow field-for-field; a local alias keeps the package
// free of a store dependency and trivially testable.
type RawRow struct {
	RowID          int64
	ChatID         *int64
	GUID           string
	FromMe         bool
	Text           *string
	Payload        []byte
	DateRaw        *int64
	Sender         *string
	HasAttachments bool

	Service *string
	Account *string
	Subject *string

	AssociatedType   *int64
	AssociatedGUID   *string
	ExpressiveStyle  *string
	ThreadOriginator *string
	ReplyToGUID      *string
	ItemType         *int64
}

// Normalize builds the canonical record. dec may be nil when the row has no
// payload or decoding failed catastrophically.
func Normalize(row RawRow, dec *richtext.Decoded) NormalizedMessage {
	m := NormalizedMessage{
		RowID:          row.RowID,
		ChatID:         row.ChatID,
		GUID:           row.GUID,
		FromMe:         row.FromMe,
		Sender:         row.Sender,
		HasAttachments: row.HasAttachments,
		Service:        row.Service,
		Account:        row.Account,
		Subject:        row.Subject,
		TextSource:     SourceNone,
	}

	if row.DateRaw != nil {
		m.DateMs = appletime.ToUnixMs(*row.DateRaw)
		m.DateUTC = appletime.ISOUTC(m.DateMs)
		m.DateLocal = appletime.ISOLocal(m.DateMs)
	}

	// Plain text wins when it survives cleanup; the decoded payload still
	// contributes entity spans either way.
	if row.Text != nil {
		if cleaned := textutil.CleanRecovered(*row.Text); cleaned != "" {
			m.Text = &cleaned
			m.TextSource = SourceText
		}
	}
	if dec != nil {
		if m.Text == nil && dec.Text != "" {
			text := dec.Text
			m.Text = &text
			m.TextSource = string(dec.Provenance)
		}
		m.AttachmentHints = dec.Attachments
		m.Mentions = dec.Mentions
		m.Links = dec.Links
	}

	m.Metadata = metadataBag(row)
	m.MessageType, m.Subtype = classify(row, m)
	return m
}

// classify applies the precedence rules: reaction beats effect beats
// attachment beats text. A reaction row may also carry an effect field, but
// reaction semantics dominate.
func classify(row RawRow, m NormalizedMessage) (string, string) {
	if row.AssociatedType != nil {
		code := *row.AssociatedType
		if kind, removed, ok := tapbackKind(code); ok {
			if removed {
				return TypeReactionRemoved, kind
			}
			return TypeReaction, kind
		}
	}
	if row.ExpressiveStyle != nil && strings.TrimSpace(*row.ExpressiveStyle) != "" {
		return TypeEffect, *row.ExpressiveStyle
	}
	if (m.HasAttachments || len(m.AttachmentHints) > 0) && m.Text == nil {
		return TypeAttachment, ""
	}
	if m.Text != nil {
		return TypeText, ""
	}
	return TypeUnknown, ""
}

func tapbackKind(code int64) (kind string, removed bool, ok bool) {
	switch {
	case code >= tapbackBase && code < tapbackBase+1000:
		kind, ok = tapbackKinds[code-tapbackBase]
		return kind, false, ok
	case code >= tapbackRemovedBase && code < tapbackRemovedBase+1000:
		kind, ok = tapbackKinds[code-tapbackRemovedBase]
		return kind, true, ok
	}
	return "", false, false
}

func metadataBag(row RawRow) map[string]interface{} {
	bag := map[string]interface{}{}
	if row.AssociatedType != nil {
		bag["associated_message_type"] = *row.AssociatedType
	}
	if row.AssociatedGUID != nil {
		bag["associated_message_guid"] = *row.AssociatedGUID
	}
	if row.ExpressiveStyle != nil {
		bag["expressive_send_style_id"] = *row.ExpressiveStyle
	}
	if row.ThreadOriginator != nil {
		bag["thread_originator_guid"] = *row.ThreadOriginator
	}
	if row.ReplyToGUID != nil {
		bag["reply_to_guid"] = *row.ReplyToGUID
	}
	if row.ItemType != nil {
		bag["item_type"] = *row.ItemType
	}
	if len(bag) == 0 {
		return nil
	}
	return bag
}
