package message

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wesm/chatvault/internal/appletime"
	"github.com/wesm/chatvault/internal/richtext"
)

func strPtr(s string) *string { return &s }
func intPtr(i int64) *int64   { return &i }

func TestNormalizeTextPrecedence(t *testing.T) {
	dec := &richtext.Decoded{Text: "decoded text", Provenance: richtext.ProvenancePrimary}

	tests := []struct {
		name       string
		plain      *string
		dec        *richtext.Decoded
		wantText   *string
		wantSource string
	}{
		{"plain text wins", strPtr("hello"), dec, strPtr("hello"), SourceText},
		{"whitespace plain falls to decoded", strPtr("   \n"), dec, strPtr("decoded text"), "primary-parser"},
		{"nil plain falls to decoded", nil, dec, strPtr("decoded text"), "primary-parser"},
		{"no sources", nil, nil, nil, SourceNone},
		{"decoded empty", nil, &richtext.Decoded{Provenance: richtext.ProvenanceNone}, nil, SourceNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Normalize(RawRow{RowID: 1, Text: tt.plain}, tt.dec)
			if diff := cmp.Diff(tt.wantText, m.Text); diff != "" {
				t.Errorf("text mismatch (-want +got):\n%s", diff)
			}
			if m.TextSource != tt.wantSource {
				t.Errorf("text source = %q, want %q", m.TextSource, tt.wantSource)
			}
		})
	}
}

func TestNormalizeNeverTextSourceOnEmptyColumn(t *testing.T) {
	m := Normalize(RawRow{RowID: 1, Text: strPtr("  ")}, nil)
	if m.TextSource == SourceText {
		t.Fatal("text source must not be \"text\" when the plain-text column is empty")
	}
}

func TestClassifyReactions(t *testing.T) {
	tests := []struct {
		code        int64
		wantType    string
		wantSubtype string
	}{
		{2000, TypeReaction, "loved"},
		{2001, TypeReaction, "liked"},
		{2002, TypeReaction, "disliked"},
		{2003, TypeReaction, "laughed"},
		{2004, TypeReaction, "emphasized"},
		{2005, TypeReaction, "questioned"},
		{3000, TypeReactionRemoved, "loved"},
		{3005, TypeReactionRemoved, "questioned"},
	}
	for _, tt := range tests {
		m := Normalize(RawRow{RowID: 1, AssociatedType: intPtr(tt.code)}, nil)
		if m.MessageType != tt.wantType || m.Subtype != tt.wantSubtype {
			t.Errorf("code %d: got (%s, %s), want (%s, %s)",
				tt.code, m.MessageType, m.Subtype, tt.wantType, tt.wantSubtype)
		}
	}
}

func TestClassifyUnrecognizedAssociatedType(t *testing.T) {
	// Sticker placements and other non-tapback codes fall through to the
	// remaining rules rather than masquerading as reactions.
	m := Normalize(RawRow{RowID: 1, AssociatedType: intPtr(1000), Text: strPtr("hi")}, nil)
	if m.MessageType != TypeText {
		t.Errorf("message type = %s, want %s", m.MessageType, TypeText)
	}
}

func TestClassifyReactionDominatesEffect(t *testing.T) {
	m := Normalize(RawRow{
		RowID:           1,
		AssociatedType:  intPtr(2001),
		ExpressiveStyle: strPtr("com.apple.MobileSMS.expressivesend.impact"),
	}, nil)
	if m.MessageType != TypeReaction {
		t.Errorf("message type = %s, want %s", m.MessageType, TypeReaction)
	}
	if m.Subtype != "liked" {
		t.Errorf("subtype = %q, want %q", m.Subtype, "liked")
	}
}

func TestClassifyEffect(t *testing.T) {
	style := "com.apple.messages.effect.CKConfettiEffect"
	m := Normalize(RawRow{RowID: 1, Text: strPtr("congrats!"), ExpressiveStyle: &style}, nil)
	if m.MessageType != TypeEffect {
		t.Errorf("message type = %s, want %s", m.MessageType, TypeEffect)
	}
	if m.Subtype != style {
		t.Errorf("subtype = %q, want %q", m.Subtype, style)
	}
}

func TestClassifyAttachment(t *testing.T) {
	m := Normalize(RawRow{RowID: 1, HasAttachments: true}, nil)
	if m.MessageType != TypeAttachment {
		t.Errorf("message type = %s, want %s", m.MessageType, TypeAttachment)
	}

	// Attachments plus text classify as text.
	m = Normalize(RawRow{RowID: 1, HasAttachments: true, Text: strPtr("see photo")}, nil)
	if m.MessageType != TypeText {
		t.Errorf("message type with caption = %s, want %s", m.MessageType, TypeText)
	}
}

func TestClassifyUnknown(t *testing.T) {
	m := Normalize(RawRow{RowID: 1}, nil)
	if m.MessageType != TypeUnknown {
		t.Errorf("message type = %s, want %s", m.MessageType, TypeUnknown)
	}
}

func TestClassifyNeverUnknownWithSignal(t *testing.T) {
	rows := []RawRow{
		{RowID: 1, Text: strPtr("hi")},
		{RowID: 2, HasAttachments: true},
		{RowID: 3, AssociatedType: intPtr(2000)},
		{RowID: 4, ExpressiveStyle: strPtr("effect")},
	}
	for _, row := range rows {
		if m := Normalize(row, nil); m.MessageType == TypeUnknown {
			t.Errorf("row %d classified unknown despite signal", row.RowID)
		}
	}
}

func TestNormalizeDateProjections(t *testing.T) {
	// 2023-01-15 00:00:00 UTC in Apple nanoseconds.
	const unixMs = int64(1673740800000)
	raw := appletime.ToAppleUnits(unixMs, appletime.ScaleNanoseconds)

	m := Normalize(RawRow{RowID: 1, DateRaw: &raw}, nil)
	if m.DateMs != unixMs {
		t.Errorf("DateMs = %d, want %d", m.DateMs, unixMs)
	}
	if m.DateUTC != "2023-01-15T00:00:00Z" {
		t.Errorf("DateUTC = %q", m.DateUTC)
	}
	if m.DateLocal == "" {
		t.Error("DateLocal empty")
	}
}

func TestNormalizeMetadataBag(t *testing.T) {
	row := RawRow{
		RowID:            1,
		AssociatedType:   intPtr(2000),
		AssociatedGUID:   strPtr("p:0/TARGET-GUID"),
		ExpressiveStyle:  strPtr("style-id"),
		ThreadOriginator: strPtr("THREAD-GUID"),
		ReplyToGUID:      strPtr("REPLY-GUID"),
		ItemType:         intPtr(0),
	}
	m := Normalize(row, nil)

	want := map[string]interface{}{
		"associated_message_type":  int64(2000),
		"associated_message_guid":  "p:0/TARGET-GUID",
		"expressive_send_style_id": "style-id",
		"thread_originator_guid":   "THREAD-GUID",
		"reply_to_guid":            "REPLY-GUID",
		"item_type":                int64(0),
	}
	if diff := cmp.Diff(want, m.Metadata); diff != "" {
		t.Errorf("metadata mismatch (-want +got):\n%s", diff)
	}

	if Normalize(RawRow{RowID: 2}, nil).Metadata != nil {
		t.Error("empty metadata should be nil")
	}
}

func TestNormalizeCarriesEntities(t *testing.T) {
	dec := &richtext.Decoded{
		Text:        "check this out",
		Provenance:  richtext.ProvenancePrimary,
		Attachments: []richtext.Entity{{Value: "GUID-1", Span: richtext.Span{Offset: 0, Length: 3}}},
		Links:       []richtext.Entity{{Value: "https://example.com", Span: richtext.Span{Offset: 6, Length: 4}}},
	}
	m := Normalize(RawRow{RowID: 1}, dec)
	if len(m.AttachmentHints) != 1 || m.AttachmentHints[0].Value != "GUID-1" {
		t.Errorf("attachment hints = %+v", m.AttachmentHints)
	}
	if len(m.Links) != 1 {
		t.Errorf("links = %+v", m.Links)
	}
}
