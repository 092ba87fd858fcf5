package richtext

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"howett.net/plist"

	"github.com/wesm/chatvault/internal/msgerr"
)

// tsBuilder assembles synthetic typedstream payloads: the stream header,
// an NSString class token, then inline length-prefixed strings.
type tsBuilder struct {
	buf bytes.Buffer
}

func newTSBuilder() *tsBuilder {
	b := &tsBuilder{}
	b.buf.Write([]byte{0x04, 0x0B})
	b.buf.WriteString("streamtyped")
	b.buf.Write([]byte{0x81, 0xE8, 0x03, 0x84, 0x01, 0x40})
	return b
}

func (b *tsBuilder) class(name string) *tsBuilder {
	b.buf.WriteByte(byte(len(name)))
	b.buf.WriteString(name)
	b.buf.Write([]byte{0x00, 0x84})
	return b
}

func (b *tsBuilder) inlineString(s string) *tsBuilder {
	b.buf.Write([]byte{0x84, 0x01, '+'})
	if len(s) < 0x80 {
		b.buf.WriteByte(byte(len(s)))
	} else {
		b.buf.WriteByte(0x81)
		var lenBytes [2]byte
		binary.LittleEndian.PutUint16(lenBytes[:], uint16(len(s)))
		b.buf.Write(lenBytes[:])
	}
	b.buf.WriteString(s)
	b.buf.Write([]byte{0x86, 0x84})
	return b
}

// attr writes an attribute name token followed by its archived value.
func (b *tsBuilder) attr(name, value string) *tsBuilder {
	b.buf.WriteByte(byte(len(name)))
	b.buf.WriteString(name)
	b.buf.Write([]byte{0x00, 0x84})
	return b.inlineString(value)
}

func (b *tsBuilder) bytes() []byte { return b.buf.Bytes() }

func typedStreamPayload(text string) []byte {
	return newTSBuilder().class("NSString").inlineString(text).bytes()
}

func newTestDecoder(opts ...Option) *Decoder {
	return NewDecoder(NewCache(), opts...)
}

func mustDecode(t *testing.T, d *Decoder, payload []byte) *Decoded {
	t.Helper()
	dec, err := d.Decode(payload)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return dec
}

func TestDecodeTypedStreamText(t *testing.T) {
	d := newTestDecoder()
	dec := mustDecode(t, d, typedStreamPayload("Hello from the archive"))
	if dec == nil {
		t.Fatal("Decode returned nil")
	}
	if dec.Text != "Hello from the archive" {
		t.Errorf("Text = %q", dec.Text)
	}
	if dec.Provenance != ProvenancePrimary {
		t.Errorf("Provenance = %q, want %q", dec.Provenance, ProvenancePrimary)
	}
}

func TestDecodeLongString(t *testing.T) {
	long := ""
	for i := 0; i < 40; i++ {
		long += "lorem ipsum "
	}
	d := newTestDecoder()
	dec := mustDecode(t, d, typedStreamPayload(long))
	if dec == nil || dec.Provenance != ProvenancePrimary {
		t.Fatalf("long string decode failed: %+v", dec)
	}
	if len(dec.Text) != len(long)-1 { // trailing space trimmed
		t.Errorf("Text length = %d, want %d", len(dec.Text), len(long)-1)
	}
}

func TestDecodeAttachmentHint(t *testing.T) {
	payload := newTSBuilder().
		class("NSString").
		inlineString("￼ check this out").
		attr("__kIMFileTransferGUIDAttributeName", "at_0_F1E2D3C4").
		bytes()

	dec := mustDecode(t, newTestDecoder(), payload)
	if dec == nil {
		t.Fatal("Decode returned nil")
	}
	want := []Entity{{Value: "at_0_F1E2D3C4", Span: Span{Offset: 0, Length: 3}}}
	if diff := cmp.Diff(want, dec.Attachments); diff != "" {
		t.Errorf("Attachments mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeAttachmentOnlyKeepsHint(t *testing.T) {
	// Attachment-only messages carry just the placeholder glyph, which
	// cleans away; the transfer GUID must survive anyway.
	payload := newTSBuilder().
		class("NSString").
		inlineString("￼").
		attr("__kIMFileTransferGUIDAttributeName", "at_0_B00F").
		bytes()

	dec := mustDecode(t, newTestDecoder(), payload)
	if dec == nil {
		t.Fatal("Decode returned nil")
	}
	if dec.Text != "" {
		t.Errorf("Text = %q, want empty", dec.Text)
	}
	if dec.Provenance != ProvenanceNone {
		t.Errorf("Provenance = %q, want %q", dec.Provenance, ProvenanceNone)
	}
	if len(dec.Attachments) != 1 || dec.Attachments[0].Value != "at_0_B00F" {
		t.Errorf("Attachments = %+v", dec.Attachments)
	}
}

func TestDecodeLinkAndMention(t *testing.T) {
	payload := newTSBuilder().
		class("NSString").
		inlineString("see https://example.com/x and ask maria").
		attr("__kIMLinkAttributeName", "https://example.com/x").
		attr("__kIMMentionConfirmedMention", "+15551230000").
		bytes()

	dec := mustDecode(t, newTestDecoder(), payload)
	if dec == nil {
		t.Fatal("Decode returned nil")
	}
	if dec.CanonicalLink != "https://example.com/x" {
		t.Errorf("CanonicalLink = %q", dec.CanonicalLink)
	}
	if len(dec.Links) != 1 || dec.Links[0].Span.Offset != 4 {
		t.Errorf("Links = %+v", dec.Links)
	}
	// Mention handle does not appear in display text: zero span, value kept.
	if len(dec.Mentions) != 1 || dec.Mentions[0].Value != "+15551230000" {
		t.Fatalf("Mentions = %+v", dec.Mentions)
	}
	if dec.Mentions[0].Span != (Span{}) {
		t.Errorf("mention span = %+v, want zero", dec.Mentions[0].Span)
	}
}

func TestSpansWithinText(t *testing.T) {
	payload := newTSBuilder().
		class("NSString").
		inlineString("short ￼").
		attr("__kIMFileTransferGUIDAttributeName", "at_0_AAAA").
		attr("__kIMLinkAttributeName", "https://e.invalid/very-long-url-not-in-text").
		bytes()

	dec := mustDecode(t, newTestDecoder(), payload)
	if dec == nil {
		t.Fatal("Decode returned nil")
	}
	check := func(kind string, es []Entity) {
		for _, e := range es {
			if e.Span.Offset < 0 || e.Span.Offset+e.Span.Length > len(dec.Text) {
				t.Errorf("%s span %+v outside text of length %d", kind, e.Span, len(dec.Text))
			}
		}
	}
	check("attachment", dec.Attachments)
	check("link", dec.Links)
}

func TestDecodePlistFallback(t *testing.T) {
	data, err := plist.Marshal(map[string]interface{}{
		"$class": "NSString",
		"NS.string": []interface{}{
			"ok",
			"the real message body lives here",
		},
	}, plist.BinaryFormat)
	if err != nil {
		t.Fatal(err)
	}

	dec := mustDecode(t, newTestDecoder(), data)
	if dec == nil {
		t.Fatal("Decode returned nil")
	}
	if dec.Text != "the real message body lives here" {
		t.Errorf("Text = %q", dec.Text)
	}
	if dec.Provenance != ProvenanceLegacy {
		t.Errorf("Provenance = %q, want %q", dec.Provenance, ProvenanceLegacy)
	}
}

func TestDecodeConverter(t *testing.T) {
	plistBytes, err := plist.Marshal(map[string]interface{}{"text": "converted text wins"}, plist.XMLFormat)
	if err != nil {
		t.Fatal(err)
	}
	called := false
	conv := func(ctx context.Context, payload []byte) ([]byte, error) {
		called = true
		if _, ok := ctx.Deadline(); !ok {
			t.Error("converter context has no deadline")
		}
		return plistBytes, nil
	}

	d := newTestDecoder(WithConverter(conv, 2*time.Second))
	dec := mustDecode(t, d, []byte{0x00, 0x01, 0x02, 0x03})
	if !called {
		t.Fatal("converter not invoked")
	}
	if dec == nil || dec.Text != "converted text wins" || dec.Provenance != ProvenanceLegacy {
		t.Errorf("decoded = %+v", dec)
	}
}

func TestDecodePanicIsolatedPerPayload(t *testing.T) {
	conv := func(ctx context.Context, payload []byte) ([]byte, error) {
		panic("converter blew up")
	}
	d := newTestDecoder(WithConverter(conv, time.Second))

	dec, err := d.Decode([]byte{0x00, 0x01, 0x02})
	if dec != nil {
		t.Errorf("decoded = %+v, want nil", dec)
	}
	if !msgerr.IsDecodeFailure(err) {
		t.Fatalf("err = %v, want DecodeFailure", err)
	}

	// The failure is cached: a repeat must not re-run the parser, and must
	// still report the failure.
	dec, err = d.Decode([]byte{0x00, 0x01, 0x02})
	if dec != nil || !msgerr.IsDecodeFailure(err) {
		t.Errorf("cached failure: dec = %+v, err = %v", dec, err)
	}

	// A healthy payload through the same decoder is unaffected.
	good := mustDecode(t, d, typedStreamPayload("still fine"))
	if good == nil || good.Text != "still fine" {
		t.Errorf("healthy payload after failure = %+v", good)
	}
}

func TestDecodeRawScan(t *testing.T) {
	payload := append([]byte{0x00, 0x01, 0x02}, []byte("++=hello there old friend")...)
	payload = append(payload, 0x00, 0xFF)

	dec := mustDecode(t, newTestDecoder(), payload)
	if dec == nil {
		t.Fatal("Decode returned nil")
	}
	if dec.Text != "hello there old friend" {
		t.Errorf("Text = %q", dec.Text)
	}
	if dec.Provenance != ProvenanceLegacy {
		t.Errorf("Provenance = %q", dec.Provenance)
	}
}

func TestDecodeArtifactRunDiscarded(t *testing.T) {
	// A run made entirely of '+' / '=' / whitespace must not count as text.
	payload := []byte{0x00, '+', '+', '=', ' ', '=', 0x01}
	dec := mustDecode(t, newTestDecoder(), payload)
	if dec == nil {
		t.Fatal("Decode returned nil")
	}
	if dec.Text != "" || dec.Provenance != ProvenanceNone {
		t.Errorf("got text %q provenance %q, want none", dec.Text, dec.Provenance)
	}
}

func TestDecodeEmptyPayload(t *testing.T) {
	dec, err := newTestDecoder().Decode(nil)
	if err != nil {
		t.Fatalf("Decode(nil): %v", err)
	}
	if dec != nil {
		t.Errorf("Decode(nil) = %+v, want nil", dec)
	}
}

func TestDecodeMemoized(t *testing.T) {
	cache := NewCache()
	d := NewDecoder(cache)
	payload := typedStreamPayload("memo me")

	first := mustDecode(t, d, payload)
	second := mustDecode(t, d, payload)
	if first != second {
		t.Error("repeated decode did not return the cached result")
	}
	if cache.Len() != 1 {
		t.Errorf("cache.Len() = %d, want 1", cache.Len())
	}

	cache.Reset()
	if cache.Len() != 0 {
		t.Errorf("cache.Len() after Reset = %d, want 0", cache.Len())
	}
	third := mustDecode(t, d, payload)
	if third == nil || third.Text != "memo me" {
		t.Errorf("decode after reset = %+v", third)
	}
}

func TestDecodeDeterministic(t *testing.T) {
	payload := newTSBuilder().
		class("NSString").
		inlineString("same in, same out").
		attr("__kIMLinkAttributeName", "https://example.com").
		bytes()

	a := mustDecode(t, NewDecoder(NewCache()), payload)
	b := mustDecode(t, NewDecoder(NewCache()), payload)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("decode not deterministic (-a +b):\n%s", diff)
	}
}

func TestDecodeConcurrent(t *testing.T) {
	d := newTestDecoder()
	payload := typedStreamPayload("concurrent decode")
	done := make(chan *Decoded, 8)
	for i := 0; i < 8; i++ {
		go func() {
			dec, _ := d.Decode(payload)
			done <- dec
		}()
	}
	for i := 0; i < 8; i++ {
		dec := <-done
		if dec == nil || dec.Text != "concurrent decode" {
			t.Errorf("concurrent decode = %+v", dec)
		}
	}
}
