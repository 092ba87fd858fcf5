package richtext

import (
	"bytes"
	"encoding/binary"
	"strings"
	"unicode/utf8"

	"github.com/wesm/chatvault/internal/textutil"
)

// typedstream is the legacy NSArchiver wire format. The stream opens with a
// version byte pair and the literal "streamtyped". Archived NSString data
// appears as the inline-object marker 0x01 followed by the '+' type code and
// a length-prefixed byte run.
var typedStreamMagic = []byte("streamtyped")

// Attribute names whose following archived string is the attribute value.
var (
	attrFileTransferGUID = []byte("__kIMFileTransferGUIDAttributeName")
	attrMention          = []byte("__kIMMentionConfirmedMention")
	attrLink             = []byte("__kIMLinkAttributeName")
	attrDataDetected     = []byte("__kIMDataDetectedAttributeName")
)

// objectReplacementChar marks inline attachments in the recovered text.
const objectReplacementChar = "￼"

// parseTypedStream extracts the message text and entity attributes from a
// typedstream payload. Returns nil when the payload is not a typedstream.
func parseTypedStream(data []byte) *Decoded {
	if len(data) < 16 || !bytes.Contains(data[:16], typedStreamMagic) {
		return nil
	}

	// The first archived string in an NSAttributedString archive is the
	// full text; attribute names and values follow it.
	classIdx := bytes.Index(data, []byte("NSString"))
	if classIdx < 0 {
		classIdx = bytes.Index(data, []byte("NSMutableString"))
	}
	if classIdx < 0 {
		return nil
	}

	raw, afterText, ok := nextArchivedString(data, classIdx)
	if !ok {
		return nil
	}
	text := textutil.CleanRecovered(textutil.SanitizeUTF8(raw))

	dec := &Decoded{Text: text}
	collectEntities(dec, data, afterText)
	return dec
}

// collectEntities scans the attribute runs that follow the text for known
// attribute names and assigns best-effort spans into the cleaned text.
func collectEntities(dec *Decoded, data []byte, from int) {
	// Attachment hints: the i-th file transfer GUID corresponds to the i-th
	// object replacement character in the text.
	fffcOffsets := placeholderOffsets(dec.Text)
	attachmentIdx := 0

	for _, m := range attributeMatches(data, from, attrFileTransferGUID) {
		guid, _, ok := nextArchivedString(data, m)
		if !ok || !printableValue(guid) {
			continue
		}
		span := Span{}
		if attachmentIdx < len(fffcOffsets) {
			span = Span{Offset: fffcOffsets[attachmentIdx], Length: len(objectReplacementChar)}
		}
		attachmentIdx++
		dec.Attachments = append(dec.Attachments, Entity{Value: guid, Span: span})
	}

	for _, m := range attributeMatches(data, from, attrMention) {
		v, _, ok := nextArchivedString(data, m)
		if !ok || !printableValue(v) {
			continue
		}
		dec.Mentions = append(dec.Mentions, Entity{Value: v, Span: spanOf(dec.Text, v)})
	}

	for _, m := range attributeMatches(data, from, attrLink) {
		v, _, ok := nextArchivedString(data, m)
		if !ok || !printableValue(v) {
			continue
		}
		if dec.CanonicalLink == "" {
			dec.CanonicalLink = v
		}
		dec.Links = append(dec.Links, Entity{Value: v, Span: spanOf(dec.Text, v)})
	}

	for _, m := range attributeMatches(data, from, attrDataDetected) {
		// Data detector payloads are nested keyed archives; only a plainly
		// printable following string is worth surfacing.
		v, _, ok := nextArchivedString(data, m)
		if !ok || !printableValue(v) || len(v) > 256 {
			continue
		}
		dec.Detected = append(dec.Detected, Entity{Value: v, Span: spanOf(dec.Text, v)})
	}
}

// attributeMatches returns the offsets just past each occurrence of name.
func attributeMatches(data []byte, from int, name []byte) []int {
	var out []int
	for i := from; i < len(data); {
		idx := bytes.Index(data[i:], name)
		if idx < 0 {
			break
		}
		i += idx + len(name)
		out = append(out, i)
	}
	return out
}

// nextArchivedString finds the next inline string after offset from:
// marker 0x01 0x2B, then a length-prefixed byte run.
func nextArchivedString(data []byte, from int) (s string, next int, ok bool) {
	for i := from; i+2 < len(data); i++ {
		if data[i] != 0x01 || data[i+1] != '+' {
			continue
		}
		n, start, lok := readArchivedLength(data, i+2)
		if !lok || start+n > len(data) {
			continue
		}
		return string(data[start : start+n]), start + n, true
	}
	return "", len(data), false
}

// readArchivedLength decodes a typedstream length: a literal byte below
// 0x80, or 0x81 / 0x82 introducing a little-endian uint16 / uint32.
func readArchivedLength(data []byte, i int) (n, next int, ok bool) {
	if i >= len(data) {
		return 0, 0, false
	}
	switch b := data[i]; {
	case b == 0x81:
		if i+3 > len(data) {
			return 0, 0, false
		}
		return int(binary.LittleEndian.Uint16(data[i+1 : i+3])), i + 3, true
	case b == 0x82:
		if i+5 > len(data) {
			return 0, 0, false
		}
		return int(binary.LittleEndian.Uint32(data[i+1 : i+5])), i + 5, true
	case b < 0x80:
		return int(b), i + 1, true
	default:
		return 0, 0, false
	}
}

// placeholderOffsets returns the byte offsets of each object replacement
// character in text.
func placeholderOffsets(text string) []int {
	var out []int
	for i := 0; ; {
		idx := strings.Index(text[i:], objectReplacementChar)
		if idx < 0 {
			break
		}
		out = append(out, i+idx)
		i += idx + len(objectReplacementChar)
	}
	return out
}

// spanOf locates value in text; entities whose value does not literally
// appear (a mention's handle vs. its display text) get the zero span.
func spanOf(text, value string) Span {
	if idx := strings.Index(text, value); idx >= 0 {
		return Span{Offset: idx, Length: len(value)}
	}
	return Span{}
}

// printableValue reports whether an extracted attribute value is plausible:
// valid UTF-8 with at least one letter or digit and no NUL bytes.
func printableValue(s string) bool {
	if s == "" || !utf8.ValidString(s) || strings.ContainsRune(s, 0) {
		return false
	}
	return textutil.HasLetterOrDigit(s)
}
