// Package richtext decodes the binary attributedBody payload of a Messages
// row into plain text plus structured entities.
//
// Decoding is tiered: a structured typedstream parse first, then a
// property-list extraction for payloads that are (or can be converted to)
// plists, then a raw printable-byte scan. Results are memoized by payload
// content hash; decoding is deterministic, so concurrent population of the
// same key is an idempotent overwrite.
package richtext

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wesm/chatvault/internal/msgerr"
	"github.com/wesm/chatvault/internal/textutil"
)

// Provenance tags which tier produced the recovered text.
type Provenance string

const (
	ProvenancePrimary Provenance = "primary-parser"
	ProvenanceLegacy  Provenance = "legacy-extraction"
	ProvenanceNone    Provenance = "none"
)

// Span is a byte range into the recovered text. When text is present, every
// span satisfies 0 <= Offset and Offset+Length <= len(text).
type Span struct {
	Offset int `json:"offset"`
	Length int `json:"length"`
}

// Entity is one structured item carried inline in the payload.
type Entity struct {
	Value string `json:"value"`
	Span  Span   `json:"span"`
}

// Decoded is the canonical result of decoding one payload.
type Decoded struct {
	// Text is the recovered plain text; empty means no text was recovered.
	Text       string     `json:"text,omitempty"`
	Provenance Provenance `json:"provenance"`

	// CanonicalLink is the first link attribute, when present.
	CanonicalLink string `json:"canonical_link,omitempty"`

	Attachments []Entity `json:"attachments,omitempty"` // file transfer GUID hints
	Mentions    []Entity `json:"mentions,omitempty"`
	Links       []Entity `json:"links,omitempty"`
	Detected    []Entity `json:"detected,omitempty"` // data detector results
}

// Converter turns a typedstream payload into property-list bytes using an
// external tool. It must honor the context deadline.
type Converter func(ctx context.Context, payload []byte) ([]byte, error)

// Cache memoizes decode results by payload content hash. Entries are never
// evicted within a process; Reset exists for test isolation. A nil *Decoded
// value is a cached catastrophic failure, kept to avoid repeated expensive
// retries on the same payload.
type Cache struct {
	mu sync.RWMutex
	m  map[[sha256.Size]byte]*Decoded
}

// NewCache returns an empty decode cache.
func NewCache() *Cache {
	return &Cache{m: make(map[[sha256.Size]byte]*Decoded)}
}

// Reset drops all memoized entries.
func (c *Cache) Reset() {
	c.mu.Lock()
	c.m = make(map[[sha256.Size]byte]*Decoded)
	c.mu.Unlock()
}

// Len reports the number of memoized payloads.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}

func (c *Cache) get(key [sha256.Size]byte) (*Decoded, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.m[key]
	return v, ok
}

func (c *Cache) put(key [sha256.Size]byte, v *Decoded) {
	c.mu.Lock()
	c.m[key] = v
	c.mu.Unlock()
}

// Decoder runs the tiered decode chain.
type Decoder struct {
	cache            *Cache
	convert          Converter
	converterTimeout time.Duration
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithConverter installs an external typedstream-to-plist converter for the
// legacy tier. Without one, the legacy tier only handles payloads that are
// already property lists.
func WithConverter(fn Converter, timeout time.Duration) Option {
	return func(d *Decoder) {
		d.convert = fn
		d.converterTimeout = timeout
	}
}

// NewDecoder returns a Decoder memoizing into cache.
func NewDecoder(cache *Cache, opts ...Option) *Decoder {
	d := &Decoder{cache: cache, converterTimeout: 5 * time.Second}
	for _, o := range opts {
		o(d)
	}
	return d
}

// errPayloadPanic marks a payload whose first decode attempt panicked; the
// cache remembers it as nil and later hits report this generic cause.
var errPayloadPanic = errors.New("payload previously defeated the parser")

// Decode decodes one payload. A non-nil error is a per-payload
// DecodeFailure: the payload panicked a parser and is cached as a failure so
// it is never retried. The result is nil only for empty payloads and decode
// failures; every other outcome is a non-nil Decoded, with empty Text and
// ProvenanceNone when all tiers came up dry.
func (d *Decoder) Decode(payload []byte) (*Decoded, error) {
	if len(payload) == 0 {
		return nil, nil
	}

	key := sha256.Sum256(payload)
	if cached, ok := d.cache.get(key); ok {
		if cached == nil {
			return nil, msgerr.DecodeFailure(errPayloadPanic)
		}
		return cached, nil
	}

	result, err := d.decodeTiers(payload)
	d.cache.put(key, result)
	if err != nil {
		return nil, msgerr.DecodeFailure(err)
	}
	return result, nil
}

func (d *Decoder) decodeTiers(payload []byte) (result *Decoded, err error) {
	// A malformed archive must never take the request down; treat a parser
	// panic as a catastrophic failure for this payload only.
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("parser panic: %v", r)
		}
	}()

	// Tier 1: structured typedstream parse. An attachment-only message
	// recovers no text (the placeholder glyph cleans away) but its entity
	// hints are still worth keeping for the later tiers' result.
	primary := parseTypedStream(payload)
	if primary != nil && primary.Text != "" {
		primary.Provenance = ProvenancePrimary
		return primary, nil
	}

	carry := func(dec *Decoded) *Decoded {
		if primary != nil {
			dec.CanonicalLink = primary.CanonicalLink
			dec.Attachments = primary.Attachments
			dec.Mentions = primary.Mentions
			dec.Links = primary.Links
			dec.Detected = primary.Detected
		}
		return dec
	}

	// Tier 2: property-list extraction.
	if text := d.legacyExtract(payload); text != "" {
		return carry(&Decoded{Text: text, Provenance: ProvenanceLegacy}), nil
	}

	// Tier 3: printable-byte scan, only for payloads that defeated the
	// structured parse; scanning a well-formed archive would surface its
	// attribute names as text. Always terminates.
	if primary == nil {
		if text := rawScan(payload); text != "" {
			return carry(&Decoded{Text: text, Provenance: ProvenanceLegacy}), nil
		}
	}

	return carry(&Decoded{Provenance: ProvenanceNone}), nil
}

// legacyExtract walks a property-list rendition of the payload for the
// longest printable string leaf. When an external converter is configured,
// typedstream payloads are converted first; otherwise only payloads that
// already parse as plists are handled.
func (d *Decoder) legacyExtract(payload []byte) string {
	data := payload
	if d.convert != nil {
		ctx, cancel := context.WithTimeout(context.Background(), d.converterTimeout)
		converted, err := d.convert(ctx, payload)
		cancel()
		if err == nil && len(converted) > 0 {
			data = converted
		}
	}
	text := plistLeafText(data)
	return textutil.CleanRecovered(text)
}
