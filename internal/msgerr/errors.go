// Package msgerr defines the caller-facing error taxonomy for chatvault.
//
// Every constructor wraps the underlying cause with eris (preserving the
// raw message and stack) and appends a plain-language remediation hint, so
// CLI and MCP surfaces can print something actionable without masking the
// original failure.
package msgerr

import (
	"errors"

	"github.com/rotisserie/eris"
)

// Sentinels for errors.Is checks. Constructors below attach these to the
// chain; callers should never compare error strings.
var (
	// ErrStoreUnavailable means the underlying message store could not be
	// reached at all (schema probe or row fetch failed). Fatal to the request.
	ErrStoreUnavailable = errors.New("message store unavailable")

	// ErrScopeRequired means a search was issued without any chat,
	// participant, or time scope. Rejected before any query executes.
	ErrScopeRequired = errors.New("search scope required")

	// ErrDecodeFailure means a single payload's tiered decode exhausted all
	// tiers. Never fatal to a batch; the row proceeds with no text.
	ErrDecodeFailure = errors.New("rich text decode failed")

	// ErrNotFound means a referenced message or attachment row does not exist.
	ErrNotFound = errors.New("not found")
)

// hinted carries a remediation hint alongside the wrapped cause and the
// taxonomy sentinel. Unwrap exposes both so errors.Is matches the sentinel
// and the raw cause.
type hinted struct {
	err      error
	sentinel error
	hint     string
}

func (h *hinted) Error() string {
	return h.err.Error() + "\nHint: " + h.hint
}

func (h *hinted) Unwrap() []error {
	return []error{h.err, h.sentinel}
}

// StoreUnavailable wraps a store-level failure (open, probe, or fetch).
func StoreUnavailable(storePath string, cause error) error {
	return &hinted{
		err:      eris.Wrapf(cause, "message store unavailable: %s", storePath),
		sentinel: ErrStoreUnavailable,
		hint: "grant this process Full Disk Access (System Settings > Privacy & Security) " +
			"or point --store at a readable copy of the Messages database",
	}
}

// ScopeRequired reports a search issued with no scope at all.
func ScopeRequired() error {
	return &hinted{
		err:      eris.New("search requires a chat, participant, or time bound"),
		sentinel: ErrScopeRequired,
		hint:     "narrow the search with --chat, --with, --after, or --before",
	}
}

// DecodeFailure wraps a per-payload decode error. Isolated per row.
func DecodeFailure(cause error) error {
	return &hinted{
		err:      eris.Wrap(cause, "rich text decode failed"),
		sentinel: ErrDecodeFailure,
		hint:     "the message is returned without recovered text",
	}
}

// NotFound reports a missing message or attachment row.
func NotFound(what string, id int64) error {
	return &hinted{
		err:      eris.Errorf("%s %d not found", what, id),
		sentinel: ErrNotFound,
		hint:     "row ids come from search or messages output; the store may have been re-synced since",
	}
}

// IsStoreUnavailable reports whether err is fatal store unavailability.
func IsStoreUnavailable(err error) bool { return errors.Is(err, ErrStoreUnavailable) }

// IsScopeRequired reports whether err is a rejected unscoped search.
func IsScopeRequired(err error) bool { return errors.Is(err, ErrScopeRequired) }

// IsDecodeFailure reports whether err is a per-payload decode failure.
func IsDecodeFailure(err error) bool { return errors.Is(err, ErrDecodeFailure) }

// IsNotFound reports whether err is a missing-row error.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
