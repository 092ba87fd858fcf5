package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/wesm/chatvault/internal/appletime"
	"github.com/wesm/chatvault/internal/msgerr"
)

// SchemaCapabilities records which optional columns this store's schema
// carries. chat.db has been reshaped across macOS releases; a missing column
// means "feature unsupported", never an error. Immutable after first probe.
type SchemaCapabilities struct {
	// message table
	AttributedBody        bool
	AssociatedMessageType bool
	AssociatedMessageGUID bool
	ExpressiveSendStyleID bool
	ThreadOriginatorGUID  bool
	ReplyToGUID           bool
	ItemType              bool
	Service               bool
	Account               bool
	Subject               bool
	DestinationCallerID   bool
	CacheHasAttachments   bool

	// handle table
	PersonCentricID   bool
	UncanonicalizedID bool

	// chat table
	ChatDisplayName bool
}

// Process-wide caches, keyed by resolved store path. Compute once, never
// invalidate within a process; ResetCaches exists for test isolation.
var procCaches = struct {
	mu     sync.Mutex
	caps   map[string]*SchemaCapabilities
	scales map[string]appletime.Scale
}{
	caps:   make(map[string]*SchemaCapabilities),
	scales: make(map[string]appletime.Scale),
}

// ResetCaches forces capability and scale recomputation. Tests opening
// multiple fixture stores at the same path rely on this.
func ResetCaches() {
	procCaches.mu.Lock()
	procCaches.caps = make(map[string]*SchemaCapabilities)
	procCaches.scales = make(map[string]appletime.Scale)
	procCaches.mu.Unlock()
}

func cachedCaps(path string) (*SchemaCapabilities, bool) {
	procCaches.mu.Lock()
	defer procCaches.mu.Unlock()
	c, ok := procCaches.caps[path]
	return c, ok
}

func putCachedCaps(path string, c *SchemaCapabilities) {
	procCaches.mu.Lock()
	procCaches.caps[path] = c
	procCaches.mu.Unlock()
}

func cachedScale(path string) (appletime.Scale, bool) {
	procCaches.mu.Lock()
	defer procCaches.mu.Unlock()
	s, ok := procCaches.scales[path]
	return s, ok
}

func putCachedScale(path string, s appletime.Scale) {
	procCaches.mu.Lock()
	procCaches.scales[path] = s
	procCaches.mu.Unlock()
}

// Capabilities probes the store schema once per store path and caches the
// result. Probe failure means the store itself is unreadable and surfaces
// as StoreUnavailable; no downstream query can proceed without this.
func (s *Store) Capabilities(ctx context.Context) (*SchemaCapabilities, error) {
	if caps, ok := cachedCaps(s.path); ok {
		return caps, nil
	}

	messageCols, err := s.tableColumns(ctx, "message")
	if err != nil {
		return nil, msgerr.StoreUnavailable(s.path, fmt.Errorf("probe message schema: %w", err))
	}
	handleCols, err := s.tableColumns(ctx, "handle")
	if err != nil {
		return nil, msgerr.StoreUnavailable(s.path, fmt.Errorf("probe handle schema: %w", err))
	}
	chatCols, err := s.tableColumns(ctx, "chat")
	if err != nil {
		return nil, msgerr.StoreUnavailable(s.path, fmt.Errorf("probe chat schema: %w", err))
	}

	caps := &SchemaCapabilities{
		AttributedBody:        messageCols["attributedBody"],
		AssociatedMessageType: messageCols["associated_message_type"],
		AssociatedMessageGUID: messageCols["associated_message_guid"],
		ExpressiveSendStyleID: messageCols["expressive_send_style_id"],
		ThreadOriginatorGUID:  messageCols["thread_originator_guid"],
		ReplyToGUID:           messageCols["reply_to_guid"],
		ItemType:              messageCols["item_type"],
		Service:               messageCols["service"],
		Account:               messageCols["account"],
		Subject:               messageCols["subject"],
		DestinationCallerID:   messageCols["destination_caller_id"],
		CacheHasAttachments:   messageCols["cache_has_attachments"],
		PersonCentricID:       handleCols["person_centric_id"],
		UncanonicalizedID:     handleCols["uncanonicalized_id"],
		ChatDisplayName:       chatCols["display_name"],
	}
	putCachedCaps(s.path, caps)
	return caps, nil
}

// tableColumns returns the column-name set of a table. A missing table
// yields an empty set, consistent with treating absence as "unsupported".
func (s *Store) tableColumns(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			defaultVal any
			pk         int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultVal, &pk); err != nil {
			return nil, err
		}
		cols[name] = true
	}
	return cols, rows.Err()
}
