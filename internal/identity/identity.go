// Package identity maps a user-supplied participant string to the canonical
// set of handle identifiers in the store.
//
// Phone and email handles are not a stable identity: the same person often
// has several. When the store groups handles by person (person_centric_id),
// a match expands to the whole group so no history is missed.
package identity

import (
	"context"
	"fmt"
	"strings"

	"github.com/wesm/chatvault/internal/msgerr"
	"github.com/wesm/chatvault/internal/store"
)

// HandleSet is the resolved set of canonical handle identifiers. Non-empty
// by construction: when every strategy misses, it degrades to the literal
// input as a single element (best effort, not a failure).
type HandleSet []string

// maxSubstringMatches caps strategy (c) so a one-letter participant string
// cannot pull in the whole handle table.
const maxSubstringMatches = 10

// Resolver resolves participants against one store.
type Resolver struct {
	store *store.Store
}

// NewResolver returns a Resolver backed by s.
func NewResolver(s *store.Store) *Resolver {
	return &Resolver{store: s}
}

// Resolve runs the strategy chain, first success wins:
// exact handle match (expanded by person group), chat display name match,
// capped substring match, then the literal input.
func (r *Resolver) Resolve(ctx context.Context, participant string) (HandleSet, error) {
	participant = strings.TrimSpace(participant)
	if participant == "" {
		return HandleSet{participant}, nil
	}

	caps, err := r.store.Capabilities(ctx)
	if err != nil {
		return nil, err
	}

	if set, err := r.exactHandleMatch(ctx, caps, participant); err != nil {
		return nil, err
	} else if len(set) > 0 {
		return set, nil
	}

	if caps.ChatDisplayName {
		if set, err := r.chatNameMatch(ctx, participant); err != nil {
			return nil, err
		} else if len(set) > 0 {
			return set, nil
		}
	}

	if set, err := r.substringMatch(ctx, participant); err != nil {
		return nil, err
	} else if len(set) > 0 {
		return set, nil
	}

	return HandleSet{participant}, nil
}

func (r *Resolver) exactHandleMatch(ctx context.Context, caps *store.SchemaCapabilities, participant string) (HandleSet, error) {
	where := "ulower(id) = ulower(?)"
	args := []interface{}{participant}
	if caps.UncanonicalizedID {
		where += " OR ulower(COALESCE(uncanonicalized_id, '')) = ulower(?)"
		args = append(args, participant)
	}

	selectCols := "id, ''"
	if caps.PersonCentricID {
		selectCols = "id, COALESCE(person_centric_id, '')"
	}

	rows, err := r.store.DB().QueryContext(ctx,
		fmt.Sprintf("SELECT %s FROM handle WHERE %s", selectCols, where), args...)
	if err != nil {
		return nil, msgerr.StoreUnavailable(r.store.Path(), fmt.Errorf("resolve handle: %w", err))
	}
	defer rows.Close()

	var set HandleSet
	var groups []string
	seen := map[string]bool{}
	for rows.Next() {
		var id, group string
		if err := rows.Scan(&id, &group); err != nil {
			return nil, fmt.Errorf("scan handle: %w", err)
		}
		if !seen[id] {
			seen[id] = true
			set = append(set, id)
		}
		if group != "" {
			groups = append(groups, group)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, msgerr.StoreUnavailable(r.store.Path(), err)
	}

	if len(groups) == 0 {
		return set, nil
	}
	return r.expandPersonGroups(ctx, set, seen, groups)
}

// expandPersonGroups adds every handle sharing a matched person group.
func (r *Resolver) expandPersonGroups(ctx context.Context, set HandleSet, seen map[string]bool, groups []string) (HandleSet, error) {
	placeholders := make([]string, len(groups))
	args := make([]interface{}, len(groups))
	for i, g := range groups {
		placeholders[i] = "?"
		args[i] = g
	}

	rows, err := r.store.DB().QueryContext(ctx,
		fmt.Sprintf("SELECT id FROM handle WHERE person_centric_id IN (%s)", strings.Join(placeholders, ",")),
		args...)
	if err != nil {
		return nil, msgerr.StoreUnavailable(r.store.Path(), fmt.Errorf("expand person group: %w", err))
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan group handle: %w", err)
		}
		if !seen[id] {
			seen[id] = true
			set = append(set, id)
		}
	}
	return set, rows.Err()
}

func (r *Resolver) chatNameMatch(ctx context.Context, participant string) (HandleSet, error) {
	rows, err := r.store.DB().QueryContext(ctx, `
		SELECT DISTINCT h.id
		FROM chat c
		JOIN chat_handle_join chj ON chj.chat_id = c.ROWID
		JOIN handle h ON h.ROWID = chj.handle_id
		WHERE ulower(COALESCE(c.display_name, '')) = ulower(?)
	`, participant)
	if err != nil {
		return nil, msgerr.StoreUnavailable(r.store.Path(), fmt.Errorf("resolve chat name: %w", err))
	}
	defer rows.Close()

	var set HandleSet
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan chat member: %w", err)
		}
		set = append(set, id)
	}
	return set, rows.Err()
}

func (r *Resolver) substringMatch(ctx context.Context, participant string) (HandleSet, error) {
	rows, err := r.store.DB().QueryContext(ctx, `
		SELECT id FROM handle
		WHERE ulower(id) LIKE '%' || ulower(?) || '%' ESCAPE '\'
		ORDER BY id
		LIMIT ?
	`, EscapeLike(participant), maxSubstringMatches)
	if err != nil {
		return nil, msgerr.StoreUnavailable(r.store.Path(), fmt.Errorf("resolve handle substring: %w", err))
	}
	defer rows.Close()

	var set HandleSet
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan handle: %w", err)
		}
		set = append(set, id)
	}
	return set, rows.Err()
}

// EscapeLike escapes SQL LIKE wildcards so user input matches literally.
func EscapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}
