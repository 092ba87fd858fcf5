package engine

import (
	"context"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/wesm/chatvault/internal/identity"
	"github.com/wesm/chatvault/internal/message"
	"github.com/wesm/chatvault/internal/store"
)

// SearchRequest describes one search. Scope is mandatory.
type SearchRequest struct {
	Query   string
	Scope   Scope
	Filters Filters
	Limit   int
	Offset  int
}

// SearchResult carries the merged, date-descending page.
type SearchResult struct {
	Messages []message.NormalizedMessage `json:"messages"`

	// TotalConsidered counts rows examined across both phases: every
	// phase-1 row fetched, including the extra row probed past the limit,
	// plus every decoded candidate whether or not it matched.
	TotalConsidered int  `json:"total_considered"`
	Truncated       bool `json:"truncated"`
}

// Search runs the indexed pass and, when it comes up short, a bounded
// decode pass over rows whose text lives only in the rich-text payload.
func (e *Engine) Search(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	if err := requireScope(req.Scope); err != nil {
		return nil, err
	}
	limit := e.limitOrDefault(req.Limit)

	clause, err := e.buildClause(ctx, req.Scope, req.Filters)
	if err != nil {
		return nil, err
	}
	caps, err := e.store.Capabilities(ctx)
	if err != nil {
		return nil, err
	}

	result := &SearchResult{}

	// Phase 1: indexed substring match over plain text. ulower (Unicode
	// lowercasing, registered on the connection) keeps folding identical to
	// the strings.ToLower match in phase 2.
	p1 := clause
	if req.Query != "" {
		p1.Where = andCond(p1.Where,
			`m.text IS NOT NULL AND ulower(m.text) LIKE '%' || ulower(?) || '%' ESCAPE '\'`)
		p1.Args = append(append([]interface{}{}, p1.Args...), identity.EscapeLike(req.Query))
	}
	// Fetch one extra row so a full page can be distinguished from the last
	// page when setting Truncated.
	p1.Limit = limit + 1
	p1.Offset = req.Offset

	rows, err := e.store.FetchMessages(ctx, caps, p1)
	if err != nil {
		return nil, err
	}
	result.TotalConsidered = len(rows)
	if len(rows) > limit {
		rows = rows[:limit]
		result.Truncated = true
	}
	matches := e.normalizeRows(rows)

	// Phase 2: decode fallback, only when phase 1 under-fills and there is
	// a text query to match against. Plain-text search is complete without
	// it; rich-text-only rows are invisible to phase 1.
	if len(matches) < limit && req.Query != "" && caps.AttributedBody {
		need := limit - len(matches)
		seen := make(map[int64]bool, len(matches))
		for _, m := range matches {
			seen[m.RowID] = true
		}
		extra, considered, trimmed, err := e.searchDecoded(ctx, caps, clause, req.Query, need, seen)
		if err != nil {
			return nil, err
		}
		matches = append(matches, extra...)
		result.TotalConsidered += considered
		if trimmed {
			result.Truncated = true
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].DateMs > matches[j].DateMs
	})
	if len(matches) > limit {
		matches = matches[:limit]
		result.Truncated = true
	}
	result.Messages = matches
	return result, nil
}

// searchDecoded fetches candidates with a payload but no usable plain text,
// decodes them concurrently, and keeps those whose recovered text contains
// the query.
func (e *Engine) searchDecoded(ctx context.Context, caps *store.SchemaCapabilities, scope store.RowClause, query string, need int, seen map[int64]bool) ([]message.NormalizedMessage, int, bool, error) {
	pool := need * e.opts.PoolMultiplier
	if pool > e.opts.PoolCap {
		pool = e.opts.PoolCap
	}

	p2 := scope
	p2.Where = andCond(p2.Where,
		"m.attributedBody IS NOT NULL AND (m.text IS NULL OR m.text = '')")
	p2.Limit = pool
	p2.Offset = 0

	rows, err := e.store.FetchMessages(ctx, caps, p2)
	if err != nil {
		return nil, 0, false, err
	}

	needle := strings.ToLower(query)
	var mu sync.Mutex
	var hits []message.NormalizedMessage

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.DecodeParallelism)
	for _, row := range rows {
		if seen[row.RowID] {
			continue
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			dec := e.decodeRow(row)
			if dec == nil || dec.Text == "" {
				return nil
			}
			if !strings.Contains(strings.ToLower(dec.Text), needle) {
				return nil
			}
			mu.Lock()
			hits = append(hits, toMessage(row, dec))
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, false, err
	}

	e.log.Debug("decode fallback",
		"candidates", len(rows), "matched", len(hits), "need", need)

	// Candidates arrive date-descending; decode order is not deterministic,
	// so restore it before trimming to the remaining need.
	sort.Slice(hits, func(i, j int) bool { return hits[i].DateMs > hits[j].DateMs })
	trimmed := false
	if len(hits) > need {
		hits = hits[:need]
		trimmed = true
	}
	return hits, len(rows), trimmed, nil
}

func andCond(where, cond string) string {
	if where == "" {
		return cond
	}
	return where + " AND " + cond
}
