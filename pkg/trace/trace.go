// Package trace follows the successor function of a rule from a start page to
// its terminal.
//
// Because every page has at most one successor, a forward walk either reaches
// a page without one (HALT) or revisits a page already on the path (CYCLE).
// Over a store of P pages that happens within P+1 steps. [Trace] detects the
// revisit with a membership map, so termination follows from the structure
// of the walk; the step cap it carries is only a guard against a broken
// index.
package trace

import (
	"context"
	"slices"

	"github.com/matzehuels/nlink/pkg/errors"
	"github.com/matzehuels/nlink/pkg/pagestore"
	"github.com/matzehuels/nlink/pkg/rules"
	"github.com/matzehuels/nlink/pkg/terminal"
)

// Result is the outcome of one forward walk.
type Result struct {
	Start    pagestore.PageID   `json:"start"`
	N        int                `json:"n"`
	Terminal terminal.Terminal  `json:"terminal"`
	Path     []pagestore.PageID `json:"path"`
	Steps    int                `json:"steps"`
}

// Kind returns the terminal kind.
func (r *Result) Kind() terminal.Kind { return r.Terminal.Kind() }

// Trace walks forward from start under ix.
//
// Path lists every visited page once, in order, starting with start. For a
// HALT it ends at the halting page and Steps is len(Path)-1. For a CYCLE it
// ends at the last page before the walk closes, and Steps is len(Path): the
// final step returns to a page already on the path.
//
// An unknown start page is a PAGE_NOT_FOUND error. Trace keeps no state
// between calls and is safe to run concurrently on a shared index.
func Trace(ix *rules.Index, start pagestore.PageID) (*Result, error) {
	s := ix.Store()
	from, ok := s.Index(start)
	if !ok {
		return nil, errors.New(errors.ErrCodePageNotFound, "page %d is not in the store", start)
	}

	path, closeAt, err := walk(ix, from)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Start: start,
		N:     ix.N(),
		Path:  make([]pagestore.PageID, len(path)),
	}
	for i, p := range path {
		res.Path[i] = s.ID(p)
	}
	if closeAt < 0 {
		res.Terminal = terminal.Halt(res.Path[len(res.Path)-1])
		res.Steps = len(path) - 1
	} else {
		res.Terminal = terminal.Cycle(res.Path[closeAt:])
		res.Steps = len(path)
	}
	return res, nil
}

// walk returns the visited compact indices and, for a cycle, the position in
// the path where the cycle starts (-1 for a halt).
func walk(ix *rules.Index, from int32) ([]int32, int, error) {
	seen := make(map[int32]int)
	var path []int32
	limit := ix.Len() + 1

	cur := from
	for steps := 0; ; steps++ {
		if steps > limit {
			return nil, 0, errors.New(errors.ErrCodeInternal,
				"trace from page %d exceeded %d steps without terminating", ix.Store().ID(from), limit)
		}
		if at, ok := seen[cur]; ok {
			return path, at, nil
		}
		seen[cur] = len(path)
		path = append(path, cur)

		next := ix.Successor(cur)
		if next == rules.Halt {
			return path, -1, nil
		}
		cur = next
	}
}

// Of returns the terminal reached from the page at compact index idx without
// materializing the path. It is a cheaper form of Trace for callers that only
// need the classification.
func Of(ix *rules.Index, idx int32) (terminal.Terminal, error) {
	path, closeAt, err := walk(ix, idx)
	if err != nil {
		return terminal.Terminal{}, err
	}
	s := ix.Store()
	if closeAt < 0 {
		return terminal.Halt(s.ID(path[len(path)-1])), nil
	}
	members := make([]pagestore.PageID, 0, len(path)-closeAt)
	for _, p := range path[closeAt:] {
		members = append(members, s.ID(p))
	}
	return terminal.Cycle(members), nil
}

// checkEvery is how many pages Terminals colours between context checks.
const checkEvery = 1 << 16

// Terminals discovers every terminal of the rule in one pass.
//
// Each page is coloured by the walk that first reaches it. A walk stops at a
// halt, at a page coloured by an earlier walk (whose terminal is already
// known), or at a page coloured by itself, which closes a new cycle. Every
// page is visited once, so the pass is linear in the store size.
//
// Terminals are returned halts first, then cycles, each ordered by member ids.
func Terminals(ctx context.Context, ix *rules.Index) ([]terminal.Terminal, error) {
	s := ix.Store()
	owner := make([]int32, ix.Len()) // 0 = unvisited, otherwise walk number
	var (
		out   []terminal.Terminal
		walkN int32
	)

	for start := range int32(ix.Len()) {
		if start%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, errors.Cancelled(err, "terminal discovery")
			}
		}
		if owner[start] != 0 {
			continue
		}
		walkN++

		cur := start
		for {
			owner[cur] = walkN
			next := ix.Successor(cur)
			if next == rules.Halt {
				out = append(out, terminal.Halt(s.ID(cur)))
				break
			}
			if owner[next] == walkN {
				out = append(out, terminal.Cycle(cycleFrom(ix, next)))
				break
			}
			if owner[next] != 0 {
				break
			}
			cur = next
		}
	}

	slices.SortFunc(out, terminal.Terminal.Compare)
	return out, nil
}

func cycleFrom(ix *rules.Index, entry int32) []pagestore.PageID {
	s := ix.Store()
	members := []pagestore.PageID{s.ID(entry)}
	for cur := ix.Successor(entry); cur != entry; cur = ix.Successor(cur) {
		members = append(members, s.ID(cur))
	}
	return members
}
