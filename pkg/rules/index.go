package rules

import (
	"context"

	"github.com/matzehuels/nlink/pkg/errors"
	"github.com/matzehuels/nlink/pkg/pagestore"
)

// Halt is the successor value of a page without an outgoing edge.
const Halt int32 = -1

// Edge is one row of a materialized Edge(N) table.
type Edge struct {
	From pagestore.PageID `json:"from"`
	To   pagestore.PageID `json:"to"`
}

// Index is the successor function of one rule over one store.
type Index struct {
	n     int
	store *pagestore.Store

	succ    []int32
	predOff []int32 // len(succ)+1
	preds   []int32

	edges int
}

// Build derives the index for rule n from the store's link sequences.
//
// The context is checked between passes only. A page with an empty link
// sequence is degree zero and halts; it is not an error.
func Build(ctx context.Context, s *pagestore.Store, n int) (*Index, error) {
	if err := errors.ValidateRule(n); err != nil {
		return nil, err
	}
	if s == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "page store is nil")
	}

	size := s.Len()
	succ := make([]int32, size)
	for i := range succ {
		if t, ok := s.Link(int32(i), n); ok {
			succ[i] = t
		} else {
			succ[i] = Halt
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Cancelled(err, "rule index")
	}

	return finish(ctx, s, n, succ)
}

// FromEdges builds the index for rule n from a pre-materialized edge table.
//
// Each page may appear at most once as From. An exact duplicate row is
// tolerated; a page with two distinct targets violates the functional-edge
// invariant and fails with an integrity error. Endpoints that are not in the
// store are input errors.
func FromEdges(ctx context.Context, s *pagestore.Store, n int, edges []Edge) (*Index, error) {
	if err := errors.ValidateRule(n); err != nil {
		return nil, err
	}
	if s == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "page store is nil")
	}

	succ := make([]int32, s.Len())
	for i := range succ {
		succ[i] = Halt
	}
	for _, e := range edges {
		from, ok := s.Index(e.From)
		if !ok {
			return nil, errors.New(errors.ErrCodeInvalidInput,
				"edge %d->%d: source page not in store", e.From, e.To)
		}
		to, ok := s.Index(e.To)
		if !ok {
			return nil, errors.New(errors.ErrCodeInvalidInput,
				"edge %d->%d: target page not in store", e.From, e.To)
		}
		switch prev := succ[from]; {
		case prev == Halt:
			succ[from] = to
		case prev != to:
			return nil, errors.New(errors.ErrCodeIntegrity,
				"page %d has two outgoing edges under N=%d (%d and %d)",
				e.From, n, s.ID(prev), e.To)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Cancelled(err, "rule index")
	}

	return finish(ctx, s, n, succ)
}

// finish builds the reverse CSR arrays from a complete forward array.
func finish(ctx context.Context, s *pagestore.Store, n int, succ []int32) (*Index, error) {
	predOff := make([]int32, len(succ)+1)
	edges := 0
	for _, t := range succ {
		if t != Halt {
			predOff[t+1]++
			edges++
		}
	}
	for i := 1; i < len(predOff); i++ {
		predOff[i] += predOff[i-1]
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Cancelled(err, "rule index")
	}

	preds := make([]int32, edges)
	cursor := make([]int32, len(succ))
	copy(cursor, predOff[:len(succ)])
	for i, t := range succ {
		if t == Halt {
			continue
		}
		preds[cursor[t]] = int32(i)
		cursor[t]++
	}

	return &Index{
		n:       n,
		store:   s,
		succ:    succ,
		predOff: predOff,
		preds:   preds,
		edges:   edges,
	}, nil
}

// N returns the rule index.
func (ix *Index) N() int { return ix.n }

// Store returns the page store the index was built over.
func (ix *Index) Store() *pagestore.Store { return ix.store }

// Len returns the number of pages.
func (ix *Index) Len() int { return len(ix.succ) }

// Successor returns the successor of page idx, or [Halt].
func (ix *Index) Successor(idx int32) int32 { return ix.succ[idx] }

// Predecessors returns the pages whose successor is idx, in ascending order.
// The slice is a read-only view into the index.
func (ix *Index) Predecessors(idx int32) []int32 {
	return ix.preds[ix.predOff[idx]:ix.predOff[idx+1]]
}

// InDegree returns len(Predecessors(idx)) without slicing.
func (ix *Index) InDegree(idx int32) int {
	return int(ix.predOff[idx+1] - ix.predOff[idx])
}

// EdgeCount returns the number of pages with an outgoing edge.
func (ix *Index) EdgeCount() int { return ix.edges }

// HaltCount returns the number of pages without an outgoing edge.
func (ix *Index) HaltCount() int { return len(ix.succ) - ix.edges }

// Edges materializes the Edge(N) table in page order.
func (ix *Index) Edges() []Edge {
	out := make([]Edge, 0, ix.edges)
	for i, t := range ix.succ {
		if t != Halt {
			out = append(out, Edge{From: ix.store.ID(int32(i)), To: ix.store.ID(t)})
		}
	}
	return out
}
