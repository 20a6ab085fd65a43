package basin

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matzehuels/nlink/pkg/errors"
	"github.com/matzehuels/nlink/pkg/pagestore"
	"github.com/matzehuels/nlink/pkg/progress"
	"github.com/matzehuels/nlink/pkg/rules"
	"github.com/matzehuels/nlink/pkg/terminal"
)

// Basin is a mapped (possibly truncated) basin.
//
// Pages are stored in discovery order, grouped by layer: the pages at depth d
// are nodes[layerOff[d]:layerOff[d+1]]. A Basin is immutable and safe for
// concurrent readers; [Basin.Release] is the one mutating call.
type Basin struct {
	ix       *rules.Index
	terminal terminal.Terminal
	members  []int32

	nodes    []int32
	layerOff []int32
	visited  bitset
	scratch  *Scratch
	sortOnce sync.Once
	sorted   []int32

	// Truncated is set when a budget stopped the search before the basin was
	// complete. Reason says which one.
	Truncated bool
	Reason    Reason

	// Elapsed is the wall-clock time spent mapping.
	Elapsed time.Duration
}

// Row is one (page, depth) pair of a basin artifact.
type Row struct {
	Page  pagestore.PageID `json:"page_id"`
	Depth int              `json:"depth"`
}

// Resolve checks that t is a terminal of ix and returns its members as
// compact indices.
//
// A HALT page must exist and have no successor. CYCLE members must exist,
// each must map to another member, and together they must form a single
// closed orbit. Anything else is an INVALID_TERMINAL error.
func Resolve(ix *rules.Index, t terminal.Terminal) ([]int32, error) {
	if t.IsZero() {
		return nil, errors.New(errors.ErrCodeInvalidTerminal, "terminal is empty")
	}
	s := ix.Store()
	ids := t.Members()
	members := make([]int32, len(ids))
	for i, id := range ids {
		idx, ok := s.Index(id)
		if !ok {
			return nil, errors.New(errors.ErrCodeInvalidTerminal,
				"terminal %s: page %d is not in the store", t, id)
		}
		members[i] = idx
	}

	if t.IsHalt() {
		if next := ix.Successor(members[0]); next != rules.Halt {
			return nil, errors.New(errors.ErrCodeInvalidTerminal,
				"terminal %s: page has a successor (%d) under N=%d", t, s.ID(next), ix.N())
		}
		return members, nil
	}

	for _, m := range members {
		if _, ok := slices.BinarySearch(members, ix.Successor(m)); !ok {
			return nil, errors.New(errors.ErrCodeInvalidTerminal,
				"terminal %s: page %d leaves the cycle under N=%d", t, s.ID(m), ix.N())
		}
	}
	// Every member maps into the set; it is one cycle iff the orbit of any
	// member returns to it after exactly len(members) steps.
	steps := 1
	for cur := ix.Successor(members[0]); cur != members[0]; cur = ix.Successor(cur) {
		if steps++; steps > len(members) {
			break
		}
	}
	if steps != len(members) {
		return nil, errors.New(errors.ErrCodeInvalidTerminal,
			"terminal %s: members do not form one cycle under N=%d", t, ix.N())
	}
	return members, nil
}

// Map computes the basin of t under ix.
//
// The terminal members are always recorded, even when opts.MaxNodes is
// smaller than their count. When opts.Scratch is set the basin borrows it
// until [Basin.Release].
func Map(ctx context.Context, ix *rules.Index, t terminal.Terminal, opts Options) (*Basin, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	members, err := Resolve(ix, t)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	b := &Basin{
		ix:       ix,
		terminal: t,
		members:  members,
		layerOff: []int32{0},
	}
	if opts.Scratch != nil {
		if b.visited, err = opts.Scratch.acquire(ix); err != nil {
			return nil, err
		}
		b.scratch = opts.Scratch
	} else {
		b.visited = newBitset(ix.Len())
	}

	frontier := make([]int32, 0, len(members))
	for _, m := range members {
		b.visited.set(m)
		frontier = append(frontier, m)
	}
	b.nodes = append(b.nodes, frontier...)
	b.layerOff = append(b.layerOff, int32(len(b.nodes)))
	var next []int32

	for depth := 0; ; depth++ {
		if err := ctx.Err(); err != nil {
			b.Release()
			return nil, errors.Cancelled(err, "basin")
		}
		if opts.MaxDepth > 0 && depth >= opts.MaxDepth {
			if b.hasUnvisitedPredecessor(frontier) {
				b.truncate(ReasonMaxDepth)
			}
			break
		}
		if opts.MaxDuration > 0 && time.Since(start) > opts.MaxDuration {
			if b.hasUnvisitedPredecessor(frontier) {
				b.truncate(ReasonTime)
			}
			break
		}

		next = next[:0]
		full := false
	expand:
		for _, f := range frontier {
			for _, p := range ix.Predecessors(f) {
				if b.visited.has(p) {
					continue
				}
				if opts.MaxNodes > 0 && len(b.nodes)+len(next) >= opts.MaxNodes {
					full = true
					break expand
				}
				b.visited.set(p)
				next = append(next, p)
			}
		}

		if len(next) > 0 {
			b.nodes = append(b.nodes, next...)
			b.layerOff = append(b.layerOff, int32(len(b.nodes)))
			opts.Progress.Report(progress.Update{
				Stage:  progress.StageBasin,
				Done:   int64(len(b.nodes)),
				Detail: fmt.Sprintf("N=%d depth %d", ix.N(), depth+1),
			})
		}
		if full {
			b.truncate(ReasonMaxNodes)
			break
		}
		if len(next) == 0 {
			break
		}
		frontier, next = next, frontier
	}

	b.Elapsed = time.Since(start)
	return b, nil
}

func (b *Basin) truncate(r Reason) {
	b.Truncated = true
	b.Reason = r
}

func (b *Basin) hasUnvisitedPredecessor(frontier []int32) bool {
	for _, f := range frontier {
		for _, p := range b.ix.Predecessors(f) {
			if !b.visited.has(p) {
				return true
			}
		}
	}
	return false
}

// Index returns the rule index the basin was mapped on.
func (b *Basin) Index() *rules.Index { return b.ix }

// N returns the rule index N.
func (b *Basin) N() int { return b.ix.N() }

// Terminal returns the terminal the basin drains into.
func (b *Basin) Terminal() terminal.Terminal { return b.terminal }

// Members returns the terminal members as compact indices, ascending.
func (b *Basin) Members() []int32 { return slices.Clone(b.members) }

// Size returns the number of pages in the basin, terminal members included.
// It exceeds Options.MaxNodes only when the terminal alone does.
func (b *Basin) Size() int { return len(b.nodes) }

// MaxDepth returns the deepest recorded layer.
func (b *Basin) MaxDepth() int { return len(b.layerOff) - 2 }

// Layer returns the compact indices at depth d. The slice is a read-only
// view; it is empty when d is out of range.
func (b *Basin) Layer(d int) []int32 {
	if d < 0 || d > b.MaxDepth() {
		return nil
	}
	return b.nodes[b.layerOff[d]:b.layerOff[d+1]]
}

// Nodes returns every page in discovery order (by depth). Read-only view.
func (b *Basin) Nodes() []int32 { return b.nodes }

// Contains reports whether the page at compact index idx is in the basin.
func (b *Basin) Contains(idx int32) bool { return b.has(idx) }

// ContainsPage reports whether page id is in the basin.
func (b *Basin) ContainsPage(id pagestore.PageID) bool {
	idx, ok := b.ix.Store().Index(id)
	return ok && b.has(idx)
}

// Depth returns the depth of the page at idx by walking forward to the
// terminal. It returns false when the page is not in the basin.
func (b *Basin) Depth(idx int32) (int, bool) {
	if !b.has(idx) {
		return 0, false
	}
	d := 0
	for cur := idx; ; cur = b.ix.Successor(cur) {
		if _, member := slices.BinarySearch(b.members, cur); member {
			return d, true
		}
		d++
	}
}

// Each calls fn for every page in depth order.
func (b *Basin) Each(fn func(idx int32, depth int)) {
	for d := 0; d <= b.MaxDepth(); d++ {
		for _, idx := range b.Layer(d) {
			fn(idx, d)
		}
	}
}

// Rows materializes the (page id, depth) pairs in depth order.
func (b *Basin) Rows() []Row {
	s := b.ix.Store()
	rows := make([]Row, 0, len(b.nodes))
	b.Each(func(idx int32, depth int) {
		rows = append(rows, Row{Page: s.ID(idx), Depth: depth})
	})
	return rows
}

// Histogram returns the number of pages at each depth.
func (b *Basin) Histogram() []int {
	h := make([]int, b.MaxDepth()+1)
	for d := range h {
		h[d] = int(b.layerOff[d+1] - b.layerOff[d])
	}
	return h
}

// bitset is a fixed-size membership set over compact indices.
type bitset []uint64

func newBitset(n int) bitset { return make(bitset, (n+63)/64) }

func (s bitset) set(i int32)      { s[i>>6] |= 1 << (uint(i) & 63) }
func (s bitset) has(i int32) bool { return s[i>>6]&(1<<(uint(i)&63)) != 0 }
func (s bitset) clear(i int32)    { s[i>>6] &^= 1 << (uint(i) & 63) }
