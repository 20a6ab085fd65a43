package basin

import (
	"slices"

	"github.com/matzehuels/nlink/pkg/errors"
	"github.com/matzehuels/nlink/pkg/rules"
)

// Scratch is a reusable visited set for mapping many basins over one index.
//
// Without a Scratch every [Map] call allocates a bitset sized to the whole
// store, so mapping every basin of a rule costs O(terminals x pages). With
// one, the set is allocated once and [Basin.Release] clears only the bits the
// basin set. A Scratch serves one basin at a time and is not safe for
// concurrent use.
type Scratch struct {
	ix      *rules.Index
	visited bitset
	inUse   bool
}

// NewScratch allocates a visited set for basins of ix.
func NewScratch(ix *rules.Index) *Scratch {
	return &Scratch{ix: ix, visited: newBitset(ix.Len())}
}

func (s *Scratch) acquire(ix *rules.Index) (bitset, error) {
	if s.ix != ix {
		return nil, errors.New(errors.ErrCodeInternal, "basin scratch was built for another index")
	}
	if s.inUse {
		return nil, errors.New(errors.ErrCodeInternal, "basin scratch is still held by an unreleased basin")
	}
	s.inUse = true
	return s.visited, nil
}

// Release hands the visited set of a basin mapped with [Options.Scratch] back
// to its scratch. The basin stays readable; membership queries fall back to a
// sorted copy of its pages. Release is a no-op for basins mapped without a
// scratch and for basins already released. It must not run concurrently with
// other methods of b.
func (b *Basin) Release() {
	if b.scratch == nil {
		return
	}
	for _, idx := range b.nodes {
		b.visited.clear(idx)
	}
	b.scratch.inUse = false
	b.scratch = nil
	b.visited = nil
}

func (b *Basin) has(idx int32) bool {
	if b.visited != nil {
		return b.visited.has(idx)
	}
	b.sortOnce.Do(func() {
		b.sorted = slices.Clone(b.nodes)
		slices.Sort(b.sorted)
	})
	_, ok := slices.BinarySearch(b.sorted, idx)
	return ok
}
