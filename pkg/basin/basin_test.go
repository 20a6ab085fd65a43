package basin

import (
	"context"
	"math/rand/v2"
	"slices"
	"testing"
	"time"

	"github.com/matzehuels/nlink/pkg/errors"
	"github.com/matzehuels/nlink/pkg/pagestore"
	"github.com/matzehuels/nlink/pkg/progress"
	"github.com/matzehuels/nlink/pkg/rules"
	"github.com/matzehuels/nlink/pkg/terminal"
	"github.com/matzehuels/nlink/pkg/trace"
)

func buildIndex(t *testing.T, n int, pages []pagestore.Page) *rules.Index {
	t.Helper()
	b := pagestore.NewBuilder(len(pages))
	for _, p := range pages {
		b.Add(p)
	}
	s, err := b.Build()
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	ix, err := rules.Build(context.Background(), s, n)
	if err != nil {
		t.Fatalf("rules.Build() error: %v", err)
	}
	return ix
}

// A..F = 1..6; under N=2 A->B->C->A, D->A, E->A and F halts.
func scenarioPages() []pagestore.Page {
	return []pagestore.Page{
		{ID: 1, Title: "A", Links: []pagestore.PageID{4, 2}},
		{ID: 2, Title: "B", Links: []pagestore.PageID{5, 3}},
		{ID: 3, Title: "C", Links: []pagestore.PageID{1, 1}},
		{ID: 4, Title: "D", Links: []pagestore.PageID{6, 1}},
		{ID: 5, Title: "E", Links: []pagestore.PageID{1, 1}},
		{ID: 6, Title: "F", Links: []pagestore.PageID{4}},
	}
}

// chainPages returns pages 0..n-1 where page i links to i-1 and page 0 links
// to itself, so page i has depth i in the basin of cycle:0.
func chainPages(n int) []pagestore.Page {
	pages := make([]pagestore.Page, n)
	for i := range pages {
		target := pagestore.PageID(max(i-1, 0))
		pages[i] = pagestore.Page{ID: pagestore.PageID(i), Links: []pagestore.PageID{target}}
	}
	return pages
}

func pageIDs(ix *rules.Index, idxs []int32) []pagestore.PageID {
	out := make([]pagestore.PageID, len(idxs))
	for i, idx := range idxs {
		out[i] = ix.Store().ID(idx)
	}
	slices.Sort(out)
	return out
}

func TestMapScenario(t *testing.T) {
	ix := buildIndex(t, 2, scenarioPages())
	b, err := Map(context.Background(), ix, terminal.Cycle([]pagestore.PageID{1, 2, 3}), Options{})
	if err != nil {
		t.Fatalf("Map() error: %v", err)
	}

	if b.Size() != 5 {
		t.Errorf("Size() = %d, want 5", b.Size())
	}
	if b.MaxDepth() != 1 {
		t.Errorf("MaxDepth() = %d, want 1", b.MaxDepth())
	}
	if got := pageIDs(ix, b.Layer(0)); !slices.Equal(got, []pagestore.PageID{1, 2, 3}) {
		t.Errorf("Layer(0) = %v", got)
	}
	if got := pageIDs(ix, b.Layer(1)); !slices.Equal(got, []pagestore.PageID{4, 5}) {
		t.Errorf("Layer(1) = %v", got)
	}
	if b.Layer(2) != nil || b.Layer(-1) != nil {
		t.Error("out-of-range layers should be empty")
	}
	if b.ContainsPage(6) {
		t.Error("F halts under N=2 and is not in the cycle basin")
	}
	if b.Truncated {
		t.Error("complete basin reported as truncated")
	}
	if !slices.Equal(b.Histogram(), []int{3, 2}) {
		t.Errorf("Histogram() = %v", b.Histogram())
	}

	halt, err := Map(context.Background(), ix, terminal.Halt(6), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if halt.Size() != 1 || halt.MaxDepth() != 0 {
		t.Errorf("halt basin size=%d depth=%d, want 1 and 0", halt.Size(), halt.MaxDepth())
	}
}

func TestDepthsMatchForwardWalk(t *testing.T) {
	ix := buildIndex(t, 1, chainPages(50))
	b, err := Map(context.Background(), ix, terminal.Cycle([]pagestore.PageID{0}), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if b.Size() != 50 || b.MaxDepth() != 49 {
		t.Fatalf("size=%d depth=%d, want 50 and 49", b.Size(), b.MaxDepth())
	}
	for _, row := range b.Rows() {
		if row.Depth != int(row.Page) {
			t.Errorf("page %d at depth %d", row.Page, row.Depth)
		}
		idx, _ := ix.Store().Index(row.Page)
		if d, ok := b.Depth(idx); !ok || d != row.Depth {
			t.Errorf("Depth(%d) = %d,%v want %d", row.Page, d, ok, row.Depth)
		}
	}
}

func TestBudgets(t *testing.T) {
	ix := buildIndex(t, 1, chainPages(10))
	root := terminal.Cycle([]pagestore.PageID{0})

	tests := []struct {
		name       string
		opts       Options
		wantSize   int
		wantReason Reason
	}{
		{"unbounded", Options{}, 10, ReasonNone},
		{"depth cut", Options{MaxDepth: 3}, 4, ReasonMaxDepth},
		{"depth exactly enough", Options{MaxDepth: 9}, 10, ReasonNone},
		{"node cut", Options{MaxNodes: 5}, 5, ReasonMaxNodes},
		{"nodes exactly enough", Options{MaxNodes: 10}, 10, ReasonNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := Map(context.Background(), ix, root, tt.opts)
			if err != nil {
				t.Fatalf("Map() error: %v", err)
			}
			if b.Size() != tt.wantSize {
				t.Errorf("Size() = %d, want %d", b.Size(), tt.wantSize)
			}
			if b.Reason != tt.wantReason || b.Truncated != (tt.wantReason != ReasonNone) {
				t.Errorf("Truncated=%v Reason=%q, want %q", b.Truncated, b.Reason, tt.wantReason)
			}
		})
	}
}

func TestNodeBudgetKeepsDepthsCorrect(t *testing.T) {
	// A star: 20 pages link to page 0, which links to itself.
	pages := []pagestore.Page{{ID: 0, Links: []pagestore.PageID{0}}}
	for i := 1; i <= 20; i++ {
		pages = append(pages, pagestore.Page{ID: pagestore.PageID(i), Links: []pagestore.PageID{0}})
	}
	ix := buildIndex(t, 1, pages)

	b, err := Map(context.Background(), ix, terminal.Cycle([]pagestore.PageID{0}), Options{MaxNodes: 8})
	if err != nil {
		t.Fatal(err)
	}
	if b.Size() != 8 || b.Reason != ReasonMaxNodes {
		t.Fatalf("size=%d reason=%q", b.Size(), b.Reason)
	}
	for _, row := range b.Rows()[1:] {
		if row.Depth != 1 {
			t.Errorf("page %d at depth %d, want 1", row.Page, row.Depth)
		}
	}
}

func TestTimeBudget(t *testing.T) {
	ix := buildIndex(t, 1, chainPages(10))
	b, err := Map(context.Background(), ix, terminal.Cycle([]pagestore.PageID{0}), Options{MaxDuration: time.Nanosecond})
	if err != nil {
		t.Fatal(err)
	}
	if !b.Truncated || b.Reason != ReasonTime {
		t.Errorf("Truncated=%v Reason=%q, want time", b.Truncated, b.Reason)
	}
}

func TestInvalidOptions(t *testing.T) {
	ix := buildIndex(t, 1, chainPages(3))
	root := terminal.Cycle([]pagestore.PageID{0})
	for _, opts := range []Options{{MaxDepth: -1}, {MaxNodes: -1}, {MaxDuration: -time.Second}} {
		if _, err := Map(context.Background(), ix, root, opts); !errors.Is(err, errors.ErrCodeInvalidInput) {
			t.Errorf("Map(%+v) error = %v", opts, err)
		}
	}
}

func TestResolveRejectsNonTerminals(t *testing.T) {
	ix := buildIndex(t, 2, scenarioPages())

	tests := []struct {
		name string
		term terminal.Terminal
	}{
		{"zero", terminal.Terminal{}},
		{"halt with successor", terminal.Halt(1)},
		{"unknown page", terminal.Halt(99)},
		{"partial cycle", terminal.Cycle([]pagestore.PageID{1, 2})},
		{"cycle plus tail", terminal.Cycle([]pagestore.PageID{1, 2, 3, 4})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Map(context.Background(), ix, tt.term, Options{})
			if !errors.Is(err, errors.ErrCodeInvalidTerminal) {
				t.Errorf("error = %v, want %s", err, errors.ErrCodeInvalidTerminal)
			}
		})
	}
}

func TestCancelled(t *testing.T) {
	ix := buildIndex(t, 1, chainPages(10))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b, err := Map(ctx, ix, terminal.Cycle([]pagestore.PageID{0}), Options{})
	if !errors.IsCancelled(err) || b != nil {
		t.Errorf("Map() = %v, %v; want nil and cancellation", b, err)
	}
}

func TestProgressPerLayer(t *testing.T) {
	ix := buildIndex(t, 1, chainPages(6))
	var updates []progress.Update
	opts := Options{Progress: progress.Func(func(u progress.Update) { updates = append(updates, u) })}

	if _, err := Map(context.Background(), ix, terminal.Cycle([]pagestore.PageID{0}), opts); err != nil {
		t.Fatal(err)
	}
	if len(updates) != 5 {
		t.Fatalf("got %d updates, want one per layer beyond the terminal (5)", len(updates))
	}
	if last := updates[len(updates)-1]; last.Done != 6 || last.Stage != progress.StageBasin {
		t.Errorf("last update = %+v", last)
	}
}

// randomPages builds a reproducible random link graph with some
// zero-degree pages.
func randomPages(seed uint64, size, maxDegree int) []pagestore.Page {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	pages := make([]pagestore.Page, size)
	for i := range pages {
		deg := r.IntN(maxDegree + 1)
		links := make([]pagestore.PageID, deg)
		for j := range links {
			links[j] = pagestore.PageID(r.IntN(size))
		}
		pages[i] = pagestore.Page{ID: pagestore.PageID(i), Links: links}
	}
	return pages
}

func TestBasinsPartitionPages(t *testing.T) {
	pages := randomPages(7, 300, 4)
	for n := 1; n <= 4; n++ {
		ix := buildIndex(t, n, pages)
		terms, err := trace.Terminals(context.Background(), ix)
		if err != nil {
			t.Fatal(err)
		}

		owner := make([]int, ix.Len())
		for i := range owner {
			owner[i] = -1
		}
		for ti, term := range terms {
			b, err := Map(context.Background(), ix, term, Options{})
			if err != nil {
				t.Fatalf("N=%d %s: %v", n, term, err)
			}
			for _, idx := range b.Nodes() {
				if owner[idx] != -1 {
					t.Fatalf("N=%d: page %d in two basins", n, idx)
				}
				owner[idx] = ti
			}
		}

		for i := range int32(ix.Len()) {
			if owner[i] == -1 {
				t.Fatalf("N=%d: page %d in no basin", n, i)
			}
			got, err := trace.Of(ix, i)
			if err != nil {
				t.Fatal(err)
			}
			if !got.Equal(terms[owner[i]]) {
				t.Errorf("N=%d: page %d traces to %s but sits in basin of %s", n, i, got, terms[owner[i]])
			}
		}
	}
}

func TestMapIsDeterministic(t *testing.T) {
	ix := buildIndex(t, 2, randomPages(11, 200, 3))
	terms, err := trace.Terminals(context.Background(), ix)
	if err != nil {
		t.Fatal(err)
	}
	for _, term := range terms {
		a, err := Map(context.Background(), ix, term, Options{})
		if err != nil {
			t.Fatal(err)
		}
		b, err := Map(context.Background(), ix, term, Options{})
		if err != nil {
			t.Fatal(err)
		}
		if !slices.Equal(a.Rows(), b.Rows()) {
			t.Errorf("%s: rows differ between runs", term)
		}
	}
}

func TestBinaryRoundTrip(t *testing.T) {
	ix := buildIndex(t, 1, chainPages(12))
	root := terminal.Cycle([]pagestore.PageID{0})
	b, err := Map(context.Background(), ix, root, Options{MaxDepth: 5})
	if err != nil {
		t.Fatal(err)
	}
	data, err := b.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}

	got, err := Unmarshal(data, ix, root)
	if err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if !slices.Equal(got.Rows(), b.Rows()) {
		t.Error("rows differ after decode")
	}
	if !got.Truncated || got.Reason != ReasonMaxDepth {
		t.Errorf("Truncated=%v Reason=%q after decode", got.Truncated, got.Reason)
	}
	if !got.ContainsPage(5) || got.ContainsPage(6) {
		t.Error("membership not restored")
	}

	other := buildIndex(t, 1, chainPages(12))
	if _, err := Unmarshal(data, other, terminal.Cycle([]pagestore.PageID{1})); !errors.Is(err, errors.ErrCodeIntegrity) {
		t.Errorf("wrong terminal: error = %v", err)
	}
	if _, err := Unmarshal(data[:20], ix, root); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("truncated: error = %v", err)
	}
}

func TestBinaryRoundTripLongCycleKey(t *testing.T) {
	// 10000 ten-digit ids give a terminal key well past 64 KiB.
	const size = 10000
	const base = pagestore.PageID(1_000_000_000)
	pages := make([]pagestore.Page, size+1)
	ids := make([]pagestore.PageID, size)
	for i := range size {
		ids[i] = base + pagestore.PageID(i)
		pages[i] = pagestore.Page{ID: ids[i], Links: []pagestore.PageID{base + pagestore.PageID((i+1)%size)}}
	}
	pages[size] = pagestore.Page{ID: 7, Links: []pagestore.PageID{base}}
	ix := buildIndex(t, 1, pages)
	cycle := terminal.Cycle(ids)
	if len(cycle.Key()) <= 1<<16 {
		t.Fatalf("key length %d does not exceed 64 KiB", len(cycle.Key()))
	}

	b, err := Map(context.Background(), ix, cycle, Options{})
	if err != nil {
		t.Fatal(err)
	}
	data, err := b.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	got, err := Unmarshal(data, ix, cycle)
	if err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if got.Size() != size+1 || !got.ContainsPage(7) {
		t.Errorf("Size() = %d, ContainsPage(7) = %v; want %d and true", got.Size(), got.ContainsPage(7), size+1)
	}
	if !slices.Equal(got.Rows(), b.Rows()) {
		t.Error("rows differ after decode")
	}
}

func TestTerminalLargerThanNodeBudget(t *testing.T) {
	// A 4-cycle 0..3 with page 9 feeding it.
	pages := []pagestore.Page{
		{ID: 0, Links: []pagestore.PageID{1}},
		{ID: 1, Links: []pagestore.PageID{2}},
		{ID: 2, Links: []pagestore.PageID{3}},
		{ID: 3, Links: []pagestore.PageID{0}},
		{ID: 9, Links: []pagestore.PageID{0}},
	}
	ix := buildIndex(t, 1, pages)
	cycle := terminal.Cycle([]pagestore.PageID{0, 1, 2, 3})

	b, err := Map(context.Background(), ix, cycle, Options{MaxNodes: 2})
	if err != nil {
		t.Fatal(err)
	}
	if b.Size() != 4 || b.MaxDepth() != 0 {
		t.Errorf("Size()=%d MaxDepth()=%d, want the 4 members only", b.Size(), b.MaxDepth())
	}
	if !b.Truncated || b.Reason != ReasonMaxNodes {
		t.Errorf("Truncated=%v Reason=%q, want max_nodes", b.Truncated, b.Reason)
	}
	if b.ContainsPage(9) {
		t.Error("page 9 recorded beyond the budget")
	}
}

func TestScratchReuse(t *testing.T) {
	ix := buildIndex(t, 2, randomPages(5, 300, 4))
	terms, err := trace.Terminals(context.Background(), ix)
	if err != nil {
		t.Fatal(err)
	}
	scratch := NewScratch(ix)

	for _, term := range terms {
		fresh, err := Map(context.Background(), ix, term, Options{})
		if err != nil {
			t.Fatal(err)
		}
		b, err := Map(context.Background(), ix, term, Options{Scratch: scratch})
		if err != nil {
			t.Fatalf("%s: Map() with scratch error: %v", term, err)
		}
		if !slices.Equal(b.Rows(), fresh.Rows()) {
			t.Errorf("%s: rows differ with a reused scratch", term)
		}

		b.Release()
		b.Release()
		for idx := range int32(ix.Len()) {
			if b.Contains(idx) != fresh.Contains(idx) {
				t.Fatalf("%s: Contains(%d) changed after Release", term, idx)
			}
			if scratch.visited.has(idx) {
				t.Fatalf("%s: bit %d left set after Release", term, idx)
			}
		}
		if d, ok := b.Depth(b.Nodes()[len(b.Nodes())-1]); !ok || d != b.MaxDepth() {
			t.Errorf("%s: Depth of last page = %d,%v want %d", term, d, ok, b.MaxDepth())
		}
	}
}

func TestScratchMisuse(t *testing.T) {
	ix := buildIndex(t, 1, chainPages(5))
	root := terminal.Cycle([]pagestore.PageID{0})
	scratch := NewScratch(ix)

	held, err := Map(context.Background(), ix, root, Options{Scratch: scratch})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Map(context.Background(), ix, root, Options{Scratch: scratch}); !errors.Is(err, errors.ErrCodeInternal) {
		t.Errorf("scratch in use: error = %v, want %s", err, errors.ErrCodeInternal)
	}
	held.Release()
	if _, err := Map(context.Background(), ix, root, Options{Scratch: scratch}); err != nil {
		t.Errorf("released scratch: error = %v", err)
	}

	other := buildIndex(t, 1, chainPages(5))
	if _, err := Map(context.Background(), other, root, Options{Scratch: NewScratch(ix)}); !errors.Is(err, errors.ErrCodeInternal) {
		t.Errorf("foreign index: error = %v, want %s", err, errors.ErrCodeInternal)
	}
}

func TestCancelReleasesScratch(t *testing.T) {
	ix := buildIndex(t, 1, chainPages(10))
	root := terminal.Cycle([]pagestore.PageID{0})
	scratch := NewScratch(ix)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Map(ctx, ix, root, Options{Scratch: scratch}); !errors.IsCancelled(err) {
		t.Fatalf("Map() error = %v, want cancellation", err)
	}
	b, err := Map(context.Background(), ix, root, Options{Scratch: scratch})
	if err != nil {
		t.Fatalf("Map() after cancel: %v", err)
	}
	if b.Size() != 10 {
		t.Errorf("Size() = %d, want 10", b.Size())
	}
}
