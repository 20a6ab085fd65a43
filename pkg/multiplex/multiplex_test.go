package multiplex

import (
	"context"
	"math/rand/v2"
	"runtime"
	"testing"

	"github.com/matzehuels/nlink/pkg/basin"
	"github.com/matzehuels/nlink/pkg/errors"
	"github.com/matzehuels/nlink/pkg/pagestore"
	"github.com/matzehuels/nlink/pkg/progress"
	"github.com/matzehuels/nlink/pkg/rules"
	"github.com/matzehuels/nlink/pkg/terminal"
)

func buildStore(t *testing.T, pages ...pagestore.Page) *pagestore.Store {
	t.Helper()
	b := pagestore.NewBuilder()
	for _, p := range pages {
		b.Add(p)
	}
	s, err := b.Build()
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	return s
}

// A..F = 1..6.
//
//	N=1: A->D, B->E, C->A, D->F, E->A, F->D   (everything drains into D-F)
//	N=2: A->B->C->A, D->A, E->A, F halts
func scenarioStore(t *testing.T) *pagestore.Store {
	return buildStore(t,
		pagestore.Page{ID: 1, Title: "A", Links: []pagestore.PageID{4, 2}},
		pagestore.Page{ID: 2, Title: "B", Links: []pagestore.PageID{5, 3}},
		pagestore.Page{ID: 3, Title: "C", Links: []pagestore.PageID{1, 1}},
		pagestore.Page{ID: 4, Title: "D", Links: []pagestore.PageID{6, 1}},
		pagestore.Page{ID: 5, Title: "E", Links: []pagestore.PageID{1, 1}},
		pagestore.Page{ID: 6, Title: "F", Links: []pagestore.PageID{4}},
	)
}

func tunnelByPage(res *Result) map[pagestore.PageID]Tunnel {
	m := make(map[pagestore.PageID]Tunnel, len(res.Tunnels))
	for _, tun := range res.Tunnels {
		m[tun.Page] = tun
	}
	return m
}

func TestRunScenario(t *testing.T) {
	s := scenarioStore(t)
	res, err := Run(context.Background(), s, []int{2, 1}, Options{})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	d, _ := s.Index(4)
	at1, ok1 := res.Assignments.At(d, 1)
	at2, ok2 := res.Assignments.At(d, 2)
	if !ok1 || !ok2 {
		t.Fatal("D should be assigned at both rules")
	}
	if got := res.Registry.Terminal(at1).Key(); got != "cycle:4,6" {
		t.Errorf("D at N=1 -> %s, want cycle:4,6", got)
	}
	if got := res.Registry.Terminal(at2).Key(); got != "cycle:1,2,3" {
		t.Errorf("D at N=2 -> %s, want cycle:1,2,3", got)
	}

	tunnels := tunnelByPage(res)
	wantMech := map[pagestore.PageID]Mechanism{
		1: DegreeShift, // A: 1st link D, 2nd link B
		2: DegreeShift,
		3: Indirect, // C links to A twice; A's terminal moved
		4: DegreeShift,
		5: Indirect,
		6: DegreeShift, // F loses its edge at N=2
	}
	if len(tunnels) != len(wantMech) {
		t.Fatalf("got %d tunnels, want %d", len(tunnels), len(wantMech))
	}
	for page, want := range wantMech {
		tun, ok := tunnels[page]
		if !ok {
			t.Errorf("page %d missing from tunnels", page)
			continue
		}
		if tun.Mechanism != want || tun.Transitions != 1 || tun.FromN != 1 || tun.ToN != 2 {
			t.Errorf("page %d: %+v, want %s over 1->2", page, tun, want)
		}
	}
	if res.Truncated {
		t.Error("unbounded run reported truncation")
	}
	if res.Assignments.Len() != 12 {
		t.Errorf("Assignments.Len() = %d, want 12", res.Assignments.Len())
	}
}

func TestRunNormalizesRules(t *testing.T) {
	res, err := Run(context.Background(), scenarioStore(t), []int{3, 1, 2, 2}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Ns) != 3 || res.Ns[0] != 1 || res.Ns[2] != 3 {
		t.Errorf("Ns = %v, want [1 2 3]", res.Ns)
	}
	if len(res.Passes) != 3 {
		t.Fatalf("Passes = %d, want 3", len(res.Passes))
	}
	if p := res.Passes[2]; p.Halts != 6 || p.Cycles != 0 {
		t.Errorf("N=3 pass = %+v, want 6 halts", p)
	}

	tunnels := tunnelByPage(res)
	// F halts at both N=2 and N=3, so it only tunnels once.
	if f := tunnels[6]; f.Transitions != 1 || f.ToN != 2 {
		t.Errorf("F tunnel = %+v", f)
	}
	if a := tunnels[1]; a.Transitions != 2 || a.FromN != 1 || a.ToN != 3 {
		t.Errorf("A tunnel = %+v", a)
	}
	for _, tr := range res.Transitions {
		if tr.From == tr.To {
			t.Errorf("transition without a terminal change: %+v", tr)
		}
	}
}

func TestAlignmentIsByMemberSet(t *testing.T) {
	// 1 and 2 form a cycle under both rules; 3 enters it through a
	// different member at each rule but never changes terminal.
	s := buildStore(t,
		pagestore.Page{ID: 1, Links: []pagestore.PageID{2, 2}},
		pagestore.Page{ID: 2, Links: []pagestore.PageID{1, 1}},
		pagestore.Page{ID: 3, Links: []pagestore.PageID{1, 2}},
	)
	res, err := Run(context.Background(), s, []int{1, 2}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Registry.Len() != 1 {
		t.Errorf("Registry.Len() = %d, want 1", res.Registry.Len())
	}
	if len(res.Tunnels) != 0 {
		t.Errorf("Tunnels = %+v, want none", res.Tunnels)
	}
}

func TestTruncatedPagesNeverTunnel(t *testing.T) {
	s := scenarioStore(t)
	res, err := Run(context.Background(), s, []int{1, 2}, Options{Basin: basin.Options{MaxNodes: 1}})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Truncated {
		t.Error("expected truncation")
	}
	// Only F is assigned at both rules: cycle D-F at N=1, halt F at N=2.
	if len(res.Tunnels) != 1 || res.Tunnels[0].Page != 6 {
		t.Errorf("Tunnels = %+v, want only page 6", res.Tunnels)
	}
	a, _ := s.Index(1)
	if _, ok := res.Assignments.At(a, 1); ok {
		t.Error("A was cut off at N=1 and must be unassigned")
	}
}

func TestCustomClassifiers(t *testing.T) {
	res, err := Run(context.Background(), scenarioStore(t), []int{1, 2}, Options{Classifiers: []Classifier{}})
	if err != nil {
		t.Fatal(err)
	}
	for _, tun := range res.Tunnels {
		if tun.Mechanism != Unclassified {
			t.Errorf("page %d: %s, want unclassified with no classifiers", tun.Page, tun.Mechanism)
		}
	}
}

func TestIndexSourceIsUsed(t *testing.T) {
	s := scenarioStore(t)
	var asked []int
	src := IndexSourceFunc(func(ctx context.Context, n int) (*rules.Index, error) {
		asked = append(asked, n)
		return rules.Build(ctx, s, n)
	})
	var updates []progress.Update
	_, err := Run(context.Background(), s, []int{1, 2}, Options{
		Source:   src,
		Progress: progress.Func(func(u progress.Update) { updates = append(updates, u) }),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(asked) != 2 || asked[0] != 1 || asked[1] != 2 {
		t.Errorf("source asked for %v, want [1 2]", asked)
	}
	if len(updates) != 2 || updates[1].Fraction() != 1 {
		t.Errorf("progress updates = %+v", updates)
	}
}

func TestRunErrors(t *testing.T) {
	s := scenarioStore(t)
	if _, err := Run(context.Background(), s, nil, Options{}); !errors.Is(err, errors.ErrCodeInvalidRule) {
		t.Errorf("no rules: error = %v", err)
	}
	if _, err := Run(context.Background(), s, []int{0, 1}, Options{}); !errors.Is(err, errors.ErrCodeInvalidRule) {
		t.Errorf("rule 0: error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Run(ctx, s, []int{1, 2}, Options{}); !errors.IsCancelled(err) {
		t.Errorf("cancelled: error = %v", err)
	}
}

func TestTunnelsOnlyWhereTerminalsDiffer(t *testing.T) {
	r := rand.New(rand.NewPCG(21, 42))
	const size = 250
	b := pagestore.NewBuilder(size)
	for i := range size {
		links := make([]pagestore.PageID, r.IntN(5))
		for j := range links {
			links[j] = pagestore.PageID(r.IntN(size))
		}
		b.Add(pagestore.Page{ID: pagestore.PageID(i), Links: links})
	}
	s, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}

	ns := []int{1, 2, 3, 4}
	res, err := Run(context.Background(), s, ns, Options{})
	if err != nil {
		t.Fatal(err)
	}

	tunnels := tunnelByPage(res)
	for idx := range int32(s.Len()) {
		changed := false
		for i := 1; i < len(ns); i++ {
			a, _ := res.Assignments.At(idx, ns[i-1])
			b, _ := res.Assignments.At(idx, ns[i])
			if a != b {
				changed = true
			}
		}
		_, inTunnels := tunnels[s.ID(idx)]
		if changed != inTunnels {
			t.Errorf("page %d: changed=%v but in tunnels=%v", s.ID(idx), changed, inTunnels)
		}
	}
	for _, tr := range res.Transitions {
		idx, _ := s.Index(tr.Page)
		a, _ := res.Assignments.At(idx, tr.FromN)
		b, _ := res.Assignments.At(idx, tr.ToN)
		if a == b || a != tr.From || b != tr.To {
			t.Errorf("transition %+v inconsistent with assignments", tr)
		}
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	a := r.Intern(terminal.Cycle([]pagestore.PageID{3, 1}))
	b := r.Intern(terminal.Cycle([]pagestore.PageID{1, 3}))
	c := r.Intern(terminal.Halt(1))
	if a != b || a == c {
		t.Errorf("ids a=%d b=%d c=%d", a, b, c)
	}
	if got := r.Terminal(c); !got.Equal(terminal.Halt(1)) {
		t.Errorf("Terminal(%d) = %s", c, got)
	}
	if !r.Terminal(Unassigned).IsZero() {
		t.Error("Unassigned should map to the zero terminal")
	}
	if _, ok := r.Lookup(terminal.Halt(2)); ok {
		t.Error("Lookup of unknown terminal should fail")
	}
}

func TestHaltHeavyPassAllocatesLinearly(t *testing.T) {
	// Every page is isolated, so every page is its own HALT basin. A
	// store-sized visited set per basin would cost pages*pages/8 bytes.
	const pages = 1 << 16
	b := pagestore.NewBuilder()
	for i := range pages {
		b.Add(pagestore.Page{ID: pagestore.PageID(i)})
	}
	s, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	ix, err := rules.Build(context.Background(), s, 1)
	if err != nil {
		t.Fatal(err)
	}
	src := IndexSourceFunc(func(context.Context, int) (*rules.Index, error) { return ix, nil })

	var before, after runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&before)
	res, err := Run(context.Background(), s, []int{1}, Options{Source: src})
	runtime.ReadMemStats(&after)
	if err != nil {
		t.Fatal(err)
	}
	if res.Passes[0].Halts != pages || res.Passes[0].Unassigned != 0 {
		t.Fatalf("pass = %+v, want %d halts and no unassigned pages", res.Passes[0], pages)
	}
	if perPage := (after.TotalAlloc - before.TotalAlloc) / pages; perPage > 4096 {
		t.Errorf("allocated %d bytes per page, want at most 4096", perPage)
	}
}
