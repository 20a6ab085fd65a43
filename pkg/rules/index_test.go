package rules

import (
	"context"
	"slices"
	"testing"

	"github.com/matzehuels/nlink/pkg/errors"
	"github.com/matzehuels/nlink/pkg/pagestore"
)

// scenario pages: A..F = 1..6.
//
//	N=1: A->D, B->E, C->A, D->F, E->A, F->D
//	N=2: A->B, B->C, C->A, D->A, E->A, F halts
func scenarioStore(t *testing.T) *pagestore.Store {
	t.Helper()
	b := pagestore.NewBuilder()
	b.Add(pagestore.Page{ID: 1, Title: "A", Links: []pagestore.PageID{4, 2}})
	b.Add(pagestore.Page{ID: 2, Title: "B", Links: []pagestore.PageID{5, 3}})
	b.Add(pagestore.Page{ID: 3, Title: "C", Links: []pagestore.PageID{1, 1}})
	b.Add(pagestore.Page{ID: 4, Title: "D", Links: []pagestore.PageID{6, 1}})
	b.Add(pagestore.Page{ID: 5, Title: "E", Links: []pagestore.PageID{1, 1}})
	b.Add(pagestore.Page{ID: 6, Title: "F", Links: []pagestore.PageID{4}})
	s, err := b.Build()
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	return s
}

func idx(t *testing.T, s *pagestore.Store, id pagestore.PageID) int32 {
	t.Helper()
	i, ok := s.Index(id)
	if !ok {
		t.Fatalf("page %d not in store", id)
	}
	return i
}

func TestBuild(t *testing.T) {
	s := scenarioStore(t)
	ix, err := Build(context.Background(), s, 2)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	if ix.N() != 2 || ix.Len() != 6 {
		t.Errorf("N=%d Len=%d, want 2 and 6", ix.N(), ix.Len())
	}
	if ix.EdgeCount() != 5 || ix.HaltCount() != 1 {
		t.Errorf("EdgeCount=%d HaltCount=%d, want 5 and 1", ix.EdgeCount(), ix.HaltCount())
	}

	wantSucc := map[pagestore.PageID]pagestore.PageID{1: 2, 2: 3, 3: 1, 4: 1, 5: 1}
	for from, to := range wantSucc {
		if got := ix.Successor(idx(t, s, from)); got != idx(t, s, to) {
			t.Errorf("Successor(%d) = %d, want index of %d", from, got, to)
		}
	}
	if ix.Successor(idx(t, s, 6)) != Halt {
		t.Error("F has one link and must halt under N=2")
	}

	var preds []pagestore.PageID
	for _, p := range ix.Predecessors(idx(t, s, 1)) {
		preds = append(preds, s.ID(p))
	}
	if !slices.Equal(preds, []pagestore.PageID{3, 4, 5}) {
		t.Errorf("Predecessors(A) = %v, want [3 4 5]", preds)
	}
	if ix.InDegree(idx(t, s, 6)) != 0 {
		t.Error("nothing points at F under N=2")
	}
}

func TestBuildRuleOne(t *testing.T) {
	s := scenarioStore(t)
	ix, err := Build(context.Background(), s, 1)
	if err != nil {
		t.Fatal(err)
	}
	if ix.HaltCount() != 0 {
		t.Errorf("HaltCount() = %d, want 0", ix.HaltCount())
	}
	if got := ix.Successor(idx(t, s, 4)); got != idx(t, s, 6) {
		t.Errorf("Successor(D) under N=1 = %d, want F", got)
	}
}

func TestBuildInvalidRule(t *testing.T) {
	s := scenarioStore(t)
	for _, n := range []int{0, -3} {
		if _, err := Build(context.Background(), s, n); !errors.Is(err, errors.ErrCodeInvalidRule) {
			t.Errorf("Build(N=%d) error = %v, want %s", n, err, errors.ErrCodeInvalidRule)
		}
	}
}

func TestBuildCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Build(ctx, scenarioStore(t), 2)
	if !errors.IsCancelled(err) {
		t.Errorf("Build() error = %v, want cancellation", err)
	}
}

func TestFromEdgesMatchesBuild(t *testing.T) {
	s := scenarioStore(t)
	built, err := Build(context.Background(), s, 2)
	if err != nil {
		t.Fatal(err)
	}

	edges := built.Edges()
	edges = append(edges, edges[0]) // exact duplicate is tolerated
	fromEdges, err := FromEdges(context.Background(), s, 2, edges)
	if err != nil {
		t.Fatalf("FromEdges() error: %v", err)
	}

	for i := range built.Len() {
		if built.Successor(int32(i)) != fromEdges.Successor(int32(i)) {
			t.Errorf("page %d: successors differ", s.ID(int32(i)))
		}
		if !slices.Equal(built.Predecessors(int32(i)), fromEdges.Predecessors(int32(i))) {
			t.Errorf("page %d: predecessors differ", s.ID(int32(i)))
		}
	}
}

func TestFromEdgesErrors(t *testing.T) {
	s := scenarioStore(t)
	tests := []struct {
		name  string
		edges []Edge
		code  errors.Code
	}{
		{"two successors", []Edge{{1, 2}, {1, 3}}, errors.ErrCodeIntegrity},
		{"unknown source", []Edge{{99, 1}}, errors.ErrCodeInvalidInput},
		{"unknown target", []Edge{{1, 99}}, errors.ErrCodeInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromEdges(context.Background(), s, 2, tt.edges)
			if !errors.Is(err, tt.code) {
				t.Errorf("error = %v, want %s", err, tt.code)
			}
		})
	}
}

func TestBinaryRoundTrip(t *testing.T) {
	s := scenarioStore(t)
	ix, err := Build(context.Background(), s, 2)
	if err != nil {
		t.Fatal(err)
	}
	data, err := ix.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary() error: %v", err)
	}

	got, err := Unmarshal(data, s, 2)
	if err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if got.N() != 2 || got.EdgeCount() != ix.EdgeCount() {
		t.Errorf("decoded N=%d edges=%d", got.N(), got.EdgeCount())
	}
	for i := range ix.Len() {
		if got.Successor(int32(i)) != ix.Successor(int32(i)) {
			t.Errorf("page %d: successor differs after decode", i)
		}
	}

	if _, err := Unmarshal(data, s, 3); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("wrong N: error = %v", err)
	}

	other := pagestore.NewBuilder()
	other.Add(pagestore.Page{ID: 1})
	otherStore, _ := other.Build()
	if _, err := Unmarshal(data, otherStore, 2); !errors.Is(err, errors.ErrCodeIntegrity) {
		t.Errorf("other store: error = %v, want %s", err, errors.ErrCodeIntegrity)
	}

	if _, err := Unmarshal(data[:len(data)-2], s, 2); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("truncated: error = %v", err)
	}
	if _, err := Unmarshal([]byte("nope"), s, 2); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("bad magic: error = %v", err)
	}
}

func TestEmptyStore(t *testing.T) {
	s, err := pagestore.NewBuilder().Build()
	if err != nil {
		t.Fatal(err)
	}
	ix, err := Build(context.Background(), s, 1)
	if err != nil {
		t.Fatal(err)
	}
	if ix.Len() != 0 || ix.EdgeCount() != 0 {
		t.Errorf("empty store: Len=%d edges=%d", ix.Len(), ix.EdgeCount())
	}
}
