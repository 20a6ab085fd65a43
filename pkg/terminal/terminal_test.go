package terminal

import (
	"encoding/json"
	"testing"

	"github.com/matzehuels/nlink/pkg/errors"
	"github.com/matzehuels/nlink/pkg/pagestore"
)

func TestCycleIdentityIsContentBased(t *testing.T) {
	a := Cycle([]pagestore.PageID{3, 1, 2})
	b := Cycle([]pagestore.PageID{2, 3, 1})
	c := Cycle([]pagestore.PageID{1, 2, 4})

	if !a.Equal(b) {
		t.Error("same member set in different order should be equal")
	}
	if a.Key() != "cycle:1,2,3" {
		t.Errorf("Key() = %q, want cycle:1,2,3", a.Key())
	}
	if a.Equal(c) {
		t.Error("partially overlapping cycles are distinct terminals")
	}
}

func TestHaltIsNotCycle(t *testing.T) {
	h := Halt(7)
	c := Cycle([]pagestore.PageID{7})

	if h.Equal(c) {
		t.Error("halt and single-member cycle must differ")
	}
	if !h.IsHalt() || h.IsCycle() {
		t.Error("Halt() should report IsHalt")
	}
	if h.Page() != 7 {
		t.Errorf("Page() = %d, want 7", h.Page())
	}
	if h.Key() != "halt:7" {
		t.Errorf("Key() = %q, want halt:7", h.Key())
	}
}

func TestCycleMembersCopy(t *testing.T) {
	c := Cycle([]pagestore.PageID{2, 1, 2})
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2 (duplicates collapse)", c.Len())
	}
	m := c.Members()
	m[0] = 99
	if c.Contains(99) {
		t.Error("Members() should return a copy")
	}
	if !c.Contains(1) || !c.Contains(2) {
		t.Error("Contains should find members")
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		spec    string
		want    string
		wantErr bool
	}{
		{"halt:5", "halt:5", false},
		{"cycle:9,3,5", "cycle:3,5,9", false},
		{" CYCLE:1, 2 ", "cycle:1,2", false},

		{"", "", true},
		{"halt", "", true},
		{"halt:1,2", "", true},
		{"cycle:a,b", "", true},
		{"loop:1", "", true},
		{"halt:-1", "", true},
	}

	for _, tt := range tests {
		got, err := Parse(tt.spec)
		if (err != nil) != tt.wantErr {
			t.Errorf("Parse(%q) error = %v, wantErr %v", tt.spec, err, tt.wantErr)
			continue
		}
		if err != nil {
			if !errors.Is(err, errors.ErrCodeInvalidTerminal) {
				t.Errorf("Parse(%q) code = %v, want %v", tt.spec, errors.GetCode(err), errors.ErrCodeInvalidTerminal)
			}
			continue
		}
		if got.Key() != tt.want {
			t.Errorf("Parse(%q) = %q, want %q", tt.spec, got.Key(), tt.want)
		}
	}
}

func TestJSON(t *testing.T) {
	in := struct {
		T Terminal `json:"terminal"`
	}{Cycle([]pagestore.PageID{4, 2})}

	data, err := json.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"terminal":"cycle:2,4"}` {
		t.Errorf("Marshal = %s", data)
	}

	var out struct {
		T Terminal `json:"terminal"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	if !out.T.Equal(in.T) {
		t.Errorf("Unmarshal = %v, want %v", out.T, in.T)
	}
}

func TestCompare(t *testing.T) {
	if Halt(9).Compare(Cycle([]pagestore.PageID{1})) >= 0 {
		t.Error("halts sort before cycles")
	}
	if Cycle([]pagestore.PageID{1, 2}).Compare(Cycle([]pagestore.PageID{1, 3})) >= 0 {
		t.Error("cycles sort by member set")
	}
	if Halt(3).Compare(Halt(3)) != 0 {
		t.Error("equal terminals compare 0")
	}
}

func TestDescribe(t *testing.T) {
	b := pagestore.NewBuilder()
	b.Add(pagestore.Page{ID: 1, Title: "Philosophy", Links: []pagestore.PageID{2}})
	b.Add(pagestore.Page{ID: 2, Links: []pagestore.PageID{1}})
	s, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}

	got := Describe(Cycle([]pagestore.PageID{1, 2}), s)
	if got != "CYCLE(2) Philosophy, 2" {
		t.Errorf("Describe() = %q", got)
	}
	if got := Describe(Halt(2), nil); got != "HALT 2" {
		t.Errorf("Describe() = %q", got)
	}
}
