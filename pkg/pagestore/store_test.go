package pagestore

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/matzehuels/nlink/pkg/errors"
)

func buildStore(t *testing.T, pages ...Page) *Store {
	t.Helper()
	b := NewBuilder()
	for _, p := range pages {
		b.Add(p)
	}
	s, err := b.Build()
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	return s
}

func TestBuild(t *testing.T) {
	s := buildStore(t,
		Page{ID: 30, Title: "C", Links: []PageID{10}},
		Page{ID: 10, Title: "A", Links: []PageID{20, 30, 20}},
		Page{ID: 20, Title: "B", Redirect: true},
	)

	if s.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", s.Len())
	}
	if s.LinkCount() != 4 {
		t.Errorf("LinkCount() = %d, want 4", s.LinkCount())
	}

	// Compact indices follow ascending id order.
	for i, want := range []PageID{10, 20, 30} {
		if got := s.ID(int32(i)); got != want {
			t.Errorf("ID(%d) = %d, want %d", i, got, want)
		}
	}

	a, ok := s.Index(10)
	if !ok {
		t.Fatal("Index(10) not found")
	}
	if s.Degree(a) != 3 {
		t.Errorf("Degree(A) = %d, want 3", s.Degree(a))
	}
	if _, ok := s.Index(99); ok {
		t.Error("Index(99) should not be found")
	}

	b, _ := s.Index(20)
	if s.Degree(b) != 0 {
		t.Errorf("Degree(B) = %d, want 0", s.Degree(b))
	}
	if !s.IsRedirect(b) {
		t.Error("B should be a redirect")
	}
}

func TestLinkIsOneBasedAndKeepsDuplicates(t *testing.T) {
	s := buildStore(t,
		Page{ID: 1, Links: []PageID{2, 3, 2}},
		Page{ID: 2},
		Page{ID: 3},
	)
	a, _ := s.Index(1)

	tests := []struct {
		n      int
		want   PageID
		wantOK bool
	}{
		{0, 0, false},
		{1, 2, true},
		{2, 3, true},
		{3, 2, true},
		{4, 0, false},
	}

	for _, tt := range tests {
		got, ok := s.Link(a, tt.n)
		if ok != tt.wantOK {
			t.Errorf("Link(A, %d) ok = %v, want %v", tt.n, ok, tt.wantOK)
			continue
		}
		if ok && s.ID(got) != tt.want {
			t.Errorf("Link(A, %d) = %d, want %d", tt.n, s.ID(got), tt.want)
		}
	}
}

func TestBuildDuplicatePages(t *testing.T) {
	t.Run("identical rows collapse", func(t *testing.T) {
		s := buildStore(t,
			Page{ID: 1, Links: []PageID{2}},
			Page{ID: 1, Links: []PageID{2}},
			Page{ID: 2},
		)
		if s.Len() != 2 {
			t.Errorf("Len() = %d, want 2", s.Len())
		}
	})

	t.Run("conflicting rows are an integrity fault", func(t *testing.T) {
		b := NewBuilder()
		b.Add(Page{ID: 1, Links: []PageID{2}})
		b.Add(Page{ID: 1, Links: []PageID{3}})
		b.Add(Page{ID: 2})
		b.Add(Page{ID: 3})
		_, err := b.Build()
		if !errors.Is(err, errors.ErrCodeIntegrity) {
			t.Errorf("Build() error = %v, want %s", err, errors.ErrCodeIntegrity)
		}
	})
}

func TestBuildDanglingTarget(t *testing.T) {
	b := NewBuilder()
	b.Add(Page{ID: 1, Links: []PageID{42}})
	_, err := b.Build()
	if !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("Build() error = %v, want %s", err, errors.ErrCodeInvalidInput)
	}
}

func TestLookup(t *testing.T) {
	s := buildStore(t,
		Page{ID: 5, Title: "Philosophy"},
		Page{ID: 2, Title: "Philosophy"},
		Page{ID: 3, Title: "Logic"},
	)

	idx, ok := s.Lookup("Philosophy")
	if !ok || s.ID(idx) != 2 {
		t.Errorf("Lookup(Philosophy) = %v, %v; want page 2", idx, ok)
	}
	if _, ok := s.Lookup("philosophy"); ok {
		t.Error("Lookup should be exact")
	}
}

func TestFingerprint(t *testing.T) {
	s1 := buildStore(t, Page{ID: 1, Links: []PageID{2}}, Page{ID: 2, Title: "x"})
	s2 := buildStore(t, Page{ID: 2, Title: "other title"}, Page{ID: 1, Links: []PageID{2}})
	s3 := buildStore(t, Page{ID: 1}, Page{ID: 2, Links: []PageID{1}})

	if s1.Fingerprint() != s2.Fingerprint() {
		t.Error("fingerprint should not depend on insertion order or titles")
	}
	if s1.Fingerprint() == s3.Fingerprint() {
		t.Error("different link structure should change the fingerprint")
	}
	if len(s1.Fingerprint()) != 64 {
		t.Errorf("fingerprint length = %d, want 64", len(s1.Fingerprint()))
	}
}

func TestStats(t *testing.T) {
	s := buildStore(t,
		Page{ID: 1, Links: []PageID{2, 3}},
		Page{ID: 2, Redirect: true, Links: []PageID{3}},
		Page{ID: 3},
	)
	got := s.Stats()
	want := Stats{Pages: 3, Links: 3, MaxDegree: 2, Redirects: 1, Isolated: 1}
	if got != want {
		t.Errorf("Stats() = %+v, want %+v", got, want)
	}
}

func TestReadJSONL(t *testing.T) {
	input := `{"page_id": 1, "title": "A", "link_sequence": [2, 2]}

{"page_id": 2, "title": "B", "namespace": 0, "is_redirect": true}
{"page_id": 3, "title": "C", "link_sequence": []}
`
	s, err := ReadJSONL(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadJSONL() error: %v", err)
	}
	if s.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", s.Len())
	}
	a, _ := s.Index(1)
	if s.Degree(a) != 2 {
		t.Errorf("Degree(A) = %d, want 2", s.Degree(a))
	}
	b, _ := s.Index(2)
	if !s.IsRedirect(b) || s.Degree(b) != 0 {
		t.Error("B should be a degree-zero redirect")
	}
}

func TestReadJSONLErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"malformed", `{"page_id": 1,`},
		{"negative page id", `{"page_id": -1}`},
		{"negative target", `{"page_id": 1, "link_sequence": [-2]}`},
		{"dangling target", `{"page_id": 1, "link_sequence": [7]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadJSONL(strings.NewReader(tt.input))
			if !errors.Is(err, errors.ErrCodeInvalidInput) {
				t.Errorf("ReadJSONL() error = %v, want %s", err, errors.ErrCodeInvalidInput)
			}
		})
	}
}

func TestWriteJSONLRoundTrip(t *testing.T) {
	s := buildStore(t,
		Page{ID: 1, Title: "A", Links: []PageID{3, 2, 3}},
		Page{ID: 2, Title: "B", Namespace: 14, Redirect: true},
		Page{ID: 3, Title: "C", Links: []PageID{1}},
	)

	var buf bytes.Buffer
	if err := WriteJSONL(s, &buf); err != nil {
		t.Fatalf("WriteJSONL() error: %v", err)
	}
	got, err := ReadJSONL(&buf)
	if err != nil {
		t.Fatalf("ReadJSONL() error: %v", err)
	}
	if got.Fingerprint() != s.Fingerprint() {
		t.Error("round trip changed link structure")
	}
	b, _ := got.Index(2)
	if got.Namespace(b) != 14 || !got.IsRedirect(b) || got.Title(b) != "B" {
		t.Errorf("round trip lost row attributes: %+v", got.Page(b))
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	jsonl := filepath.Join(dir, "pages.jsonl")
	if err := os.WriteFile(jsonl, []byte(`{"page_id": 1, "link_sequence": [1]}`+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	doc := filepath.Join(dir, "pages.json")
	if err := os.WriteFile(doc, []byte(`{"pages": [{"page_id": 1, "link_sequence": [1]}]}`), 0o644); err != nil {
		t.Fatal(err)
	}

	for _, path := range []string{jsonl, doc} {
		s, err := Load(path)
		if err != nil {
			t.Fatalf("Load(%s) error: %v", path, err)
		}
		if s.Len() != 1 {
			t.Errorf("Load(%s) Len() = %d, want 1", path, s.Len())
		}
	}

	if _, err := Load(filepath.Join(dir, "missing.jsonl")); !errors.Is(err, errors.ErrCodeNotFound) {
		t.Errorf("Load(missing) error = %v, want %s", err, errors.ErrCodeNotFound)
	}
}
