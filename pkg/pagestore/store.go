package pagestore

import (
	"slices"
	"sync"
)

// PageID is the identifier of a page as assigned by the upstream dump.
type PageID uint64

// Page is one row of the page table.
//
// Links is the ordered link sequence; it may be empty and may contain the
// same target more than once.
type Page struct {
	ID        PageID
	Title     string
	Namespace int
	Redirect  bool
	Links     []PageID
}

// Degree returns the number of outgoing links of the page.
func (p Page) Degree() int { return len(p.Links) }

// Stats summarizes a store.
type Stats struct {
	Pages     int `json:"pages"`
	Links     int `json:"links"`
	MaxDegree int `json:"max_degree"`
	Redirects int `json:"redirects"`
	Isolated  int `json:"isolated"` // pages with no outgoing links
}

// Store is an immutable columnar page table.
//
// The zero value is an empty store. Use [Builder] or a reader to create one.
// Store is safe for concurrent use.
type Store struct {
	ids        []PageID // ascending; position = compact index
	titles     []string
	namespaces []int32
	redirects  []bool
	linkOff    []int64 // len(ids)+1 offsets into links
	links      []int32 // compact indices of link targets

	fingerprint string

	titleOnce  sync.Once
	titleIndex map[string]int32
}

// Len returns the number of pages.
func (s *Store) Len() int { return len(s.ids) }

// LinkCount returns the total number of links across all pages.
func (s *Store) LinkCount() int { return len(s.links) }

// ID returns the page id at compact index idx.
func (s *Store) ID(idx int32) PageID { return s.ids[idx] }

// Index returns the compact index of page id, or false if the page is absent.
func (s *Store) Index(id PageID) (int32, bool) {
	i, ok := slices.BinarySearch(s.ids, id)
	if !ok {
		return -1, false
	}
	return int32(i), true
}

// Title returns the title of the page at idx.
func (s *Store) Title(idx int32) string { return s.titles[idx] }

// Namespace returns the namespace of the page at idx.
func (s *Store) Namespace(idx int32) int { return int(s.namespaces[idx]) }

// IsRedirect reports whether the page at idx is a redirect.
func (s *Store) IsRedirect(idx int32) bool { return s.redirects[idx] }

// Degree returns the out-degree of the page at idx.
func (s *Store) Degree(idx int32) int {
	return int(s.linkOff[idx+1] - s.linkOff[idx])
}

// Links returns the link targets of the page at idx as compact indices.
// The returned slice is a read-only view into the store.
func (s *Store) Links(idx int32) []int32 {
	return s.links[s.linkOff[idx]:s.linkOff[idx+1]]
}

// Link returns the nth link (1-based) of the page at idx.
// It returns false if the page has fewer than n links or n < 1.
func (s *Store) Link(idx int32, n int) (int32, bool) {
	if n < 1 || n > s.Degree(idx) {
		return -1, false
	}
	return s.links[s.linkOff[idx]+int64(n-1)], true
}

// Page materializes the row at idx. Links are converted back to page ids,
// so this allocates; engines use [Store.Links] instead.
func (s *Store) Page(idx int32) Page {
	raw := s.Links(idx)
	links := make([]PageID, len(raw))
	for i, t := range raw {
		links[i] = s.ids[t]
	}
	return Page{
		ID:        s.ids[idx],
		Title:     s.titles[idx],
		Namespace: int(s.namespaces[idx]),
		Redirect:  s.redirects[idx],
		Links:     links,
	}
}

// Lookup returns the index of the first page (by id) with exactly this title.
// Titles are matched verbatim; normalization happens upstream.
func (s *Store) Lookup(title string) (int32, bool) {
	s.titleOnce.Do(func() {
		s.titleIndex = make(map[string]int32, len(s.titles))
		for i, t := range s.titles {
			if t == "" {
				continue
			}
			if _, dup := s.titleIndex[t]; !dup {
				s.titleIndex[t] = int32(i)
			}
		}
	})
	idx, ok := s.titleIndex[title]
	return idx, ok
}

// Fingerprint returns a content hash of ids and link sequences. Two stores
// with the same pages and links have the same fingerprint regardless of how
// they were loaded, which makes it usable in cache keys.
func (s *Store) Fingerprint() string { return s.fingerprint }

// Stats computes summary counts over the store.
func (s *Store) Stats() Stats {
	st := Stats{Pages: len(s.ids), Links: len(s.links)}
	for i := range s.ids {
		d := s.Degree(int32(i))
		if d > st.MaxDegree {
			st.MaxDegree = d
		}
		if d == 0 {
			st.Isolated++
		}
		if s.redirects[i] {
			st.Redirects++
		}
	}
	return st
}
