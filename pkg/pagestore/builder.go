package pagestore

import (
	"cmp"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"slices"

	"github.com/matzehuels/nlink/pkg/errors"
)

// Builder accumulates pages and produces an immutable [Store].
//
// The zero value is ready to use. A Builder is not safe for concurrent use.
type Builder struct {
	pages []Page
	links int
}

// NewBuilder creates an empty builder. sizeHint pre-allocates room for that
// many pages and may be zero.
func NewBuilder(sizeHint ...int) *Builder {
	b := &Builder{}
	if len(sizeHint) > 0 && sizeHint[0] > 0 {
		b.pages = make([]Page, 0, sizeHint[0])
	}
	return b
}

// Add appends a page. Validation happens in Build.
func (b *Builder) Add(p Page) {
	b.pages = append(b.pages, p)
	b.links += len(p.Links)
}

// Len returns the number of pages added so far, duplicates included.
func (b *Builder) Len() int { return len(b.pages) }

// Build validates the accumulated pages and returns the store.
//
// Build returns:
//   - ErrCodeIntegrity if one page id was added twice with different link
//     sequences (it would have two outgoing edges under some rule);
//   - ErrCodeInvalidInput if a link target is not a page of the store, or if
//     the store exceeds the int32 index space.
//
// Exact duplicate rows are collapsed. The builder can be discarded afterwards.
func (b *Builder) Build() (*Store, error) {
	pages := b.pages
	slices.SortStableFunc(pages, func(x, y Page) int { return cmp.Compare(x.ID, y.ID) })

	// Collapse identical duplicates, reject conflicting ones.
	out := pages[:0]
	for _, p := range pages {
		if n := len(out); n > 0 && out[n-1].ID == p.ID {
			if !slices.Equal(out[n-1].Links, p.Links) {
				return nil, errors.New(errors.ErrCodeIntegrity,
					"page %d appears twice with different link sequences", p.ID)
			}
			continue
		}
		out = append(out, p)
	}
	pages = out

	if len(pages) > math.MaxInt32 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "store too large: %d pages", len(pages))
	}

	s := &Store{
		ids:        make([]PageID, len(pages)),
		titles:     make([]string, len(pages)),
		namespaces: make([]int32, len(pages)),
		redirects:  make([]bool, len(pages)),
		linkOff:    make([]int64, len(pages)+1),
		links:      make([]int32, 0, b.links),
	}
	for i, p := range pages {
		s.ids[i] = p.ID
		s.titles[i] = p.Title
		s.namespaces[i] = int32(p.Namespace)
		s.redirects[i] = p.Redirect
	}

	h := sha256.New()
	var buf [8]byte
	for i, p := range pages {
		binary.LittleEndian.PutUint64(buf[:], uint64(p.ID))
		h.Write(buf[:])
		binary.LittleEndian.PutUint64(buf[:], uint64(len(p.Links)))
		h.Write(buf[:])
		for _, target := range p.Links {
			idx, ok := s.Index(target)
			if !ok {
				return nil, errors.New(errors.ErrCodeInvalidInput,
					"page %d links to unknown page %d", p.ID, target)
			}
			s.links = append(s.links, idx)
			binary.LittleEndian.PutUint64(buf[:], uint64(target))
			h.Write(buf[:])
		}
		s.linkOff[i+1] = int64(len(s.links))
	}
	s.fingerprint = hex.EncodeToString(h.Sum(nil))

	b.pages = nil
	b.links = 0
	return s, nil
}
