package pagestore

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/matzehuels/nlink/pkg/errors"
)

// maxLineSize bounds one JSONL record. Hub pages carry tens of thousands of
// links, so the default bufio limit is too small.
const maxLineSize = 64 << 20

// record is the serialized page row. Ids are decoded as signed integers so
// that negative ids are reported as input errors instead of decode noise.
type record struct {
	PageID       int64   `json:"page_id"`
	Title        string  `json:"title,omitempty"`
	Namespace    int     `json:"namespace"`
	IsRedirect   bool    `json:"is_redirect,omitempty"`
	LinkSequence []int64 `json:"link_sequence"`
}

type document struct {
	Pages []record `json:"pages"`
}

func (r record) page() (Page, error) {
	if r.PageID < 0 {
		return Page{}, errors.New(errors.ErrCodeInvalidInput, "negative page id %d", r.PageID)
	}
	p := Page{
		ID:        PageID(r.PageID),
		Title:     r.Title,
		Namespace: r.Namespace,
		Redirect:  r.IsRedirect,
	}
	if len(r.LinkSequence) > 0 {
		p.Links = make([]PageID, len(r.LinkSequence))
		for i, t := range r.LinkSequence {
			if t < 0 {
				return Page{}, errors.New(errors.ErrCodeInvalidInput,
					"page %d: negative link target %d at position %d", r.PageID, t, i+1)
			}
			p.Links[i] = PageID(t)
		}
	}
	return p, nil
}

// ReadJSONL decodes one page object per line from r. Blank lines are skipped.
//
// Any malformed line, negative id or dangling link target fails the whole
// read; no partial store is returned. ReadJSONL does not close r.
func ReadJSONL(r io.Reader) (*Store, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 1<<20), maxLineSize)

	b := NewBuilder()
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var rec record
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "line %d", line)
		}
		p, err := rec.page()
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		b.Add(p)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "read pages")
	}
	return b.Build()
}

// ReadJSON decodes a {"pages": [...]} document from r.
// ReadJSON does not close r.
func ReadJSON(r io.Reader) (*Store, error) {
	var doc document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "decode")
	}
	b := NewBuilder(len(doc.Pages))
	for i, rec := range doc.Pages {
		p, err := rec.page()
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		b.Add(p)
	}
	return b.Build()
}

// Load reads a store from path. Files ending in .jsonl or .ndjson are read
// with [ReadJSONL]; everything else with [ReadJSON].
func Load(path string) (*Store, error) {
	if err := errors.ValidatePath(path); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrCodeNotFound, err, "open %s", path)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".ndjson":
		return ReadJSONL(f)
	default:
		return ReadJSON(f)
	}
}

// WriteJSONL encodes every page of s as one JSON object per line, in page id
// order. The output can be re-read with [ReadJSONL].
func WriteJSONL(s *Store, w io.Writer) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for i := 0; i < s.Len(); i++ {
		p := s.Page(int32(i))
		rec := record{
			PageID:       int64(p.ID),
			Title:        p.Title,
			Namespace:    p.Namespace,
			IsRedirect:   p.Redirect,
			LinkSequence: make([]int64, len(p.Links)),
		}
		for j, t := range p.Links {
			rec.LinkSequence[j] = int64(t)
		}
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("encode page %d: %w", p.ID, err)
		}
	}
	return bw.Flush()
}
