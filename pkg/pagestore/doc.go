// Package pagestore provides the immutable, columnar page table that every
// N-link analysis runs against.
//
// A [Store] holds one point-in-time snapshot of the page graph: for each page
// its id, title, namespace, redirect flag and the ordered sequence of pages it
// links to. Link order and repetition are both significant: the Nth link of a
// page is its successor under rule N, and a page that links to the same target
// twice has two positions that may be selected by different rules.
//
// # Compact Indices
//
// Pages are addressed internally by a dense int32 index in ascending page id
// order. Link targets are stored as compact indices in one contiguous array
// (compressed sparse rows), so a store with tens of millions of pages costs a
// handful of flat slices rather than one allocation per page or per link.
// Use [Store.Index] and [Store.ID] to convert between page ids and indices.
//
// # Building
//
// Stores are built once with a [Builder] (or one of the readers) and never
// mutated afterwards, so a store is safe for concurrent readers without
// locking:
//
//	b := pagestore.NewBuilder()
//	b.Add(pagestore.Page{ID: 1, Title: "Philosophy", Links: []pagestore.PageID{2, 3}})
//	b.Add(pagestore.Page{ID: 2, Title: "Science"})
//	b.Add(pagestore.Page{ID: 3, Title: "Knowledge", Links: []pagestore.PageID{1}})
//	s, err := b.Build()
//
// Build fails with an input error when a link target is not in the store,
// and with an integrity error when the same page id appears twice with
// different link sequences.
//
// # File Formats
//
// [ReadJSONL] reads one page per line:
//
//	{"page_id": 1, "title": "Philosophy", "namespace": 0, "is_redirect": false, "link_sequence": [2, 3]}
//
// [ReadJSON] reads a single document of the form {"pages": [...]} with the
// same page objects. [Load] picks the reader from the file extension.
package pagestore
