// Package rules builds the per-N successor and predecessor lookup over a page
// store.
//
// Under rule N every page with at least N links has exactly one outgoing edge,
// to its Nth link; pages with fewer links halt. The [Index] stores that
// partial function as dense arrays keyed by the store's compact page index:
//
//	succ[i]                    successor of page i, or -1 for HALT
//	preds[predOff[i]:predOff[i+1]]  pages whose successor is i
//
// Building an index is one linear pass over the store for the forward array,
// then a counting pass and a fill pass for the reverse CSR arrays. Nothing is
// allocated per edge, which keeps construction practical for stores with tens
// of millions of pages.
//
// An Index is immutable once built and safe for concurrent readers. Indices
// are expensive enough that callers cache them: [Index.MarshalBinary] and
// [Unmarshal] provide a compact encoding tied to the store fingerprint and N.
package rules
