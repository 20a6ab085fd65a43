// Package basin maps the attraction basin of one terminal under one rule.
//
// The basin of a terminal T is every page whose forward walk ends at T. Each
// page carries a depth: the number of steps from the page to the first
// terminal member on its path. Terminal members have depth 0.
//
// # Algorithm
//
// [Map] runs a layer-synchronous breadth-first search over the reverse lookup
// of a [rules.Index]. Layer d+1 is discovered completely from layer d before
// any page of layer d+1 is expanded. Two buffers enforce that barrier: the
// engine only ever reads from frontier and only ever writes to next, and the
// two are swapped once the layer is drained. Within a functional graph a
// page has exactly one forward path, so the first layer that reaches a page
// is its true depth.
//
// There is no recursion: basins in real link graphs exceed a million pages
// and a hundred layers.
//
// # Budgets
//
// Basins are the dominant memory consumer, so [Options] carries optional
// depth, node and wall-clock budgets. Exceeding one stops the search and
// marks the result [Basin.Truncated] with a [Reason]; it is never an error.
// Every page in a truncated basin still has its correct depth. Cancellation
// of the context is checked once per layer and returns a CANCELLED error
// with no result.
//
// Mapping every basin of a rule allocates a store-sized visited set per
// basin unless the caller passes a shared [Scratch] in [Options].
package basin
