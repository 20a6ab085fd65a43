// Package pkg provides the core libraries of nlink, an engine for the basins
// and tunnels of N-link rules over a page link graph.
//
// # Overview
//
// Under rule N every page points at its Nth outgoing link, or at nothing
// when it has fewer than N links. That makes each rule a functional graph:
// every walk ends on a HALT page or enters a cycle. nlink indexes those
// graphs, maps the basin of pages that drains into each terminal, splits
// basins into branches and follows pages across rules. The pkg directory is
// organized into four areas:
//
//  1. Domain logic: [pagestore], [rules], [terminal], [trace], [basin],
//     [branch], [multiplex]
//  2. Orchestration: [pipeline], [jobs]
//  3. Infrastructure: [cache], [artifact], [config], [observability]
//  4. Shared: [errors], [progress], [buildinfo]
//
// # Architecture
//
// The typical data flow:
//
//	Page store (.jsonl / .json)
//	         ↓
//	    [pagestore] package (immutable pages + link arrays)
//	         ↓
//	    [rules] package (successor and predecessor arrays for rule N)
//	         ↓
//	    [trace] / [basin] packages (forward walks, reverse BFS)
//	         ↓
//	    [branch] / [multiplex] packages (concentration, tunneling)
//	         ↓
//	    [artifact] package (JSONL files or MongoDB)
//
// # Quick Start
//
// Map the basin a page drains into under rule 5:
//
//	import (
//	    "context"
//	    "github.com/matzehuels/nlink/pkg/basin"
//	    "github.com/matzehuels/nlink/pkg/pagestore"
//	    "github.com/matzehuels/nlink/pkg/rules"
//	    "github.com/matzehuels/nlink/pkg/trace"
//	)
//
//	// 1. Load the pages
//	s, _ := pagestore.Load("pages.jsonl")
//
//	// 2. Index the rule
//	ix, _ := rules.Build(ctx, s, 5)
//
//	// 3. Find the terminal of a page
//	res, _ := trace.Trace(ix, 12345)
//
//	// 4. Map its basin
//	b, _ := basin.Map(ctx, ix, res.Terminal, basin.Options{MaxNodes: 1_000_000})
//
// # Main Packages
//
// ## Domain Logic
//
// [pagestore] - Immutable page store with dense int32 indices, a CSR link
// array and a content fingerprint. Loads JSON Lines and JSON exports.
//
// [rules] - The functional graph of one rule: successor per page plus the
// CSR predecessor arrays used by reverse traversals. Indices serialize to a
// compact binary form for caching.
//
// [terminal] - HALT and CYCLE terminals. Cycles are identified by their
// member set, so the same cycle found from different entry points is one
// terminal.
//
// [trace] - Forward walks from one page and enumeration of every terminal
// of a rule.
//
// [basin] - Layer-synchronous reverse BFS from a terminal with depth, node
// and time budgets. A truncated basin records why it stopped.
//
// [branch] - Branch forest of a basin: per-branch sizes, top-K ranking,
// concentration (HHI, entropy, Gini) and collapse depth.
//
// [multiplex] - Runs several rules over the same pages, aligns terminals
// across rules and labels pages whose terminal changes (tunnels).
//
// ## Orchestration
//
// [pipeline] - [pipeline.Runner] ties the store, the cache and the engine
// together. Used by the CLI and the job layer so both get the same keys and
// the same cache behavior.
//
// [jobs] - Job specs, an in-process job manager and batch execution with
// artifact publishing.
//
// ## Infrastructure
//
// [cache] - Byte cache for indices, terminal lists and basins. File, Badger,
// Redis and null backends.
//
// [artifact] - Provenance-stamped result rows. Atomic JSONL files or a
// MongoDB sink.
//
// [config] - TOML configuration for budgets, cache and output.
//
// [observability] - Hook interfaces for engine, cache and job events, with a
// Prometheus implementation in observability/prom.
//
// # Testing
//
// Run tests:
//
//	go test ./pkg/...                    # All tests
//	go test ./pkg/basin/...              # Specific package
//	go test -run Example                 # Examples only
//
// [pagestore]: https://pkg.go.dev/github.com/matzehuels/nlink/pkg/pagestore
// [rules]: https://pkg.go.dev/github.com/matzehuels/nlink/pkg/rules
// [terminal]: https://pkg.go.dev/github.com/matzehuels/nlink/pkg/terminal
// [trace]: https://pkg.go.dev/github.com/matzehuels/nlink/pkg/trace
// [basin]: https://pkg.go.dev/github.com/matzehuels/nlink/pkg/basin
// [branch]: https://pkg.go.dev/github.com/matzehuels/nlink/pkg/branch
// [multiplex]: https://pkg.go.dev/github.com/matzehuels/nlink/pkg/multiplex
// [pipeline]: https://pkg.go.dev/github.com/matzehuels/nlink/pkg/pipeline
// [pipeline.Runner]: https://pkg.go.dev/github.com/matzehuels/nlink/pkg/pipeline#Runner
// [jobs]: https://pkg.go.dev/github.com/matzehuels/nlink/pkg/jobs
// [cache]: https://pkg.go.dev/github.com/matzehuels/nlink/pkg/cache
// [artifact]: https://pkg.go.dev/github.com/matzehuels/nlink/pkg/artifact
// [config]: https://pkg.go.dev/github.com/matzehuels/nlink/pkg/config
// [observability]: https://pkg.go.dev/github.com/matzehuels/nlink/pkg/observability
// [errors]: https://pkg.go.dev/github.com/matzehuels/nlink/pkg/errors
// [progress]: https://pkg.go.dev/github.com/matzehuels/nlink/pkg/progress
// [buildinfo]: https://pkg.go.dev/github.com/matzehuels/nlink/pkg/buildinfo
package pkg
