// Package pipeline runs the nlink engines against one page store with
// caching.
//
// The CLI and the job manager both go through a [Runner] so indices and
// basins are built, cached and reported the same way everywhere. A Runner
// owns:
//
//   - the page store every operation reads;
//   - an in-process memo of built rule indices, keyed by N;
//   - an external [cache.Cache] for encoded indices, terminal lists and
//     basins, keyed by the store fingerprint.
//
// # Usage
//
//	runner := pipeline.NewRunner(store, cache, nil, logger)
//	defer runner.Close()
//
//	res, err := runner.Trace(ctx, 2, 12345)
//	b, err := runner.Basin(ctx, 2, res.Terminal, basin.Options{MaxNodes: 1e6})
//	b, br, err := runner.Branches(ctx, 2, res.Terminal, basin.Options{}, branch.Options{})
//	mx, err := runner.Multiplex(ctx, []int{1, 2, 3}, multiplex.Options{})
//
// Engine options are validated with their own ValidateAndSetDefaults before
// any work starts.
package pipeline

import (
	"time"

	"github.com/matzehuels/nlink/pkg/basin"
	"github.com/matzehuels/nlink/pkg/branch"
)

// =============================================================================
// Default Values - Single Source of Truth for CLI and Jobs
// =============================================================================

const (
	// DefaultTopK is how many largest branches are reported.
	DefaultTopK = branch.DefaultTopK

	// DefaultTrunkThreshold is the top-1 share above which a basin is
	// single-trunk.
	DefaultTrunkThreshold = branch.DefaultTrunkThreshold

	// DefaultMaxIndices bounds the in-process index memo.
	DefaultMaxIndices = 4
)

// Stats reports timing and cache use of one operation.
type Stats struct {
	IndexHit  bool          `json:"index_hit"`
	ResultHit bool          `json:"result_hit"`
	Elapsed   time.Duration `json:"elapsed"`
}

// BasinResult bundles a basin with its stats.
type BasinResult struct {
	Basin *basin.Basin
	Stats Stats
}
