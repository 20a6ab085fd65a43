// Package branch decomposes a basin into its tributaries and measures how
// concentrated basin mass is among them.
//
// The basin of a terminal minus the terminal members is a forest whose roots
// are the depth-1 entry pages: every other page reaches the terminal through
// exactly one of them. [Analyze] re-walks the reverse lookup from each entry,
// restricted to the mapped basin, and claims every page it reaches for that
// entry. A page claimed twice means the index is not a function and is
// reported as an integrity error.
//
// Concentration is summarized with the Gini coefficient, the
// Herfindahl-Hirschman index, normalized Shannon entropy and cumulative top-K
// shares, plus the dominance collapse depth: the smallest depth at which the
// largest branch holds less than half of the pages discovered up to that
// depth.
package branch

import (
	"cmp"
	"context"
	"math"
	"slices"

	"github.com/matzehuels/nlink/pkg/basin"
	"github.com/matzehuels/nlink/pkg/errors"
	"github.com/matzehuels/nlink/pkg/pagestore"
	"github.com/matzehuels/nlink/pkg/progress"
	"github.com/matzehuels/nlink/pkg/terminal"
)

// Defaults for Options.
const (
	DefaultTopK           = 10
	DefaultTrunkThreshold = 0.95
)

// Options configures the analysis.
type Options struct {
	// TopK is how many cumulative top shares to report. Default 10.
	TopK int
	// TrunkThreshold is the top-1 share above which a basin is single-trunk.
	// Default 0.95.
	TrunkThreshold float64
	// Progress receives one update per analyzed entry batch. Nil disables it.
	Progress progress.Reporter

	validated bool
}

// ValidateAndSetDefaults fills in defaults and validates ranges.
func (o *Options) ValidateAndSetDefaults() error {
	if o.validated {
		return nil
	}
	if o.TopK < 0 {
		return errors.New(errors.ErrCodeInvalidInput, "top-k must be >= 0, got %d", o.TopK)
	}
	if o.TopK == 0 {
		o.TopK = DefaultTopK
	}
	if o.TrunkThreshold == 0 {
		o.TrunkThreshold = DefaultTrunkThreshold
	}
	if err := errors.ValidateThreshold("trunk threshold", o.TrunkThreshold); err != nil {
		return err
	}
	o.Progress = progress.OrNop(o.Progress)
	o.validated = true
	return nil
}

// Branch is one tributary of a basin.
type Branch struct {
	Entry pagestore.PageID `json:"entry_page_id"`
	Size  int              `json:"size"`
	Rank  int              `json:"rank"`
	// Depth is the deepest basin layer the branch reaches.
	Depth int `json:"depth"`
}

// Summary holds the concentration statistics of a branch decomposition.
type Summary struct {
	BranchCount       int       `json:"branch_count"`
	Total             int       `json:"total"`
	Gini              float64   `json:"gini"`
	HHI               float64   `json:"hhi"`
	EffectiveBranches float64   `json:"effective_branches"`
	Entropy           float64   `json:"entropy"`
	TopShares         []float64 `json:"top_shares"`
	SingleTrunk       bool      `json:"single_trunk"`
	CollapseDepth     int       `json:"collapse_depth"`
	Truncated         bool      `json:"truncated"`
}

// Result is the branch decomposition of one basin.
type Result struct {
	N         int               `json:"n"`
	Terminal  terminal.Terminal `json:"terminal"`
	BasinSize int               `json:"basin_size"`
	// Branches are ordered by size descending, then entry id ascending.
	Branches []Branch `json:"branches"`
	Summary  Summary  `json:"summary"`
}

// Top returns up to k largest branches.
func (r *Result) Top(k int) []Branch {
	return r.Branches[:min(k, len(r.Branches))]
}

// progressEvery is how many entries are walked between progress updates.
const progressEvery = 1024

// Analyze decomposes b into branches and computes their statistics.
//
// Branch sizes always sum to b.Size() minus the number of terminal members.
// When b is truncated the decomposition covers the mapped part only and
// Summary.Truncated is set.
func Analyze(ctx context.Context, b *basin.Basin, opts Options) (*Result, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	ix := b.Index()
	s := ix.Store()
	members := b.Members()

	const memberMark = -1
	owner := make([]int32, ix.Len()) // 0 = unclaimed, k+1 = branch k
	for _, m := range members {
		owner[m] = memberMark
	}

	var entries []int32
	for _, m := range members {
		for _, p := range ix.Predecessors(m) {
			if b.Contains(p) && owner[p] != memberMark {
				entries = append(entries, p)
			}
		}
	}
	slices.SortFunc(entries, func(x, y int32) int { return cmp.Compare(s.ID(x), s.ID(y)) })

	sizes := make([]int, len(entries))
	var stack []int32
	for k, e := range entries {
		if k%progressEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, errors.Cancelled(err, "branch analysis")
			}
			opts.Progress.Report(progress.Update{
				Stage: progress.StageBranch,
				Done:  int64(k),
				Total: int64(len(entries)),
			})
		}

		stack = append(stack[:0], e)
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if owner[cur] != 0 {
				return nil, errors.New(errors.ErrCodeIntegrity,
					"page %d claimed by two branches (entries %d and %d) under N=%d",
					s.ID(cur), s.ID(entries[ownerBranch(owner[cur])]), s.ID(e), ix.N())
			}
			owner[cur] = int32(k + 1)
			sizes[k]++
			for _, p := range ix.Predecessors(cur) {
				if b.Contains(p) {
					stack = append(stack, p)
				}
			}
		}
	}

	claimed := 0
	for _, sz := range sizes {
		claimed += sz
	}
	if want := b.Size() - len(members); claimed != want {
		return nil, errors.New(errors.ErrCodeIntegrity,
			"branches cover %d pages, basin has %d outside the terminal", claimed, want)
	}

	depths, collapse := layerScan(b, owner, len(entries))

	res := &Result{
		N:         b.N(),
		Terminal:  b.Terminal(),
		BasinSize: b.Size(),
		Branches:  make([]Branch, len(entries)),
	}
	for k, e := range entries {
		res.Branches[k] = Branch{Entry: s.ID(e), Size: sizes[k], Depth: depths[k]}
	}
	slices.SortStableFunc(res.Branches, func(x, y Branch) int {
		if c := cmp.Compare(y.Size, x.Size); c != 0 {
			return c
		}
		return cmp.Compare(x.Entry, y.Entry)
	})
	for i := range res.Branches {
		res.Branches[i].Rank = i + 1
	}

	res.Summary = Summarize(sortedSizes(res.Branches), opts.TopK, opts.TrunkThreshold)
	res.Summary.CollapseDepth = collapse
	res.Summary.Truncated = b.Truncated

	opts.Progress.Report(progress.Update{
		Stage: progress.StageBranch,
		Done:  int64(len(entries)),
		Total: int64(len(entries)),
	})
	return res, nil
}

func ownerBranch(o int32) int { return int(o) - 1 }

// layerScan walks the basin layers once. It returns each branch's deepest
// layer and the dominance collapse depth: the smallest depth d >= 1 at which
// the largest branch's share of the pages at depths 1..d is below one half,
// or -1. Three or more entries collapse at depth 1.
func layerScan(b *basin.Basin, owner []int32, branches int) ([]int, int) {
	depths := make([]int, branches)
	cum := make([]int, branches)
	largest, total := 0, 0
	collapse := -1

	for d := 1; d <= b.MaxDepth(); d++ {
		for _, idx := range b.Layer(d) {
			k := ownerBranch(owner[idx])
			depths[k] = d
			cum[k]++
			largest = max(largest, cum[k])
		}
		total += len(b.Layer(d))
		if collapse < 0 && 2*largest < total {
			collapse = d
		}
	}
	return depths, collapse
}

func sortedSizes(bs []Branch) []int {
	sizes := make([]int, len(bs))
	for i, br := range bs {
		sizes[i] = br.Size
	}
	return sizes
}

// Summarize computes concentration statistics over branch sizes given in
// descending order. CollapseDepth is left at -1; it needs depth information.
//
// With no branches (or no mass) every metric is 0.
func Summarize(desc []int, topK int, trunkThreshold float64) Summary {
	sum := Summary{BranchCount: len(desc), CollapseDepth: -1}
	for _, v := range desc {
		sum.Total += v
	}
	if sum.Total == 0 {
		return sum
	}
	total := float64(sum.Total)
	k := len(desc)

	var entropy, weighted float64
	for i, v := range desc {
		share := float64(v) / total
		sum.HHI += share * share
		if share > 0 {
			entropy -= share * math.Log(share)
		}
		// Ascending rank of desc[i] is k-i.
		weighted += float64(k-i) * float64(v)
	}
	sum.EffectiveBranches = 1 / sum.HHI
	if k > 1 {
		sum.Entropy = clamp01(entropy / math.Log(float64(k)))
	}
	sum.Gini = clamp01(2*weighted/(float64(k)*total) - float64(k+1)/float64(k))

	n := min(topK, k)
	sum.TopShares = make([]float64, n)
	acc := 0
	for i := range n {
		acc += desc[i]
		sum.TopShares[i] = float64(acc) / total
	}
	sum.SingleTrunk = float64(desc[0])/total > trunkThreshold
	return sum
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
