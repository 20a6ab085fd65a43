package cli

import (
	"context"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/nlink/pkg/basin"
	"github.com/matzehuels/nlink/pkg/branch"
	"github.com/matzehuels/nlink/pkg/errors"
	"github.com/matzehuels/nlink/pkg/pagestore"
	"github.com/matzehuels/nlink/pkg/pipeline"
	"github.com/matzehuels/nlink/pkg/terminal"
)

// maxRules bounds an N range given on the command line.
const maxRules = 1000

// =============================================================================
// Budget flags
// =============================================================================

// budgetFlags are the traversal budgets shared by basin, branches and
// multiplex. Unset flags fall back to the [engine] config section.
type budgetFlags struct {
	maxDepth    int
	maxNodes    int
	maxDuration time.Duration
}

func (f *budgetFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.maxDepth, "max-depth", 0, "stop after this many layers (0 = unlimited)")
	cmd.Flags().IntVar(&f.maxNodes, "max-nodes", 0, "stop after this many pages (0 = unlimited)")
	cmd.Flags().DurationVar(&f.maxDuration, "max-duration", 0, "stop at the first layer after this much time (0 = unlimited)")
}

func (c *CLI) basinOptions(cmd *cobra.Command, f *budgetFlags) basin.Options {
	e := c.cfg.Engine
	opts := basin.Options{MaxDepth: e.MaxDepth, MaxNodes: e.MaxNodes, MaxDuration: e.MaxDuration}
	if cmd.Flags().Changed("max-depth") {
		opts.MaxDepth = f.maxDepth
	}
	if cmd.Flags().Changed("max-nodes") {
		opts.MaxNodes = f.maxNodes
	}
	if cmd.Flags().Changed("max-duration") {
		opts.MaxDuration = f.maxDuration
	}
	return opts
}

// branchFlags configure the branch statistics.
type branchFlags struct {
	topK  int
	trunk float64
}

func (f *branchFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.topK, "top", pipeline.DefaultTopK, "number of largest branches to report")
	cmd.Flags().Float64Var(&f.trunk, "trunk-threshold", pipeline.DefaultTrunkThreshold, "top-1 share above which a basin is single-trunk")
}

func (c *CLI) branchOptions(cmd *cobra.Command, f *branchFlags) branch.Options {
	opts := branch.Options{TopK: c.cfg.Engine.TopK, TrunkThreshold: c.cfg.Engine.TrunkThreshold}
	if cmd.Flags().Changed("top") {
		opts.TopK = f.topK
	}
	if cmd.Flags().Changed("trunk-threshold") {
		opts.TrunkThreshold = f.trunk
	}
	return opts
}

// publishFlags control artifact output.
type publishFlags struct {
	out     string
	runTag  string
	publish bool
}

func (f *publishFlags) register(cmd *cobra.Command, publishByDefault bool) {
	cmd.Flags().StringVarP(&f.out, "out", "o", "", "output directory for the file sink (default from config)")
	cmd.Flags().StringVar(&f.runTag, "run-tag", "", "tag prefixed to artifact paths")
	cmd.Flags().BoolVar(&f.publish, "publish", publishByDefault, "write the result as an artifact")
}

// =============================================================================
// Argument parsing
// =============================================================================

// parseRules parses "3", "1-5" or "1,2,7" (and mixes like "1-3,8") into a
// sorted, deduplicated list of rule indices.
func parseRules(spec string) ([]int, error) {
	var ns []int
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, isRange := strings.Cut(part, "-")
		a, err := strconv.Atoi(lo)
		if err != nil {
			return nil, errors.New(errors.ErrCodeInvalidRule, "bad rule %q", part)
		}
		b := a
		if isRange {
			if b, err = strconv.Atoi(hi); err != nil || b < a {
				return nil, errors.New(errors.ErrCodeInvalidRule, "bad rule range %q", part)
			}
		}
		if b-a+1 > maxRules || len(ns)+b-a+1 > maxRules {
			return nil, errors.New(errors.ErrCodeInvalidRule, "too many rules (max %d)", maxRules)
		}
		for n := a; n <= b; n++ {
			ns = append(ns, n)
		}
	}
	slices.Sort(ns)
	ns = slices.Compact(ns)
	if err := errors.ValidateRules(ns); err != nil {
		return nil, err
	}
	return ns, nil
}

// parsePage resolves a page argument given as a numeric id or a title.
func parsePage(s *pagestore.Store, arg string) (pagestore.PageID, error) {
	if id, err := strconv.ParseUint(arg, 10, 64); err == nil {
		if _, ok := s.Index(pagestore.PageID(id)); ok {
			return pagestore.PageID(id), nil
		}
	}
	if idx, ok := s.Lookup(arg); ok {
		return s.ID(idx), nil
	}
	return 0, errors.New(errors.ErrCodePageNotFound, "no page with id or title %q", arg)
}

// terminalFlags select a terminal directly or by a page that drains into it.
type terminalFlags struct {
	terminal string
	from     string
}

func (f *terminalFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.terminal, "terminal", "t", "", `terminal key ("halt:12" or "cycle:3,5,9")`)
	cmd.Flags().StringVarP(&f.from, "from", "f", "", "page id or title whose terminal to use")
	cmd.MarkFlagsMutuallyExclusive("terminal", "from")
	cmd.MarkFlagsOneRequired("terminal", "from")
}

func (f *terminalFlags) resolve(ctx context.Context, r *pipeline.Runner, n int) (terminal.Terminal, error) {
	if f.terminal != "" {
		return terminal.Parse(f.terminal)
	}
	start, err := parsePage(r.Store, f.from)
	if err != nil {
		return terminal.Terminal{}, err
	}
	res, err := r.Trace(ctx, n, start)
	if err != nil {
		return terminal.Terminal{}, err
	}
	return res.Terminal, nil
}

// pageTitle returns the title of id, or its number when it has none.
func pageTitle(s *pagestore.Store, id pagestore.PageID) string {
	if idx, ok := s.Index(id); ok && s.Title(idx) != "" {
		return s.Title(idx)
	}
	return strconv.FormatUint(uint64(id), 10)
}
