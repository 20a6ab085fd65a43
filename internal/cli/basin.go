package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/nlink/pkg/artifact"
	"github.com/matzehuels/nlink/pkg/basin"
	"github.com/matzehuels/nlink/pkg/errors"
	"github.com/matzehuels/nlink/pkg/pipeline"
	"github.com/matzehuels/nlink/pkg/progress"
	"github.com/matzehuels/nlink/pkg/terminal"
)

// basinCommand creates the basin command.
func (c *CLI) basinCommand() *cobra.Command {
	var (
		n       int
		term    terminalFlags
		budget  budgetFlags
		publish publishFlags
	)

	cmd := &cobra.Command{
		Use:   "basin",
		Short: "Map every page that drains into a terminal",
		Long: `Map the basin of a terminal: every page whose Nth-link walk ends there,
with its distance from the terminal. Budgets cut the search short; the
artifact then says so in its provenance.`,
		Example: `  nlink basin -s pages.jsonl --n 1 --from Philosophy
  nlink basin -s pages.jsonl --n 2 --terminal cycle:12,40 --max-nodes 1000000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := errors.ValidateRunTag(publish.runTag); err != nil {
				return err
			}
			ctx := cmd.Context()
			r, err := c.newRunner(ctx)
			if err != nil {
				return err
			}
			defer r.Close()

			t, err := term.resolve(ctx, r, n)
			if err != nil {
				return err
			}
			opts := c.basinOptions(cmd, &budget)
			started := time.Now()
			br, err := c.mapBasin(cmd, r, n, t, opts)
			if err != nil {
				return err
			}

			printBasin(r, br)
			if publish.publish {
				a := artifact.FromBasin(br.Basin, opts, started)
				a.Provenance.RunTag = publish.runTag
				return c.publish(cmd, publish.out, a)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&n, "n", "n", 1, "rule index N")
	term.register(cmd)
	budget.register(cmd)
	publish.register(cmd, true)
	return cmd
}

// branchesCommand creates the branches command.
func (c *CLI) branchesCommand() *cobra.Command {
	var (
		n       int
		term    terminalFlags
		budget  budgetFlags
		bf      branchFlags
		publish publishFlags
	)

	cmd := &cobra.Command{
		Use:   "branches",
		Short: "Split a basin into tributary branches and measure concentration",
		Long: `Split a basin into the branches entering its terminal through each
depth-1 page, then report how concentrated the basin is: Gini, HHI,
effective branch count, normalized entropy, top-K shares and the depth at
which the largest branch stops dominating.`,
		Example: `  nlink branches -s pages.jsonl --n 1 --from Philosophy --top 20`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := errors.ValidateRunTag(publish.runTag); err != nil {
				return err
			}
			ctx := cmd.Context()
			r, err := c.newRunner(ctx)
			if err != nil {
				return err
			}
			defer r.Close()

			t, err := term.resolve(ctx, r, n)
			if err != nil {
				return err
			}
			bopts := c.basinOptions(cmd, &budget)
			opts := c.branchOptions(cmd, &bf)
			started := time.Now()

			tracker := progress.NewTracker()
			bopts.Progress = tracker
			opts.Progress = tracker
			spinner := newSpinnerWithContext(ctx, fmt.Sprintf("Decomposing basin of %s...", t))
			spinner.Start()
			spinner.Follow("Decomposing", tracker)
			br, res, err := r.Branches(ctx, n, t, bopts, opts)
			spinner.Stop()
			if err != nil {
				return err
			}

			printBasin(r, br)
			printNewline()

			s := r.Store
			rows := make([][]string, 0, opts.TopK)
			for _, b := range res.Top(opts.TopK) {
				rows = append(rows, []string{
					strconv.Itoa(b.Rank),
					pageTitle(s, b.Entry),
					strconv.Itoa(b.Size),
					formatShare(float64(b.Size) / float64(max(res.Summary.Total, 1))),
					strconv.Itoa(b.Depth),
				})
			}
			if len(rows) > 0 {
				printTable([]string{"#", "Entry", "Size", "Share", "Depth"}, rows, 0, 2, 3, 4)
			}

			sum := res.Summary
			printKeyValue("Branches", strconv.Itoa(sum.BranchCount))
			printKeyValue("Gini", fmt.Sprintf("%.4f", sum.Gini))
			printKeyValue("HHI", fmt.Sprintf("%.4f (effective %.2f)", sum.HHI, sum.EffectiveBranches))
			printKeyValue("Entropy", fmt.Sprintf("%.4f", sum.Entropy))
			if len(sum.TopShares) > 0 {
				printKeyValue("Top-1", formatShare(sum.TopShares[0]))
			}
			collapse := "never"
			if sum.CollapseDepth >= 0 {
				collapse = strconv.Itoa(sum.CollapseDepth)
			}
			printKeyValue("Collapse", collapse)
			if sum.SingleTrunk {
				printWarning("single-trunk basin: one branch holds more than %s", formatShare(opts.TrunkThreshold))
			}

			if publish.publish {
				a := artifact.FromBranches(br.Basin, res, bopts, started)
				a.Provenance.RunTag = publish.runTag
				return c.publish(cmd, publish.out, a)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&n, "n", "n", 1, "rule index N")
	term.register(cmd)
	budget.register(cmd)
	bf.register(cmd)
	publish.register(cmd, true)
	return cmd
}

// mapBasin maps a basin behind a spinner that follows layer progress.
func (c *CLI) mapBasin(cmd *cobra.Command, r *pipeline.Runner, n int, t terminal.Terminal, opts basin.Options) (*pipeline.BasinResult, error) {
	tracker := progress.NewTracker()
	opts.Progress = tracker
	spinner := newSpinnerWithContext(cmd.Context(), fmt.Sprintf("Mapping basin of %s...", t))
	spinner.Start()
	spinner.Follow("Mapping basin", tracker)
	br, err := r.Basin(cmd.Context(), n, t, opts)
	spinner.Stop()
	if errors.IsCancelled(err) {
		printWarning("Interrupted while mapping the basin of %s", t)
	}
	return br, err
}

func printBasin(r *pipeline.Runner, br *pipeline.BasinResult) {
	b := br.Basin
	st := b.Stats()
	status := iconFresh
	if br.Stats.ResultHit {
		status = iconCached
	}
	printSuccess("Basin of %s under N=%d (%s)", terminal.Describe(b.Terminal(), r.Store), b.N(), status)
	printKeyValue("Pages", fmt.Sprintf("%d of %d (%s)", b.Size(), r.Store.Len(), formatShare(float64(b.Size())/float64(max(r.Store.Len(), 1)))))
	printKeyValue("Depth", fmt.Sprintf("max %d · mean %.2f · p50 %d · p90 %d · p99 %d", st.Max, st.Mean, st.P50, st.P90, st.P99))
	printKeyValue("Skewness", fmt.Sprintf("%.3f", st.Skewness))
	if b.Truncated {
		printWarning("truncated by %s budget", b.Reason)
	}

	hist := b.Histogram()
	if len(hist) > 1 {
		rows := make([][]string, 0, min(len(hist), 16))
		for d, count := range hist {
			if d >= 15 && d < len(hist)-1 {
				continue
			}
			rows = append(rows, []string{strconv.Itoa(d), strconv.Itoa(count)})
		}
		printTable([]string{"Depth", "Pages"}, rows, 0, 1)
	}
}
