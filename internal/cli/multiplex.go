package cli

import (
	"cmp"
	"fmt"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/matzehuels/nlink/pkg/artifact"
	"github.com/matzehuels/nlink/pkg/errors"
	"github.com/matzehuels/nlink/pkg/multiplex"
	"github.com/matzehuels/nlink/pkg/progress"
)

// multiplexCommand creates the multiplex command.
func (c *CLI) multiplexCommand() *cobra.Command {
	var (
		rules   string
		budget  budgetFlags
		top     int
		publish publishFlags
	)

	cmd := &cobra.Command{
		Use:   "multiplex",
		Short: "Track how pages change terminal across a range of N",
		Long: `Assign every page its terminal under each rule in the range, align
terminals across rules by their exact member set, and report the pages that
tunnel: pages whose terminal changes between adjacent rules.`,
		Example: `  nlink multiplex -s pages.jsonl --n 1-10
  nlink multiplex -s pages.jsonl --n 1,2,5 --max-nodes 2000000 --run-tag sweep`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ns, err := parseRules(rules)
			if err != nil {
				return err
			}
			if err := errors.ValidateRunTag(publish.runTag); err != nil {
				return err
			}
			ctx := cmd.Context()
			r, err := c.newRunner(ctx)
			if err != nil {
				return err
			}
			defer r.Close()

			bopts := c.basinOptions(cmd, &budget)
			bar := newPassBar(len(ns))
			opts := multiplex.Options{
				Basin: bopts,
				Progress: progress.Func(func(u progress.Update) {
					bar.Describe(u.Detail)
					_ = bar.Set64(u.Done)
				}),
			}
			started := time.Now()
			res, err := r.Multiplex(ctx, ns, opts)
			_ = bar.Finish()
			fmt.Fprintln(os.Stderr)
			if err != nil {
				return err
			}

			printMultiplex(res, top)
			if publish.publish {
				fp := r.Store.Fingerprint()
				arts := []*artifact.Artifact{
					artifact.FromTunnels(res, bopts, fp, started),
					artifact.FromAssignments(res, bopts, fp, started),
				}
				for _, a := range arts {
					a.Provenance.RunTag = publish.runTag
				}
				return c.publish(cmd, publish.out, arts...)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&rules, "n", "n", "1-5", `rule indices ("1-10" or "1,3,5")`)
	cmd.Flags().IntVar(&top, "top", 10, "number of most active tunnel pages to print")
	budget.register(cmd)
	publish.register(cmd, true)
	return cmd
}

// newPassBar creates the per-pass progress bar on stderr.
func newPassBar(passes int) *progressbar.ProgressBar {
	return progressbar.NewOptions(passes,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionSetDescription("multiplex"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

func printMultiplex(res *multiplex.Result, top int) {
	rows := make([][]string, 0, len(res.Passes))
	for _, p := range res.Passes {
		rows = append(rows, []string{
			strconv.Itoa(p.N),
			strconv.Itoa(p.Terminals),
			strconv.Itoa(p.Cycles),
			strconv.Itoa(p.Halts),
			strconv.Itoa(p.Tunnels),
			strconv.Itoa(p.Truncated),
			p.Elapsed.Round(time.Millisecond).String(),
		})
	}
	printTable([]string{"N", "Terminals", "Cycles", "Halts", "Tunnels in", "Truncated", "Time"}, rows, 0, 1, 2, 3, 4, 5)

	counts := map[multiplex.Mechanism]int{}
	for _, tn := range res.Tunnels {
		counts[tn.Mechanism]++
	}
	printSuccess("%d tunnel pages, %d transitions", len(res.Tunnels), len(res.Transitions))
	for _, m := range []multiplex.Mechanism{multiplex.DegreeShift, multiplex.Indirect, multiplex.Unclassified} {
		printKeyValue(string(m), strconv.Itoa(counts[m]))
	}
	if res.Truncated {
		printWarning("some basins were truncated; their unreached pages are unassigned")
	}

	if top <= 0 || len(res.Tunnels) == 0 {
		return
	}
	busiest := slices.Clone(res.Tunnels)
	slices.SortStableFunc(busiest, func(a, b multiplex.Tunnel) int {
		return cmp.Compare(b.Transitions, a.Transitions)
	})
	busiest = busiest[:min(top, len(busiest))]
	trows := make([][]string, 0, len(busiest))
	for _, tn := range busiest {
		trows = append(trows, []string{
			strconv.FormatUint(uint64(tn.Page), 10),
			string(tn.Mechanism),
			strconv.Itoa(tn.Transitions),
			fmt.Sprintf("%d→%d", tn.FromN, tn.ToN),
		})
	}
	printNewline()
	printTable([]string{"Page", "Mechanism", "Transitions", "Range"}, trows, 0, 2)
}
