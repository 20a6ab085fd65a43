package cli

import (
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/matzehuels/nlink/pkg/errors"
	"github.com/matzehuels/nlink/pkg/terminal"
)

// terminalsCommand creates the terminals command.
func (c *CLI) terminalsCommand() *cobra.Command {
	var (
		n     int
		limit int
		kind  string
	)

	cmd := &cobra.Command{
		Use:   "terminals",
		Short: "List the HALT pages and cycles of a rule",
		Example: `  nlink terminals -s pages.jsonl --n 1 --kind cycle
  nlink terminals -s pages.jsonl --n 3 --limit 0`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if kind != "" && kind != "halt" && kind != "cycle" {
				return errors.New(errors.ErrCodeInvalidInput, "--kind must be halt or cycle, got %q", kind)
			}
			ctx := cmd.Context()
			r, err := c.newRunner(ctx)
			if err != nil {
				return err
			}
			defer r.Close()

			spinner := newSpinnerWithContext(ctx, "Finding terminals...")
			spinner.Start()
			ts, err := r.Terminals(ctx, n)
			spinner.Stop()
			if err != nil {
				return err
			}

			var halts, cycles int
			for _, t := range ts {
				if t.IsHalt() {
					halts++
				} else {
					cycles++
				}
			}
			switch kind {
			case "halt":
				ts = slices.DeleteFunc(ts, terminal.Terminal.IsCycle)
			case "cycle":
				ts = slices.DeleteFunc(ts, terminal.Terminal.IsHalt)
			}

			printSuccess("N=%d: %d cycles, %d halting pages", n, cycles, halts)
			shown := ts
			if limit > 0 && len(shown) > limit {
				shown = shown[:limit]
			}
			rows := make([][]string, 0, len(shown))
			for _, t := range shown {
				rows = append(rows, []string{t.Kind().String(), strconv.Itoa(t.Len()), t.Key(), terminal.Describe(t, r.Store)})
			}
			if len(rows) > 0 {
				printTable([]string{"Kind", "Size", "Key", "Pages"}, rows, 1)
			}
			if len(shown) < len(ts) {
				printDetail("%d more (use --limit 0 to list all)", len(ts)-len(shown))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&n, "n", "n", 1, "rule index N")
	cmd.Flags().IntVar(&limit, "limit", 25, "maximum terminals to print (0 = all)")
	cmd.Flags().StringVar(&kind, "kind", "", `only list "halt" or "cycle" terminals`)
	return cmd
}
