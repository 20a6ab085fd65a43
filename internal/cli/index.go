package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// indexCommand creates the index command.
func (c *CLI) indexCommand() *cobra.Command {
	var rules string

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build and cache rule indices",
		Long: `Build the successor and predecessor index of each rule N and store it in
the cache, so later commands start without rebuilding it.`,
		Example: `  nlink index -s pages.jsonl --n 1-5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ns, err := parseRules(rules)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			r, err := c.newRunner(ctx)
			if err != nil {
				return err
			}
			defer r.Close()

			rows := make([][]string, 0, len(ns))
			for _, n := range ns {
				spinner := newSpinnerWithContext(ctx, fmt.Sprintf("Building index N=%d...", n))
				spinner.Start()
				ix, hit, err := r.IndexWithCacheInfo(ctx, n)
				spinner.Stop()
				if err != nil {
					return err
				}
				printInfo("N=%d", n)
				printStats(ix.Len(), ix.EdgeCount(), hit)

				status := iconFresh
				if hit {
					status = iconCached
				}
				rows = append(rows, []string{
					strconv.Itoa(n),
					strconv.Itoa(ix.Len()),
					strconv.Itoa(ix.EdgeCount()),
					strconv.Itoa(ix.HaltCount()),
					status,
				})
				r.Forget(n)
			}
			printNewline()
			printTable([]string{"N", "Pages", "Edges", "Halts", "Index"}, rows, 0, 1, 2, 3)
			return nil
		},
	}

	cmd.Flags().StringVarP(&rules, "n", "n", "1", `rule indices ("2", "1-10" or "1,3,5")`)
	return cmd
}
