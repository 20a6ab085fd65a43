package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/nlink/pkg/artifact"
	"github.com/matzehuels/nlink/pkg/errors"
	"github.com/matzehuels/nlink/pkg/terminal"
)

// traceCommand creates the trace command.
func (c *CLI) traceCommand() *cobra.Command {
	var (
		n       int
		full    bool
		publish publishFlags
	)

	cmd := &cobra.Command{
		Use:   "trace <page>",
		Short: "Follow the Nth link from a page to its terminal",
		Long: `Follow the Nth outgoing link from a page until the walk halts on a page
with fewer than N links or closes a cycle. The page is given by id or by
exact title.`,
		Example: `  nlink trace -s pages.jsonl --n 1 "Philosophy"
  nlink trace -s pages.jsonl --n 2 12345 --publish`,
		Args: cobra.ExactArgs(1),
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

			start, err := parsePage(r.Store, args[0])
			if err != nil {
				return err
			}
			started := time.Now()
			res, err := r.Trace(ctx, n, start)
			if err != nil {
				return err
			}

			s := r.Store
			titles := make([]string, len(res.Path))
			for i, id := range res.Path {
				idx, _ := s.Index(id)
				titles[i] = s.Title(idx)
			}
			if !full {
				titles = []string{truncateList(titles, 12)}
			}

			printKeyValue("Start", fmt.Sprintf("%s (%d)", pageTitle(s, start), start))
			printKeyValue("Rule", fmt.Sprintf("N=%d", n))
			printKeyValue("Terminal", terminal.Describe(res.Terminal, s))
			printKeyValue("Kind", res.Kind().String())
			printKeyValue("Steps", fmt.Sprint(res.Steps))
			printNewline()
			for _, t := range titles {
				printDetail("%s", t)
			}
			printNewline()
			printNextStep("Map its basin", fmt.Sprintf("nlink basin --n %d --terminal %s", n, res.Terminal.Key()))

			if publish.publish {
				a := artifact.FromTrace(res, s.Fingerprint(), started)
				a.Provenance.RunTag = publish.runTag
				return c.publish(cmd, publish.out, a)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&n, "n", "n", 1, "rule index N")
	cmd.Flags().BoolVar(&full, "full", false, "print every page of the path")
	publish.register(cmd, false)
	return cmd
}
