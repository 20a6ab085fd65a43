package cli

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/matzehuels/nlink/pkg/errors"
	"github.com/matzehuels/nlink/pkg/jobs"
	"github.com/matzehuels/nlink/pkg/progress"
)

// batchCommand creates the batch command.
func (c *CLI) batchCommand() *cobra.Command {
	var (
		workers int
		out     string
		runTag  string
	)

	cmd := &cobra.Command{
		Use:   "batch <specs.jsonl>",
		Short: "Run a file of job specs and publish their artifacts",
		Long: `Run one job per line of a JSON Lines file. Each line is a job spec:

  {"kind":"basin","n":5,"terminal":"cycle:12,40"}
  {"kind":"branches","n":5,"start":12,"top_k":20}
  {"kind":"multiplex","ns":[1,2,3,4,5],"max_nodes":1000000}

Jobs share one page store and one cache. A job that fails on a resource
limit or backend error does not stop the others; all such failures are
reported together at the end.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			specs, err := readSpecs(args[0])
			if err != nil {
				return err
			}
			for i := range specs {
				c.applySpecDefaults(&specs[i], runTag)
				if err := specs[i].Validate(); err != nil {
					return fmt.Errorf("%s line %d: %w", args[0], i+1, err)
				}
			}

			ctx := cmd.Context()
			r, err := c.newRunner(ctx)
			if err != nil {
				return err
			}
			defer r.Close()

			sink, release, err := c.newPublisher(ctx, out)
			if err != nil {
				return err
			}
			defer release()

			if !cmd.Flags().Changed("workers") {
				workers = c.cfg.Engine.Workers
			}
			bar := newJobBar(len(specs))
			outcomes, err := jobs.RunBatch(ctx, r, sink, specs, jobs.BatchOptions{
				Workers: workers,
				Progress: progress.Func(func(u progress.Update) {
					bar.Describe(u.Detail)
				}),
				Done: func(jobs.Outcome) { _ = bar.Add(1) },
			})
			_ = bar.Finish()
			fmt.Fprintln(os.Stderr)

			printOutcomes(outcomes)
			return err
		},
	}

	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "concurrent jobs (default: engine.workers from config)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "artifact directory (default: output.dir from config)")
	cmd.Flags().StringVar(&runTag, "run-tag", "", "run tag for specs that do not set one")
	return cmd
}

// readSpecs reads one job spec per non-empty line.
func readSpecs(path string) ([]jobs.Spec, error) {
	if err := errors.ValidatePath(path); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "open %s", path)
	}
	defer f.Close()

	var specs []jobs.Spec
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 || b[0] == '#' {
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.DisallowUnknownFields()
		var s jobs.Spec
		if err := dec.Decode(&s); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "%s line %d", path, line)
		}
		specs = append(specs, s)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "read %s", path)
	}
	if len(specs) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "%s holds no job specs", path)
	}
	return specs, nil
}

// applySpecDefaults fills budget and branch fields the spec leaves zero from
// the engine config.
func (c *CLI) applySpecDefaults(s *jobs.Spec, runTag string) {
	e := c.cfg.Engine
	if s.MaxDepth == 0 {
		s.MaxDepth = e.MaxDepth
	}
	if s.MaxNodes == 0 {
		s.MaxNodes = e.MaxNodes
	}
	if s.MaxDuration == 0 {
		s.MaxDuration = e.MaxDuration
	}
	if s.TopK == 0 {
		s.TopK = e.TopK
	}
	if s.TrunkThreshold == 0 {
		s.TrunkThreshold = e.TrunkThreshold
	}
	if s.RunTag == "" {
		s.RunTag = runTag
	}
}

func newJobBar(n int) *progressbar.ProgressBar {
	return progressbar.NewOptions(n,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionSetDescription("jobs"),
	)
}

func printOutcomes(outcomes []jobs.Outcome) {
	rows := make([][]string, 0, len(outcomes))
	ok := 0
	for _, o := range outcomes {
		status := "ok"
		switch {
		case o.Err != nil && errors.IsCancelled(o.Err):
			status = "cancelled"
		case o.Err != nil:
			status = string(errors.GetCode(o.Err))
			if status == "" {
				status = "error"
			}
		case o.Truncated:
			status = "truncated"
			ok++
		default:
			ok++
		}
		rows = append(rows, []string{
			o.Spec.String(),
			status,
			strconv.Itoa(len(o.Locations)),
			o.Elapsed.Round(time.Millisecond).String(),
		})
	}
	printTable([]string{"Job", "Status", "Artifacts", "Time"}, rows, 2)
	if ok == len(outcomes) {
		printSuccess("%d jobs finished", ok)
	} else {
		printWarning("%d of %d jobs finished", ok, len(outcomes))
	}
}
