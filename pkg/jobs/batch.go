package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/nlink/pkg/artifact"
	"github.com/matzehuels/nlink/pkg/errors"
	"github.com/matzehuels/nlink/pkg/observability"
	"github.com/matzehuels/nlink/pkg/pipeline"
	"github.com/matzehuels/nlink/pkg/progress"
)

// Outcome is the result of one batch job.
type Outcome struct {
	Spec      Spec
	Locations []string
	Truncated bool
	Elapsed   time.Duration
	Err       error
}

// BatchOptions configures RunBatch.
type BatchOptions struct {
	// Workers bounds concurrent jobs. < 1 means one.
	Workers int
	// Progress receives per-job updates tagged with the spec key in Detail.
	Progress progress.Reporter
	// Done, if set, is called once per finished job. It may be called
	// concurrently.
	Done func(Outcome)
}

// RunBatch runs every spec and publishes the artifacts of each successful
// job to sink.
//
// Recoverable failures (resource limits, backend timeouts, cancelled jobs)
// are collected and returned together as a *multierror.Error once every job
// is done. A failure errors.IsFatal reports as fatal cancels the remaining
// jobs and is returned alone. outcomes has one entry per spec, in spec
// order.
func RunBatch(ctx context.Context, r *pipeline.Runner, sink artifact.Publisher, specs []Spec, opts BatchOptions) ([]Outcome, error) {
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	rep := progress.OrNop(opts.Progress)

	outcomes := make([]Outcome, len(specs))
	var (
		mu     sync.Mutex
		merr   *multierror.Error
		failed int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, spec := range specs {
		outcomes[i].Spec = spec
		g.Go(func() error {
			if gctx.Err() != nil {
				outcomes[i].Err = errors.Cancelled(gctx.Err(), "batch")
				return nil
			}
			out := runOne(gctx, r, sink, spec, rep)
			outcomes[i] = out
			if opts.Done != nil {
				opts.Done(out)
			}
			if out.Err == nil {
				return nil
			}
			if errors.IsFatal(out.Err) {
				return out.Err
			}
			mu.Lock()
			failed++
			merr = multierror.Append(merr, out.Err)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return outcomes, err
	}
	if err := ctx.Err(); err != nil {
		return outcomes, errors.Cancelled(err, "batch")
	}
	r.Logger.Debug("batch finished", "jobs", len(specs), "failed", failed)
	return outcomes, merr.ErrorOrNil()
}

func runOne(ctx context.Context, r *pipeline.Runner, sink artifact.Publisher, spec Spec, rep progress.Reporter) Outcome {
	start := time.Now()
	kind := string(spec.Kind)
	observability.Jobs().OnJobStart(ctx, kind)

	key := spec.Key()
	tagged := progress.Func(func(u progress.Update) {
		if u.Detail == "" {
			u.Detail = key
		} else {
			u.Detail = key + ": " + u.Detail
		}
		rep.Report(u)
	})

	out := Outcome{Spec: spec}
	arts, err := Execute(ctx, r, spec, tagged)
	if err == nil {
		for _, a := range arts {
			out.Truncated = out.Truncated || a.Provenance.Truncated
		}
		out.Locations, err = publishAll(ctx, sink, arts, tagged)
	}
	if err != nil {
		out.Locations = nil
		out.Err = fmt.Errorf("job %s: %w", key, err)
	}
	out.Elapsed = time.Since(start)

	state := StateSucceeded
	switch {
	case err == nil:
	case errors.IsCancelled(err):
		state = StateCancelled
	default:
		state = StateFailed
	}
	observability.Jobs().OnJobComplete(ctx, kind, string(state), out.Elapsed)
	return out
}
