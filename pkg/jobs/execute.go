package jobs

import (
	"context"
	"slices"
	"time"

	"github.com/matzehuels/nlink/pkg/artifact"
	"github.com/matzehuels/nlink/pkg/basin"
	"github.com/matzehuels/nlink/pkg/branch"
	"github.com/matzehuels/nlink/pkg/multiplex"
	"github.com/matzehuels/nlink/pkg/pipeline"
	"github.com/matzehuels/nlink/pkg/progress"
	"github.com/matzehuels/nlink/pkg/terminal"
)

// Execute runs spec on r and returns the artifacts to publish. Nothing is
// published here.
func Execute(ctx context.Context, r *pipeline.Runner, spec Spec, rep progress.Reporter) ([]*artifact.Artifact, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	rep = progress.OrNop(rep)
	started := time.Now()
	fp := r.Store.Fingerprint()

	var out []*artifact.Artifact
	switch spec.Kind {
	case KindTrace:
		rep.Report(progress.Update{Stage: progress.StageTrace})
		res, err := r.Trace(ctx, spec.N, spec.Start)
		if err != nil {
			return nil, err
		}
		out = append(out, artifact.FromTrace(res, fp, started))

	case KindBasin:
		t, err := resolveTerminal(ctx, r, spec)
		if err != nil {
			return nil, err
		}
		opts := basinOptions(spec, rep)
		br, err := r.Basin(ctx, spec.N, t, opts)
		if err != nil {
			return nil, err
		}
		out = append(out, artifact.FromBasin(br.Basin, opts, started))

	case KindBranches:
		t, err := resolveTerminal(ctx, r, spec)
		if err != nil {
			return nil, err
		}
		opts := basinOptions(spec, rep)
		bopts := branch.Options{TopK: spec.TopK, TrunkThreshold: spec.TrunkThreshold, Progress: rep}
		br, res, err := r.Branches(ctx, spec.N, t, opts, bopts)
		if err != nil {
			return nil, err
		}
		out = append(out, artifact.FromBranches(br.Basin, res, opts, started))

	case KindMultiplex:
		opts := basinOptions(spec, nil)
		res, err := r.Multiplex(ctx, spec.Ns, multiplex.Options{Basin: opts, Progress: rep})
		if err != nil {
			return nil, err
		}
		out = append(out,
			artifact.FromTunnels(res, opts, fp, started),
			artifact.FromAssignments(res, opts, fp, started))
	}

	for _, a := range out {
		a.Provenance.RunTag = spec.RunTag
		if len(spec.Ns) > 0 {
			a.Provenance.Ns = slices.Clone(spec.Ns)
		}
	}
	return out, nil
}

func basinOptions(spec Spec, rep progress.Reporter) basin.Options {
	return basin.Options{
		MaxDepth:    spec.MaxDepth,
		MaxNodes:    spec.MaxNodes,
		MaxDuration: spec.MaxDuration,
		Progress:    rep,
	}
}

func resolveTerminal(ctx context.Context, r *pipeline.Runner, spec Spec) (terminal.Terminal, error) {
	if spec.Terminal != "" {
		return terminal.Parse(spec.Terminal)
	}
	res, err := r.Trace(ctx, spec.N, spec.Start)
	if err != nil {
		return terminal.Terminal{}, err
	}
	return res.Terminal, nil
}

// publishAll publishes the artifacts of one job as a unit and returns their
// locations. Either all of them become visible or none do.
func publishAll(ctx context.Context, sink artifact.Publisher, arts []*artifact.Artifact, rep progress.Reporter) ([]string, error) {
	rep = progress.OrNop(rep)
	return artifact.PublishAll(ctx, sink, arts, func(i int, a *artifact.Artifact) {
		rep.Report(progress.Update{
			Stage:  progress.StagePublish,
			Done:   int64(i),
			Total:  int64(len(arts)),
			Detail: string(a.Provenance.Kind),
		})
	})
}
